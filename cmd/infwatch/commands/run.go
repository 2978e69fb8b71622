package commands

import (
	"log/slog"
	"os"
	"path/filepath"

	"infwatch/lib/artifactsync"
	"infwatch/lib/browser"
	"infwatch/lib/configutil"
	"infwatch/lib/scrapers/sellercentral"
	"infwatch/lib/scrapers/stockapi"
	"infwatch/lib/serviceutil"
	"infwatch/services/infreport"

	"github.com/spf13/cobra"
)

type Config struct {
	Debug       bool                       `json:"debug"`
	LoginURL    string                     `json:"login_url"`
	TargetStore sellercentral.StoreTarget  `json:"target_store"`
	Credentials sellercentral.Credentials  `json:"credentials"`

	WebhookURL string `json:"inf_webhook_url"`
	SingleCard bool   `json:"single_card"`
	BatchSize  int    `json:"batch_size"`
	QRCodeSize int    `json:"qr_code_size"`
	// SmallImageSize is the pixel size requested for product thumbnails.
	SmallImageSize int `json:"small_image_size"`

	LoginAttempts  int `json:"login_attempts"`
	ScrapeAttempts int `json:"scrape_attempts"`

	OutputDir        string `json:"output_dir"`
	StorageStatePath string `json:"storage_state_path"`

	EnableStockLookup bool           `json:"enable_stock_lookup"`
	StockAPI          stockapi.Config `json:"stock_api"`

	EnableDBUpload bool   `json:"enable_db_upload"`
	DatabasePath   string `json:"database_path"`

	Email        infreport.EmailConfig `json:"email"`
	ArtifactSync artifactsync.Config   `json:"artifact_sync"`
}

func (c *Config) applyDefaults() {
	if c.OutputDir == "" {
		c.OutputDir = "output"
	}
	if c.StorageStatePath == "" {
		c.StorageStatePath = "state.json"
	}
	if c.DatabasePath == "" {
		c.DatabasePath = filepath.Join(c.OutputDir, "investigations.db")
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 30
	}
	if c.QRCodeSize <= 0 {
		c.QRCodeSize = 80
	}
	if c.SmallImageSize <= 0 {
		c.SmallImageSize = 100
	}
}

// validate catches missing required settings before a browser launches.
func (c *Config) validate() error {
	missing := ""
	switch {
	case c.LoginURL == "":
		missing = "login_url"
	case c.TargetStore.Name == "":
		missing = "target_store.store_name"
	case c.TargetStore.MerchantID == "":
		missing = "target_store.merchant_id"
	case c.TargetStore.MarketplaceID == "":
		missing = "target_store.marketplace_id"
	case c.Credentials.Email == "":
		missing = "credentials.login_email"
	case c.Credentials.Password == "":
		missing = "credentials.password"
	}
	if missing != "" {
		return &missingSettingError{missing}
	}
	return nil
}

type missingSettingError struct {
	key string
}

func (e *missingSettingError) Error() string {
	return "missing required setting: " + e.key
}

var runYesterday *bool

func init() {
	runYesterday = runCmd.Flags().Bool("yesterday", false, "Fetch yesterday's data instead of today's.")
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run [--yesterday]",
	Short: "Runs one scrape-and-report cycle against the configured store.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := configutil.ReadConfig[Config]("config.json5")
		if err != nil {
			serviceutil.Fatal("failed to read config", err)
		}
		cfg.applyDefaults()
		if err := cfg.validate(); err != nil {
			serviceutil.Fatal("invalid config", err)
		}

		if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
			serviceutil.Fatal("failed to create output directory", err)
		}

		ctx := cmd.Context()
		b, err := browser.Launch(ctx, browser.Config{Headless: !cfg.Debug})
		if err != nil {
			serviceutil.Fatal("failed to launch browser", err)
		}
		defer b.Close()

		opts := infreport.Options{
			LoginURL:       cfg.LoginURL,
			Store:          cfg.TargetStore,
			Credentials:    cfg.Credentials,
			LoginAttempts:  cfg.LoginAttempts,
			ScrapeAttempts: cfg.ScrapeAttempts,
			ThumbnailSize:  cfg.SmallImageSize,
			ScreenshotDir:  cfg.OutputDir,
			Sessions:       sellercentral.SessionStore{Path: cfg.StorageStatePath},
			RunLog:         infreport.NewRunLog(filepath.Join(cfg.OutputDir, "inf_items.jsonl")),
			Notifier: infreport.NewNotifier(infreport.NotifyConfig{
				WebhookURL: cfg.WebhookURL,
				SingleCard: cfg.SingleCard,
				BatchSize:  cfg.BatchSize,
				QRCodeSize: cfg.QRCodeSize,
			}),
			Email: cfg.Email,
		}
		if cfg.EnableStockLookup {
			opts.Stock = stockapi.NewClient(cfg.StockAPI)
		}
		if cfg.EnableDBUpload {
			store, err := infreport.OpenStore(cfg.DatabasePath)
			if err != nil {
				slog.Error("could not open investigations db, skipping upload", "err", err)
			} else {
				defer store.Close()
				opts.DB = store
			}
		}
		if cfg.ArtifactSync.Enabled {
			opts.ArtifactSync = artifactsync.NewSyncer(cfg.ArtifactSync)
		}

		// a failed run still exits 0, schedulers treat every outcome as
		// delivered and the logs carry the failure
		if err := infreport.NewService(b, opts).Run(ctx, *runYesterday); err != nil {
			slog.Error("run failed", "err", err)
		}
	},
}
