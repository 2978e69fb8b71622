package infreport

import (
	"context"
	"fmt"
	"log/slog"

	"infwatch/lib/artifactsync"
	"infwatch/lib/browser"
	"infwatch/lib/retry"
	"infwatch/lib/scrapers/sellercentral"
	"infwatch/lib/scrapers/stockapi"
	"infwatch/lib/timezone"

	"go.opentelemetry.io/otel/codes"
)

type Options struct {
	LoginURL    string
	Store       sellercentral.StoreTarget
	Credentials sellercentral.Credentials

	LoginAttempts  int
	ScrapeAttempts int
	ThumbnailSize  int
	// ScreenshotDir enables diagnostic capture on final retry attempts.
	ScreenshotDir string

	Sessions sellercentral.SessionStore
	RunLog   *RunLog

	// optional collaborators, nil disables the step
	Notifier     *Notifier
	Email        EmailConfig
	Stock        *stockapi.Client
	DB           *Store
	ArtifactSync *artifactsync.Syncer
}

// portal abstracts the browser-driven operations so the run sequencing
// is testable without a real Chrome.
type portal interface {
	SessionNeedsLogin(ctx context.Context, state *browser.StorageState, probeURL string) bool
	PrimeSession(ctx context.Context, opts sellercentral.LoginOptions) (*browser.StorageState, error)
	Scrape(ctx context.Context, state *browser.StorageState, opts sellercentral.ScrapeOptions) (sellercentral.Result, error)
}

type browserPortal struct {
	b *browser.Browser
}

func (p browserPortal) SessionNeedsLogin(ctx context.Context, state *browser.StorageState, probeURL string) bool {
	return sellercentral.SessionNeedsLogin(ctx, p.b, state, probeURL)
}

func (p browserPortal) PrimeSession(ctx context.Context, opts sellercentral.LoginOptions) (*browser.StorageState, error) {
	return sellercentral.PrimeSession(ctx, p.b, opts)
}

func (p browserPortal) Scrape(ctx context.Context, state *browser.StorageState, opts sellercentral.ScrapeOptions) (sellercentral.Result, error) {
	return sellercentral.Scrape(ctx, p.b, state, opts)
}

type chatPoster interface {
	PostToChat(ctx context.Context, store string, items []ReportItem)
}

type enricher interface {
	LookupAll(ctx context.Context, skus []string) map[string]stockapi.StockInfo
}

type persister interface {
	CreateInvestigation(ctx context.Context, name string, items []ReportItem) (int64, error)
}

type logSyncer interface {
	EnsureLogHistory(ctx context.Context, logPath string)
}

// Service sequences one reporting run end to end.
type Service struct {
	opts   Options
	portal portal

	chat      chatPoster
	enrich    enricher
	persist   persister
	logSync   logSyncer
	sendEmail func(ctx context.Context, cfg EmailConfig, store string, items []ReportItem) error
}

func NewService(b *browser.Browser, opts Options) *Service {
	if opts.LoginAttempts <= 0 {
		opts.LoginAttempts = 3
	}
	if opts.ScrapeAttempts <= 0 {
		opts.ScrapeAttempts = 3
	}

	s := &Service{
		opts:      opts,
		portal:    browserPortal{b},
		sendEmail: SendEmailReport,
	}
	if opts.Notifier != nil {
		s.chat = opts.Notifier
	}
	if opts.Stock != nil && opts.Stock.Enabled() {
		s.enrich = opts.Stock
	}
	if opts.DB != nil {
		s.persist = opts.DB
	}
	if opts.ArtifactSync != nil {
		s.logSync = opts.ArtifactSync
	}
	return s
}

// Run executes one scrape-and-report cycle. A login or scrape failure
// after retries aborts with an error; everything downstream of a
// successful scrape is best effort and cannot fail the run.
func (s *Service) Run(ctx context.Context, fetchYesterday bool) error {
	ctx, span := tracer.Start(ctx, "Run")
	defer span.End()

	slog.Info("starting report run", "store", s.opts.Store.Name, "yesterday", fetchYesterday)

	if s.logSync != nil && s.opts.RunLog != nil {
		s.logSync.EnsureLogHistory(ctx, s.opts.RunLog.Path)
	}

	state, err := s.ensureSession(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "could not establish a session")
		return err
	}

	result, err := s.scrape(ctx, state, fetchYesterday)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "scrape failed")
		return err
	}
	if result.Empty {
		slog.Info("no INF items found for the period")
		return nil
	}

	items := toReportItems(result.Items)

	if s.opts.RunLog != nil {
		fresh, err := s.opts.RunLog.FilterPostedToday(items)
		if err != nil {
			slog.Warn("could not read run log for dedup, posting everything", "err", err)
		} else {
			items = fresh
		}
	}
	if len(items) == 0 {
		slog.Info("every item was already posted today")
		return nil
	}

	if s.enrich != nil {
		skus := make([]string, len(items))
		for i, it := range items {
			skus[i] = it.SKU
		}
		stock := s.enrich.LookupAll(ctx, skus)
		for i := range items {
			if info, ok := stock[items[i].SKU]; ok {
				items[i].StockInfo = info
			}
		}
	}

	if s.opts.RunLog != nil {
		if err := s.opts.RunLog.Append(s.opts.Store.Name, items); err != nil {
			slog.Error("could not append to run log", "err", err)
		}
	}

	if s.persist != nil {
		name := fmt.Sprintf("INF Scrape - %s", timezone.Now().Format("2006-01-02 15:04"))
		if _, err := s.persist.CreateInvestigation(ctx, name, items); err != nil {
			slog.Error("could not record investigation", "err", err)
		}
	}

	if s.chat != nil {
		s.chat.PostToChat(ctx, s.opts.Store.Name, items)
	}

	if s.opts.Email.Enabled {
		if err := s.sendEmail(ctx, s.opts.Email, s.opts.Store.Name, items); err != nil {
			slog.Error("could not send email report", "err", err)
		}
	}

	slog.Info("report run complete", "items", len(items))
	return nil
}

// ensureSession reuses the persisted storage state when it still passes
// validation, otherwise logs in with retries and persists the fresh
// state.
func (s *Service) ensureSession(ctx context.Context) (*browser.StorageState, error) {
	probeURL := sellercentral.ReportURL(s.opts.Store)

	if s.opts.Sessions.HasValidSession() {
		state, err := s.opts.Sessions.Load()
		if err == nil && !s.portal.SessionNeedsLogin(ctx, state, probeURL) {
			slog.Info("reusing existing session")
			return state, nil
		}
	}

	slog.Info("no valid session, logging in")
	state, _, err := retry.Do(ctx,
		retry.Options{Name: "login", Attempts: s.opts.LoginAttempts},
		func(ctx context.Context, attempt int) (*browser.StorageState, error) {
			opts := sellercentral.LoginOptions{
				LoginURL:    s.opts.LoginURL,
				ReportURL:   probeURL,
				Credentials: s.opts.Credentials,
			}
			if attempt == s.opts.LoginAttempts {
				opts.ScreenshotDir = s.opts.ScreenshotDir
			}
			return s.portal.PrimeSession(ctx, opts)
		},
		func(state *browser.StorageState, err error) retry.Outcome {
			if err != nil {
				return retry.Retry
			}
			return retry.Success
		})
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	if err := s.opts.Sessions.Save(state); err != nil {
		slog.Error("could not persist session state", "err", err)
	}
	return state, nil
}

// scrape runs the table scrape with retries. A confirmed-empty result
// short-circuits, a transient failure retries, exhaustion aborts.
func (s *Service) scrape(ctx context.Context, state *browser.StorageState, fetchYesterday bool) (sellercentral.Result, error) {
	result, _, err := retry.Do(ctx,
		retry.Options{Name: "scrape", Attempts: s.opts.ScrapeAttempts},
		func(ctx context.Context, attempt int) (sellercentral.Result, error) {
			opts := sellercentral.ScrapeOptions{
				Store:          s.opts.Store,
				FetchYesterday: fetchYesterday,
				ThumbnailSize:  s.opts.ThumbnailSize,
			}
			if attempt == s.opts.ScrapeAttempts {
				opts.ScreenshotDir = s.opts.ScreenshotDir
			}
			return s.portal.Scrape(ctx, state, opts)
		},
		func(result sellercentral.Result, err error) retry.Outcome {
			if err != nil {
				return retry.Retry
			}
			if result.Empty {
				return retry.Stop
			}
			return retry.Success
		})
	if err != nil {
		return sellercentral.Result{}, fmt.Errorf("scrape: %w", err)
	}
	return result, nil
}
