// Package artifactsync restores run-log history from CI build artifacts.
// Scheduled runs start with an empty workspace, so without this the
// same-day dedup window would reset on every run.
package artifactsync

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"infwatch/lib/telemetry"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/codes"
)

var tracer = telemetry.Tracer("infwatch.artifactsync")

type Config struct {
	Enabled bool `json:"enabled"`
	// Repository is "owner/name" on the CI provider.
	Repository string `json:"repository"`
	// ArtifactName is the workflow artifact that carries the run log.
	ArtifactName string `json:"artifact_name"`
	Token        string `json:"token"`
	// BaseURL overrides the provider endpoint, used by tests.
	BaseURL string `json:"base_url"`
}

// logFileName is the member we pull out of the artifact archive. It must
// match the basename the run log is written under.
const logFileName = "inf_items.jsonl"

const listPageSize = 100

type Syncer struct {
	cfg  Config
	http *resty.Client
	once sync.Once
}

func NewSyncer(cfg Config) *Syncer {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.github.com"
	}

	client := resty.New()
	client.SetBaseURL(cfg.BaseURL)
	client.SetTimeout(60 * time.Second)
	client.SetHeader("Accept", "application/vnd.github+json")
	client.SetHeader("User-Agent", "inf-artifact-sync")
	if cfg.Token != "" {
		client.SetHeader("Authorization", "Bearer "+cfg.Token)
	}

	telemetry.InstrumentResty(client, "infwatch.artifactsync.http")

	return &Syncer{cfg: cfg, http: client}
}

// HTTPClient exposes the underlying transport for test interception.
func (s *Syncer) HTTPClient() *resty.Client {
	return s.http
}

// EnsureLogHistory restores logPath from the newest artifact when the
// local file is missing or empty. It runs at most once per process and
// never fails the caller: every problem is logged and skipped.
func (s *Syncer) EnsureLogHistory(ctx context.Context, logPath string) {
	s.once.Do(func() {
		if !s.cfg.Enabled {
			return
		}
		if info, err := os.Stat(logPath); err == nil && info.Size() > 0 {
			return
		}
		if err := s.restore(ctx, logPath); err != nil {
			slog.Warn("could not restore log history from artifact", "err", err)
		}
	})
}

func (s *Syncer) restore(ctx context.Context, logPath string) error {
	ctx, span := tracer.Start(ctx, "restore")
	defer span.End()

	switch {
	case s.cfg.ArtifactName == "":
		slog.Warn("artifact log sync enabled but no artifact name configured, skipping")
		return nil
	case s.cfg.Repository == "":
		slog.Warn("artifact log sync enabled but repository is unknown, skipping")
		return nil
	case s.cfg.Token == "":
		slog.Warn("artifact log sync enabled but no token available, skipping")
		return nil
	}

	downloadURL, err := s.findLatestArtifact(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "artifact listing failed")
		return err
	}
	if downloadURL == "" {
		slog.Info("no matching artifact found for log sync", "name", s.cfg.ArtifactName)
		return nil
	}

	archive, err := s.download(ctx, downloadURL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "artifact download failed")
		return err
	}

	logBytes, err := extractLog(archive)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "archive extraction failed")
		return err
	}
	if logBytes == nil {
		slog.Warn("artifact archive did not contain the run log", "member", logFileName)
		return nil
	}

	if dir := filepath.Dir(logPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	if err := os.WriteFile(logPath, logBytes, 0644); err != nil {
		return err
	}

	slog.Info("downloaded log history from artifact", "name", s.cfg.ArtifactName)
	return nil
}

type artifactList struct {
	Artifacts []struct {
		Name               string `json:"name"`
		Expired            bool   `json:"expired"`
		ArchiveDownloadURL string `json:"archive_download_url"`
	} `json:"artifacts"`
}

// findLatestArtifact pages through the artifact listing, newest first,
// and returns the download URL of the first non-expired artifact with
// the configured name. Empty means none matched.
func (s *Syncer) findLatestArtifact(ctx context.Context) (string, error) {
	url := fmt.Sprintf("/repos/%s/actions/artifacts", s.cfg.Repository)

	for page := 1; ; page++ {
		var list artifactList
		res, err := s.http.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"per_page": strconv.Itoa(listPageSize),
				"page":     strconv.Itoa(page),
			}).
			SetResult(&list).
			ForceContentType("application/json").
			Get(url)
		if err != nil {
			return "", err
		}
		if res.IsError() {
			return "", fmt.Errorf("list artifacts: status %d: %s", res.StatusCode(), res.String())
		}

		for _, a := range list.Artifacts {
			if a.Name != s.cfg.ArtifactName || a.Expired {
				continue
			}
			return a.ArchiveDownloadURL, nil
		}
		if len(list.Artifacts) < listPageSize {
			return "", nil
		}
	}
}

func (s *Syncer) download(ctx context.Context, url string) ([]byte, error) {
	res, err := s.http.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, err
	}
	if res.IsError() {
		return nil, fmt.Errorf("download artifact: status %d", res.StatusCode())
	}
	if len(res.Body()) == 0 {
		return nil, fmt.Errorf("artifact archive was empty")
	}
	return res.Body(), nil
}

// extractLog pulls the run-log member out of the zip archive. A nil
// result with nil error means the archive had no such member.
func extractLog(archive []byte) ([]byte, error) {
	reader, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	for _, f := range reader.File {
		if !strings.HasSuffix(f.Name, logFileName) {
			continue
		}
		member, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer member.Close()
		return io.ReadAll(member)
	}
	return nil, nil
}
