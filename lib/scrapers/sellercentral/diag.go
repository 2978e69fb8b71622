package sellercentral

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"infwatch/lib/timezone"
)

// saveScreenshot captures a diagnostic full-page screenshot into dir. It
// never fails the caller, diagnostics are best-effort.
func saveScreenshot(ctx context.Context, p Page, dir, prefix string) {
	if dir == "" || p == nil {
		return
	}
	shot, err := p.Screenshot(ctx)
	if err != nil {
		slog.Error("screenshot capture failed", "err", err)
		return
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		slog.Error("screenshot dir create failed", "err", err)
		return
	}
	path := filepath.Join(dir, prefix+"_"+timezone.Now().Format("20060102_150405")+".png")
	if err := os.WriteFile(path, shot, 0o644); err != nil {
		slog.Error("screenshot write failed", "err", err)
		return
	}
	slog.Info("screenshot saved", "path", path)
}
