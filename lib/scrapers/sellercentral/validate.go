package sellercentral

import (
	"context"
	"log/slog"
	"strings"

	"infwatch/lib/browser"
)

// NeedsLogin probes whether the candidate session behind p still reaches
// the authenticated report. Classification is fail-closed: only a visible
// report marker counts as "still valid", everything else (sign-in
// redirects, wait expiry, any error at all) means login is needed.
func NeedsLogin(ctx context.Context, p Page, probeURL string) bool {
	ctx, span := tracer.Start(ctx, "NeedsLogin")
	defer span.End()

	if err := p.Navigate(ctx, probeURL); err != nil {
		slog.Warn("error verifying session, assuming login required", "err", err)
		return true
	}

	loc, err := p.URL(ctx)
	if err != nil {
		slog.Warn("error verifying session, assuming login required", "err", err)
		return true
	}
	if strings.Contains(strings.ToLower(loc), "signin") || strings.Contains(loc, "/ap/") {
		slog.Info("session invalid, login required", "url", loc)
		return true
	}

	if err := p.WaitVisible(ctx, probeRangeSelector, 0); err != nil {
		slog.Warn("report marker did not appear, assuming login required", "err", err)
		return true
	}

	slog.Info("existing session still valid")
	return false
}

// SessionNeedsLogin runs NeedsLogin inside a throwaway context seeded with
// the candidate state. The context never outlives this call and the
// persisted session is never touched.
func SessionNeedsLogin(ctx context.Context, b *browser.Browser, state *browser.StorageState, probeURL string) bool {
	c, err := b.NewContext(ctx, state)
	if err != nil {
		slog.Warn("could not open probe context, assuming login required", "err", err)
		return true
	}
	defer c.Close()
	return NeedsLogin(ctx, c, probeURL)
}
