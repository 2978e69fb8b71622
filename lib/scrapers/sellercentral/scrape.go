package sellercentral

import (
	"context"
	"log/slog"
	"regexp"
	"strconv"
	"time"

	"infwatch/lib/browser"

	"go.opentelemetry.io/otel/codes"
)

// Result is the tri-state outcome of one scrape attempt. A nil-items
// result with Empty set means the report legitimately contains zero rows,
// which is a success, not a failure. Extraction failures are reported as
// errors alongside a zero Result and must never be conflated with Empty.
type Result struct {
	Items []InfItem
	Empty bool
}

type ScrapeOptions struct {
	Store          StoreTarget
	FetchYesterday bool
	// ThumbnailSize is the pixel size requested when rewriting the
	// thumbnail's embedded size token.
	ThumbnailSize int
	// ScreenshotDir enables diagnostic capture on failure when non-empty.
	ScreenshotDir string
}

// Scrape opens an isolated context from the session and extracts the INF
// table. The context is closed on every exit path.
func Scrape(ctx context.Context, b *browser.Browser, state *browser.StorageState, opts ScrapeOptions) (Result, error) {
	ctx, span := tracer.Start(ctx, "Scrape")
	defer span.End()

	slog.Info("opening context", "store", opts.Store.Name)
	c, err := b.NewContext(ctx, state)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to open browsing context")
		return Result{}, err
	}
	defer c.Close()

	res, err := scrapePage(ctx, c, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "scrape attempt failed")
		saveScreenshot(ctx, c, opts.ScreenshotDir, "scrape_failure")
		return Result{}, err
	}
	return res, nil
}

func scrapePage(ctx context.Context, p Page, opts ScrapeOptions) (Result, error) {
	slog.Info("navigating to inventory insights", "store", opts.Store.Name)
	if err := p.Navigate(ctx, ReportURL(opts.Store)); err != nil {
		return Result{}, err
	}

	// the date-range control turning visible is the signal that
	// client-side rendering has initialized, not just that the HTTP
	// response arrived.
	if err := p.WaitVisible(ctx, probeRangeSelector, 0); err != nil {
		return Result{}, err
	}
	slog.Info("date picker is visible")

	if opts.FetchYesterday {
		slog.Info("applying yesterday filter")
		err := waitForTableChange(ctx, p, selTable, func(ctx context.Context) error {
			return p.Click(ctx, probeYesterday)
		})
		if err != nil {
			return Result{}, err
		}
	}

	// probe briefly for at least one data row; a rendered report with no
	// rows is the confirmed-empty outcome, distinct from failure.
	if err := p.WaitVisible(ctx, browser.Css("first_row", selTable+" tr"), rowProbeBudget); err != nil {
		if isTimeout(err) {
			slog.Info("no data rows found, exiting scrape cleanly")
			return Result{Empty: true}, nil
		}
		return Result{}, err
	}

	slog.Info("widening page size", "size", maxPageSize)
	err := waitForTableChange(ctx, p, selTable, func(ctx context.Context) error {
		return p.SelectOption(ctx, selPageSize, maxPageSize)
	})
	if err != nil {
		if !isTimeout(err) {
			return Result{}, err
		}
		// best-effort: the table may already hold the maximum row count,
		// in which case nothing re-renders.
		slog.Warn("timed out waiting for page size change, assuming table already at max rows")
	}

	slog.Info("sorting table by INF units")
	err = waitForTableChange(ctx, p, selTable, func(ctx context.Context) error {
		return p.Click(ctx, browser.Css("sort_inf_units", probeSortInfUnits))
	})
	if err != nil {
		return Result{}, err
	}

	rows, err := p.TableRows(ctx, selTable)
	if err != nil {
		return Result{}, err
	}
	slog.Info("extracting rows", "count", len(rows))

	items := make([]InfItem, 0, len(rows))
	for i, row := range rows {
		item, err := parseRow(row, opts.ThumbnailSize)
		if err != nil {
			// one broken row must never abort the rest.
			slog.Warn("failed to parse row", "row", i, "err", err)
			continue
		}
		items = append(items, item)
	}

	slog.Info("scraped INF items", "store", opts.Store.Name, "items", len(items))
	return Result{Items: items}, nil
}

// waitForTableChange implements the table-mutation-wait protocol: snapshot
// the first row's text, run the action, pause for the fixed settle delay,
// then poll until the first row drifts from the snapshot (or a row appears
// where none existed). The table re-renders asynchronously with no
// document-load event to key off.
func waitForTableChange(ctx context.Context, p Page, tableSel string, action func(ctx context.Context) error) error {
	before, err := p.TextContent(ctx, tableSel+" tr:first-child")
	if err != nil {
		return err
	}
	if err := action(ctx); err != nil {
		return err
	}
	time.Sleep(p.SettleDelay())
	return p.PollFirstRowChange(ctx, tableSel, before, 0)
}

var thumbSizeToken = regexp.MustCompile(`\._SS\d+_\.`)

type rowError string

func (e rowError) Error() string { return string(e) }

func parseRow(row browser.TableRow, thumbSize int) (InfItem, error) {
	// cell layout: 0 thumbnail, 1 sku, 2 product name, 3 inf units,
	// 4 orders impacted, ..., 8 inf percentage.
	if len(row.Cells) < 9 {
		return InfItem{}, rowError("expected at least 9 cells, got " + strconv.Itoa(len(row.Cells)))
	}
	if row.Cells[1] == "" {
		return InfItem{}, rowError("row has no sku")
	}
	if thumbSize <= 0 {
		thumbSize = 100
	}
	image := thumbSizeToken.ReplaceAllString(row.ImageSrc, "._SS"+strconv.Itoa(thumbSize)+"_.")
	return InfItem{
		ImageURL:       image,
		SKU:            row.Cells[1],
		ProductName:    row.Cells[2],
		InfUnits:       row.Cells[3],
		OrdersImpacted: row.Cells[4],
		InfPct:         row.Cells[8],
	}, nil
}
