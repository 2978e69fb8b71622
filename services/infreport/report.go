// Package infreport runs the end to end INF reporting pipeline: drive the
// portal scrape, dedup against the run log, enrich with stock data, and
// fan results out to chat, email and the database.
package infreport

import (
	"infwatch/lib/scrapers/sellercentral"
	"infwatch/lib/scrapers/stockapi"
	"infwatch/lib/telemetry"
)

var tracer = telemetry.Tracer("infwatch.services.infreport")

// ReportItem is one scraped INF product plus its optional stock
// enrichment. The embedded fields flatten into a single JSON object, so
// log entries written before stock lookups existed still parse.
type ReportItem struct {
	sellercentral.InfItem
	stockapi.StockInfo
}

func toReportItems(items []sellercentral.InfItem) []ReportItem {
	out := make([]ReportItem, len(items))
	for i, it := range items {
		out[i] = ReportItem{InfItem: it}
	}
	return out
}
