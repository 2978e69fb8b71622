package infreport

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"net/smtp"
	"strings"

	"infwatch/lib/timezone"

	"github.com/jordan-wright/email"
	"go.opentelemetry.io/otel/codes"
)

type EmailConfig struct {
	Enabled  bool     `json:"enabled"`
	Server   string   `json:"server"`
	Port     int      `json:"port"`
	From     string   `json:"from"`
	Password string   `json:"password"`
	To       []string `json:"to"`
}

// SendEmailReport mails the items as an HTML table. Some relays reject
// AUTH entirely, so a rejected PlainAuth is retried unauthenticated.
func SendEmailReport(ctx context.Context, cfg EmailConfig, store string, items []ReportItem) error {
	_, span := tracer.Start(ctx, "SendEmailReport")
	defer span.End()

	if len(cfg.To) == 0 {
		slog.Warn("email report enabled but no recipients configured, skipping")
		return nil
	}

	mail := email.NewEmail()
	mail.From = fmt.Sprintf("INF Watch <%s>", cfg.From)
	mail.To = cfg.To
	mail.Subject = fmt.Sprintf("Top INF Items Report - %s - %s",
		store, timezone.Now().Format("02 Jan 2006"))
	mail.HTML = []byte(renderEmailTable(items))

	addr := fmt.Sprintf("%s:%d", cfg.Server, cfg.Port)
	err := mail.Send(addr, smtp.PlainAuth("", cfg.From, cfg.Password, cfg.Server))
	if err != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
		err = mail.Send(addr, nil)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to send email report")
		return err
	}
	return nil
}

func renderEmailTable(items []ReportItem) string {
	var b strings.Builder
	b.WriteString(`<table border="1" cellpadding="6" cellspacing="0">`)
	b.WriteString("<tr><th>SKU</th><th>Product</th><th>INF Units</th><th>INF %</th><th>Orders</th><th>Stock</th><th>Location</th></tr>")
	for _, it := range items {
		stock := ""
		if it.StockOnHand != nil {
			stock = fmt.Sprintf("%g %s", *it.StockOnHand, it.StockUnit)
		}
		location := it.StdLocation
		if it.PromoLocation != "" {
			if location != "" {
				location += "; "
			}
			location += "Promo: " + it.PromoLocation
		}
		fmt.Fprintf(&b, "<tr><td>%s</td><td>%s</td><td>%s</td><td>%s</td><td>%s</td><td>%s</td><td>%s</td></tr>",
			html.EscapeString(it.SKU),
			html.EscapeString(it.ProductName),
			html.EscapeString(it.InfUnits),
			html.EscapeString(it.InfPct),
			html.EscapeString(it.OrdersImpacted),
			html.EscapeString(stock),
			html.EscapeString(location))
	}
	b.WriteString("</table>")
	return b.String()
}
