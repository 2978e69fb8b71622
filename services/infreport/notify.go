package infreport

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"infwatch/lib/telemetry"
	"infwatch/lib/timezone"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/codes"
)

type NotifyConfig struct {
	WebhookURL string `json:"webhook_url"`
	// SingleCard caps the report at one card of BatchSize items instead
	// of posting every batch.
	SingleCard bool `json:"single_card"`
	BatchSize  int  `json:"batch_size"`
	QRCodeSize int  `json:"qr_code_size"`
}

const headerIconURL = "https://cdn-icons-png.flaticon.com/512/2838/2838885.png"

// chat webhook payload, the subset of the cardsV2 schema the report uses

type chatPayload struct {
	CardsV2 []cardV2 `json:"cardsV2"`
}

type cardV2 struct {
	CardID string `json:"cardId"`
	Card   card   `json:"card"`
}

type card struct {
	Header   cardHeader    `json:"header"`
	Sections []cardSection `json:"sections"`
}

type cardHeader struct {
	Title     string `json:"title"`
	Subtitle  string `json:"subtitle"`
	ImageURL  string `json:"imageUrl"`
	ImageType string `json:"imageType"`
}

type cardSection struct {
	Widgets []widget `json:"widgets"`
}

type widget struct {
	Divider       *struct{}      `json:"divider,omitempty"`
	Columns       *columns       `json:"columns,omitempty"`
	TextParagraph *textParagraph `json:"textParagraph,omitempty"`
	Image         *image         `json:"image,omitempty"`
}

type columns struct {
	ColumnItems []columnItem `json:"columnItems"`
}

type columnItem struct {
	HorizontalSizeStyle string   `json:"horizontalSizeStyle,omitempty"`
	HorizontalAlignment string   `json:"horizontalAlignment,omitempty"`
	VerticalAlignment   string   `json:"verticalAlignment,omitempty"`
	Widgets             []widget `json:"widgets"`
}

type textParagraph struct {
	Text string `json:"text"`
}

type image struct {
	ImageURL string `json:"imageUrl"`
	AltText  string `json:"altText"`
}

// Notifier posts report cards to a Google Chat webhook.
type Notifier struct {
	cfg  NotifyConfig
	http *resty.Client
}

func NewNotifier(cfg NotifyConfig) *Notifier {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.QRCodeSize <= 0 {
		cfg.QRCodeSize = 150
	}

	client := resty.New()
	client.SetTimeout(30 * time.Second)
	telemetry.InstrumentResty(client, "infwatch.services.infreport.chat")

	return &Notifier{cfg: cfg, http: client}
}

// HTTPClient exposes the underlying transport for test interception.
func (n *Notifier) HTTPClient() *resty.Client {
	return n.http
}

// PostToChat sends the report in card batches. Failed batches are
// logged and the rest still go out; notification is best effort.
func (n *Notifier) PostToChat(ctx context.Context, store string, items []ReportItem) {
	ctx, span := tracer.Start(ctx, "PostToChat")
	defer span.End()

	if n.cfg.WebhookURL == "" {
		slog.Warn("webhook url not set, skipping chat post")
		return
	}
	if len(items) == 0 {
		slog.Info("no items to post, skipping chat post")
		return
	}

	var batches [][]ReportItem
	if n.cfg.SingleCard {
		batches = [][]ReportItem{items[:min(len(items), n.cfg.BatchSize)]}
	} else {
		for start := 0; start < len(items); start += n.cfg.BatchSize {
			batches = append(batches, items[start:min(len(items), start+n.cfg.BatchSize)])
		}
	}
	slog.Info("posting report cards", "batches", len(batches), "batch_size", n.cfg.BatchSize)

	for idx, batch := range batches {
		payload := n.buildCard(store, batch, idx+1, len(batches))
		res, err := n.http.R().
			SetContext(ctx).
			SetHeader("Content-Type", "application/json").
			SetBody(payload).
			Post(n.cfg.WebhookURL)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "chat post failed")
			slog.Error("error posting batch", "batch", idx+1, "err", err)
			continue
		}
		if res.StatusCode() != 200 {
			slog.Error("batch post rejected", "batch", idx+1, "status", res.StatusCode(), "body", res.String())
			continue
		}
		slog.Info("posted batch", "batch", idx+1, "of", len(batches), "items", len(batch))
	}
}

func (n *Notifier) buildCard(store string, batch []ReportItem, idx, total int) chatPayload {
	widgets := []widget{{Divider: &struct{}{}}}
	for _, it := range batch {
		qr := fmt.Sprintf("https://api.qrserver.com/v1/create-qr-code/?size=%dx%d&data=%s",
			n.cfg.QRCodeSize, n.cfg.QRCodeSize, url.QueryEscape(it.SKU))

		text := fmt.Sprintf("<b>%s</b><br><b>SKU:</b> %s<br><b>INF Units:</b> %s (%s) | <b>Orders:</b> %s",
			it.ProductName, it.SKU, it.InfUnits, it.InfPct, it.OrdersImpacted)
		if it.StockOnHand != nil {
			text += fmt.Sprintf("<br><b>Stock:</b> %g %s", *it.StockOnHand, it.StockUnit)
		}
		if it.StdLocation != "" {
			text += "<br><b>Location:</b> " + it.StdLocation
		}
		if it.PromoLocation != "" {
			text += "<br><b>Promo:</b> " + it.PromoLocation
		}

		widgets = append(widgets,
			widget{Columns: &columns{ColumnItems: []columnItem{
				{
					HorizontalSizeStyle: "FILL_MINIMUM_SPACE",
					HorizontalAlignment: "CENTER",
					VerticalAlignment:   "CENTER",
					Widgets:             []widget{{Image: &image{ImageURL: qr, AltText: "QR " + it.SKU}}},
				},
				{
					HorizontalSizeStyle: "FILL_AVAILABLE_SPACE",
					Widgets: []widget{
						{TextParagraph: &textParagraph{Text: text}},
						{Image: &image{ImageURL: it.ImageURL, AltText: it.ProductName}},
					},
				},
			}}},
			widget{Divider: &struct{}{}},
		)
	}

	subtitle := "Sorted by INF Units | " + timezone.Now().Format("Monday 02 January, 15:04")
	cardID := "inf-report-" + strings.ReplaceAll(store, " ", "-")
	if !n.cfg.SingleCard {
		subtitle += fmt.Sprintf(" | batch %d/%d", idx, total)
		cardID += fmt.Sprintf("-b%d", idx)
	}

	return chatPayload{CardsV2: []cardV2{{
		CardID: cardID,
		Card: card{
			Header: cardHeader{
				Title:     "Top INF Items Report - " + store,
				Subtitle:  subtitle,
				ImageURL:  headerIconURL,
				ImageType: "CIRCLE",
			},
			Sections: []cardSection{{Widgets: widgets}},
		},
	}}}
}
