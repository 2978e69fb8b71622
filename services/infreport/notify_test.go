package infreport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/require"
)

const testWebhook = "https://chat.test/v1/spaces/AAA/messages"

func newTestNotifier(t *testing.T, cfg NotifyConfig) (*Notifier, *[]chatPayload) {
	cfg.WebhookURL = testWebhook
	n := NewNotifier(cfg)
	httpmock.ActivateNonDefault(n.HTTPClient().GetClient())
	t.Cleanup(httpmock.DeactivateAndReset)

	var posted []chatPayload
	httpmock.RegisterResponder("POST", testWebhook,
		func(req *http.Request) (*http.Response, error) {
			body, err := io.ReadAll(req.Body)
			require.NoError(t, err)
			var payload chatPayload
			require.NoError(t, json.Unmarshal(body, &payload))
			posted = append(posted, payload)
			return httpmock.NewStringResponse(200, "{}"), nil
		})
	return n, &posted
}

func reportItems(n int) []ReportItem {
	items := make([]ReportItem, n)
	for i := range items {
		items[i] = item(fmt.Sprintf("SKU-%d", i))
	}
	return items
}

func TestPostToChatBatches(t *testing.T) {
	n, posted := newTestNotifier(t, NotifyConfig{BatchSize: 4})

	n.PostToChat(context.Background(), "Test Store", reportItems(10))

	require.Len(t, *posted, 3)

	first := (*posted)[0].CardsV2[0]
	require.Equal(t, "inf-report-Test-Store-b1", first.CardID)
	require.Equal(t, "Top INF Items Report - Test Store", first.Card.Header.Title)
	require.Contains(t, first.Card.Header.Subtitle, "batch 1/3")

	// 4 items per full card, each item is a columns widget plus a
	// trailing divider, with one leading divider
	require.Len(t, first.Card.Sections[0].Widgets, 1+4*2)
	last := (*posted)[2].CardsV2[0]
	require.Len(t, last.Card.Sections[0].Widgets, 1+2*2)
}

func TestPostToChatSingleCard(t *testing.T) {
	n, posted := newTestNotifier(t, NotifyConfig{BatchSize: 4, SingleCard: true})

	n.PostToChat(context.Background(), "Test Store", reportItems(10))

	require.Len(t, *posted, 1)
	card := (*posted)[0].CardsV2[0]
	require.Equal(t, "inf-report-Test-Store", card.CardID)
	require.NotContains(t, card.Card.Header.Subtitle, "batch")
	require.Len(t, card.Card.Sections[0].Widgets, 1+4*2)
}

func TestPostToChatItemContent(t *testing.T) {
	n, posted := newTestNotifier(t, NotifyConfig{QRCodeSize: 200})

	it := item("SKU 1")
	it.ProductName = "Whole Milk 2L"
	it.InfUnits = "12"
	it.InfPct = "40%"
	it.OrdersImpacted = "7"
	it.ImageURL = "https://img.test/milk.jpg"
	qty := 3.0
	it.StockOnHand = &qty
	it.StockUnit = "EACH"
	it.StdLocation = "Aisle 3, Left bay 1"

	n.PostToChat(context.Background(), "Test Store", []ReportItem{it})

	widgets := (*posted)[0].CardsV2[0].Card.Sections[0].Widgets
	cols := widgets[1].Columns.ColumnItems
	qr := cols[0].Widgets[0].Image
	require.Equal(t, "https://api.qrserver.com/v1/create-qr-code/?size=200x200&data=SKU+1", qr.ImageURL)

	text := cols[1].Widgets[0].TextParagraph.Text
	require.Contains(t, text, "<b>Whole Milk 2L</b>")
	require.Contains(t, text, "<b>INF Units:</b> 12 (40%)")
	require.Contains(t, text, "<b>Stock:</b> 3 EACH")
	require.Contains(t, text, "<b>Location:</b> Aisle 3, Left bay 1")
	require.Equal(t, "https://img.test/milk.jpg", cols[1].Widgets[1].Image.ImageURL)
}

func TestPostToChatSkipsWithoutWebhook(t *testing.T) {
	n := NewNotifier(NotifyConfig{})
	httpmock.ActivateNonDefault(n.HTTPClient().GetClient())
	t.Cleanup(httpmock.DeactivateAndReset)

	n.PostToChat(context.Background(), "Test Store", reportItems(2))
	require.Zero(t, httpmock.GetTotalCallCount())
}

func TestPostToChatFailedBatchDoesNotStopRest(t *testing.T) {
	cfg := NotifyConfig{WebhookURL: testWebhook, BatchSize: 1}
	n := NewNotifier(cfg)
	httpmock.ActivateNonDefault(n.HTTPClient().GetClient())
	t.Cleanup(httpmock.DeactivateAndReset)

	calls := 0
	httpmock.RegisterResponder("POST", testWebhook,
		func(req *http.Request) (*http.Response, error) {
			calls++
			if calls == 1 {
				return httpmock.NewStringResponse(500, "boom"), nil
			}
			return httpmock.NewStringResponse(200, "{}"), nil
		})

	n.PostToChat(context.Background(), "Test Store", reportItems(3))
	require.Equal(t, 3, calls)
}
