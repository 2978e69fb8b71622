// Package stockapi looks up stock-on-hand and shelf locations for scraped
// SKUs against the retailer's product, stock and price-integrity APIs. It
// is an enrichment collaborator: lookups are additive and every failure
// degrades to "no data", never to a run failure.
package stockapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"infwatch/lib/telemetry"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.opentelemetry.io/otel/codes"
)

var tracer = telemetry.Tracer("infwatch.scrapers.stockapi")

const (
	defaultBaseURL = "https://api.morrisons.com"

	productPath = "/product/v1/items"
	stockPath   = "/stock/v2/locations"
	locnPath    = "/priceintegrity/v1/locations"
)

type Config struct {
	APIKey      string `json:"api_key"`
	BearerToken string `json:"bearer_token"`
	LocationID  string `json:"location_id"`
	// BaseURL overrides the production endpoint, used by tests.
	BaseURL string `json:"base_url"`
}

// StockInfo is the additive enrichment for one SKU. Zero value means
// "nothing found".
type StockInfo struct {
	StockOnHand      *float64 `json:"stock_on_hand,omitempty"`
	StockUnit        string   `json:"stock_unit,omitempty"`
	StockLastUpdated string   `json:"stock_last_updated,omitempty"`
	StdLocation      string   `json:"std_location,omitempty"`
	PromoLocation    string   `json:"promo_location,omitempty"`
}

func (s StockInfo) IsZero() bool {
	return s == StockInfo{}
}

type Client struct {
	http *resty.Client
	cfg  Config

	// product lookups repeat across items when packs share components,
	// memoize them for the lifetime of the client.
	products *expirable.LRU[string, *productResponse]
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}

	client := resty.New()
	client.SetBaseURL(cfg.BaseURL)
	client.SetTimeout(15 * time.Second)
	client.SetHeader("Accept", "application/json")
	client.SetHeader("User-Agent", "Mozilla/5.0 (INF Scraper-StockChecker)")

	telemetry.InstrumentResty(client, "infwatch.scrapers.stockapi.http")

	return &Client{
		http:     client,
		cfg:      cfg,
		products: expirable.NewLRU[string, *productResponse](512, nil, 15*time.Minute),
	}
}

// Enabled reports whether the client has enough configuration to be worth
// calling at all.
func (c *Client) Enabled() bool {
	return c.cfg.APIKey != "" && c.cfg.LocationID != ""
}

// HTTPClient exposes the underlying transport for test interception.
func (c *Client) HTTPClient() *resty.Client {
	return c.http
}

type productResponse struct {
	PackComponents []struct {
		ItemNumber string `json:"itemNumber"`
	} `json:"packComponents"`
}

type stockResponse struct {
	StockPosition []struct {
		Qty           *float64 `json:"qty"`
		UnitOfMeasure string   `json:"unitofMeasure"`
		LastUpdated   string   `json:"lastUpdated"`
	} `json:"stockPosition"`
}

type locationResponse struct {
	Space struct {
		StandardSpace    spaceLocations `json:"standardSpace"`
		PromotionalSpace spaceLocations `json:"promotionalSpace"`
	} `json:"space"`
}

type spaceLocations struct {
	Locations []shelfLocation `json:"locations"`
}

// get fetches JSON into out. A bearer-auth rejection is retried once
// without the token; 404 reports found=false without an error.
func (c *Client) get(ctx context.Context, url string, out any) (found bool, err error) {
	req := func(bearer string) (*resty.Response, error) {
		r := c.http.R().SetContext(ctx)
		if bearer != "" {
			r.SetHeader("Authorization", "Bearer "+bearer)
		}
		return r.Get(url)
	}

	res, err := req(c.cfg.BearerToken)
	if err != nil {
		return false, err
	}
	if (res.StatusCode() == 401 || res.StatusCode() == 403) && c.cfg.BearerToken != "" {
		slog.Debug("bearer token rejected, retrying without it", "url", url)
		res, err = req("")
		if err != nil {
			return false, err
		}
	}
	if res.StatusCode() == 404 {
		return false, nil
	}
	if res.IsError() {
		return false, fmt.Errorf("GET %s: status %d", url, res.StatusCode())
	}
	if err := json.Unmarshal(res.Body(), out); err != nil {
		return false, fmt.Errorf("GET %s: decode: %w", url, err)
	}
	return true, nil
}

func (c *Client) fetchProduct(ctx context.Context, sku string) (*productResponse, error) {
	if cached, hit := c.products.Get(sku); hit {
		return cached, nil
	}
	var product productResponse
	url := fmt.Sprintf("%s/%s?apikey=%s", productPath, sku, c.cfg.APIKey)
	found, err := c.get(ctx, url, &product)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	c.products.Add(sku, &product)
	return &product, nil
}

// Lookup resolves stock and shelf locations for one SKU. The product
// record supplies pack-component SKUs, each candidate is probed until one
// has a stock position; locations are then fetched for whichever SKU won.
func (c *Client) Lookup(ctx context.Context, sku string) (StockInfo, error) {
	ctx, span := tracer.Start(ctx, "Lookup")
	defer span.End()

	var info StockInfo

	product, err := c.fetchProduct(ctx, sku)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "product lookup failed")
		return info, err
	}
	if product == nil {
		slog.Warn("product not found in stock api", "sku", sku)
		return info, nil
	}

	candidates := []string{sku}
	for _, pc := range product.PackComponents {
		if pc.ItemNumber != "" {
			candidates = append(candidates, pc.ItemNumber)
		}
	}

	stockSku := ""
	for _, candidate := range candidates {
		var stock stockResponse
		url := fmt.Sprintf("%s/%s/items/%s?apikey=%s", stockPath, c.cfg.LocationID, candidate, c.cfg.APIKey)
		found, err := c.get(ctx, url, &stock)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "stock lookup failed")
			return info, err
		}
		if !found || len(stock.StockPosition) == 0 {
			continue
		}
		pos := stock.StockPosition[0]
		info.StockOnHand = pos.Qty
		info.StockUnit = pos.UnitOfMeasure
		info.StockLastUpdated = pos.LastUpdated
		stockSku = candidate
		slog.Info("found stock", "sku", candidate, "original", sku, "qty", pos.Qty)
		break
	}

	// locations come from whichever SKU had stock, falling back to the
	// original when none did.
	piSku := stockSku
	if piSku == "" {
		piSku = sku
	}
	var locn locationResponse
	url := fmt.Sprintf("%s/%s/items/%s?apikey=%s", locnPath, c.cfg.LocationID, piSku, c.cfg.APIKey)
	found, err := c.get(ctx, url, &locn)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "location lookup failed")
		return info, err
	}
	if found {
		info.StdLocation = simplifyLocations(locn.Space.StandardSpace.Locations)
		info.PromoLocation = simplifyLocations(locn.Space.PromotionalSpace.Locations)
	}
	return info, nil
}

// LookupAll resolves every SKU concurrently, one goroutine per item. The
// batch size bounds the fan-out; per-item latency would be additive
// otherwise. Individual failures are logged and yield no entry.
func (c *Client) LookupAll(ctx context.Context, skus []string) map[string]StockInfo {
	ctx, span := tracer.Start(ctx, "LookupAll")
	defer span.End()

	var mu sync.Mutex
	var wg sync.WaitGroup
	results := make(map[string]StockInfo, len(skus))

	slog.Info("fetching stock and location data", "items", len(skus))
	for _, sku := range skus {
		wg.Add(1)
		go func(sku string) {
			defer wg.Done()
			info, err := c.Lookup(ctx, sku)
			if err != nil {
				slog.Error("stock lookup failed", "sku", sku, "err", err)
				return
			}
			if info.IsZero() {
				return
			}
			mu.Lock()
			results[sku] = info
			mu.Unlock()
		}(sku)
	}
	wg.Wait()

	slog.Info("finished stock enrichment", "resolved", len(results))
	return results
}
