// Package sellercentral drives an authenticated Seller Central session to
// extract the "item not found" table from the inventory-insights report.
// It owns the session lifecycle (persisted storage state, validity probing,
// interactive login with OTP handling) and the table-scraping protocol.
package sellercentral

import (
	"context"
	"net/url"
	"time"

	"infwatch/lib/browser"
	"infwatch/lib/telemetry"
)

var tracer = telemetry.Tracer("infwatch.scrapers.sellercentral")

// StoreTarget identifies one retail location/account. Immutable for the
// process lifetime.
type StoreTarget struct {
	Name            string `json:"store_name"`
	MerchantID      string `json:"merchant_id"`
	MarketplaceID   string `json:"marketplace_id"`
	StockLocationID string `json:"stock_location_id"`
}

// Credentials is the interactive login material. OtpSecret is the shared
// TOTP secret; empty means the account has no second factor.
type Credentials struct {
	Email     string `json:"login_email"`
	Password  string `json:"login_password"`
	OtpSecret string `json:"otp_secret_key"`
}

const inventoryBaseURL = "https://sellercentral.amazon.co.uk/snow-inventory/inventoryinsights/"

// ReportURL builds the direct inventory-insights URL for a store. Landing
// here straight after login also bypasses the account-picker screen when
// several stores share the credentials.
func ReportURL(store StoreTarget) string {
	q := url.Values{}
	q.Set("ref_", "mp_home_logo_xx")
	q.Set("cor", "mmp_EU")
	q.Set("mons_sel_dir_mcid", store.MerchantID)
	q.Set("mons_sel_mkid", store.MarketplaceID)
	return inventoryBaseURL + "?" + q.Encode()
}

// InfItem is one scraped row. The count fields stay strings exactly as
// scraped (they may carry thousands separators); consumers that need
// numbers clean them up at their own boundary.
type InfItem struct {
	ImageURL       string `json:"image_url"`
	SKU            string `json:"sku"`
	ProductName    string `json:"product_name"`
	InfUnits       string `json:"inf_units"`
	OrdersImpacted string `json:"orders_impacted"`
	InfPct         string `json:"inf_pct"`
}

// Page is the browsing surface the login, validation and scrape flows
// drive. *browser.Context implements it; tests substitute fakes.
type Page interface {
	Navigate(ctx context.Context, url string) error
	URL(ctx context.Context) (string, error)
	WaitVisible(ctx context.Context, probe browser.Probe, budget time.Duration) error
	RaceVisible(ctx context.Context, budget time.Duration, probes ...browser.Probe) (string, error)
	Click(ctx context.Context, probe browser.Probe) error
	Fill(ctx context.Context, sel, value string) error
	SelectOption(ctx context.Context, sel, value string) error
	TextContent(ctx context.Context, sel string) (string, error)
	TableRows(ctx context.Context, tableSel string) ([]browser.TableRow, error)
	PollFirstRowChange(ctx context.Context, tableSel, before string, budget time.Duration) error
	SettleDelay() time.Duration
	Screenshot(ctx context.Context) ([]byte, error)
}

var _ Page = (*browser.Context)(nil)

// Selectors and probes for the login flow and the report page.
var (
	probeContinueInput  = browser.Css("continue_input", `input[type="submit"][aria-labelledby="continue-announce"]`)
	probeContinueButton = browser.WithText("continue_button", "button", "Continue shopping")
	probeEmail          = browser.Css("email", "input#ap_email")
	probeContinue       = browser.Css("continue", "input#continue, #continue input, #continue")
	probePassword       = browser.Css("password", "input#ap_password")
	probeSignIn         = browser.Css("sign_in", "input#signInSubmit, #signInSubmit")
	probeOtp            = browser.Css("otp", `input[id*="otp"]`)
	probeOtpSubmit      = browser.Css("otp_submit", "#auth-signin-button, input#auth-signin-button")
	probeDashboard      = browser.Css("dashboard", "#content")
	probePicker         = browser.WithText("picker", "h1", "Select an account")
	probeRangeSelector  = browser.Css("range_selector", "#range-selector")
	probeYesterday      = browser.WithText("yesterday", "a", "Yesterday")
)

const (
	selEmail    = "input#ap_email"
	selPassword = "input#ap_password"
	selOtp      = `input[id*="otp"]`
	selTable    = "table.imp-table tbody"
	selPageSize = `select[name="pageSizeDropDown"]`

	probeSortInfUnits = "#sort-3"
	maxPageSize       = "250"

	// The row probe budget is deliberately shorter than the action budget:
	// a rendered report with zero rows should resolve to confirmed-empty
	// quickly instead of burning a whole action timeout.
	rowProbeBudget = 20 * time.Second
)
