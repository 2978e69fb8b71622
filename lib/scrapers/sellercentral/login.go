package sellercentral

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"infwatch/lib/browser"
	"infwatch/lib/timezone"

	"github.com/pquerna/otp/totp"
	"go.opentelemetry.io/otel/codes"
)

// LoginOptions configures one interactive login flow.
type LoginOptions struct {
	LoginURL    string
	ReportURL   string
	Credentials Credentials
	// ScreenshotDir enables diagnostic capture on failure when non-empty.
	// The retry orchestrator only sets it on the final attempt.
	ScreenshotDir string
}

// Login drives the interactive credential flow on p:
//
//	AwaitingEntry -> AwaitingEmail -> AwaitingPassword ->
//	AwaitingOtpOrDashboardOrPicker -> [AwaitingOtp -> AwaitingDashboardOrPicker]
//	-> [AwaitingPicker] -> Authenticated | Failed
//
// The entry interstitial shows up in two visual forms or not at all, and
// the post-password screen is a three-way race, so each transition probes
// every possible next element at once and branches on whichever appears
// first. Failures carry the stage that died.
func Login(ctx context.Context, p Page, opts LoginOptions) error {
	ctx, span := tracer.Start(ctx, "Login")
	defer span.End()

	err := runLogin(ctx, p, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "login failed")
		saveScreenshot(ctx, p, opts.ScreenshotDir, "login_failure")
		return err
	}
	slog.Info("login successful")
	return nil
}

func runLogin(ctx context.Context, p Page, opts LoginOptions) error {
	slog.Info("starting login flow")

	if err := p.Navigate(ctx, opts.LoginURL); err != nil {
		return loginErr("entry", err)
	}

	// the entry point may show an interstitial "continue" prompt in one
	// of two forms, or drop straight onto the email field.
	next, err := p.RaceVisible(ctx, 0, probeContinueInput, probeContinueButton, probeEmail)
	if err != nil {
		return loginErr("entry", err)
	}
	switch next {
	case probeContinueInput.Name:
		if err := p.Click(ctx, probeContinueInput); err != nil {
			return loginErr("entry", err)
		}
	case probeContinueButton.Name:
		if err := p.Click(ctx, probeContinueButton); err != nil {
			return loginErr("entry", err)
		}
	}

	if err := p.WaitVisible(ctx, probeEmail, 0); err != nil {
		return loginErr("email", err)
	}
	if err := p.Fill(ctx, selEmail, opts.Credentials.Email); err != nil {
		return loginErr("email", err)
	}
	if err := p.Click(ctx, probeContinue); err != nil {
		return loginErr("email", err)
	}

	if err := p.WaitVisible(ctx, probePassword, 0); err != nil {
		if isTimeout(err) {
			return loginErr("email", ErrCredentialRejected)
		}
		return loginErr("password", err)
	}
	if err := p.Fill(ctx, selPassword, opts.Credentials.Password); err != nil {
		return loginErr("password", err)
	}
	if err := p.Click(ctx, probeSignIn); err != nil {
		return loginErr("password", err)
	}

	// three possible next screens race: the OTP field, the authenticated
	// dashboard, or the account-disambiguation picker.
	next, err = p.RaceVisible(ctx, 0, probeOtp, probeDashboard, probePicker)
	if err != nil {
		if isTimeout(err) {
			return loginErr("password", ErrCredentialRejected)
		}
		return loginErr("post_password", err)
	}

	if next == probeOtp.Name {
		if err := submitOtp(ctx, p, opts.Credentials.OtpSecret); err != nil {
			return err
		}
		// same race again, minus the OTP branch.
		next, err = p.RaceVisible(ctx, 0, probeDashboard, probePicker)
		if err != nil {
			return loginErr("post_otp", err)
		}
	}

	confirm := probeDashboard
	if next == probePicker.Name {
		// the machine never interacts with the picker's choices, it
		// navigates straight to the target report as a bypass.
		slog.Warn("account picker shown, navigating directly to the report to bypass")
		if err := p.Navigate(ctx, opts.ReportURL); err != nil {
			return loginErr("picker", errors.Join(ErrPickerBypassFailed, err))
		}
		if err := p.WaitVisible(ctx, probeRangeSelector, 0); err != nil {
			return loginErr("picker", errors.Join(ErrPickerBypassFailed, err))
		}
		confirm = probeRangeSelector
	}

	if err := p.WaitVisible(ctx, confirm, 0); err != nil {
		return loginErr("dashboard", err)
	}
	return nil
}

func submitOtp(ctx context.Context, p Page, secret string) error {
	if secret == "" {
		return loginErr("otp", fmt.Errorf("otp requested but no shared secret configured"))
	}
	code, err := totp.GenerateCode(secret, timezone.Now())
	if err != nil {
		return loginErr("otp", err)
	}
	if err := p.Fill(ctx, selOtp, code); err != nil {
		return loginErr("otp", err)
	}
	if err := p.Click(ctx, probeOtpSubmit); err != nil {
		return loginErr("otp", err)
	}
	return nil
}

// PrimeSession logs in on a throwaway context and returns the fresh
// storage state. It visits the report page before capturing so the
// session's cookies are fully settled; persistence is the caller's call.
func PrimeSession(ctx context.Context, b *browser.Browser, opts LoginOptions) (*browser.StorageState, error) {
	ctx, span := tracer.Start(ctx, "PrimeSession")
	defer span.End()

	c, err := b.NewContext(ctx, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to open browsing context")
		return nil, err
	}
	defer c.Close()

	if err := Login(ctx, c, opts); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "login failed")
		return nil, err
	}

	slog.Info("visiting report page to finalize session")
	if err := c.Navigate(ctx, opts.ReportURL); err != nil {
		slog.Warn("report navigation after login failed", "err", err)
	} else if err := c.WaitVisible(ctx, probeRangeSelector, 0); err != nil {
		slog.Warn("report marker did not appear after login", "err", err)
	}

	state, err := c.StorageState(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to capture storage state")
		return nil, err
	}
	return state, nil
}
