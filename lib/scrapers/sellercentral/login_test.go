package sellercentral

import (
	"context"
	"errors"
	"testing"

	"infwatch/lib/browser"
	"infwatch/lib/telemetry"

	"github.com/stretchr/testify/require"
)

// valid base32 TOTP secret for tests
const testOtpSecret = "JBSWY3DPEHPK3PXP"

func testLoginOptions() LoginOptions {
	return LoginOptions{
		LoginURL:  "https://example.com/login",
		ReportURL: "https://example.com/report",
		Credentials: Credentials{
			Email:     "user@example.com",
			Password:  "hunter2",
			OtpSecret: testOtpSecret,
		},
	}
}

func TestLoginOtpBranch(t *testing.T) {
	cleanup := telemetry.SetupForTesting("test:sellercentral")
	defer cleanup()

	f := newFakePage()
	otpDone := false
	f.visible = func(p browser.Probe) bool {
		switch p.Name {
		case probeEmail.Name, probePassword.Name:
			return true
		case probeOtp.Name:
			return !otpDone
		case probeDashboard.Name:
			return otpDone
		}
		return false
	}
	f.fillErr = func(sel string) error {
		if sel == selOtp {
			otpDone = true
		}
		return nil
	}

	err := Login(context.Background(), f, testLoginOptions())
	require.NoError(t, err)

	require.Equal(t, "user@example.com", f.filled[selEmail])
	require.Equal(t, "hunter2", f.filled[selPassword])
	require.Len(t, f.filled[selOtp], 6)
	require.Contains(t, f.clicked, probeOtpSubmit.Name)
}

func TestLoginEntryInterstitial(t *testing.T) {
	f := newFakePage()
	sawInterstitial := false
	f.visible = func(p browser.Probe) bool {
		switch p.Name {
		case probeContinueButton.Name:
			return !sawInterstitial
		case probeEmail.Name:
			return sawInterstitial
		case probePassword.Name, probeDashboard.Name:
			return true
		}
		return false
	}
	f.clickErr = func(p browser.Probe) error {
		if p.Name == probeContinueButton.Name {
			sawInterstitial = true
		}
		return nil
	}

	err := Login(context.Background(), f, testLoginOptions())
	require.NoError(t, err)
	require.Contains(t, f.clicked, probeContinueButton.Name)
}

func TestLoginPickerBypass(t *testing.T) {
	f := newFakePage()
	bypassed := false
	f.visible = func(p browser.Probe) bool {
		switch p.Name {
		case probeEmail.Name, probePassword.Name:
			return true
		case probePicker.Name:
			return !bypassed
		case probeRangeSelector.Name:
			return bypassed
		}
		return false
	}
	opts := testLoginOptions()
	f.navigateErr = func(url string) error {
		if url == opts.ReportURL {
			bypassed = true
		}
		return nil
	}

	err := Login(context.Background(), f, opts)
	require.NoError(t, err)
	require.Contains(t, f.navigated, opts.ReportURL)
}

func TestLoginPickerBypassFailed(t *testing.T) {
	f := newFakePage()
	f.visible = func(p browser.Probe) bool {
		switch p.Name {
		case probeEmail.Name, probePassword.Name, probePicker.Name:
			return true
		}
		return false
	}

	err := Login(context.Background(), f, testLoginOptions())
	require.Error(t, err)
	require.ErrorIs(t, err, ErrPickerBypassFailed)

	var lerr *LoginError
	require.ErrorAs(t, err, &lerr)
	require.Equal(t, "picker", lerr.Stage)
}

func TestLoginCredentialRejected(t *testing.T) {
	f := newFakePage()
	f.visible = func(p browser.Probe) bool {
		// password never shows up after the email step
		return p.Name == probeEmail.Name
	}

	err := Login(context.Background(), f, testLoginOptions())
	require.ErrorIs(t, err, ErrCredentialRejected)
}

func TestLoginOtpWithoutSecret(t *testing.T) {
	f := newFakePage()
	f.visible = func(p browser.Probe) bool {
		switch p.Name {
		case probeEmail.Name, probePassword.Name, probeOtp.Name:
			return true
		}
		return false
	}

	opts := testLoginOptions()
	opts.Credentials.OtpSecret = ""
	err := Login(context.Background(), f, opts)

	var lerr *LoginError
	require.ErrorAs(t, err, &lerr)
	require.Equal(t, "otp", lerr.Stage)
}

func TestLoginStageRecordedOnEntryFailure(t *testing.T) {
	f := newFakePage()
	boom := errors.New("net down")
	f.navigateErr = func(string) error { return boom }

	err := Login(context.Background(), f, testLoginOptions())
	var lerr *LoginError
	require.ErrorAs(t, err, &lerr)
	require.Equal(t, "entry", lerr.Stage)
	require.ErrorIs(t, err, boom)
}
