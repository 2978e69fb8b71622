package sellercentral

import (
	"context"
	"errors"
	"testing"

	"infwatch/lib/browser"

	"github.com/stretchr/testify/require"
)

const probeURL = "https://example.com/report"

func TestNeedsLoginFailClosedOnProbeError(t *testing.T) {
	f := newFakePage()
	f.navigateErr = func(string) error { return errors.New("connection reset") }

	require.True(t, NeedsLogin(context.Background(), f, probeURL))
}

func TestNeedsLoginOnSigninRedirect(t *testing.T) {
	for _, redirect := range []string{
		"https://example.com/ap/signin?x=1",
		"https://example.com/SignIn",
		"https://example.com/ap/challenge",
	} {
		f := newFakePage()
		f.navigateErr = func(string) error {
			f.location = redirect
			return nil
		}
		require.True(t, NeedsLogin(context.Background(), f, probeURL), redirect)
	}
}

func TestNeedsLoginWhenMarkerNeverAppears(t *testing.T) {
	f := newFakePage()
	f.visible = func(p browser.Probe) bool { return false }

	require.True(t, NeedsLogin(context.Background(), f, probeURL))
}

func TestNeedsLoginFalseWhenMarkerVisible(t *testing.T) {
	f := newFakePage()
	f.visible = func(p browser.Probe) bool {
		return p.Name == probeRangeSelector.Name
	}

	require.False(t, NeedsLogin(context.Background(), f, probeURL))
}
