package sellercentral

import (
	"context"
	"errors"
	"fmt"

	"github.com/chromedp/chromedp"
)

// ErrStorageCorrupt marks a persisted session blob that exists but cannot
// be parsed. Callers must treat it exactly like "no session".
var ErrStorageCorrupt = errors.New("session storage state is corrupt")

// ErrCredentialRejected marks a login flow that never advanced past the
// email or password step within the bounded wait.
var ErrCredentialRejected = errors.New("credentials rejected")

// ErrPickerBypassFailed marks an account-picker screen that the direct
// report-URL bypass could not get past.
var ErrPickerBypassFailed = errors.New("account picker bypass failed")

// LoginError records which stage of the login state machine failed.
type LoginError struct {
	Stage string
	Err   error
}

func (e *LoginError) Error() string {
	return fmt.Sprintf("login failed at %s: %s", e.Stage, e.Err)
}

func (e *LoginError) Unwrap() error {
	return e.Err
}

func loginErr(stage string, err error) error {
	return &LoginError{Stage: stage, Err: err}
}

// isTimeout reports whether err is a bounded-wait expiry rather than some
// other failure. Both the per-operation deadline and the polling wait
// surface differently.
func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, chromedp.ErrPollingTimeout)
}
