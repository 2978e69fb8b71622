// Package retry provides the bounded-attempt loop shared by the login and
// scrape flows. The two call sites differ only in how they classify an
// attempt's outcome, so the classification is a parameter instead of two
// hand-rolled loops.
package retry

import (
	"context"
	"log/slog"
)

type Outcome int

const (
	// Success means the attempt produced a usable value.
	Success Outcome = iota
	// Stop means the attempt is terminal but not an error, e.g. a report
	// that genuinely contains zero rows. The loop returns the value as-is
	// without burning further attempts.
	Stop
	// Retry means the attempt failed in a way another attempt might fix.
	Retry
)

// Classifier maps one attempt's result to an Outcome.
type Classifier[T any] func(value T, err error) Outcome

type Options struct {
	// Name shows up in attempt logs.
	Name string
	// Attempts is the total bound, not a "retries after the first" count.
	Attempts int
	// OnExhausted runs once, after the final failed attempt, before Do
	// returns. Used for diagnostic capture (screenshots).
	OnExhausted func(ctx context.Context)
}

// Do runs op up to opts.Attempts times. It returns the last value together
// with the outcome of the final classification; callers distinguish
// exhausted failure by the returned error being non-nil.
func Do[T any](
	ctx context.Context,
	opts Options,
	op func(ctx context.Context, attempt int) (T, error),
	classify Classifier[T],
) (T, Outcome, error) {
	var value T
	var err error
	outcome := Retry

	attempts := opts.Attempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return value, Retry, ctx.Err()
		}

		value, err = op(ctx, attempt)
		outcome = classify(value, err)
		if outcome != Retry {
			return value, outcome, nil
		}

		slog.Warn("attempt failed",
			"op", opts.Name,
			"attempt", attempt,
			"of", attempts,
			"err", errString(err),
		)
	}

	slog.Error("all attempts exhausted", "op", opts.Name, "attempts", attempts)
	if opts.OnExhausted != nil {
		opts.OnExhausted(ctx)
	}
	if err == nil {
		err = context.Cause(ctx)
	}
	return value, Retry, &ExhaustedError{Op: opts.Name, Attempts: attempts, Last: err}
}

type ExhaustedError struct {
	Op       string
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	if e.Last == nil {
		return e.Op + ": attempts exhausted"
	}
	return e.Op + ": attempts exhausted: " + e.Last.Error()
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

func errString(err error) string {
	if err == nil {
		return "<nil>"
	}
	return err.Error()
}
