package retry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func retryOnError[T any](value T, err error) Outcome {
	if err != nil {
		return Retry
	}
	return Success
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	calls := 0
	v, outcome, err := Do(context.Background(), Options{Name: "op", Attempts: 3},
		func(ctx context.Context, attempt int) (int, error) {
			calls++
			return 42, nil
		}, retryOnError[int])

	require.NoError(t, err)
	require.Equal(t, Success, outcome)
	require.Equal(t, 42, v)
	require.Equal(t, 1, calls)
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	calls := 0
	v, outcome, err := Do(context.Background(), Options{Name: "op", Attempts: 3},
		func(ctx context.Context, attempt int) (string, error) {
			calls++
			if attempt < 3 {
				return "", errors.New("flaky")
			}
			return "done", nil
		}, retryOnError[string])

	require.NoError(t, err)
	require.Equal(t, Success, outcome)
	require.Equal(t, "done", v)
	require.Equal(t, 3, calls)
}

func TestDoExhaustsAttempts(t *testing.T) {
	calls := 0
	last := errors.New("still broken")
	_, _, err := Do(context.Background(), Options{Name: "op", Attempts: 3},
		func(ctx context.Context, attempt int) (int, error) {
			calls++
			return 0, last
		}, retryOnError[int])

	require.Equal(t, 3, calls)

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.Equal(t, 3, exhausted.Attempts)
	require.ErrorIs(t, err, last)
}

func TestDoStopShortCircuits(t *testing.T) {
	// "confirmed empty" style outcome: not an error, but terminal
	calls := 0
	classify := func(v []string, err error) Outcome {
		if err != nil {
			return Retry
		}
		if len(v) == 0 {
			return Stop
		}
		return Success
	}

	v, outcome, err := Do(context.Background(), Options{Name: "scrape", Attempts: 3},
		func(ctx context.Context, attempt int) ([]string, error) {
			calls++
			return nil, nil
		}, classify)

	require.NoError(t, err)
	require.Equal(t, Stop, outcome)
	require.Empty(t, v)
	require.Equal(t, 1, calls)
}

func TestDoAttemptNumbersArePassedThrough(t *testing.T) {
	var seen []int
	_, _, _ = Do(context.Background(), Options{Name: "op", Attempts: 2},
		func(ctx context.Context, attempt int) (struct{}, error) {
			seen = append(seen, attempt)
			return struct{}{}, errors.New("nope")
		}, retryOnError[struct{}])

	require.Equal(t, []int{1, 2}, seen)
}

func TestDoHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, _, err := Do(ctx, Options{Name: "op", Attempts: 3},
		func(ctx context.Context, attempt int) (int, error) {
			calls++
			return 0, nil
		}, retryOnError[int])

	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, calls)
}
