package sellercentral

import (
	"context"
	"errors"
	"sync"
	"time"

	"infwatch/lib/browser"
)

// fakePage is a scriptable Page. Zero-value behavior is "everything
// succeeds, nothing is visible"; tests override the hooks they care about.
type fakePage struct {
	mu sync.Mutex

	location  string
	navigated []string
	filled    map[string]string
	clicked   []string
	selected  map[string]string

	// firstRow backs TextContent and PollFirstRowChange so the
	// mutation-wait protocol can be exercised against real drift.
	firstRow string

	navigateErr func(url string) error
	urlErr      error
	// visible decides probe visibility for WaitVisible/RaceVisible.
	visible func(p browser.Probe) bool
	// raceErr overrides the outcome of a wait when no probe is visible.
	raceErr   error
	fillErr   func(sel string) error
	clickErr  func(p browser.Probe) error
	selectErr func(sel, value string) error
	rows      []browser.TableRow
	rowsErr   error
	pollErr   func(tableSel, before string) error
	waitErrs  map[string]error
}

func newFakePage() *fakePage {
	return &fakePage{
		filled:   map[string]string{},
		selected: map[string]string{},
	}
}

func (f *fakePage) setFirstRow(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.firstRow = text
}

func (f *fakePage) Navigate(ctx context.Context, url string) error {
	f.mu.Lock()
	f.navigated = append(f.navigated, url)
	f.location = url
	f.mu.Unlock()
	if f.navigateErr != nil {
		return f.navigateErr(url)
	}
	return nil
}

func (f *fakePage) URL(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.location, f.urlErr
}

func (f *fakePage) WaitVisible(ctx context.Context, probe browser.Probe, budget time.Duration) error {
	if err, ok := f.waitErrs[probe.Name]; ok {
		return err
	}
	if f.visible != nil && f.visible(probe) {
		return nil
	}
	if f.raceErr != nil {
		return f.raceErr
	}
	if f.visible == nil {
		return nil
	}
	return context.DeadlineExceeded
}

func (f *fakePage) RaceVisible(ctx context.Context, budget time.Duration, probes ...browser.Probe) (string, error) {
	for _, p := range probes {
		if f.visible != nil && f.visible(p) {
			return p.Name, nil
		}
	}
	if f.raceErr != nil {
		return "", f.raceErr
	}
	return "", context.DeadlineExceeded
}

func (f *fakePage) Click(ctx context.Context, probe browser.Probe) error {
	if f.clickErr != nil {
		if err := f.clickErr(probe); err != nil {
			return err
		}
	}
	f.mu.Lock()
	f.clicked = append(f.clicked, probe.Name)
	f.mu.Unlock()
	return nil
}

func (f *fakePage) Fill(ctx context.Context, sel, value string) error {
	if f.fillErr != nil {
		if err := f.fillErr(sel); err != nil {
			return err
		}
	}
	f.mu.Lock()
	f.filled[sel] = value
	f.mu.Unlock()
	return nil
}

func (f *fakePage) SelectOption(ctx context.Context, sel, value string) error {
	if f.selectErr != nil {
		if err := f.selectErr(sel, value); err != nil {
			return err
		}
	}
	f.mu.Lock()
	f.selected[sel] = value
	f.mu.Unlock()
	return nil
}

func (f *fakePage) TextContent(ctx context.Context, sel string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.firstRow, nil
}

func (f *fakePage) TableRows(ctx context.Context, tableSel string) ([]browser.TableRow, error) {
	return f.rows, f.rowsErr
}

func (f *fakePage) PollFirstRowChange(ctx context.Context, tableSel, before string, budget time.Duration) error {
	if f.pollErr != nil {
		if err := f.pollErr(tableSel, before); err != nil {
			return err
		}
	}
	if budget == 0 {
		budget = 500 * time.Millisecond
	}
	deadline := time.Now().Add(budget)
	for {
		f.mu.Lock()
		current := f.firstRow
		f.mu.Unlock()
		if current != before {
			return nil
		}
		if time.Now().After(deadline) {
			return context.DeadlineExceeded
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (f *fakePage) SettleDelay() time.Duration {
	return time.Millisecond
}

func (f *fakePage) Screenshot(ctx context.Context) ([]byte, error) {
	return nil, errors.New("no screenshot in tests")
}

var _ Page = (*fakePage)(nil)
