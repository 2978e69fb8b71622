package infreport

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"infwatch/lib/timezone"
)

// logTimeLayout is the run-log timestamp format, local time at second
// precision. The date prefix is what the dedup window keys on.
const logTimeLayout = "2006-01-02 15:04:05"

// LogEntry is one appended run: the store it ran against and every item
// that was reported.
type LogEntry struct {
	Timestamp string       `json:"timestamp"`
	Store     string       `json:"store"`
	Items     []ReportItem `json:"inf_items"`
}

// RunLog is an append-only JSONL history of reported items. Appends are
// serialized so concurrent writers cannot interleave partial lines.
type RunLog struct {
	Path string

	mu sync.Mutex
}

func NewRunLog(path string) *RunLog {
	return &RunLog{Path: path}
}

// Append writes one entry stamped with the current local time, creating
// parent directories as needed.
func (l *RunLog) Append(store string, items []ReportItem) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := LogEntry{
		Timestamp: timezone.Now().Format(logTimeLayout),
		Store:     store,
		Items:     items,
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(l.Path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(l.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append run log: %w", err)
	}
	return nil
}

// ReadEntries parses the whole log. Malformed lines are skipped with a
// warning so one corrupt write cannot poison the history. A missing log
// file is an empty history, not an error.
func (l *RunLog) ReadEntries() ([]LogEntry, error) {
	f, err := os.Open(l.Path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []LogEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var entry LogEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			slog.Warn("skipping malformed run log line", "line", lineNo, "err", err)
			continue
		}
		entries = append(entries, entry)
	}
	return entries, scanner.Err()
}

// FilterPostedToday drops items whose SKU was already logged under
// today's calendar date in the local zone. Entries from previous days
// never suppress anything.
func (l *RunLog) FilterPostedToday(items []ReportItem) ([]ReportItem, error) {
	entries, err := l.ReadEntries()
	if err != nil {
		return nil, err
	}

	today := timezone.Now().Format(time.DateOnly)
	posted := make(map[string]bool)
	for _, entry := range entries {
		t, err := time.ParseInLocation(logTimeLayout, entry.Timestamp, timezone.Location)
		if err != nil {
			slog.Warn("skipping run log entry with bad timestamp", "timestamp", entry.Timestamp)
			continue
		}
		if t.Format(time.DateOnly) != today {
			continue
		}
		for _, item := range entry.Items {
			posted[item.SKU] = true
		}
	}

	var fresh []ReportItem
	for _, item := range items {
		if posted[item.SKU] {
			slog.Info("suppressing item already posted today", "sku", item.SKU)
			continue
		}
		fresh = append(fresh, item)
	}
	return fresh, nil
}
