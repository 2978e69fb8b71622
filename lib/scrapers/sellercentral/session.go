package sellercentral

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"infwatch/lib/browser"
)

// SessionStore persists one origin's authentication state to a file. The
// blob is opaque beyond requiring a non-empty cookie collection to count
// as present.
type SessionStore struct {
	Path string
}

// HasValidSession reports whether a loadable session exists: the file is
// present, non-empty, parses, and carries at least one cookie. Parse
// failures are absorbed, a broken blob is just "no session".
func (s SessionStore) HasValidSession() bool {
	state, err := s.Load()
	if err != nil {
		return false
	}
	return len(state.Cookies) > 0
}

// Load deserializes the persisted blob. A blob that exists but does not
// parse fails with ErrStorageCorrupt; callers treat that identically to a
// missing session.
func (s SessionStore) Load() (*browser.StorageState, error) {
	raw, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty file", ErrStorageCorrupt)
	}
	var state browser.StorageState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrStorageCorrupt, err)
	}
	return &state, nil
}

// Save overwrites the persisted blob. Writes go to a temp file first and
// rename into place so an interrupted write can never leave the previous
// session unloadable.
func (s SessionStore) Save(state *browser.StorageState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.Path)+".tmp*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.Path)
}
