package assistant

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const stateVersion = 1

type persistedState struct {
	Version  int                 `json:"version"`
	Sessions map[string]*Session `json:"sessions"`
}

// LoadFile restores sessions saved by SaveFile. A missing file is not an
// error; the store simply starts empty.
func (s *SessionStore) LoadFile(path string) (int, error) {
	blob, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read session state: %w", err)
	}
	var state persistedState
	if err := json.Unmarshal(blob, &state); err != nil {
		return 0, fmt.Errorf("parse session state: %w", err)
	}
	if state.Version > stateVersion {
		return 0, fmt.Errorf("session state version %d is newer than supported %d", state.Version, stateVersion)
	}
	s.Restore(state.Sessions)
	return len(state.Sessions), nil
}

// SaveFile writes through a temp file and renames it into place.
func (s *SessionStore) SaveFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	blob, err := json.MarshalIndent(persistedState{Version: stateVersion, Sessions: s.Snapshot()}, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, blob, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
