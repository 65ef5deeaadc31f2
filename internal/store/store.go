// Package store persists the paper-trading state as a single JSON file.
//
// The whole portfolio (balance, counters, open positions, trade log) is
// written in one document. Writes use atomic file replacement (write to
// .tmp, then rename) to prevent corruption from partial writes or crashes
// mid-save. The engine calls Save after every state mutation and Load on
// startup to resume where it left off.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"polymarket-sniper/internal/market"
	"polymarket-sniper/pkg/types"
)

// State is the on-disk document. Portfolio fields are flattened into the
// top level so the file stays readable by hand.
type State struct {
	types.Portfolio
	Positions []types.Position `json:"positions"`
	Trades    []types.Trade    `json:"trades"`
}

// Store persists the state document to a single JSON file.
// All operations are mutex-protected to prevent concurrent file corruption.
type Store struct {
	path string     // target JSON file
	mu   sync.Mutex // serializes all file operations
}

// Open creates a store backed by the given file path, creating parent
// directories as needed.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	return &Store{path: path}, nil
}

// Close is a no-op for file-based storage.
func (s *Store) Close() error {
	return nil
}

// Save atomically persists the full state. It writes to a .tmp file first,
// then renames over the target to ensure the file is never left in a
// partial state (crash-safe).
func (s *Store) Save(state *State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	return os.Rename(tmp, s.path)
}

// Load restores the state from disk. Returns nil, nil if no saved state
// exists (fresh start). Positions saved by older versions without a strike
// are backfilled from the market question where possible.
func (s *Store) Load() (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read state: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}

	if state.Positions == nil {
		state.Positions = []types.Position{}
	}
	if state.Trades == nil {
		state.Trades = []types.Trade{}
	}
	for i := range state.Positions {
		if state.Positions[i].Strike == 0 {
			if strike, ok := market.ParseStrikeFromQuestion(state.Positions[i].Question); ok {
				state.Positions[i].Strike = strike
			}
		}
	}

	return &state, nil
}
