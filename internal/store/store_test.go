package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"polymarket-sniper/pkg/types"
)

func testState() *State {
	now := time.Now().UTC().Truncate(time.Second)
	return &State{
		Portfolio: types.Portfolio{
			Balance:        9950,
			InitialBalance: 10000,
			PnLToday:       -50,
			TotalTrades:    3,
			WinningTrades:  1,
		},
		Positions: []types.Position{{
			ID:         "PT-0003",
			MarketID:   "m1",
			Question:   "Will BTC be above $90,000 at close?",
			Side:       types.OutcomeUp,
			EntryPrice: 0.42,
			Amount:     50,
			Shares:     119.05,
			Strike:     90000,
			OpenedAt:   now,
			ExpiresAt:  now.Add(10 * time.Minute),
		}},
		Trades: []types.Trade{{
			ID:         "PT-0002",
			MarketID:   "m0",
			Side:       types.OutcomeDown,
			EntryPrice: 0.55,
			Amount:     40,
			PnL:        -40,
			Status:     types.TradeLost,
			OpenedAt:   now.Add(-time.Hour),
			SettledAt:  now.Add(-45 * time.Minute),
		}},
	}
}

func TestSaveAndLoad(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "data", "paper_state.json")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	want := testState()
	if err := s.Save(want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded == nil {
		t.Fatal("Load returned nil")
	}

	if loaded.Balance != want.Balance || loaded.InitialBalance != want.InitialBalance {
		t.Errorf("portfolio = %+v, want %+v", loaded.Portfolio, want.Portfolio)
	}
	if len(loaded.Positions) != 1 || loaded.Positions[0].ID != "PT-0003" {
		t.Errorf("positions = %+v", loaded.Positions)
	}
	if len(loaded.Trades) != 1 || loaded.Trades[0].Status != types.TradeLost {
		t.Errorf("trades = %+v", loaded.Trades)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "paper_state.json")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	loaded, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded != nil {
		t.Errorf("expected nil for missing state, got %+v", loaded)
	}
}

func TestSaveOverwrites(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "paper_state.json")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	first := testState()
	second := testState()
	second.Balance = 8800

	_ = s.Save(first)
	_ = s.Save(second)

	loaded, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Balance != 8800 {
		t.Errorf("Balance = %v, want 8800 (latest save)", loaded.Balance)
	}
}

func TestLoadBackfillsStrikeFromQuestion(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "paper_state.json")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	state := testState()
	state.Positions[0].Strike = 0
	state.Positions[0].Question = "Will BTC be above $92,500 at close?"
	if err := s.Save(state); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Positions[0].Strike != 92500 {
		t.Errorf("Strike = %v, want 92500 backfilled from question", loaded.Positions[0].Strike)
	}
}

func TestLoadNormalizesNilSlices(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "paper_state.json")

	if err := os.WriteFile(path, []byte(`{"balance":10000,"initial_balance":10000}`), 0o600); err != nil {
		t.Fatal(err)
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	loaded, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Positions == nil || loaded.Trades == nil {
		t.Error("slices should be non-nil after load")
	}
}

func TestLoadRejectsCorruptFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "paper_state.json")

	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if _, err := s.Load(); err == nil {
		t.Error("expected error for corrupt state file")
	}
}
