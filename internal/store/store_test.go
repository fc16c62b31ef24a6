package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"orgpulse/internal/pipeline"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestAddAndFindSignal(t *testing.T) {
	s := newTestStore(t)

	saved, err := s.AddSignal(pipeline.Signal{Type: "slack", Title: "hi", Content: "body"})
	if err != nil {
		t.Fatalf("AddSignal: %v", err)
	}
	if saved.ID == "" {
		t.Fatal("expected generated id")
	}

	got, err := s.FindSignal(saved.ID)
	if err != nil {
		t.Fatalf("FindSignal: %v", err)
	}
	if got.Title != "hi" {
		t.Fatalf("unexpected signal: %+v", got)
	}

	if _, err := s.FindSignal("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAddSignalKeepsProvidedID(t *testing.T) {
	s := newTestStore(t)
	saved, err := s.AddSignal(pipeline.Signal{ID: "slack-1", Content: "x"})
	if err != nil {
		t.Fatal(err)
	}
	if saved.ID != "slack-1" {
		t.Fatalf("id overwritten: %s", saved.ID)
	}
}

func TestLatestSignal(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.LatestSignal(); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on empty store, got %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := s.AddSignal(pipeline.Signal{ID: fmt.Sprintf("s%d", i), Content: "x"}); err != nil {
			t.Fatal(err)
		}
	}
	latest, err := s.LatestSignal()
	if err != nil {
		t.Fatal(err)
	}
	if latest.ID != "s2" {
		t.Fatalf("expected newest signal, got %s", latest.ID)
	}
}

func TestSignalCapEvictsOldest(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < MaxSignals+25; i++ {
		if _, err := s.AddSignal(pipeline.Signal{ID: fmt.Sprintf("s%d", i), Content: "x"}); err != nil {
			t.Fatalf("add %d: %v", i, err)
		}
	}
	signals, err := s.Signals()
	if err != nil {
		t.Fatal(err)
	}
	if len(signals) != MaxSignals {
		t.Fatalf("expected %d signals, got %d", MaxSignals, len(signals))
	}
	if signals[0].ID != "s25" {
		t.Fatalf("expected oldest surviving signal s25, got %s", signals[0].ID)
	}
	if signals[len(signals)-1].ID != fmt.Sprintf("s%d", MaxSignals+24) {
		t.Fatalf("newest signal missing, got %s", signals[len(signals)-1].ID)
	}
}

func TestStateRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}

	st, err := s.State()
	if err != nil {
		t.Fatalf("State on fresh store: %v", err)
	}
	if st.TruthVersions == nil || st.Conflicts == nil || st.Actions == nil {
		t.Fatal("fresh state must have initialized collections")
	}

	_, err = s.UpdateState(func(cur *pipeline.OrganizationalState) error {
		cur.LastSignalID = "sig_1"
		cur.ConflictSeq = 7
		return nil
	})
	if err != nil {
		t.Fatalf("UpdateState: %v", err)
	}

	// A second handle over the same directory sees the write.
	s2, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}
	st2, err := s2.State()
	if err != nil {
		t.Fatal(err)
	}
	if st2.LastSignalID != "sig_1" || st2.ConflictSeq != 7 {
		t.Fatalf("state not persisted: %+v", st2)
	}
}

func TestUpdateStateErrorLeavesFileUntouched(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.UpdateState(func(cur *pipeline.OrganizationalState) error {
		cur.LastSignalID = "first"
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	boom := errors.New("boom")
	if _, err := s.UpdateState(func(cur *pipeline.OrganizationalState) error {
		cur.LastSignalID = "second"
		return boom
	}); !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}
	st, _ := s.State()
	if st.LastSignalID != "first" {
		t.Fatalf("failed update leaked: %q", st.LastSignalID)
	}
}

func TestCorruptFileIsAnError(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "signals.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Signals(); err == nil {
		t.Fatal("expected error for corrupt signals file")
	}
}

func TestCompact(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 3; i++ {
		if _, err := s.AddSignal(pipeline.Signal{ID: fmt.Sprintf("s%d", i), Content: "x"}); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Compact(); err != nil {
		t.Fatalf("Compact: %v", err)
	}
	signals, err := s.Signals()
	if err != nil {
		t.Fatal(err)
	}
	if len(signals) != 3 {
		t.Fatalf("compact lost signals: %d", len(signals))
	}
}
