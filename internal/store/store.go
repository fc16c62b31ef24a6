// Package store persists the two service documents, the bounded signal
// list and the organizational state, as flat JSON files under a data
// directory. A single mutex serialises every read-merge-write cycle so
// concurrent pipeline runs cannot lose updates.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"orgpulse/internal/pipeline"
)

// SchemaVersion is stamped into both documents so future format changes can
// be detected instead of misparsed.
const SchemaVersion = 1

// MaxSignals bounds the signal list; the oldest entries are evicted first.
// Callers must tolerate this soft data-loss boundary.
const MaxSignals = 500

const (
	signalsFile = "signals.json"
	stateFile   = "state.json"
)

// ErrNotFound is returned when a signal id has no match.
var ErrNotFound = errors.New("store: signal not found")

type signalsDoc struct {
	SchemaVersion int               `json:"schema_version"`
	Signals       []pipeline.Signal `json:"signals"`
}

type stateDoc struct {
	SchemaVersion int                          `json:"schema_version"`
	State         pipeline.OrganizationalState `json:"state"`
}

// Store is the durable key-value layer. Safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	dataDir string
}

func New(dataDir string) (*Store, error) {
	if dataDir == "" {
		dataDir = "data"
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("store: create data dir: %w", err)
	}
	return &Store{dataDir: dataDir}, nil
}

// Signals returns the full signal list, oldest first.
func (s *Store) Signals() ([]pipeline.Signal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.loadSignals()
	if err != nil {
		return nil, err
	}
	return doc.Signals, nil
}

// FindSignal looks a signal up by id.
func (s *Store) FindSignal(id string) (pipeline.Signal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.loadSignals()
	if err != nil {
		return pipeline.Signal{}, err
	}
	for _, sig := range doc.Signals {
		if sig.ID == id {
			return sig, nil
		}
	}
	return pipeline.Signal{}, ErrNotFound
}

// LatestSignal returns the most recently ingested signal.
func (s *Store) LatestSignal() (pipeline.Signal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.loadSignals()
	if err != nil {
		return pipeline.Signal{}, err
	}
	if len(doc.Signals) == 0 {
		return pipeline.Signal{}, ErrNotFound
	}
	return doc.Signals[len(doc.Signals)-1], nil
}

// AddSignal appends a signal, assigning an id when the caller supplied none,
// and truncates the list to the newest MaxSignals entries.
func (s *Store) AddSignal(sig pipeline.Signal) (pipeline.Signal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.loadSignals()
	if err != nil {
		return pipeline.Signal{}, err
	}
	if sig.ID == "" {
		sig.ID = NewSignalID()
	}
	doc.Signals = append(doc.Signals, sig)
	if len(doc.Signals) > MaxSignals {
		doc.Signals = doc.Signals[len(doc.Signals)-MaxSignals:]
	}
	if err := s.saveJSON(signalsFile, doc); err != nil {
		return pipeline.Signal{}, err
	}
	return sig, nil
}

// NewSignalID generates a monotonically-unique signal id.
func NewSignalID() string {
	return fmt.Sprintf("sig_%d_%s", time.Now().UnixMilli(), uuid.NewString()[:8])
}

// State returns the organizational state document.
func (s *Store) State() (pipeline.OrganizationalState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.loadState()
	if err != nil {
		return pipeline.OrganizationalState{}, err
	}
	return doc.State, nil
}

// UpdateState applies fn to the current state under the store lock and
// persists the result atomically. This is the only write path for the state
// document, so every pipeline stage overlay is a serialised
// read-merge-write.
func (s *Store) UpdateState(fn func(*pipeline.OrganizationalState) error) (pipeline.OrganizationalState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.loadState()
	if err != nil {
		return pipeline.OrganizationalState{}, err
	}
	if err := fn(&doc.State); err != nil {
		return pipeline.OrganizationalState{}, err
	}
	doc.SchemaVersion = SchemaVersion
	if err := s.saveJSON(stateFile, doc); err != nil {
		return pipeline.OrganizationalState{}, err
	}
	return doc.State, nil
}

// Compact rewrites both documents in canonical form, re-applying the signal
// cap. Run by the janitor.
func (s *Store) Compact() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sigs, err := s.loadSignals()
	if err != nil {
		return err
	}
	if len(sigs.Signals) > MaxSignals {
		sigs.Signals = sigs.Signals[len(sigs.Signals)-MaxSignals:]
	}
	if err := s.saveJSON(signalsFile, sigs); err != nil {
		return err
	}
	st, err := s.loadState()
	if err != nil {
		return err
	}
	st.SchemaVersion = SchemaVersion
	return s.saveJSON(stateFile, st)
}

func (s *Store) loadSignals() (signalsDoc, error) {
	doc := signalsDoc{SchemaVersion: SchemaVersion, Signals: []pipeline.Signal{}}
	if err := s.loadJSON(signalsFile, &doc); err != nil {
		return signalsDoc{}, err
	}
	if doc.Signals == nil {
		doc.Signals = []pipeline.Signal{}
	}
	return doc, nil
}

func (s *Store) loadState() (stateDoc, error) {
	doc := stateDoc{SchemaVersion: SchemaVersion, State: pipeline.DefaultState()}
	if err := s.loadJSON(stateFile, &doc); err != nil {
		return stateDoc{}, err
	}
	return doc, nil
}

// loadJSON fills out from the named file, leaving the provided defaults in
// place when the file does not exist yet. A file that exists but cannot be
// parsed is an error; silently resetting state would hide corruption.
func (s *Store) loadJSON(name string, out any) error {
	b, err := os.ReadFile(filepath.Join(s.dataDir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("store: read %s: %w", name, err)
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("store: parse %s: %w", name, err)
	}
	return nil
}

// saveJSON writes via a temp file and rename so readers never observe a
// partially-written document.
func (s *Store) saveJSON(name string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("store: marshal %s: %w", name, err)
	}
	path := filepath.Join(s.dataDir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("store: write %s: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("store: rename %s: %w", name, err)
	}
	return nil
}
