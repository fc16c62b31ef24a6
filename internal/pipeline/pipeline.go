// Package pipeline orchestrates the LLM-backed transformation stages
// (classify, merge-graph, detect-conflicts, extract-truth, suggest-actions,
// query) and merges their untrusted JSON outputs into the persistent
// organizational state.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/singleflight"

	"orgpulse/config"
	"orgpulse/internal/llm"
	"orgpulse/internal/telemetry"
)

// ErrNoSignal is returned when a pipeline run has no signal to work on.
var ErrNoSignal = errors.New("pipeline: no signal found")

// Storage is the slice of the store the orchestrator needs. Implemented by
// *store.Store.
type Storage interface {
	FindSignal(id string) (Signal, error)
	LatestSignal() (Signal, error)
	State() (OrganizationalState, error)
	UpdateState(fn func(*OrganizationalState) error) (OrganizationalState, error)
}

// Pipeline is the orchestrator. All exported methods are safe for
// concurrent use; state writes are serialised by the store and lazy
// computations are deduplicated per cache key via singleflight.
type Pipeline struct {
	cfg      config.LLMConfig
	provider llm.Provider
	store    Storage
	metrics  *telemetry.Telemetry
	logger   *log.Logger
	group    singleflight.Group
}

func New(cfg config.LLMConfig, provider llm.Provider, st Storage, metrics *telemetry.Telemetry) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		provider: provider,
		store:    st,
		metrics:  metrics,
		logger:   log.New(log.Writer(), "[PIPE] ", log.LstdFlags),
	}
}

// resolveSignal returns the signal with the given id, or the most recent
// one when id is empty.
func (p *Pipeline) resolveSignal(id string) (Signal, error) {
	var (
		sig Signal
		err error
	)
	if id == "" {
		sig, err = p.store.LatestSignal()
	} else {
		sig, err = p.store.FindSignal(id)
	}
	if err != nil {
		return Signal{}, ErrNoSignal
	}
	return sig, nil
}

func signalContent(sig Signal) string {
	if sig.Content != "" {
		return sig.Content
	}
	return sig.Title
}

// truthTimestamp renders the human-readable timestamp stored on each truth
// version.
func truthTimestamp(t time.Time) string {
	return t.Format("1/2/2006, 3:04:05 PM")
}

// ProcessSignal runs the full fixed-order pipeline for one signal:
// classify → merge-graph → detect-conflicts → extract-truth →
// suggest-actions. All stage outputs are collected in memory and persisted
// in a single atomic write at the end, so a failed stage leaves the stored
// state untouched.
func (p *Pipeline) ProcessSignal(ctx context.Context, signalID string) (ProcessResult, error) {
	sig, err := p.resolveSignal(signalID)
	if err != nil {
		return ProcessResult{}, err
	}
	content := signalContent(sig)

	prev, err := p.store.State()
	if err != nil {
		return ProcessResult{}, err
	}
	graphBefore := prev.GraphAfter

	classification, err := p.classify(ctx, content)
	if err != nil {
		return ProcessResult{}, err
	}
	graphAfter, err := p.buildGraph(ctx, classification, graphBefore)
	if err != nil {
		return ProcessResult{}, err
	}
	conflicts, err := p.detectConflicts(ctx, content, classification)
	if err != nil {
		return ProcessResult{}, err
	}
	changes, err := p.extractTruthChanges(ctx, content)
	if err != nil {
		return ProcessResult{}, err
	}
	actions, err := p.suggestActions(ctx, content, classification, conflicts)
	if err != nil {
		return ProcessResult{}, err
	}

	now := time.Now()
	var result ProcessResult
	_, err = p.store.UpdateState(func(st *OrganizationalState) error {
		st.Classification = &classification
		st.LastSignalID = sig.ID
		st.GraphBefore = graphBefore
		st.GraphAfter = graphAfter
		st.Conflicts = assignConflictIDs(st, conflicts)
		st.Actions = assignActionIDs(st, actions)
		st.TruthVersions = append(st.TruthVersions, TruthVersion{
			Version:   len(st.TruthVersions) + 1,
			Timestamp: truthTimestamp(now),
			Changes:   changes,
		})
		result = ProcessResult{
			Signal:         sig.ID,
			Classification: classification,
			GraphBefore:    graphBefore,
			GraphAfter:     graphAfter,
			Conflicts:      st.Conflicts,
			TruthVersions:  st.TruthVersions,
			Actions:        st.Actions,
		}
		return nil
	})
	if err != nil {
		return ProcessResult{}, err
	}
	p.logger.Printf("processed signal %s: %d conflicts, %d actions, truth v%d",
		sig.ID, len(result.Conflicts), len(result.Actions), len(result.TruthVersions))
	return result, nil
}

// assignConflictIDs stamps c%d ids from the monotonic counter persisted
// with the state document, replacing the prior conflict list.
func assignConflictIDs(st *OrganizationalState, conflicts []Conflict) []Conflict {
	out := make([]Conflict, 0, len(conflicts))
	for _, c := range conflicts {
		st.ConflictSeq++
		c.ID = fmt.Sprintf("c%d", st.ConflictSeq)
		out = append(out, c)
	}
	return out
}

// assignActionIDs stamps a%d ids, same scheme as conflicts.
func assignActionIDs(st *OrganizationalState, actions []ActionItem) []ActionItem {
	out := make([]ActionItem, 0, len(actions))
	for _, a := range actions {
		st.ActionSeq++
		a.ID = fmt.Sprintf("a%d", st.ActionSeq)
		out = append(out, a)
	}
	return out
}

// Classify runs the classification stage for one signal (or the latest)
// and persists the result with the signal id. Used by the GET endpoint on a
// cache miss and by the POST endpoint for explicit re-classification.
func (p *Pipeline) Classify(ctx context.Context, signalID string) (Classification, error) {
	sig, err := p.resolveSignal(signalID)
	if err != nil {
		return Classification{}, err
	}
	classification, err := p.classify(ctx, signalContent(sig))
	if err != nil {
		return Classification{}, err
	}
	_, err = p.store.UpdateState(func(st *OrganizationalState) error {
		st.Classification = &classification
		st.LastSignalID = sig.ID
		return nil
	})
	if err != nil {
		return Classification{}, err
	}
	return classification, nil
}

// CachedClassification implements the compute-if-absent rule for the GET
// endpoint: a cached classification is returned unchanged unless the caller
// names a different signal than the one last classified.
func (p *Pipeline) CachedClassification(ctx context.Context, signalID string) (Classification, error) {
	st, err := p.store.State()
	if err != nil {
		return Classification{}, err
	}
	if st.Classification != nil && (signalID == "" || signalID == st.LastSignalID) {
		return *st.Classification, nil
	}
	v, err, _ := p.group.Do("classification:"+signalID, func() (any, error) {
		return p.Classify(ctx, signalID)
	})
	if err != nil {
		return Classification{}, err
	}
	return v.(Classification), nil
}

// ClassifyText classifies a caller-supplied text without touching the
// signal list. The result replaces the cached classification but leaves
// lastSignalId alone, matching the source behavior.
func (p *Pipeline) ClassifyText(ctx context.Context, content string) (Classification, error) {
	classification, err := p.classify(ctx, content)
	if err != nil {
		return Classification{}, err
	}
	_, err = p.store.UpdateState(func(st *OrganizationalState) error {
		st.Classification = &classification
		return nil
	})
	if err != nil {
		return Classification{}, err
	}
	return classification, nil
}

// GraphBundle is the before/after pair returned by the graph endpoint.
type GraphBundle struct {
	GraphBefore GraphState `json:"graphBefore"`
	GraphAfter  GraphState `json:"graphAfter"`
}

// Graph returns the two retained graph snapshots, computing the first merge
// lazily when a classification exists but no graph has been built yet.
func (p *Pipeline) Graph(ctx context.Context) (GraphBundle, error) {
	st, err := p.store.State()
	if err != nil {
		return GraphBundle{}, err
	}
	if len(st.GraphAfter.Nodes) > 0 || st.Classification == nil {
		return GraphBundle{GraphBefore: st.GraphBefore, GraphAfter: st.GraphAfter}, nil
	}
	v, err, _ := p.group.Do("graph", func() (any, error) {
		before := EmptyGraph()
		after, err := p.buildGraph(ctx, *st.Classification, before)
		if err != nil {
			return GraphBundle{}, err
		}
		_, err = p.store.UpdateState(func(cur *OrganizationalState) error {
			cur.GraphBefore = before
			cur.GraphAfter = after
			return nil
		})
		if err != nil {
			return GraphBundle{}, err
		}
		return GraphBundle{GraphBefore: before, GraphAfter: after}, nil
	})
	if err != nil {
		return GraphBundle{}, err
	}
	return v.(GraphBundle), nil
}

// TruthVersions returns the append-only truth history.
func (p *Pipeline) TruthVersions() ([]TruthVersion, error) {
	st, err := p.store.State()
	if err != nil {
		return nil, err
	}
	return st.TruthVersions, nil
}

// Conflicts implements the lazy conflict path. On a cache miss with a
// classified signal available it runs conflict detection AND truth
// extraction, then persists both before responding. The two are bundled
// so the conflicts view and the truth timeline stay in step without a
// second LLM round-trip from the UI.
func (p *Pipeline) Conflicts(ctx context.Context) ([]Conflict, error) {
	st, err := p.store.State()
	if err != nil {
		return nil, err
	}
	if len(st.Conflicts) > 0 {
		return st.Conflicts, nil
	}
	sig, sigErr := p.resolveSignal(st.LastSignalID)
	if sigErr != nil || st.Classification == nil {
		return st.Conflicts, nil
	}
	v, err, _ := p.group.Do("conflicts", func() (any, error) {
		content := signalContent(sig)
		conflicts, err := p.detectConflicts(ctx, content, *st.Classification)
		if err != nil {
			return nil, err
		}
		changes, err := p.extractTruthChanges(ctx, content)
		if err != nil {
			return nil, err
		}
		now := time.Now()
		var out []Conflict
		_, err = p.store.UpdateState(func(cur *OrganizationalState) error {
			cur.Conflicts = assignConflictIDs(cur, conflicts)
			cur.TruthVersions = append(cur.TruthVersions, TruthVersion{
				Version:   len(cur.TruthVersions) + 1,
				Timestamp: truthTimestamp(now),
				Changes:   changes,
			})
			out = cur.Conflicts
			return nil
		})
		if err != nil {
			return nil, err
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]Conflict), nil
}

// Actions implements the lazy action path. A cache miss reuses persisted
// conflicts when present; otherwise conflicts are recomputed as prompt
// context only and deliberately NOT persisted, preserving the source's
// side-effect surface.
func (p *Pipeline) Actions(ctx context.Context) ([]ActionItem, error) {
	st, err := p.store.State()
	if err != nil {
		return nil, err
	}
	if len(st.Actions) > 0 {
		return st.Actions, nil
	}
	sig, sigErr := p.resolveSignal(st.LastSignalID)
	if sigErr != nil || st.Classification == nil {
		return st.Actions, nil
	}
	v, err, _ := p.group.Do("actions", func() (any, error) {
		content := signalContent(sig)
		conflicts := st.Conflicts
		if len(conflicts) == 0 {
			detected, derr := p.detectConflicts(ctx, content, *st.Classification)
			if derr != nil {
				return nil, derr
			}
			conflicts = detected
		}
		actions, err := p.suggestActions(ctx, content, *st.Classification, conflicts)
		if err != nil {
			return nil, err
		}
		var out []ActionItem
		_, err = p.store.UpdateState(func(cur *OrganizationalState) error {
			cur.Actions = assignActionIDs(cur, actions)
			out = cur.Actions
			return nil
		})
		if err != nil {
			return nil, err
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]ActionItem), nil
}

// Query answers a free-text executive question against the current state.
func (p *Pipeline) Query(ctx context.Context, query string) (QueryAnswer, error) {
	st, err := p.store.State()
	if err != nil {
		return QueryAnswer{}, err
	}
	if query == "" {
		query = "What changed today?"
	}
	return p.execQuery(ctx, query, st)
}
