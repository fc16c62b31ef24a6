package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"orgpulse/internal/llm"
)

// maxActions caps the suggestion list regardless of what the model returns.
const maxActions = 5

// stageCall runs one chat completion under the per-stage timeout.
func (p *Pipeline) stageCall(ctx context.Context, stage, model, prompt string) (string, error) {
	timeout := p.cfg.StageTimeout
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	timer := p.metrics.StageTimer(stage)
	out, err := p.provider.Chat(ctx, model, []llm.Message{{Role: "user", Content: prompt}}, llm.Options{JSON: true})
	timer.ObserveDuration()
	p.metrics.StageDone(stage, err == nil)
	if err != nil {
		return "", fmt.Errorf("%s stage: %w", stage, err)
	}
	return out, nil
}

// classify extracts intent and entities from a signal's content. Pure
// transform; persistence happens in the orchestrator.
func (p *Pipeline) classify(ctx context.Context, content string) (Classification, error) {
	raw, err := p.stageCall(ctx, "classify", p.cfg.Routing.Pipeline, classifyPrompt(content))
	if err != nil {
		return Classification{}, err
	}

	var parsed struct {
		Primary   *IntentScore  `json:"primary"`
		Secondary []IntentScore `json:"secondary"`
		People    []Entity      `json:"people"`
		Teams     []Entity      `json:"teams"`
		Topics    []Entity      `json:"topics"`
		Systems   []Entity      `json:"systems"`
	}
	if err := json.Unmarshal([]byte(extractFirstJSON(raw)), &parsed); err != nil {
		return Classification{}, fmt.Errorf("classify stage: parse output: %w", err)
	}

	c := Classification{
		Primary:   IntentScore{Intent: IntentFYI, Confidence: 0.5},
		Secondary: []IntentScore{},
		People:    []Entity{},
		Teams:     []Entity{},
		Topics:    []Entity{},
		Systems:   []Entity{},
	}
	if parsed.Primary != nil {
		if !parsed.Primary.Intent.Valid() {
			return Classification{}, fmt.Errorf("classify stage: invalid primary intent %q", parsed.Primary.Intent)
		}
		c.Primary = *parsed.Primary
	}
	for _, s := range parsed.Secondary {
		if !s.Intent.Valid() {
			return Classification{}, fmt.Errorf("classify stage: invalid secondary intent %q", s.Intent)
		}
		c.Secondary = append(c.Secondary, s)
	}
	if parsed.People != nil {
		c.People = parsed.People
	}
	if parsed.Teams != nil {
		c.Teams = parsed.Teams
	}
	if parsed.Topics != nil {
		c.Topics = parsed.Topics
	}
	if parsed.Systems != nil {
		c.Systems = parsed.Systems
	}
	return c, nil
}

// buildGraph asks the model for a full new node/edge list, then runs the
// deterministic reconciliation in graph.go. On parse failure or an output
// that fails validation the previous graph is returned unchanged.
func (p *Pipeline) buildGraph(ctx context.Context, c Classification, prev GraphState) (GraphState, error) {
	raw, err := p.stageCall(ctx, "graph", p.cfg.Routing.Pipeline, graphPrompt(c, prev))
	if err != nil {
		return GraphState{}, err
	}

	var parsed GraphState
	if err := json.Unmarshal([]byte(extractFirstJSON(raw)), &parsed); err != nil {
		p.logger.Printf("graph stage: unparseable output, keeping previous graph: %v", err)
		return prev, nil
	}
	if parsed.Nodes == nil {
		parsed.Nodes = prev.Nodes
	}
	if parsed.Edges == nil {
		parsed.Edges = prev.Edges
	}
	merged, ok := reconcileGraph(prev, parsed)
	if !ok {
		p.logger.Printf("graph stage: output failed validation, keeping previous graph")
		return prev, nil
	}
	return merged, nil
}

// detectConflicts returns the conflicts found in a signal, without ids;
// the orchestrator assigns sequential ids from the persisted counter.
func (p *Pipeline) detectConflicts(ctx context.Context, content string, c Classification) ([]Conflict, error) {
	raw, err := p.stageCall(ctx, "conflicts", p.cfg.Routing.Pipeline, conflictsPrompt(content, c))
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Conflicts []Conflict `json:"conflicts"`
	}
	if err := json.Unmarshal([]byte(extractFirstJSON(raw)), &parsed); err != nil {
		return nil, fmt.Errorf("conflicts stage: parse output: %w", err)
	}
	out := make([]Conflict, 0, len(parsed.Conflicts))
	for _, cf := range parsed.Conflicts {
		if cf.Severity == "" {
			cf.Severity = SeverityMedium
		}
		if !cf.Severity.Valid() {
			return nil, fmt.Errorf("conflicts stage: invalid severity %q", cf.Severity)
		}
		out = append(out, cf)
	}
	return out, nil
}

// extractTruthChanges returns the change records for one signal. The
// orchestrator wraps them in a TruthVersion and appends to history.
func (p *Pipeline) extractTruthChanges(ctx context.Context, content string) ([]TruthChange, error) {
	raw, err := p.stageCall(ctx, "truth", p.cfg.Routing.Pipeline, truthPrompt(content))
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Changes []TruthChange `json:"changes"`
	}
	if err := json.Unmarshal([]byte(extractFirstJSON(raw)), &parsed); err != nil {
		return nil, fmt.Errorf("truth stage: parse output: %w", err)
	}
	if parsed.Changes == nil {
		return []TruthChange{}, nil
	}
	return parsed.Changes, nil
}

// suggestActions returns up to maxActions suggestions, without ids.
func (p *Pipeline) suggestActions(ctx context.Context, content string, c Classification, conflicts []Conflict) ([]ActionItem, error) {
	raw, err := p.stageCall(ctx, "actions", p.cfg.Routing.Pipeline, actionsPrompt(content, conflicts))
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Actions []ActionItem `json:"actions"`
	}
	if err := json.Unmarshal([]byte(extractFirstJSON(raw)), &parsed); err != nil {
		return nil, fmt.Errorf("actions stage: parse output: %w", err)
	}
	if len(parsed.Actions) > maxActions {
		parsed.Actions = parsed.Actions[:maxActions]
	}
	out := make([]ActionItem, 0, len(parsed.Actions))
	for _, a := range parsed.Actions {
		if !a.Tool.Valid() {
			return nil, fmt.Errorf("actions stage: invalid tool %q", a.Tool)
		}
		if a.Priority == "" {
			a.Priority = SeverityMedium
		}
		if !a.Priority.Valid() {
			return nil, fmt.Errorf("actions stage: invalid priority %q", a.Priority)
		}
		out = append(out, a)
	}
	return out, nil
}

// execQuery answers a free-text question against the accumulated state.
// Stateless: never mutates persisted state.
func (p *Pipeline) execQuery(ctx context.Context, query string, state OrganizationalState) (QueryAnswer, error) {
	raw, err := p.stageCall(ctx, "query", p.cfg.Routing.Query, queryPrompt(query, state))
	if err != nil {
		return QueryAnswer{}, err
	}

	var parsed QueryAnswer
	if err := json.Unmarshal([]byte(extractFirstJSON(raw)), &parsed); err != nil {
		return QueryAnswer{}, fmt.Errorf("query stage: parse output: %w", err)
	}
	if parsed.Stakeholders == nil {
		parsed.Stakeholders = []QueryStakeholder{}
	}
	switch parsed.RiskLevel {
	case "High", "Medium", "Low":
	case "":
		parsed.RiskLevel = "Medium"
	default:
		return QueryAnswer{}, fmt.Errorf("query stage: invalid risk level %q", parsed.RiskLevel)
	}
	return parsed, nil
}

// extractFirstJSON finds the first top-level JSON object in a string,
// tolerating prose around the model's payload. Clean JSON passes through
// untouched; braces inside string literals do not confuse the scanner.
func extractFirstJSON(s string) string {
	if json.Valid([]byte(s)) {
		return s
	}
	start := -1
	depth := 0
	inString := false
	escaped := false
	for i, ch := range s {
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
			}
			if depth == 0 && start != -1 {
				return s[start : i+1]
			}
		}
	}
	return s
}
