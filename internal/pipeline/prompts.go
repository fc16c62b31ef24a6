package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Prompt builders for the six LLM-backed stages. Each demands strict JSON in
// a fixed shape; the matching parser in stages.go defaults absent fields and
// rejects malformed enum values.

func classifyPrompt(content string) string {
	return fmt.Sprintf(`You are an organizational intelligence system. Analyze this communication signal and extract structured data.

Signal:
%s

Return a JSON object with this exact structure:
{
  "primary": { "intent": "decision|task|fyi|risk|conflict", "confidence": 0.0-1.0 },
  "secondary": [ { "intent": "decision|task|fyi|risk|conflict", "confidence": 0.0-1.0 } ],
  "people": [ { "name": "Full Name", "role": "optional role", "citation": "exact quote" } ],
  "teams": [ { "name": "Team Name", "citation": "exact quote" } ],
  "topics": [ { "name": "Topic", "citation": "exact quote" } ],
  "systems": [ { "name": "System/Tool", "citation": "exact quote" } ]
}

Be thorough but only include entities clearly mentioned. Keep citations short.`, content)
}

// taggedEntity is a classification entity flattened with its node type for
// the graph-merge prompt.
type taggedEntity struct {
	Name     string `json:"name"`
	Role     string `json:"role,omitempty"`
	Citation string `json:"citation"`
	Type     string `json:"type"`
}

func flattenEntities(c Classification) []taggedEntity {
	out := make([]taggedEntity, 0, len(c.People)+len(c.Teams)+len(c.Topics)+len(c.Systems))
	add := func(list []Entity, typ NodeType) {
		for _, e := range list {
			out = append(out, taggedEntity{Name: e.Name, Role: e.Role, Citation: e.Citation, Type: string(typ)})
		}
	}
	add(c.People, NodePerson)
	add(c.Teams, NodeTeam)
	add(c.Topics, NodeTopic)
	add(c.Systems, NodeSystem)
	return out
}

func graphPrompt(c Classification, prev GraphState) string {
	labels := make([]string, 0, len(prev.Nodes))
	for _, n := range prev.Nodes {
		labels = append(labels, n.Label)
	}
	relations := make([]string, 0, len(prev.Edges))
	for _, e := range prev.Edges {
		relations = append(relations, e.Source+"->"+e.Target)
	}
	labelsB, _ := json.Marshal(labels)
	relationsB, _ := json.Marshal(relations)
	entitiesB, _ := json.MarshalIndent(flattenEntities(c), "", "  ")

	return fmt.Sprintf(`You are building a knowledge graph for organizational communication. Based on this classification and existing graph, add new nodes and edges.

Existing nodes: %s
Existing edges: %s

New entities from signal:
%s

Return JSON:
{
  "nodes": [ { "id": "slug-id", "label": "Display Name", "type": "person|team|topic|decision|task|system", "x": 100, "y": 100, "isNew": true } ],
  "edges": [ { "id": "e1", "source": "id1", "target": "id2", "label": "optional", "isNew": true, "edgeType": "normal|conflict|dependency" } ]
}

Include ALL previous nodes (isNew: false) plus new ones (isNew: true). Use kebab-case ids. Place new nodes around center 350,200.`,
		labelsB, relationsB, entitiesB)
}

func conflictsPrompt(content string, c Classification) string {
	entities, _ := json.Marshal(map[string][]Entity{"people": c.People, "teams": c.Teams})
	return fmt.Sprintf(`Analyze this organizational signal for conflicts (disagreements, misalignment, blocked decisions).

Signal:
%s

Entities: %s

Return JSON:
{
  "conflicts": [
    {
      "title": "Conflict title",
      "sourceA": { "person": "Name", "claim": "their position" },
      "sourceB": { "person": "Name", "claim": "their position" },
      "severity": "high|medium|low",
      "suggestedResolution": "actionable resolution"
    }
  ]
}
If no conflicts, return { "conflicts": [] }.`, content, entities)
}

func truthPrompt(content string) string {
	return fmt.Sprintf(`Extract verifiable facts and decisions from this signal that should update the organizational source of truth.

Signal:
%s

Return JSON:
{
  "changes": [
    { "field": "Field name", "from": "old value or null", "to": "new value", "reason": "why", "owner": "person name" }
  ]
}
Only include concrete decisions, dates, allocations. If nothing, return { "changes": [] }.`, content)
}

func actionsPrompt(content string, conflicts []Conflict) string {
	if conflicts == nil {
		conflicts = []Conflict{}
	}
	conflictsB, _ := json.Marshal(conflicts)
	return fmt.Sprintf(`Based on this signal and any conflicts, suggest action items to route to stakeholders.

Signal:
%s

Conflicts: %s

Return JSON:
{
  "actions": [
    {
      "tool": "slack|notion|linear|github|gmail",
      "stakeholder": "Person Name",
      "reason": "why",
      "context": "brief context",
      "preview": "draft message or task text",
      "requiresConfirmation": true,
      "priority": "high|medium|low"
    }
  ]
}
Limit to %d actions. Be specific.`, content, conflictsB, maxActions)
}

// queryContextVersions is how many trailing truth versions the executive
// query includes as context.
const queryContextVersions = 3

func queryPrompt(query string, state OrganizationalState) string {
	versions := state.TruthVersions
	if len(versions) > queryContextVersions {
		versions = versions[len(versions)-queryContextVersions:]
	}
	graphB, _ := json.MarshalIndent(state.GraphAfter, "", "  ")
	versionsB, _ := json.MarshalIndent(versions, "", "  ")
	conflictsB, _ := json.MarshalIndent(state.Conflicts, "", "  ")
	actionsB, _ := json.MarshalIndent(state.Actions, "", "  ")

	var ctx strings.Builder
	fmt.Fprintf(&ctx, "Graph: %s\n", graphB)
	fmt.Fprintf(&ctx, "Truth versions: %s\n", versionsB)
	fmt.Fprintf(&ctx, "Conflicts: %s\n", conflictsB)
	fmt.Fprintf(&ctx, "Actions: %s\n", actionsB)

	return fmt.Sprintf(`You are an AI Chief of Staff. Answer this executive query about the organization.

Query: %s

Context:
%s

Return JSON:
{
  "summary": "2-3 sentence briefing",
  "stakeholders": [ { "name": "Name", "impact": "their impact", "action": "action taken or pending" } ],
  "pendingActions": number,
  "riskLevel": "High|Medium|Low"
}`, query, ctx.String())
}
