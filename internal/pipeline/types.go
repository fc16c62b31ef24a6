package pipeline

// Signal is one unit of ingested organizational communication. Immutable
// after creation; identity is ID.
type Signal struct {
	ID        string `json:"id"`
	Type      string `json:"type"` // slack, meeting, screenshot, email
	Title     string `json:"title"`
	Source    string `json:"source"`
	Timestamp string `json:"timestamp"`
	Content   string `json:"content"`
	UserID    string `json:"userId,omitempty"`
}

// ValidSignalTypes are the accepted signal type values, in the order they
// appear in validation messages.
var ValidSignalTypes = []string{"slack", "meeting", "screenshot", "email"}

func ValidSignalType(t string) bool {
	for _, v := range ValidSignalTypes {
		if t == v {
			return true
		}
	}
	return false
}

// Intent classifies what a signal is asking of the organization.
type Intent string

const (
	IntentDecision Intent = "decision"
	IntentTask     Intent = "task"
	IntentFYI      Intent = "fyi"
	IntentRisk     Intent = "risk"
	IntentConflict Intent = "conflict"
)

func (i Intent) Valid() bool {
	switch i {
	case IntentDecision, IntentTask, IntentFYI, IntentRisk, IntentConflict:
		return true
	}
	return false
}

// Severity grades conflicts and priorities.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityHigh, SeverityMedium, SeverityLow:
		return true
	}
	return false
}

// EdgeType tags the relation kind of a graph edge.
type EdgeType string

const (
	EdgeNormal     EdgeType = "normal"
	EdgeConflict   EdgeType = "conflict"
	EdgeDependency EdgeType = "dependency"
)

func (e EdgeType) Valid() bool {
	switch e {
	case EdgeNormal, EdgeConflict, EdgeDependency:
		return true
	}
	return false
}

// NodeType tags the entity kind of a graph node.
type NodeType string

const (
	NodePerson   NodeType = "person"
	NodeTeam     NodeType = "team"
	NodeTopic    NodeType = "topic"
	NodeDecision NodeType = "decision"
	NodeTask     NodeType = "task"
	NodeSystem   NodeType = "system"
)

func (n NodeType) Valid() bool {
	switch n {
	case NodePerson, NodeTeam, NodeTopic, NodeDecision, NodeTask, NodeSystem:
		return true
	}
	return false
}

// ActionTool is the destination a suggested action routes to.
type ActionTool string

const (
	ToolSlack  ActionTool = "slack"
	ToolNotion ActionTool = "notion"
	ToolLinear ActionTool = "linear"
	ToolGitHub ActionTool = "github"
	ToolGmail  ActionTool = "gmail"
)

func (t ActionTool) Valid() bool {
	switch t {
	case ToolSlack, ToolNotion, ToolLinear, ToolGitHub, ToolGmail:
		return true
	}
	return false
}

// IntentScore pairs an intent with the model's confidence.
type IntentScore struct {
	Intent     Intent  `json:"intent"`
	Confidence float64 `json:"confidence"`
}

// Entity is a cited person/team/topic/system mention.
type Entity struct {
	Name     string `json:"name"`
	Role     string `json:"role,omitempty"`
	Citation string `json:"citation"`
}

// Classification is the structured extraction over one signal. Produced fresh
// on every classify call; never merged with a prior classification.
type Classification struct {
	Primary   IntentScore   `json:"primary"`
	Secondary []IntentScore `json:"secondary"`
	People    []Entity      `json:"people"`
	Teams     []Entity      `json:"teams"`
	Topics    []Entity      `json:"topics"`
	Systems   []Entity      `json:"systems"`
}

// GraphNode is one entity in the knowledge graph. X/Y are layout hints for
// the visualization; IsNew marks nodes introduced by the latest merge.
type GraphNode struct {
	ID    string   `json:"id"`
	Label string   `json:"label"`
	Type  NodeType `json:"type"`
	X     float64  `json:"x"`
	Y     float64  `json:"y"`
	IsNew bool     `json:"isNew"`
}

// GraphEdge is a directed relation between two nodes.
type GraphEdge struct {
	ID       string   `json:"id"`
	Source   string   `json:"source"`
	Target   string   `json:"target"`
	Label    string   `json:"label,omitempty"`
	IsNew    bool     `json:"isNew,omitempty"`
	EdgeType EdgeType `json:"edgeType"`
}

// GraphState is one snapshot of the knowledge graph.
type GraphState struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

// EmptyGraph returns an initialized snapshot with non-nil slices so the
// JSON encoding is always {"nodes":[],"edges":[]}.
func EmptyGraph() GraphState {
	return GraphState{Nodes: []GraphNode{}, Edges: []GraphEdge{}}
}

// TruthChange is one verifiable fact update extracted from a signal.
type TruthChange struct {
	Field  string `json:"field"`
	From   string `json:"from,omitempty"`
	To     string `json:"to"`
	Reason string `json:"reason"`
	Owner  string `json:"owner"`
}

// TruthVersion is one append-only snapshot of extracted changes.
type TruthVersion struct {
	Version   int           `json:"version"`
	Timestamp string        `json:"timestamp"`
	Changes   []TruthChange `json:"changes"`
}

// ConflictSource is one side of a detected disagreement.
type ConflictSource struct {
	Person string `json:"person"`
	Claim  string `json:"claim"`
}

// Conflict is a detected disagreement between two named stakeholders.
type Conflict struct {
	ID                  string         `json:"id"`
	Title               string         `json:"title"`
	SourceA             ConflictSource `json:"sourceA"`
	SourceB             ConflictSource `json:"sourceB"`
	Severity            Severity       `json:"severity"`
	SuggestedResolution string         `json:"suggestedResolution"`
}

// ActionItem is a suggested, tool-routed follow-up.
type ActionItem struct {
	ID                   string     `json:"id"`
	Tool                 ActionTool `json:"tool"`
	Stakeholder          string     `json:"stakeholder"`
	Reason               string     `json:"reason"`
	Context              string     `json:"context"`
	Preview              string     `json:"preview"`
	RequiresConfirmation bool       `json:"requiresConfirmation"`
	Priority             Severity   `json:"priority"`
}

// OrganizationalState is the aggregate document every pipeline stage merges
// into. ConflictSeq/ActionSeq back the human-readable c%d / a%d ids so they
// stay stable if lists are filtered later.
type OrganizationalState struct {
	Classification *Classification `json:"classification"`
	GraphBefore    GraphState      `json:"graphBefore"`
	GraphAfter     GraphState      `json:"graphAfter"`
	TruthVersions  []TruthVersion  `json:"truthVersions"`
	Conflicts      []Conflict      `json:"conflicts"`
	Actions        []ActionItem    `json:"actions"`
	LastSignalID   string          `json:"lastSignalId,omitempty"`
	ConflictSeq    int             `json:"conflictSeq"`
	ActionSeq      int             `json:"actionSeq"`
}

// DefaultState returns the zero document with initialized collections.
func DefaultState() OrganizationalState {
	return OrganizationalState{
		GraphBefore:   EmptyGraph(),
		GraphAfter:    EmptyGraph(),
		TruthVersions: []TruthVersion{},
		Conflicts:     []Conflict{},
		Actions:       []ActionItem{},
	}
}

// QueryStakeholder is one affected party in an executive answer.
type QueryStakeholder struct {
	Name   string `json:"name"`
	Impact string `json:"impact"`
	Action string `json:"action"`
}

// QueryAnswer is the executive query response shape.
type QueryAnswer struct {
	Summary        string             `json:"summary"`
	Stakeholders   []QueryStakeholder `json:"stakeholders"`
	PendingActions int                `json:"pendingActions"`
	RiskLevel      string             `json:"riskLevel"` // High, Medium, Low
}

// ProcessResult is the merged bundle returned by a full pipeline run.
type ProcessResult struct {
	Signal         string         `json:"signal"`
	Classification Classification `json:"classification"`
	GraphBefore    GraphState     `json:"graphBefore"`
	GraphAfter     GraphState     `json:"graphAfter"`
	Conflicts      []Conflict     `json:"conflicts"`
	TruthVersions  []TruthVersion `json:"truthVersions"`
	Actions        []ActionItem   `json:"actions"`
}
