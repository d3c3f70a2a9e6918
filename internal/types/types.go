// Package types provides shared domain records for the research server.
// This package exists to break import cycles between store, session, got,
// and server. Types in this package are foundational data structures with
// no dependencies beyond the standard library.
package types

import (
	"database/sql"
	"encoding/json"
	"strings"
)

// NullString stores like sql.NullString but marshals as a plain JSON string,
// or null when unset. Tool payloads carry these fields directly.
type NullString struct {
	sql.NullString
}

func (n NullString) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.String)
}

func (n *NullString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*n = NullString{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	n.String, n.Valid = s, true
	return nil
}

// =============================================================================
// SESSION
// =============================================================================

// ResearchType selects the iteration and confidence defaults for a session.
type ResearchType string

const (
	ResearchTypeQuick ResearchType = "quick"
	ResearchTypeDeep  ResearchType = "deep"
)

// Defaults returns (max_iterations, confidence_threshold) for the type.
// Unknown types fall back to deep.
func (r ResearchType) Defaults() (int, float64) {
	if r == ResearchTypeQuick {
		return 3, 0.7
	}
	return 10, 0.9
}

// SessionStatus is the lifecycle state of a research session.
type SessionStatus string

const (
	SessionInitializing SessionStatus = "initializing"
	SessionPlanning     SessionStatus = "planning"
	SessionExecuting    SessionStatus = "executing"
	SessionSynthesizing SessionStatus = "synthesizing"
	SessionValidating   SessionStatus = "validating"
	SessionCompleted    SessionStatus = "completed"
	SessionFailed       SessionStatus = "failed"
)

// ValidSessionStatus reports whether s is a member of the status enum.
func ValidSessionStatus(s string) bool {
	switch SessionStatus(s) {
	case SessionInitializing, SessionPlanning, SessionExecuting,
		SessionSynthesizing, SessionValidating, SessionCompleted, SessionFailed:
		return true
	}
	return false
}

// Session is one research task with its state machine fields.
// Timestamps are stored as SQLite text (CURRENT_TIMESTAMP / RFC3339).
type Session struct {
	SessionID           string     `json:"session_id"`
	ResearchTopic       string     `json:"research_topic"`
	ResearchType        string     `json:"research_type"`
	OutputDirectory     string     `json:"output_directory"`
	Status              string     `json:"status"`
	CurrentPhase        int        `json:"current_phase"`
	IterationCount      int        `json:"iteration_count"`
	Confidence          float64    `json:"confidence"`
	IsAggregated        bool       `json:"is_aggregated"`
	BudgetExhausted     bool       `json:"budget_exhausted"`
	MaxIterations       int        `json:"max_iterations"`
	ConfidenceThreshold float64    `json:"confidence_threshold"`
	LockedAt            NullString `json:"locked_at,omitempty"`
	LockedBy            NullString `json:"locked_by,omitempty"`
	CreatedAt           string     `json:"created_at"`
	UpdatedAt           string     `json:"updated_at"`
	CompletedAt         NullString `json:"completed_at,omitempty"`
	Metadata            NullString `json:"metadata,omitempty"`
}

// =============================================================================
// AGENT
// =============================================================================

// AgentStatus is the lifecycle state of a registered worker.
type AgentStatus string

const (
	AgentDeploying AgentStatus = "deploying"
	AgentRunning   AgentStatus = "running"
	AgentCompleted AgentStatus = "completed"
	AgentFailed    AgentStatus = "failed"
	AgentTimeout   AgentStatus = "timeout"
)

// ValidAgentStatus reports whether s is a member of the agent status enum.
func ValidAgentStatus(s string) bool {
	switch AgentStatus(s) {
	case AgentDeploying, AgentRunning, AgentCompleted, AgentFailed, AgentTimeout:
		return true
	}
	return false
}

// Terminal reports whether the status ends the agent's lifecycle.
func (a AgentStatus) Terminal() bool {
	return a == AgentCompleted || a == AgentFailed || a == AgentTimeout
}

// Agent is a worker registration inside a session.
type Agent struct {
	AgentID          string     `json:"agent_id"`
	SessionID        string     `json:"session_id"`
	AgentType        string     `json:"agent_type"`
	AgentRole        NullString `json:"agent_role,omitempty"`
	FocusDescription NullString `json:"focus_description,omitempty"`
	SearchQueries    NullString `json:"search_queries,omitempty"`
	Status           string     `json:"status"`
	OutputFile       NullString `json:"output_file,omitempty"`
	TokenUsage       int        `json:"token_usage"`
	ErrorMessage     NullString `json:"error_message,omitempty"`
	CreatedAt        string     `json:"created_at"`
	UpdatedAt        string     `json:"updated_at"`
	CompletedAt      NullString `json:"completed_at,omitempty"`
}

// =============================================================================
// GOT GRAPH
// =============================================================================

// NodeType classifies how a path entered the graph.
type NodeType string

const (
	NodeRoot       NodeType = "root"
	NodeGenerated  NodeType = "generated"
	NodeAggregated NodeType = "aggregated"
	NodeRefined    NodeType = "refined"
)

// PathStatus is the lifecycle state of an exploration path.
type PathStatus string

const (
	PathActive     PathStatus = "active"
	PathPending    PathStatus = "pending"
	PathRunning    PathStatus = "running"
	PathCompleted  PathStatus = "completed"
	PathPruned     PathStatus = "pruned"
	PathAggregated PathStatus = "aggregated"
	PathRefined    PathStatus = "refined"
)

// ValidPathStatus reports whether s is a member of the path status enum.
func ValidPathStatus(s string) bool {
	switch PathStatus(s) {
	case PathActive, PathPending, PathRunning, PathCompleted,
		PathPruned, PathAggregated, PathRefined:
		return true
	}
	return false
}

// Terminal reports whether the status ends the path's lifecycle.
func (p PathStatus) Terminal() bool {
	return p == PathPruned || p == PathAggregated || p == PathRefined
}

// Path is a node in the research exploration graph.
type Path struct {
	PathID           string     `json:"path_id"`
	SessionID        string     `json:"session_id"`
	ParentID         NullString `json:"parent_id,omitempty"`
	NodeType         string     `json:"node_type"`
	Focus            string     `json:"focus,omitempty"`
	Query            string     `json:"query,omitempty"`
	Content          string     `json:"content,omitempty"`
	Summary          string     `json:"summary,omitempty"`
	QualityScore     float64    `json:"quality_score"`
	CompressionRatio float64    `json:"compression_ratio"`
	Status           string     `json:"status"`
	Depth            int        `json:"depth"`
	CreatedAt        string     `json:"created_at"`
	UpdatedAt        string     `json:"updated_at"`
}

// Scored reports whether the path has received a quality score.
func (p *Path) Scored() bool { return p.QualityScore > 0 }

// OperationType classifies a GoT engine transition.
type OperationType string

const (
	OpGenerate  OperationType = "Generate"
	OpAggregate OperationType = "Aggregate"
	OpRefine    OperationType = "Refine"
	OpScore     OperationType = "Score"
	OpPrune     OperationType = "Prune"
)

// Operation is the audit record of one engine transition.
// InputNodes/OutputNodes are ordered path_id lists; Parameters is an open
// dictionary, both JSON-encoded in the store.
type Operation struct {
	OperationID   string         `json:"operation_id"`
	SessionID     string         `json:"session_id"`
	OperationType string         `json:"operation_type"`
	InputNodes    []string       `json:"input_nodes"`
	OutputNodes   []string       `json:"output_nodes"`
	Parameters    map[string]any `json:"parameters,omitempty"`
	CreatedAt     string         `json:"created_at"`
}

// =============================================================================
// ACTIVITY / CHECKPOINTS / METRICS / INGEST
// =============================================================================

// EventType classifies an activity log entry.
type EventType string

const (
	EventPhaseStart    EventType = "phase_start"
	EventPhaseComplete EventType = "phase_complete"
	EventAgentDeploy   EventType = "agent_deploy"
	EventAgentComplete EventType = "agent_complete"
	EventInfo          EventType = "info"
	EventError         EventType = "error"
)

// ValidEventType reports whether s is a member of the event enum.
func ValidEventType(s string) bool {
	switch EventType(s) {
	case EventPhaseStart, EventPhaseComplete, EventAgentDeploy,
		EventAgentComplete, EventInfo, EventError:
		return true
	}
	return false
}

// ActivityEntry is one row of the append-only session timeline.
type ActivityEntry struct {
	ID        int64      `json:"id"`
	SessionID string     `json:"session_id"`
	Phase     int        `json:"phase"`
	EventType string     `json:"event_type"`
	Message   string     `json:"message"`
	AgentID   NullString `json:"agent_id,omitempty"`
	Details   NullString `json:"details,omitempty"`
	CreatedAt string     `json:"created_at"`
}

// Checkpoint is a recoverable snapshot of session state at a phase boundary.
type Checkpoint struct {
	ID             int64  `json:"id"`
	SessionID      string `json:"session_id"`
	PhaseNumber    int    `json:"phase_number"`
	CheckpointType string `json:"checkpoint_type"`
	StateSnapshot  string `json:"state_snapshot"`
	CreatedAt      string `json:"created_at"`
}

// Metric is one recorded measurement scoped to a session.
type Metric struct {
	ID          int64   `json:"id"`
	SessionID   string  `json:"session_id"`
	MetricName  string  `json:"metric_name"`
	MetricValue float64 `json:"metric_value"`
	Phase       int     `json:"phase"`
	CreatedAt   string  `json:"created_at"`
}

// IngestStatus is the lifecycle state of a staged payload.
type IngestStatus string

const (
	IngestPending    IngestStatus = "pending"
	IngestProcessing IngestStatus = "processing"
	IngestCompleted  IngestStatus = "completed"
	IngestFailed     IngestStatus = "failed"
)

// IngestedItem is a raw payload staged for later processing.
type IngestedItem struct {
	ID             int64      `json:"id"`
	SessionID      string     `json:"session_id"`
	Source         string     `json:"source"`
	ContentType    string     `json:"content_type"`
	Content        string     `json:"content"`
	OriginalLength int        `json:"original_length"`
	Status         string     `json:"status"`
	ErrorMessage   NullString `json:"error_message,omitempty"`
	CreatedAt      string     `json:"created_at"`
	ProcessedAt    NullString `json:"processed_at,omitempty"`
}

// NullableString converts a possibly-empty string to its SQL representation.
func NullableString(s string) NullString {
	if strings.TrimSpace(s) == "" {
		return NullString{}
	}
	return NullString{sql.NullString{String: s, Valid: true}}
}
