// Package decision implements the next-action policy of the research
// controller. Decide is a pure function over a read-only graph projection:
// equal states always produce equal actions, so coordinator runs replay
// byte-for-byte.
package decision

import "fmt"

// Action verbs the server may emit. The coordinator executes the verb and
// calls back for the next one.
const (
	ActionGenerate   = "generate"
	ActionExecute    = "execute"
	ActionWait       = "wait"
	ActionScore      = "score"
	ActionAggregate  = "aggregate"
	ActionSynthesize = "synthesize"
)

// PathState is the decision-relevant slice of one path.
type PathState struct {
	ID     string  `json:"id"`
	Status string  `json:"status"`
	Score  float64 `json:"score"`
}

// GraphState is the read-only projection Decide operates on. Paths must be
// in stable storage order.
type GraphState struct {
	Paths               []PathState `json:"paths"`
	IterationCount      int         `json:"iteration_count"`
	Confidence          float64     `json:"confidence"`
	IsAggregated        bool        `json:"is_aggregated"`
	BudgetExhausted     bool        `json:"budget_exhausted"`
	MaxIterations       int         `json:"max_iterations"`
	ConfidenceThreshold float64     `json:"confidence_threshold"`
	CurrentFindings     string      `json:"current_findings,omitempty"`
}

// NextAction is one instruction for the coordinator, with the reasoning that
// selected it.
type NextAction struct {
	Action    string         `json:"action"`
	Params    map[string]any `json:"params,omitempty"`
	Reasoning string         `json:"reasoning"`
}

// Aggregation candidates need at least this quality score.
const aggregateScoreFloor = 7.0

// Decide evaluates the decision rules in priority order and returns the
// first match. Rule order: terminate, bootstrap, wait, execute, score,
// aggregate, continue exploration, fallback synthesis.
func Decide(state GraphState) NextAction {
	if act, ok := terminate(state); ok {
		return act
	}

	if len(state.Paths) == 0 {
		return NextAction{
			Action:    ActionGenerate,
			Params:    map[string]any{"k": 3, "strategy": "diverse"},
			Reasoning: "No paths exist, generating initial exploration paths",
		}
	}

	if running := pathsIn(state, "running"); len(running) > 0 {
		return NextAction{
			Action:    ActionWait,
			Params:    map[string]any{"path_ids": running},
			Reasoning: fmt.Sprintf("Waiting on %d running path(s)", len(running)),
		}
	}

	if pending := pathsIn(state, "pending"); len(pending) > 0 {
		return NextAction{
			Action:    ActionExecute,
			Params:    map[string]any{"path_ids": pending},
			Reasoning: fmt.Sprintf("%d pending path(s) ready for execution", len(pending)),
		}
	}

	if unscored := completedUnscored(state); len(unscored) > 0 {
		return NextAction{
			Action:    ActionScore,
			Params:    map[string]any{"threshold": 6.0, "keep_top_n": 2},
			Reasoning: fmt.Sprintf("%d completed path(s) awaiting scoring", len(unscored)),
		}
	}

	if !state.IsAggregated {
		if strong := highQuality(state); len(strong) > 1 {
			return NextAction{
				Action:    ActionAggregate,
				Params:    map[string]any{"path_ids": strong, "strategy": "synthesis"},
				Reasoning: fmt.Sprintf("%d high-quality paths ready for aggregation", len(strong)),
			}
		}
	}

	if state.Confidence < state.ConfidenceThreshold {
		params := map[string]any{"k": 2, "strategy": "focused"}
		if state.CurrentFindings != "" {
			params["context"] = state.CurrentFindings
		}
		return NextAction{
			Action: ActionGenerate,
			Params: params,
			Reasoning: fmt.Sprintf("Confidence %.2f below threshold %.2f, exploring further",
				state.Confidence, state.ConfidenceThreshold),
		}
	}

	return NextAction{
		Action:    ActionSynthesize,
		Reasoning: "No further actions available, synthesizing final report",
	}
}

func terminate(state GraphState) (NextAction, bool) {
	switch {
	case state.Confidence >= state.ConfidenceThreshold:
		return NextAction{
			Action: ActionSynthesize,
			Params: map[string]any{"reason": "confidence_threshold"},
			Reasoning: fmt.Sprintf("Confidence threshold reached (%.2f >= %.2f)",
				state.Confidence, state.ConfidenceThreshold),
		}, true
	case state.IterationCount >= state.MaxIterations:
		return NextAction{
			Action: ActionSynthesize,
			Params: map[string]any{"reason": "max_iterations"},
			Reasoning: fmt.Sprintf("Max iterations reached (%d/%d)",
				state.IterationCount, state.MaxIterations),
		}, true
	case state.BudgetExhausted:
		return NextAction{
			Action:    ActionSynthesize,
			Params:    map[string]any{"reason": "budget_exhausted"},
			Reasoning: "Research budget exhausted",
		}, true
	}
	return NextAction{}, false
}

func pathsIn(state GraphState, status string) []string {
	var ids []string
	for _, p := range state.Paths {
		if p.Status == status {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

func completedUnscored(state GraphState) []string {
	var ids []string
	for _, p := range state.Paths {
		if p.Status == "completed" && p.Score == 0 {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

func highQuality(state GraphState) []string {
	var ids []string
	for _, p := range state.Paths {
		if p.Score >= aggregateScoreFloor && !PathStatusTerminal(p.Status) {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

// PathStatusTerminal mirrors the path lifecycle's terminal set.
func PathStatusTerminal(status string) bool {
	switch status {
	case "pruned", "aggregated", "refined":
		return true
	}
	return false
}
