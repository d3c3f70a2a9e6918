package server

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"deepresearch/internal/decision"
	"deepresearch/internal/errs"
	"deepresearch/internal/logging"
	"deepresearch/internal/types"
)

func (s *Server) handleGeneratePaths(ctx context.Context, args map[string]any) (any, error) {
	return s.engine.Generate(
		argString(args, "session_id", ""),
		argString(args, "query", ""),
		argInt(args, "k", 3),
		argString(args, "strategy", ""),
	)
}

func (s *Server) handleRefinePath(ctx context.Context, args map[string]any) (any, error) {
	return s.engine.Refine(
		argString(args, "path_id", ""),
		argString(args, "query", ""),
	)
}

func (s *Server) handleScoreAndPrune(ctx context.Context, args map[string]any) (any, error) {
	cfg := s.config()
	return s.engine.ScoreAndPrune(
		argString(args, "session_id", ""),
		argFloat(args, "threshold", cfg.Scoring.Threshold),
		argInt(args, "keep_top_n", cfg.Scoring.KeepTopN),
	)
}

func (s *Server) handleAggregatePaths(ctx context.Context, args map[string]any) (any, error) {
	return s.engine.Aggregate(
		argString(args, "session_id", ""),
		argStringSlice(args, "path_ids"),
		argString(args, "strategy", ""),
	)
}

func (s *Server) handleUpdatePathStatus(ctx context.Context, args map[string]any) (any, error) {
	path, err := s.engine.UpdatePathStatus(
		argString(args, "path_id", ""),
		argString(args, "status", ""),
		argString(args, "content", ""),
		argString(args, "summary", ""),
	)
	if err != nil {
		return nil, err
	}
	return map[string]any{"success": true, "path": path}, nil
}

func (s *Server) handleGetGraphState(ctx context.Context, args map[string]any) (any, error) {
	state, err := s.engine.GraphState(argString(args, "session_id", ""))
	if err != nil {
		return nil, err
	}
	return state, nil
}

// handleGetNextAction serializes decision reads behind the session lock.
// The iteration counter advances once per call while budget remains; past
// the budget the counter holds and repeated calls return the same action.
func (s *Server) handleGetNextAction(ctx context.Context, args map[string]any) (any, error) {
	const op = "get_next_action"
	sessionID := argString(args, "session_id", "")
	if sessionID == "" {
		return nil, errs.Validation(op, "session_id is required")
	}

	lockerID := "decision-" + uuid.New().String()
	if err := s.manager.AcquireLock(sessionID, lockerID); err != nil {
		if by, at, ok := errs.LockInfo(err); ok {
			return map[string]any{
				"error":               "session_locked",
				"locked_by":           by,
				"locked_at":           at,
				"retry_after_seconds": 30,
			}, nil
		}
		return nil, err
	}
	defer func() {
		if err := s.manager.ReleaseLock(sessionID, lockerID); err != nil {
			logging.Server().Warnf("releasing decision lock for %s: %v", sessionID, err)
		}
	}()

	sess, err := s.manager.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if sess.IterationCount < sess.MaxIterations {
		if _, err := s.manager.IncrementIteration(sessionID); err != nil {
			return nil, err
		}
	}

	state, err := s.engine.GraphState(sessionID)
	if err != nil {
		return nil, err
	}
	action := decision.Decide(state)

	msg := fmt.Sprintf("next action: %s (%s)", action.Action, action.Reasoning)
	if err := s.manager.LogActivity(sessionID, sess.CurrentPhase, string(types.EventInfo), msg, "", ""); err != nil {
		logging.Server().Warnf("logging decision for %s: %v", sessionID, err)
	}

	return map[string]any{
		"action":     action.Action,
		"params":     action.Params,
		"reasoning":  action.Reasoning,
		"iteration":  state.IterationCount,
		"confidence": state.Confidence,
		"state":      pathCounts(state),
	}, nil
}

// pathCounts summarizes the graph for the coordinator's telemetry.
func pathCounts(state decision.GraphState) map[string]int {
	counts := map[string]int{
		"total_paths":     len(state.Paths),
		"active_paths":    0,
		"completed_paths": 0,
		"pruned_paths":    0,
	}
	for _, p := range state.Paths {
		switch p.Status {
		case string(types.PathActive), string(types.PathPending), string(types.PathRunning):
			counts["active_paths"]++
		case string(types.PathCompleted):
			counts["completed_paths"]++
		case string(types.PathPruned):
			counts["pruned_paths"]++
		}
	}
	return counts
}
