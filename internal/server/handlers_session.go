package server

import (
	"context"
	"encoding/json"

	"deepresearch/internal/errs"
)

func (s *Server) handleCreateSession(ctx context.Context, args map[string]any) (any, error) {
	outputDir := argString(args, "output_dir", "")
	if outputDir == "" {
		return nil, errs.Validation("create_research_session", "output_dir is required")
	}
	return s.manager.Create(
		argString(args, "topic", ""),
		outputDir,
		argString(args, "research_type", ""),
	)
}

func (s *Server) handleUpdateSessionStatus(ctx context.Context, args map[string]any) (any, error) {
	sessionID := argString(args, "session_id", "")
	if err := s.manager.UpdateStatus(sessionID, argString(args, "status", "")); err != nil {
		return nil, err
	}
	return s.manager.Get(sessionID)
}

func (s *Server) handleGetSessionInfo(ctx context.Context, args map[string]any) (any, error) {
	return s.manager.Get(argString(args, "session_id", ""))
}

func (s *Server) handleRegisterAgent(ctx context.Context, args map[string]any) (any, error) {
	return s.manager.RegisterAgent(
		argString(args, "session_id", ""),
		argString(args, "agent_id", ""),
		argString(args, "agent_type", ""),
		argString(args, "agent_role", ""),
		argString(args, "focus_description", ""),
		argStringSlice(args, "search_queries"),
	)
}

func (s *Server) handleUpdateAgentStatus(ctx context.Context, args map[string]any) (any, error) {
	agentID := argString(args, "agent_id", "")
	err := s.manager.UpdateAgentStatus(
		agentID,
		argString(args, "status", ""),
		argString(args, "output_file", ""),
		argString(args, "error_message", ""),
		argInt(args, "token_usage", 0),
	)
	if err != nil {
		return nil, err
	}
	return s.manager.GetAgent(agentID)
}

func (s *Server) handleGetActiveAgents(ctx context.Context, args map[string]any) (any, error) {
	agents, err := s.manager.ActiveAgents(argString(args, "session_id", ""))
	if err != nil {
		return nil, err
	}
	return map[string]any{"agents": agents, "count": len(agents)}, nil
}

func (s *Server) handleUpdatePhase(ctx context.Context, args map[string]any) (any, error) {
	sessionID := argString(args, "session_id", "")
	phase := argInt(args, "phase", -1)
	if err := s.manager.UpdatePhase(sessionID, phase); err != nil {
		return nil, err
	}
	return map[string]any{"success": true, "current_phase": phase}, nil
}

func (s *Server) handleGetPhase(ctx context.Context, args map[string]any) (any, error) {
	sessionID := argString(args, "session_id", "")
	phase, err := s.manager.GetPhase(sessionID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"session_id": sessionID, "current_phase": phase}, nil
}

func (s *Server) handleCheckpointPhase(ctx context.Context, args map[string]any) (any, error) {
	const op = "checkpoint_phase"
	sessionID := argString(args, "session_id", "")
	current, err := s.manager.GetPhase(sessionID)
	if err != nil {
		return nil, err
	}
	phase := argInt(args, "phase", current)

	snapshot := "{}"
	if raw, ok := args["snapshot"]; ok {
		b, merr := json.Marshal(raw)
		if merr != nil {
			return nil, errs.Validation(op, "snapshot must be JSON-encodable")
		}
		snapshot = string(b)
	}

	checkpointType := argString(args, "checkpoint_type", "phase")
	if err := s.manager.SaveCheckpoint(sessionID, phase, checkpointType, snapshot); err != nil {
		return nil, err
	}
	return map[string]any{
		"success":         true,
		"phase":           phase,
		"checkpoint_type": checkpointType,
	}, nil
}

func (s *Server) handleAcquireLock(ctx context.Context, args map[string]any) (any, error) {
	lockerID := argString(args, "locker_id", "")
	if err := s.manager.AcquireLock(argString(args, "session_id", ""), lockerID); err != nil {
		return nil, err
	}
	return map[string]any{"success": true, "locked_by": lockerID}, nil
}

func (s *Server) handleReleaseLock(ctx context.Context, args map[string]any) (any, error) {
	err := s.manager.ReleaseLock(
		argString(args, "session_id", ""),
		argString(args, "locker_id", ""),
	)
	if err != nil {
		return nil, err
	}
	return map[string]any{"success": true}, nil
}

func (s *Server) handleDeleteSession(ctx context.Context, args map[string]any) (any, error) {
	sessionID := argString(args, "session_id", "")
	if err := s.manager.DeleteCascade(sessionID); err != nil {
		return nil, err
	}
	return map[string]any{"success": true, "session_id": sessionID}, nil
}

func (s *Server) handleCleanupOrphans(ctx context.Context, args map[string]any) (any, error) {
	removed, err := s.manager.CleanupOrphans()
	if err != nil {
		return nil, err
	}
	var total int64
	for _, n := range removed {
		total += n
	}
	return map[string]any{"removed": removed, "total": total}, nil
}

func (s *Server) handleRecordMetric(ctx context.Context, args map[string]any) (any, error) {
	err := s.manager.RecordMetric(
		argString(args, "session_id", ""),
		argString(args, "metric_name", ""),
		argFloat(args, "metric_value", 0),
	)
	if err != nil {
		return nil, err
	}
	return map[string]any{"success": true}, nil
}

func (s *Server) handleLogActivity(ctx context.Context, args map[string]any) (any, error) {
	sessionID := argString(args, "session_id", "")

	// GetPhase doubles as the session existence check.
	current, err := s.manager.GetPhase(sessionID)
	if err != nil {
		return nil, err
	}
	phase := argInt(args, "phase", current)

	err = s.manager.LogActivity(
		sessionID,
		phase,
		argString(args, "event_type", ""),
		argString(args, "message", ""),
		argString(args, "agent_id", ""),
		argString(args, "details", ""),
	)
	if err != nil {
		return nil, err
	}
	return map[string]any{"success": true}, nil
}

func (s *Server) handleRenderProgress(ctx context.Context, args map[string]any) (any, error) {
	text, err := s.report.Progress(argString(args, "session_id", ""))
	if err != nil {
		return nil, err
	}
	return rawText(text), nil
}
