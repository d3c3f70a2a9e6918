package store

import (
	"database/sql"
	"errors"

	"deepresearch/internal/errs"
	"deepresearch/internal/types"
)

// LogActivity appends one entry to the session's activity log.
func (s *Store) LogActivity(sessionID string, phase int, eventType, message, agentID, details string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO activity_log (session_id, phase, event_type, message, agent_id, details)
		VALUES (?, ?, ?, ?, ?, ?)`,
		sessionID, phase, eventType, message,
		types.NullableString(agentID), types.NullableString(details),
	)
	return storageErr("store.LogActivity", err)
}

// RecentActivity returns the session's newest log entries, most recent first.
// limit <= 0 means 50.
func (s *Store) RecentActivity(sessionID string, limit int) ([]types.ActivityEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT id, session_id, phase, event_type, message, agent_id, details, created_at
		FROM activity_log WHERE session_id = ?
		ORDER BY id DESC LIMIT ?`,
		sessionID, limit)
	if err != nil {
		return nil, storageErr("store.RecentActivity", err)
	}
	defer rows.Close()

	var out []types.ActivityEntry
	for rows.Next() {
		var e types.ActivityEntry
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Phase, &e.EventType,
			&e.Message, &e.AgentID, &e.Details, &e.CreatedAt); err != nil {
			return nil, storageErr("store.RecentActivity", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// SaveCheckpoint records a session snapshot at a phase boundary.
func (s *Store) SaveCheckpoint(sessionID string, phase int, checkpointType, snapshot string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if checkpointType == "" {
		checkpointType = "phase"
	}
	if snapshot == "" {
		snapshot = "{}"
	}
	_, err := s.db.Exec(`
		INSERT INTO checkpoints (session_id, phase_number, checkpoint_type, state_snapshot)
		VALUES (?, ?, ?, ?)`,
		sessionID, phase, checkpointType, snapshot,
	)
	return storageErr("store.SaveCheckpoint", err)
}

// LatestCheckpoint returns the most recent checkpoint for the session.
func (s *Store) LatestCheckpoint(sessionID string) (*types.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT id, session_id, phase_number, checkpoint_type, state_snapshot, created_at
		FROM checkpoints WHERE session_id = ?
		ORDER BY id DESC LIMIT 1`,
		sessionID)

	var cp types.Checkpoint
	err := row.Scan(&cp.ID, &cp.SessionID, &cp.PhaseNumber, &cp.CheckpointType,
		&cp.StateSnapshot, &cp.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFound("store.LatestCheckpoint", "checkpoint for session", sessionID)
	}
	if err != nil {
		return nil, storageErr("store.LatestCheckpoint", err)
	}
	return &cp, nil
}

// RecordMetric appends one named measurement for the session.
func (s *Store) RecordMetric(sessionID, name string, value float64, phase int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO research_metrics (session_id, metric_name, metric_value, phase)
		VALUES (?, ?, ?, ?)`,
		sessionID, name, value, phase,
	)
	return storageErr("store.RecordMetric", err)
}

// MetricsBySession returns the session's metrics, optionally narrowed to one
// name, oldest first.
func (s *Store) MetricsBySession(sessionID, name string) ([]types.Metric, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, session_id, metric_name, metric_value, phase, created_at
		FROM research_metrics WHERE session_id = ?`
	args := []any{sessionID}
	if name != "" {
		query += ` AND metric_name = ?`
		args = append(args, name)
	}
	query += ` ORDER BY id`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, storageErr("store.MetricsBySession", err)
	}
	defer rows.Close()

	var out []types.Metric
	for rows.Next() {
		var m types.Metric
		if err := rows.Scan(&m.ID, &m.SessionID, &m.MetricName, &m.MetricValue,
			&m.Phase, &m.CreatedAt); err != nil {
			return nil, storageErr("store.MetricsBySession", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
