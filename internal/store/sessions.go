package store

import (
	"database/sql"
	"errors"

	"deepresearch/internal/errs"
	"deepresearch/internal/logging"
	"deepresearch/internal/types"
)

// InsertSession writes a new session row. The caller supplies the defaults
// for the session's research type.
func (s *Store) InsertSession(sess *types.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	logging.Store().Debugf("inserting session %s topic=%q type=%s", sess.SessionID, sess.ResearchTopic, sess.ResearchType)

	_, err := s.db.Exec(`
		INSERT INTO research_sessions
		(session_id, research_topic, research_type, output_directory, status, current_phase,
		 iteration_count, confidence, is_aggregated, budget_exhausted, max_iterations, confidence_threshold)
		VALUES (?, ?, ?, ?, ?, 0, 0, 0.0, 0, 0, ?, ?)`,
		sess.SessionID, sess.ResearchTopic, sess.ResearchType, sess.OutputDirectory,
		sess.Status, sess.MaxIterations, sess.ConfidenceThreshold,
	)
	return storageErr("store.InsertSession", err)
}

// GetSession loads one session with all state machine fields.
func (s *Store) GetSession(sessionID string) (*types.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT session_id, research_topic, research_type, output_directory, status, current_phase,
		       iteration_count, confidence, is_aggregated, budget_exhausted,
		       max_iterations, confidence_threshold,
		       locked_at, locked_by, created_at, updated_at, completed_at, metadata
		FROM research_sessions WHERE session_id = ?`, sessionID)

	var sess types.Session
	var isAggregated, budgetExhausted int
	err := row.Scan(
		&sess.SessionID, &sess.ResearchTopic, &sess.ResearchType, &sess.OutputDirectory,
		&sess.Status, &sess.CurrentPhase, &sess.IterationCount, &sess.Confidence,
		&isAggregated, &budgetExhausted, &sess.MaxIterations, &sess.ConfidenceThreshold,
		&sess.LockedAt, &sess.LockedBy, &sess.CreatedAt, &sess.UpdatedAt, &sess.CompletedAt, &sess.Metadata,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFound("store.GetSession", "session", sessionID)
	}
	if err != nil {
		return nil, storageErr("store.GetSession", err)
	}

	sess.IsAggregated = isAggregated == 1
	sess.BudgetExhausted = budgetExhausted == 1
	return &sess, nil
}

// ListSessions returns the most recent sessions, newest first.
func (s *Store) ListSessions(limit int) ([]types.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT session_id, research_topic, research_type, status, current_phase,
		       iteration_count, confidence, created_at
		FROM research_sessions ORDER BY created_at DESC, session_id LIMIT ?`, limit)
	if err != nil {
		return nil, storageErr("store.ListSessions", err)
	}
	defer rows.Close()

	var out []types.Session
	for rows.Next() {
		var sess types.Session
		if err := rows.Scan(&sess.SessionID, &sess.ResearchTopic, &sess.ResearchType,
			&sess.Status, &sess.CurrentPhase, &sess.IterationCount, &sess.Confidence,
			&sess.CreatedAt); err != nil {
			return nil, storageErr("store.ListSessions", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// UpdateSessionStatus sets the status; terminal statuses also stamp
// completed_at. Status validity is the session manager's concern.
func (s *Store) UpdateSessionStatus(sessionID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `UPDATE research_sessions SET status = ?, updated_at = CURRENT_TIMESTAMP`
	if status == string(types.SessionCompleted) || status == string(types.SessionFailed) {
		query += `, completed_at = CURRENT_TIMESTAMP`
	}
	query += ` WHERE session_id = ?`

	res, err := s.db.Exec(query, status, sessionID)
	if err != nil {
		return storageErr("store.UpdateSessionStatus", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("store.UpdateSessionStatus", "session", sessionID)
	}
	return nil
}

// IncrementIteration adds one to the iteration counter in a single statement
// and returns the new count. The database supplies the serialization.
func (s *Store) IncrementIteration(sessionID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`
		UPDATE research_sessions
		SET iteration_count = iteration_count + 1, updated_at = CURRENT_TIMESTAMP
		WHERE session_id = ?`, sessionID)
	if err != nil {
		return 0, storageErr("store.IncrementIteration", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, errs.NotFound("store.IncrementIteration", "session", sessionID)
	}

	var count int
	if err := s.db.QueryRow(
		`SELECT iteration_count FROM research_sessions WHERE session_id = ?`, sessionID,
	).Scan(&count); err != nil {
		return 0, storageErr("store.IncrementIteration", err)
	}
	return count, nil
}

// UpdateConfidence stores a confidence value. The session manager clamps the
// input to [0, 1] before it reaches here.
func (s *Store) UpdateConfidence(sessionID string, confidence float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`
		UPDATE research_sessions
		SET confidence = ?, updated_at = CURRENT_TIMESTAMP
		WHERE session_id = ?`, confidence, sessionID)
	if err != nil {
		return storageErr("store.UpdateConfidence", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("store.UpdateConfidence", "session", sessionID)
	}
	return nil
}

// SetAggregated flips the aggregation flag.
func (s *Store) SetAggregated(sessionID string, aggregated bool) error {
	return s.setFlag(sessionID, "is_aggregated", aggregated, "store.SetAggregated")
}

// SetBudgetExhausted flips the budget flag.
func (s *Store) SetBudgetExhausted(sessionID string, exhausted bool) error {
	return s.setFlag(sessionID, "budget_exhausted", exhausted, "store.SetBudgetExhausted")
}

func (s *Store) setFlag(sessionID, column string, value bool, op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	val := 0
	if value {
		val = 1
	}
	res, err := s.db.Exec(
		`UPDATE research_sessions SET `+column+` = ?, updated_at = CURRENT_TIMESTAMP WHERE session_id = ?`,
		val, sessionID)
	if err != nil {
		return storageErr(op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound(op, "session", sessionID)
	}
	return nil
}

// UpdatePhase stores the advisory phase number.
func (s *Store) UpdatePhase(sessionID string, phase int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`
		UPDATE research_sessions
		SET current_phase = ?, updated_at = CURRENT_TIMESTAMP
		WHERE session_id = ?`, phase, sessionID)
	if err != nil {
		return storageErr("store.UpdatePhase", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("store.UpdatePhase", "session", sessionID)
	}
	return nil
}

// WriteLock overwrites the advisory lock fields. Staleness and contention
// checks happen in the session manager before this is called.
func (s *Store) WriteLock(sessionID, lockedBy, lockedAt string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`
		UPDATE research_sessions
		SET locked_at = ?, locked_by = ?, updated_at = CURRENT_TIMESTAMP
		WHERE session_id = ?`, lockedAt, lockedBy, sessionID)
	if err != nil {
		return storageErr("store.WriteLock", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("store.WriteLock", "session", sessionID)
	}
	return nil
}

// ClearLock releases the lock if held by lockerID or by nobody.
func (s *Store) ClearLock(sessionID, lockerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		UPDATE research_sessions
		SET locked_at = NULL, locked_by = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE session_id = ? AND (locked_by = ? OR locked_by IS NULL)`,
		sessionID, lockerID)
	return storageErr("store.ClearLock", err)
}
