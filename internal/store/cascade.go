package store

import (
	"fmt"

	"deepresearch/internal/errs"
	"deepresearch/internal/logging"
)

// DeleteSessionCascade removes the session and every row that references it,
// in one transaction. The dependent tables go first so a mid-delete failure
// never leaves children without a parent.
func (s *Store) DeleteSessionCascade(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return storageErr("store.DeleteSessionCascade", err)
	}
	defer tx.Rollback()

	for _, table := range dependentTables {
		if _, err := tx.Exec(
			fmt.Sprintf(`DELETE FROM %s WHERE session_id = ?`, table), sessionID); err != nil {
			return storageErr("store.DeleteSessionCascade",
				fmt.Errorf("delete from %s: %w", table, err))
		}
	}

	res, err := tx.Exec(`DELETE FROM research_sessions WHERE session_id = ?`, sessionID)
	if err != nil {
		return storageErr("store.DeleteSessionCascade", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("store.DeleteSessionCascade", "session", sessionID)
	}
	if err := tx.Commit(); err != nil {
		return storageErr("store.DeleteSessionCascade", err)
	}

	logging.Store().Infof("deleted session %s and all dependent rows", sessionID)
	return nil
}

// CleanupOrphans removes rows in dependent tables whose session no longer
// exists and returns per-table deletion counts for tables that had any.
func (s *Store) CleanupOrphans() (map[string]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return nil, storageErr("store.CleanupOrphans", err)
	}
	defer tx.Rollback()

	removed := make(map[string]int64)
	for _, table := range dependentTables {
		res, err := tx.Exec(fmt.Sprintf(
			`DELETE FROM %s WHERE session_id NOT IN (SELECT session_id FROM research_sessions)`,
			table))
		if err != nil {
			return nil, storageErr("store.CleanupOrphans",
				fmt.Errorf("clean %s: %w", table, err))
		}
		if n, _ := res.RowsAffected(); n > 0 {
			removed[table] = n
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, storageErr("store.CleanupOrphans", err)
	}

	if len(removed) > 0 {
		logging.Store().Infof("cleanup removed orphaned rows from %d tables", len(removed))
	}
	return removed, nil
}
