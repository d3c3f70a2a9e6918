package store

import (
	"database/sql"

	"deepresearch/internal/errs"
	"deepresearch/internal/types"
)

// StageIngest queues one payload for later processing and returns its row id.
func (s *Store) StageIngest(item *types.IngestedItem) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if item.ContentType == "" {
		item.ContentType = "text/plain"
	}
	res, err := s.db.Exec(`
		INSERT INTO ingested_data (session_id, source, content_type, content, original_length, status)
		VALUES (?, ?, ?, ?, ?, 'pending')`,
		item.SessionID, types.NullableString(item.Source), item.ContentType,
		item.Content, item.OriginalLength,
	)
	if err != nil {
		return 0, storageErr("store.StageIngest", err)
	}
	id, err := res.LastInsertId()
	return id, storageErr("store.StageIngest", err)
}

// ClaimPending atomically moves up to limit pending items to processing and
// returns them, oldest first. Claimed items must be finished with
// CompleteIngest.
func (s *Store) ClaimPending(sessionID string, limit int) ([]types.IngestedItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 20
	}
	tx, err := s.db.Begin()
	if err != nil {
		return nil, storageErr("store.ClaimPending", err)
	}
	defer tx.Rollback()

	rows, err := tx.Query(`
		SELECT id, session_id, source, content_type, content, original_length,
		       status, error_message, created_at, processed_at
		FROM ingested_data WHERE session_id = ? AND status = 'pending'
		ORDER BY id LIMIT ?`,
		sessionID, limit)
	if err != nil {
		return nil, storageErr("store.ClaimPending", err)
	}

	var items []types.IngestedItem
	for rows.Next() {
		var it types.IngestedItem
		var source sql.NullString
		if err := rows.Scan(&it.ID, &it.SessionID, &source, &it.ContentType,
			&it.Content, &it.OriginalLength, &it.Status, &it.ErrorMessage,
			&it.CreatedAt, &it.ProcessedAt); err != nil {
			rows.Close()
			return nil, storageErr("store.ClaimPending", err)
		}
		it.Source = source.String
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, storageErr("store.ClaimPending", err)
	}
	rows.Close()

	for i := range items {
		if _, err := tx.Exec(
			`UPDATE ingested_data SET status = 'processing' WHERE id = ?`,
			items[i].ID); err != nil {
			return nil, storageErr("store.ClaimPending", err)
		}
		items[i].Status = string(types.IngestProcessing)
	}
	if err := tx.Commit(); err != nil {
		return nil, storageErr("store.ClaimPending", err)
	}
	return items, nil
}

// CompleteIngest finishes a claimed item. An empty errMsg marks it completed;
// otherwise it is failed with the message recorded.
func (s *Store) CompleteIngest(id int64, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := string(types.IngestCompleted)
	if errMsg != "" {
		status = string(types.IngestFailed)
	}
	res, err := s.db.Exec(`
		UPDATE ingested_data
		SET status = ?, error_message = ?, processed_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		status, types.NullableString(errMsg), id)
	if err != nil {
		return storageErr("store.CompleteIngest", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("store.CompleteIngest", "ingested item", "")
	}
	return nil
}

// PendingCount reports how many staged items await processing.
func (s *Store) PendingCount(sessionID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM ingested_data WHERE session_id = ? AND status = 'pending'`,
		sessionID).Scan(&n)
	return n, storageErr("store.PendingCount", err)
}
