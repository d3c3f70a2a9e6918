package store

import (
	"database/sql"
	"errors"
	"fmt"

	"deepresearch/internal/errs"
	"deepresearch/internal/logging"
	"deepresearch/internal/types"
)

// PathScore pairs a path with its freshly computed quality score, ordered
// the way the scorer visited them.
type PathScore struct {
	PathID string
	Score  float64
}

const pathColumns = `path_id, session_id, parent_id, node_type, focus, query, content, summary,
	quality_score, compression_ratio, status, depth, created_at, updated_at`

func scanPath(scanner interface{ Scan(...any) error }) (*types.Path, error) {
	var p types.Path
	err := scanner.Scan(
		&p.PathID, &p.SessionID, &p.ParentID, &p.NodeType, &p.Focus, &p.Query,
		&p.Content, &p.Summary, &p.QualityScore, &p.CompressionRatio,
		&p.Status, &p.Depth, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetPath loads one path.
func (s *Store) GetPath(pathID string) (*types.Path, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`SELECT `+pathColumns+` FROM got_paths WHERE path_id = ?`, pathID)
	p, err := scanPath(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFound("store.GetPath", "path", pathID)
	}
	if err != nil {
		return nil, storageErr("store.GetPath", err)
	}
	return p, nil
}

// ListPaths returns the session's paths in stable creation order. The
// decision engine depends on this ordering for byte-identical output.
func (s *Store) ListPaths(sessionID string) ([]types.Path, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT `+pathColumns+` FROM got_paths WHERE session_id = ? ORDER BY created_at, path_id`,
		sessionID)
	if err != nil {
		return nil, storageErr("store.ListPaths", err)
	}
	defer rows.Close()

	var out []types.Path
	for rows.Next() {
		p, err := scanPath(rows)
		if err != nil {
			return nil, storageErr("store.ListPaths", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// UpdatePathDelivery sets a path's status, optionally recording delivered
// content, summary, and compression ratio in the same statement. Transition
// validity is the engine's concern.
func (s *Store) UpdatePathDelivery(pathID, status, content, summary string, ratio float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `UPDATE got_paths SET status = ?, updated_at = CURRENT_TIMESTAMP`
	args := []any{status}

	if content != "" {
		query += `, content = ?`
		args = append(args, content)
	}
	if summary != "" {
		query += `, summary = ?`
		args = append(args, summary)
	}
	if ratio > 0 {
		query += `, compression_ratio = ?`
		args = append(args, ratio)
	}
	query += ` WHERE path_id = ?`
	args = append(args, pathID)

	res, err := s.db.Exec(query, args...)
	if err != nil {
		return storageErr("store.UpdatePathDelivery", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("store.UpdatePathDelivery", "path", pathID)
	}
	return nil
}

// ApplyGeneration inserts the generated paths (root included when the graph
// was empty) and the Generate operation in one transaction.
func (s *Store) ApplyGeneration(paths []*types.Path, op *types.Operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	logging.Store().Debugf("applying generation: session=%s paths=%d", op.SessionID, len(paths))

	tx, err := s.db.Begin()
	if err != nil {
		return storageErr("store.ApplyGeneration", err)
	}
	defer tx.Rollback()

	for _, p := range paths {
		if err := insertPathTx(tx, p); err != nil {
			return storageErr("store.ApplyGeneration", err)
		}
	}
	if err := insertOperationTx(tx, op); err != nil {
		return storageErr("store.ApplyGeneration", err)
	}
	return storageErr("store.ApplyGeneration", tx.Commit())
}

// ApplyRefinement inserts the refinement clone and its Refine operation in
// one transaction. The target path is left untouched.
func (s *Store) ApplyRefinement(child *types.Path, op *types.Operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return storageErr("store.ApplyRefinement", err)
	}
	defer tx.Rollback()

	if err := insertPathTx(tx, child); err != nil {
		return storageErr("store.ApplyRefinement", err)
	}
	if err := insertOperationTx(tx, op); err != nil {
		return storageErr("store.ApplyRefinement", err)
	}
	return storageErr("store.ApplyRefinement", tx.Commit())
}

// ApplyScoring persists computed scores, marks the pruned set, and records
// the Score and Prune operations, atomically.
func (s *Store) ApplyScoring(scored []PathScore, prunedIDs []string, scoreOp, pruneOp *types.Operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	logging.Store().Debugf("applying scoring: session=%s scored=%d pruned=%d",
		scoreOp.SessionID, len(scored), len(prunedIDs))

	tx, err := s.db.Begin()
	if err != nil {
		return storageErr("store.ApplyScoring", err)
	}
	defer tx.Rollback()

	for _, ps := range scored {
		if _, err := tx.Exec(
			`UPDATE got_paths SET quality_score = ?, updated_at = CURRENT_TIMESTAMP WHERE path_id = ?`,
			ps.Score, ps.PathID); err != nil {
			return storageErr("store.ApplyScoring", err)
		}
	}
	for _, id := range prunedIDs {
		if _, err := tx.Exec(
			`UPDATE got_paths SET status = 'pruned', updated_at = CURRENT_TIMESTAMP WHERE path_id = ?`,
			id); err != nil {
			return storageErr("store.ApplyScoring", err)
		}
	}
	if err := insertOperationTx(tx, scoreOp); err != nil {
		return storageErr("store.ApplyScoring", err)
	}
	if err := insertOperationTx(tx, pruneOp); err != nil {
		return storageErr("store.ApplyScoring", err)
	}
	return storageErr("store.ApplyScoring", tx.Commit())
}

// ApplyAggregation inserts the aggregated path, marks the parents, flips the
// session's aggregation flag, stores the derived confidence, and records the
// Aggregate operation, atomically.
func (s *Store) ApplyAggregation(agg *types.Path, parentIDs []string, op *types.Operation, confidence float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	logging.Store().Debugf("applying aggregation: session=%s parents=%d", agg.SessionID, len(parentIDs))

	tx, err := s.db.Begin()
	if err != nil {
		return storageErr("store.ApplyAggregation", err)
	}
	defer tx.Rollback()

	if err := insertPathTx(tx, agg); err != nil {
		return storageErr("store.ApplyAggregation", err)
	}
	for _, id := range parentIDs {
		if _, err := tx.Exec(
			`UPDATE got_paths SET status = 'aggregated', updated_at = CURRENT_TIMESTAMP WHERE path_id = ?`,
			id); err != nil {
			return storageErr("store.ApplyAggregation", err)
		}
	}
	if _, err := tx.Exec(
		`UPDATE research_sessions SET is_aggregated = 1, confidence = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE session_id = ?`, confidence, agg.SessionID); err != nil {
		return storageErr("store.ApplyAggregation", err)
	}
	if err := insertOperationTx(tx, op); err != nil {
		return storageErr("store.ApplyAggregation", err)
	}
	return storageErr("store.ApplyAggregation", tx.Commit())
}

func insertPathTx(tx *sql.Tx, p *types.Path) error {
	if p.CompressionRatio == 0 {
		p.CompressionRatio = 1.0
	}
	_, err := tx.Exec(`
		INSERT INTO got_paths
		(path_id, session_id, parent_id, node_type, focus, query, content, summary,
		 quality_score, compression_ratio, status, depth)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.PathID, p.SessionID, p.ParentID, p.NodeType, p.Focus, p.Query,
		p.Content, p.Summary, p.QualityScore, p.CompressionRatio, p.Status, p.Depth,
	)
	if err != nil {
		return fmt.Errorf("insert path %s: %w", p.PathID, err)
	}
	return nil
}
