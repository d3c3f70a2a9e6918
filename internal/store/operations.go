package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"deepresearch/internal/types"
)

// ListOperations returns the session's recorded graph operations, oldest
// first.
func (s *Store) ListOperations(sessionID string) ([]types.Operation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT operation_id, session_id, operation_type, input_nodes, output_nodes,
		       parameters, created_at
		FROM got_operations WHERE session_id = ? ORDER BY created_at, operation_id`,
		sessionID)
	if err != nil {
		return nil, storageErr("store.ListOperations", err)
	}
	defer rows.Close()

	var out []types.Operation
	for rows.Next() {
		var op types.Operation
		var inputs, outputs, params sql.NullString
		if err := rows.Scan(&op.OperationID, &op.SessionID, &op.OperationType,
			&inputs, &outputs, &params, &op.CreatedAt); err != nil {
			return nil, storageErr("store.ListOperations", err)
		}
		if inputs.Valid && inputs.String != "" {
			if err := json.Unmarshal([]byte(inputs.String), &op.InputNodes); err != nil {
				return nil, storageErr("store.ListOperations", fmt.Errorf("decode input nodes: %w", err))
			}
		}
		if outputs.Valid && outputs.String != "" {
			if err := json.Unmarshal([]byte(outputs.String), &op.OutputNodes); err != nil {
				return nil, storageErr("store.ListOperations", fmt.Errorf("decode output nodes: %w", err))
			}
		}
		if params.Valid && params.String != "" {
			if err := json.Unmarshal([]byte(params.String), &op.Parameters); err != nil {
				return nil, storageErr("store.ListOperations", fmt.Errorf("decode parameters: %w", err))
			}
		}
		out = append(out, op)
	}
	return out, rows.Err()
}

// OperationCounts returns how many operations of each type the session has
// recorded.
func (s *Store) OperationCounts(sessionID string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT operation_type, COUNT(*) FROM got_operations
		WHERE session_id = ? GROUP BY operation_type`, sessionID)
	if err != nil {
		return nil, storageErr("store.OperationCounts", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var typ string
		var n int
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, storageErr("store.OperationCounts", err)
		}
		counts[typ] = n
	}
	return counts, rows.Err()
}

func insertOperationTx(tx *sql.Tx, op *types.Operation) error {
	inputs, err := json.Marshal(op.InputNodes)
	if err != nil {
		return fmt.Errorf("encode input nodes: %w", err)
	}
	outputs, err := json.Marshal(op.OutputNodes)
	if err != nil {
		return fmt.Errorf("encode output nodes: %w", err)
	}
	params := []byte("{}")
	if op.Parameters != nil {
		params, err = json.Marshal(op.Parameters)
		if err != nil {
			return fmt.Errorf("encode parameters: %w", err)
		}
	}
	_, err = tx.Exec(`
		INSERT INTO got_operations
		(operation_id, session_id, operation_type, input_nodes, output_nodes, parameters)
		VALUES (?, ?, ?, ?, ?, ?)`,
		op.OperationID, op.SessionID, op.OperationType,
		string(inputs), string(outputs), string(params),
	)
	if err != nil {
		return fmt.Errorf("insert operation %s: %w", op.OperationID, err)
	}
	return nil
}
