package store

import (
	"database/sql"
	"errors"

	"deepresearch/internal/errs"
	"deepresearch/internal/logging"
	"deepresearch/internal/types"
)

// InsertAgent registers a worker. SearchQueries arrives already JSON-encoded.
func (s *Store) InsertAgent(a *types.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	logging.Store().Debugf("inserting agent %s session=%s type=%s", a.AgentID, a.SessionID, a.AgentType)

	_, err := s.db.Exec(`
		INSERT INTO research_agents
		(agent_id, session_id, agent_type, agent_role, focus_description, search_queries, status, token_usage)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.AgentID, a.SessionID, a.AgentType, a.AgentRole, a.FocusDescription,
		a.SearchQueries, a.Status, a.TokenUsage,
	)
	return storageErr("store.InsertAgent", err)
}

// GetAgent loads one agent.
func (s *Store) GetAgent(agentID string) (*types.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT agent_id, session_id, agent_type, agent_role, focus_description, search_queries,
		       status, output_file, token_usage, error_message, created_at, updated_at, completed_at
		FROM research_agents WHERE agent_id = ?`, agentID)

	var a types.Agent
	err := row.Scan(
		&a.AgentID, &a.SessionID, &a.AgentType, &a.AgentRole, &a.FocusDescription,
		&a.SearchQueries, &a.Status, &a.OutputFile, &a.TokenUsage, &a.ErrorMessage,
		&a.CreatedAt, &a.UpdatedAt, &a.CompletedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFound("store.GetAgent", "agent", agentID)
	}
	if err != nil {
		return nil, storageErr("store.GetAgent", err)
	}
	return &a, nil
}

// UpdateAgentStatus sets status and optional output fields; terminal
// statuses stamp completed_at.
func (s *Store) UpdateAgentStatus(agentID, status, outputFile, errorMessage string, tokenUsage int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `UPDATE research_agents SET status = ?, updated_at = CURRENT_TIMESTAMP`
	args := []any{status}

	if outputFile != "" {
		query += `, output_file = ?`
		args = append(args, outputFile)
	}
	if errorMessage != "" {
		query += `, error_message = ?`
		args = append(args, errorMessage)
	}
	if tokenUsage > 0 {
		query += `, token_usage = ?`
		args = append(args, tokenUsage)
	}
	if types.AgentStatus(status).Terminal() {
		query += `, completed_at = CURRENT_TIMESTAMP`
	}
	query += ` WHERE agent_id = ?`
	args = append(args, agentID)

	res, err := s.db.Exec(query, args...)
	if err != nil {
		return storageErr("store.UpdateAgentStatus", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("store.UpdateAgentStatus", "agent", agentID)
	}
	return nil
}

// ActiveAgents returns the session's agents still deploying or running.
func (s *Store) ActiveAgents(sessionID string) ([]types.Agent, error) {
	return s.agentsWhere(
		`session_id = ? AND status IN ('deploying', 'running')`, sessionID)
}

// AgentsBySession returns every agent registered in the session.
func (s *Store) AgentsBySession(sessionID string) ([]types.Agent, error) {
	return s.agentsWhere(`session_id = ?`, sessionID)
}

func (s *Store) agentsWhere(where string, args ...any) ([]types.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT agent_id, session_id, agent_type, agent_role, focus_description, search_queries,
		       status, output_file, token_usage, error_message, created_at, updated_at, completed_at
		FROM research_agents WHERE `+where+` ORDER BY created_at, agent_id`, args...)
	if err != nil {
		return nil, storageErr("store.agentsWhere", err)
	}
	defer rows.Close()

	var out []types.Agent
	for rows.Next() {
		var a types.Agent
		if err := rows.Scan(
			&a.AgentID, &a.SessionID, &a.AgentType, &a.AgentRole, &a.FocusDescription,
			&a.SearchQueries, &a.Status, &a.OutputFile, &a.TokenUsage, &a.ErrorMessage,
			&a.CreatedAt, &a.UpdatedAt, &a.CompletedAt,
		); err != nil {
			return nil, storageErr("store.agentsWhere", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
