// Package session layers lifecycle rules on the raw store: research-type
// defaults, status validation, advisory locking with staleness, and the
// activity trail every mutation leaves behind.
package session

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"deepresearch/internal/config"
	"deepresearch/internal/errs"
	"deepresearch/internal/logging"
	"deepresearch/internal/store"
	"deepresearch/internal/types"
)

// Manager owns session and agent lifecycle operations.
type Manager struct {
	store *store.Store
	cfg   *config.Config
}

// NewManager wires the manager onto an open store.
func NewManager(st *store.Store, cfg *config.Config) *Manager {
	return &Manager{store: st, cfg: cfg}
}

// Create registers a new research session with type-appropriate budgets.
func (m *Manager) Create(topic, outputDir, researchType string) (*types.Session, error) {
	const op = "session.Create"
	if topic == "" {
		return nil, errs.Validation(op, "research_topic is required")
	}
	if researchType == "" {
		researchType = string(types.ResearchTypeDeep)
	}
	if researchType != string(types.ResearchTypeDeep) && researchType != string(types.ResearchTypeQuick) {
		return nil, errs.Validation(op, fmt.Sprintf("research_type must be quick or deep, got %q", researchType))
	}

	maxIter, threshold := types.ResearchType(researchType).Defaults()
	sess := &types.Session{
		SessionID:           uuid.New().String(),
		ResearchTopic:       topic,
		ResearchType:        researchType,
		OutputDirectory:     outputDir,
		Status:              string(types.SessionInitializing),
		MaxIterations:       maxIter,
		ConfidenceThreshold: threshold,
	}
	if err := m.store.InsertSession(sess); err != nil {
		return nil, err
	}
	if err := m.store.LogActivity(sess.SessionID, 0, string(types.EventPhaseStart),
		fmt.Sprintf("Session created: %s (%s)", topic, researchType), "", ""); err != nil {
		logging.Session().Warnf("failed to log session creation: %v", err)
	}

	logging.Session().Infof("created session %s type=%s max_iterations=%d threshold=%.2f",
		sess.SessionID, researchType, maxIter, threshold)
	return m.store.GetSession(sess.SessionID)
}

// Get loads a session.
func (m *Manager) Get(sessionID string) (*types.Session, error) {
	return m.store.GetSession(sessionID)
}

// List returns recent sessions, newest first.
func (m *Manager) List(limit int) ([]types.Session, error) {
	return m.store.ListSessions(limit)
}

// UpdateStatus moves a session to a new lifecycle status.
func (m *Manager) UpdateStatus(sessionID, status string) error {
	const op = "session.UpdateStatus"
	if !types.ValidSessionStatus(status) {
		return errs.InvalidStatus(op, status)
	}
	if err := m.store.UpdateSessionStatus(sessionID, status); err != nil {
		return err
	}
	event := types.EventInfo
	if status == string(types.SessionCompleted) || status == string(types.SessionFailed) {
		event = types.EventPhaseComplete
	}
	if err := m.store.LogActivity(sessionID, 0, string(event),
		"Status changed to "+status, "", ""); err != nil {
		logging.Session().Warnf("failed to log status change: %v", err)
	}
	return nil
}

// IncrementIteration bumps the iteration counter and returns the new value.
func (m *Manager) IncrementIteration(sessionID string) (int, error) {
	return m.store.IncrementIteration(sessionID)
}

// UpdateConfidence stores a confidence value, clamped to [0, 1].
func (m *Manager) UpdateConfidence(sessionID string, confidence float64) error {
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	return m.store.UpdateConfidence(sessionID, confidence)
}

// SetAggregated flips the session's aggregation flag.
func (m *Manager) SetAggregated(sessionID string, v bool) error {
	return m.store.SetAggregated(sessionID, v)
}

// SetBudgetExhausted flips the session's budget flag.
func (m *Manager) SetBudgetExhausted(sessionID string, v bool) error {
	return m.store.SetBudgetExhausted(sessionID, v)
}

// AcquireLock takes the session's advisory lock. Re-acquisition by the
// current holder refreshes the timestamp; a lock older than the staleness
// horizon may be preempted.
func (m *Manager) AcquireLock(sessionID, lockerID string) error {
	const op = "session.AcquireLock"
	if lockerID == "" {
		return errs.Validation(op, "locker_id is required")
	}
	sess, err := m.store.GetSession(sessionID)
	if err != nil {
		return err
	}

	if sess.LockedBy.Valid && sess.LockedBy.String != "" && sess.LockedBy.String != lockerID {
		if m.lockLive(sess.LockedAt.String) {
			return errs.LockContention(op, sessionID, sess.LockedBy.String, sess.LockedAt.String)
		}
		logging.Session().Warnf("preempting stale lock on %s held by %s since %s",
			sessionID, sess.LockedBy.String, sess.LockedAt.String)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	if err := m.store.WriteLock(sessionID, lockerID, now); err != nil {
		return err
	}
	logging.Session().Debugf("lock acquired: session=%s locker=%s", sessionID, lockerID)
	return nil
}

// ReleaseLock drops the advisory lock if lockerID holds it. Releasing an
// unheld or foreign lock is a no-op.
func (m *Manager) ReleaseLock(sessionID, lockerID string) error {
	if err := m.store.ClearLock(sessionID, lockerID); err != nil {
		return err
	}
	logging.Session().Debugf("lock released: session=%s locker=%s", sessionID, lockerID)
	return nil
}

// IsLocked reports whether a live lock exists and who holds it. Stale
// holders read as unlocked.
func (m *Manager) IsLocked(sessionID string) (bool, string, error) {
	sess, err := m.store.GetSession(sessionID)
	if err != nil {
		return false, "", err
	}
	if !sess.LockedBy.Valid || sess.LockedBy.String == "" {
		return false, "", nil
	}
	if !m.lockLive(sess.LockedAt.String) {
		return false, "", nil
	}
	return true, sess.LockedBy.String, nil
}

// lockLive reports whether a lock timestamp is within the staleness horizon.
// Unparseable timestamps count as stale so a corrupt row cannot wedge the
// session forever.
func (m *Manager) lockLive(lockedAt string) bool {
	if lockedAt == "" {
		return false
	}
	t, err := time.Parse(time.RFC3339, lockedAt)
	if err != nil {
		return false
	}
	return time.Since(t) < m.cfg.LockStaleness()
}

// LogActivity appends a validated entry to the session timeline.
func (m *Manager) LogActivity(sessionID string, phase int, eventType, message, agentID, details string) error {
	const op = "session.LogActivity"
	if !types.ValidEventType(eventType) {
		return errs.Validation(op, fmt.Sprintf("invalid event_type: %s", eventType))
	}
	if message == "" {
		return errs.Validation(op, "message is required")
	}
	return m.store.LogActivity(sessionID, phase, eventType, message, agentID, details)
}

// RecentActivity returns the newest timeline entries.
func (m *Manager) RecentActivity(sessionID string, limit int) ([]types.ActivityEntry, error) {
	return m.store.RecentActivity(sessionID, limit)
}

// SaveCheckpoint snapshots session state at a phase boundary.
func (m *Manager) SaveCheckpoint(sessionID string, phase int, checkpointType, snapshot string) error {
	if _, err := m.store.GetSession(sessionID); err != nil {
		return err
	}
	return m.store.SaveCheckpoint(sessionID, phase, checkpointType, snapshot)
}

// LatestCheckpoint returns the most recent snapshot.
func (m *Manager) LatestCheckpoint(sessionID string) (*types.Checkpoint, error) {
	return m.store.LatestCheckpoint(sessionID)
}

// UpdatePhase records the coordinator's advisory phase, 0 through 7.
func (m *Manager) UpdatePhase(sessionID string, phase int) error {
	const op = "session.UpdatePhase"
	if phase < 0 || phase > 7 {
		return errs.Validation(op, fmt.Sprintf("phase must be 0-7, got %d", phase))
	}
	if err := m.store.UpdatePhase(sessionID, phase); err != nil {
		return err
	}
	if err := m.store.LogActivity(sessionID, phase, string(types.EventPhaseStart),
		fmt.Sprintf("Phase %d started", phase), "", ""); err != nil {
		logging.Session().Warnf("failed to log phase change: %v", err)
	}
	return nil
}

// GetPhase returns the session's advisory phase.
func (m *Manager) GetPhase(sessionID string) (int, error) {
	sess, err := m.store.GetSession(sessionID)
	if err != nil {
		return 0, err
	}
	return sess.CurrentPhase, nil
}

// RecordMetric stores one named measurement against the session's current
// phase.
func (m *Manager) RecordMetric(sessionID, name string, value float64) error {
	const op = "session.RecordMetric"
	if name == "" {
		return errs.Validation(op, "metric_name is required")
	}
	sess, err := m.store.GetSession(sessionID)
	if err != nil {
		return err
	}
	return m.store.RecordMetric(sessionID, name, value, sess.CurrentPhase)
}

// Metrics returns recorded measurements, optionally filtered by name.
func (m *Manager) Metrics(sessionID, name string) ([]types.Metric, error) {
	return m.store.MetricsBySession(sessionID, name)
}

// RegisterAgent records a worker deployment inside a session. Coordinators
// may name their own agents; an empty agentID gets a generated UUID.
func (m *Manager) RegisterAgent(sessionID, agentID, agentType, role, focus string, queries []string) (*types.Agent, error) {
	const op = "session.RegisterAgent"
	if agentType == "" {
		return nil, errs.Validation(op, "agent_type is required")
	}
	if _, err := m.store.GetSession(sessionID); err != nil {
		return nil, err
	}
	if agentID == "" {
		agentID = uuid.New().String()
	}

	queriesJSON := ""
	if len(queries) > 0 {
		queriesJSON = encodeQueries(queries)
	}
	agent := &types.Agent{
		AgentID:          agentID,
		SessionID:        sessionID,
		AgentType:        agentType,
		AgentRole:        types.NullableString(role),
		FocusDescription: types.NullableString(focus),
		SearchQueries:    types.NullableString(queriesJSON),
		Status:           string(types.AgentDeploying),
	}
	if err := m.store.InsertAgent(agent); err != nil {
		return nil, err
	}
	if err := m.store.LogActivity(sessionID, 0, string(types.EventAgentDeploy),
		fmt.Sprintf("Deployed %s agent", agentType), agent.AgentID, ""); err != nil {
		logging.Session().Warnf("failed to log agent deploy: %v", err)
	}
	return m.store.GetAgent(agent.AgentID)
}

// UpdateAgentStatus transitions a worker's lifecycle state.
func (m *Manager) UpdateAgentStatus(agentID, status, outputFile, errorMessage string, tokenUsage int) error {
	const op = "session.UpdateAgentStatus"
	if !types.ValidAgentStatus(status) {
		return errs.InvalidStatus(op, status)
	}
	agent, err := m.store.GetAgent(agentID)
	if err != nil {
		return err
	}
	if err := m.store.UpdateAgentStatus(agentID, status, outputFile, errorMessage, tokenUsage); err != nil {
		return err
	}
	if types.AgentStatus(status).Terminal() {
		event := types.EventAgentComplete
		msg := fmt.Sprintf("Agent %s %s", agent.AgentType, status)
		if status != string(types.AgentCompleted) {
			event = types.EventError
			if errorMessage != "" {
				msg += ": " + errorMessage
			}
		}
		if err := m.store.LogActivity(agent.SessionID, 0, string(event), msg, agentID, ""); err != nil {
			logging.Session().Warnf("failed to log agent completion: %v", err)
		}
	}
	return nil
}

// GetAgent loads one worker registration.
func (m *Manager) GetAgent(agentID string) (*types.Agent, error) {
	return m.store.GetAgent(agentID)
}

// ActiveAgents returns workers still deploying or running.
func (m *Manager) ActiveAgents(sessionID string) ([]types.Agent, error) {
	if _, err := m.store.GetSession(sessionID); err != nil {
		return nil, err
	}
	return m.store.ActiveAgents(sessionID)
}

// AgentsBySession returns every worker registered in the session.
func (m *Manager) AgentsBySession(sessionID string) ([]types.Agent, error) {
	return m.store.AgentsBySession(sessionID)
}

// DeleteCascade removes a session and every dependent row.
func (m *Manager) DeleteCascade(sessionID string) error {
	return m.store.DeleteSessionCascade(sessionID)
}

// CleanupOrphans sweeps rows whose session no longer exists.
func (m *Manager) CleanupOrphans() (map[string]int64, error) {
	return m.store.CleanupOrphans()
}

func encodeQueries(queries []string) string {
	b, err := json.Marshal(queries)
	if err != nil {
		return "[]"
	}
	return string(b)
}
