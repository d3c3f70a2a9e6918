package report

import (
	"strings"
	"testing"

	"github.com/google/uuid"

	"deepresearch/internal/errs"
	"deepresearch/internal/store"
	"deepresearch/internal/types"
)

func newTestRenderer(t *testing.T) (*Renderer, *store.Store, string) {
	t.Helper()
	st, err := store.NewStore(":memory:")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	sess := &types.Session{
		SessionID:           uuid.New().String(),
		ResearchTopic:       "quantum error correction",
		ResearchType:        "deep",
		OutputDirectory:     t.TempDir(),
		Status:              "executing",
		MaxIterations:       10,
		ConfidenceThreshold: 0.9,
	}
	if err := st.InsertSession(sess); err != nil {
		t.Fatalf("InsertSession failed: %v", err)
	}
	return NewRenderer(st), st, sess.SessionID
}

func seedPath(t *testing.T, st *store.Store, sessionID, status string, score float64) string {
	t.Helper()
	p := &types.Path{
		PathID:       uuid.New().String(),
		SessionID:    sessionID,
		NodeType:     "generated",
		Focus:        "angle",
		Query:        "query",
		Status:       status,
		QualityScore: score,
	}
	op := &types.Operation{
		OperationID:   uuid.New().String(),
		SessionID:     sessionID,
		OperationType: "Generate",
		OutputNodes:   []string{p.PathID},
	}
	if err := st.ApplyGeneration([]*types.Path{p}, op); err != nil {
		t.Fatalf("Seeding path failed: %v", err)
	}
	return p.PathID
}

func TestProgressEmptySession(t *testing.T) {
	r, _, sid := newTestRenderer(t)

	out, err := r.Progress(sid)
	if err != nil {
		t.Fatalf("Progress failed: %v", err)
	}
	for _, want := range []string{
		"# Research Progress",
		"**Topic:** quantum error correction",
		"**Status:** executing | **Phase:** 0 | **Iteration:** 0/10",
		"**Confidence:** 0.00 (threshold 0.90)",
		"## Paths (0)",
		"No paths generated yet.",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Report missing %q:\n%s", want, out)
		}
	}
	for _, absent := range []string{"## Agents", "## Recent Activity", "## Metrics", "**Flags:**"} {
		if strings.Contains(out, absent) {
			t.Errorf("Empty session report should not contain %q:\n%s", absent, out)
		}
	}
}

func TestProgressFullSession(t *testing.T) {
	r, st, sid := newTestRenderer(t)

	seedPath(t, st, sid, "active", 0)
	seedPath(t, st, sid, "active", 0)
	seedPath(t, st, sid, "completed", 8.5)
	seedPath(t, st, sid, "pruned", 1.5)

	for _, a := range []struct{ id, status string }{
		{"agent-runner", "running"},
		{"agent-done", "completed"},
	} {
		if err := st.InsertAgent(&types.Agent{
			AgentID:   a.id,
			SessionID: sid,
			AgentType: "web_researcher",
			Status:    a.status,
		}); err != nil {
			t.Fatalf("InsertAgent failed: %v", err)
		}
	}

	if err := st.LogActivity(sid, 1, "phase_start", "starting discovery", "", ""); err != nil {
		t.Fatalf("LogActivity failed: %v", err)
	}
	if err := st.LogActivity(sid, 2, "agent_complete", "angle one finished", "agent-done", ""); err != nil {
		t.Fatalf("LogActivity failed: %v", err)
	}

	if err := st.RecordMetric(sid, "mean_quality_score", 4.0, 1); err != nil {
		t.Fatalf("RecordMetric failed: %v", err)
	}
	if err := st.RecordMetric(sid, "mean_quality_score", 6.5, 2); err != nil {
		t.Fatalf("RecordMetric failed: %v", err)
	}
	if err := st.SetAggregated(sid, true); err != nil {
		t.Fatalf("SetAggregated failed: %v", err)
	}

	out, err := r.Progress(sid)
	if err != nil {
		t.Fatalf("Progress failed: %v", err)
	}

	for _, want := range []string{
		"**Flags:** aggregated",
		"## Paths (4)",
		"- active: 2\n- completed: 1\n- pruned: 1",
		"## Agents (2)",
		"- completed: 1\n- running: 1",
		"[phase 2] agent_complete: angle one finished (agent agent-done)",
		"[phase 1] phase_start: starting discovery",
		"## Metrics\n- mean_quality_score: 6.50",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Report missing %q:\n%s", want, out)
		}
	}

	// Activity lists newest entries first.
	newer := strings.Index(out, "agent_complete")
	older := strings.Index(out, "phase_start")
	if newer < 0 || older < 0 || newer > older {
		t.Errorf("Activity order wrong (newest first expected):\n%s", out)
	}
}

func TestProgressMissingSession(t *testing.T) {
	r, _, _ := newTestRenderer(t)

	if _, err := r.Progress("gone"); errs.CodeOf(err) != errs.CodeNotFound {
		t.Errorf("Missing session: expected %s, got %v", errs.CodeNotFound, err)
	}
}
