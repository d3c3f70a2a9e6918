package got

import (
	"strings"
	"testing"

	"github.com/google/uuid"

	"deepresearch/internal/config"
	"deepresearch/internal/errs"
	"deepresearch/internal/store"
	"deepresearch/internal/types"
)

func newTestEngine(t *testing.T) (*Engine, *store.Store) {
	t.Helper()
	st, err := store.NewStore(":memory:")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return NewEngine(st, config.DefaultConfig()), st
}

func seedSession(t *testing.T, st *store.Store) string {
	t.Helper()
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
	return sess.SessionID
}

func completePath(t *testing.T, e *Engine, pathID, content string) {
	t.Helper()
	if _, err := e.UpdatePathStatus(pathID, "completed", content, ""); err != nil {
		t.Fatalf("Completing path %s failed: %v", pathID, err)
	}
}

func TestGenerateBootstrapsRoot(t *testing.T) {
	e, st := newTestEngine(t)
	sid := seedSession(t, st)

	res, err := e.Generate(sid, "survey surface codes", 3, "")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if !res.Success || res.Count != 3 || len(res.Paths) != 3 {
		t.Fatalf("Expected 3 paths, got %+v", res)
	}
	for i, p := range res.Paths {
		if p.Status != "pending" {
			t.Errorf("Path %d status = %s, want pending", i, p.Status)
		}
		if p.Query != "survey surface codes" {
			t.Errorf("Path %d query = %q", i, p.Query)
		}
		if !strings.Contains(p.Focus, "of 3 (diverse)") {
			t.Errorf("Path %d focus = %q, want diverse angle", i, p.Focus)
		}
	}

	paths, err := st.ListPaths(sid)
	if err != nil {
		t.Fatalf("ListPaths failed: %v", err)
	}
	if len(paths) != 4 {
		t.Fatalf("Expected root + 3 children, got %d paths", len(paths))
	}
	var root *types.Path
	for i := range paths {
		if paths[i].NodeType == "root" {
			root = &paths[i]
		}
	}
	if root == nil {
		t.Fatal("No root node created on empty graph")
	}
	if root.Status != "active" || root.Depth != 0 || root.ParentID.Valid {
		t.Errorf("Root shape wrong: %+v", root)
	}
	if root.Query != "quantum error correction" {
		t.Errorf("Root query should carry the topic, got %q", root.Query)
	}
	for i := range paths {
		if paths[i].NodeType != "generated" {
			continue
		}
		if !paths[i].ParentID.Valid || paths[i].ParentID.String != root.PathID {
			t.Errorf("Child %s not parented to root", paths[i].PathID)
		}
		if paths[i].Depth != 1 {
			t.Errorf("Child depth = %d, want 1", paths[i].Depth)
		}
	}

	ops, err := st.ListOperations(sid)
	if err != nil {
		t.Fatalf("ListOperations failed: %v", err)
	}
	if len(ops) != 1 || ops[0].OperationType != "Generate" {
		t.Fatalf("Expected one Generate operation, got %+v", ops)
	}
	if len(ops[0].OutputNodes) != 3 {
		t.Errorf("Generate outputs = %v, want the 3 children", ops[0].OutputNodes)
	}
	if ops[0].Parameters["strategy"] != "diverse" {
		t.Errorf("Strategy parameter = %v", ops[0].Parameters["strategy"])
	}
}

func TestGenerateRoundRobinFrontier(t *testing.T) {
	e, st := newTestEngine(t)
	sid := seedSession(t, st)

	first, err := e.Generate(sid, "initial spread", 2, "diverse")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	leaves := map[string]int{first.Paths[0].ID: 0, first.Paths[1].ID: 0}

	second, err := e.Generate(sid, "narrow down", 3, "focused")
	if err != nil {
		t.Fatalf("Second generate failed: %v", err)
	}
	for _, p := range second.Paths {
		full, err := st.GetPath(p.ID)
		if err != nil {
			t.Fatalf("GetPath failed: %v", err)
		}
		if _, ok := leaves[full.ParentID.String]; !ok {
			t.Errorf("Child %s parented outside the frontier: %s", p.ID, full.ParentID.String)
		}
		leaves[full.ParentID.String]++
		if full.Depth != 2 {
			t.Errorf("Child depth = %d, want 2", full.Depth)
		}
	}
	// Three children over two parents split 2/1.
	counts := []int{}
	for _, n := range leaves {
		counts = append(counts, n)
	}
	if counts[0]+counts[1] != 3 || counts[0]*counts[1] != 2 {
		t.Errorf("Round-robin split = %v, want 2 and 1", counts)
	}
}

func TestGenerateValidation(t *testing.T) {
	e, st := newTestEngine(t)
	sid := seedSession(t, st)

	if _, err := e.Generate(sid, "", 3, ""); errs.CodeOf(err) != errs.CodeValidation {
		t.Errorf("Empty query: expected %s, got %v", errs.CodeValidation, err)
	}
	if _, err := e.Generate(sid, "q", 0, ""); errs.CodeOf(err) != errs.CodeValidation {
		t.Errorf("Zero k: expected %s, got %v", errs.CodeValidation, err)
	}
	if _, err := e.Generate(sid, "q", 2, "chaotic"); errs.CodeOf(err) != errs.CodeValidation {
		t.Errorf("Bad strategy: expected %s, got %v", errs.CodeValidation, err)
	}
	if _, err := e.Generate("no-such-session", "q", 2, ""); errs.CodeOf(err) != errs.CodeNotFound {
		t.Errorf("Missing session: expected %s, got %v", errs.CodeNotFound, err)
	}
}

func TestRefineClonesTarget(t *testing.T) {
	e, st := newTestEngine(t)
	sid := seedSession(t, st)

	gen, err := e.Generate(sid, "baseline", 1, "")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	target := gen.Paths[0].ID
	completePath(t, e, target, "surface codes tolerate local noise")

	res, err := e.Refine(target, "quantify the noise threshold")
	if err != nil {
		t.Fatalf("Refine failed: %v", err)
	}
	if !res.Success || res.ParentID != target {
		t.Fatalf("Refine result wrong: %+v", res)
	}
	child, err := st.GetPath(res.Path.ID)
	if err != nil {
		t.Fatalf("GetPath failed: %v", err)
	}
	if child.NodeType != "refined" || child.Status != "pending" {
		t.Errorf("Refined child shape wrong: type=%s status=%s", child.NodeType, child.Status)
	}
	if child.Content != "surface codes tolerate local noise" {
		t.Errorf("Refinement should clone content, got %q", child.Content)
	}
	if child.Depth != 2 {
		t.Errorf("Refined depth = %d, want 2", child.Depth)
	}
	if !strings.HasPrefix(child.Focus, "refinement of ") {
		t.Errorf("Refined focus = %q", child.Focus)
	}

	// The target stays live after refinement.
	parent, _ := st.GetPath(target)
	if parent.Status != "completed" {
		t.Errorf("Refined target status = %s, want completed", parent.Status)
	}

	counts, err := st.OperationCounts(sid)
	if err != nil {
		t.Fatalf("OperationCounts failed: %v", err)
	}
	if counts["Refine"] != 1 {
		t.Errorf("Refine operations = %d, want 1", counts["Refine"])
	}
}

func TestRefineRejectsTerminal(t *testing.T) {
	e, st := newTestEngine(t)
	sid := seedSession(t, st)

	gen, err := e.Generate(sid, "baseline", 1, "")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	target := gen.Paths[0].ID
	if _, err := e.UpdatePathStatus(target, "pruned", "", ""); err != nil {
		t.Fatalf("Pruning failed: %v", err)
	}

	if _, err := e.Refine(target, "too late"); errs.CodeOf(err) != errs.CodeInvalidStatus {
		t.Errorf("Expected %s on terminal target, got %v", errs.CodeInvalidStatus, err)
	}
	if _, err := e.Refine("missing-path", "q"); errs.CodeOf(err) != errs.CodeNotFound {
		t.Errorf("Expected %s on missing path, got %v", errs.CodeNotFound, err)
	}
	if _, err := e.Refine(target, ""); errs.CodeOf(err) != errs.CodeValidation {
		t.Errorf("Expected %s on empty query, got %v", errs.CodeValidation, err)
	}
}

func TestUpdatePathStatusGuards(t *testing.T) {
	e, st := newTestEngine(t)
	sid := seedSession(t, st)

	gen, err := e.Generate(sid, "baseline", 1, "")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	id := gen.Paths[0].ID

	if _, err := e.UpdatePathStatus(id, "exploring", "", ""); errs.CodeOf(err) != errs.CodeInvalidStatus {
		t.Errorf("Unknown status: expected %s, got %v", errs.CodeInvalidStatus, err)
	}
	if _, err := e.UpdatePathStatus(id, "completed", "", ""); errs.CodeOf(err) != errs.CodeValidation {
		t.Errorf("Completed without content: expected %s, got %v", errs.CodeValidation, err)
	}

	running, err := e.UpdatePathStatus(id, "running", "", "")
	if err != nil {
		t.Fatalf("pending to running failed: %v", err)
	}
	if running.Status != "running" {
		t.Errorf("Status = %s, want running", running.Status)
	}

	content := strings.Repeat("finding ", 50)
	done, err := e.UpdatePathStatus(id, "completed", content, "short summary")
	if err != nil {
		t.Fatalf("Delivery failed: %v", err)
	}
	if done.Status != "completed" || done.Content != content || done.Summary != "short summary" {
		t.Errorf("Delivery not applied: %+v", done)
	}
	wantRatio := float64(len(content)) / float64(len("short summary"))
	if done.CompressionRatio != wantRatio {
		t.Errorf("CompressionRatio = %v, want %v", done.CompressionRatio, wantRatio)
	}

	if _, err := e.UpdatePathStatus(id, "pruned", "", ""); err != nil {
		t.Fatalf("Pruning failed: %v", err)
	}
	if _, err := e.UpdatePathStatus(id, "running", "", ""); errs.CodeOf(err) != errs.CodeInvalidStatus {
		t.Errorf("Terminal transition: expected %s, got %v", errs.CodeInvalidStatus, err)
	}
}

func TestAggregateSynthesis(t *testing.T) {
	e, st := newTestEngine(t)
	sid := seedSession(t, st)

	gen, err := e.Generate(sid, "compare approaches", 2, "")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	p1, p2 := gen.Paths[0].ID, gen.Paths[1].ID
	completePath(t, e, p1, "Surface codes excel at local noise.\nSee https://arxiv.org/abs/1208.0928 for thresholds.")
	completePath(t, e, p2, "Color codes allow transversal gates.\nSee https://arxiv.org/abs/1311.0879 for constructions.")

	scoreOp := &types.Operation{
		OperationID: uuid.New().String(), SessionID: sid,
		OperationType: "Score", InputNodes: []string{p1, p2}, OutputNodes: []string{},
	}
	pruneOp := &types.Operation{
		OperationID: uuid.New().String(), SessionID: sid,
		OperationType: "Prune", InputNodes: []string{}, OutputNodes: []string{},
	}
	if err := st.ApplyScoring([]store.PathScore{{PathID: p1, Score: 8.0}, {PathID: p2, Score: 7.0}}, nil, scoreOp, pruneOp); err != nil {
		t.Fatalf("ApplyScoring failed: %v", err)
	}

	res, err := e.Aggregate(sid, []string{p1, p2}, "synthesis")
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	if !res.Success || res.SynthesisPathID == "" {
		t.Fatalf("Aggregate result wrong: %+v", res)
	}
	if res.Confidence != 0.75 {
		t.Errorf("Confidence = %v, want 0.75 (mean of 8.0 and 7.0 over 10)", res.Confidence)
	}
	if res.Sources != 2 {
		t.Errorf("Sources = %d, want 2 distinct citations", res.Sources)
	}
	if res.Conflicts != 0 {
		t.Errorf("Conflicts = %d, want 0", res.Conflicts)
	}

	agg, err := st.GetPath(res.SynthesisPathID)
	if err != nil {
		t.Fatalf("GetPath failed: %v", err)
	}
	if agg.NodeType != "aggregated" || agg.Status != "completed" || agg.Depth != 2 {
		t.Errorf("Aggregated node shape wrong: %+v", agg)
	}
	if !strings.Contains(agg.Content, "Surface codes excel") || !strings.Contains(agg.Content, "Color codes allow") {
		t.Error("Synthesis should carry both parents' content")
	}
	if !strings.Contains(agg.Content, "\n\n---\n\n") || !strings.Contains(agg.Content, "## ") {
		t.Error("Synthesis should delimit parents with sections")
	}

	for _, id := range []string{p1, p2} {
		p, _ := st.GetPath(id)
		if p.Status != "aggregated" {
			t.Errorf("Parent %s status = %s, want aggregated", id, p.Status)
		}
	}
	sess, err := st.GetSession(sid)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if !sess.IsAggregated {
		t.Error("Session should be flagged aggregated")
	}
	if sess.Confidence != 0.75 {
		t.Errorf("Session confidence = %v, want 0.75", sess.Confidence)
	}
}

func TestAggregateUnionDeduplicates(t *testing.T) {
	e, st := newTestEngine(t)
	sid := seedSession(t, st)

	gen, err := e.Generate(sid, "vote", 2, "")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	p1, p2 := gen.Paths[0].ID, gen.Paths[1].ID
	completePath(t, e, p1, "codes protect qubits\nthresholds near one percent")
	completePath(t, e, p2, "thresholds near one percent\ndecoders run in real time")

	res, err := e.Aggregate(sid, []string{p1, p2}, "voting")
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	agg, _ := st.GetPath(res.SynthesisPathID)
	want := "codes protect qubits\nthresholds near one percent\ndecoders run in real time"
	if agg.Content != want {
		t.Errorf("Union content = %q, want %q", agg.Content, want)
	}
}

func TestAggregateValidation(t *testing.T) {
	e, st := newTestEngine(t)
	sid := seedSession(t, st)
	other := seedSession(t, st)

	gen, err := e.Generate(sid, "spread", 2, "")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	p1, p2 := gen.Paths[0].ID, gen.Paths[1].ID
	completePath(t, e, p1, "alpha")
	completePath(t, e, p2, "beta")

	if _, err := e.Aggregate(sid, []string{p1}, ""); errs.CodeOf(err) != errs.CodeValidation {
		t.Errorf("Single path: expected %s, got %v", errs.CodeValidation, err)
	}
	if _, err := e.Aggregate(sid, []string{p1, p2}, "democracy"); errs.CodeOf(err) != errs.CodeValidation {
		t.Errorf("Bad strategy: expected %s, got %v", errs.CodeValidation, err)
	}
	if _, err := e.Aggregate(other, []string{p1, p2}, ""); errs.CodeOf(err) != errs.CodeValidation {
		t.Errorf("Cross-session paths: expected %s, got %v", errs.CodeValidation, err)
	}
	if _, err := e.Aggregate("gone", []string{p1, p2}, ""); errs.CodeOf(err) != errs.CodeNotFound {
		t.Errorf("Missing session: expected %s, got %v", errs.CodeNotFound, err)
	}

	if _, err := e.UpdatePathStatus(p2, "pruned", "", ""); err != nil {
		t.Fatalf("Pruning failed: %v", err)
	}
	if _, err := e.Aggregate(sid, []string{p1, p2}, ""); errs.CodeOf(err) != errs.CodeInvalidStatus {
		t.Errorf("Terminal parent: expected %s, got %v", errs.CodeInvalidStatus, err)
	}
}

func TestGraphStateProjection(t *testing.T) {
	e, st := newTestEngine(t)
	sid := seedSession(t, st)

	gen, err := e.Generate(sid, "spread", 3, "")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	p1, p2 := gen.Paths[0].ID, gen.Paths[1].ID
	if _, err := e.UpdatePathStatus(p1, "completed", "long body one", "gamma decoders win"); err != nil {
		t.Fatalf("Delivery failed: %v", err)
	}
	if _, err := e.UpdatePathStatus(p2, "completed", "long body two", "beta codes lag"); err != nil {
		t.Fatalf("Delivery failed: %v", err)
	}

	scoreOp := &types.Operation{
		OperationID: uuid.New().String(), SessionID: sid,
		OperationType: "Score", InputNodes: []string{p1, p2}, OutputNodes: []string{},
	}
	pruneOp := &types.Operation{
		OperationID: uuid.New().String(), SessionID: sid,
		OperationType: "Prune", InputNodes: []string{}, OutputNodes: []string{},
	}
	if err := st.ApplyScoring([]store.PathScore{{PathID: p1, Score: 8.5}, {PathID: p2, Score: 6.5}}, nil, scoreOp, pruneOp); err != nil {
		t.Fatalf("ApplyScoring failed: %v", err)
	}

	state, err := e.GraphState(sid)
	if err != nil {
		t.Fatalf("GraphState failed: %v", err)
	}
	if len(state.Paths) != 4 {
		t.Errorf("Projected %d paths, want 4 (root + 3)", len(state.Paths))
	}
	if state.MaxIterations != 10 || state.ConfidenceThreshold != 0.9 {
		t.Errorf("Session fields not projected: %+v", state)
	}
	if state.IsAggregated || state.BudgetExhausted {
		t.Error("Fresh session should not be aggregated or exhausted")
	}
	if state.CurrentFindings != "gamma decoders win; beta codes lag" {
		t.Errorf("Findings = %q, want summaries ordered by score", state.CurrentFindings)
	}

	scores := map[string]float64{}
	for _, p := range state.Paths {
		scores[p.ID] = p.Score
	}
	if scores[p1] != 8.5 || scores[p2] != 6.5 {
		t.Errorf("Projected scores = %v", scores)
	}

	if _, err := e.GraphState("nope"); errs.CodeOf(err) != errs.CodeNotFound {
		t.Errorf("Missing session: expected %s, got %v", errs.CodeNotFound, err)
	}
}
