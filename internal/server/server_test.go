package server

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deepresearch/internal/batch"
	"deepresearch/internal/cache"
	"deepresearch/internal/config"
	"deepresearch/internal/extract"
	"deepresearch/internal/got"
	"deepresearch/internal/ingest"
	"deepresearch/internal/store"
	"deepresearch/internal/types"
	"deepresearch/internal/validate"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	st, err := store.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return NewServer(st, config.DefaultConfig())
}

// callTool dispatches through the registered wrapper, the same function the
// stdio transport invokes for tools/call.
func callTool(t *testing.T, s *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	h, ok := s.handlers[name]
	require.True(t, ok, "tool %q not registered", name)
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	res, err := h(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, res)
	return res
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "content[0] is %T", res.Content[0])
	return tc.Text
}

func decodeResult(t *testing.T, res *mcp.CallToolResult, out any) {
	t.Helper()
	require.False(t, res.IsError, "tool failed: %s", resultText(t, res))
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), out))
}

func createSession(t *testing.T, s *Server, topic string) string {
	t.Helper()
	var sess types.Session
	decodeResult(t, callTool(t, s, "create_research_session", map[string]any{
		"topic":      topic,
		"output_dir": t.TempDir(),
	}), &sess)
	return sess.SessionID
}

// strongFindings hits every rubric component: an introduction, 500+ words,
// examples, implications, and five complete A-tier citations.
func strongFindings() string {
	var b strings.Builder
	b.WriteString("# Introduction\n\n")
	b.WriteString("This report surveys autonomous agent deployments. ")
	b.WriteString(strings.Repeat("planner benchmarks keep improving across tool use and long horizon execution ", 50))
	b.WriteString("\n\nFor example, multi-step web tasks now finish reliably. ")
	b.WriteString("The implications for operations teams are substantial.\n\n## References\n\n")
	for i := 0; i < 5; i++ {
		fmt.Fprintf(&b, "[%d] Moreau, D. (202%d). Agent Reliability Notes Part %d. https://arxiv.org/abs/250%d.0200%d\n",
			i+1, i, i+1, i, i)
	}
	return b.String()
}

const weakFindings = "A short note with no sources."

func TestEveryToolRegistered(t *testing.T) {
	want := []string{
		"extract", "validate", "conflict-detect",
		"fact-extract", "entity-extract", "citation-validate", "source-rate",
		"batch-extract", "batch-validate", "batch-conflict-detect",
		"batch-fact-extract", "batch-entity-extract", "batch-citation-validate", "batch-source-rate",
		"generate_paths", "refine_path", "score_and_prune", "aggregate_paths",
		"update_path_status", "get_graph_state", "get_next_action",
		"create_research_session", "update_session_status", "get_session_info",
		"register_agent", "update_agent_status", "get_active_agents",
		"update_current_phase", "get_current_phase", "checkpoint_phase",
		"acquire_session_lock", "release_session_lock",
		"delete_research_session", "cleanup_orphans", "record_metric",
		"log_activity", "render_progress",
		"auto_process_data", "ingest_content", "batch_ingest", "process_raw",
		"cache-stats", "cache-clear",
	}
	srv := newTestServer(t)
	for _, name := range want {
		assert.Contains(t, srv.handlers, name)
	}
	assert.Len(t, srv.handlers, len(want))
}

func TestSessionLifecycle(t *testing.T) {
	srv := newTestServer(t)

	var sess types.Session
	decodeResult(t, callTool(t, srv, "create_research_session", map[string]any{
		"topic":      "AI Agents",
		"output_dir": t.TempDir(),
	}), &sess)

	_, err := uuid.Parse(sess.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "AI Agents", sess.ResearchTopic)
	assert.Equal(t, "deep", sess.ResearchType)
	assert.Equal(t, "initializing", sess.Status)
	assert.Equal(t, 0, sess.IterationCount)
	assert.Equal(t, 0.0, sess.Confidence)
	assert.Equal(t, 10, sess.MaxIterations)
	assert.Equal(t, 0.9, sess.ConfidenceThreshold)

	var updated types.Session
	decodeResult(t, callTool(t, srv, "update_session_status", map[string]any{
		"session_id": sess.SessionID,
		"status":     "planning",
	}), &updated)
	assert.Equal(t, "planning", updated.Status)

	var fetched types.Session
	decodeResult(t, callTool(t, srv, "get_session_info", map[string]any{
		"session_id": sess.SessionID,
	}), &fetched)
	assert.Equal(t, "planning", fetched.Status)
}

func TestAgentLifecycle(t *testing.T) {
	srv := newTestServer(t)
	sid := createSession(t, srv, "market sizing")

	var agent types.Agent
	decodeResult(t, callTool(t, srv, "register_agent", map[string]any{
		"session_id":     sid,
		"agent_id":       "agent-7",
		"agent_type":     "web_researcher",
		"agent_role":     "pricing analysis",
		"search_queries": []any{"gpu prices 2026", "inference cost trends"},
	}), &agent)
	assert.Equal(t, "agent-7", agent.AgentID)
	assert.Equal(t, "deploying", agent.Status)

	var active struct {
		Agents []types.Agent `json:"agents"`
		Count  int           `json:"count"`
	}
	decodeResult(t, callTool(t, srv, "get_active_agents", map[string]any{
		"session_id": sid,
	}), &active)
	require.Equal(t, 1, active.Count)

	decodeResult(t, callTool(t, srv, "update_agent_status", map[string]any{
		"agent_id":    "agent-7",
		"status":      "completed",
		"output_file": "findings/agent-7.md",
		"token_usage": 1200,
	}), &agent)
	assert.Equal(t, "completed", agent.Status)
	assert.Equal(t, "findings/agent-7.md", agent.OutputFile.String)
	assert.Equal(t, 1200, agent.TokenUsage)
	assert.True(t, agent.CompletedAt.Valid)

	decodeResult(t, callTool(t, srv, "get_active_agents", map[string]any{
		"session_id": sid,
	}), &active)
	assert.Equal(t, 0, active.Count)
}

func TestPhaseCheckpointMetricActivity(t *testing.T) {
	srv := newTestServer(t)
	sid := createSession(t, srv, "phase plumbing")

	var phaseRes map[string]any
	decodeResult(t, callTool(t, srv, "update_current_phase", map[string]any{
		"session_id": sid,
		"phase":      2,
	}), &phaseRes)
	assert.Equal(t, float64(2), phaseRes["current_phase"])

	decodeResult(t, callTool(t, srv, "get_current_phase", map[string]any{
		"session_id": sid,
	}), &phaseRes)
	assert.Equal(t, float64(2), phaseRes["current_phase"])

	var ckRes map[string]any
	decodeResult(t, callTool(t, srv, "checkpoint_phase", map[string]any{
		"session_id": sid,
		"snapshot":   map[string]any{"paths_done": 3},
	}), &ckRes)
	assert.Equal(t, float64(2), ckRes["phase"], "checkpoint should default to the current phase")
	assert.Equal(t, "phase", ckRes["checkpoint_type"])

	var ok map[string]any
	decodeResult(t, callTool(t, srv, "record_metric", map[string]any{
		"session_id":   sid,
		"metric_name":  "tokens_spent",
		"metric_value": 4812.0,
	}), &ok)
	assert.Equal(t, true, ok["success"])

	decodeResult(t, callTool(t, srv, "log_activity", map[string]any{
		"session_id": sid,
		"event_type": "agent_complete",
		"message":    "pricing agent finished",
		"agent_id":   "agent-7",
	}), &ok)
	assert.Equal(t, true, ok["success"])

	res := callTool(t, srv, "log_activity", map[string]any{
		"session_id": sid,
		"event_type": "telepathy",
		"message":    "nope",
	})
	require.True(t, res.IsError)
	assert.True(t, strings.HasPrefix(resultText(t, res), "[E101]"))
}

func TestRenderProgressReturnsMarkdown(t *testing.T) {
	srv := newTestServer(t)
	sid := createSession(t, srv, "render check")

	res := callTool(t, srv, "render_progress", map[string]any{"session_id": sid})
	require.False(t, res.IsError)
	text := resultText(t, res)
	assert.True(t, strings.HasPrefix(text, "# Research Progress"))
	assert.Contains(t, text, "**Topic:** render check")
}

func TestDeleteSessionCascade(t *testing.T) {
	srv := newTestServer(t)
	sid := createSession(t, srv, "short lived")

	var del map[string]any
	decodeResult(t, callTool(t, srv, "delete_research_session", map[string]any{
		"session_id": sid,
	}), &del)
	assert.Equal(t, true, del["success"])

	res := callTool(t, srv, "get_session_info", map[string]any{"session_id": sid})
	require.True(t, res.IsError)
	assert.True(t, strings.HasPrefix(resultText(t, res), "[E501]"))

	var cleanup map[string]any
	decodeResult(t, callTool(t, srv, "cleanup_orphans", map[string]any{}), &cleanup)
	assert.Equal(t, float64(0), cleanup["total"], "cascade left orphans: %v", cleanup)
}

func TestBootstrapDecision(t *testing.T) {
	srv := newTestServer(t)
	sid := createSession(t, srv, "bootstrap")

	var na map[string]any
	decodeResult(t, callTool(t, srv, "get_next_action", map[string]any{
		"session_id": sid,
	}), &na)

	assert.Equal(t, "generate", na["action"])
	params, _ := na["params"].(map[string]any)
	require.NotNil(t, params)
	assert.Equal(t, float64(3), params["k"])
	assert.Equal(t, "diverse", params["strategy"])
	assert.Equal(t, "No paths exist, generating initial exploration paths", na["reasoning"])
	assert.Equal(t, float64(1), na["iteration"])

	// Same graph, same action.
	decodeResult(t, callTool(t, srv, "get_next_action", map[string]any{
		"session_id": sid,
	}), &na)
	assert.Equal(t, "generate", na["action"])
}

func TestTerminationDecision(t *testing.T) {
	srv := newTestServer(t)
	sid := createSession(t, srv, "budget spent")

	require.NoError(t, srv.manager.UpdateConfidence(sid, 0.4))
	for i := 0; i < 10; i++ {
		_, err := srv.manager.IncrementIteration(sid)
		require.NoError(t, err)
	}

	var na map[string]any
	decodeResult(t, callTool(t, srv, "get_next_action", map[string]any{
		"session_id": sid,
	}), &na)

	assert.Equal(t, "synthesize", na["action"])
	assert.Equal(t, "Max iterations reached (10/10)", na["reasoning"])
	params, _ := na["params"].(map[string]any)
	require.NotNil(t, params)
	assert.Equal(t, "max_iterations", params["reason"])
	assert.Equal(t, float64(10), na["iteration"], "exhausted budget must not advance the counter")
}

func TestGetNextActionLockContention(t *testing.T) {
	srv := newTestServer(t)
	sid := createSession(t, srv, "locked out")

	var lock map[string]any
	decodeResult(t, callTool(t, srv, "acquire_session_lock", map[string]any{
		"session_id": sid,
		"locker_id":  "coordinator-1",
	}), &lock)
	assert.Equal(t, true, lock["success"])

	var na map[string]any
	decodeResult(t, callTool(t, srv, "get_next_action", map[string]any{
		"session_id": sid,
	}), &na)
	assert.Equal(t, "session_locked", na["error"])
	assert.Equal(t, "coordinator-1", na["locked_by"])
	assert.NotEmpty(t, na["locked_at"])
	assert.Equal(t, float64(30), na["retry_after_seconds"])

	decodeResult(t, callTool(t, srv, "release_session_lock", map[string]any{
		"session_id": sid,
		"locker_id":  "coordinator-1",
	}), &lock)

	decodeResult(t, callTool(t, srv, "get_next_action", map[string]any{
		"session_id": sid,
	}), &na)
	assert.Equal(t, "generate", na["action"])
}

func TestAcquireLockContentionEnvelope(t *testing.T) {
	srv := newTestServer(t)
	sid := createSession(t, srv, "contended")

	callTool(t, srv, "acquire_session_lock", map[string]any{
		"session_id": sid, "locker_id": "holder",
	})
	res := callTool(t, srv, "acquire_session_lock", map[string]any{
		"session_id": sid, "locker_id": "intruder",
	})
	require.True(t, res.IsError)
	assert.True(t, strings.HasPrefix(resultText(t, res), "[E502]"))
}

func TestScorePruneAggregateFlow(t *testing.T) {
	srv := newTestServer(t)
	sid := createSession(t, srv, "graph flow")

	var gen got.GenerateResult
	decodeResult(t, callTool(t, srv, "generate_paths", map[string]any{
		"session_id": sid,
		"query":      "agent reliability",
		"k":          3,
	}), &gen)
	require.True(t, gen.Success)
	require.Len(t, gen.Paths, 3)
	for _, p := range gen.Paths {
		assert.Equal(t, "pending", p.Status)
	}

	var na map[string]any
	decodeResult(t, callTool(t, srv, "get_next_action", map[string]any{
		"session_id": sid,
	}), &na)
	assert.Equal(t, "execute", na["action"])

	contents := []string{strongFindings(), strongFindings(), weakFindings}
	for i, p := range gen.Paths {
		var upd map[string]any
		decodeResult(t, callTool(t, srv, "update_path_status", map[string]any{
			"path_id": p.ID,
			"status":  "completed",
			"content": contents[i],
			"summary": "delivered",
		}), &upd)
		assert.Equal(t, true, upd["success"])
	}

	decodeResult(t, callTool(t, srv, "get_next_action", map[string]any{
		"session_id": sid,
	}), &na)
	assert.Equal(t, "score", na["action"])

	var scored got.ScoreResult
	decodeResult(t, callTool(t, srv, "score_and_prune", map[string]any{
		"session_id": sid,
		"threshold":  6.0,
		"keep_top_n": 2,
	}), &scored)
	require.True(t, scored.Success)
	require.Equal(t, []string{gen.Paths[2].ID}, scored.PrunedIDs)

	decodeResult(t, callTool(t, srv, "get_next_action", map[string]any{
		"session_id": sid,
	}), &na)
	require.Equal(t, "aggregate", na["action"])
	params, _ := na["params"].(map[string]any)
	require.NotNil(t, params)
	assert.ElementsMatch(t, []any{gen.Paths[0].ID, gen.Paths[1].ID}, params["path_ids"])
	assert.Equal(t, "synthesis", params["strategy"])

	var agg got.AggregateResult
	decodeResult(t, callTool(t, srv, "aggregate_paths", map[string]any{
		"session_id": sid,
		"path_ids":   []any{gen.Paths[0].ID, gen.Paths[1].ID},
		"strategy":   "synthesis",
	}), &agg)
	require.True(t, agg.Success)
	assert.NotEmpty(t, agg.SynthesisPathID)

	var sess types.Session
	decodeResult(t, callTool(t, srv, "get_session_info", map[string]any{
		"session_id": sid,
	}), &sess)
	assert.True(t, sess.IsAggregated)

	var state map[string]any
	decodeResult(t, callTool(t, srv, "get_graph_state", map[string]any{
		"session_id": sid,
	}), &state)
	paths, _ := state["paths"].([]any)
	assert.Len(t, paths, 5, "root, three children, one synthesis node")
}

func TestExtractValidateConflictTools(t *testing.T) {
	srv := newTestServer(t)

	var ext extract.Result
	decodeResult(t, callTool(t, srv, "extract", map[string]any{
		"text": "Acme Corp revenue was $100 million. Acme Corp acquires Beta Systems.",
		"mode": "all",
	}), &ext)
	assert.NotEmpty(t, ext.Facts)
	assert.NotEmpty(t, ext.Entities)
	assert.Equal(t, "all", ext.Metadata.Mode)

	var val validate.Result
	decodeResult(t, callTool(t, srv, "validate", map[string]any{
		"mode": "citation",
		"citations": []any{
			map[string]any{"author": "Ng, P.", "title": "Decoders", "publication_date": "2024", "url": "https://arxiv.org/abs/2402.01101"},
			map[string]any{"title": "No author or date"},
		},
	}), &val)
	assert.Equal(t, 2, val.TotalCitations)
	assert.Equal(t, 1, val.CompleteCitations)

	// Scenario: same entity and attribute, 32% apart, graded critical.
	var conf map[string]any
	decodeResult(t, callTool(t, srv, "conflict-detect", map[string]any{
		"facts": []any{
			map[string]any{"entity": "AI Market", "attribute": "Size 2024", "value": "28.4", "value_numeric": 28.4, "value_type": "currency"},
			map[string]any{"entity": "AI Market", "attribute": "Size 2024", "value": "19.2", "value_numeric": 19.2, "value_type": "currency"},
		},
	}), &conf)
	assert.Equal(t, float64(1), conf["total_conflicts"])
	conflicts, _ := conf["conflicts"].([]any)
	require.Len(t, conflicts, 1)
	first, _ := conflicts[0].(map[string]any)
	assert.Equal(t, "critical", first["severity"])

	decodeResult(t, callTool(t, srv, "conflict-detect", map[string]any{
		"facts": []any{},
	}), &conf)
	assert.Equal(t, float64(0), conf["total_conflicts"])
}

func TestLegacyAliasesForceMode(t *testing.T) {
	srv := newTestServer(t)

	// A caller-supplied mode loses to the alias.
	var ext extract.Result
	decodeResult(t, callTool(t, srv, "fact-extract", map[string]any{
		"text": "Acme Corp revenue was $100 million.",
		"mode": "entity",
	}), &ext)
	assert.Equal(t, "fact", ext.Metadata.Mode)
	assert.NotEmpty(t, ext.Facts)
	assert.Empty(t, ext.Entities)

	ext = extract.Result{}
	decodeResult(t, callTool(t, srv, "entity-extract", map[string]any{
		"text": "Acme Corp acquires Beta Systems.",
	}), &ext)
	assert.Equal(t, "entity", ext.Metadata.Mode)
	assert.Empty(t, ext.Facts)
	assert.NotEmpty(t, ext.Entities)

	var val validate.Result
	decodeResult(t, callTool(t, srv, "source-rate", map[string]any{
		"source_url": "https://arxiv.org/abs/2501.00001",
	}), &val)
	require.NotNil(t, val.SourceRating)
	assert.Equal(t, "A", val.SourceRating.Rating)
}

func TestErrorEnvelopeCodes(t *testing.T) {
	srv := newTestServer(t)

	res := callTool(t, srv, "extract", map[string]any{})
	require.True(t, res.IsError)
	assert.True(t, strings.HasPrefix(resultText(t, res), "[E101]"))

	res = callTool(t, srv, "get_session_info", map[string]any{
		"session_id": uuid.New().String(),
	})
	require.True(t, res.IsError)
	assert.True(t, strings.HasPrefix(resultText(t, res), "[E501]"))

	sid := createSession(t, srv, "status guard")
	res = callTool(t, srv, "update_session_status", map[string]any{
		"session_id": sid,
		"status":     "daydreaming",
	})
	require.True(t, res.IsError)
	assert.True(t, strings.HasPrefix(resultText(t, res), "[E503]"))
}

func TestBatchExtractCaching(t *testing.T) {
	srv := newTestServer(t)
	args := map[string]any{
		"mode": "fact",
		"items": []any{
			"Acme Corp revenue was $100 million.",
			"Beta Systems revenue was $40 million.",
			"Gamma Logic revenue was $75 million.",
		},
	}

	var first batch.Result
	decodeResult(t, callTool(t, srv, "batch-extract", args), &first)
	require.Len(t, first.Results, 3)
	assert.Equal(t, 3, first.Summary.Successful)
	for _, r := range first.Results {
		assert.False(t, r.Cached)
	}

	var second batch.Result
	decodeResult(t, callTool(t, srv, "batch-extract", args), &second)
	require.Len(t, second.Results, 3)
	for _, r := range second.Results {
		assert.True(t, r.Cached, "repeat of item %s missed the cache", r.ID)
	}

	var stats map[string]cache.Stats
	decodeResult(t, callTool(t, srv, "cache-stats", map[string]any{}), &stats)
	assert.Equal(t, int64(3), stats["fact"].Hits)
	assert.Equal(t, int64(3), stats["fact"].Misses)
	assert.Equal(t, 3, stats["fact"].Size)
}

func TestBatchUseCacheOff(t *testing.T) {
	srv := newTestServer(t)
	args := map[string]any{
		"mode":    "fact",
		"items":   []any{"Acme Corp revenue was $100 million."},
		"options": map[string]any{"use_cache": false},
	}

	var out batch.Result
	decodeResult(t, callTool(t, srv, "batch-extract", args), &out)
	decodeResult(t, callTool(t, srv, "batch-extract", args), &out)
	assert.False(t, out.Results[0].Cached)

	var stats map[string]cache.Stats
	decodeResult(t, callTool(t, srv, "cache-stats", map[string]any{}), &stats)
	assert.Equal(t, 0, stats["fact"].Size)
}

func TestCacheClear(t *testing.T) {
	srv := newTestServer(t)
	srv.caches.Family(cache.FamilyFact).Put("k", 1)

	var out map[string]any
	decodeResult(t, callTool(t, srv, "cache-clear", map[string]any{"family": "fact"}), &out)
	assert.Equal(t, `cache "fact" cleared`, out["message"])

	decodeResult(t, callTool(t, srv, "cache-clear", map[string]any{}), &out)
	assert.Equal(t, "all caches cleared", out["message"])

	res := callTool(t, srv, "cache-clear", map[string]any{"family": "bogus"})
	require.True(t, res.IsError)
	assert.True(t, strings.HasPrefix(resultText(t, res), "[E101]"))
}

func TestIngestTools(t *testing.T) {
	srv := newTestServer(t)
	sid := createSession(t, srv, "ingest flow")

	var staged ingest.StageResult
	decodeResult(t, callTool(t, srv, "ingest_content", map[string]any{
		"session_id": sid,
		"content":    "<html><body><p>Acme Corp revenue was $100 million.</p></body></html>",
		"source":     "page.html",
	}), &staged)
	assert.Equal(t, "text/html", staged.ContentType)
	assert.Less(t, staged.StoredLength, staged.OriginalLength)

	var bi map[string]any
	decodeResult(t, callTool(t, srv, "batch_ingest", map[string]any{
		"session_id": sid,
		"items": []any{
			map[string]any{"content": "Beta Systems revenue was $40 million.", "source": "note-1"},
			map[string]any{"source": "empty-item"},
		},
	}), &bi)
	assert.Equal(t, float64(1), bi["staged"])
	assert.Equal(t, float64(1), bi["failed"])

	var proc ingest.ProcessResult
	decodeResult(t, callTool(t, srv, "process_raw", map[string]any{
		"session_id": sid,
	}), &proc)
	assert.Equal(t, 2, proc.Processed)
	assert.Equal(t, 0, proc.Failed)
	assert.GreaterOrEqual(t, proc.Facts, 2)
	assert.Equal(t, 0, proc.Remaining)
}

func TestAutoProcessData(t *testing.T) {
	srv := newTestServer(t)
	sid := createSession(t, srv, "sweep")

	inputDir := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(inputDir, "notes.md"),
		[]byte("Acme Corp revenue was $100 million."),
		0o644))

	var out map[string]any
	decodeResult(t, callTool(t, srv, "auto_process_data", map[string]any{
		"session_id": sid,
		"input_dir":  inputDir,
		"output_dir": t.TempDir(),
	}), &out)
	assert.Equal(t, true, out["success"])
	results, _ := out["results"].([]any)
	assert.Len(t, results, 4)
	summary, _ := out["summary"].(map[string]any)
	require.NotNil(t, summary)
	assert.Equal(t, float64(1), summary["total_files"])
}

func TestApplyConfigHotSwap(t *testing.T) {
	srv := newTestServer(t)

	next := config.DefaultConfig()
	next.Scoring.Threshold = 8.5
	next.Batch.MaxConcurrency = 99
	next.Cache.Fact.TTL = "1ns"
	srv.ApplyConfig(next)

	cur := srv.config()
	assert.Equal(t, 8.5, cur.Scoring.Threshold)
	assert.Equal(t, 5, cur.Batch.MaxConcurrency, "batch defaults are not hot-swappable")

	srv.caches.Family(cache.FamilyFact).Put("k", 1)
	_, ok := srv.caches.Family(cache.FamilyFact).Get("k")
	assert.False(t, ok, "fact cache should honor the retuned TTL")
}

func TestPanicBecomesProcessingError(t *testing.T) {
	srv := newTestServer(t)
	h := srv.wrap("boom", func(ctx context.Context, args map[string]any) (any, error) {
		panic("kaboom")
	})
	req := mcp.CallToolRequest{}
	req.Params.Name = "boom"
	res, err := h(context.Background(), req)
	require.NoError(t, err)
	require.True(t, res.IsError)
	assert.True(t, strings.HasPrefix(resultText(t, res), "[E102]"))
}
