// Package got implements the Graph-of-Thoughts engine: path generation,
// refinement, scoring with pruning, and aggregation over the persistent
// exploration graph. Every engine transition commits as one store
// transaction together with its audit operation.
package got

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"

	"deepresearch/internal/config"
	"deepresearch/internal/conflict"
	"deepresearch/internal/decision"
	"deepresearch/internal/errs"
	"deepresearch/internal/extract"
	"deepresearch/internal/logging"
	"deepresearch/internal/store"
	"deepresearch/internal/types"
	"deepresearch/internal/validate"
)

// Generation strategies. The strategy is advisory metadata for the
// coordinator; the engine does not compose queries itself.
const (
	StrategyDiverse     = "diverse"
	StrategyFocused     = "focused"
	StrategyExploratory = "exploratory"
)

// Aggregation strategies.
const (
	StrategySynthesis = "synthesis"
	StrategyVoting    = "voting"
	StrategyConsensus = "consensus"
)

// Engine drives the exploration graph for all sessions in one store.
type Engine struct {
	store *store.Store
	cfg   *config.Config
}

// NewEngine builds an engine over st.
func NewEngine(st *store.Store, cfg *config.Config) *Engine {
	return &Engine{store: st, cfg: cfg}
}

// PathBrief is the wire summary of a created path.
type PathBrief struct {
	ID     string `json:"id"`
	Focus  string `json:"focus"`
	Query  string `json:"query"`
	Status string `json:"status"`
}

// GenerateResult reports one generation round.
type GenerateResult struct {
	Success bool        `json:"success"`
	Paths   []PathBrief `json:"paths"`
	Count   int         `json:"count"`
}

// RefineResult reports one refinement.
type RefineResult struct {
	Success  bool      `json:"success"`
	Path     PathBrief `json:"path"`
	ParentID string    `json:"parent_id"`
}

// AggregateResult reports one aggregation.
type AggregateResult struct {
	Success         bool    `json:"success"`
	SynthesisPathID string  `json:"synthesis_path_id"`
	Confidence      float64 `json:"confidence"`
	Sources         int     `json:"sources"`
	Conflicts       int     `json:"conflicts"`
}

// Generate creates k new pending paths whose parents are the active
// frontier. An empty graph first receives its implicit root node. The
// children and one Generate operation commit atomically.
func (e *Engine) Generate(sessionID, query string, k int, strategy string) (*GenerateResult, error) {
	const op = "got.Generate"
	if query == "" {
		return nil, errs.Validation(op, "query is required")
	}
	if k <= 0 {
		return nil, errs.Validation(op, fmt.Sprintf("k must be positive, got %d", k))
	}
	if strategy == "" {
		strategy = StrategyDiverse
	}
	switch strategy {
	case StrategyDiverse, StrategyFocused, StrategyExploratory:
	default:
		return nil, errs.Validation(op, fmt.Sprintf("unknown generation strategy %q", strategy))
	}

	sess, err := e.store.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	paths, err := e.store.ListPaths(sessionID)
	if err != nil {
		return nil, err
	}

	var inserts []*types.Path
	var frontier []types.Path
	if len(paths) == 0 {
		root := &types.Path{
			PathID:    uuid.New().String(),
			SessionID: sessionID,
			NodeType:  string(types.NodeRoot),
			Focus:     "root",
			Query:     sess.ResearchTopic,
			Status:    string(types.PathActive),
			Depth:     0,
		}
		inserts = append(inserts, root)
		frontier = []types.Path{*root}
	} else {
		frontier = activeFrontier(paths)
		if len(frontier) == 0 {
			return nil, errs.Validation(op, "no viable parent paths in graph")
		}
	}

	frontierIDs := make([]string, len(frontier))
	for i, p := range frontier {
		frontierIDs[i] = p.PathID
	}

	children := make([]*types.Path, 0, k)
	briefs := make([]PathBrief, 0, k)
	childIDs := make([]string, 0, k)
	for i := 0; i < k; i++ {
		parent := frontier[i%len(frontier)]
		child := &types.Path{
			PathID:    uuid.New().String(),
			SessionID: sessionID,
			ParentID:  types.NullableString(parent.PathID),
			NodeType:  string(types.NodeGenerated),
			Focus:     fmt.Sprintf("angle %d of %d (%s)", i+1, k, strategy),
			Query:     query,
			Status:    string(types.PathPending),
			Depth:     parent.Depth + 1,
		}
		children = append(children, child)
		childIDs = append(childIDs, child.PathID)
		briefs = append(briefs, PathBrief{
			ID: child.PathID, Focus: child.Focus, Query: child.Query, Status: child.Status,
		})
	}

	operation := &types.Operation{
		OperationID:   uuid.New().String(),
		SessionID:     sessionID,
		OperationType: string(types.OpGenerate),
		InputNodes:    frontierIDs,
		OutputNodes:   childIDs,
		Parameters:    map[string]any{"strategy": strategy, "k": k},
	}
	if err := e.store.ApplyGeneration(append(inserts, children...), operation); err != nil {
		return nil, err
	}

	logging.Engine().Infof("generated %d paths for session %s (strategy=%s)", k, sessionID, strategy)
	return &GenerateResult{Success: true, Paths: briefs, Count: len(briefs)}, nil
}

// activeFrontier returns the non-terminal leaves in storage order. When all
// leaves are terminal the most recent non-terminal path carries on alone.
func activeFrontier(paths []types.Path) []types.Path {
	hasChild := map[string]bool{}
	for _, p := range paths {
		if p.ParentID.Valid {
			hasChild[p.ParentID.String] = true
		}
	}
	var frontier []types.Path
	for _, p := range paths {
		if hasChild[p.PathID] || types.PathStatus(p.Status).Terminal() {
			continue
		}
		frontier = append(frontier, p)
	}
	if len(frontier) > 0 {
		return frontier
	}
	for i := len(paths) - 1; i >= 0; i-- {
		if !types.PathStatus(paths[i].Status).Terminal() {
			return []types.Path{paths[i]}
		}
	}
	return nil
}

// Refine clones the target path into a new pending refined child one level
// deeper. The target itself stays live; outscoring a parent never prunes it
// automatically.
func (e *Engine) Refine(pathID, query string) (*RefineResult, error) {
	const op = "got.Refine"
	if query == "" {
		return nil, errs.Validation(op, "query is required")
	}
	target, err := e.store.GetPath(pathID)
	if err != nil {
		return nil, err
	}
	if types.PathStatus(target.Status).Terminal() {
		return nil, errs.InvalidStatus(op, fmt.Sprintf("%s (terminal paths cannot be refined)", target.Status))
	}

	focus := "refinement"
	if target.Focus != "" {
		focus = "refinement of " + target.Focus
	}
	child := &types.Path{
		PathID:    uuid.New().String(),
		SessionID: target.SessionID,
		ParentID:  types.NullableString(target.PathID),
		NodeType:  string(types.NodeRefined),
		Focus:     focus,
		Query:     query,
		Content:   target.Content,
		Status:    string(types.PathPending),
		Depth:     target.Depth + 1,
	}
	operation := &types.Operation{
		OperationID:   uuid.New().String(),
		SessionID:     target.SessionID,
		OperationType: string(types.OpRefine),
		InputNodes:    []string{target.PathID},
		OutputNodes:   []string{child.PathID},
		Parameters:    map[string]any{"query": query},
	}
	if err := e.store.ApplyRefinement(child, operation); err != nil {
		return nil, err
	}

	logging.Engine().Infof("refined path %s into %s", target.PathID, child.PathID)
	return &RefineResult{
		Success:  true,
		Path:     PathBrief{ID: child.PathID, Focus: child.Focus, Query: child.Query, Status: child.Status},
		ParentID: target.PathID,
	}, nil
}

// Aggregate merges the given paths into one new aggregated node, marks the
// parents aggregated, and flags the session. Synthesis concatenates parent
// content in sections; voting and consensus take the de-duplicated line
// union.
func (e *Engine) Aggregate(sessionID string, pathIDs []string, strategy string) (*AggregateResult, error) {
	const op = "got.Aggregate"
	if strategy == "" {
		strategy = StrategySynthesis
	}
	switch strategy {
	case StrategySynthesis, StrategyVoting, StrategyConsensus:
	default:
		return nil, errs.Validation(op, fmt.Sprintf("unknown aggregation strategy %q", strategy))
	}
	if len(pathIDs) < 2 {
		return nil, errs.Validation(op, "at least two paths are required")
	}
	if _, err := e.store.GetSession(sessionID); err != nil {
		return nil, err
	}

	parents := make([]*types.Path, 0, len(pathIDs))
	for _, id := range pathIDs {
		p, err := e.store.GetPath(id)
		if err != nil {
			return nil, err
		}
		if p.SessionID != sessionID {
			return nil, errs.Validation(op, fmt.Sprintf("path %s does not belong to session %s", id, sessionID))
		}
		if types.PathStatus(p.Status).Terminal() {
			return nil, errs.InvalidStatus(op, fmt.Sprintf("%s (path %s cannot be aggregated)", p.Status, id))
		}
		parents = append(parents, p)
	}

	var content string
	if strategy == StrategySynthesis {
		content = composeSynthesis(parents)
	} else {
		content = composeUnion(parents)
	}

	sourceLen := 0
	maxDepth := 0
	scoreSum := 0.0
	var allFacts []types.Fact
	for _, p := range parents {
		sourceLen += len(p.Content)
		if p.Depth > maxDepth {
			maxDepth = p.Depth
		}
		scoreSum += p.QualityScore
		allFacts = append(allFacts, extract.Facts(p.Content, "")...)
	}
	conflicts := conflict.Detect(allFacts, conflict.DefaultTolerance()).TotalConflicts
	sources := len(validate.ParseCitations(content))
	confidence := round2(scoreSum / float64(len(parents)) / 10)
	if confidence > 1 {
		confidence = 1
	}

	ratio := 1.0
	if len(content) > 0 {
		ratio = float64(sourceLen) / float64(len(content))
		if ratio < 1 {
			ratio = 1
		}
	}
	agg := &types.Path{
		PathID:           uuid.New().String(),
		SessionID:        sessionID,
		ParentID:         types.NullableString(parents[0].PathID),
		NodeType:         string(types.NodeAggregated),
		Focus:            fmt.Sprintf("aggregation of %d paths (%s)", len(parents), strategy),
		Content:          content,
		Summary:          fmt.Sprintf("merged %d exploration paths under %s", len(parents), strategy),
		Status:           string(types.PathCompleted),
		Depth:            maxDepth + 1,
		CompressionRatio: ratio,
	}
	operation := &types.Operation{
		OperationID:   uuid.New().String(),
		SessionID:     sessionID,
		OperationType: string(types.OpAggregate),
		InputNodes:    pathIDs,
		OutputNodes:   []string{agg.PathID},
		Parameters: map[string]any{
			"strategy":       strategy,
			"source_count":   sources,
			"conflict_count": conflicts,
		},
	}
	if err := e.store.ApplyAggregation(agg, pathIDs, operation, confidence); err != nil {
		return nil, err
	}

	logging.Engine().Infof("aggregated %d paths into %s (confidence=%.2f)", len(parents), agg.PathID, confidence)
	return &AggregateResult{
		Success:         true,
		SynthesisPathID: agg.PathID,
		Confidence:      confidence,
		Sources:         sources,
		Conflicts:       conflicts,
	}, nil
}

func composeSynthesis(parents []*types.Path) string {
	var b strings.Builder
	for i, p := range parents {
		if i > 0 {
			b.WriteString("\n\n---\n\n")
		}
		if p.Focus != "" {
			b.WriteString("## " + p.Focus + "\n\n")
		}
		b.WriteString(p.Content)
	}
	return b.String()
}

func composeUnion(parents []*types.Path) string {
	seen := map[string]bool{}
	var lines []string
	for _, p := range parents {
		for _, line := range strings.Split(p.Content, "\n") {
			line = strings.TrimRight(line, " \t")
			if line == "" || seen[line] {
				continue
			}
			seen[line] = true
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

// UpdatePathStatus applies an executor delivery or a manual transition.
// Completed deliveries must carry content; terminal paths reject further
// transitions. A summary alongside content records its compression ratio.
func (e *Engine) UpdatePathStatus(pathID, status, content, summary string) (*types.Path, error) {
	const op = "got.UpdatePathStatus"
	if !types.ValidPathStatus(status) {
		return nil, errs.InvalidStatus(op, status)
	}
	target, err := e.store.GetPath(pathID)
	if err != nil {
		return nil, err
	}
	if types.PathStatus(target.Status).Terminal() {
		return nil, errs.InvalidStatus(op, fmt.Sprintf("%s (path is terminal)", target.Status))
	}
	if status == string(types.PathCompleted) && content == "" && target.Content == "" {
		return nil, errs.Validation(op, "a completed path requires content")
	}

	// compression_ratio stays at or above 1: content length over summary length.
	ratio := 0.0
	if content != "" && summary != "" {
		ratio = float64(len(content)) / float64(len(summary))
		if ratio < 1 {
			ratio = 1
		}
	}
	if err := e.store.UpdatePathDelivery(pathID, status, content, summary, ratio); err != nil {
		return nil, err
	}
	return e.store.GetPath(pathID)
}

// GraphState projects a session into the decision engine's read-only view.
func (e *Engine) GraphState(sessionID string) (decision.GraphState, error) {
	sess, err := e.store.GetSession(sessionID)
	if err != nil {
		return decision.GraphState{}, err
	}
	paths, err := e.store.ListPaths(sessionID)
	if err != nil {
		return decision.GraphState{}, err
	}

	state := decision.GraphState{
		Paths:               make([]decision.PathState, len(paths)),
		IterationCount:      sess.IterationCount,
		Confidence:          sess.Confidence,
		IsAggregated:        sess.IsAggregated,
		BudgetExhausted:     sess.BudgetExhausted,
		MaxIterations:       sess.MaxIterations,
		ConfidenceThreshold: sess.ConfidenceThreshold,
		CurrentFindings:     findings(paths),
	}
	for i, p := range paths {
		state.Paths[i] = decision.PathState{ID: p.PathID, Status: p.Status, Score: p.QualityScore}
	}
	return state, nil
}

// findings joins the summaries of the strongest live paths, newest scores
// first, truncated for prompt context.
func findings(paths []types.Path) string {
	var scored []types.Path
	for _, p := range paths {
		if p.Summary != "" && p.QualityScore > 0 && !types.PathStatus(p.Status).Terminal() {
			scored = append(scored, p)
		}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].QualityScore != scored[j].QualityScore {
			return scored[i].QualityScore > scored[j].QualityScore
		}
		return scored[i].PathID < scored[j].PathID
	})
	if len(scored) > 3 {
		scored = scored[:3]
	}
	parts := make([]string, len(scored))
	for i, p := range scored {
		parts[i] = p.Summary
	}
	joined := strings.Join(parts, "; ")
	if len(joined) > 500 {
		joined = joined[:500]
	}
	return joined
}

func round2(x float64) float64 { return math.Round(x*100) / 100 }
