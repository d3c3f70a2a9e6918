package got

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"

	"deepresearch/internal/conflict"
	"deepresearch/internal/errs"
	"deepresearch/internal/extract"
	"deepresearch/internal/logging"
	"deepresearch/internal/store"
	"deepresearch/internal/types"
	"deepresearch/internal/validate"
)

// ScoreBreakdown itemizes one path's quality score. The components sum to
// Total, each on one decimal.
type ScoreBreakdown struct {
	CitationQuality float64 `json:"citation_quality"`
	Completeness    float64 `json:"completeness"`
	Accuracy        float64 `json:"accuracy"`
	SourceQuality   float64 `json:"source_quality"`
	Total           float64 `json:"total"`
}

// ScoredPath is the wire record of one scoring decision.
type ScoredPath struct {
	ID        string         `json:"id"`
	Score     float64        `json:"score"`
	Breakdown ScoreBreakdown `json:"breakdown"`
	Pruned    bool           `json:"pruned"`
}

// ScoreResult reports one score-and-prune round.
type ScoreResult struct {
	Success   bool         `json:"success"`
	Scored    []ScoredPath `json:"scored"`
	PrunedIDs []string     `json:"pruned_ids"`
}

var (
	introRe       = regexp.MustCompile(`(?i)(?:^|\n)#{1,4}[ \t]*(?:introduction|overview|background|executive summary)\b|\bthis (?:report|analysis|document|study|section)\b`)
	exampleRe     = regexp.MustCompile(`(?i)\bfor example\b|\bfor instance\b|\bsuch as\b|\be\.g\.`)
	implicationRe = regexp.MustCompile(`(?i)\bimplications?\b|\bimpacts?\b|\bconsequences?\b|\boutlook\b`)
)

// ScoreContent applies the quality rubric to a path's delivered content:
// citation quality (0-3), completeness (0-3), accuracy from detected fact
// conflicts (0-2), and mean source quality (0-2).
func ScoreContent(content string) ScoreBreakdown {
	citations := validate.ParseCitations(content)

	br := ScoreBreakdown{
		CitationQuality: citationQuality(citations),
		Completeness:    completeness(content),
		Accuracy:        accuracy(content),
		SourceQuality:   sourceQuality(citations),
	}
	br.Total = round1(br.CitationQuality + br.Completeness + br.Accuracy + br.SourceQuality)
	return br
}

func citationQuality(citations []types.Citation) float64 {
	n := len(citations)
	switch {
	case n == 0:
		return 0
	case n < 3:
		return 0.5
	case n < 5:
		return 1.0
	}
	complete := 0
	for i := range citations {
		if citations[i].Complete() {
			complete++
		}
	}
	switch ratio := float64(complete) / float64(n); {
	case ratio >= 0.9:
		return 3.0
	case ratio >= 0.7:
		return 2.5
	case ratio >= 0.5:
		return 2.0
	default:
		return 1.5
	}
}

func completeness(content string) float64 {
	score := 0.0
	if introRe.MatchString(content) {
		score += 0.7
	}
	if len(strings.Fields(content)) > 500 {
		score += 1.0
	}
	if exampleRe.MatchString(content) {
		score += 0.7
	}
	if implicationRe.MatchString(content) {
		score += 0.6
	}
	if score > 3 {
		score = 3
	}
	return round1(score)
}

func accuracy(content string) float64 {
	facts := extract.Facts(content, "")
	res := conflict.Detect(facts, conflict.DefaultTolerance())
	if res.TotalConflicts == 0 {
		return 2
	}
	if res.SeveritySummary[string(types.SeverityCritical)] > 0 {
		return 0
	}
	switch moderate := res.SeveritySummary[string(types.SeverityModerate)]; {
	case moderate > 2:
		return 0.5
	case moderate > 0:
		return 1.0
	default:
		return 1.5
	}
}

func sourceQuality(citations []types.Citation) float64 {
	if len(citations) == 0 {
		return 0
	}
	sum := 0.0
	for i := range citations {
		sum += validate.RateSource(citations[i].URL, "").Score
	}
	return round1(sum / float64(len(citations)))
}

// ScoreAndPrune scores every completed-but-unscored path in the session,
// prunes those strictly below threshold, then prunes all survivors past the
// keepTopN highest. Score ties keep the younger path. Re-running on a graph
// with no unscored paths changes nothing and records no operations.
func (e *Engine) ScoreAndPrune(sessionID string, threshold float64, keepTopN int) (*ScoreResult, error) {
	const op = "got.ScoreAndPrune"
	if threshold < 0 || threshold > 10 {
		return nil, errs.Validation(op, fmt.Sprintf("threshold must be within 0..10, got %g", threshold))
	}
	if keepTopN < 0 {
		return nil, errs.Validation(op, fmt.Sprintf("keep_top_n must be non-negative, got %d", keepTopN))
	}
	sess, err := e.store.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	paths, err := e.store.ListPaths(sessionID)
	if err != nil {
		return nil, err
	}

	var candidates []types.Path
	for _, p := range paths {
		if p.Status == string(types.PathCompleted) && !p.Scored() {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return &ScoreResult{Success: true, Scored: []ScoredPath{}, PrunedIDs: []string{}}, nil
	}

	breakdowns := make(map[string]ScoreBreakdown, len(candidates))
	scores := make([]store.PathScore, 0, len(candidates))
	candidateIDs := make([]string, 0, len(candidates))
	sum := 0.0
	var survivors []types.Path
	prunedIDs := []string{}
	for _, p := range candidates {
		br := ScoreContent(p.Content)
		breakdowns[p.PathID] = br
		scores = append(scores, store.PathScore{PathID: p.PathID, Score: br.Total})
		candidateIDs = append(candidateIDs, p.PathID)
		sum += br.Total
		if br.Total < threshold {
			prunedIDs = append(prunedIDs, p.PathID)
		} else {
			p.QualityScore = br.Total
			survivors = append(survivors, p)
		}
	}
	sort.SliceStable(survivors, func(i, j int) bool {
		a, b := survivors[i], survivors[j]
		if a.QualityScore != b.QualityScore {
			return a.QualityScore > b.QualityScore
		}
		if a.CreatedAt != b.CreatedAt {
			return a.CreatedAt > b.CreatedAt
		}
		return a.PathID < b.PathID
	})
	for _, p := range survivors[min(keepTopN, len(survivors)):] {
		prunedIDs = append(prunedIDs, p.PathID)
	}

	scoreOp := &types.Operation{
		OperationID:   uuid.New().String(),
		SessionID:     sessionID,
		OperationType: string(types.OpScore),
		InputNodes:    candidateIDs,
		OutputNodes:   []string{},
		Parameters:    map[string]any{"threshold": threshold, "keep_top_n": keepTopN},
	}
	pruneOp := &types.Operation{
		OperationID:   uuid.New().String(),
		SessionID:     sessionID,
		OperationType: string(types.OpPrune),
		InputNodes:    prunedIDs,
		OutputNodes:   []string{},
		Parameters:    map[string]any{"count": len(prunedIDs)},
	}
	if err := e.store.ApplyScoring(scores, prunedIDs, scoreOp, pruneOp); err != nil {
		return nil, err
	}

	mean := round2(sum / float64(len(candidates)))
	if err := e.store.RecordMetric(sessionID, "mean_quality_score", mean, sess.CurrentPhase); err != nil {
		logging.Engine().Warnf("recording mean_quality_score failed: %v", err)
	}

	pruned := make(map[string]bool, len(prunedIDs))
	for _, id := range prunedIDs {
		pruned[id] = true
	}
	out := make([]ScoredPath, 0, len(candidates))
	for _, p := range candidates {
		br := breakdowns[p.PathID]
		out = append(out, ScoredPath{ID: p.PathID, Score: br.Total, Breakdown: br, Pruned: pruned[p.PathID]})
	}

	logging.Engine().Infof("scored %d paths for session %s, pruned %d (threshold=%.1f keep_top_n=%d)",
		len(candidates), sessionID, len(prunedIDs), threshold, keepTopN)
	return &ScoreResult{Success: true, Scored: out, PrunedIDs: prunedIDs}, nil
}

func round1(x float64) float64 { return math.Round(x*10) / 10 }
