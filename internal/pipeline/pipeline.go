// Package pipeline sweeps a directory of markdown research notes through
// the extraction operators, persists what they find, and writes artifact
// reports to an output directory.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"deepresearch/internal/conflict"
	"deepresearch/internal/errs"
	"deepresearch/internal/extract"
	"deepresearch/internal/logging"
	"deepresearch/internal/store"
	"deepresearch/internal/types"
)

// Pipeline operations.
const (
	OpFactExtraction     = "fact_extraction"
	OpEntityExtraction   = "entity_extraction"
	OpCitationValidation = "citation_validation"
	OpConflictDetection  = "conflict_detection"
)

var allOperations = []string{OpFactExtraction, OpEntityExtraction, OpCitationValidation, OpConflictDetection}

// Options tunes one pipeline run.
type Options struct {
	Operations      []string
	ContinueOnError bool
}

// DefaultOptions runs every operation and records per-file errors without
// aborting.
func DefaultOptions() Options {
	return Options{Operations: allOperations, ContinueOnError: true}
}

// OperationResult reports one requested operation.
type OperationResult struct {
	Operation      string         `json:"operation"`
	FilesProcessed int            `json:"files_processed"`
	Stats          map[string]any `json:"stats"`
}

// Result is the wire response of auto_process_data.
type Result struct {
	Success  bool              `json:"success"`
	Message  string            `json:"message,omitempty"`
	Results  []OperationResult `json:"results"`
	Summary  map[string]any    `json:"summary"`
	Warnings []string          `json:"warnings,omitempty"`
}

// Runner executes directory sweeps against one store.
type Runner struct {
	store *store.Store
}

// NewRunner builds a runner over st.
func NewRunner(st *store.Store) *Runner {
	return &Runner{store: st}
}

// Run processes every *.md file under inputDir in lexical order, persists
// extracted knowledge under sessionID, and writes the requested artifacts to
// outputDir. Citation validation is reported as skipped: free-text citation
// extraction stays with the validate tool, which takes structured citations.
func (r *Runner) Run(ctx context.Context, sessionID, inputDir, outputDir string, opts Options) (*Result, error) {
	const op = "pipeline.Run"
	start := time.Now()

	if _, err := r.store.GetSession(sessionID); err != nil {
		return nil, err
	}
	requested := map[string]bool{}
	if len(opts.Operations) == 0 {
		opts.Operations = allOperations
	}
	for _, o := range opts.Operations {
		switch o {
		case OpFactExtraction, OpEntityExtraction, OpCitationValidation, OpConflictDetection:
			requested[o] = true
		default:
			return nil, errs.Validation(op, fmt.Sprintf("unknown operation %q", o))
		}
	}

	info, err := os.Stat(inputDir)
	if err != nil || !info.IsDir() {
		return nil, errs.BadDirectory(op, inputDir)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, errs.Processing(op, fmt.Sprintf("creating output directory %s", outputDir), err)
	}

	files, err := filepath.Glob(filepath.Join(inputDir, "*.md"))
	if err != nil {
		return nil, errs.Processing(op, "enumerating input files", err)
	}
	sort.Strings(files)
	if len(files) == 0 {
		return &Result{
			Success: true,
			Message: "No files to process",
			Results: []OperationResult{},
			Summary: map[string]any{"total_files": 0},
		}, nil
	}

	needFacts := requested[OpFactExtraction] || requested[OpConflictDetection]
	var (
		allFacts    []types.Fact
		allEntities []types.Entity
		allEdges    []types.Relationship
		warnings    []string
		fileErrors  int
		processed   int
	)
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, errs.Processing(op, "pipeline cancelled", err)
		}
		raw, err := os.ReadFile(file)
		if err != nil {
			if !opts.ContinueOnError {
				return nil, errs.Processing(op, fmt.Sprintf("reading %s", file), err)
			}
			warnings = append(warnings, fmt.Sprintf("reading %s: %v", filepath.Base(file), err))
			fileErrors++
			continue
		}
		text := string(raw)
		source := filepath.Base(file)

		if needFacts {
			facts := extract.Facts(text, source)
			for i := range facts {
				facts[i].FactID = uuid.New().String()
				facts[i].SessionID = sessionID
			}
			allFacts = append(allFacts, facts...)
		}
		if requested[OpEntityExtraction] {
			entities := extract.Entities(text, nil)
			for i := range entities {
				entities[i].EntityID = uuid.New().String()
				entities[i].SessionID = sessionID
			}
			allEntities = append(allEntities, entities...)
			edges := extract.Relationships(text)
			for i := range edges {
				edges[i].RelationshipID = uuid.New().String()
				edges[i].SessionID = sessionID
			}
			allEdges = append(allEdges, edges...)
		}

		if err := r.stageCompleted(sessionID, source, text); err != nil {
			if !opts.ContinueOnError {
				return nil, err
			}
			warnings = append(warnings, fmt.Sprintf("staging %s: %v", source, err))
			fileErrors++
			continue
		}
		processed++
	}

	var conflicts *conflict.Result
	if requested[OpConflictDetection] {
		conflicts = conflict.Detect(allFacts, conflict.DefaultTolerance())
	}

	if requested[OpFactExtraction] {
		if _, err := r.store.InsertFacts(allFacts); err != nil {
			return nil, err
		}
	}
	if requested[OpEntityExtraction] {
		if _, err := r.store.InsertEntities(allEntities); err != nil {
			return nil, err
		}
		if _, err := r.store.InsertRelationships(allEdges); err != nil {
			return nil, err
		}
	}
	// Conflicts persist only when their facts do, so fact_id references hold.
	if requested[OpConflictDetection] && requested[OpFactExtraction] {
		for i := range conflicts.Conflicts {
			conflicts.Conflicts[i].ConflictID = uuid.New().String()
			conflicts.Conflicts[i].SessionID = sessionID
		}
		if _, err := r.store.InsertConflicts(conflicts.Conflicts); err != nil {
			return nil, err
		}
	}

	results := []OperationResult{}
	if requested[OpFactExtraction] {
		stats := map[string]any{"total_facts": len(allFacts)}
		if err := r.writeArtifact(outputDir, "fact_ledger.md", "Fact Ledger", processed, allFacts); err != nil {
			return nil, err
		}
		results = append(results, OperationResult{Operation: OpFactExtraction, FilesProcessed: processed, Stats: stats})
	}
	if requested[OpEntityExtraction] {
		stats := map[string]any{"total_entities": len(allEntities), "total_relationships": len(allEdges)}
		payload := map[string]any{"entities": allEntities, "relationships": allEdges}
		if err := r.writeArtifact(outputDir, "entity_graph.md", "Entity Graph", processed, payload); err != nil {
			return nil, err
		}
		results = append(results, OperationResult{Operation: OpEntityExtraction, FilesProcessed: processed, Stats: stats})
	}
	if requested[OpCitationValidation] {
		warnings = append(warnings, "citation extraction from free text is not yet implemented")
		note := "Skipped: citation extraction from free text is not yet implemented.\n"
		path := filepath.Join(outputDir, "citation_validation.md")
		if err := os.WriteFile(path, []byte("# Citation Validation\n\n"+note), 0o644); err != nil {
			return nil, errs.Processing(op, fmt.Sprintf("writing %s", path), err)
		}
		results = append(results, OperationResult{
			Operation: OpCitationValidation, FilesProcessed: 0,
			Stats: map[string]any{"skipped": true},
		})
	}
	if requested[OpConflictDetection] {
		stats := map[string]any{
			"total_conflicts":  conflicts.TotalConflicts,
			"severity_summary": conflicts.SeveritySummary,
		}
		if err := r.writeArtifact(outputDir, "conflict_report.md", "Conflict Report", processed, conflicts); err != nil {
			return nil, err
		}
		results = append(results, OperationResult{Operation: OpConflictDetection, FilesProcessed: processed, Stats: stats})
	}

	summary := map[string]any{
		"total_files":     len(files),
		"files_processed": processed,
		"file_errors":     fileErrors,
		"operations_run":  len(results),
		"total_facts":     len(allFacts),
		"total_entities":  len(allEntities),
		"duration_ms":     float64(time.Since(start).Microseconds()) / 1000.0,
	}
	if conflicts != nil {
		summary["total_conflicts"] = conflicts.TotalConflicts
	}

	logging.Pipeline().Infof("auto-process swept %d files for session %s (%d facts, %d entities, %d errors)",
		len(files), sessionID, len(allFacts), len(allEntities), fileErrors)
	return &Result{Success: true, Results: results, Summary: summary, Warnings: warnings}, nil
}

// stageCompleted records the raw file in the ingest queue as already
// processed, so the queue doubles as sweep provenance.
func (r *Runner) stageCompleted(sessionID, source, content string) error {
	id, err := r.store.StageIngest(&types.IngestedItem{
		SessionID:      sessionID,
		Source:         source,
		ContentType:    "text/markdown",
		Content:        content,
		OriginalLength: len(content),
	})
	if err != nil {
		return err
	}
	return r.store.CompleteIngest(id, "")
}

func (r *Runner) writeArtifact(outputDir, name, title string, files int, payload any) error {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return errs.Processing("pipeline.writeArtifact", fmt.Sprintf("encoding %s", name), err)
	}
	body := fmt.Sprintf("# %s\n\nProcessed %d files.\n\n```json\n%s\n```\n", title, files, data)
	path := filepath.Join(outputDir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		return errs.Processing("pipeline.writeArtifact", fmt.Sprintf("writing %s", path), err)
	}
	return nil
}
