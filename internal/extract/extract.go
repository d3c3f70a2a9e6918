// Package extract implements the deterministic text operators that turn raw
// research output into structured facts, entities, and relationship edges.
// Operators are pure: identifiers and persistence belong to the caller.
package extract

import (
	"fmt"
	"time"

	"deepresearch/internal/errs"
	"deepresearch/internal/logging"
	"deepresearch/internal/types"
)

// Mode selects which extractor families run.
const (
	ModeFact   = "fact"
	ModeEntity = "entity"
	ModeAll    = "all"
)

// Options carries the optional knobs of a single extraction call.
type Options struct {
	Mode             string
	SourceURL        string
	SourceMetadata   map[string]any
	EntityTypes      []string
	ExtractRelations bool
}

// Metadata summarizes one extraction run.
type Metadata struct {
	Mode               string  `json:"mode"`
	TotalFacts         int     `json:"total_facts"`
	TotalEntities      int     `json:"total_entities"`
	TotalRelationships int     `json:"total_relationships"`
	ProcessingTimeMs   float64 `json:"processing_time_ms"`
	ExtractionQuality  float64 `json:"extraction_quality"`
}

// Result is the combined output of an extraction call. Facts is nil unless
// fact mode ran; Entities and Edges are nil unless entity mode ran.
type Result struct {
	Facts    []types.Fact         `json:"facts,omitempty"`
	Entities []types.Entity       `json:"entities,omitempty"`
	Edges    []types.Relationship `json:"edges,omitempty"`
	Metadata Metadata             `json:"metadata"`
}

// Run executes the extractors selected by opts.Mode over text.
func Run(text string, opts Options) (*Result, error) {
	const op = "extract.Run"
	if text == "" {
		return nil, errs.Validation(op, "text is required")
	}
	mode := opts.Mode
	if mode == "" {
		mode = ModeAll
	}
	switch mode {
	case ModeFact, ModeEntity, ModeAll:
	default:
		return nil, errs.Validation(op, fmt.Sprintf("mode must be fact, entity, or all, got %q", mode))
	}

	start := time.Now()
	res := &Result{}

	if mode == ModeFact || mode == ModeAll {
		res.Facts = Facts(text, opts.SourceURL)
	}
	if mode == ModeEntity || mode == ModeAll {
		res.Entities = Entities(text, opts.EntityTypes)
		if opts.ExtractRelations {
			res.Edges = Relationships(text)
		}
	}

	res.Metadata = Metadata{
		Mode:               mode,
		TotalFacts:         len(res.Facts),
		TotalEntities:      len(res.Entities),
		TotalRelationships: len(res.Edges),
		ProcessingTimeMs:   float64(time.Since(start).Microseconds()) / 1000.0,
		ExtractionQuality:  quality(res.Facts),
	}

	logging.Extract().Debugf("extraction complete: mode=%s facts=%d entities=%d edges=%d",
		mode, res.Metadata.TotalFacts, res.Metadata.TotalEntities, res.Metadata.TotalRelationships)
	return res, nil
}

// quality scores an extraction on [0, 10]: volume baseline capped at 5, plus
// up to 3 for source coverage and up to 2 for high-confidence share.
func quality(facts []types.Fact) float64 {
	if len(facts) == 0 {
		return 0
	}
	n := float64(len(facts))
	withSource := 0
	highConfidence := 0
	for _, f := range facts {
		if f.SourceURL != "" {
			withSource++
		}
		if f.Confidence >= 0.8 {
			highConfidence++
		}
	}
	base := n * 0.5
	if base > 5 {
		base = 5
	}
	return base + float64(withSource)/n*3 + float64(highConfidence)/n*2
}
