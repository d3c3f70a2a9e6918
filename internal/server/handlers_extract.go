package server

import (
	"context"

	"deepresearch/internal/batch"
	"deepresearch/internal/cache"
	"deepresearch/internal/conflict"
	"deepresearch/internal/errs"
	"deepresearch/internal/extract"
	"deepresearch/internal/types"
	"deepresearch/internal/validate"
)

func (s *Server) handleExtract(ctx context.Context, args map[string]any) (any, error) {
	opts := extract.Options{
		Mode:             argString(args, "mode", ""),
		SourceURL:        argString(args, "source_url", ""),
		SourceMetadata:   argMap(args, "source_metadata"),
		EntityTypes:      argStringSlice(args, "entity_types"),
		ExtractRelations: argBool(args, "extract_relations", true),
	}
	return extract.Run(argString(args, "text", ""), opts)
}

func (s *Server) handleValidate(ctx context.Context, args map[string]any) (any, error) {
	opts := validate.Options{
		Mode:       argString(args, "mode", ""),
		SourceURL:  argString(args, "source_url", ""),
		SourceType: argString(args, "source_type", ""),
		VerifyURLs: argBool(args, "verify_urls", false),
	}
	if raw, ok := args["citations"]; ok {
		if err := decodeArg("validate", raw, &opts.Citations); err != nil {
			return nil, err
		}
	}
	return validate.Run(opts)
}

func (s *Server) handleConflictDetect(ctx context.Context, args map[string]any) (any, error) {
	raw, ok := args["facts"]
	if !ok {
		return nil, errs.Validation("conflict-detect", "facts is required")
	}
	var facts []types.Fact
	if err := decodeArg("conflict-detect", raw, &facts); err != nil {
		return nil, err
	}
	tol := conflict.DefaultTolerance()
	if traw, ok := args["tolerance"]; ok {
		if err := decodeArg("conflict-detect", traw, &tol); err != nil {
			return nil, err
		}
	}
	return conflict.Detect(facts, tol), nil
}

func (s *Server) handleBatchExtract(ctx context.Context, args map[string]any) (any, error) {
	items, err := batchItems("batch-extract", args, func(text string) map[string]any {
		return map[string]any{"text": text}
	})
	if err != nil {
		return nil, err
	}
	mode := bakeMode(items, argString(args, "mode", ""))

	// Only single-operator modes map to a family cache; mode all runs
	// uncached.
	var family *cache.Cache
	switch mode {
	case extract.ModeFact:
		family = s.caches.Family(cache.FamilyFact)
	case extract.ModeEntity:
		family = s.caches.Family(cache.FamilyEntity)
	}

	runner := &batch.Runner{Cache: family}
	op := func(ctx context.Context, input any) (any, error) {
		m, _ := input.(map[string]any)
		opts := extract.Options{
			Mode:             argString(m, "mode", ""),
			SourceURL:        argString(m, "source_url", ""),
			SourceMetadata:   argMap(m, "source_metadata"),
			EntityTypes:      argStringSlice(m, "entity_types"),
			ExtractRelations: argBool(m, "extract_relations", true),
		}
		return extract.Run(argString(m, "text", ""), opts)
	}
	return runner.Run(ctx, items, op, s.batchOptions(args))
}

func (s *Server) handleBatchValidate(ctx context.Context, args map[string]any) (any, error) {
	items, err := batchItems("batch-validate", args, func(url string) map[string]any {
		return map[string]any{"source_url": url}
	})
	if err != nil {
		return nil, err
	}
	mode := bakeMode(items, argString(args, "mode", ""))

	var family *cache.Cache
	switch mode {
	case validate.ModeCitation:
		family = s.caches.Family(cache.FamilyCitation)
	case validate.ModeSource:
		family = s.caches.Family(cache.FamilySourceRating)
	}

	runner := &batch.Runner{Cache: family}
	op := func(ctx context.Context, input any) (any, error) {
		m, _ := input.(map[string]any)
		opts := validate.Options{
			Mode:       argString(m, "mode", ""),
			SourceURL:  argString(m, "source_url", ""),
			SourceType: argString(m, "source_type", ""),
			VerifyURLs: argBool(m, "verify_urls", false),
		}
		if raw, ok := m["citations"]; ok {
			if err := decodeArg("batch-validate", raw, &opts.Citations); err != nil {
				return nil, err
			}
		}
		return validate.Run(opts)
	}
	return runner.Run(ctx, items, op, s.batchOptions(args))
}

func (s *Server) handleBatchConflict(ctx context.Context, args map[string]any) (any, error) {
	items, err := batchItems("batch-conflict-detect", args, nil)
	if err != nil {
		return nil, err
	}

	runner := &batch.Runner{Cache: s.caches.Family(cache.FamilyConflict)}
	op := func(ctx context.Context, input any) (any, error) {
		m, _ := input.(map[string]any)
		raw, ok := m["facts"]
		if !ok {
			return nil, errs.Validation("batch-conflict-detect", "facts is required")
		}
		var facts []types.Fact
		if err := decodeArg("batch-conflict-detect", raw, &facts); err != nil {
			return nil, err
		}
		tol := conflict.DefaultTolerance()
		if traw, ok := m["tolerance"]; ok {
			if err := decodeArg("batch-conflict-detect", traw, &tol); err != nil {
				return nil, err
			}
		}
		return conflict.Detect(facts, tol), nil
	}
	return runner.Run(ctx, items, op, s.batchOptions(args))
}

// batchItems decodes the items argument. Object items pass through with
// their inputs cloned; bare strings are promoted through promote when one
// is supplied, so "items": ["...", ...] shorthand works.
func batchItems(op string, args map[string]any, promote func(string) map[string]any) ([]batch.Item, error) {
	raw, ok := args["items"].([]any)
	if !ok {
		return nil, errs.Validation(op, "items must be an array")
	}
	items := make([]batch.Item, 0, len(raw))
	for _, v := range raw {
		switch it := v.(type) {
		case map[string]any:
			items = append(items, batch.Item{ID: argString(it, "id", ""), Input: cloneArgs(it)})
		case string:
			if promote == nil {
				return nil, errs.Validation(op, "items must be objects")
			}
			items = append(items, batch.Item{Input: promote(it)})
		default:
			return nil, errs.Validation(op, "items must be objects or strings")
		}
	}
	return items, nil
}

// bakeMode writes the tool-level mode into every item input so cache keys
// cover it. Item-level modes survive only when no tool-level mode is set.
func bakeMode(items []batch.Item, mode string) string {
	if mode == "" {
		return ""
	}
	for _, it := range items {
		if m, ok := it.Input.(map[string]any); ok {
			m["mode"] = mode
		}
	}
	return mode
}

// batchOptions resolves tool-level options against the configured defaults.
func (s *Server) batchOptions(args map[string]any) batch.Options {
	cfg := s.config()
	o := argMap(args, "options")
	return batch.Options{
		MaxConcurrency: argInt(o, "max_concurrency", cfg.Batch.MaxConcurrency),
		UseCache:       argBool(o, "use_cache", cfg.Batch.UseCache),
		StopOnError:    argBool(o, "stop_on_error", cfg.Batch.StopOnError),
	}
}
