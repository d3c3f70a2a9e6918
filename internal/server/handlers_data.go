package server

import (
	"context"
	"fmt"

	"deepresearch/internal/errs"
	"deepresearch/internal/pipeline"
)

func (s *Server) handleAutoProcess(ctx context.Context, args map[string]any) (any, error) {
	opts := pipeline.DefaultOptions()
	if ops := argStringSlice(args, "operations"); len(ops) > 0 {
		opts.Operations = ops
	}
	if o := argMap(args, "options"); o != nil {
		opts.ContinueOnError = argBool(o, "continue_on_error", opts.ContinueOnError)
	}

	sessionID := argString(args, "session_id", "")
	res, err := s.pipeline.Run(ctx, sessionID,
		argString(args, "input_dir", ""),
		argString(args, "output_dir", ""),
		opts)
	if err != nil {
		return nil, err
	}

	payload := map[string]any{
		"success":    res.Success,
		"session_id": sessionID,
		"results":    res.Results,
		"summary":    res.Summary,
	}
	if res.Message != "" {
		payload["message"] = res.Message
	}
	if len(res.Warnings) > 0 {
		payload["warnings"] = res.Warnings
	}
	return payload, nil
}

func (s *Server) handleIngestContent(ctx context.Context, args map[string]any) (any, error) {
	return s.ingest.Stage(
		argString(args, "session_id", ""),
		argString(args, "source", ""),
		argString(args, "content_type", ""),
		argString(args, "content", ""),
	)
}

func (s *Server) handleBatchIngest(ctx context.Context, args map[string]any) (any, error) {
	const op = "batch_ingest"
	sessionID := argString(args, "session_id", "")
	raw, ok := args["items"].([]any)
	if !ok || len(raw) == 0 {
		return nil, errs.Validation(op, "items must be a non-empty array")
	}
	// A missing session is a tool-level failure, not one error per item.
	if _, err := s.manager.Get(sessionID); err != nil {
		return nil, err
	}

	type outcome struct {
		Index  int    `json:"index"`
		ID     int64  `json:"id,omitempty"`
		Status string `json:"status,omitempty"`
		Error  string `json:"error,omitempty"`
	}
	outcomes := make([]outcome, 0, len(raw))
	staged := 0
	for i, v := range raw {
		item, ok := v.(map[string]any)
		if !ok {
			outcomes = append(outcomes, outcome{Index: i, Error: "item must be an object"})
			continue
		}
		res, err := s.ingest.Stage(sessionID,
			argString(item, "source", ""),
			argString(item, "content_type", ""),
			argString(item, "content", ""))
		if err != nil {
			outcomes = append(outcomes, outcome{Index: i, Error: err.Error()})
			continue
		}
		staged++
		outcomes = append(outcomes, outcome{Index: i, ID: res.ID, Status: res.Status})
	}
	return map[string]any{
		"staged": staged,
		"failed": len(raw) - staged,
		"items":  outcomes,
	}, nil
}

func (s *Server) handleProcessRaw(ctx context.Context, args map[string]any) (any, error) {
	return s.ingest.Process(ctx,
		argString(args, "session_id", ""),
		argInt(args, "limit", 0),
	)
}

func (s *Server) handleCacheStats(ctx context.Context, args map[string]any) (any, error) {
	return s.caches.Stats(), nil
}

func (s *Server) handleCacheClear(ctx context.Context, args map[string]any) (any, error) {
	family := argString(args, "family", "")
	removed := s.caches.Clear(family)
	if family != "" && len(removed) == 0 {
		return nil, errs.Validation("cache-clear", fmt.Sprintf("unknown cache family %q", family))
	}
	msg := "all caches cleared"
	if family != "" {
		msg = fmt.Sprintf("cache %q cleared", family)
	}
	return map[string]any{"message": msg, "removed": removed}, nil
}
