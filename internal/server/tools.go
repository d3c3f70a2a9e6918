package server

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// Schema construction helpers. Every tool advertises a JSON Schema object;
// these keep the registration blocks readable.

func prop(typ, desc string) map[string]any {
	return map[string]any{"type": typ, "description": desc}
}

func propDefault(typ, desc string, def any) map[string]any {
	return map[string]any{"type": typ, "description": desc, "default": def}
}

func propEnum(desc string, values ...string) map[string]any {
	return map[string]any{"type": "string", "description": desc, "enum": values}
}

func propArray(desc, itemType string) map[string]any {
	return map[string]any{
		"type":        "array",
		"description": desc,
		"items":       map[string]any{"type": itemType},
	}
}

func objSchema(props map[string]any, required ...string) mcp.ToolInputSchema {
	return mcp.ToolInputSchema{Type: "object", Properties: props, Required: required}
}

// batchProps is the shared shape of the batch tools: items plus options.
func batchProps(itemDesc string) map[string]any {
	return map[string]any{
		"items": map[string]any{
			"type":        "array",
			"description": itemDesc,
			"items":       map[string]any{"type": "object"},
		},
		"options": map[string]any{
			"type":        "object",
			"description": "Batch options: max_concurrency (default 5), use_cache (default true), stop_on_error (default false).",
		},
	}
}

func (s *Server) registerExtractionTools() {
	s.addTool(mcp.Tool{
		Name:        "extract",
		Description: "Extract structured knowledge from text. Mode fact pulls entity/attribute/value triples, mode entity pulls named entities and optionally relationships, mode all runs both.",
		InputSchema: objSchema(map[string]any{
			"text":              prop("string", "Source text to extract from"),
			"mode":              propEnum("Extractor selection", "fact", "entity", "all"),
			"source_url":        prop("string", "Provenance URL stamped onto extracted facts"),
			"source_metadata":   prop("object", "Free-form provenance metadata"),
			"entity_types":      propArray("Restrict entity extraction to these types", "string"),
			"extract_relations": propDefault("boolean", "Also extract entity relationships", true),
		}, "text"),
	}, s.handleExtract)

	s.addTool(mcp.Tool{
		Name:        "validate",
		Description: "Validate research sources. Mode citation checks citation completeness (author, date, title, url), mode source rates a source A-E by domain category, mode all runs both.",
		InputSchema: objSchema(map[string]any{
			"mode":           propEnum("Validator selection", "citation", "source", "all"),
			"citations":      propArray("Citations to check for completeness", "object"),
			"source_url":     prop("string", "URL to rate"),
			"source_type":    prop("string", "Source category when no URL is available"),
			"verify_urls":    propDefault("boolean", "Also check URL well-formedness", false),
			"check_accuracy": prop("boolean", "Accepted for compatibility"),
		}),
	}, s.handleValidate)

	s.addTool(mcp.Tool{
		Name:        "conflict-detect",
		Description: "Detect contradictions in a fact set. Facts are grouped by entity and attribute; disagreeing pairs are graded critical, moderate, or minor.",
		InputSchema: objSchema(map[string]any{
			"facts": propArray("Facts to cross-check", "object"),
			"tolerance": map[string]any{
				"type":        "object",
				"description": "Tolerance overrides: numerical (default 0.05), temporal (same_year or same_decade).",
			},
		}, "facts"),
	}, s.handleConflictDetect)

	// Legacy per-operator names stay routable; each forces its mode.
	s.addTool(mcp.Tool{
		Name:        "fact-extract",
		Description: "Extract entity/attribute/value facts from text. Equivalent to extract with mode fact.",
		InputSchema: objSchema(map[string]any{
			"text":       prop("string", "Source text to extract from"),
			"source_url": prop("string", "Provenance URL stamped onto extracted facts"),
		}, "text"),
	}, modeInjected("fact", s.handleExtract))

	s.addTool(mcp.Tool{
		Name:        "entity-extract",
		Description: "Extract named entities and relationships from text. Equivalent to extract with mode entity.",
		InputSchema: objSchema(map[string]any{
			"text":              prop("string", "Source text to extract from"),
			"entity_types":      propArray("Restrict extraction to these types", "string"),
			"extract_relations": propDefault("boolean", "Also extract entity relationships", true),
		}, "text"),
	}, modeInjected("entity", s.handleExtract))

	s.addTool(mcp.Tool{
		Name:        "citation-validate",
		Description: "Check citations for completeness. Equivalent to validate with mode citation.",
		InputSchema: objSchema(map[string]any{
			"citations":   propArray("Citations to check", "object"),
			"verify_urls": propDefault("boolean", "Also check URL well-formedness", false),
		}, "citations"),
	}, modeInjected("citation", s.handleValidate))

	s.addTool(mcp.Tool{
		Name:        "source-rate",
		Description: "Rate a source A-E by domain category. Equivalent to validate with mode source.",
		InputSchema: objSchema(map[string]any{
			"source_url":  prop("string", "URL to rate"),
			"source_type": prop("string", "Source category when no URL is available"),
		}),
	}, modeInjected("source", s.handleValidate))
}

func (s *Server) registerBatchTools() {
	extractProps := batchProps("Extraction inputs; each item carries text plus optional source_url, entity_types, extract_relations. A bare string item is treated as text.")
	extractProps["mode"] = propEnum("Extractor applied to every item", "fact", "entity", "all")
	s.addTool(mcp.Tool{
		Name:        "batch-extract",
		Description: "Run extraction over many inputs with a bounded worker pool. Results preserve input order; per-family caching is keyed by item input.",
		InputSchema: objSchema(extractProps, "items"),
	}, s.handleBatchExtract)

	validateProps := batchProps("Validation inputs; each item carries citations and/or source_url, source_type. A bare string item is treated as source_url.")
	validateProps["mode"] = propEnum("Validator applied to every item", "citation", "source", "all")
	s.addTool(mcp.Tool{
		Name:        "batch-validate",
		Description: "Run validation over many inputs with a bounded worker pool.",
		InputSchema: objSchema(validateProps, "items"),
	}, s.handleBatchValidate)

	s.addTool(mcp.Tool{
		Name:        "batch-conflict-detect",
		Description: "Run conflict detection over many fact sets with a bounded worker pool.",
		InputSchema: objSchema(batchProps("Detection inputs; each item carries facts and an optional tolerance."), "items"),
	}, s.handleBatchConflict)

	s.addTool(mcp.Tool{
		Name:        "batch-fact-extract",
		Description: "Batch fact extraction. Equivalent to batch-extract with mode fact.",
		InputSchema: objSchema(batchProps("Extraction inputs; each item carries text plus optional source_url."), "items"),
	}, modeInjected("fact", s.handleBatchExtract))

	s.addTool(mcp.Tool{
		Name:        "batch-entity-extract",
		Description: "Batch entity extraction. Equivalent to batch-extract with mode entity.",
		InputSchema: objSchema(batchProps("Extraction inputs; each item carries text plus optional entity_types."), "items"),
	}, modeInjected("entity", s.handleBatchExtract))

	s.addTool(mcp.Tool{
		Name:        "batch-citation-validate",
		Description: "Batch citation checking. Equivalent to batch-validate with mode citation.",
		InputSchema: objSchema(batchProps("Validation inputs; each item carries citations."), "items"),
	}, modeInjected("citation", s.handleBatchValidate))

	s.addTool(mcp.Tool{
		Name:        "batch-source-rate",
		Description: "Batch source rating. Equivalent to batch-validate with mode source.",
		InputSchema: objSchema(batchProps("Validation inputs; each item carries source_url or source_type."), "items"),
	}, modeInjected("source", s.handleBatchValidate))
}

func (s *Server) registerGraphTools() {
	s.addTool(mcp.Tool{
		Name:        "generate_paths",
		Description: "Generate k research paths from the active frontier of the session's exploration graph. An empty graph is bootstrapped with a root node first.",
		InputSchema: objSchema(map[string]any{
			"session_id": prop("string", "Target session"),
			"query":      prop("string", "Research question driving the new paths"),
			"k":          propDefault("integer", "Number of paths to generate", 3),
			"strategy":   propEnum("Generation strategy", "diverse", "focused", "exploratory"),
		}, "session_id", "query"),
	}, s.handleGeneratePaths)

	s.addTool(mcp.Tool{
		Name:        "refine_path",
		Description: "Spawn a refinement child of an existing path. The child clones the parent's content and starts pending.",
		InputSchema: objSchema(map[string]any{
			"path_id": prop("string", "Path to refine"),
			"query":   prop("string", "Refinement instruction"),
		}, "path_id", "query"),
	}, s.handleRefinePath)

	s.addTool(mcp.Tool{
		Name:        "score_and_prune",
		Description: "Score every completed unscored path against the quality rubric, prune paths below the threshold, and keep at most the top N survivors.",
		InputSchema: objSchema(map[string]any{
			"session_id": prop("string", "Target session"),
			"threshold":  propDefault("number", "Minimum quality score to survive", 6.0),
			"keep_top_n": propDefault("integer", "Survivor count cap", 2),
		}, "session_id"),
	}, s.handleScoreAndPrune)

	s.addTool(mcp.Tool{
		Name:        "aggregate_paths",
		Description: "Merge two or more paths into a synthesis node. Strategy synthesis concatenates sections; voting and consensus take the line-set union.",
		InputSchema: objSchema(map[string]any{
			"session_id": prop("string", "Target session"),
			"path_ids":   propArray("Paths to merge (at least two)", "string"),
			"strategy":   propEnum("Aggregation strategy", "synthesis", "voting", "consensus"),
		}, "session_id", "path_ids"),
	}, s.handleAggregatePaths)

	s.addTool(mcp.Tool{
		Name:        "update_path_status",
		Description: "Transition a path's lifecycle status, optionally delivering content and a summary. Terminal paths reject further transitions.",
		InputSchema: objSchema(map[string]any{
			"path_id": prop("string", "Path to update"),
			"status":  propEnum("New status", "active", "pending", "running", "completed", "pruned", "aggregated", "refined"),
			"content": prop("string", "Research findings delivered with the transition"),
			"summary": prop("string", "Compressed summary of the findings"),
		}, "path_id", "status"),
	}, s.handleUpdatePathStatus)

	s.addTool(mcp.Tool{
		Name:        "get_graph_state",
		Description: "Read the session's graph projection: per-path status and score, session counters, and current findings.",
		InputSchema: objSchema(map[string]any{
			"session_id": prop("string", "Target session"),
		}, "session_id"),
	}, s.handleGetGraphState)

	s.addTool(mcp.Tool{
		Name:        "get_next_action",
		Description: "Ask the decision engine what the coordinator should do next. Takes the session lock for the duration of the read and advances the iteration counter while budget remains.",
		InputSchema: objSchema(map[string]any{
			"session_id": prop("string", "Target session"),
		}, "session_id"),
	}, s.handleGetNextAction)
}

func (s *Server) registerSessionTools() {
	s.addTool(mcp.Tool{
		Name:        "create_research_session",
		Description: "Create a research session. Research type deep defaults to 10 iterations at 0.9 confidence, quick to 3 at 0.7.",
		InputSchema: objSchema(map[string]any{
			"topic":         prop("string", "Research topic"),
			"output_dir":    prop("string", "Directory for session artifacts"),
			"research_type": propEnum("Session defaults profile", "quick", "deep"),
		}, "topic", "output_dir"),
	}, s.handleCreateSession)

	s.addTool(mcp.Tool{
		Name:        "update_session_status",
		Description: "Transition the session lifecycle status. Terminal statuses stamp completed_at.",
		InputSchema: objSchema(map[string]any{
			"session_id": prop("string", "Target session"),
			"status":     propEnum("New status", "initializing", "planning", "executing", "synthesizing", "validating", "completed", "failed"),
		}, "session_id", "status"),
	}, s.handleUpdateSessionStatus)

	s.addTool(mcp.Tool{
		Name:        "get_session_info",
		Description: "Read the full session record.",
		InputSchema: objSchema(map[string]any{
			"session_id": prop("string", "Target session"),
		}, "session_id"),
	}, s.handleGetSessionInfo)

	s.addTool(mcp.Tool{
		Name:        "register_agent",
		Description: "Register a research agent deployment inside a session. Omitting agent_id assigns a UUID.",
		InputSchema: objSchema(map[string]any{
			"session_id":        prop("string", "Owning session"),
			"agent_id":          prop("string", "Caller-chosen agent identifier"),
			"agent_type":        prop("string", "Agent family, e.g. web_researcher"),
			"agent_role":        prop("string", "Role description"),
			"focus_description": prop("string", "What this agent is investigating"),
			"search_queries":    propArray("Search queries assigned to the agent", "string"),
		}, "session_id", "agent_type"),
	}, s.handleRegisterAgent)

	s.addTool(mcp.Tool{
		Name:        "update_agent_status",
		Description: "Transition an agent's lifecycle status, optionally recording the output file, an error message, and token usage.",
		InputSchema: objSchema(map[string]any{
			"agent_id":      prop("string", "Agent to update"),
			"status":        propEnum("New status", "deploying", "running", "completed", "failed", "timeout"),
			"output_file":   prop("string", "Artifact the agent produced"),
			"error_message": prop("string", "Failure detail"),
			"token_usage":   prop("integer", "Tokens consumed by the agent"),
		}, "agent_id", "status"),
	}, s.handleUpdateAgentStatus)

	s.addTool(mcp.Tool{
		Name:        "get_active_agents",
		Description: "List agents currently deploying or running in a session.",
		InputSchema: objSchema(map[string]any{
			"session_id": prop("string", "Target session"),
		}, "session_id"),
	}, s.handleGetActiveAgents)

	s.addTool(mcp.Tool{
		Name:        "update_current_phase",
		Description: "Record the coordinator's research phase (0-7) and log the transition.",
		InputSchema: objSchema(map[string]any{
			"session_id": prop("string", "Target session"),
			"phase":      prop("integer", "Phase number, 0 through 7"),
		}, "session_id", "phase"),
	}, s.handleUpdatePhase)

	s.addTool(mcp.Tool{
		Name:        "get_current_phase",
		Description: "Read the session's current research phase.",
		InputSchema: objSchema(map[string]any{
			"session_id": prop("string", "Target session"),
		}, "session_id"),
	}, s.handleGetPhase)

	s.addTool(mcp.Tool{
		Name:        "checkpoint_phase",
		Description: "Save a recoverable snapshot of session state at a phase boundary.",
		InputSchema: objSchema(map[string]any{
			"session_id":      prop("string", "Target session"),
			"phase":           prop("integer", "Phase the snapshot belongs to; defaults to the session's current phase"),
			"checkpoint_type": propDefault("string", "Snapshot classification", "phase"),
			"snapshot":        prop("object", "State snapshot to persist"),
		}, "session_id"),
	}, s.handleCheckpointPhase)

	s.addTool(mcp.Tool{
		Name:        "acquire_session_lock",
		Description: "Acquire the session's advisory mutation lock. Re-acquiring with the same locker refreshes the hold; locks staler than the staleness horizon are preempted.",
		InputSchema: objSchema(map[string]any{
			"session_id": prop("string", "Target session"),
			"locker_id":  prop("string", "Caller identity for the hold"),
		}, "session_id", "locker_id"),
	}, s.handleAcquireLock)

	s.addTool(mcp.Tool{
		Name:        "release_session_lock",
		Description: "Release the advisory lock if the caller holds it. Releasing an unheld lock is a no-op.",
		InputSchema: objSchema(map[string]any{
			"session_id": prop("string", "Target session"),
			"locker_id":  prop("string", "Caller identity that acquired the hold"),
		}, "session_id", "locker_id"),
	}, s.handleReleaseLock)

	s.addTool(mcp.Tool{
		Name:        "delete_research_session",
		Description: "Delete a session and every dependent row: paths, operations, agents, knowledge, activity, checkpoints, metrics, ingest queue.",
		InputSchema: objSchema(map[string]any{
			"session_id": prop("string", "Session to delete"),
		}, "session_id"),
	}, s.handleDeleteSession)

	s.addTool(mcp.Tool{
		Name:        "cleanup_orphans",
		Description: "Sweep rows whose owning session no longer exists. Returns removed-row counts per table.",
		InputSchema: objSchema(map[string]any{}),
	}, s.handleCleanupOrphans)

	s.addTool(mcp.Tool{
		Name:        "record_metric",
		Description: "Record a named measurement against the session's current phase.",
		InputSchema: objSchema(map[string]any{
			"session_id":   prop("string", "Target session"),
			"metric_name":  prop("string", "Measurement name"),
			"metric_value": prop("number", "Measurement value"),
		}, "session_id", "metric_name", "metric_value"),
	}, s.handleRecordMetric)

	s.addTool(mcp.Tool{
		Name:        "log_activity",
		Description: "Append one entry to the session's activity timeline.",
		InputSchema: objSchema(map[string]any{
			"session_id": prop("string", "Target session"),
			"event_type": propEnum("Entry classification", "phase_start", "phase_complete", "agent_deploy", "agent_complete", "info", "error"),
			"message":    prop("string", "Human-readable event description"),
			"phase":      prop("integer", "Phase the event belongs to; defaults to the session's current phase"),
			"agent_id":   prop("string", "Agent involved, when applicable"),
			"details":    prop("string", "Structured detail payload"),
		}, "session_id", "event_type", "message"),
	}, s.handleLogActivity)

	s.addTool(mcp.Tool{
		Name:        "render_progress",
		Description: "Render a markdown progress report for a session: status, path and agent counts, recent activity, metrics.",
		InputSchema: objSchema(map[string]any{
			"session_id": prop("string", "Target session"),
		}, "session_id"),
	}, s.handleRenderProgress)
}

func (s *Server) registerDataTools() {
	s.addTool(mcp.Tool{
		Name:        "auto_process_data",
		Description: "Sweep a directory of markdown files through extraction, conflict detection, and artifact generation. Persists results under the session and stages the raw files as ingested.",
		InputSchema: objSchema(map[string]any{
			"session_id": prop("string", "Owning session"),
			"input_dir":  prop("string", "Directory of .md files to process"),
			"output_dir": prop("string", "Directory for generated artifacts"),
			"operations": propArray("Subset of fact_extraction, entity_extraction, citation_validation, conflict_detection; empty runs all", "string"),
			"options": map[string]any{
				"type":        "object",
				"description": "Pipeline options: continue_on_error (default true).",
			},
		}, "session_id", "input_dir", "output_dir"),
	}, s.handleAutoProcess)

	s.addTool(mcp.Tool{
		Name:        "ingest_content",
		Description: "Stage one raw payload into the session's ingest queue. Declared or sniffed HTML is reduced to text before storage.",
		InputSchema: objSchema(map[string]any{
			"session_id":   prop("string", "Owning session"),
			"content":      prop("string", "Raw payload to stage"),
			"source":       prop("string", "Provenance label, e.g. a URL or filename"),
			"content_type": prop("string", "Declared payload type; sniffed when omitted"),
		}, "session_id", "content"),
	}, s.handleIngestContent)

	s.addTool(mcp.Tool{
		Name:        "batch_ingest",
		Description: "Stage many raw payloads. Items that fail to stage are reported individually; the rest are queued.",
		InputSchema: objSchema(map[string]any{
			"session_id": prop("string", "Owning session"),
			"items": map[string]any{
				"type":        "array",
				"description": "Payloads to stage; each item carries content plus optional source and content_type.",
				"items":       map[string]any{"type": "object"},
			},
		}, "session_id", "items"),
	}, s.handleBatchIngest)

	s.addTool(mcp.Tool{
		Name:        "process_raw",
		Description: "Claim pending ingest queue entries for a session and run extraction over them, persisting facts, entities, and relationships.",
		InputSchema: objSchema(map[string]any{
			"session_id": prop("string", "Owning session"),
			"limit":      propDefault("integer", "Maximum queue entries to claim", 20),
		}, "session_id"),
	}, s.handleProcessRaw)

	s.addTool(mcp.Tool{
		Name:        "cache-stats",
		Description: "Read size, hit, miss, and hit-rate counters for every operator family cache.",
		InputSchema: objSchema(map[string]any{}),
	}, s.handleCacheStats)

	s.addTool(mcp.Tool{
		Name:        "cache-clear",
		Description: "Clear one operator family cache, or all of them when no family is named.",
		InputSchema: objSchema(map[string]any{
			"family": propEnum("Family to clear", "fact", "entity", "citation", "source_rating", "conflict"),
		}),
	}, s.handleCacheClear)
}
