package store

// Schema DDL. All statements are idempotent (CREATE ... IF NOT EXISTS) so the
// full set can be replayed on any database at or below the target version.
// There are deliberately no foreign-key constraints between session-scoped
// tables: deletion is managed at the application layer as an ordered cascade
// inside one transaction.

// schemaVersion is the monotonic schema generation stored in user_version.
const schemaVersion = 1

const sessionsTable = `
CREATE TABLE IF NOT EXISTS research_sessions (
	session_id TEXT PRIMARY KEY,
	research_topic TEXT NOT NULL,
	research_type TEXT NOT NULL DEFAULT 'deep',
	output_directory TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'initializing'
		CHECK (status IN ('initializing','planning','executing','synthesizing','validating','completed','failed')),
	current_phase INTEGER NOT NULL DEFAULT 0,
	iteration_count INTEGER NOT NULL DEFAULT 0 CHECK (iteration_count >= 0),
	confidence REAL NOT NULL DEFAULT 0.0 CHECK (confidence >= 0.0 AND confidence <= 1.0),
	is_aggregated INTEGER NOT NULL DEFAULT 0,
	budget_exhausted INTEGER NOT NULL DEFAULT 0,
	max_iterations INTEGER NOT NULL DEFAULT 10,
	confidence_threshold REAL NOT NULL DEFAULT 0.9,
	locked_at TEXT,
	locked_by TEXT,
	created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
	completed_at TEXT,
	metadata TEXT
);
CREATE INDEX IF NOT EXISTS idx_sessions_status ON research_sessions(status);
`

const agentsTable = `
CREATE TABLE IF NOT EXISTS research_agents (
	agent_id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	agent_type TEXT NOT NULL,
	agent_role TEXT,
	focus_description TEXT,
	search_queries TEXT,
	status TEXT NOT NULL DEFAULT 'deploying'
		CHECK (status IN ('deploying','running','completed','failed','timeout')),
	output_file TEXT,
	token_usage INTEGER NOT NULL DEFAULT 0,
	error_message TEXT,
	created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
	completed_at TEXT
);
CREATE INDEX IF NOT EXISTS idx_agents_session ON research_agents(session_id);
CREATE INDEX IF NOT EXISTS idx_agents_status ON research_agents(status);
`

const pathsTable = `
CREATE TABLE IF NOT EXISTS got_paths (
	path_id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	parent_id TEXT,
	node_type TEXT NOT NULL DEFAULT 'generated'
		CHECK (node_type IN ('root','generated','aggregated','refined')),
	focus TEXT,
	query TEXT,
	content TEXT NOT NULL DEFAULT '',
	summary TEXT NOT NULL DEFAULT '',
	quality_score REAL NOT NULL DEFAULT 0.0 CHECK (quality_score >= 0.0 AND quality_score <= 10.0),
	compression_ratio REAL NOT NULL DEFAULT 1.0,
	status TEXT NOT NULL DEFAULT 'pending'
		CHECK (status IN ('active','pending','running','completed','pruned','aggregated','refined')),
	depth INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_paths_session ON got_paths(session_id);
CREATE INDEX IF NOT EXISTS idx_paths_parent ON got_paths(parent_id);
CREATE INDEX IF NOT EXISTS idx_paths_status ON got_paths(status);
`

const operationsTable = `
CREATE TABLE IF NOT EXISTS got_operations (
	operation_id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	operation_type TEXT NOT NULL
		CHECK (operation_type IN ('Generate','Aggregate','Refine','Score','Prune')),
	input_nodes TEXT NOT NULL DEFAULT '[]',
	output_nodes TEXT NOT NULL DEFAULT '[]',
	parameters TEXT,
	created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_operations_session ON got_operations(session_id);
CREATE INDEX IF NOT EXISTS idx_operations_type ON got_operations(operation_type);
`

const factsTable = `
CREATE TABLE IF NOT EXISTS research_facts (
	fact_id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	entity TEXT NOT NULL,
	attribute TEXT NOT NULL,
	value TEXT NOT NULL,
	value_type TEXT NOT NULL DEFAULT 'text'
		CHECK (value_type IN ('number','currency','percentage','date','text')),
	value_numeric REAL,
	unit TEXT,
	source_url TEXT,
	source_quality TEXT,
	confidence REAL NOT NULL DEFAULT 0.0,
	created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_facts_session ON research_facts(session_id);
CREATE INDEX IF NOT EXISTS idx_facts_entity ON research_facts(entity, attribute);
`

const entitiesTable = `
CREATE TABLE IF NOT EXISTS research_entities (
	entity_id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	name TEXT NOT NULL,
	entity_type TEXT NOT NULL,
	evidence TEXT,
	confidence REAL NOT NULL DEFAULT 0.0,
	created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(session_id, name, entity_type)
);
CREATE INDEX IF NOT EXISTS idx_entities_session ON research_entities(session_id);
`

const relationshipsTable = `
CREATE TABLE IF NOT EXISTS research_relationships (
	relationship_id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	source_entity TEXT NOT NULL,
	target_entity TEXT NOT NULL,
	relationship_type TEXT NOT NULL,
	evidence TEXT,
	confidence REAL NOT NULL DEFAULT 0.0,
	created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_relationships_session ON research_relationships(session_id);
`

const citationsTable = `
CREATE TABLE IF NOT EXISTS research_citations (
	citation_id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	claim TEXT,
	author TEXT,
	title TEXT,
	source TEXT,
	url TEXT,
	publication_date TEXT,
	quality_rating TEXT CHECK (quality_rating IS NULL OR quality_rating IN ('A','B','C','D','E')),
	is_valid INTEGER NOT NULL DEFAULT 0,
	validation_notes TEXT,
	created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_citations_session ON research_citations(session_id);
`

const conflictsTable = `
CREATE TABLE IF NOT EXISTS fact_conflicts (
	conflict_id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	fact_id_1 TEXT NOT NULL,
	fact_id_2 TEXT NOT NULL,
	entity TEXT NOT NULL,
	attribute TEXT NOT NULL,
	conflict_type TEXT NOT NULL
		CHECK (conflict_type IN ('numerical','temporal','scope','methodological')),
	severity TEXT NOT NULL CHECK (severity IN ('minor','moderate','critical')),
	difference_percent REAL,
	description TEXT,
	resolved INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_conflicts_session ON fact_conflicts(session_id);
CREATE INDEX IF NOT EXISTS idx_conflicts_resolved ON fact_conflicts(resolved);
`

const activityTable = `
CREATE TABLE IF NOT EXISTS activity_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	phase INTEGER NOT NULL DEFAULT 0,
	event_type TEXT NOT NULL
		CHECK (event_type IN ('phase_start','phase_complete','agent_deploy','agent_complete','info','error')),
	message TEXT NOT NULL,
	agent_id TEXT,
	details TEXT,
	created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_activity_session ON activity_log(session_id);
`

const checkpointsTable = `
CREATE TABLE IF NOT EXISTS checkpoints (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	phase_number INTEGER NOT NULL DEFAULT 0,
	checkpoint_type TEXT NOT NULL DEFAULT 'phase',
	state_snapshot TEXT NOT NULL DEFAULT '{}',
	created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_checkpoints_session ON checkpoints(session_id);
`

const ingestedTable = `
CREATE TABLE IF NOT EXISTS ingested_data (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	source TEXT,
	content_type TEXT NOT NULL DEFAULT 'text/plain',
	content TEXT NOT NULL,
	original_length INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'pending'
		CHECK (status IN ('pending','processing','completed','failed')),
	error_message TEXT,
	created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
	processed_at TEXT
);
CREATE INDEX IF NOT EXISTS idx_ingested_session ON ingested_data(session_id);
CREATE INDEX IF NOT EXISTS idx_ingested_status ON ingested_data(status);
`

const metricsTable = `
CREATE TABLE IF NOT EXISTS research_metrics (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	metric_name TEXT NOT NULL,
	metric_value REAL NOT NULL DEFAULT 0.0,
	phase INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_metrics_session ON research_metrics(session_id);
CREATE INDEX IF NOT EXISTS idx_metrics_name ON research_metrics(metric_name);
`

// allTables lists every DDL block in creation order.
var allTables = []string{
	sessionsTable,
	agentsTable,
	pathsTable,
	operationsTable,
	factsTable,
	entitiesTable,
	relationshipsTable,
	citationsTable,
	conflictsTable,
	activityTable,
	checkpointsTable,
	ingestedTable,
	metricsTable,
}

// dependentTables lists every session-scoped table in cascade deletion order.
// The session row itself is deleted last, outside this list.
var dependentTables = []string{
	"fact_conflicts",
	"research_facts",
	"research_entities",
	"research_relationships",
	"got_operations",
	"got_paths",
	"research_agents",
	"activity_log",
	"ingested_data",
	"checkpoints",
	"research_metrics",
	"research_citations",
}
