package metadata

// schemaStatements creates the metadata store's relational tables if they do
// not already exist. Runledger does not ship a migration tool (out of
// scope, §1); metadata.New applies these statements on every start, and
// being IF NOT EXISTS they are no-ops once the schema is in place.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS projects (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		deleted_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS runs (
		id UUID PRIMARY KEY,
		project_id UUID NOT NULL REFERENCES projects(id),
		name TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		exit_code INT,
		error TEXT,
		parent_run_id UUID,
		tags JSONB NOT NULL DEFAULT '{}',
		system_info JSONB NOT NULL DEFAULT '{}',
		resume_token_hash TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		started_at TIMESTAMPTZ,
		finished_at TIMESTAMPTZ,
		heartbeat_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS runs_project_id_idx ON runs(project_id)`,
	`CREATE INDEX IF NOT EXISTS runs_status_idx ON runs(status)`,
	`CREATE INDEX IF NOT EXISTS runs_created_at_idx ON runs(created_at)`,
	`CREATE TABLE IF NOT EXISTS parameters (
		run_id UUID NOT NULL REFERENCES runs(id),
		name TEXT NOT NULL,
		value TEXT NOT NULL,
		type TEXT NOT NULL,
		PRIMARY KEY (run_id, name)
	)`,
	`CREATE TABLE IF NOT EXISTS ingest_batches (
		run_id UUID NOT NULL,
		batch_id TEXT NOT NULL,
		payload_hash BYTEA NOT NULL,
		sequence BIGINT,
		metric_count INT NOT NULL DEFAULT 0,
		param_count INT NOT NULL DEFAULT 0,
		tag_count INT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (run_id, batch_id)
	)`,
	`CREATE INDEX IF NOT EXISTS ingest_batches_created_at_idx ON ingest_batches(created_at)`,
}
