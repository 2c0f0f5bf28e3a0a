package store

const schema = `
CREATE TABLE IF NOT EXISTS repositories (
	external_id INTEGER PRIMARY KEY,
	name        TEXT NOT NULL,
	updated_at  TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS tasks (
	id          TEXT PRIMARY KEY,
	display_id  TEXT NOT NULL UNIQUE,
	title       TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL DEFAULT 'Backlog',
	updated_at  TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS task_repositories (
	task_id                TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
	repository_external_id INTEGER NOT NULL,
	PRIMARY KEY (task_id, repository_external_id)
);

CREATE INDEX IF NOT EXISTS idx_task_repositories_repo ON task_repositories (repository_external_id);
`
