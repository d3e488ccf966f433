package core

const schema = `
CREATE TABLE IF NOT EXISTS entities (
	id             TEXT PRIMARY KEY,
	type           TEXT NOT NULL,
	hash           TEXT NOT NULL,
	previous_hash  TEXT,
	version        INTEGER NOT NULL,
	created_at     INTEGER NOT NULL,
	updated_at     INTEGER NOT NULL,
	group_id       TEXT,
	superseded_by  TEXT,
	derived_from   TEXT,
	deleted        INTEGER NOT NULL DEFAULT 0,
	data           TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_entities_type ON entities (type);
CREATE INDEX IF NOT EXISTS idx_entities_group ON entities (group_id);
CREATE INDEX IF NOT EXISTS idx_entities_updated_at ON entities (updated_at);

CREATE TABLE IF NOT EXISTS user_relations (
	id              TEXT PRIMARY KEY,
	kind            TEXT NOT NULL,
	source_id       TEXT NOT NULL,
	source_type     TEXT NOT NULL,
	target_id       TEXT NOT NULL,
	target_type     TEXT NOT NULL,
	created_day     INTEGER NOT NULL,
	last_access_day INTEGER NOT NULL,
	time_horizon    INTEGER NOT NULL,
	strength        REAL NOT NULL DEFAULT 1.0,
	evidence        TEXT,
	metadata        TEXT,
	alive           INTEGER NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS idx_user_relations_source ON user_relations (source_id);
CREATE INDEX IF NOT EXISTS idx_user_relations_target ON user_relations (target_id);
CREATE INDEX IF NOT EXISTS idx_user_relations_alive ON user_relations (alive);
`
