package sqlite

// schema mirrors migrations/*.sql in SQLite's dialect. Timestamps
// are fixed-width UTC text so that string order is time order.
const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	email         TEXT NOT NULL UNIQUE,
	name          TEXT NOT NULL DEFAULT '',
	password_hash TEXT NOT NULL,
	created_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sources (
	id              TEXT PRIMARY KEY,
	user_id         TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	name            TEXT NOT NULL,
	inbound_token   TEXT NOT NULL UNIQUE,
	inbound_address TEXT NOT NULL,
	email_count     INTEGER NOT NULL DEFAULT 0,
	created_at      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	id                  TEXT PRIMARY KEY,
	user_id             TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	source_id           TEXT REFERENCES sources(id) ON DELETE SET NULL,
	sender              TEXT NOT NULL,
	sender_domain       TEXT NOT NULL,
	subject             TEXT NOT NULL,
	snippet             TEXT NOT NULL DEFAULT '',
	zone                TEXT NOT NULL,
	confidence          REAL NOT NULL,
	reason              TEXT NOT NULL,
	personality_message TEXT NOT NULL DEFAULT '',
	summary             TEXT,
	recommended_action  TEXT,
	action_type         TEXT,
	draft_reply         TEXT,
	llm_fallback        INTEGER NOT NULL DEFAULT 1,
	corrected           INTEGER NOT NULL DEFAULT 0,
	corrected_at        TEXT,
	status              TEXT NOT NULL DEFAULT 'active',
	snoozed_until       TEXT,
	received_at         TEXT NOT NULL,
	classified_at       TEXT NOT NULL,
	completed_at        TEXT,
	needs_reply         INTEGER NOT NULL DEFAULT 0,
	replied_at          TEXT,
	provider_message_id TEXT,
	grant_id            TEXT
);

CREATE INDEX IF NOT EXISTS idx_messages_user_zone ON messages (user_id, zone, received_at);

CREATE TABLE IF NOT EXISTS corrections (
	id           TEXT PRIMARY KEY,
	user_id      TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	message_id   TEXT,
	old_zone     TEXT NOT NULL,
	new_zone     TEXT NOT NULL,
	sender       TEXT NOT NULL,
	corrected_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS rule_overrides (
	sender_key TEXT PRIMARY KEY,
	zone       TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS message_state_vectors (
	id                 TEXT PRIMARY KEY,
	nylas_message_id   TEXT NOT NULL UNIQUE,
	grant_id           TEXT NOT NULL,
	intent_label       TEXT NOT NULL,
	risk_score         REAL NOT NULL DEFAULT 0,
	context_blob       TEXT NOT NULL DEFAULT '{}',
	summary            TEXT NOT NULL DEFAULT '',
	current_owner_role TEXT,
	deadline_at        TEXT NOT NULL,
	lifecycle_state    TEXT NOT NULL DEFAULT 'NEW',
	is_overdue         INTEGER NOT NULL DEFAULT 0,
	created_at         TEXT NOT NULL,
	updated_at         TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_vectors_deck ON message_state_vectors (current_owner_role, risk_score, deadline_at);

CREATE TABLE IF NOT EXISTS message_events (
	id          TEXT PRIMARY KEY,
	vector_id   TEXT NOT NULL REFERENCES message_state_vectors(id) ON DELETE CASCADE,
	event_type  TEXT NOT NULL,
	description TEXT NOT NULL,
	created_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_vector ON message_events (vector_id, created_at);
`

// messageUpgrades add columns introduced after the first release to database
// files created before them. Each runs only when its column is missing.
var messageUpgrades = []struct{ column, ddl string }{
	{"completed_at", `ALTER TABLE messages ADD COLUMN completed_at TEXT`},
	{"needs_reply", `ALTER TABLE messages ADD COLUMN needs_reply INTEGER NOT NULL DEFAULT 0`},
	{"replied_at", `ALTER TABLE messages ADD COLUMN replied_at TEXT`},
	{"provider_message_id", `ALTER TABLE messages ADD COLUMN provider_message_id TEXT`},
	{"grant_id", `ALTER TABLE messages ADD COLUMN grant_id TEXT`},
}

// postUpgrade runs after messageUpgrades, once every column exists.
const postUpgrade = `
CREATE UNIQUE INDEX IF NOT EXISTS idx_messages_user_provider
	ON messages (user_id, provider_message_id)
	WHERE provider_message_id IS NOT NULL;
`
