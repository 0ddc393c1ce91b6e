package store

const schema = `
CREATE TABLE IF NOT EXISTS wa_sessions (
	session_id          TEXT PRIMARY KEY,
	status              TEXT NOT NULL DEFAULT 'DISCONNECTED',
	phone_number        TEXT,
	credential_snapshot BLOB,
	created_at          INTEGER NOT NULL,
	updated_at          INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS wa_messages (
	session_id TEXT NOT NULL,
	message_id TEXT NOT NULL,
	chat_id    TEXT NOT NULL,
	from_me    INTEGER NOT NULL DEFAULT 0,
	content    TEXT,
	media_url  TEXT,
	type       TEXT NOT NULL DEFAULT 'text',
	status     TEXT NOT NULL DEFAULT 'sent',
	timestamp  INTEGER NOT NULL,
	PRIMARY KEY (session_id, message_id)
);
CREATE INDEX IF NOT EXISTS idx_wa_messages_chat ON wa_messages(chat_id, timestamp DESC);

CREATE TABLE IF NOT EXISTS wa_queued_messages (
	id              TEXT PRIMARY KEY,
	session_id      TEXT NOT NULL,
	chat_id         TEXT NOT NULL,
	content         TEXT,
	media_url       TEXT,
	media_type      TEXT,
	attempts        INTEGER NOT NULL DEFAULT 0,
	max_attempts    INTEGER NOT NULL DEFAULT 5,
	status          TEXT NOT NULL DEFAULT 'queued',
	next_attempt_at INTEGER NOT NULL,
	last_error      TEXT,
	created_at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_wa_queue_due ON wa_queued_messages(status, next_attempt_at);

CREATE TABLE IF NOT EXISTS wa_scheduled_messages (
	id         TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	chat_id    TEXT NOT NULL,
	message    TEXT NOT NULL,
	schedule   INTEGER NOT NULL,
	sent       INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_wa_scheduled_due ON wa_scheduled_messages(sent, schedule);

CREATE TABLE IF NOT EXISTS wa_templates (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL UNIQUE,
	content    TEXT NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS wa_api_config (
	id                 INTEGER PRIMARY KEY CHECK (id = 1),
	api_key            TEXT NOT NULL,
	webhook_url        TEXT,
	webhook_events     TEXT,
	rate_limit         INTEGER NOT NULL DEFAULT 1000,
	auto_reply_enabled INTEGER NOT NULL DEFAULT 0,
	auto_reply_rules   TEXT,
	updated_at         INTEGER NOT NULL
);
`
