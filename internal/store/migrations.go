package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS settings (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS codes (
	id         TEXT PRIMARY KEY,
	message_id TEXT NOT NULL DEFAULT '',
	code       TEXT NOT NULL,
	provider   TEXT NOT NULL DEFAULT '',
	found_at   DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_codes_found_at ON codes(found_at);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE TABLE IF NOT EXISTS checks (
	id          TEXT PRIMARY KEY,
	status      TEXT NOT NULL CHECK(status IN ('noEmails', 'codeFound', 'noCodeFound', 'error')),
	detail      TEXT NOT NULL DEFAULT '',
	started_at  DATETIME NOT NULL,
	finished_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_checks_started_at ON checks(started_at);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
