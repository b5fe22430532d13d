package storage

type migration struct {
	version int
	sql     string
}

// migrations must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS tasks (
	id           TEXT PRIMARY KEY,
	title        TEXT NOT NULL,
	description  TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL DEFAULT 'todo',
	priority     TEXT NOT NULL DEFAULT '',
	organization TEXT NOT NULL DEFAULT '',
	sort_order   INTEGER NOT NULL DEFAULT 0,
	due_date     DATETIME,
	assigned_to  TEXT NOT NULL DEFAULT '',
	labels       TEXT NOT NULL DEFAULT '[]',
	created_at   DATETIME NOT NULL,
	updated_at   DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tasks_organization ON tasks(organization, sort_order);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
ALTER TABLE tasks ADD COLUMN client_ref TEXT NOT NULL DEFAULT '';

CREATE INDEX IF NOT EXISTS idx_tasks_client_ref ON tasks(client_ref);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
	{
		version: 3,
		sql: `
ALTER TABLE tasks ADD COLUMN owner TEXT NOT NULL DEFAULT '';

CREATE TABLE IF NOT EXISTS org_members (
	organization TEXT NOT NULL,
	user_id      TEXT NOT NULL,
	role         TEXT NOT NULL DEFAULT 'member',
	created_at   DATETIME NOT NULL,
	PRIMARY KEY (organization, user_id)
);

CREATE INDEX IF NOT EXISTS idx_org_members_user ON org_members(user_id);

INSERT INTO schema_version (version) VALUES (3);
`,
	},
}
