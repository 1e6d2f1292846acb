// Package sqlite implements the Strata storage engine on SQLite: schema
// compilation, ownership-aware query planning, object-graph mapping, and
// transactional upsert with optional bitemporal versioning.
// See docs/ARCHITECTURE.md § SQLite Engine.
package sqlite

// Audit table DDL. Entity tables are compiled from registered types; the
// audit log has a fixed shape and is created on Attach.
const (
	createVersionLog = `CREATE TABLE IF NOT EXISTS strata_version_log (
    version INTEGER PRIMARY KEY AUTOINCREMENT,
    who TEXT NOT NULL DEFAULT '',
    origin TEXT NOT NULL DEFAULT '',
    why TEXT NOT NULL DEFAULT '',
    tag TEXT NOT NULL DEFAULT '',
    at TEXT NOT NULL,
    revert INTEGER NOT NULL DEFAULT 0
);`

	createChangeLog = `CREATE TABLE IF NOT EXISTS strata_change_log (
    version INTEGER NOT NULL,
    op TEXT NOT NULL,
    entity TEXT NOT NULL,
    identity TEXT NOT NULL
);`

	createChangeLogIndex = `CREATE INDEX IF NOT EXISTS ix_strata_change_log_version
    ON strata_change_log(version);`
)

// auditDDL lists the statements Attach executes, in order.
var auditDDL = []string{createVersionLog, createChangeLog, createChangeLogIndex}
