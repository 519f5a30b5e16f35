// Package sqlite implements the SQLite primary store for Daybook.
package sqlite

// Schema DDL. Statements are idempotent so Attach can run them on every open.
const (
	createRecords = `CREATE TABLE IF NOT EXISTS records (
    collection TEXT NOT NULL,
    record_id TEXT NOT NULL,
    title TEXT NOT NULL,
    category TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT '',
    group_id TEXT NOT NULL DEFAULT '',
    at TEXT NOT NULL,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    data TEXT NOT NULL DEFAULT '{}',
    PRIMARY KEY (collection, record_id)
);`

	createRecordsAtIndex = `CREATE INDEX IF NOT EXISTS records_by_at ON records (collection, at);`
)

// Connection pragmas applied after open.
const (
	pragmaJournalWAL  = `PRAGMA journal_mode = WAL;`
	pragmaSynchronous = `PRAGMA synchronous = NORMAL;`
	pragmaBusyTimeout = `PRAGMA busy_timeout = 5000;`
)

// schemaDDL lists all CREATE statements in dependency order.
var schemaDDL = []string{
	createRecords,
	createRecordsAtIndex,
}

// pragmas lists the connection pragmas in the order they are applied.
var pragmas = []string{
	pragmaJournalWAL,
	pragmaSynchronous,
	pragmaBusyTimeout,
}

// recordColumns is the column list shared by every SELECT and INSERT.
const recordColumns = "record_id, title, category, status, group_id, at, created_at, updated_at, data"
