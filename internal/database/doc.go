// Package database provides SQLite-based storage for enrichment runs.
//
// LeadDB stores:
//   - one row per run with its summary and outcome
//   - one row per lead, keyed by document number, holding the latest
//     enrichment of that notice
//
// SQLite is used through modernc.org/sqlite so the binary stays CGO-free.
// The database is a single file in the data directory and runs in WAL mode.
package database
