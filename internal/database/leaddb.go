package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/leadscan/internal/model"
)

// FileName is the database file created in the data directory.
const FileName = "leadscan.db"

// Run statuses.
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
	RunCancelled = "cancelled"
)

// LeadDB provides SQLite-based storage for runs and enriched leads.
type LeadDB struct {
	db     *sql.DB
	dbPath string
}

// Options configures LeadDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a LeadDB in dbDir.
func Open(dbDir string, opts Options) (*LeadDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (run leadscan once to create it)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else if err := os.MkdirAll(dbDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Leads arrive from several workers at once; one connection serializes
	// the writes.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	ldb := &LeadDB{db: db, dbPath: dbPath}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := ldb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return ldb, nil
}

// Path returns the database file path.
func (ldb *LeadDB) Path() string {
	return ldb.dbPath
}

// Close closes the database connection.
func (ldb *LeadDB) Close() error {
	return ldb.db.Close()
}

func (ldb *LeadDB) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		range_from TEXT,
		range_to TEXT,
		strategy TEXT,
		status TEXT NOT NULL,
		error TEXT,
		summary_json TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

	-- One row per notice; the latest enrichment wins.
	CREATE TABLE IF NOT EXISTS leads (
		document_number TEXT PRIMARY KEY,
		run_id INTEGER NOT NULL,
		recorded_date TEXT,
		sale_date TEXT,
		street TEXT,
		city TEXT,
		state TEXT,
		zip TEXT,
		owner_name TEXT,
		lead_state TEXT NOT NULL,
		has_contact INTEGER NOT NULL DEFAULT 0,
		needs_review INTEGER NOT NULL DEFAULT 0,
		lead_json TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_leads_run ON leads(run_id);
	CREATE INDEX IF NOT EXISTS idx_leads_sale ON leads(sale_date);
	CREATE INDEX IF NOT EXISTS idx_leads_updated ON leads(updated_at);
	`
	_, err := ldb.db.ExecContext(context.Background(), schema)
	return err
}

// StartRun records the start of a run and returns its ID.
func (ldb *LeadDB) StartRun(ctx context.Context, startedAt, from, to time.Time) (int64, error) {
	result, err := ldb.db.ExecContext(ctx, `
	INSERT INTO runs (started_at, range_from, range_to, status)
	VALUES (?, ?, ?, ?)
	`,
		formatTime(startedAt),
		formatDate(from),
		formatDate(to),
		RunRunning,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to start run: %w", err)
	}
	return result.LastInsertId()
}

// FinishRun stores the run summary and final status. runErr decides the
// status: nil is completed, a context cancellation is cancelled, anything
// else is failed.
func (ldb *LeadDB) FinishRun(ctx context.Context, runID int64, summary *model.RunSummary, runErr error) error {
	return finishRun(ctx, ldb.db, runID, summary, runErr)
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func finishRun(ctx context.Context, db execer, runID int64, summary *model.RunSummary, runErr error) error {
	status := RunCompleted
	var errText sql.NullString
	if runErr != nil {
		status = RunFailed
		if errors.Is(runErr, context.Canceled) {
			status = RunCancelled
		}
		errText = sql.NullString{String: runErr.Error(), Valid: true}
	}

	var summaryJSON sql.NullString
	finished := time.Now()
	strategy := ""
	if summary != nil {
		b, err := json.Marshal(summary)
		if err != nil {
			return fmt.Errorf("failed to serialize summary: %w", err)
		}
		summaryJSON = sql.NullString{String: string(b), Valid: true}
		if !summary.FinishedAt.IsZero() {
			finished = summary.FinishedAt
		}
		strategy = summary.Strategy
	}

	result, err := db.ExecContext(ctx, `
	UPDATE runs SET finished_at = ?, strategy = ?, status = ?, error = ?, summary_json = ?
	WHERE id = ?
	`,
		formatTime(finished),
		strategy,
		status,
		errText,
		summaryJSON,
		runID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run %d does not exist", runID)
	}
	return nil
}

// SaveLead upserts a lead by document number. It is safe to call from
// several goroutines.
func (ldb *LeadDB) SaveLead(ctx context.Context, runID int64, lead *model.EnrichedLead) error {
	return upsertLead(ctx, ldb.db, runID, lead)
}

func upsertLead(ctx context.Context, db execer, runID int64, lead *model.EnrichedLead) error {
	leadJSON, err := json.Marshal(lead)
	if err != nil {
		return fmt.Errorf("failed to serialize lead: %w", err)
	}

	var ownerName sql.NullString
	if lead.Owner != nil {
		ownerName = sql.NullString{String: lead.Owner.OwnerName, Valid: true}
	}
	hasContact, needsReview := 0, 0
	if lead.Contact != nil {
		hasContact = 1
		if lead.Contact.NeedsReview {
			needsReview = 1
		}
	}

	_, err = db.ExecContext(ctx, `
	INSERT INTO leads (document_number, run_id, recorded_date, sale_date, street, city, state, zip,
		owner_name, lead_state, has_contact, needs_review, lead_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(document_number) DO UPDATE SET
		run_id = excluded.run_id,
		recorded_date = excluded.recorded_date,
		sale_date = excluded.sale_date,
		street = excluded.street,
		city = excluded.city,
		state = excluded.state,
		zip = excluded.zip,
		owner_name = excluded.owner_name,
		lead_state = excluded.lead_state,
		has_contact = excluded.has_contact,
		needs_review = excluded.needs_review,
		lead_json = excluded.lead_json,
		updated_at = CURRENT_TIMESTAMP
	`,
		lead.Record.DocumentNumber,
		runID,
		lead.Record.RecordedDate,
		lead.Record.SaleDate,
		lead.Address.Street,
		lead.Address.City,
		lead.Address.State,
		lead.Address.Zip,
		ownerName,
		lead.State.String(),
		hasContact,
		needsReview,
		string(leadJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to save lead %s: %w", lead.Record.DocumentNumber, err)
	}
	return nil
}

// SaveRunResult stores a whole run at once: the run row and every lead,
// in one transaction. It returns the run ID.
func (ldb *LeadDB) SaveRunResult(ctx context.Context, summary *model.RunSummary, leads []*model.EnrichedLead, runErr error) (int64, error) {
	startedAt := time.Now()
	if summary != nil && !summary.StartedAt.IsZero() {
		startedAt = summary.StartedAt
	}

	tx, err := ldb.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	result, err := tx.ExecContext(ctx, `INSERT INTO runs (started_at, status) VALUES (?, ?)`,
		formatTime(startedAt), RunRunning)
	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}
	runID, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}

	for _, lead := range leads {
		if lead == nil {
			continue
		}
		if err := upsertLead(ctx, tx, runID, lead); err != nil {
			return 0, err
		}
	}
	if err := finishRun(ctx, tx, runID, summary, runErr); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit run: %w", err)
	}
	return runID, nil
}

// RunMetadata describes a stored run.
type RunMetadata struct {
	ID         int64
	StartedAt  time.Time
	FinishedAt time.Time
	From       string
	To         string
	Strategy   string
	Status     string
	Error      string

	// Summary is nil for runs that never finished.
	Summary *model.RunSummary
}

const runColumns = `id, started_at, finished_at, range_from, range_to, strategy, status, error, summary_json`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (RunMetadata, error) {
	var (
		meta                              RunMetadata
		started                           string
		finished, from, to, strategy, msg sql.NullString
		summaryJSON                       sql.NullString
	)
	if err := row.Scan(&meta.ID, &started, &finished, &from, &to, &strategy, &meta.Status, &msg, &summaryJSON); err != nil {
		return meta, err
	}
	meta.StartedAt = parseTimestamp(started)
	meta.FinishedAt = parseTimestamp(finished.String)
	meta.From = from.String
	meta.To = to.String
	meta.Strategy = strategy.String
	meta.Error = msg.String
	if summaryJSON.Valid && summaryJSON.String != "" {
		var s model.RunSummary
		if err := json.Unmarshal([]byte(summaryJSON.String), &s); err == nil {
			meta.Summary = &s
		}
	}
	return meta, nil
}

// ListRuns returns the most recent runs first. limit <= 0 returns all.
func (ldb *LeadDB) ListRuns(ctx context.Context, limit int) ([]RunMetadata, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, id DESC`
	args := make([]any, 0, 1)
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := ldb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var results []RunMetadata
	for rows.Next() {
		meta, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		results = append(results, meta)
	}
	return results, rows.Err()
}

// GetRun returns a run by ID, or nil if it does not exist.
func (ldb *LeadDB) GetRun(ctx context.Context, id int64) (*RunMetadata, error) {
	row := ldb.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	meta, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return &meta, nil
}

// GetLead returns the latest enrichment of a notice, or nil if it was
// never stored.
func (ldb *LeadDB) GetLead(ctx context.Context, documentNumber string) (*model.EnrichedLead, error) {
	var leadJSON string
	err := ldb.db.QueryRowContext(ctx, `SELECT lead_json FROM leads WHERE document_number = ?`, documentNumber).Scan(&leadJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get lead: %w", err)
	}

	var lead model.EnrichedLead
	if err := json.Unmarshal([]byte(leadJSON), &lead); err != nil {
		return nil, fmt.Errorf("failed to parse lead: %w", err)
	}
	return &lead, nil
}

// LeadFilter narrows ListLeads. Zero values match everything.
type LeadFilter struct {
	RunID       int64
	WithContact bool
	NeedsReview bool
	Limit       int
}

// ListLeads returns stored leads ordered by sale date, soonest first.
func (ldb *LeadDB) ListLeads(ctx context.Context, f LeadFilter) ([]*model.EnrichedLead, error) {
	query := `SELECT lead_json FROM leads WHERE 1=1`
	args := make([]any, 0)

	if f.RunID > 0 {
		query += " AND run_id = ?"
		args = append(args, f.RunID)
	}
	if f.WithContact {
		query += " AND has_contact = 1"
	}
	if f.NeedsReview {
		query += " AND needs_review = 1"
	}
	query += " ORDER BY sale_date IS NULL OR sale_date = '', sale_date, document_number"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := ldb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list leads: %w", err)
	}
	defer rows.Close()

	var leads []*model.EnrichedLead
	for rows.Next() {
		var leadJSON string
		if err := rows.Scan(&leadJSON); err != nil {
			return nil, fmt.Errorf("failed to scan lead: %w", err)
		}
		var lead model.EnrichedLead
		if err := json.Unmarshal([]byte(leadJSON), &lead); err != nil {
			continue // skip rows written by an incompatible version
		}
		leads = append(leads, &lead)
	}
	return leads, rows.Err()
}

// HasRecentLead reports whether a notice was enriched within d.
func (ldb *LeadDB) HasRecentLead(ctx context.Context, documentNumber string, d time.Duration) (bool, error) {
	modifier := fmt.Sprintf("-%d seconds", int(d.Seconds()))

	var count int
	err := ldb.db.QueryRowContext(ctx, `
	SELECT COUNT(*) FROM leads
	WHERE document_number = ? AND updated_at > datetime('now', ?)
	`, documentNumber, modifier).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check recent lead: %w", err)
	}
	return count > 0, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatDate(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(time.DateOnly), Valid: true}
}

// timestampFormats contains the timestamp formats that SQLite may return.
// More specific formats come first.
var timestampFormats = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999",
}

// parseTimestamp tries each known format and returns the zero time when
// none match.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
