// Package history archives terminal workflow results to a local SQLite
// database. The workflow engine itself is stateless; the archive exists so
// operators can answer "what did the agent do to issue X and why" long after
// the process restarted.
//
// Full results (audit trail included) are stored as compressed JSON blobs;
// the columns hold only what queries filter on.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/remedly/sdk/pkg/compress"
	"github.com/remedly/sdk/pkg/workflow"
)

// Config configures the archive.
type Config struct {
	// DatabasePath is the SQLite file. Default: ~/.remedly/history.db
	DatabasePath string

	// Compression algorithm for result payloads. Default: zstd.
	Compression compress.Algorithm
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	if home == "" {
		home = "/tmp"
	}
	return &Config{
		DatabasePath: filepath.Join(home, ".remedly", "history.db"),
		Compression:  compress.AlgorithmZSTD,
	}
}

// Record is one archived workflow run.
type Record struct {
	WorkflowID string    `json:"workflow_id"`
	IssueID    string    `json:"issue_id"`
	Status     string    `json:"status"`
	Decision   string    `json:"decision"`
	Confidence float64   `json:"confidence"`
	Error      string    `json:"error,omitempty"`
	ArchivedAt time.Time `json:"archived_at"`

	// Result is the full workflow result, decoded from the stored blob.
	// Nil on listing queries that skip payloads.
	Result *workflow.Result `json:"result,omitempty"`
}

// Stats summarizes the archive.
type Stats struct {
	TotalRuns    int   `json:"total_runs"`
	Automatic    int   `json:"automatic"`
	Approvals    int   `json:"approvals"`
	Failed       int   `json:"failed"`
	PayloadBytes int64 `json:"payload_bytes"`
}

// Archive is a SQLite-backed store of workflow results.
type Archive struct {
	db         *sql.DB
	mu         sync.RWMutex
	compressor *compress.Compressor
}

// NewArchive opens (and if needed creates) the archive database.
func NewArchive(cfg *Config) (*Archive, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = DefaultConfig().DatabasePath
	}
	algorithm := cfg.Compression
	if algorithm == "" {
		algorithm = compress.AlgorithmZSTD
	}

	dir := filepath.Dir(cfg.DatabasePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	db, err := sql.Open("sqlite", cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Configure SQLite for better performance
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	a := &Archive{
		db:         db,
		compressor: compress.NewCompressor(algorithm, compress.LevelDefault),
	}
	if err := a.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return a, nil
}

func (a *Archive) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		workflow_id TEXT PRIMARY KEY,
		issue_id TEXT NOT NULL,
		status TEXT NOT NULL,
		decision TEXT NOT NULL,
		confidence REAL NOT NULL DEFAULT 0,
		error TEXT,
		payload BLOB NOT NULL,
		payload_algo TEXT NOT NULL DEFAULT 'zstd',
		original_size INTEGER NOT NULL,
		compressed_size INTEGER NOT NULL,
		archived_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_runs_issue_id ON runs(issue_id);
	CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
	CREATE INDEX IF NOT EXISTS idx_runs_archived_at ON runs(archived_at);
	`
	_, err := a.db.Exec(schema)
	return err
}

// Save archives a workflow result. Saving the same workflow id twice replaces
// the record; runs are identified by their unique workflow id so this only
// happens on redelivery.
func (a *Archive) Save(ctx context.Context, res *workflow.Result) error {
	if res == nil || res.WorkflowID == "" {
		return fmt.Errorf("history: result with workflow id required")
	}

	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("history: marshal result: %w", err)
	}
	compressed, cstats, err := a.compressor.CompressWithStats(payload)
	if err != nil {
		return fmt.Errorf("history: compress result: %w", err)
	}

	confidence := 0.0
	if res.ProposedFix != nil {
		confidence = res.ProposedFix.Confidence
	} else if res.ApprovalPayload != nil && res.ApprovalPayload.ProposedFix != nil {
		confidence = res.ApprovalPayload.ProposedFix.Confidence
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	_, err = a.db.ExecContext(ctx, `
		INSERT INTO runs (
			workflow_id, issue_id, status, decision, confidence, error,
			payload, payload_algo, original_size, compressed_size, archived_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(workflow_id) DO UPDATE SET
			status = excluded.status,
			decision = excluded.decision,
			confidence = excluded.confidence,
			error = excluded.error,
			payload = excluded.payload,
			original_size = excluded.original_size,
			compressed_size = excluded.compressed_size,
			archived_at = excluded.archived_at
	`,
		res.WorkflowID, res.IssueID, string(res.Status), res.Decision,
		confidence, res.Error, compressed, cstats.Algorithm,
		cstats.OriginalSize, cstats.CompressedSize, time.Now(),
	)
	return err
}

// Get retrieves one archived run with its full result. Returns nil when the
// workflow id is unknown.
func (a *Archive) Get(ctx context.Context, workflowID string) (*Record, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var rec Record
	var payload []byte
	var algo string
	var errStr sql.NullString

	err := a.db.QueryRowContext(ctx, `
		SELECT workflow_id, issue_id, status, decision, confidence, error,
			payload, payload_algo, archived_at
		FROM runs WHERE workflow_id = ?
	`, workflowID).Scan(
		&rec.WorkflowID, &rec.IssueID, &rec.Status, &rec.Decision,
		&rec.Confidence, &errStr, &payload, &algo, &rec.ArchivedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if errStr.Valid {
		rec.Error = errStr.String
	}

	decompressed, err := compress.NewCompressor(compress.Algorithm(algo), compress.LevelDefault).Decompress(payload)
	if err != nil {
		return nil, fmt.Errorf("history: decompress payload: %w", err)
	}
	var res workflow.Result
	if err := json.Unmarshal(decompressed, &res); err != nil {
		return nil, fmt.Errorf("history: unmarshal payload: %w", err)
	}
	rec.Result = &res
	return &rec, nil
}

// ListByIssue returns all archived runs for an issue, newest first, without
// payloads.
func (a *Archive) ListByIssue(ctx context.Context, issueID string) ([]Record, error) {
	return a.list(ctx, `
		SELECT workflow_id, issue_id, status, decision, confidence, error, archived_at
		FROM runs WHERE issue_id = ?
		ORDER BY archived_at DESC
	`, issueID)
}

// Recent returns the most recently archived runs, without payloads.
func (a *Archive) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	return a.list(ctx, `
		SELECT workflow_id, issue_id, status, decision, confidence, error, archived_at
		FROM runs
		ORDER BY archived_at DESC
		LIMIT ?
	`, limit)
}

func (a *Archive) list(ctx context.Context, query string, args ...any) ([]Record, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var errStr sql.NullString
		if err := rows.Scan(
			&rec.WorkflowID, &rec.IssueID, &rec.Status, &rec.Decision,
			&rec.Confidence, &errStr, &rec.ArchivedAt,
		); err != nil {
			return nil, err
		}
		if errStr.Valid {
			rec.Error = errStr.String
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Stats returns archive counters.
func (a *Archive) Stats(ctx context.Context) (*Stats, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var stats Stats
	rows, err := a.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM runs GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			continue
		}
		switch workflow.Status(status) {
		case workflow.StatusCompletedAutomatic:
			stats.Automatic = count
		case workflow.StatusAwaitingApproval:
			stats.Approvals = count
		case workflow.StatusFailed:
			stats.Failed = count
		}
		stats.TotalRuns += count
	}

	var size sql.NullInt64
	_ = a.db.QueryRowContext(ctx, `SELECT SUM(compressed_size) FROM runs`).Scan(&size)
	if size.Valid {
		stats.PayloadBytes = size.Int64
	}
	return &stats, rows.Err()
}

// Cleanup removes runs archived before the cutoff age and returns how many
// were deleted.
func (a *Archive) Cleanup(ctx context.Context, maxAge time.Duration) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	result, err := a.db.ExecContext(ctx, `DELETE FROM runs WHERE archived_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Close closes the archive.
func (a *Archive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.db.Close()
}
