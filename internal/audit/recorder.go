package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
)

// Attempt is one row of the collection audit log: one record per
// collection attempt, independent of the metric data itself.
type Attempt struct {
	TaskID           string    `json:"task_id"`
	CustomerID       string    `json:"customer_id"`
	Provider         string    `json:"provider"`
	DataType         string    `json:"data_type"`
	Status           string    `json:"status"`
	StartedAt        time.Time `json:"started_at"`
	CompletedAt      time.Time `json:"completed_at"`
	RecordsCollected int       `json:"records_collected"`
	ErrorMessage     string    `json:"error_message,omitempty"`
}

// HistoryFilter narrows a history query. Zero values match everything.
type HistoryFilter struct {
	CustomerID string
	Provider   string
	Status     string
	Limit      int
}

// Recorder appends collection attempts to the audit log and reads them
// back for the history API.
type Recorder interface {
	RecordAttempt(ctx context.Context, attempt Attempt) error
	History(ctx context.Context, filter HistoryFilter) ([]Attempt, error)
	Close() error
}

// PostgresConfig holds the audit database connection settings.
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// PostgresRecorder implements Recorder against PostgreSQL.
type PostgresRecorder struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewPostgresRecorder wraps an existing connection. The connection is
// owned by the caller when it was not opened via OpenPostgres.
func NewPostgresRecorder(logger zerolog.Logger, db *sql.DB) *PostgresRecorder {
	return &PostgresRecorder{
		db:     db,
		logger: logger.With().Str("component", "audit").Logger(),
	}
}

// OpenPostgres connects to the audit database and creates the history
// table if it does not exist.
func OpenPostgres(logger zerolog.Logger, cfg PostgresConfig) (*PostgresRecorder, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return NewPostgresRecorder(logger, db), nil
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS collection_history (
			id BIGSERIAL PRIMARY KEY,
			task_id TEXT NOT NULL,
			customer_id TEXT NOT NULL,
			provider TEXT NOT NULL,
			data_type TEXT NOT NULL,
			status TEXT NOT NULL,
			started_at TIMESTAMP WITH TIME ZONE NOT NULL,
			completed_at TIMESTAMP WITH TIME ZONE NOT NULL,
			records_collected INTEGER NOT NULL,
			error_message TEXT,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_history_customer ON collection_history (customer_id);
		CREATE INDEX IF NOT EXISTS idx_history_provider ON collection_history (provider);
		CREATE INDEX IF NOT EXISTS idx_history_task ON collection_history (task_id);
		CREATE INDEX IF NOT EXISTS idx_history_started ON collection_history (started_at);
	`)
	if err != nil {
		return fmt.Errorf("failed to create collection_history table: %w", err)
	}
	return nil
}

// RecordAttempt implements Recorder.
func (r *PostgresRecorder) RecordAttempt(ctx context.Context, a Attempt) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO collection_history (
			task_id, customer_id, provider, data_type, status,
			started_at, completed_at, records_collected, error_message
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.TaskID, a.CustomerID, a.Provider, a.DataType, a.Status,
		a.StartedAt, a.CompletedAt, a.RecordsCollected, a.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit row: %w", err)
	}
	return nil
}

// History implements Recorder.
func (r *PostgresRecorder) History(ctx context.Context, f HistoryFilter) ([]Attempt, error) {
	query := `
		SELECT task_id, customer_id, provider, data_type, status,
			started_at, completed_at, records_collected, COALESCE(error_message, '')
		FROM collection_history
		WHERE 1=1`

	var args []any
	argIndex := 1
	if f.CustomerID != "" {
		query += fmt.Sprintf(" AND customer_id = $%d", argIndex)
		args = append(args, f.CustomerID)
		argIndex++
	}
	if f.Provider != "" {
		query += fmt.Sprintf(" AND provider = $%d", argIndex)
		args = append(args, f.Provider)
		argIndex++
	}
	if f.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIndex)
		args = append(args, f.Status)
		argIndex++
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(" ORDER BY started_at DESC LIMIT $%d", argIndex)
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		var a Attempt
		if err := rows.Scan(&a.TaskID, &a.CustomerID, &a.Provider, &a.DataType, &a.Status,
			&a.StartedAt, &a.CompletedAt, &a.RecordsCollected, &a.ErrorMessage); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history rows: %w", err)
	}
	return out, nil
}

// Close closes the database connection.
func (r *PostgresRecorder) Close() error {
	return r.db.Close()
}
