package store

import (
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/marcboeker/go-duckdb"
	"github.com/rs/zerolog"

	"github.com/optiscale/pulse/internal/store/migrate"
)

// Store manages the DuckDB connection holding the columnar metric tables.
// Inserts are the only supported write; records are never updated or
// deleted.
type Store struct {
	db           *sql.DB
	mu           sync.Mutex
	logger       zerolog.Logger
	queryTimeout time.Duration
}

// NewStore opens or creates a DuckDB database and applies the schema
// migrations. If dbPath is empty, an in-memory database is used.
func NewStore(logger zerolog.Logger, dbPath string, queryTimeout time.Duration) (*Store, error) {
	dsn := ""
	if dbPath != "" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, err
		}
		dsn = dbPath
	}

	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, err
	}

	if err := migrate.NewRunner(db).Run(); err != nil {
		db.Close()
		return nil, err
	}

	if queryTimeout <= 0 {
		queryTimeout = 30 * time.Second
	}

	return &Store{
		db:           db,
		logger:       logger.With().Str("component", "store").Logger(),
		queryTimeout: queryTimeout,
	}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for direct query access.
func (s *Store) DB() *sql.DB {
	return s.db
}
