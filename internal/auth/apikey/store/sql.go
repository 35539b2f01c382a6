package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strconv"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	_ "github.com/mattn/go-sqlite3"    // registers the "sqlite3" driver

	"github.com/code-wheel/mcp-http-security/internal/auth/apikey"
	"github.com/code-wheel/mcp-http-security/internal/observability"
)

// SQL drivers understood by SQLStore.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

// DefaultTable is the table used when none is configured.
const DefaultTable = "mcp_api_keys"

var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// SQLStore keeps one row per key: (key_id, data) where data is the
// record's JSON document.
type SQLStore struct {
	db     *sql.DB
	driver string
	table  string
	owned  bool
	logger observability.Logger
}

// SQLOption is a functional option for SQLStore.
type SQLOption func(*SQLStore)

// WithSQLLogger sets the logger for the SQL store.
func WithSQLLogger(logger observability.Logger) SQLOption {
	return func(s *SQLStore) {
		s.logger = logger
	}
}

// NewSQLStore wraps an open database. The caller keeps ownership of db.
func NewSQLStore(db *sql.DB, driver, table string, opts ...SQLOption) (*SQLStore, error) {
	if db == nil {
		return nil, errors.New("database is required")
	}
	if driver != DriverSQLite && driver != DriverPostgres {
		return nil, fmt.Errorf("unsupported SQL driver: %s", driver)
	}
	if table == "" {
		table = DefaultTable
	}
	if !identifierRe.MatchString(table) {
		return nil, fmt.Errorf("invalid table name: %q", table)
	}

	s := &SQLStore{
		db:     db,
		driver: driver,
		table:  table,
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// OpenSQLStore opens dsn with driver, verifies the connection and creates
// the table if needed. The returned store owns the connection pool.
func OpenSQLStore(ctx context.Context, driver, dsn, table string, opts ...SQLOption) (*SQLStore, error) {
	if dsn == "" {
		return nil, errors.New("database DSN is required")
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}

	s, err := NewSQLStore(db, driver, table, opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.owned = true

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := s.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

// EnsureSchema creates the table if it does not exist.
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	dataType := "TEXT"
	if s.driver == DriverPostgres {
		dataType = "JSONB"
	}
	query := fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (key_id VARCHAR(32) PRIMARY KEY, data %s NOT NULL)",
		s.table, dataType,
	)
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create table %s: %w", s.table, err)
	}
	return nil
}

// Close closes the database if the store opened it.
func (s *SQLStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

// GetAll implements apikey.Store.
func (s *SQLStore) GetAll(ctx context.Context) (map[string]*apikey.Record, error) {
	query := fmt.Sprintf("SELECT key_id, %s FROM %s", s.dataColumn(), s.table)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query API keys: %w", err)
	}
	defer rows.Close()

	raw := make(map[string][]byte)
	for rows.Next() {
		var (
			id   string
			data []byte
		)
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("failed to scan API key row: %w", err)
		}
		raw[id] = data
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate API keys: %w", err)
	}

	return decodeEach(raw, s.logger), nil
}

// SetAll implements apikey.Store. The replacement runs in one transaction.
func (s *SQLStore) SetAll(ctx context.Context, records map[string]*apikey.Record) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, "DELETE FROM "+s.table); err != nil {
		return fmt.Errorf("failed to clear API keys: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, s.insertQuery(false))
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for id, record := range records {
		if record == nil {
			continue
		}
		var data []byte
		if data, err = encodeRecord(record); err != nil {
			return err
		}
		if _, err = stmt.ExecContext(ctx, id, string(data)); err != nil {
			return fmt.Errorf("failed to insert API key %s: %w", id, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit API keys: %w", err)
	}
	return nil
}

// Get implements apikey.Store.
func (s *SQLStore) Get(ctx context.Context, keyID string) (*apikey.Record, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE key_id = %s", s.dataColumn(), s.table, s.placeholder(1))

	var data []byte
	err := s.db.QueryRowContext(ctx, query, keyID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apikey.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query API key: %w", err)
	}

	record, err := decodeRecord(data)
	if err != nil || record == nil {
		s.logger.Warn("undecodable API key row", observability.String("key_id", keyID))
		return nil, apikey.ErrRecordNotFound
	}
	return record, nil
}

// Set implements apikey.Store as an upsert.
func (s *SQLStore) Set(ctx context.Context, keyID string, record *apikey.Record) error {
	data, err := encodeRecord(record)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, s.insertQuery(true), keyID, string(data)); err != nil {
		return fmt.Errorf("failed to store API key: %w", err)
	}
	return nil
}

// Delete implements apikey.Store.
func (s *SQLStore) Delete(ctx context.Context, keyID string) (bool, error) {
	query := fmt.Sprintf("DELETE FROM %s WHERE key_id = %s", s.table, s.placeholder(1))
	res, err := s.db.ExecContext(ctx, query, keyID)
	if err != nil {
		return false, fmt.Errorf("failed to delete API key: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}

func (s *SQLStore) insertQuery(upsert bool) string {
	value := s.placeholder(2)
	if s.driver == DriverPostgres {
		value += "::jsonb"
	}
	query := fmt.Sprintf("INSERT INTO %s (key_id, data) VALUES (%s, %s)", s.table, s.placeholder(1), value)
	if upsert {
		query += " ON CONFLICT (key_id) DO UPDATE SET data = excluded.data"
	}
	return query
}

func (s *SQLStore) dataColumn() string {
	if s.driver == DriverPostgres {
		return "data::text"
	}
	return "data"
}

func (s *SQLStore) placeholder(n int) string {
	if s.driver == DriverPostgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

var _ apikey.Store = (*SQLStore)(nil)
