package database

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ThiagoRGoveia/stocks-dossier/internal/config"
	"github.com/ThiagoRGoveia/stocks-dossier/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgxPool is the part of *pgxpool.Pool the Postgres store uses.
type PgxPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

func ConnectDB(ctx context.Context, connStr string) (*pgxpool.Pool, error) {
	dbpool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	if err := dbpool.Ping(ctx); err != nil {
		dbpool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return dbpool, nil
}

var equityColumns = []string{
	"symbol", "series", "open", "high", "low", "close", "total_traded_quantity", "timestamp", "total_trades", "row_key",
}

var futuresColumns = []string{
	"instrument", "symbol", "expiry_date", "open", "high", "low", "close", "contracts", "open_interest",
	"change_in_open_interest", "timestamp", "row_key",
}

// PostgresStore keeps the loader's collections as tables, one row per record.
type PostgresStore struct {
	dbpool    PgxPool
	equity    *pgCollection
	futures   *pgCollection
	fileTable string
	writeMode string
}

func ConnectPostgres(ctx context.Context, cfg config.StoreConfig) (*PostgresStore, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	dbpool, err := ConnectDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	return NewPostgresStore(dbpool, cfg), nil
}

func NewPostgresStore(dbpool PgxPool, cfg config.StoreConfig) *PostgresStore {
	upsert := cfg.WriteMode == config.WriteModeUpsert
	return &PostgresStore{
		dbpool:    dbpool,
		equity:    newPgCollection(dbpool, cfg.EquityCollection, equityColumns, upsert),
		futures:   newPgCollection(dbpool, cfg.FuturesCollection, futuresColumns, upsert),
		fileTable: cfg.FileCollection,
		writeMode: cfg.WriteMode,
	}
}

func (s *PostgresStore) Collection(kind models.RecordKind) Collection {
	switch kind {
	case models.KindEquity:
		return s.equity
	case models.KindFutures:
		return s.futures
	default:
		return nil
	}
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	equityTable := pgx.Identifier{s.equity.table}.Sanitize()
	futuresTable := pgx.Identifier{s.futures.table}.Sanitize()
	fileTable := pgx.Identifier{s.fileTable}.Sanitize()

	queries := []string{
		fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		id BIGSERIAL PRIMARY KEY,
		symbol VARCHAR(64) NOT NULL,
		series VARCHAR(16) NOT NULL DEFAULT '',
		open NUMERIC(18, 4) NOT NULL,
		high NUMERIC(18, 4) NOT NULL,
		low NUMERIC(18, 4) NOT NULL,
		close NUMERIC(18, 4) NOT NULL,
		total_traded_quantity BIGINT NOT NULL,
		timestamp DATE NOT NULL,
		total_trades BIGINT NOT NULL,
		row_key VARCHAR(16) NOT NULL
	);`, equityTable),
		fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		id BIGSERIAL PRIMARY KEY,
		instrument VARCHAR(16) NOT NULL,
		symbol VARCHAR(64) NOT NULL,
		expiry_date DATE NOT NULL,
		open NUMERIC(18, 4) NOT NULL,
		high NUMERIC(18, 4) NOT NULL,
		low NUMERIC(18, 4) NOT NULL,
		close NUMERIC(18, 4) NOT NULL,
		contracts NUMERIC(20, 4) NOT NULL,
		open_interest NUMERIC(20, 4) NOT NULL,
		change_in_open_interest NUMERIC(20, 4) NOT NULL,
		timestamp DATE NOT NULL,
		row_key VARCHAR(16) NOT NULL
	);`, futuresTable),
		fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		id SERIAL PRIMARY KEY,
		run_id UUID NOT NULL,
		file_name VARCHAR(255) NOT NULL,
		kind VARCHAR(16) NOT NULL,
		checksum VARCHAR(64),
		status VARCHAR(50) NOT NULL CHECK (status IN ('DONE', 'DONE_WITH_ERRORS', 'FATAL')),
		eligible INTEGER NOT NULL,
		persisted INTEGER NOT NULL,
		skipped INTEGER NOT NULL,
		errors jsonb,
		processed_at TIMESTAMP NOT NULL
	);`, fileTable),
	}

	unique := ""
	if s.writeMode == config.WriteModeUpsert {
		unique = "UNIQUE "
	}
	for _, table := range []string{s.equity.table, s.futures.table} {
		queries = append(queries,
			fmt.Sprintf(`CREATE %sINDEX IF NOT EXISTS %s ON %s (row_key);`,
				unique, pgx.Identifier{"idx_" + table + "_row_key"}.Sanitize(), pgx.Identifier{table}.Sanitize()),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (symbol, timestamp);`,
				pgx.Identifier{"idx_" + table + "_symbol_timestamp"}.Sanitize(), pgx.Identifier{table}.Sanitize()),
		)
	}

	for _, query := range queries {
		if _, err := s.dbpool.Exec(ctx, query); err != nil {
			return fmt.Errorf("error ensuring schema: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) InsertFileRecord(ctx context.Context, record *models.FileRecord) error {
	query := fmt.Sprintf(`
	INSERT INTO %s (run_id, file_name, kind, checksum, status, eligible, persisted, skipped, errors, processed_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);`, pgx.Identifier{s.fileTable}.Sanitize())

	_, err := s.dbpool.Exec(ctx, query, record.RunID, record.FileName, string(record.Kind), record.Checksum, record.Status,
		record.Eligible, record.Persisted, record.Skipped, record.Errors, record.ProcessedAt)
	if err != nil {
		return fmt.Errorf("error inserting file record: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close(ctx context.Context) error {
	s.dbpool.Close()
	return nil
}

type pgCollection struct {
	dbpool PgxPool
	table  string
	query  string
}

func newPgCollection(dbpool PgxPool, table string, columns []string, upsert bool) *pgCollection {
	return &pgCollection{dbpool: dbpool, table: table, query: insertStatement(table, columns, upsert)}
}

func (c *pgCollection) Insert(ctx context.Context, record models.Record) (string, error) {
	args, err := recordArgs(record)
	if err != nil {
		return "", err
	}

	var id int64
	if err := c.dbpool.QueryRow(ctx, c.query, args...).Scan(&id); err != nil {
		return "", fmt.Errorf("error inserting into %s: %w", c.table, err)
	}
	return strconv.FormatInt(id, 10), nil
}

// insertStatement builds a single row INSERT returning the generated id. In upsert mode a row
// with the same row_key is overwritten instead.
func insertStatement(table string, columns []string, upsert bool) string {
	placeholders := make([]string, len(columns))
	for i := range columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		pgx.Identifier{table}.Sanitize(), strings.Join(columns, ", "), strings.Join(placeholders, ", "))

	if upsert {
		updates := make([]string, 0, len(columns))
		for _, column := range columns {
			if column == "row_key" {
				continue
			}
			updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", column, column))
		}
		query += " ON CONFLICT (row_key) DO UPDATE SET " + strings.Join(updates, ", ")
	}

	return query + " RETURNING id;"
}

// recordArgs returns the column values in the order of equityColumns / futuresColumns.
func recordArgs(record models.Record) ([]any, error) {
	switch r := record.(type) {
	case *models.EquityRecord:
		return []any{r.Symbol, r.Series, r.Open, r.High, r.Low, r.Close, r.TotalTradedQuantity, r.Timestamp,
			r.TotalTrades, r.RowKey}, nil
	case *models.FuturesRecord:
		return []any{r.Instrument, r.Symbol, r.ExpiryDate, r.Open, r.High, r.Low, r.Close, r.Contracts,
			r.OpenInterest, r.ChangeInOpenInterest, r.Timestamp, r.RowKey}, nil
	default:
		return nil, fmt.Errorf("unsupported record type %T", record)
	}
}
