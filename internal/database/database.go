// Package database wraps the PostgreSQL connection, migrations and the
// query helpers shared by all repositories.
package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"visadesk/internal/config"
)

// Database holds the connection pool and query settings.
type Database struct {
	db     *sqlx.DB
	logger *zap.Logger
	config *config.DatabaseConfig
}

// New connects to PostgreSQL and configures the pool.
func New(cfg *config.DatabaseConfig, logger *zap.Logger) (*Database, error) {
	if cfg == nil {
		return nil, errors.New("database config is required")
	}

	db, err := sqlx.Connect("postgres", cfg.ConnectionString)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to postgres")
	}

	db.SetMaxOpenConns(cfg.MaxOpenConnections)
	db.SetMaxIdleConns(cfg.MaxIdleConnections)
	db.SetConnMaxLifetime(cfg.ConnectionLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectionTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to ping database")
	}

	logger.Info("Connected to database")
	return &Database{db: db, logger: logger.Named("database"), config: cfg}, nil
}

// Close closes the connection pool.
func (d *Database) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

// Health pings the database with a short timeout.
func (d *Database) Health(ctx context.Context) error {
	if d.db == nil {
		return errors.New("database connection not initialized")
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return d.db.PingContext(ctx)
}

// RunMigrations applies pending schema migrations.
func (d *Database) RunMigrations() error {
	d.logger.Info("Running database migrations", zap.String("path", d.config.MigrationPath))

	driver, err := postgres.WithInstance(d.db.DB, &postgres.Config{})
	if err != nil {
		return errors.Wrap(err, "failed to create migration driver")
	}

	m, err := migrate.NewWithDatabaseInstance(d.config.MigrationPath, "postgres", driver)
	if err != nil {
		return errors.Wrap(err, "failed to create migration instance")
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return errors.Wrap(err, "failed to run migrations")
	}
	return nil
}

// BeginTx starts a transaction.
func (d *Database) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return d.db.BeginTxx(ctx, opts)
}

// ExecContext runs a statement under the configured query timeout.
func (d *Database) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	ctx, cancel := d.queryContext(ctx)
	defer cancel()

	start := time.Now()
	result, err := d.db.ExecContext(ctx, query, args...)
	d.observe("EXEC", query, start, err)
	return result, err
}

// GetContext scans a single row into dest.
func (d *Database) GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	ctx, cancel := d.queryContext(ctx)
	defer cancel()

	start := time.Now()
	err := d.db.GetContext(ctx, dest, query, args...)
	d.observe("GET", query, start, err)
	return err
}

// SelectContext scans all rows into dest.
func (d *Database) SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	ctx, cancel := d.queryContext(ctx)
	defer cancel()

	start := time.Now()
	err := d.db.SelectContext(ctx, dest, query, args...)
	d.observe("SELECT", query, start, err)
	return err
}

// NamedExecContext runs a named statement under the query timeout.
func (d *Database) NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error) {
	ctx, cancel := d.queryContext(ctx)
	defer cancel()

	start := time.Now()
	result, err := d.db.NamedExecContext(ctx, query, arg)
	d.observe("NAMED_EXEC", query, start, err)
	return result, err
}

// NamedQueryContext runs a named query returning rows. No query timeout is
// layered on here: the returned rows outlive this call and cancelling the
// context would kill their iteration.
func (d *Database) NamedQueryContext(ctx context.Context, query string, arg interface{}) (*sqlx.Rows, error) {
	start := time.Now()
	rows, err := d.db.NamedQueryContext(ctx, query, arg)
	d.observe("NAMED_QUERY", query, start, err)
	return rows, err
}

// Stats returns connection pool statistics.
func (d *Database) Stats() sql.DBStats {
	if d.db == nil {
		return sql.DBStats{}
	}
	return d.db.Stats()
}

func (d *Database) queryContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, d.config.QueryTimeout)
}

func (d *Database) observe(operation, query string, start time.Time, err error) {
	duration := time.Since(start)

	if d.config.EnableQueryLogging {
		fields := []zap.Field{
			zap.String("operation", operation),
			zap.String("query", query),
			zap.Duration("duration", duration),
		}
		if err != nil {
			d.logger.Error("Database query failed", append(fields, zap.Error(err))...)
		} else {
			d.logger.Debug("Database query executed", fields...)
		}
	}

	if duration > d.config.SlowQueryThreshold {
		d.logger.Warn("Slow query detected",
			zap.String("operation", operation),
			zap.Duration("duration", duration),
			zap.Duration("threshold", d.config.SlowQueryThreshold))
	}
}

// Repository is the base embedded by the concrete repositories.
type Repository struct {
	db     *Database
	logger *zap.Logger
}

// NewRepository creates a base repository.
func NewRepository(db *Database, logger *zap.Logger) *Repository {
	return &Repository{db: db, logger: logger.Named("repository")}
}

// DB returns the wrapped database.
func (r *Repository) DB() *Database {
	return r.db
}

// WithTx runs fn inside a transaction, rolling back on error or panic.
func (r *Repository) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}

	defer func() {
		if p := recover(); p != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				r.logger.Error("Failed to rollback transaction after panic", zap.Error(rollbackErr))
			}
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			r.logger.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
		return err
	}

	return errors.Wrap(tx.Commit(), "failed to commit transaction")
}

// Paginate provides pagination parameters for list queries.
type Paginate struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// NewPaginate creates pagination parameters with sane defaults.
func NewPaginate(limit, offset int) *Paginate {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return &Paginate{Limit: limit, Offset: offset}
}

// PaginatedResult wraps a page of data with totals.
type PaginatedResult struct {
	Data    interface{} `json:"data"`
	Total   int64       `json:"total"`
	Limit   int         `json:"limit"`
	Offset  int         `json:"offset"`
	HasNext bool        `json:"hasNext"`
}

// NewPaginatedResult builds a paginated result.
func NewPaginatedResult(data interface{}, total int64, p *Paginate) *PaginatedResult {
	return &PaginatedResult{
		Data:    data,
		Total:   total,
		Limit:   p.Limit,
		Offset:  p.Offset,
		HasNext: p.Offset+p.Limit < int(total),
	}
}
