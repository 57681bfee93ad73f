package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	_ "modernc.org/sqlite"

	"netmon-auth/internal/config"
)

type Options struct {
	Driver          string
	URL             string
	MaxConns        int32
	MinConns        int32
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DB holds the connection pool for the configured driver. SQL is always set;
// Pool is set for postgres and Gorm for mysql.
type DB struct {
	Driver string
	SQL    *sql.DB
	Pool   *pgxpool.Pool
	Gorm   *gorm.DB
}

func New(ctx context.Context, opts Options) (*DB, error) {
	var (
		db  *DB
		err error
	)

	switch opts.Driver {
	case config.DriverPostgres:
		db, err = openPostgres(ctx, opts)
	case config.DriverMySQL:
		db, err = openMySQL(opts)
	case config.DriverSQLite:
		db, err = openSQLite(opts)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", opts.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := db.Health(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	slog.Info("database connected", "driver", opts.Driver, "max_conns", opts.MaxConns, "min_conns", opts.MinConns)
	return db, nil
}

func openPostgres(ctx context.Context, opts Options) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	cfg.MaxConns = opts.MaxConns
	cfg.MinConns = opts.MinConns
	cfg.MaxConnLifetime = opts.ConnMaxLifetime
	cfg.MaxConnIdleTime = opts.ConnMaxIdleTime
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	return &DB{Driver: config.DriverPostgres, Pool: pool, SQL: stdlib.OpenDBFromPool(pool)}, nil
}

func openMySQL(opts Options) (*DB, error) {
	dsn, err := mysqldriver.ParseDSN(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	// created_at is scanned into time.Time.
	dsn.ParseTime = true
	dsn.Loc = time.UTC
	// Updates that leave a row unchanged still count as affected.
	dsn.ClientFoundRows = true

	gdb, err := gorm.Open(mysql.Open(dsn.FormatDSN()), &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		SkipDefaultTransaction: true,
		TranslateError:         true,
	})
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("mysql handle: %w", err)
	}
	applyPoolLimits(sqlDB, opts)

	return &DB{Driver: config.DriverMySQL, Gorm: gdb, SQL: sqlDB}, nil
}

func openSQLite(opts Options) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", withSQLiteTimeFormat(opts.URL))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// In-memory databases live only as long as a connection does, so sqlite
	// connections are never recycled.
	sqlDB.SetMaxOpenConns(int(opts.MaxConns))
	sqlDB.SetMaxIdleConns(int(opts.MaxConns))

	return &DB{Driver: config.DriverSQLite, SQL: sqlDB}, nil
}

// withSQLiteTimeFormat makes the driver store time.Time values in a layout it
// can parse back.
func withSQLiteTimeFormat(dsn string) string {
	if strings.Contains(dsn, "_time_format=") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&_time_format=sqlite"
	}
	return dsn + "?_time_format=sqlite"
}

func applyPoolLimits(sqlDB *sql.DB, opts Options) {
	sqlDB.SetMaxOpenConns(int(opts.MaxConns))
	sqlDB.SetMaxIdleConns(int(opts.MinConns))
	sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(opts.ConnMaxIdleTime)
}

func (db *DB) Close() {
	if db.SQL != nil {
		_ = db.SQL.Close()
	}
	if db.Pool != nil {
		db.Pool.Close()
	}
}

func (db *DB) Health(ctx context.Context) error {
	if db.Pool != nil {
		return db.Pool.Ping(ctx)
	}
	return db.SQL.PingContext(ctx)
}
