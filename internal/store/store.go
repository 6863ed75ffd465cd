package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/extra/bundebug"

	"github.com/roach88/qdsl/internal/logging"
	"github.com/roach88/qdsl/internal/querysql"
)

// MemoryDSN opens a private in-memory SQLite database.
const MemoryDSN = ":memory:"

// Config describes the database a Store connects to.
type Config struct {
	Dialect      querysql.Dialect
	DSN          string
	MaxOpenConns int

	// QueryLog installs bundebug's query hook. BUNDEBUG=1 or 2 in the
	// environment overrides it.
	QueryLog bool
}

// Store executes descriptors against one database.
type Store struct {
	db       *bun.DB
	compiler *querysql.Compiler
	log      logrus.FieldLogger
	runIDs   RunIDGenerator
	runID    string

	mu    sync.RWMutex
	cache map[string]querysql.Statement
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Store) { s.log = l }
}

// WithRunIDGenerator sets the source of the store's run id. The default
// is UUIDv7Generator.
func WithRunIDGenerator(g RunIDGenerator) Option {
	return func(s *Store) { s.runIDs = g }
}

// Open connects to the database described by cfg and verifies the
// connection.
func Open(ctx context.Context, cfg Config, opts ...Option) (*Store, error) {
	var (
		sqlDB *sql.DB
		db    *bun.DB
		err   error
	)
	switch cfg.Dialect {
	case querysql.SQLite:
		dsn := cfg.DSN
		if dsn == "" {
			dsn = MemoryDSN
		}
		sqlDB, err = sql.Open(sqliteshim.ShimName, dsn)
		if err == nil {
			db = bun.NewDB(sqlDB, sqlitedialect.New())
		}
	case querysql.Postgres:
		sqlDB, err = sql.Open("postgres", cfg.DSN)
		if err == nil {
			db = bun.NewDB(sqlDB, pgdialect.New())
		}
	case querysql.MySQL:
		sqlDB, err = sql.Open("mysql", cfg.DSN)
		if err == nil {
			db = bun.NewDB(sqlDB, mysqldialect.New())
		}
	default:
		return nil, fmt.Errorf("unsupported database dialect: %q", cfg.Dialect)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time, and an in-memory
	// database lives exactly as long as its connection.
	if cfg.Dialect == querysql.SQLite {
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
	} else if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	if cfg.QueryLog {
		db.AddQueryHook(bundebug.NewQueryHook(
			bundebug.WithVerbose(true),
			bundebug.FromEnv("BUNDEBUG"),
		))
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := New(db, cfg.Dialect, opts...)
	s.log.WithField("dialect", cfg.Dialect).Info("database connected")
	return s, nil
}

// New wraps an open bun.DB. The store takes ownership of db.
func New(db *bun.DB, dialect querysql.Dialect, opts ...Option) *Store {
	s := &Store{
		db: db,
		// bun formats arguments itself and only understands "?". It inlines
		// them into the query text with the dialect's escaping rather than
		// binding them as driver parameters.
		compiler: querysql.NewCompiler(dialect, querysql.WithPlaceholders(sq.Question)),
		cache:    make(map[string]querysql.Statement),
		runIDs:   UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.runID = s.runIDs.Generate()
	if s.log == nil {
		s.log = logging.Discard()
	}
	s.log = s.log.WithField("run_id", s.runID)
	db.AddQueryHook(&logHook{log: s.log})
	return s
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying bun.DB.
func (s *Store) DB() *bun.DB { return s.db }

// Dialect returns the store's SQL dialect.
func (s *Store) Dialect() querysql.Dialect { return s.compiler.Dialect() }

// RunID identifies this store in log entries.
func (s *Store) RunID() string { return s.runID }

// compile returns the cached statement for key, rendering it with fn on
// a miss.
func (s *Store) compile(key string, fn func() (querysql.Statement, error)) (querysql.Statement, error) {
	s.mu.RLock()
	stmt, ok := s.cache[key]
	s.mu.RUnlock()
	if ok {
		return stmt, nil
	}

	stmt, err := fn()
	if err != nil {
		return querysql.Statement{}, err
	}
	s.mu.Lock()
	s.cache[key] = stmt
	s.mu.Unlock()
	return stmt, nil
}

// queryID shortens a fingerprint for log fields.
func queryID(fingerprint string) string {
	const n = 12
	if len(fingerprint) > n {
		return fingerprint[:n]
	}
	return fingerprint
}
