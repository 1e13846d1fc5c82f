package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Default open-retry parameters, used when the config leaves them
// zero. The retry loop blocks the caller for up to
// OpenAttempts × AttemptTimeout.
const (
	defaultOpenAttempts   = 5
	defaultAttemptTimeout = 500 * time.Millisecond
)

// Config holds the parameters for creating a policy store.
type Config struct {
	// Path is the filesystem path to the SQLite database file. The
	// file is created on first Init if it does not exist.
	Path string

	// Logger receives operational messages. Read-path degradation is
	// reported here at Warn level. If nil, a no-op logger is used.
	Logger *slog.Logger

	// OpenAttempts is the number of open retries after a failed first
	// open. Zero means the default.
	OpenAttempts int

	// AttemptTimeout is the fixed delay between open attempts. Zero
	// means the default.
	AttemptTimeout time.Duration

	// Sleep is the delay mechanism used between open attempts.
	// Injectable so tests can run the retry loop without waiting.
	// If nil, time.Sleep is used.
	Sleep func(time.Duration)
}

// Store is the SQLite representation of the policy table. It owns its
// database handle exclusively: no other component opens or closes the
// underlying file while the store is alive.
//
// The store performs no internal locking. Serialization of callers is
// the responsibility of the owning policy manager; SQLite-level write
// contention is additionally bounded by the single-connection pool
// limit and the busy timeout pragma.
type Store struct {
	db     *sql.DB
	path   string
	logger *slog.Logger

	openAttempts   int
	attemptTimeout time.Duration
	sleep          func(time.Duration)
}

// New creates an unopened store. Call Init to open and verify the
// database before using any other method.
func New(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("policy store: Path is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	attempts := cfg.OpenAttempts
	if attempts <= 0 {
		attempts = defaultOpenAttempts
	}
	timeout := cfg.AttemptTimeout
	if timeout <= 0 {
		timeout = defaultAttemptTimeout
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	return &Store{
		path:           cfg.Path,
		logger:         logger,
		openAttempts:   attempts,
		attemptTimeout: timeout,
		sleep:          sleep,
	}, nil
}

// Close closes the database handle. Safe to call on a store that was
// never opened.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	if err != nil {
		return fmt.Errorf("policy store: close: %w", err)
	}
	return nil
}

// open establishes the database handle and applies pragmas. A nil
// error means the handle is usable.
func (s *Store) open() error {
	db, err := sql.Open("sqlite3", s.path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return fmt.Errorf("connect database: %w", err)
	}

	// SQLite supports one writer at a time; a single pooled
	// connection avoids SQLITE_BUSY between our own statements.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return err
	}

	s.db = db
	return nil
}

// openWithRetry opens the handle, retrying up to the configured
// attempt count with a fixed delay between attempts. Exhausting all
// attempts is fatal for initialization.
func (s *Store) openWithRetry() error {
	err := s.open()
	if err == nil {
		return nil
	}

	s.logger.Error("failed opening policy database, starting retries",
		"path", s.path,
		"attempts", s.openAttempts,
		"attempt_timeout", s.attemptTimeout,
		"error", err,
	)

	for attempt := 1; attempt <= s.openAttempts; attempt++ {
		s.sleep(s.attemptTimeout)
		err = s.open()
		if err == nil {
			s.logger.Info("policy database opened", "attempt", attempt)
			return nil
		}
		s.logger.Warn("open attempt failed", "attempt", attempt, "error", err)
	}

	return fmt.Errorf("open retries exhausted after %d attempts: %w", s.openAttempts, err)
}

// checkWriteAccess verifies the database file is writable. A store
// that exists but cannot be written to is unusable for policy
// exchange and fails initialization.
func (s *Store) checkWriteAccess() error {
	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		// Nothing on disk yet; the schema creation path covers it.
		return nil
	}
	f, err := os.OpenFile(s.path, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("no read/write access to policy database: %w", err)
	}
	return f.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		// Referential integrity is managed explicitly: a full save
		// replaces functional groups before the application rows that
		// reference them, which FK enforcement would reject
		// mid-transaction.
		"PRAGMA foreign_keys = OFF",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("apply %q: %w", pragma, err)
		}
	}
	return nil
}
