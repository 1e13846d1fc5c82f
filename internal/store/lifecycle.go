package store

import (
	"context"
	"fmt"

	"github.com/carlink/policydb/internal/table"
)

// InitResult is the tri-state outcome of store initialization.
type InitResult int

const (
	// InitFail: the store could not be opened, is corrupt, or the
	// schema could not be created. The store is unusable.
	InitFail InitResult = iota
	// InitSuccess: a usable store was created or seen for the first
	// time since it was provisioned.
	InitSuccess
	// InitExists: a valid store from a previous run. The caller
	// decides whether its contents need refreshing.
	InitExists
)

func (r InitResult) String() string {
	switch r {
	case InitSuccess:
		return "success"
	case InitExists:
		return "exists"
	default:
		return "fail"
	}
}

// Init opens the database (with retries), verifies write access and
// integrity, and prepares the schema.
//
// A database already holding schema objects must pass PRAGMA
// integrity_check;
// any result line other than "ok" marks the store corrupt. A passing
// store returns InitSuccess once, on its provisioned first run, and
// InitExists afterwards. An empty database gets the schema created
// and the initial data seeded, returning InitSuccess.
func (s *Store) Init(ctx context.Context) InitResult {
	if s.db == nil {
		if err := s.openWithRetry(); err != nil {
			s.logger.Error("policy database initialization failed", "error", err)
			return InitFail
		}
	}

	if err := s.checkWriteAccess(); err != nil {
		s.logger.Error("policy database is not writable", "error", err)
		return InitFail
	}

	// page_count alone cannot tell a fresh store apart: the journal
	// mode pragma already allocates the header page. A store counts
	// as existing only once it holds schema objects.
	var tables int64
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table'").Scan(&tables); err != nil {
		s.logger.Warn("schema inventory query failed", "error", err)
	}

	if tables > 0 {
		ok, err := s.integrityCheck(ctx)
		if err != nil {
			s.logger.Warn("integrity check could not run", "error", err)
		} else if !ok {
			s.logger.Error("existing policy table representation is invalid")
			return InitFail
		} else {
			firstRun, err := s.isFirstRun(ctx)
			if err != nil {
				s.logger.Warn("first-run flag unreadable", "error", err)
				return InitExists
			}
			if firstRun {
				if err := s.clearFirstRun(ctx); err != nil {
					s.logger.Warn("failed clearing first-run flag", "error", err)
				}
				return InitSuccess
			}
			return InitExists
		}
	}

	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		s.logger.Error("failed creating schema", "error", err)
		return InitFail
	}
	if _, err := s.db.ExecContext(ctx, insertInitDataSQL); err != nil {
		s.logger.Error("failed seeding initial data", "error", err)
		return InitFail
	}
	return InitSuccess
}

// integrityCheck runs the integrity pragma. Every result line must be
// exactly "ok".
func (s *Store) integrityCheck(ctx context.Context) (bool, error) {
	rows, err := s.db.QueryContext(ctx, "PRAGMA integrity_check")
	if err != nil {
		return false, fmt.Errorf("integrity check: %w", err)
	}
	defer rows.Close()

	ok := true
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return false, fmt.Errorf("integrity check: %w", err)
		}
		if line != "ok" {
			ok = false
		}
	}
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("integrity check: %w", err)
	}
	return ok, nil
}

func (s *Store) isFirstRun(ctx context.Context) (bool, error) {
	var firstRun bool
	err := s.db.QueryRowContext(ctx,
		"SELECT is_first_run FROM module_config LIMIT 1").Scan(&firstRun)
	if err != nil {
		return false, fmt.Errorf("select first-run flag: %w", err)
	}
	return firstRun, nil
}

func (s *Store) clearFirstRun(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx,
		"UPDATE module_config SET is_first_run = 0"); err != nil {
		return fmt.Errorf("clear first-run flag: %w", err)
	}
	return nil
}

// Drop tears down the whole schema. Independent statements, not part
// of any save transaction.
func (s *Store) Drop(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, dropSchemaSQL); err != nil {
		return fmt.Errorf("drop schema: %w", err)
	}
	return nil
}

// Clear wipes all data and reseeds the initial rows, keeping the
// schema in place.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, deleteDataSQL); err != nil {
		return fmt.Errorf("clear data: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, insertInitDataSQL); err != nil {
		return fmt.Errorf("reseed initial data: %w", err)
	}
	return nil
}

// RefreshDB drops, recreates, and reseeds the schema. Used when the
// stored schema version no longer matches the current definition.
func (s *Store) RefreshDB(ctx context.Context) error {
	if err := s.Drop(ctx); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("recreate schema: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, insertInitDataSQL); err != nil {
		return fmt.Errorf("reseed initial data: %w", err)
	}
	return nil
}

// currentSchemaVersion is the version marker of the schema definition
// compiled into this binary: a hash of the canonical schema text.
func currentSchemaVersion() int32 {
	return table.SchemaHash(schemaSQL)
}

// IsDBVersionActual reports whether the stored schema version marker
// matches the current schema definition. A mismatch signals a stale
// on-disk schema that must be refreshed before use.
func (s *Store) IsDBVersionActual(ctx context.Context) (bool, error) {
	var saved int32
	err := s.db.QueryRowContext(ctx,
		"SELECT db_version_hash FROM _internal_data LIMIT 1").Scan(&saved)
	if err != nil {
		return false, fmt.Errorf("select schema version: %w", err)
	}
	current := currentSchemaVersion()
	s.logger.Debug("schema version check", "saved", saved, "current", current)
	return saved == current, nil
}

// UpdateDBVersion stamps the store with the current schema version.
func (s *Store) UpdateDBVersion(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx,
		"UPDATE _internal_data SET db_version_hash = ?",
		currentSchemaVersion()); err != nil {
		return fmt.Errorf("update schema version: %w", err)
	}
	return nil
}
