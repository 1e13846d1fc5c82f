// Package store persists policy tables in SQLite and answers the
// runtime queries a head unit makes against them: permission checks,
// exchange countdowns, and default-policy assignment.
//
// # Critical Patterns
//
// CP-1: Single-writer connection discipline
//   - One *sql.DB with MaxOpenConns(1): SQLite serializes writers
//     anyway, the pool just makes that explicit
//   - WAL journal mode with synchronous=NORMAL and a 5s busy timeout
//
// CP-2: Transactional replace on save
//   - Save replaces the whole stored table inside one transaction:
//     a failed step rolls back and the previous table stays readable
//   - Insertion order matters: groups before application links, the
//     predefined "default" and "pre_DataConsent" policies before the
//     applications that reference them
//   - foreign_keys stays OFF; the save ordering and NOT NULL
//     subselects enforce referential integrity at insert time
//
// CP-3: Asymmetric failure handling
//   - Write paths fail loudly: rollback and a wrapped error
//   - Read paths used from timers and snapshots degrade: log a
//     warning, return the zero value or the safe default
//
// CP-4: Lifecycle is a tri-state, not an error
//   - Init reports Success (fresh schema created), Exists (healthy
//     table already present), or Fail (unwritable or corrupt)
//   - Corruption is detected with PRAGMA integrity_check before any
//     query touches the stored data
package store
