package store

import (
	"context"
	"database/sql"
	"fmt"
)

// The exchange schedulers below never fail their callers: head units
// poll these countdowns from timers, and a read error must degrade to
// "exchange now" (zero) rather than wedge the update loop. Errors are
// logged and swallowed.

// IgnitionCyclesBeforeExchange returns how many ignition cycles remain
// until the next policy exchange is due. Inconsistent stored counters
// degrade to zero.
func (s *Store) IgnitionCyclesBeforeExchange(ctx context.Context) int {
	var limit, current int
	err := s.db.QueryRowContext(ctx,
		`SELECT module_config.exchange_after_x_ignition_cycles,
			module_meta.ignition_cycles_since_last_exchange
		FROM module_config, module_meta`).Scan(&limit, &current)
	if err != nil {
		s.logger.Warn("ignition cycle countdown unavailable", "error", err)
		return 0
	}
	if limit < 0 || current < 0 || current > limit {
		s.logger.Warn("ignition cycle counters inconsistent",
			"limit", limit, "current", current)
		return 0
	}
	return limit - current
}

// KilometersBeforeExchange returns how many kilometers remain until
// the next exchange, given the current odometer reading.
func (s *Store) KilometersBeforeExchange(ctx context.Context, current int) int {
	var limit, last int
	err := s.db.QueryRowContext(ctx,
		`SELECT module_config.exchange_after_x_kilometers,
			module_meta.pt_exchanged_at_odometer_x
		FROM module_config, module_meta`).Scan(&limit, &last)
	if err != nil {
		s.logger.Warn("kilometer countdown unavailable", "error", err)
		return 0
	}
	if limit < 0 || last < 0 || current < 0 || current < last {
		s.logger.Warn("kilometer counters inconsistent",
			"limit", limit, "last", last, "current", current)
		return 0
	}
	if current-last > limit {
		return 0
	}
	return limit - (current - last)
}

// DaysBeforeExchange returns how many days remain until the next
// exchange, given the current day count since epoch. A zero stored
// exchange day means no exchange has ever happened, and the full limit
// remains.
func (s *Store) DaysBeforeExchange(ctx context.Context, current int) int {
	var limit, last int
	err := s.db.QueryRowContext(ctx,
		`SELECT module_config.exchange_after_x_days,
			module_meta.pt_exchanged_x_days_after_epoch
		FROM module_config, module_meta`).Scan(&limit, &last)
	if err != nil {
		s.logger.Warn("day countdown unavailable", "error", err)
		return 0
	}
	if last == 0 {
		return limit
	}
	if limit < 0 || last < 0 || current < 0 || current < last {
		s.logger.Warn("day counters inconsistent",
			"limit", limit, "last", last, "current", current)
		return 0
	}
	if current-last > limit {
		return 0
	}
	return limit - (current - last)
}

// defaultTimeoutSeconds applies when module config carries no response
// timeout.
const defaultTimeoutSeconds = 30

// TimeoutResponse returns the policy-server response timeout in
// seconds.
func (s *Store) TimeoutResponse(ctx context.Context) int {
	var timeout sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		"SELECT timeout_after_x_seconds FROM module_config").Scan(&timeout)
	if err != nil {
		s.logger.Warn("response timeout unavailable", "error", err)
		return defaultTimeoutSeconds
	}
	if !timeout.Valid || timeout.Int64 <= 0 {
		return defaultTimeoutSeconds
	}
	return int(timeout.Int64)
}

// SecondsBetweenRetries returns the stored retry backoff schedule in
// index order.
func (s *Store) SecondsBetweenRetries(ctx context.Context) ([]int, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT value FROM seconds_between_retry ORDER BY idx")
	if err != nil {
		return nil, fmt.Errorf("retry schedule: %w", err)
	}
	defer rows.Close()

	var seconds []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("retry schedule: %w", err)
		}
		seconds = append(seconds, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("retry schedule: %w", err)
	}
	return seconds, nil
}

// IncrementIgnitionCycles advances the ignition counter, saturating at
// the configured exchange limit so repeated cycles past the limit keep
// the countdown at zero rather than underflowing it.
func (s *Store) IncrementIgnitionCycles(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE module_meta SET ignition_cycles_since_last_exchange =
			MIN(ignition_cycles_since_last_exchange + 1,
				(SELECT exchange_after_x_ignition_cycles FROM module_config))`); err != nil {
		return fmt.Errorf("increment ignition cycles: %w", err)
	}
	return nil
}

// ResetIgnitionCycles zeroes the ignition counter after a completed
// exchange.
func (s *Store) ResetIgnitionCycles(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx,
		"UPDATE module_meta SET ignition_cycles_since_last_exchange = 0"); err != nil {
		return fmt.Errorf("reset ignition cycles: %w", err)
	}
	return nil
}

// SetCountersPassedForSuccessfulUpdate records a completed exchange at
// the given odometer reading and day count, restarting every
// countdown.
func (s *Store) SetCountersPassedForSuccessfulUpdate(ctx context.Context, kilometers, daysAfterEpoch int) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE module_meta SET
			pt_exchanged_at_odometer_x = ?,
			pt_exchanged_x_days_after_epoch = ?,
			ignition_cycles_since_last_exchange = 0`,
		kilometers, daysAfterEpoch); err != nil {
		return fmt.Errorf("record successful update: %w", err)
	}
	return nil
}

// UpdateRequired reports whether a policy exchange has been flagged as
// pending.
func (s *Store) UpdateRequired(ctx context.Context) bool {
	var required bool
	err := s.db.QueryRowContext(ctx,
		"SELECT flag_update_required FROM module_meta").Scan(&required)
	if err != nil {
		s.logger.Warn("update-required flag unavailable", "error", err)
		// Fail toward exchanging: a fresh table is better than a
		// stale one.
		return true
	}
	return required
}

// SaveUpdateRequired sets or clears the pending-exchange flag.
func (s *Store) SaveUpdateRequired(ctx context.Context, required bool) error {
	if _, err := s.db.ExecContext(ctx,
		"UPDATE module_meta SET flag_update_required = ?", required); err != nil {
		return fmt.Errorf("save update-required flag: %w", err)
	}
	return nil
}
