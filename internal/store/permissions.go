package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/carlink/policydb/internal/table"
)

// PermissionCheck is the outcome of a single permission lookup.
// Parameters keeps every matched row's parameter, in storage order,
// duplicates included: an application in two groups granting the same
// parameter reports it twice.
type PermissionCheck struct {
	Allowed    bool
	Parameters []string
}

const checkPermissionsSQL = `SELECT rpc.parameter
	FROM rpc
	JOIN app_group ON app_group.functional_group_id = rpc.functional_group_id
	WHERE app_group.application_id = ? AND rpc.name = ? AND rpc.hmi_level = ?
	ORDER BY rpc.id`

// CheckPermissions reports whether appID may invoke rpc at the given
// HMI level, and with which parameters. No matching row means the RPC
// is disallowed at that level.
func (s *Store) CheckPermissions(ctx context.Context, appID, rpc string, level table.HMILevel) (PermissionCheck, error) {
	rows, err := s.db.QueryContext(ctx, checkPermissionsSQL, appID, rpc, string(level))
	if err != nil {
		return PermissionCheck{}, fmt.Errorf("check permissions for %q: %w", appID, err)
	}
	defer rows.Close()

	var result PermissionCheck
	for rows.Next() {
		result.Allowed = true
		var param sql.NullString
		if err := rows.Scan(&param); err != nil {
			return PermissionCheck{}, fmt.Errorf("check permissions for %q: %w", appID, err)
		}
		if param.Valid {
			result.Parameters = append(result.Parameters, param.String)
		}
	}
	if err := rows.Err(); err != nil {
		return PermissionCheck{}, fmt.Errorf("check permissions for %q: %w", appID, err)
	}
	return result, nil
}

// GetPriority returns the stored priority of an application or of the
// reserved "device" entry. An unrepresented application degrades to
// the empty priority with a logged warning, like the other point
// lookups.
func (s *Store) GetPriority(ctx context.Context, appID string) (table.Priority, error) {
	var priority sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT priority FROM application WHERE id = ?", appID).Scan(&priority)
	if err == sql.ErrNoRows {
		s.logger.Warn("priority lookup for unrepresented application", "app_id", appID)
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("priority of %q: %w", appID, err)
	}
	// Revoked entries store no priority.
	return table.Priority(priority.String), nil
}

// ServiceEndpoint is one stored update URL together with the
// application id it was registered under.
type ServiceEndpoint struct {
	AppID string
	URL   string
}

// GetUpdateURLs returns every endpoint stored for the given service,
// in storage order.
func (s *Store) GetUpdateURLs(ctx context.Context, service string) ([]ServiceEndpoint, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT application_id, url FROM endpoint WHERE service = ? ORDER BY rowid", service)
	if err != nil {
		return nil, fmt.Errorf("update urls for %q: %w", service, err)
	}
	defer rows.Close()

	var endpoints []ServiceEndpoint
	for rows.Next() {
		var e ServiceEndpoint
		if err := rows.Scan(&e.AppID, &e.URL); err != nil {
			return nil, fmt.Errorf("update urls for %q: %w", service, err)
		}
		endpoints = append(endpoints, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("update urls for %q: %w", service, err)
	}
	return endpoints, nil
}

// GetLockScreenIconURL returns the lock screen icon endpoint stored
// under the default policy, or "" when none is stored.
func (s *Store) GetLockScreenIconURL(ctx context.Context) (string, error) {
	var url string
	err := s.db.QueryRowContext(ctx,
		"SELECT url FROM endpoint WHERE service = 'lock_screen_icon_url' AND application_id = ? LIMIT 1",
		table.DefaultID).Scan(&url)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("lock screen icon url: %w", err)
	}
	return url, nil
}

// GetNotificationsNumber returns the per-minute notification quota for
// a priority class, zero when the class has no stored quota.
func (s *Store) GetNotificationsNumber(ctx context.Context, priority table.Priority) (int, error) {
	var value int
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM notifications_by_priority WHERE priority = ?",
		string(priority)).Scan(&value)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("notifications number for %q: %w", priority, err)
	}
	return value, nil
}

// GetInitialAppData returns the nicknames and app types stored for an
// application. Both slices are empty, not nil errors, for an unknown
// application.
func (s *Store) GetInitialAppData(ctx context.Context, appID string) (nicknames, appTypes []string, err error) {
	nicknames, err = s.queryStrings(ctx,
		"SELECT name FROM nickname WHERE application_id = ? ORDER BY rowid", appID)
	if err != nil {
		return nil, nil, fmt.Errorf("initial app data for %q: %w", appID, err)
	}
	appTypes, err = s.queryStrings(ctx,
		"SELECT name FROM app_type WHERE application_id = ? ORDER BY rowid", appID)
	if err != nil {
		return nil, nil, fmt.Errorf("initial app data for %q: %w", appID, err)
	}
	return nicknames, appTypes, nil
}

// IsApplicationRepresented reports whether the application has a
// stored policy row of any kind.
func (s *Store) IsApplicationRepresented(ctx context.Context, appID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM application WHERE id = ?", appID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("is represented %q: %w", appID, err)
	}
	return n > 0, nil
}

// IsApplicationRevoked reports whether the application's stored entry
// is the revoked (null) form.
func (s *Store) IsApplicationRevoked(ctx context.Context, appID string) (bool, error) {
	return s.appFlag(ctx, appID, "is_revoked")
}

// IsDefaultPolicy reports whether the application currently runs under
// a copy of the default policy.
func (s *Store) IsDefaultPolicy(ctx context.Context, appID string) (bool, error) {
	return s.appFlag(ctx, appID, "is_default")
}

// IsPredataPolicy reports whether the application currently runs under
// a copy of the pre-data-consent policy.
func (s *Store) IsPredataPolicy(ctx context.Context, appID string) (bool, error) {
	return s.appFlag(ctx, appID, "is_predata")
}

func (s *Store) appFlag(ctx context.Context, appID, column string) (bool, error) {
	// column is always one of the fixed flag names above, never input.
	var flag bool
	err := s.db.QueryRowContext(ctx,
		"SELECT "+column+" FROM application WHERE id = ?", appID).Scan(&flag)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("flag %s of %q: %w", column, appID, err)
	}
	return flag, nil
}

// SetDefaultPolicy replaces an application's policy with a live copy
// of the default policy: the regular fields and the group assignments
// both come from the "default" row, and the preloaded flag is cleared
// because the stored table no longer matches the preloaded document.
func (s *Store) SetDefaultPolicy(ctx context.Context, appID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("set default policy for %q: begin: %w", appID, err)
	}
	defer tx.Rollback()

	if err := clearAppRows(ctx, tx, appID); err != nil {
		return fmt.Errorf("set default policy for %q: %w", appID, err)
	}
	if err := s.setDefaultPolicy(ctx, tx, appID); err != nil {
		return fmt.Errorf("set default policy for %q: %w", appID, err)
	}
	if _, err := tx.ExecContext(ctx, "UPDATE module_config SET preloaded_pt = 0"); err != nil {
		return fmt.Errorf("set default policy for %q: clear preloaded: %w", appID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("set default policy for %q: commit: %w", appID, err)
	}
	return nil
}

// SetPredataPolicy is SetDefaultPolicy with "pre_DataConsent" as the
// source, used before the device owner has consented to data use.
func (s *Store) SetPredataPolicy(ctx context.Context, appID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("set predata policy for %q: begin: %w", appID, err)
	}
	defer tx.Rollback()

	if err := clearAppRows(ctx, tx, appID); err != nil {
		return fmt.Errorf("set predata policy for %q: %w", appID, err)
	}
	if err := s.setPredataPolicy(ctx, tx, appID); err != nil {
		return fmt.Errorf("set predata policy for %q: %w", appID, err)
	}
	if _, err := tx.ExecContext(ctx, "UPDATE module_config SET preloaded_pt = 0"); err != nil {
		return fmt.Errorf("set predata policy for %q: clear preloaded: %w", appID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("set predata policy for %q: commit: %w", appID, err)
	}
	return nil
}

// setDefaultPolicy copies the default row and group links onto appID
// inside an open transaction. Save uses it for reference entries.
func (s *Store) setDefaultPolicy(ctx context.Context, tx *sql.Tx, appID string) error {
	if err := copyApplication(ctx, tx, table.DefaultID, appID); err != nil {
		return err
	}
	if err := copyAppGroups(ctx, tx, table.DefaultID, appID); err != nil {
		return err
	}
	return setIsDefault(ctx, tx, appID, true)
}

func (s *Store) setPredataPolicy(ctx context.Context, tx *sql.Tx, appID string) error {
	if err := copyApplication(ctx, tx, table.PreDataConsentID, appID); err != nil {
		return err
	}
	if err := copyAppGroups(ctx, tx, table.PreDataConsentID, appID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE application SET is_predata = 1, is_default = 0 WHERE id = ?", appID); err != nil {
		return fmt.Errorf("mark %q predata: %w", appID, err)
	}
	return nil
}

// SetIsDefault sets or clears the is_default marker without touching
// the rest of the row.
func (s *Store) SetIsDefault(ctx context.Context, appID string, isDefault bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("set is_default for %q: begin: %w", appID, err)
	}
	defer tx.Rollback()
	if err := setIsDefault(ctx, tx, appID, isDefault); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("set is_default for %q: commit: %w", appID, err)
	}
	return nil
}

func setIsDefault(ctx context.Context, tx *sql.Tx, appID string, isDefault bool) error {
	if _, err := tx.ExecContext(ctx,
		"UPDATE application SET is_default = ?, is_predata = 0 WHERE id = ?",
		isDefault, appID); err != nil {
		return fmt.Errorf("mark %q default=%v: %w", appID, isDefault, err)
	}
	return nil
}

// CopyApplication overwrites the target application row with the
// source row's regular fields. Link rows (groups, nicknames, types)
// are not copied.
func (s *Store) CopyApplication(ctx context.Context, sourceID, targetID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("copy application %q to %q: begin: %w", sourceID, targetID, err)
	}
	defer tx.Rollback()
	if err := copyApplication(ctx, tx, sourceID, targetID); err != nil {
		return fmt.Errorf("copy application %q to %q: %w", sourceID, targetID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("copy application %q to %q: commit: %w", sourceID, targetID, err)
	}
	return nil
}

func copyApplication(ctx context.Context, tx *sql.Tx, sourceID, targetID string) error {
	res, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO application
		(id, priority, is_revoked, is_default, is_predata, memory_kb, heart_beat_timeout_ms, certificate)
		SELECT ?, priority, is_revoked, is_default, is_predata, memory_kb, heart_beat_timeout_ms, certificate
		FROM application WHERE id = ?`, targetID, sourceID)
	if err != nil {
		return fmt.Errorf("copy row: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("copy row: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("source application %q not represented", sourceID)
	}
	return nil
}

func copyAppGroups(ctx context.Context, tx *sql.Tx, sourceID, targetID string) error {
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM app_group WHERE application_id = ?", targetID); err != nil {
		return fmt.Errorf("clear groups of %q: %w", targetID, err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO app_group (application_id, functional_group_id)
		SELECT ?, functional_group_id FROM app_group WHERE application_id = ?`,
		targetID, sourceID); err != nil {
		return fmt.Errorf("copy groups of %q: %w", sourceID, err)
	}
	return nil
}

func clearAppRows(ctx context.Context, tx *sql.Tx, appID string) error {
	for _, stmt := range []string{
		"DELETE FROM app_group WHERE application_id = ?",
		"DELETE FROM nickname WHERE application_id = ?",
		"DELETE FROM app_type WHERE application_id = ?",
		"DELETE FROM request_type WHERE application_id = ?",
	} {
		if _, err := tx.ExecContext(ctx, stmt, appID); err != nil {
			return fmt.Errorf("%s: %w", stmt, err)
		}
	}
	return nil
}

// SaveApplicationCustomData updates the three policy-state markers of
// an application row in place.
func (s *Store) SaveApplicationCustomData(ctx context.Context, appID string, revoked, isDefault, predata bool) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE application SET is_revoked = ?, is_default = ?, is_predata = ? WHERE id = ?",
		revoked, isDefault, predata, appID)
	if err != nil {
		return fmt.Errorf("custom data for %q: %w", appID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("custom data for %q: %w", appID, err)
	}
	if n == 0 {
		return fmt.Errorf("custom data for %q: application not represented", appID)
	}
	return nil
}

// SetPreloaded sets the preloaded_pt marker in module config.
func (s *Store) SetPreloaded(ctx context.Context, preloaded bool) error {
	if _, err := s.db.ExecContext(ctx,
		"UPDATE module_config SET preloaded_pt = ?", preloaded); err != nil {
		return fmt.Errorf("set preloaded: %w", err)
	}
	return nil
}

// IsPTPreloaded reports whether the stored table still matches the
// preloaded document.
func (s *Store) IsPTPreloaded(ctx context.Context) (bool, error) {
	var preloaded bool
	err := s.db.QueryRowContext(ctx,
		"SELECT preloaded_pt FROM module_config").Scan(&preloaded)
	if err != nil {
		return false, fmt.Errorf("is preloaded: %w", err)
	}
	return preloaded, nil
}

func (s *Store) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, rows.Err()
}
