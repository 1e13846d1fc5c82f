package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"golang.org/x/text/language"

	"github.com/carlink/policydb/internal/table"
)

// Save replaces the persisted policy table with doc, table by table,
// inside one transaction. Either every step succeeds and the result
// is committed, or the transaction is rolled back and the previous
// state stays observable: callers must treat any returned error as
// "not applied".
//
// Ordering inside the transaction is load-bearing: functional groups
// and their permission rows go first (application group links resolve
// against them), and within the application section the predefined
// "default" and "pre_DataConsent" policies precede ordinary
// applications, which may copy their entire permission set from the
// "default" row.
func (s *Store) Save(ctx context.Context, doc *table.PolicyDocument) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save policy table: begin: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if err := s.saveFunctionalGroupings(ctx, tx, doc.FunctionalGroupings); err != nil {
		return fmt.Errorf("save policy table: %w", err)
	}
	if err := s.saveAppPolicies(ctx, tx, doc.AppPolicies); err != nil {
		return fmt.Errorf("save policy table: %w", err)
	}
	if err := s.saveModuleConfig(ctx, tx, doc.ModuleConfig); err != nil {
		return fmt.Errorf("save policy table: %w", err)
	}
	if err := s.saveConsumerFriendlyMessages(ctx, tx, doc.ConsumerFriendlyMessages); err != nil {
		return fmt.Errorf("save policy table: %w", err)
	}
	if err := s.saveDeviceData(ctx, tx, doc.DeviceData); err != nil {
		return fmt.Errorf("save policy table: %w", err)
	}
	if err := s.saveUsageAndErrorCounts(ctx, tx, doc.UsageAndErrorCounts); err != nil {
		return fmt.Errorf("save policy table: %w", err)
	}
	if err := s.saveModuleMeta(ctx, tx, doc.ModuleMeta); err != nil {
		return fmt.Errorf("save policy table: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save policy table: commit: %w", err)
	}
	return nil
}

// saveFunctionalGroupings drops all group and permission rows and
// re-inserts them. The group id is a hash of the name, so ids stay
// identical across the drop+recreate and application group links keep
// resolving.
func (s *Store) saveFunctionalGroupings(ctx context.Context, tx *sql.Tx, groups map[string]table.FunctionalGroup) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM rpc"); err != nil {
		return fmt.Errorf("delete rpc rows: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM functional_group"); err != nil {
		return fmt.Errorf("delete functional groups: %w", err)
	}

	insert, err := tx.PrepareContext(ctx,
		"INSERT INTO functional_group (id, name, user_consent_prompt) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("prepare functional group insert: %w", err)
	}
	defer insert.Close()

	for _, name := range sortedKeys(groups) {
		group := groups[name]
		id := table.GroupID(name)

		var prompt any
		if group.UserConsentPrompt != nil {
			prompt = *group.UserConsentPrompt
		}
		if _, err := insert.ExecContext(ctx, id, name, prompt); err != nil {
			return fmt.Errorf("insert functional group %q: %w", name, err)
		}

		if err := s.saveRPCs(ctx, tx, id, group.RPCs); err != nil {
			return fmt.Errorf("group %q: %w", name, err)
		}
	}
	return nil
}

// saveRPCs materializes one group's rules into permission rows: the
// cross-product of hmi_levels × parameters per rpc, or plain
// (rpc, hmi_level) rows when the rule has no parameters.
func (s *Store) saveRPCs(ctx context.Context, tx *sql.Tx, groupID int64, rules map[string]table.RPCRule) error {
	plain, err := tx.PrepareContext(ctx,
		"INSERT INTO rpc (name, hmi_level, functional_group_id) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("prepare rpc insert: %w", err)
	}
	defer plain.Close()

	withParam, err := tx.PrepareContext(ctx,
		"INSERT INTO rpc (name, hmi_level, parameter, functional_group_id) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("prepare parameterized rpc insert: %w", err)
	}
	defer withParam.Close()

	for _, rpcName := range sortedKeys(rules) {
		rule := rules[rpcName]
		for _, level := range rule.HMILevels {
			if len(rule.Parameters) == 0 {
				if _, err := plain.ExecContext(ctx, rpcName, string(level), groupID); err != nil {
					return fmt.Errorf("insert rpc %q: %w", rpcName, err)
				}
				continue
			}
			for _, param := range rule.Parameters {
				if _, err := withParam.ExecContext(ctx, rpcName, string(level), param, groupID); err != nil {
					return fmt.Errorf("insert rpc %q parameter %q: %w", rpcName, param, err)
				}
			}
		}
	}
	return nil
}

// saveAppPolicies replaces the application section. Predefined
// policies are saved before ordinary applications and skipped in the
// main loop.
func (s *Store) saveAppPolicies(ctx context.Context, tx *sql.Tx, policies table.AppPolicies) error {
	for _, stmt := range []string{
		"DELETE FROM app_group",
		"DELETE FROM nickname",
		"DELETE FROM app_type",
		"DELETE FROM application",
		"DELETE FROM request_type",
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: %w", stmt, err)
		}
	}

	if entry, ok := policies.Apps[table.DefaultID]; ok {
		if err := s.saveAppEntry(ctx, tx, table.DefaultID, entry); err != nil {
			return err
		}
	}
	if entry, ok := policies.Apps[table.PreDataConsentID]; ok {
		if err := s.saveAppEntry(ctx, tx, table.PreDataConsentID, entry); err != nil {
			return err
		}
	}
	if err := s.saveDevicePolicy(ctx, tx, policies.Device); err != nil {
		return err
	}

	for _, appID := range sortedKeys(policies.Apps) {
		if appID == table.DefaultID || appID == table.PreDataConsentID {
			continue
		}
		if err := s.saveAppEntry(ctx, tx, appID, policies.Apps[appID]); err != nil {
			return err
		}
	}
	return nil
}

const insertApplicationSQL = `INSERT OR REPLACE INTO application
	(id, priority, is_revoked, is_default, is_predata, memory_kb, heart_beat_timeout_ms, certificate)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

// saveAppEntry writes one tagged application entry. Null entries
// store only the revoked marker; Ref entries copy the referenced
// predefined policy; Full entries store the regular field set plus
// their link rows.
func (s *Store) saveAppEntry(ctx context.Context, tx *sql.Tx, appID string, entry table.AppEntry) error {
	if err := entry.Check(); err != nil {
		return fmt.Errorf("application %q: %w", appID, err)
	}

	switch entry.Kind {
	case table.EntryNull:
		if _, err := tx.ExecContext(ctx, insertApplicationSQL,
			appID, nil, true, false, false, 0, 0, nil); err != nil {
			return fmt.Errorf("insert revoked application %q: %w", appID, err)
		}
		return nil

	case table.EntryRef:
		// Placeholder row so the copy has a PK to replace; the copied
		// row then carries the predefined policy's regular fields.
		if _, err := tx.ExecContext(ctx, insertApplicationSQL,
			appID, nil, false, false, false, 0, 0, nil); err != nil {
			return fmt.Errorf("insert application %q: %w", appID, err)
		}
		if entry.Ref == table.DefaultID {
			return s.setDefaultPolicy(ctx, tx, appID)
		}
		return s.setPredataPolicy(ctx, tx, appID)
	}

	params := entry.Params
	var cert any
	if params.Certificate != nil {
		cert = *params.Certificate
	}
	if _, err := tx.ExecContext(ctx, insertApplicationSQL,
		appID, string(params.Priority), false, false, false,
		params.MemoryKB, int64(params.HeartBeatTimeoutMS), cert); err != nil {
		return fmt.Errorf("insert application %q: %w", appID, err)
	}

	if err := s.saveAppGroups(ctx, tx, appID, params.Groups); err != nil {
		return err
	}
	if err := saveLinkRows(ctx, tx, "INSERT INTO nickname (application_id, name) VALUES (?, ?)", appID, params.Nicknames); err != nil {
		return fmt.Errorf("nicknames of %q: %w", appID, err)
	}
	if err := saveLinkRows(ctx, tx, "INSERT INTO app_type (application_id, name) VALUES (?, ?)", appID, params.AppTypes); err != nil {
		return fmt.Errorf("app types of %q: %w", appID, err)
	}
	if err := saveLinkRows(ctx, tx, "INSERT INTO request_type (application_id, request_type) VALUES (?, ?)", appID, params.RequestTypes); err != nil {
		return fmt.Errorf("request types of %q: %w", appID, err)
	}
	return nil
}

func (s *Store) saveDevicePolicy(ctx context.Context, tx *sql.Tx, device table.DevicePolicy) error {
	if _, err := tx.ExecContext(ctx, insertApplicationSQL,
		table.DeviceID, string(device.Priority), false, false, false, 0, 0, nil); err != nil {
		return fmt.Errorf("insert device policy: %w", err)
	}
	return nil
}

// saveAppGroups links an application to its groups by name. The id
// subselect fails the save when a group name has no stored group;
// dangling links never reach disk.
func (s *Store) saveAppGroups(ctx context.Context, tx *sql.Tx, appID string, groups []string) error {
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO app_group (application_id, functional_group_id)
		VALUES (?, (SELECT id FROM functional_group WHERE name = ?))`)
	if err != nil {
		return fmt.Errorf("prepare app group insert: %w", err)
	}
	defer stmt.Close()

	for _, group := range groups {
		if _, err := stmt.ExecContext(ctx, appID, group); err != nil {
			return fmt.Errorf("link %q to group %q: %w", appID, group, err)
		}
	}
	return nil
}

func saveLinkRows(ctx context.Context, tx *sql.Tx, query, appID string, values []string) error {
	if len(values) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, value := range values {
		if _, err := stmt.ExecContext(ctx, appID, value); err != nil {
			return fmt.Errorf("insert %q: %w", value, err)
		}
	}
	return nil
}

func (s *Store) saveModuleConfig(ctx context.Context, tx *sql.Tx, config table.ModuleConfig) error {
	if _, err := tx.ExecContext(ctx, `UPDATE module_config SET
		preloaded_pt = ?,
		exchange_after_x_ignition_cycles = ?,
		exchange_after_x_kilometers = ?,
		exchange_after_x_days = ?,
		timeout_after_x_seconds = ?,
		vehicle_make = ?, vehicle_model = ?, vehicle_year = ?,
		preloaded_date = ?, certificate = ?`,
		config.PreloadedPT,
		config.ExchangeAfterXIgnitionCycles,
		config.ExchangeAfterXKilometers,
		config.ExchangeAfterXDays,
		config.TimeoutAfterXSeconds,
		optText(config.VehicleMake), optText(config.VehicleModel), optText(config.VehicleYear),
		optText(config.PreloadedDate), optText(config.Certificate)); err != nil {
		return fmt.Errorf("update module config: %w", err)
	}

	if err := s.saveSecondsBetweenRetries(ctx, tx, config.SecondsBetweenRetries); err != nil {
		return err
	}
	if err := s.saveNotificationLimits(ctx, tx, config.NotificationsPerMinuteByPriority); err != nil {
		return err
	}
	return s.saveServiceEndpoints(ctx, tx, config.Endpoints)
}

func (s *Store) saveSecondsBetweenRetries(ctx context.Context, tx *sql.Tx, seconds []int) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM seconds_between_retry"); err != nil {
		return fmt.Errorf("delete retry seconds: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO seconds_between_retry (idx, value) VALUES (?, ?)")
	if err != nil {
		return fmt.Errorf("prepare retry seconds insert: %w", err)
	}
	defer stmt.Close()

	for i, value := range seconds {
		if _, err := stmt.ExecContext(ctx, i, value); err != nil {
			return fmt.Errorf("insert retry second %d: %w", i, err)
		}
	}
	return nil
}

func (s *Store) saveNotificationLimits(ctx context.Context, tx *sql.Tx, limits map[table.Priority]int) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM notifications_by_priority"); err != nil {
		return fmt.Errorf("delete notification limits: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO notifications_by_priority (priority, value) VALUES (?, ?)")
	if err != nil {
		return fmt.Errorf("prepare notification limit insert: %w", err)
	}
	defer stmt.Close()

	for _, priority := range sortedKeys(limits) {
		if _, err := stmt.ExecContext(ctx, string(priority), limits[priority]); err != nil {
			return fmt.Errorf("insert notification limit %q: %w", priority, err)
		}
	}
	return nil
}

func (s *Store) saveServiceEndpoints(ctx context.Context, tx *sql.Tx, endpoints map[string]map[string][]string) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM endpoint"); err != nil {
		return fmt.Errorf("delete endpoints: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO endpoint (service, url, application_id) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("prepare endpoint insert: %w", err)
	}
	defer stmt.Close()

	for _, service := range sortedKeys(endpoints) {
		apps := endpoints[service]
		for _, appID := range sortedKeys(apps) {
			for _, url := range apps[appID] {
				if _, err := stmt.ExecContext(ctx, service, url, appID); err != nil {
					return fmt.Errorf("insert endpoint %s/%s: %w", service, appID, err)
				}
			}
		}
	}
	return nil
}

// saveConsumerFriendlyMessages persists the messages version and the
// message-type/language markers. Message bodies are never touched
// here, and an absent messages section leaves everything previously
// stored, version included, exactly as it was.
func (s *Store) saveConsumerFriendlyMessages(ctx context.Context, tx *sql.Tx, messages table.ConsumerFriendlyMessages) error {
	if messages.Messages == nil {
		s.logger.Info("messages section absent, stored messages retained")
		return nil
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM message"); err != nil {
		return fmt.Errorf("delete message markers: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "UPDATE version SET number = ?", messages.Version); err != nil {
		return fmt.Errorf("update messages version: %w", err)
	}

	for _, msgType := range sortedKeys(messages.Messages) {
		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO message_type (name) VALUES (?)", msgType); err != nil {
			return fmt.Errorf("insert message type %q: %w", msgType, err)
		}
		for _, code := range messages.Messages[msgType] {
			normalized := normalizeLanguage(code)
			if _, err := tx.ExecContext(ctx,
				"INSERT OR IGNORE INTO language (code) VALUES (?)", normalized); err != nil {
				return fmt.Errorf("insert language %q: %w", normalized, err)
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT OR IGNORE INTO message (message_type_name, language_code) VALUES (?, ?)",
				msgType, normalized); err != nil {
				return fmt.Errorf("insert message marker %s/%s: %w", msgType, normalized, err)
			}
		}
	}
	return nil
}

// normalizeLanguage canonicalizes a language code ("en-US" and "en_us"
// both become "en-us"). Unparseable codes are stored as given: the
// marker tables track what the wire document said, normalization is
// best effort.
func normalizeLanguage(code string) string {
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	return strings.ToLower(tag.String())
}

func (s *Store) saveDeviceData(ctx context.Context, tx *sql.Tx, devices []string) error {
	stmt, err := tx.PrepareContext(ctx,
		"INSERT OR IGNORE INTO device_data (device_id) VALUES (?)")
	if err != nil {
		return fmt.Errorf("prepare device data insert: %w", err)
	}
	defer stmt.Close()

	for _, id := range devices {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			return fmt.Errorf("insert device %q: %w", id, err)
		}
	}
	return nil
}

func (s *Store) saveUsageAndErrorCounts(ctx context.Context, tx *sql.Tx, counts table.UsageAndErrorCounts) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM app_level"); err != nil {
		return fmt.Errorf("delete app levels: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		"INSERT OR IGNORE INTO app_level (application_id) VALUES (?)")
	if err != nil {
		return fmt.Errorf("prepare app level insert: %w", err)
	}
	defer stmt.Close()

	for _, appID := range counts.AppLevels {
		if _, err := stmt.ExecContext(ctx, appID); err != nil {
			return fmt.Errorf("insert app level %q: %w", appID, err)
		}
	}
	return nil
}

func (s *Store) saveModuleMeta(ctx context.Context, tx *sql.Tx, meta table.ModuleMeta) error {
	if _, err := tx.ExecContext(ctx, `UPDATE module_meta SET
		pt_exchanged_at_odometer_x = ?,
		pt_exchanged_x_days_after_epoch = ?,
		ignition_cycles_since_last_exchange = ?`,
		meta.PTExchangedAtOdometerX,
		meta.PTExchangedXDaysAfterEpoch,
		meta.IgnitionCyclesSinceLastExchange); err != nil {
		return fmt.Errorf("update module meta: %w", err)
	}
	return nil
}

func optText(value *string) any {
	if value == nil {
		return nil
	}
	return *value
}
