package store

import (
	"context"
	"database/sql"

	"github.com/carlink/policydb/internal/table"
)

// GenerateSnapshot assembles the stored policy table back into a
// document, section by section. Gathers are best effort: a section
// that cannot be read is logged and left at its zero value, the
// snapshot itself is always produced. Callers that need hard
// guarantees validate the result.
func (s *Store) GenerateSnapshot(ctx context.Context) *table.PolicyDocument {
	doc := &table.PolicyDocument{}
	doc.ModuleConfig = s.gatherModuleConfig(ctx)
	doc.ModuleMeta = s.gatherModuleMeta(ctx)
	doc.UsageAndErrorCounts = s.gatherUsageAndErrorCounts(ctx)
	doc.DeviceData = s.gatherDeviceData(ctx)
	doc.FunctionalGroupings = s.gatherFunctionalGroupings(ctx)
	doc.ConsumerFriendlyMessages = s.gatherConsumerFriendlyMessages(ctx)
	doc.AppPolicies = s.gatherAppPolicies(ctx)
	return doc
}

func (s *Store) gatherModuleConfig(ctx context.Context) table.ModuleConfig {
	var config table.ModuleConfig
	var make_, model, year, date, cert sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT preloaded_pt, exchange_after_x_ignition_cycles,
			exchange_after_x_kilometers, exchange_after_x_days,
			timeout_after_x_seconds, vehicle_make, vehicle_model,
			vehicle_year, preloaded_date, certificate
		FROM module_config`).Scan(
		&config.PreloadedPT,
		&config.ExchangeAfterXIgnitionCycles,
		&config.ExchangeAfterXKilometers,
		&config.ExchangeAfterXDays,
		&config.TimeoutAfterXSeconds,
		&make_, &model, &year, &date, &cert)
	if err != nil {
		s.logger.Warn("module config unavailable, snapshot uses defaults", "error", err)
		return config
	}
	config.VehicleMake = nullText(make_)
	config.VehicleModel = nullText(model)
	config.VehicleYear = nullText(year)
	config.PreloadedDate = nullText(date)
	config.Certificate = nullText(cert)

	seconds, err := s.SecondsBetweenRetries(ctx)
	if err != nil {
		s.logger.Warn("retry schedule unavailable, snapshot omits it", "error", err)
	}
	config.SecondsBetweenRetries = seconds
	config.Endpoints = s.gatherEndpoints(ctx)
	config.NotificationsPerMinuteByPriority = s.gatherNotificationLimits(ctx)
	return config
}

func (s *Store) gatherEndpoints(ctx context.Context) map[string]map[string][]string {
	rows, err := s.db.QueryContext(ctx,
		"SELECT service, application_id, url FROM endpoint ORDER BY rowid")
	if err != nil {
		s.logger.Warn("endpoints unavailable, snapshot omits them", "error", err)
		return nil
	}
	defer rows.Close()

	endpoints := make(map[string]map[string][]string)
	for rows.Next() {
		var service, appID, url string
		if err := rows.Scan(&service, &appID, &url); err != nil {
			s.logger.Warn("endpoint row unreadable", "error", err)
			return endpoints
		}
		apps := endpoints[service]
		if apps == nil {
			apps = make(map[string][]string)
			endpoints[service] = apps
		}
		apps[appID] = append(apps[appID], url)
	}
	if err := rows.Err(); err != nil {
		s.logger.Warn("endpoint scan interrupted", "error", err)
	}
	return endpoints
}

func (s *Store) gatherNotificationLimits(ctx context.Context) map[table.Priority]int {
	rows, err := s.db.QueryContext(ctx,
		"SELECT priority, value FROM notifications_by_priority")
	if err != nil {
		s.logger.Warn("notification limits unavailable, snapshot omits them", "error", err)
		return nil
	}
	defer rows.Close()

	limits := make(map[table.Priority]int)
	for rows.Next() {
		var priority string
		var value int
		if err := rows.Scan(&priority, &value); err != nil {
			s.logger.Warn("notification limit row unreadable", "error", err)
			return limits
		}
		limits[table.Priority(priority)] = value
	}
	if err := rows.Err(); err != nil {
		s.logger.Warn("notification limit scan interrupted", "error", err)
	}
	return limits
}

func (s *Store) gatherModuleMeta(ctx context.Context) table.ModuleMeta {
	var meta table.ModuleMeta
	err := s.db.QueryRowContext(ctx,
		`SELECT pt_exchanged_at_odometer_x, pt_exchanged_x_days_after_epoch,
			ignition_cycles_since_last_exchange
		FROM module_meta`).Scan(
		&meta.PTExchangedAtOdometerX,
		&meta.PTExchangedXDaysAfterEpoch,
		&meta.IgnitionCyclesSinceLastExchange)
	if err != nil {
		s.logger.Warn("module meta unavailable, snapshot uses zeros", "error", err)
	}
	return meta
}

func (s *Store) gatherUsageAndErrorCounts(ctx context.Context) table.UsageAndErrorCounts {
	apps, err := s.queryStrings(ctx,
		"SELECT application_id FROM app_level ORDER BY rowid")
	if err != nil {
		s.logger.Warn("usage counts unavailable, snapshot omits them", "error", err)
	}
	return table.UsageAndErrorCounts{AppLevels: apps}
}

func (s *Store) gatherDeviceData(ctx context.Context) []string {
	devices, err := s.queryStrings(ctx,
		"SELECT device_id FROM device_data ORDER BY rowid")
	if err != nil {
		s.logger.Warn("device data unavailable, snapshot omits it", "error", err)
	}
	return devices
}

// gatherFunctionalGroupings reads groups and their permission rows.
// Permission rows were stored as a cross-product, so levels and
// parameters are re-accumulated first-seen-unique in rpc.id order,
// which reproduces the order they were saved in.
func (s *Store) gatherFunctionalGroupings(ctx context.Context) map[string]table.FunctionalGroup {
	groupRows, err := s.db.QueryContext(ctx,
		"SELECT id, name, user_consent_prompt FROM functional_group ORDER BY name")
	if err != nil {
		s.logger.Warn("functional groups unavailable, snapshot omits them", "error", err)
		return nil
	}
	defer groupRows.Close()

	type groupInfo struct {
		name   string
		prompt sql.NullString
	}
	byID := make(map[int64]groupInfo)
	for groupRows.Next() {
		var id int64
		var info groupInfo
		if err := groupRows.Scan(&id, &info.name, &info.prompt); err != nil {
			s.logger.Warn("functional group row unreadable", "error", err)
			return nil
		}
		byID[id] = info
	}
	if err := groupRows.Err(); err != nil {
		s.logger.Warn("functional group scan interrupted", "error", err)
		return nil
	}

	groups := make(map[string]table.FunctionalGroup, len(byID))
	for id, info := range byID {
		group := table.FunctionalGroup{RPCs: s.gatherRPCs(ctx, id)}
		if info.prompt.Valid {
			prompt := info.prompt.String
			group.UserConsentPrompt = &prompt
		}
		groups[info.name] = group
	}
	return groups
}

func (s *Store) gatherRPCs(ctx context.Context, groupID int64) map[string]table.RPCRule {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, hmi_level, parameter FROM rpc
		WHERE functional_group_id = ? ORDER BY id`, groupID)
	if err != nil {
		s.logger.Warn("rpc rows unavailable", "group_id", groupID, "error", err)
		return map[string]table.RPCRule{}
	}
	defer rows.Close()

	rpcs := make(map[string]table.RPCRule)
	for rows.Next() {
		var name, level string
		var param sql.NullString
		if err := rows.Scan(&name, &level, &param); err != nil {
			s.logger.Warn("rpc row unreadable", "group_id", groupID, "error", err)
			return rpcs
		}
		rule := rpcs[name]
		rule.HMILevels = appendUnique(rule.HMILevels, table.HMILevel(level))
		if param.Valid {
			rule.Parameters = appendUnique(rule.Parameters, param.String)
		}
		rpcs[name] = rule
	}
	if err := rows.Err(); err != nil {
		s.logger.Warn("rpc scan interrupted", "group_id", groupID, "error", err)
	}
	return rpcs
}

func appendUnique[T comparable](values []T, v T) []T {
	for _, existing := range values {
		if existing == v {
			return values
		}
	}
	return append(values, v)
}

// gatherConsumerFriendlyMessages reports only the stored version.
// Message bodies live outside this layer, so the snapshot never
// claims a messages section it cannot faithfully reproduce.
func (s *Store) gatherConsumerFriendlyMessages(ctx context.Context) table.ConsumerFriendlyMessages {
	var version string
	err := s.db.QueryRowContext(ctx,
		"SELECT number FROM version").Scan(&version)
	if err != nil {
		s.logger.Warn("messages version unavailable, snapshot uses empty", "error", err)
	}
	return table.ConsumerFriendlyMessages{Version: version}
}

func (s *Store) gatherAppPolicies(ctx context.Context) table.AppPolicies {
	policies := table.AppPolicies{Apps: make(map[string]table.AppEntry)}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, priority, is_revoked, is_default, is_predata,
			memory_kb, heart_beat_timeout_ms, certificate
		FROM application ORDER BY id`)
	if err != nil {
		s.logger.Warn("application policies unavailable, snapshot omits them", "error", err)
		return policies
	}
	defer rows.Close()

	type appRow struct {
		id                            string
		priority, certificate         sql.NullString
		revoked, isDefault, isPredata bool
		memoryKB                      int
		heartBeat                     int64
	}
	var apps []appRow
	for rows.Next() {
		var row appRow
		if err := rows.Scan(&row.id, &row.priority, &row.revoked,
			&row.isDefault, &row.isPredata, &row.memoryKB,
			&row.heartBeat, &row.certificate); err != nil {
			s.logger.Warn("application row unreadable", "error", err)
			return policies
		}
		apps = append(apps, row)
	}
	if err := rows.Err(); err != nil {
		s.logger.Warn("application scan interrupted", "error", err)
		return policies
	}

	for _, row := range apps {
		if row.id == table.DeviceID {
			policies.Device = table.DevicePolicy{Priority: table.Priority(row.priority.String)}
			continue
		}
		switch {
		case row.revoked:
			policies.Apps[row.id] = table.NullEntry()
		case row.isDefault && row.id != table.DefaultID:
			policies.Apps[row.id] = table.RefEntry(table.DefaultID)
		case row.isPredata && row.id != table.PreDataConsentID:
			policies.Apps[row.id] = table.RefEntry(table.PreDataConsentID)
		default:
			params := table.AppParams{
				Priority:           table.Priority(row.priority.String),
				MemoryKB:           row.memoryKB,
				HeartBeatTimeoutMS: uint32(row.heartBeat),
			}
			if row.certificate.Valid {
				cert := row.certificate.String
				params.Certificate = &cert
			}
			params.Groups = s.gatherAppGroupNames(ctx, row.id)
			params.Nicknames, params.AppTypes = s.gatherInitialData(ctx, row.id)
			params.RequestTypes = s.gatherRequestTypes(ctx, row.id)
			policies.Apps[row.id] = table.FullEntry(params)
		}
	}
	return policies
}

// gatherAppGroupNames reads an application's groups in the order they
// were saved. Group assignment is an ordered list, and app_group rowids
// carry the document order.
func (s *Store) gatherAppGroupNames(ctx context.Context, appID string) []string {
	groups, err := s.queryStrings(ctx,
		`SELECT functional_group.name FROM app_group
		JOIN functional_group ON functional_group.id = app_group.functional_group_id
		WHERE app_group.application_id = ? ORDER BY app_group.rowid`, appID)
	if err != nil {
		s.logger.Warn("app groups unavailable", "app_id", appID, "error", err)
	}
	return groups
}

func (s *Store) gatherInitialData(ctx context.Context, appID string) (nicknames, appTypes []string) {
	nicknames, appTypes, err := s.GetInitialAppData(ctx, appID)
	if err != nil {
		s.logger.Warn("initial app data unavailable", "app_id", appID, "error", err)
	}
	return nicknames, appTypes
}

func (s *Store) gatherRequestTypes(ctx context.Context, appID string) []string {
	types, err := s.queryStrings(ctx,
		"SELECT request_type FROM request_type WHERE application_id = ? ORDER BY rowid", appID)
	if err != nil {
		s.logger.Warn("request types unavailable", "app_id", appID, "error", err)
	}
	return types
}

func nullText(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	text := v.String
	return &text
}
