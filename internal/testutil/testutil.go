// Package testutil provides shared fixtures for store and CLI tests:
// a deterministic sample policy document and a throwaway initialized
// store.
package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/carlink/policydb/internal/store"
	"github.com/carlink/policydb/internal/table"
)

// OpenTestStore opens and initializes a store on a fresh temp-dir
// database. The store is closed when the test finishes.
func OpenTestStore(t *testing.T) *store.Store {
	t.Helper()

	s, err := store.New(store.Config{
		Path: filepath.Join(t.TempDir(), "policy.sqlite"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	result := s.Init(context.Background())
	require.Equal(t, store.InitSuccess, result)
	return s
}

func strptr(s string) *string { return &s }

// SampleDocument builds a small but fully populated policy table:
// two functional groups, the predefined policies, one ordinary
// application, one reference application, and one revoked
// application. Every section of the document is exercised.
func SampleDocument() *table.PolicyDocument {
	return &table.PolicyDocument{
		ModuleConfig: table.ModuleConfig{
			PreloadedPT:                  true,
			ExchangeAfterXIgnitionCycles: 100,
			ExchangeAfterXKilometers:     1800,
			ExchangeAfterXDays:           30,
			TimeoutAfterXSeconds:         60,
			SecondsBetweenRetries:        []int{1, 5, 25, 125, 625},
			Endpoints: map[string]map[string][]string{
				"0x07": {
					table.DefaultID: {"https://policy.example.com/api/v1"},
				},
				"lock_screen_icon_url": {
					table.DefaultID: {"https://policy.example.com/lock.png"},
				},
			},
			NotificationsPerMinuteByPriority: map[table.Priority]int{
				table.PriorityEmergency: 60,
				table.PriorityNormal:    15,
				table.PriorityNone:      0,
			},
			VehicleMake:  strptr("Carlink"),
			VehicleModel: strptr("Roadster"),
			VehicleYear:  strptr("2026"),
		},
		ModuleMeta: table.ModuleMeta{
			PTExchangedAtOdometerX:          1200,
			PTExchangedXDaysAfterEpoch:      19950,
			IgnitionCyclesSinceLastExchange: 7,
		},
		UsageAndErrorCounts: table.UsageAndErrorCounts{
			AppLevels: []string{"media-app-1001"},
		},
		DeviceData: []string{"device-hash-aa01"},
		FunctionalGroupings: map[string]table.FunctionalGroup{
			"Base-4": {
				RPCs: map[string]table.RPCRule{
					"RegisterAppInterface": {
						HMILevels: []table.HMILevel{
							table.HMIFull, table.HMILimited,
							table.HMIBackground, table.HMINone,
						},
					},
					"GetVehicleData": {
						HMILevels:  []table.HMILevel{table.HMIFull, table.HMILimited},
						Parameters: []string{"gps", "speed"},
					},
				},
			},
			"Emergency-1": {
				UserConsentPrompt: strptr("Location"),
				RPCs: map[string]table.RPCRule{
					"GetVehicleData": {
						HMILevels:  []table.HMILevel{table.HMIBackground},
						Parameters: []string{"fuelLevel"},
					},
				},
			},
		},
		ConsumerFriendlyMessages: table.ConsumerFriendlyMessages{
			Version: "001.001.025",
			Messages: map[string][]string{
				"AppPermissions": {"en-us", "de-de"},
				"DataConsent":    {"en-us"},
			},
		},
		AppPolicies: table.AppPolicies{
			Device: table.DevicePolicy{Priority: table.PriorityNone},
			Apps: map[string]table.AppEntry{
				table.DefaultID: table.FullEntry(table.AppParams{
					Priority:           table.PriorityNone,
					MemoryKB:           5,
					HeartBeatTimeoutMS: 500,
					Groups:             []string{"Base-4"},
				}),
				table.PreDataConsentID: table.FullEntry(table.AppParams{
					Priority:           table.PriorityNone,
					MemoryKB:           5,
					HeartBeatTimeoutMS: 500,
					Groups:             []string{"Base-4"},
				}),
				"media-app-1001": table.FullEntry(table.AppParams{
					Priority:           table.PriorityNormal,
					MemoryKB:           25,
					HeartBeatTimeoutMS: 1000,
					Groups:             []string{"Base-4", "Emergency-1"},
					Nicknames:          []string{"Media Player"},
					AppTypes:           []string{"MEDIA"},
					RequestTypes:       []string{"HTTP"},
				}),
				"nav-app-2002":     table.RefEntry(table.DefaultID),
				"revoked-app-3003": table.NullEntry(),
			},
		},
	}
}
