package store_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carlink/policydb/internal/store"
	"github.com/carlink/policydb/internal/table"
	"github.com/carlink/policydb/internal/testutil"
)

func TestInitFreshDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.sqlite")
	s, err := store.New(store.Config{Path: path})
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, store.InitSuccess, s.Init(context.Background()))
}

func TestInitExistingDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.sqlite")
	ctx := context.Background()

	first, err := store.New(store.Config{Path: path})
	require.NoError(t, err)
	require.Equal(t, store.InitSuccess, first.Init(ctx))
	require.NoError(t, first.Close())

	second, err := store.New(store.Config{Path: path})
	require.NoError(t, err)
	defer second.Close()
	assert.Equal(t, store.InitExists, second.Init(ctx))
}

func TestInitCorruptDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.sqlite")
	// A file that is not SQLite at all fails before integrity checks.
	require.NoError(t, os.WriteFile(path, []byte("not a database, not even close"), 0o644))

	var slept int
	s, err := store.New(store.Config{
		Path:         path,
		OpenAttempts: 3,
		Sleep:        func(time.Duration) { slept++ },
	})
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, store.InitFail, s.Init(context.Background()))
	assert.Equal(t, 3, slept)
}

func TestSaveSnapshotRoundTrip(t *testing.T) {
	s := testutil.OpenTestStore(t)
	ctx := context.Background()
	doc := testutil.SampleDocument()

	require.NoError(t, s.Save(ctx, doc))
	snap := s.GenerateSnapshot(ctx)

	assert.Equal(t, doc.ModuleConfig, snap.ModuleConfig)
	assert.Equal(t, doc.ModuleMeta, snap.ModuleMeta)
	assert.Equal(t, doc.UsageAndErrorCounts, snap.UsageAndErrorCounts)
	assert.Equal(t, doc.DeviceData, snap.DeviceData)
	assert.Equal(t, doc.FunctionalGroupings, snap.FunctionalGroupings)
	assert.Equal(t, doc.AppPolicies, snap.AppPolicies)

	// Message bodies live outside this layer; only the version comes
	// back.
	assert.Equal(t, doc.ConsumerFriendlyMessages.Version, snap.ConsumerFriendlyMessages.Version)
	assert.Nil(t, snap.ConsumerFriendlyMessages.Messages)
}

func TestSnapshotKeepsGroupAssignmentOrder(t *testing.T) {
	s := testutil.OpenTestStore(t)
	ctx := context.Background()

	// Group assignment order is part of the document; a snapshot must
	// reproduce it even when it is not alphabetical.
	doc := testutil.SampleDocument()
	entry := doc.AppPolicies.Apps["media-app-1001"]
	entry.Params.Groups = []string{"Emergency-1", "Base-4"}
	doc.AppPolicies.Apps["media-app-1001"] = entry
	require.NoError(t, s.Save(ctx, doc))

	snap := s.GenerateSnapshot(ctx)
	got := snap.AppPolicies.Apps["media-app-1001"]
	require.Equal(t, table.EntryFull, got.Kind)
	assert.Equal(t, []string{"Emergency-1", "Base-4"}, got.Params.Groups)
	assert.Equal(t, doc.AppPolicies, snap.AppPolicies)
}

func TestSaveRollsBackOnDanglingGroup(t *testing.T) {
	s := testutil.OpenTestStore(t)
	ctx := context.Background()

	good := testutil.SampleDocument()
	require.NoError(t, s.Save(ctx, good))

	bad := testutil.SampleDocument()
	entry := bad.AppPolicies.Apps["media-app-1001"]
	entry.Params.Groups = append(entry.Params.Groups, "NoSuchGroup")
	bad.AppPolicies.Apps["media-app-1001"] = entry

	require.Error(t, s.Save(ctx, bad))

	// The failed save must leave the previously committed table
	// intact.
	snap := s.GenerateSnapshot(ctx)
	assert.Equal(t, good.FunctionalGroupings, snap.FunctionalGroupings)
	assert.Equal(t, good.AppPolicies, snap.AppPolicies)
}

func TestSaveAbsentMessagesSectionRetainsVersion(t *testing.T) {
	s := testutil.OpenTestStore(t)
	ctx := context.Background()

	withMessages := testutil.SampleDocument()
	require.NoError(t, s.Save(ctx, withMessages))

	without := testutil.SampleDocument()
	without.ConsumerFriendlyMessages = table.ConsumerFriendlyMessages{}
	require.NoError(t, s.Save(ctx, without))

	snap := s.GenerateSnapshot(ctx)
	assert.Equal(t, "001.001.025", snap.ConsumerFriendlyMessages.Version)
}

func TestCheckPermissions(t *testing.T) {
	s := testutil.OpenTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, testutil.SampleDocument()))

	t.Run("allowed with parameters", func(t *testing.T) {
		result, err := s.CheckPermissions(ctx, "media-app-1001", "GetVehicleData", table.HMIFull)
		require.NoError(t, err)
		assert.True(t, result.Allowed)
		assert.Equal(t, []string{"gps", "speed"}, result.Parameters)
	})

	t.Run("level granted by second group only", func(t *testing.T) {
		result, err := s.CheckPermissions(ctx, "media-app-1001", "GetVehicleData", table.HMIBackground)
		require.NoError(t, err)
		assert.True(t, result.Allowed)
		assert.Equal(t, []string{"fuelLevel"}, result.Parameters)
	})

	t.Run("disallowed level", func(t *testing.T) {
		result, err := s.CheckPermissions(ctx, "media-app-1001", "GetVehicleData", table.HMINone)
		require.NoError(t, err)
		assert.False(t, result.Allowed)
		assert.Empty(t, result.Parameters)
	})

	t.Run("unknown application", func(t *testing.T) {
		result, err := s.CheckPermissions(ctx, "ghost-app", "GetVehicleData", table.HMIFull)
		require.NoError(t, err)
		assert.False(t, result.Allowed)
	})

	t.Run("reference entry inherits default groups", func(t *testing.T) {
		result, err := s.CheckPermissions(ctx, "nav-app-2002", "RegisterAppInterface", table.HMIFull)
		require.NoError(t, err)
		assert.True(t, result.Allowed)
	})
}

func TestCheckPermissionsKeepsDuplicateParameters(t *testing.T) {
	s := testutil.OpenTestStore(t)
	ctx := context.Background()

	doc := testutil.SampleDocument()
	doc.FunctionalGroupings["Location-1"] = table.FunctionalGroup{
		RPCs: map[string]table.RPCRule{
			"GetVehicleData": {
				HMILevels:  []table.HMILevel{table.HMIFull},
				Parameters: []string{"gps"},
			},
		},
	}
	entry := doc.AppPolicies.Apps["media-app-1001"]
	entry.Params.Groups = append(entry.Params.Groups, "Location-1")
	doc.AppPolicies.Apps["media-app-1001"] = entry
	require.NoError(t, s.Save(ctx, doc))

	result, err := s.CheckPermissions(ctx, "media-app-1001", "GetVehicleData", table.HMIFull)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	// Both groups grant gps at FULL; the overlap is reported as-is.
	assert.ElementsMatch(t, []string{"gps", "speed", "gps"}, result.Parameters)
}

func TestExchangeCountdowns(t *testing.T) {
	s := testutil.OpenTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, testutil.SampleDocument()))

	t.Run("ignition cycles", func(t *testing.T) {
		// limit 100, 7 cycles recorded since the last exchange
		assert.Equal(t, 93, s.IgnitionCyclesBeforeExchange(ctx))

		require.NoError(t, s.IncrementIgnitionCycles(ctx))
		assert.Equal(t, 92, s.IgnitionCyclesBeforeExchange(ctx))

		require.NoError(t, s.ResetIgnitionCycles(ctx))
		assert.Equal(t, 100, s.IgnitionCyclesBeforeExchange(ctx))
	})

	t.Run("kilometers", func(t *testing.T) {
		// limit 1800, last exchange at odometer 1200
		assert.Equal(t, 1700, s.KilometersBeforeExchange(ctx, 1300))
		assert.Equal(t, 0, s.KilometersBeforeExchange(ctx, 3200))
		// Odometer behind the recorded exchange point is inconsistent.
		assert.Equal(t, 0, s.KilometersBeforeExchange(ctx, 1000))
	})

	t.Run("days", func(t *testing.T) {
		// limit 30, last exchange on day 19950
		assert.Equal(t, 20, s.DaysBeforeExchange(ctx, 19960))
		assert.Equal(t, 0, s.DaysBeforeExchange(ctx, 19990))
		assert.Equal(t, 0, s.DaysBeforeExchange(ctx, 19940))
	})

	t.Run("days with no exchange recorded", func(t *testing.T) {
		require.NoError(t, s.SetCountersPassedForSuccessfulUpdate(ctx, 0, 0))
		assert.Equal(t, 30, s.DaysBeforeExchange(ctx, 19960))
	})
}

func TestSetCountersPassedForSuccessfulUpdate(t *testing.T) {
	s := testutil.OpenTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, testutil.SampleDocument()))

	require.NoError(t, s.SetCountersPassedForSuccessfulUpdate(ctx, 5000, 20000))
	assert.Equal(t, 100, s.IgnitionCyclesBeforeExchange(ctx))
	assert.Equal(t, 1800, s.KilometersBeforeExchange(ctx, 5000))
	assert.Equal(t, 30, s.DaysBeforeExchange(ctx, 20000))
}

func TestTimeoutResponse(t *testing.T) {
	s := testutil.OpenTestStore(t)
	ctx := context.Background()

	doc := testutil.SampleDocument()
	require.NoError(t, s.Save(ctx, doc))
	assert.Equal(t, 60, s.TimeoutResponse(ctx))

	doc.ModuleConfig.TimeoutAfterXSeconds = 0
	require.NoError(t, s.Save(ctx, doc))
	assert.Equal(t, 30, s.TimeoutResponse(ctx))
}

func TestSecondsBetweenRetries(t *testing.T) {
	s := testutil.OpenTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, testutil.SampleDocument()))

	seconds, err := s.SecondsBetweenRetries(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 5, 25, 125, 625}, seconds)
}

func TestSetDefaultPolicy(t *testing.T) {
	s := testutil.OpenTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, testutil.SampleDocument()))

	require.NoError(t, s.SetDefaultPolicy(ctx, "media-app-1001"))

	isDefault, err := s.IsDefaultPolicy(ctx, "media-app-1001")
	require.NoError(t, err)
	assert.True(t, isDefault)

	priority, err := s.GetPriority(ctx, "media-app-1001")
	require.NoError(t, err)
	assert.Equal(t, table.PriorityNone, priority)

	// The app now carries only the default policy's groups.
	result, err := s.CheckPermissions(ctx, "media-app-1001", "GetVehicleData", table.HMIBackground)
	require.NoError(t, err)
	assert.False(t, result.Allowed)

	// Assigning a default policy diverges from the preloaded table.
	preloaded, err := s.IsPTPreloaded(ctx)
	require.NoError(t, err)
	assert.False(t, preloaded)
}

func TestSetDefaultPolicyUnknownSource(t *testing.T) {
	s := testutil.OpenTestStore(t)
	ctx := context.Background()

	doc := testutil.SampleDocument()
	delete(doc.AppPolicies.Apps, table.DefaultID)
	delete(doc.AppPolicies.Apps, "nav-app-2002")
	require.NoError(t, s.Save(ctx, doc))

	assert.Error(t, s.SetDefaultPolicy(ctx, "media-app-1001"))
}

func TestApplicationQueries(t *testing.T) {
	s := testutil.OpenTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, testutil.SampleDocument()))

	represented, err := s.IsApplicationRepresented(ctx, "media-app-1001")
	require.NoError(t, err)
	assert.True(t, represented)

	represented, err = s.IsApplicationRepresented(ctx, "ghost-app")
	require.NoError(t, err)
	assert.False(t, represented)

	revoked, err := s.IsApplicationRevoked(ctx, "revoked-app-3003")
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, err = s.IsApplicationRevoked(ctx, "media-app-1001")
	require.NoError(t, err)
	assert.False(t, revoked)

	nicknames, appTypes, err := s.GetInitialAppData(ctx, "media-app-1001")
	require.NoError(t, err)
	assert.Equal(t, []string{"Media Player"}, nicknames)
	assert.Equal(t, []string{"MEDIA"}, appTypes)
}

func TestDevicePriority(t *testing.T) {
	s := testutil.OpenTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, testutil.SampleDocument()))

	priority, err := s.GetPriority(ctx, table.DeviceID)
	require.NoError(t, err)
	assert.Equal(t, table.PriorityNone, priority)
}

func TestGetPriorityUnknownApplication(t *testing.T) {
	s := testutil.OpenTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, testutil.SampleDocument()))

	// A missing row is not a failure; the lookup degrades to the
	// empty priority.
	priority, err := s.GetPriority(ctx, "ghost-app")
	require.NoError(t, err)
	assert.Equal(t, table.Priority(""), priority)
}

func TestEndpointQueries(t *testing.T) {
	s := testutil.OpenTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, testutil.SampleDocument()))

	endpoints, err := s.GetUpdateURLs(ctx, "0x07")
	require.NoError(t, err)
	require.Len(t, endpoints, 1)
	assert.Equal(t, "default", endpoints[0].AppID)
	assert.Equal(t, "https://policy.example.com/api/v1", endpoints[0].URL)

	icon, err := s.GetLockScreenIconURL(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://policy.example.com/lock.png", icon)

	none, err := s.GetUpdateURLs(ctx, "0x99")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestGetNotificationsNumber(t *testing.T) {
	s := testutil.OpenTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, testutil.SampleDocument()))

	n, err := s.GetNotificationsNumber(ctx, table.PriorityEmergency)
	require.NoError(t, err)
	assert.Equal(t, 60, n)

	n, err = s.GetNotificationsNumber(ctx, table.PriorityVoiceCom)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestUpdateRequiredFlag(t *testing.T) {
	s := testutil.OpenTestStore(t)
	ctx := context.Background()

	assert.False(t, s.UpdateRequired(ctx))
	require.NoError(t, s.SaveUpdateRequired(ctx, true))
	assert.True(t, s.UpdateRequired(ctx))
	require.NoError(t, s.SaveUpdateRequired(ctx, false))
	assert.False(t, s.UpdateRequired(ctx))
}

func TestDBVersionTracking(t *testing.T) {
	s := testutil.OpenTestStore(t)
	ctx := context.Background()

	actual, err := s.IsDBVersionActual(ctx)
	require.NoError(t, err)
	assert.False(t, actual)

	require.NoError(t, s.UpdateDBVersion(ctx))

	actual, err = s.IsDBVersionActual(ctx)
	require.NoError(t, err)
	assert.True(t, actual)
}

func TestClearResetsData(t *testing.T) {
	s := testutil.OpenTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, testutil.SampleDocument()))

	require.NoError(t, s.Clear(ctx))

	snap := s.GenerateSnapshot(ctx)
	assert.Empty(t, snap.FunctionalGroupings)
	assert.Empty(t, snap.AppPolicies.Apps)
	assert.Equal(t, "0", snap.ConsumerFriendlyMessages.Version)

	// A cleared store accepts a fresh save.
	require.NoError(t, s.Save(ctx, testutil.SampleDocument()))
}

func TestRefreshDBRebuildsSchema(t *testing.T) {
	s := testutil.OpenTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, testutil.SampleDocument()))

	require.NoError(t, s.RefreshDB(ctx))

	snap := s.GenerateSnapshot(ctx)
	assert.Empty(t, snap.FunctionalGroupings)
	require.NoError(t, s.Save(ctx, testutil.SampleDocument()))
}

func TestSetPreloaded(t *testing.T) {
	s := testutil.OpenTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, testutil.SampleDocument()))

	preloaded, err := s.IsPTPreloaded(ctx)
	require.NoError(t, err)
	assert.True(t, preloaded)

	require.NoError(t, s.SetPreloaded(ctx, false))
	preloaded, err = s.IsPTPreloaded(ctx)
	require.NoError(t, err)
	assert.False(t, preloaded)
}
