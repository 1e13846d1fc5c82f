package table

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGroupIDKnownValues(t *testing.T) {
	// Pinned values: stored group ids must never drift between
	// releases, or every persisted app-group link detaches.
	cases := map[string]int64{
		"Base-4":        1460696479,
		"Emergency-1":   1399447070,
		"Location-1":    1991411076,
		"Notifications": 337957153,
		"":              5381,
	}
	for name, want := range cases {
		assert.Equal(t, want, GroupID(name), "group %q", name)
	}
}

func TestGroupIDDeterministic(t *testing.T) {
	for _, name := range []string{"Base-4", "DataConsent-2", "x"} {
		assert.Equal(t, GroupID(name), GroupID(name))
	}
}

func TestGroupIDNonNegative(t *testing.T) {
	names := []string{
		"Base-4", "Emergency-1", "Location-1", "Notifications",
		"PropriataryData-1", "DataConsent-2", "BaseBeforeDataConsent",
	}
	for _, name := range names {
		assert.GreaterOrEqual(t, GroupID(name), int64(0), "group %q", name)
	}
}

func TestSchemaHashDistinguishesTexts(t *testing.T) {
	a := SchemaHash("CREATE TABLE a(x INTEGER);")
	b := SchemaHash("CREATE TABLE a(x INTEGER, y INTEGER);")
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, SchemaHash("CREATE TABLE a(x INTEGER);"))
}
