package table_test

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carlink/policydb/internal/table"
	"github.com/carlink/policydb/internal/testutil"
)

// The wire encoding must stay byte-stable for a given document: policy
// servers diff snapshots textually, and a formatting change shows up
// as a spurious full-table delta.
func TestEncodeDocumentGolden(t *testing.T) {
	doc := testutil.SampleDocument()

	data, err := table.EncodeDocument(doc)
	require.NoError(t, err)

	g := goldie.New(t)
	g.Assert(t, "sample_document", data)
}

func TestParseEncodeRoundTrip(t *testing.T) {
	doc := testutil.SampleDocument()

	data, err := table.EncodeDocument(doc)
	require.NoError(t, err)

	parsed, err := table.ParseDocument(data)
	require.NoError(t, err)
	assert.Equal(t, doc, parsed)

	reencoded, err := table.EncodeDocument(parsed)
	require.NoError(t, err)
	assert.Equal(t, string(data), string(reencoded))
}
