package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragchat-app/ragchat/internal/models"
)

func TestStringsJSONRoundTrip(t *testing.T) {
	b, err := stringsToJSON([]string{"a", "b"})
	require.NoError(t, err)

	out, err := stringsFromJSON(b)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, out)
}

func TestStringsToJSON_NilBecomesEmptyArray(t *testing.T) {
	b, err := stringsToJSON(nil)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(b))
}

func TestStringsFromJSON_EmptyInputsAreNil(t *testing.T) {
	out, err := stringsFromJSON(nil)
	require.NoError(t, err)
	assert.Nil(t, out)

	out, err = stringsFromJSON([]byte(`[]`))
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestSourcesJSONRoundTrip(t *testing.T) {
	in := []models.Source{
		{DocumentID: "d1", Filename: "report.pdf", ChunkIndex: 2, Score: 0.87},
	}
	b, err := sourcesToJSON(in)
	require.NoError(t, err)

	out, err := sourcesFromJSON(b)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, in[0], out[0])
}
