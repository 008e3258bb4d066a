package repo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimitOrDefault(t *testing.T) {
	assert.Equal(t, 50, limitOrDefault(0))
	assert.Equal(t, 50, limitOrDefault(-3))
	assert.Equal(t, 20, limitOrDefault(20))
	assert.Equal(t, 500, limitOrDefault(10000))
}

func TestNullString(t *testing.T) {
	assert.Nil(t, nullString(""))
	require.NotNil(t, nullString("key"))
	assert.Equal(t, "key", *nullString("key"))
}

func TestMarshalNullable(t *testing.T) {
	data, err := marshalNullable(nil)
	require.NoError(t, err)
	assert.Nil(t, data)

	data, err = marshalNullable(map[string]any{"limit": 10})
	require.NoError(t, err)
	assert.JSONEq(t, `{"limit": 10}`, string(data))
}

func TestSchemaDeclaresTables(t *testing.T) {
	for _, table := range []string{"flows", "runs", "schedules"} {
		assert.Contains(t, schemaSQL, "CREATE TABLE IF NOT EXISTS "+table)
	}
}
