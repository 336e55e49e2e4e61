package db

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrations_OrderedAndIdempotent(t *testing.T) {
	names, err := Migrations()
	require.NoError(t, err)
	require.NotEmpty(t, names)
	assert.Equal(t, "001_swipe.sql", names[0])

	for _, n := range names {
		data, err := schemaFS.ReadFile("schema/" + n)
		require.NoError(t, err)
		for _, stmt := range strings.Split(string(data), ";") {
			stmt = strings.TrimSpace(stmt)
			if stmt == "" {
				continue
			}
			assert.Contains(t, stmt, "IF NOT EXISTS", "%s: statement must be re-runnable", n)
		}
	}
}

func TestNewPostgresPool_BadURL(t *testing.T) {
	_, err := NewPostgresPool(context.Background(), "://nope", PoolOptions{})
	assert.Error(t, err)
}

func TestNewRedisClient_BadURL(t *testing.T) {
	_, err := NewRedisClient(context.Background(), "not-a-redis-url")
	assert.Error(t, err)
}
