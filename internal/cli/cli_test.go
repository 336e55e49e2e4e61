package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "swipe-service version dev")
	assert.Contains(t, out, "Git commit: unknown")
}

func TestSweep_MemoryStore(t *testing.T) {
	t.Setenv("SWIPE_STORE_DRIVER", "memory")
	t.Setenv("REDIS_URL", "")

	out, err := run(t, "sweep", "--json=false")
	require.NoError(t, err)
	assert.Contains(t, out, "expired 0 posting(s)")
}

func TestSweep_StoreFlagOverridesEnv(t *testing.T) {
	t.Setenv("SWIPE_STORE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "")

	out, err := run(t, "sweep", "--store", "memory")
	require.NoError(t, err)
	assert.Contains(t, out, "expired 0 posting(s)")
}

func TestMigrate(t *testing.T) {
	t.Setenv("REDIS_URL", "")

	t.Run("memory has no schema", func(t *testing.T) {
		t.Setenv("SWIPE_STORE_DRIVER", "memory")
		_, err := run(t, "migrate")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no schema")
	})

	t.Run("sqlite", func(t *testing.T) {
		t.Setenv("SWIPE_STORE_DRIVER", "sqlite")
		t.Setenv("SWIPE_STORE_SQLITEPATH", filepath.Join(t.TempDir(), "swipe.db"))
		out, err := run(t, "migrate")
		require.NoError(t, err)
		assert.Contains(t, out, "schema applied (sqlite)")
	})
}

func TestInvalidConfigFails(t *testing.T) {
	t.Setenv("SWIPE_STORE_DRIVER", "mongo")
	_, err := run(t, "sweep")
	assert.Error(t, err)
}
