package metrics

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIncrementIsMonotonic(t *testing.T) {
	r := NewRegistry()
	r.Increment("foo", 1)
	r.Increment("foo", 2)
	snap := r.Snapshot()
	assert.EqualValues(t, 3, snap["foo"])
}

func TestSnapshotIncludesUptime(t *testing.T) {
	r := NewRegistry()
	snap := r.Snapshot()
	assert.Contains(t, snap, "service_uptime_seconds")
	assert.Contains(t, snap, "last_updated_utc")
}

func TestDumpJSONWritesAtomically(t *testing.T) {
	r := NewRegistry()
	r.Increment("events", 5)
	dir := t.TempDir()
	path := filepath.Join(dir, "metrics_dump.json")
	require.NoError(t, r.dumpJSON(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "\"events\"")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no leftover temp file should remain")
}
