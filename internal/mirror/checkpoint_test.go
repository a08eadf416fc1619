package mirror

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckpoint_FreshStore(t *testing.T) {
	cp, err := OpenMemoryCheckpoint()
	require.NoError(t, err)
	defer cp.Close()

	assert.True(t, cp.LastProgress().IsZero())

	applied, err := cp.Applied(0, "tx-0")
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestCheckpoint_SkipsReplays(t *testing.T) {
	cp, err := OpenMemoryCheckpoint()
	require.NoError(t, err)
	defer cp.Close()

	require.NoError(t, cp.MarkApplied(10, "tx-a"))
	require.NoError(t, cp.MarkApplied(10, "tx-b"))

	for _, tc := range []struct {
		block uint64
		txID  string
		want  bool
	}{
		{9, "tx-old", true},
		{10, "tx-a", true},
		{10, "tx-b", true},
		{10, "tx-c", false},
		{11, "tx-a", false},
	} {
		got, err := cp.Applied(tc.block, tc.txID)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "block %d tx %s", tc.block, tc.txID)
	}

	pos := cp.Position()
	assert.Equal(t, uint64(10), pos.Block)
	assert.Equal(t, "tx-b", pos.TxID)
	assert.False(t, pos.UpdatedAt.IsZero())
}

func TestCheckpoint_PrunesOlderBlocks(t *testing.T) {
	cp, err := OpenMemoryCheckpoint()
	require.NoError(t, err)
	defer cp.Close()

	require.NoError(t, cp.MarkApplied(3, "tx-a"))
	require.NoError(t, cp.MarkApplied(4, "tx-b"))

	has, err := cp.db.Has(txKey(3, "tx-a"), nil)
	require.NoError(t, err)
	assert.False(t, has)

	has, err = cp.db.Has(txKey(4, "tx-b"), nil)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestCheckpoint_IgnoresStaleMarks(t *testing.T) {
	cp, err := OpenMemoryCheckpoint()
	require.NoError(t, err)
	defer cp.Close()

	require.NoError(t, cp.MarkApplied(8, "tx-new"))
	require.NoError(t, cp.MarkApplied(5, "tx-late"))

	assert.Equal(t, uint64(8), cp.Position().Block)
	assert.Equal(t, "tx-new", cp.Position().TxID)
}

func TestCheckpoint_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint")

	cp, err := OpenCheckpoint(path)
	require.NoError(t, err)
	require.NoError(t, cp.MarkApplied(42, "tx-42"))
	require.NoError(t, cp.Close())

	reopened, err := OpenCheckpoint(path)
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, uint64(42), reopened.Position().Block)
	applied, err := reopened.Applied(42, "tx-42")
	require.NoError(t, err)
	assert.True(t, applied)
}
