package state

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueRoundTrip(t *testing.T) {
	t.Parallel()

	store := NewStore(t.TempDir())

	pos, err := store.AddToQueue("a")
	require.NoError(t, err)
	assert.Equal(t, 1, pos)

	pos, err = store.AddToQueue("b")
	require.NoError(t, err)
	assert.Equal(t, 2, pos)

	head, ok, err := store.PopQueue()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "a", head)

	q, err := store.LoadQueue()
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, q.Items)
}

func TestPopQueueEmpty(t *testing.T) {
	t.Parallel()

	store := NewStore(t.TempDir())

	head, ok, err := store.PopQueue()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, head)

	require.NoError(t, store.SaveQueue(&QueueFile{}))
	head, ok, err = store.PopQueue()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, head)
}

func TestQueueFileFormat(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	store := NewStore(tmpDir)
	_, err := store.AddToQueue("x")
	require.NoError(t, err)
	_, _, err = store.PopQueue()
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(tmpDir, ".ralph", "queue.json"))
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"items\": []\n}\n", string(data))
}

func TestQueuePreservesOrder(t *testing.T) {
	t.Parallel()

	store := NewStore(t.TempDir())
	names := []string{"one", "two", "three", "four"}
	for _, n := range names {
		_, err := store.AddToQueue(n)
		require.NoError(t, err)
	}

	var popped []string
	for {
		head, ok, err := store.PopQueue()
		require.NoError(t, err)
		if !ok {
			break
		}
		popped = append(popped, head)
	}
	assert.Equal(t, names, popped)
}
