package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thruflo/ralph/internal/state"
)

func TestQueueCommands(t *testing.T) {
	dir := setupProject(t)
	writeTasks(t, dir, state.FeatureTasksPath("auth"), false)
	writeTasks(t, dir, state.FeatureTasksPath("search"), false)

	out := capture(queueCmd)
	require.NoError(t, runQueue(queueCmd, nil))
	assert.Equal(t, "Queue is empty\n", out.String())

	addOut := capture(queueAddCmd)
	require.NoError(t, runQueueAdd(queueAddCmd, []string{"search"}))
	require.NoError(t, runQueueAdd(queueAddCmd, []string{"auth"}))
	assert.Contains(t, addOut.String(), "Queued 'search' (position 1)")
	assert.Contains(t, addOut.String(), "Queued 'auth' (position 2)")

	out.Reset()
	require.NoError(t, runQueue(queueCmd, nil))
	assert.Equal(t, "Queued features:\n  1. search\n  2. auth\n", out.String())
}

func TestQueueAddErrors(t *testing.T) {
	tests := []struct {
		name    string
		feature string
		wantErr string
	}{
		{name: "unknown feature", feature: "billing", wantErr: "feature 'billing' not found"},
		{name: "invalid name", feature: "a/b", wantErr: "invalid feature name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := setupProject(t)
			capture(queueAddCmd)

			err := runQueueAdd(queueAddCmd, []string{tt.feature})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)

			q, err := state.NewStore(dir).LoadQueue()
			require.NoError(t, err)
			assert.Empty(t, q.Items)
		})
	}
}
