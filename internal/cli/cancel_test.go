package cli

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thruflo/ralph/internal/state"
)

func stubSignal(t *testing.T, err error) *[]int {
	t.Helper()
	var pids []int
	prev := signalProcess
	signalProcess = func(pid int) error {
		pids = append(pids, pid)
		return err
	}
	t.Cleanup(func() { signalProcess = prev })
	return &pids
}

func markRunning(t *testing.T, dir string) {
	t.Helper()
	_, err := state.NewStore(dir).UpdateRunState(func(rs *state.RunState) {
		rs.Iteration = 2
		rs.Status = state.StatusRunning
	})
	require.NoError(t, err)
}

func TestCancelSignalsLiveRunner(t *testing.T) {
	dir := setupProject(t)
	markRunning(t, dir)
	holdLock(t, dir, "backlog")
	pids := stubSignal(t, nil)

	out := capture(cancelCmd)
	require.NoError(t, runCancel(cancelCmd, nil))

	assert.Equal(t, []int{os.Getpid()}, *pids)
	assert.Contains(t, out.String(), "Sent SIGTERM to ralph")
	assert.Equal(t, state.StatusRunning, loadRunState(t, dir).Status)
}

func TestCancelSignalFailure(t *testing.T) {
	dir := setupProject(t)
	holdLock(t, dir, "backlog")
	stubSignal(t, errors.New("operation not permitted"))
	capture(cancelCmd)

	err := runCancel(cancelCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "operation not permitted")
}

func TestCancelMarksOrphanedRunCancelled(t *testing.T) {
	dir := setupProject(t)
	markRunning(t, dir)
	pids := stubSignal(t, nil)

	out := capture(cancelCmd)
	require.NoError(t, runCancel(cancelCmd, nil))

	assert.Empty(t, *pids)
	rs := loadRunState(t, dir)
	assert.Equal(t, state.StatusCancelled, rs.Status)
	assert.Equal(t, 2, rs.Iteration)
	assert.Contains(t, out.String(), "✓ Ralph cancelled")
}

func TestCancelWhenIdle(t *testing.T) {
	tests := []struct {
		name  string
		setup bool
		want  string
	}{
		{name: "not running", setup: true, want: "Ralph is not running"},
		{name: "no state", want: "No Ralph state found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.setup {
				setupProject(t)
			} else {
				useProject(t)
			}
			pids := stubSignal(t, nil)
			out := capture(cancelCmd)

			require.NoError(t, runCancel(cancelCmd, nil))
			assert.Contains(t, out.String(), tt.want)
			assert.Empty(t, *pids)
		})
	}
}
