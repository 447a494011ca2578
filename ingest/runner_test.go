package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/poiesic/docqa/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRunner(t *testing.T, f *fixture) *Runner {
	t.Helper()
	runner, err := NewRunner(f.orch, WithPoolSize(2))
	require.NoError(t, err)
	t.Cleanup(runner.Close)
	return runner
}

func waitForDone(t *testing.T, f *fixture, taskID string) *core.IndexTask {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		task, err := f.ledger.GetTask(context.Background(), taskID)
		require.NoError(t, err)
		if task.IsDone() {
			return task
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("task %s did not finish", taskID)
	return nil
}

func TestNewRunner_RequiresOrchestrator(t *testing.T) {
	_, err := NewRunner(nil)
	assert.ErrorIs(t, err, ErrOrchestratorRequired)
}

func TestRunner_Submit_RunsToCompletion(t *testing.T) {
	f := newFixture(t, nil)
	runner := newTestRunner(t, f)

	f.addDocument(t, "doc.txt", "content to index")
	task := f.createTask(t)

	require.NoError(t, runner.Submit(task.ID))

	done := waitForDone(t, f, task.ID)
	assert.Equal(t, core.TaskStatusCompleted, done.Status)
	assert.False(t, runner.Running(task.ID))
}

func TestRunner_Cancel_NotRunning(t *testing.T) {
	f := newFixture(t, nil)
	runner := newTestRunner(t, f)

	err := runner.Cancel("never-submitted")
	assert.ErrorIs(t, err, ErrTaskNotRunning)
}

func TestRunner_Submit_AfterClose(t *testing.T) {
	f := newFixture(t, nil)
	runner, err := NewRunner(f.orch, WithPoolSize(1))
	require.NoError(t, err)
	runner.Close()

	err = runner.Submit("any")
	assert.ErrorIs(t, err, ErrRunnerClosed)
}
