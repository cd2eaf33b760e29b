package runner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/harunnryd/archivist/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingTask struct {
	mu      sync.Mutex
	runs    int
	cycles  []string
	err     error
	panicOn int
	ran     chan struct{}
}

func newCountingTask() *countingTask {
	return &countingTask{ran: make(chan struct{}, 16)}
}

func (c *countingTask) Name() string { return "counting" }

func (c *countingTask) RunCycle(ctx context.Context) error {
	c.mu.Lock()
	c.runs++
	n := c.runs
	c.cycles = append(c.cycles, logger.GetCycleID(ctx))
	err := c.err
	c.mu.Unlock()

	c.ran <- struct{}{}
	if c.panicOn == n {
		panic("boom")
	}
	return err
}

func (c *countingTask) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runs
}

func waitRun(t *testing.T, task *countingTask) {
	t.Helper()
	select {
	case <-task.ran:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a cycle")
	}
}

func TestParseSchedule(t *testing.T) {
	sched, err := ParseSchedule(10*time.Second, "")
	require.NoError(t, err)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.True(t, base.Add(10*time.Second).Equal(sched.Next(base)))

	sched, err = ParseSchedule(0, "CRON_TZ=UTC */5 * * * *")
	require.NoError(t, err)
	assert.True(t, base.Add(5*time.Minute).Equal(sched.Next(base)))

	sched, err = ParseSchedule(0, "@every 30s")
	require.NoError(t, err)
	assert.True(t, base.Add(30*time.Second).Equal(sched.Next(base)))

	_, err = ParseSchedule(0, "")
	assert.Error(t, err)
	_, err = ParseSchedule(time.Second, "not a cron")
	assert.Error(t, err)
}

func TestRunner_RunOnceRecordsStatus(t *testing.T) {
	task := newCountingTask()
	r, err := New(task, Options{Interval: time.Hour})
	require.NoError(t, err)

	require.NoError(t, r.RunOnce(context.Background()))
	task.err = errors.New("remote down")
	assert.Error(t, r.RunOnce(context.Background()))

	status := r.Status()
	assert.Equal(t, uint64(2), status.Cycles)
	assert.Equal(t, "remote down", status.LastError)
	assert.False(t, status.Running)

	require.Len(t, task.cycles, 2)
	assert.NotEmpty(t, task.cycles[0])
	assert.NotEqual(t, task.cycles[0], task.cycles[1], "each cycle gets its own id")
}

func TestRunner_StartRunsImmediatelyAndOnTrigger(t *testing.T) {
	task := newCountingTask()
	r, err := New(task, Options{Interval: time.Hour, ShutdownTimeout: time.Second})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, r.Start(ctx))
	require.NoError(t, r.Start(ctx), "second start is a no-op")
	waitRun(t, task)

	assert.True(t, r.Trigger())
	waitRun(t, task)
	assert.Equal(t, 2, task.count())
	require.NoError(t, r.Health(ctx))

	require.NoError(t, r.Stop(ctx))
	assert.False(t, r.IsRunning())
	assert.Error(t, r.Health(ctx))
	require.NoError(t, r.Stop(ctx))
}

func TestRunner_SurvivesPanickingCycle(t *testing.T) {
	task := newCountingTask()
	task.panicOn = 1
	r, err := New(task, Options{Interval: time.Hour, ShutdownTimeout: time.Second})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, r.Start(ctx))
	defer r.Stop(ctx)
	waitRun(t, task)

	require.Eventually(t, func() bool {
		return r.Status().LastError == "panic: boom"
	}, time.Second, 10*time.Millisecond)

	r.Trigger()
	waitRun(t, task)
	assert.Equal(t, 2, task.count())
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, Options{Interval: time.Second})
	assert.Error(t, err)
	_, err = New(newCountingTask(), Options{})
	assert.Error(t, err)
}
