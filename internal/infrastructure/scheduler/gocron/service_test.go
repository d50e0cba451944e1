package scheduler_test

import (
	"sync/atomic"
	"testing"
	"time"

	scheduler "github.com/ark-network/pls/internal/infrastructure/scheduler/gocron"
	"github.com/stretchr/testify/require"
)

func TestScheduler(t *testing.T) {
	svc := scheduler.NewScheduler()

	require.Error(t, svc.ScheduleTask(0, true, func() {}))

	var immediate, delayed atomic.Int32
	require.NoError(t, svc.ScheduleTask(1, true, func() { immediate.Add(1) }))
	require.NoError(t, svc.ScheduleTask(60, false, func() { delayed.Add(1) }))

	svc.Start()
	defer svc.Stop()

	require.Eventually(t, func() bool {
		return immediate.Load() >= 1
	}, 5*time.Second, 50*time.Millisecond)
	require.Zero(t, delayed.Load())
}
