package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"visadesk/internal/config"
)

type stubHandler struct {
	name string
	runs atomic.Int64
	err  error
}

func (h *stubHandler) Name() string { return h.name }

func (h *stubHandler) Execute(_ context.Context) error {
	h.runs.Add(1)
	return h.err
}

func newTestScheduler() *Scheduler {
	return New(&config.SchedulerConfig{}, zap.NewNop())
}

func TestScheduler_Register(t *testing.T) {
	t.Run("rejects duplicate task ids", func(t *testing.T) {
		s := newTestScheduler()
		require.NoError(t, s.Register("sweep", "0 * * * * *", false, &stubHandler{name: "sweep"}))
		assert.Error(t, s.Register("sweep", "0 * * * * *", false, &stubHandler{name: "sweep"}))
	})

	t.Run("rejects malformed schedules", func(t *testing.T) {
		s := newTestScheduler()
		assert.Error(t, s.Register("sweep", "not-a-schedule", true, &stubHandler{name: "sweep"}))
	})
}

func TestScheduler_ExecuteTaskNow(t *testing.T) {
	t.Run("unknown task errors", func(t *testing.T) {
		s := newTestScheduler()
		assert.Error(t, s.ExecuteTaskNow("missing"))
	})

	t.Run("stats stay consistent while tasks execute", func(t *testing.T) {
		s := newTestScheduler()
		handler := &stubHandler{name: "sweep"}
		require.NoError(t, s.Register("sweep", "0 * * * * *", false, handler))

		const runs = 25
		for i := 0; i < runs; i++ {
			require.NoError(t, s.ExecuteTaskNow("sweep"))
			// Stats reads race the counter writes unless both sides lock.
			s.Stats()
		}

		assert.Eventually(t, func() bool {
			return taskStat(s, "sweep", "runCount") == int64(runs)
		}, 2*time.Second, 10*time.Millisecond)
		assert.Equal(t, int64(runs), handler.runs.Load())
		assert.Equal(t, int64(0), taskStat(s, "sweep", "errorCount"))
	})

	t.Run("failed runs count as errors", func(t *testing.T) {
		s := newTestScheduler()
		handler := &stubHandler{name: "sweep", err: errors.New("store unavailable")}
		require.NoError(t, s.Register("sweep", "0 * * * * *", false, handler))

		require.NoError(t, s.ExecuteTaskNow("sweep"))
		assert.Eventually(t, func() bool {
			return taskStat(s, "sweep", "errorCount") == int64(1)
		}, 2*time.Second, 10*time.Millisecond)
	})
}

func taskStat(s *Scheduler, id, key string) int64 {
	for _, entry := range s.Stats() {
		if entry["id"] == id {
			if value, ok := entry[key].(int64); ok {
				return value
			}
		}
	}
	return -1
}
