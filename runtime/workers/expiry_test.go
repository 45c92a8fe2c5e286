package workers

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type recordingSweeper struct {
	mu     sync.Mutex
	sweeps []time.Time
}

func (s *recordingSweeper) ExpireDue(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweeps = append(s.sweeps, now)
}

func (s *recordingSweeper) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sweeps)
}

func TestExpiryWorker_Sweeps_On_Every_Tick(t *testing.T) {
	req := require.New(t)
	sweeper := &recordingSweeper{}
	worker := NewExpiryWorker(slog.Default(), sweeper, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()

	deadline := time.Now().Add(time.Second)
	for sweeper.count() < 3 {
		req.True(time.Now().Before(deadline), "expected repeated sweeps")
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		req.ErrorIs(err, context.Canceled)
	case <-time.After(500 * time.Millisecond):
		req.Fail("worker did not stop on cancellation")
	}
}
