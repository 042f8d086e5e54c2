package tasks

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSink struct {
	errs atomic.Int32
}

// syncBuffer is a goroutine-safe log destination for asserting on slog
// output.
type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

func (c *captureSink) CaptureException(error) {
	c.errs.Add(1)
}

func TestDispatcherRunsJob(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := New(&captureSink{})
	done := make(chan any, 1)
	d.Register("echo", func(_ context.Context, arg any) error {
		done <- arg
		return nil
	}, Options{})

	d.Start(ctx, 2)
	require.NoError(t, d.Enqueue("echo", 42))

	select {
	case got := <-done:
		assert.Equal(t, 42, got)
	case <-time.After(2 * time.Second):
		t.Fatal("job never ran")
	}
}

func TestDispatcherUnknownJob(t *testing.T) {
	d := New(&captureSink{})
	err := d.Enqueue("nope", nil)
	assert.ErrorIs(t, err, ErrUnknownJob)
}

func TestDispatcherCapturesErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sink := &captureSink{}
	d := New(sink)
	ran := make(chan struct{}, 2)
	d.Register("boom", func(context.Context, any) error {
		ran <- struct{}{}
		return errors.New("storage offline")
	}, Options{})

	d.Start(ctx, 1)
	require.NoError(t, d.Enqueue("boom", nil))
	require.NoError(t, d.Enqueue("boom", nil))

	for i := 0; i < 2; i++ {
		select {
		case <-ran:
		case <-time.After(2 * time.Second):
			t.Fatal("job never ran")
		}
	}

	// A failing handler never kills the worker; both invocations ran and
	// both errors were captured.
	assert.Eventually(t, func() bool {
		return sink.errs.Load() == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDispatcherRecoversPanics(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sink := &captureSink{}
	d := New(sink)
	done := make(chan struct{}, 1)
	d.Register("panics", func(context.Context, any) error {
		panic("nil map write")
	}, Options{})
	d.Register("after", func(context.Context, any) error {
		done <- struct{}{}
		return nil
	}, Options{})

	d.Start(ctx, 1)
	require.NoError(t, d.Enqueue("panics", nil))
	require.NoError(t, d.Enqueue("after", nil))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker died after panic")
	}
	assert.EqualValues(t, 1, sink.errs.Load())
}

func TestDispatcherPerArgRateLimit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := New(&captureSink{})
	var count atomic.Int32
	d.Register("throttled", func(context.Context, any) error {
		count.Add(1)
		return nil
	}, Options{Rate: 1, PerArg: true})

	d.Start(ctx, 4)

	// Distinct arguments each get their own bucket: all three run without
	// waiting on one another.
	require.NoError(t, d.Enqueue("throttled", 1))
	require.NoError(t, d.Enqueue("throttled", 2))
	require.NoError(t, d.Enqueue("throttled", 3))

	assert.Eventually(t, func() bool {
		return count.Load() == 3
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSchedulerLogsUnregisteredJob(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	buf := &syncBuffer{}
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(buf, nil)))
	defer slog.SetDefault(prev)

	d := New(&captureSink{})
	s := NewScheduler(d)
	// A job name nothing registered: each tick must complain, not spin
	// silently.
	s.Every(20*time.Millisecond, "misspelled", nil)
	s.Start(ctx)

	assert.Eventually(t, func() bool {
		return strings.Contains(buf.String(), "unknown job")
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	s.Wait()
}

func TestSchedulerEnqueuesOnTick(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := New(&captureSink{})
	var count atomic.Int32
	d.Register("tick", func(context.Context, any) error {
		count.Add(1)
		return nil
	}, Options{})
	d.Start(ctx, 1)

	s := NewScheduler(d)
	s.Every(20*time.Millisecond, "tick", nil)
	s.Start(ctx)

	assert.Eventually(t, func() bool {
		return count.Load() >= 2
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	s.Wait()
	d.Wait()
}
