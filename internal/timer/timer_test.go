package timer

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu    sync.Mutex
	ticks []time.Duration
	done  chan struct{}
}

func newRecorder() *recorder { return &recorder{done: make(chan struct{}, 1)} }

func (r *recorder) tick(d time.Duration) {
	r.mu.Lock()
	r.ticks = append(r.ticks, d)
	r.mu.Unlock()
}

func (r *recorder) complete() { r.done <- struct{}{} }

func (r *recorder) snapshot() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.ticks...)
}

func TestTicksAreMonotonicAndReachZero(t *testing.T) {
	tm := New(Options{Tick: 10 * time.Millisecond})
	rec := newRecorder()
	require.NoError(t, tm.Start(60*time.Millisecond, rec.tick, rec.complete))

	select {
	case <-rec.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timer never completed")
	}

	ticks := rec.snapshot()
	require.NotEmpty(t, ticks)
	assert.Equal(t, 60*time.Millisecond, ticks[0])
	for i := 1; i < len(ticks); i++ {
		if ticks[i] > ticks[i-1] {
			t.Fatalf("tick %d increased: %v -> %v", i, ticks[i-1], ticks[i])
		}
	}
	assert.Equal(t, time.Duration(0), ticks[len(ticks)-1])
	assert.False(t, tm.Running())
}

func TestStopIsIdempotentAndSuppressesCallbacks(t *testing.T) {
	tm := New(Options{Tick: 5 * time.Millisecond})
	rec := newRecorder()
	require.NoError(t, tm.Start(20*time.Millisecond, rec.tick, rec.complete))
	tm.Stop()
	tm.Stop()

	select {
	case <-rec.done:
		t.Fatal("completion delivered after stop")
	case <-time.After(60 * time.Millisecond):
	}
	assert.False(t, tm.Running())
	assert.Equal(t, time.Duration(0), tm.Remaining())
}

func TestExtendRejectedWhenNotRunning(t *testing.T) {
	tm := New(Options{})
	assert.ErrorIs(t, tm.Extend(10*time.Second), ErrNotRunning)
}

func TestExtendRaisesRemainingAndClearsWarning(t *testing.T) {
	var mu sync.Mutex
	var bands []bool
	tm := New(Options{
		Tick:             time.Hour,
		WarningThreshold: 5 * time.Second,
		OnWarning: func(on bool) {
			mu.Lock()
			bands = append(bands, on)
			mu.Unlock()
		},
	})
	require.NoError(t, tm.Start(3*time.Second, nil, nil))
	defer tm.Stop()
	assert.True(t, tm.Warning())

	require.NoError(t, tm.Extend(10*time.Second))
	assert.False(t, tm.Warning())
	assert.Greater(t, tm.Remaining(), 12*time.Second)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []bool{true, false}, bands)
}

func TestRestartDropsPreviousCountdown(t *testing.T) {
	tm := New(Options{Tick: 5 * time.Millisecond})
	first := newRecorder()
	second := newRecorder()
	require.NoError(t, tm.Start(15*time.Millisecond, nil, first.complete))
	require.NoError(t, tm.Start(30*time.Millisecond, nil, second.complete))

	select {
	case <-second.done:
	case <-time.After(2 * time.Second):
		t.Fatal("second countdown never completed")
	}
	select {
	case <-first.done:
		t.Fatal("replaced countdown completed")
	default:
	}
}

func TestStartRejectsNonPositiveDuration(t *testing.T) {
	tm := New(Options{})
	assert.ErrorIs(t, tm.Start(0, nil, nil), ErrInvalidDuration)
	assert.False(t, tm.Running())
}
