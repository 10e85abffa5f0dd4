// Package timer runs the per-question countdown.
package timer

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"quizlive/internal/logger"
)

var (
	ErrNotRunning      = errors.New("timer not running")
	ErrInvalidDuration = errors.New("invalid timer duration")
)

// Options tune a Timer. Zero values take the defaults.
type Options struct {
	// Tick is the callback granularity (default one second).
	Tick time.Duration
	// WarningThreshold marks the final stretch of the countdown (default 5s).
	WarningThreshold time.Duration
	// OnWarning is called when the warning band is entered or cleared.
	OnWarning func(on bool)
	Now       func() time.Time
	Log       *zap.Logger
}

// Timer counts down one question at a time. Callbacks run on the timer's
// goroutine; a callback from a stopped or restarted countdown is never
// delivered.
type Timer struct {
	opts Options
	log  *zap.Logger

	mu       sync.Mutex
	gen      uint64
	running  bool
	deadline time.Time
	last     time.Duration
	warning  bool
	stop     chan struct{}
}

func New(opts Options) *Timer {
	if opts.Tick <= 0 {
		opts.Tick = time.Second
	}
	if opts.WarningThreshold <= 0 {
		opts.WarningThreshold = 5 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Timer{opts: opts, log: logger.OrNop(opts.Log).Named("timer")}
}

// Start begins a countdown of d, replacing any countdown in progress.
// onTick receives the remaining time, which never increases between ticks
// except after Extend. onComplete fires once when the time is up.
func (t *Timer) Start(d time.Duration, onTick func(remaining time.Duration), onComplete func()) error {
	if d <= 0 {
		return ErrInvalidDuration
	}
	t.mu.Lock()
	t.cancelLocked()
	t.gen++
	gen := t.gen
	t.running = true
	t.deadline = t.opts.Now().Add(d)
	t.last = d
	t.warning = false
	t.stop = make(chan struct{})
	stop := t.stop
	t.mu.Unlock()

	if onTick != nil {
		onTick(d)
	}
	t.checkWarning(gen, d)
	go t.run(gen, stop, onTick, onComplete)
	return nil
}

func (t *Timer) run(gen uint64, stop <-chan struct{}, onTick func(time.Duration), onComplete func()) {
	ticker := time.NewTicker(t.opts.Tick)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		remaining, done, ok := t.advance(gen)
		if !ok {
			return
		}
		if onTick != nil {
			onTick(remaining)
		}
		t.checkWarning(gen, remaining)
		if done {
			if t.finish(gen) && onComplete != nil {
				onComplete()
			}
			return
		}
	}
}

// advance computes the clamped remaining time for the current generation.
func (t *Timer) advance(gen uint64) (time.Duration, bool, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.gen != gen || !t.running {
		return 0, false, false
	}
	remaining := t.deadline.Sub(t.opts.Now())
	if remaining < 0 {
		remaining = 0
	}
	if remaining > t.last {
		remaining = t.last
	}
	t.last = remaining
	// the last tick lands within one granularity of expiry
	if remaining < t.opts.Tick/2 {
		remaining = 0
		t.last = 0
	}
	return remaining, remaining == 0, true
}

func (t *Timer) finish(gen uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.gen != gen || !t.running {
		return false
	}
	t.running = false
	t.stop = nil
	return true
}

func (t *Timer) checkWarning(gen uint64, remaining time.Duration) {
	t.mu.Lock()
	if t.gen != gen {
		t.mu.Unlock()
		return
	}
	on := remaining > 0 && remaining <= t.opts.WarningThreshold
	changed := on != t.warning
	t.warning = on
	t.mu.Unlock()
	if changed && t.opts.OnWarning != nil {
		t.opts.OnWarning(on)
	}
}

// Stop cancels the countdown. Calling it again is a no-op.
func (t *Timer) Stop() {
	t.mu.Lock()
	wasWarning := t.warning && t.running
	t.cancelLocked()
	t.mu.Unlock()
	if wasWarning && t.opts.OnWarning != nil {
		t.opts.OnWarning(false)
	}
}

func (t *Timer) cancelLocked() {
	if t.stop != nil {
		close(t.stop)
		t.stop = nil
	}
	t.running = false
	t.warning = false
	t.gen++
}

// Extend adds extra to a running countdown and clears the warning band
// once the remaining time is back above the threshold.
func (t *Timer) Extend(extra time.Duration) error {
	if extra <= 0 {
		return ErrInvalidDuration
	}
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return ErrNotRunning
	}
	gen := t.gen
	t.deadline = t.deadline.Add(extra)
	remaining := t.deadline.Sub(t.opts.Now())
	if remaining < 0 {
		remaining = 0
	}
	t.last = remaining
	t.mu.Unlock()

	t.log.Debug("extended", zap.Duration("extra", extra), zap.Duration("remaining", remaining))
	t.checkWarning(gen, remaining)
	return nil
}

// Remaining returns the time left, or zero when not running.
func (t *Timer) Remaining() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return 0
	}
	remaining := t.deadline.Sub(t.opts.Now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (t *Timer) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// Warning reports whether the countdown is inside the warning band.
func (t *Timer) Warning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.warning
}
