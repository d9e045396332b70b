// ABOUTME: Typewriter reveals streamed text progressively at a fixed character rate.
// ABOUTME: Appended deltas continue from the current position; replaced text restarts the reveal.
package typewriter

import (
	"strings"
	"sync"
	"time"
)

// DefaultRate is how many characters are revealed per second.
const DefaultRate = 120.0

// Typewriter paces the display of streamed text. Feed it the accumulated
// text as chunks arrive; Visible returns the prefix that should be on
// screen right now. It is safe for concurrent use.
type Typewriter struct {
	mu     sync.Mutex
	target []rune
	shown  float64
	lastAt time.Time
	rate   float64
	closed bool
	fired  bool
	onDone func()
	now    func() time.Time
}

// Option configures a Typewriter.
type Option func(*Typewriter)

// WithRate sets the reveal speed in characters per second.
func WithRate(charsPerSecond float64) Option {
	return func(t *Typewriter) {
		if charsPerSecond > 0 {
			t.rate = charsPerSecond
		}
	}
}

// WithClock injects the time source. For tests.
func WithClock(now func() time.Time) Option {
	return func(t *Typewriter) { t.now = now }
}

// OnDone registers a callback invoked exactly once each time the reveal
// catches up with the full target text. Growing or replacing the target
// re-arms it for the new target.
func OnDone(fn func()) Option {
	return func(t *Typewriter) { t.onDone = fn }
}

// New creates a Typewriter with an empty target.
func New(opts ...Option) *Typewriter {
	t := &Typewriter{
		rate: DefaultRate,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.lastAt = t.now()
	return t
}

// SetText updates the accumulated text. When the new text extends the
// current one the reveal continues from where it is; otherwise the
// content was replaced and the reveal restarts from the beginning.
func (t *Typewriter) SetText(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.advanceLocked()
	next := []rune(text)
	if !strings.HasPrefix(text, string(t.target)) {
		t.shown = 0
		t.fired = false
	} else if len(next) > len(t.target) {
		t.fired = false
	}
	t.target = next
}

// Append adds a delta chunk to the accumulated text. Deltas are always
// extensions, so the reveal position is untouched.
func (t *Typewriter) Append(delta string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.advanceLocked()
	if delta != "" {
		t.fired = false
	}
	t.target = append(t.target, []rune(delta)...)
}

// Close marks the stream finished, as a hint for Done. No more text is
// expected after Close; completion itself is reported through OnDone,
// which does not depend on Close being called.
func (t *Typewriter) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.maybeFireLocked()
}

// Skip reveals the full target immediately.
func (t *Typewriter) Skip() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.advanceLocked()
	t.shown = float64(len(t.target))
	t.maybeFireLocked()
}

// Visible advances the reveal by the time elapsed since the last call and
// returns the text that should be on screen.
func (t *Typewriter) Visible() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.advanceLocked()
	t.maybeFireLocked()
	return string(t.target[:int(t.shown)])
}

// Done reports whether the stream is closed and fully revealed.
func (t *Typewriter) Done() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed && int(t.shown) >= len(t.target)
}

func (t *Typewriter) advanceLocked() {
	now := t.now()
	elapsed := now.Sub(t.lastAt).Seconds()
	t.lastAt = now
	if elapsed <= 0 {
		return
	}
	t.shown += elapsed * t.rate
	if t.shown > float64(len(t.target)) {
		t.shown = float64(len(t.target))
	}
}

func (t *Typewriter) maybeFireLocked() {
	if t.fired || len(t.target) == 0 || int(t.shown) < len(t.target) {
		return
	}
	t.fired = true
	if t.onDone != nil {
		t.onDone()
	}
}
