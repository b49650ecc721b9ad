package stealth

import (
	"context"
	"math/rand"
	"time"
	"unicode"
)

// BehaviorConfig bounds the random pauses woven around requests.
type BehaviorConfig struct {
	PreRequestMin  time.Duration
	PreRequestMax  time.Duration
	PostRequestMin time.Duration
	PostRequestMax time.Duration
}

// DefaultBehaviorConfig matches typical human browsing pace.
func DefaultBehaviorConfig() BehaviorConfig {
	return BehaviorConfig{
		PreRequestMin:  100 * time.Millisecond,
		PreRequestMax:  500 * time.Millisecond,
		PostRequestMin: 200 * time.Millisecond,
		PostRequestMax: 800 * time.Millisecond,
	}
}

// Behavior generates human-like delays.
type Behavior struct {
	cfg BehaviorConfig
}

// NewBehavior creates a behavior generator.
func NewBehavior(cfg BehaviorConfig) *Behavior {
	return &Behavior{cfg: cfg}
}

func randBetween(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PreRequestDelay pauses before issuing a request.
func (b *Behavior) PreRequestDelay(ctx context.Context) error {
	return sleepCtx(ctx, randBetween(b.cfg.PreRequestMin, b.cfg.PreRequestMax))
}

// PostRequestDelay pauses after a response arrives.
func (b *Behavior) PostRequestDelay(ctx context.Context) error {
	return sleepCtx(ctx, randBetween(b.cfg.PostRequestMin, b.cfg.PostRequestMax))
}

// PageLoadPause simulates reading a freshly loaded page.
func (b *Behavior) PageLoadPause(ctx context.Context) error {
	return sleepCtx(ctx, randBetween(time.Second, 3*time.Second))
}

// FormFillPause simulates moving between form fields.
func (b *Behavior) FormFillPause(ctx context.Context) error {
	return sleepCtx(ctx, randBetween(200*time.Millisecond, 800*time.Millisecond))
}

// TypingDelays returns a per-character delay schedule for typing text.
// Digits come fast, letters at normal cadence, everything else slower, with
// occasional longer pauses as if thinking.
func (b *Behavior) TypingDelays(text string) []time.Duration {
	delays := make([]time.Duration, 0, len(text))
	for _, r := range text {
		var d time.Duration
		switch {
		case unicode.IsDigit(r):
			d = randBetween(50*time.Millisecond, 120*time.Millisecond)
		case unicode.IsLetter(r):
			d = randBetween(80*time.Millisecond, 200*time.Millisecond)
		default:
			d = randBetween(150*time.Millisecond, 300*time.Millisecond)
		}
		// One keystroke in twelve pauses while the typist thinks.
		if rand.Intn(12) == 0 {
			d += randBetween(200*time.Millisecond, 800*time.Millisecond)
		}
		delays = append(delays, d)
	}
	return delays
}
