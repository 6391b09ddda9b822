package scheduler

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// pacer enforces a cooldown after each successful execution. It holds a
// single token that only a success consumes, so failed attempts are never
// delayed.
type pacer struct {
	lim      *rate.Limiter
	cooldown time.Duration
}

func newPacer(cooldown time.Duration) *pacer {
	if cooldown <= 0 {
		return &pacer{}
	}
	return &pacer{lim: rate.NewLimiter(rate.Every(cooldown), 1), cooldown: cooldown}
}

// Wait blocks until the cooldown since the last success has elapsed.
func (p *pacer) Wait(ctx context.Context) error {
	if p.lim == nil {
		return nil
	}
	for {
		tokens := p.lim.TokensAt(time.Now())
		if tokens >= 1 {
			return nil
		}
		d := time.Duration((1 - tokens) * float64(p.cooldown))
		if d < time.Millisecond {
			d = time.Millisecond
		}
		t := time.NewTimer(d)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// Succeeded starts a new cooldown.
func (p *pacer) Succeeded() {
	if p.lim == nil {
		return
	}
	p.lim.AllowN(time.Now(), 1)
}
