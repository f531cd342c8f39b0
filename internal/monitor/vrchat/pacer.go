package vrchat

import (
	"context"
	"sync"
	"time"
)

// Default pacing gaps for the upstream API. These apply process-wide across
// all request types.
const (
	DefaultStartGap  = time.Second            // between the start of any two requests
	DefaultFinishGap = 500 * time.Millisecond // between one request finishing and the next starting
)

// Pacer enforces minimum spacing between outbound API calls. Acquire blocks
// until both gaps are satisfied and then marks a call as started; Release
// marks the call as finished. Correct under concurrent callers even though
// the poll dispatcher is normally the only one.
type Pacer struct {
	mu         sync.Mutex
	startGap   time.Duration
	finishGap  time.Duration
	lastStart  time.Time
	lastFinish time.Time
}

// NewPacer returns a Pacer with the given gaps. Zero or negative gaps disable
// the corresponding constraint.
func NewPacer(startGap, finishGap time.Duration) *Pacer {
	return &Pacer{startGap: startGap, finishGap: finishGap}
}

// Acquire blocks until a new call may start, then records the start time.
// If ctx is cancelled while waiting, no start is recorded.
func (p *Pacer) Acquire(ctx context.Context) error {
	for {
		p.mu.Lock()
		now := time.Now()

		var wait time.Duration
		if !p.lastStart.IsZero() {
			if d := p.startGap - now.Sub(p.lastStart); d > wait {
				wait = d
			}
		}
		if !p.lastFinish.IsZero() {
			if d := p.finishGap - now.Sub(p.lastFinish); d > wait {
				wait = d
			}
		}

		if wait <= 0 {
			p.lastStart = now
			p.mu.Unlock()
			return nil
		}
		p.mu.Unlock()

		// Sleep outside the lock, then re-check: another caller may have
		// started a call in the meantime.
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Release records that the in-flight call has finished, successfully or not.
func (p *Pacer) Release() {
	p.mu.Lock()
	p.lastFinish = time.Now()
	p.mu.Unlock()
}
