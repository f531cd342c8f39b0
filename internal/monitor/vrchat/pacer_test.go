package vrchat_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/vrcwatch/internal/monitor/vrchat"
)

// Gaps are scaled down from the production values so the suite stays fast;
// the arithmetic is identical.
const (
	testStartGap  = 100 * time.Millisecond
	testFinishGap = 50 * time.Millisecond
)

func TestPacerStartGap(t *testing.T) {
	p := vrchat.NewPacer(testStartGap, 0)
	ctx := context.Background()

	var starts []time.Time
	for i := 0; i < 3; i++ {
		require.NoError(t, p.Acquire(ctx))
		starts = append(starts, time.Now())
		p.Release()
	}

	for i := 1; i < len(starts); i++ {
		gap := starts[i].Sub(starts[i-1])
		require.GreaterOrEqual(t, gap, testStartGap-5*time.Millisecond,
			"start gap %d was %v", i, gap)
	}
}

func TestPacerFinishGap(t *testing.T) {
	p := vrchat.NewPacer(0, testFinishGap)
	ctx := context.Background()

	require.NoError(t, p.Acquire(ctx))
	p.Release()
	released := time.Now()

	require.NoError(t, p.Acquire(ctx))
	gap := time.Since(released)
	require.GreaterOrEqual(t, gap, testFinishGap-5*time.Millisecond)
	p.Release()
}

func TestPacerFirstAcquireImmediate(t *testing.T) {
	p := vrchat.NewPacer(testStartGap, testFinishGap)

	start := time.Now()
	require.NoError(t, p.Acquire(context.Background()))
	require.Less(t, time.Since(start), 20*time.Millisecond)
	p.Release()
}

func TestPacerCancelledAcquireDoesNotMarkStart(t *testing.T) {
	p := vrchat.NewPacer(200*time.Millisecond, 0)
	ctx := context.Background()

	require.NoError(t, p.Acquire(ctx))
	p.Release()
	firstStart := time.Now()

	// Cancel while the second caller is still waiting out the gap.
	cancelCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	err := p.Acquire(cancelCtx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// The cancelled wait must not have counted as a started call: the next
	// acquire is gated on the first call's start only.
	require.NoError(t, p.Acquire(ctx))
	gap := time.Since(firstStart)
	require.Less(t, gap, 2*200*time.Millisecond,
		"cancelled acquire pushed the window as if it had started a call")
	p.Release()
}

func TestPacerConcurrentCallers(t *testing.T) {
	p := vrchat.NewPacer(60*time.Millisecond, 0)
	ctx := context.Background()

	const callers = 4
	starts := make(chan time.Time, callers)
	for i := 0; i < callers; i++ {
		go func() {
			if err := p.Acquire(ctx); err != nil {
				return
			}
			starts <- time.Now()
			p.Release()
		}()
	}

	var collected []time.Time
	for i := 0; i < callers; i++ {
		select {
		case at := <-starts:
			collected = append(collected, at)
		case <-time.After(2 * time.Second):
			t.Fatal("caller never acquired")
		}
	}

	for i := 1; i < len(collected); i++ {
		gap := collected[i].Sub(collected[i-1])
		require.GreaterOrEqual(t, gap, 60*time.Millisecond-5*time.Millisecond,
			"concurrent callers violated the start gap")
	}
}
