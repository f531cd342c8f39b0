package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aussiebroadwan/vrcwatch/internal/monitor/domain"
)

// DefaultQueueSize bounds the poll queue. Ticks that land on a full queue are
// dropped rather than blocking a timer.
const DefaultQueueSize = 64

// Poller runs one timer per watched account and funnels every tick through a
// single dispatcher goroutine, so outbound calls are serialized by
// construction. Start and Stop may be called repeatedly as the session comes
// and goes.
type Poller struct {
	Accounts  []domain.WatchedAccount
	Poll      func(ctx context.Context, account domain.WatchedAccount)
	Gate      func() bool // reports whether dispatching may call out
	Logger    *slog.Logger
	QueueSize int

	// NewTicker supplies the per-account tick source. Tests substitute a
	// manual clock; the default wraps time.NewTicker.
	NewTicker func(d time.Duration) (<-chan time.Time, func())

	mu  sync.Mutex
	run *pollerRun
}

// pollerRun is one Start-to-Stop generation. A stop only ever acts on the
// generation it detached, so a stop racing a later Start cannot cancel the
// fresh timers.
type pollerRun struct {
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPoller wires a poller over the given roster.
func NewPoller(accounts []domain.WatchedAccount, poll func(context.Context, domain.WatchedAccount), gate func() bool, logger *slog.Logger) *Poller {
	return &Poller{
		Accounts:  accounts,
		Poll:      poll,
		Gate:      gate,
		Logger:    logger,
		QueueSize: DefaultQueueSize,
		NewTicker: stdTicker,
	}
}

func stdTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// Start launches the account timers and the dispatcher. Calling Start on a
// running poller is a no-op.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.run != nil {
		return
	}

	run := &pollerRun{}
	tickCtx, cancel := context.WithCancel(ctx)
	run.cancel = cancel
	p.run = run

	queue := make(chan domain.WatchedAccount, p.QueueSize)

	for _, account := range p.Accounts {
		run.wg.Add(1)
		go p.tickLoop(tickCtx, run, account, queue)
	}

	run.wg.Add(1)
	go p.dispatch(ctx, tickCtx, run, queue)

	p.Logger.Info("poller started", "accounts", len(p.Accounts))
}

// Stop cancels all timers, lets any in-flight poll finish on its own context,
// and discards whatever is still queued. Safe to call on a stopped poller.
func (p *Poller) Stop() {
	run := p.detach()
	if run == nil {
		return
	}
	run.cancel()
	run.wg.Wait()
	p.Logger.Info("poller stopped")
}

// StopAsync detaches and cancels the current generation immediately but waits
// for the in-flight poll in the background. Required when stopping from the
// dispatcher itself, which Stop would deadlock waiting for.
func (p *Poller) StopAsync() {
	run := p.detach()
	if run == nil {
		return
	}
	run.cancel()
	go func() {
		run.wg.Wait()
		p.Logger.Info("poller stopped")
	}()
}

func (p *Poller) detach() *pollerRun {
	p.mu.Lock()
	defer p.mu.Unlock()
	run := p.run
	p.run = nil
	return run
}

// Running reports whether the poller is currently active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.run != nil
}

func (p *Poller) tickLoop(ctx context.Context, run *pollerRun, account domain.WatchedAccount, queue chan<- domain.WatchedAccount) {
	defer run.wg.Done()

	// First poll immediately, then on the interval.
	p.enqueue(account, queue)

	newTicker := p.NewTicker
	if newTicker == nil {
		newTicker = stdTicker
	}
	ticks, stop := newTicker(account.EffectivePollInterval())
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticks:
			p.enqueue(account, queue)
		}
	}
}

func (p *Poller) enqueue(account domain.WatchedAccount, queue chan<- domain.WatchedAccount) {
	select {
	case queue <- account:
	default:
		p.Logger.Warn("poll queue full, dropping tick", "account_id", account.AccountID)
	}
}

func (p *Poller) dispatch(pollCtx, ctx context.Context, run *pollerRun, queue <-chan domain.WatchedAccount) {
	defer run.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case account := <-queue:
			if p.Gate != nil && !p.Gate() {
				continue
			}
			// The call runs on the parent context; a Stop issued while it is
			// out cancels only the timers and this loop.
			p.Poll(pollCtx, account)
		}
	}
}
