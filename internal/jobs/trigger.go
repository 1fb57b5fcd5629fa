package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bissquit/eventrelay/internal/domain"
)

// Ticker runs one dispatch pass.
type Ticker interface {
	Kind() domain.JobKind
	Tick(ctx context.Context) (TickStats, error)
}

// Trigger runs a dispatcher tick in the background shortly after jobs are
// enqueued. Nudges for a kind that is already pending are coalesced, and
// Nudge never blocks the caller.
type Trigger struct {
	tickers map[domain.JobKind]Ticker
	signals map[domain.JobKind]chan struct{}
	timeout time.Duration

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewTrigger creates a trigger for the given dispatchers. timeout bounds each
// triggered tick.
func NewTrigger(timeout time.Duration, tickers ...Ticker) *Trigger {
	t := &Trigger{
		tickers: make(map[domain.JobKind]Ticker, len(tickers)),
		signals: make(map[domain.JobKind]chan struct{}, len(tickers)),
		timeout: timeout,
		stopCh:  make(chan struct{}),
	}
	for _, tk := range tickers {
		t.tickers[tk.Kind()] = tk
		t.signals[tk.Kind()] = make(chan struct{}, 1)
	}
	return t
}

// Start launches one background goroutine per kind.
func (t *Trigger) Start(ctx context.Context) {
	slog.Info("starting dispatch trigger", "kinds", len(t.tickers))
	for kind := range t.tickers {
		t.wg.Add(1)
		go t.run(ctx, kind)
	}
}

// Stop waits for in-flight ticks and stops the trigger.
func (t *Trigger) Stop() {
	close(t.stopCh)
	t.wg.Wait()
	slog.Info("dispatch trigger stopped")
}

// Nudge asks for a tick of kind's dispatcher.
func (t *Trigger) Nudge(kind domain.JobKind) {
	ch, ok := t.signals[kind]
	if !ok {
		return
	}
	select {
	case ch <- struct{}{}:
	default:
	}
}

func (t *Trigger) run(ctx context.Context, kind domain.JobKind) {
	defer t.wg.Done()

	ticker := t.tickers[kind]
	signal := t.signals[kind]

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stopCh:
			return
		case <-signal:
			tickCtx, cancel := context.WithTimeout(ctx, t.timeout)
			stats, err := ticker.Tick(tickCtx)
			cancel()
			if err != nil {
				slog.Error("triggered dispatch failed", "kind", kind, "error", err)
				continue
			}
			slog.Debug("triggered dispatch finished", "kind", kind, "sent", stats.Sent, "claimed", stats.Claimed)
		}
	}
}
