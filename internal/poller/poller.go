// Package poller implements the consumer-side contract for observing an
// in-flight analysis without push notifications: re-fetch the ticket at a
// fixed interval while its status is ANALYZING, stop on any other status.
package poller

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/geonhos/poc-voc-auto-processing/internal/domain"
)

// Fetcher reads the current ticket state. Fetches never mutate the ticket.
type Fetcher func(ctx context.Context, ticketID string) (*domain.Ticket, error)

// Config bundles watcher collaborators.
type Config struct {
	TicketID string
	Fetch    Fetcher
	Interval time.Duration
	// OnUpdate receives every successfully fetched snapshot, including the
	// final one whose status is no longer ANALYZING.
	OnUpdate func(*domain.Ticket)
	// OnError surfaces fetch failures. The loop keeps running; transient
	// failures self-heal on the next tick.
	OnError func(error)
	Logger  *zap.Logger
}

// Watcher polls one ticket. At most one fetch is in flight at a time: a
// tick that fires while a fetch is outstanding is dropped, not queued.
type Watcher struct {
	cfg Config

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewWatcher constructs a watcher for the ticket named in cfg.
func NewWatcher(cfg Config) *Watcher {
	if cfg.Interval <= 0 {
		cfg.Interval = 3 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Watcher{cfg: cfg}
}

// Start begins polling unless already running.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return
	}
	w.startLocked(ctx)
}

// Restart stops any current run and starts a fresh one. Used after an
// explicit retry action: polling resumes even if it had stopped.
func (w *Watcher) Restart(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopLocked()
	w.startLocked(ctx)
}

// Stop cancels polling immediately and waits for the loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopLocked()
}

// Running reports whether the poll loop is active.
func (w *Watcher) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Watcher) startLocked(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	w.cancel = cancel
	w.done = done
	w.running = true
	go func() {
		defer close(done)
		defer func() {
			w.mu.Lock()
			if w.done == done {
				w.running = false
			}
			w.mu.Unlock()
		}()
		w.loop(runCtx)
	}()
}

func (w *Watcher) stopLocked() {
	if !w.running {
		return
	}
	w.cancel()
	done := w.done
	w.mu.Unlock()
	<-done
	w.mu.Lock()
	if w.done == done {
		w.running = false
	}
}

func (w *Watcher) loop(ctx context.Context) {
	// First fetch right away; the interval only paces the re-fetches.
	if stopped := w.fetchOnce(ctx); stopped {
		return
	}

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if stopped := w.fetchOnce(ctx); stopped {
				return
			}
			// Drop a tick that fired while the fetch was outstanding.
			select {
			case <-ticker.C:
			default:
			}
		}
	}
}

// fetchOnce performs one fetch and reports whether polling should stop.
func (w *Watcher) fetchOnce(ctx context.Context) bool {
	ticket, err := w.cfg.Fetch(ctx, w.cfg.TicketID)
	if err != nil {
		if ctx.Err() != nil {
			return true
		}
		w.cfg.Logger.Debug("poll fetch failed",
			zap.String("ticket_id", w.cfg.TicketID),
			zap.Error(err),
		)
		if w.cfg.OnError != nil {
			w.cfg.OnError(err)
		}
		return false
	}
	if w.cfg.OnUpdate != nil {
		w.cfg.OnUpdate(ticket)
	}
	return ticket.Status != domain.TicketStatusAnalyzing
}
