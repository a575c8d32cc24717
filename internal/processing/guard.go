// Package processing tracks the per-conversation "agent is thinking" flag.
// The flag is a liveness hint for UI feedback, not a lock: a sweeper clears
// flags whose start time has gone stale so a crashed run never leaves a
// conversation stuck in the thinking state.
package processing

import (
	"context"
	"time"

	"github.com/tiendi/tiendi/internal/convo"
	"github.com/tiendi/tiendi/internal/logging"
)

const (
	// staleAfter is how long a processing flag may stand before the
	// sweeper reclaims it.
	staleAfter = 60 * time.Second

	// sweepInterval is how often the sweeper scans for stale flags.
	sweepInterval = 15 * time.Second
)

// Notifier receives typing-state changes for live UI feedback. Implemented
// by the gateway's event hub.
type Notifier interface {
	Typing(conversationID string, active bool)
}

// Guard owns the processing flag lifecycle around an agent run.
type Guard struct {
	store      convo.Store
	notify     Notifier
	log        *logging.Logger
	now        func() time.Time
	stale      time.Duration
	sweepEvery time.Duration
}

// NewGuard creates a guard over the conversation store. notify may be nil.
func NewGuard(store convo.Store, notify Notifier, log *logging.Logger) *Guard {
	return &Guard{
		store:      store,
		notify:     notify,
		log:        log.Sub("processing"),
		now:        time.Now,
		stale:      staleAfter,
		sweepEvery: sweepInterval,
	}
}

// Tune overrides the staleness threshold and sweep interval. Zero values
// keep the defaults.
func (g *Guard) Tune(stale, sweepEvery time.Duration) {
	if stale > 0 {
		g.stale = stale
	}
	if sweepEvery > 0 {
		g.sweepEvery = sweepEvery
	}
}

// Begin marks the conversation as processing and returns the start time the
// caller must hand back to Finish. The start time is the ownership token:
// only the run holding it can clear the flag it set.
func (g *Guard) Begin(ctx context.Context, conversationID string) (time.Time, error) {
	startedAt := g.now()
	if err := g.store.BeginProcessing(ctx, conversationID, startedAt); err != nil {
		return time.Time{}, err
	}
	if g.notify != nil {
		g.notify.Typing(conversationID, true)
	}
	return startedAt, nil
}

// Finish clears the flag set at startedAt. If a newer run has since taken
// over the conversation, the clear is a no-op on its flag.
func (g *Guard) Finish(ctx context.Context, conversationID string, startedAt time.Time) {
	if err := g.store.ClearProcessing(ctx, conversationID, startedAt); err != nil {
		g.log.Error().Err(err).Str("conversationId", conversationID).Msg("failed to clear processing flag")
	}
	if g.notify != nil {
		g.notify.Typing(conversationID, false)
	}
}

// Sweep clears flags older than the staleness threshold, matching each
// flag's recorded start time so an active newer run is never clobbered.
// Returns how many flags were reclaimed.
func (g *Guard) Sweep(ctx context.Context) (int, error) {
	stale, err := g.store.StaleProcessing(ctx, g.now().Add(-g.stale))
	if err != nil {
		return 0, err
	}
	cleared := 0
	for id, startedAt := range stale {
		if err := g.store.ClearProcessing(ctx, id, startedAt); err != nil {
			g.log.Error().Err(err).Str("conversationId", id).Msg("failed to clear stale processing flag")
			continue
		}
		if g.notify != nil {
			g.notify.Typing(id, false)
		}
		g.log.Warn().
			Str("conversationId", id).
			Time("startedAt", startedAt).
			Msg("cleared stale processing flag")
		cleared++
	}
	return cleared, nil
}

// Run sweeps periodically until the context is canceled.
func (g *Guard) Run(ctx context.Context) {
	ticker := time.NewTicker(g.sweepEvery)
	defer ticker.Stop()
	g.log.Debug().Dur("staleAfter", g.stale).Msg("stale-flag sweeper started")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := g.Sweep(ctx); err != nil {
				g.log.Error().Err(err).Msg("sweep failed")
			}
		}
	}
}
