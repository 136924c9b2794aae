// Package reaper deletes abandoned group-order sessions.
package reaper

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/wricardo/groupcart/logging"
)

const (
	DefaultTTL      = 24 * time.Hour
	DefaultInterval = time.Hour
)

// Deleter is the slice of the session store the reaper needs.
type Deleter interface {
	DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// Reaper removes sessions whose creation time is older than TTL, whatever
// their status. Nothing is broadcast for reaped sessions.
type Reaper struct {
	store    Deleter
	ttl      time.Duration
	interval time.Duration
	now      func() time.Time
	log      zerolog.Logger
}

// Option configures a Reaper.
type Option func(*Reaper)

func WithTTL(ttl time.Duration) Option {
	return func(r *Reaper) { r.ttl = ttl }
}

func WithInterval(d time.Duration) Option {
	return func(r *Reaper) { r.interval = d }
}

func WithClock(now func() time.Time) Option {
	return func(r *Reaper) { r.now = now }
}

func WithLogger(l zerolog.Logger) Option {
	return func(r *Reaper) { r.log = logging.Component(l, "reaper") }
}

// New creates a reaper over store.
func New(store Deleter, opts ...Option) *Reaper {
	r := &Reaper{
		store:    store,
		ttl:      DefaultTTL,
		interval: DefaultInterval,
		now:      time.Now,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunOnce deletes every session created before now minus TTL.
func (r *Reaper) RunOnce(ctx context.Context) (int, error) {
	cutoff := r.now().Add(-r.ttl)
	removed, err := r.store.DeleteCreatedBefore(ctx, cutoff)
	if err != nil {
		return removed, fmt.Errorf("reap sessions created before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	if removed > 0 {
		r.log.Info().Int("removed", removed).Time("cutoff", cutoff).Msg("cleaned up expired sessions")
	}
	return removed, nil
}

// Run reaps once immediately, then on every tick until ctx is done. Errors
// are logged and the loop keeps going.
func (r *Reaper) Run(ctx context.Context) error {
	r.log.Debug().Dur("ttl", r.ttl).Dur("interval", r.interval).Msg("reaper started")
	r.sweep(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *Reaper) sweep(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := r.RunOnce(ctx); err != nil {
		r.log.Error().Err(err).Msg("reap failed")
	}
}
