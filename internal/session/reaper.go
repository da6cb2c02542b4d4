package session

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/HexSleeves/Review-Gate/internal/config"
	"github.com/HexSleeves/Review-Gate/internal/db"
	"github.com/HexSleeves/Review-Gate/internal/rendezvous"
)

// Reaper periodically marks unresponsive sessions stale, purges aged ones
// and sweeps orphaned rendezvous files. It runs independently of any
// single exchange and is the backstop for interrupted runs.
type Reaper struct {
	sessions     *db.SessionStore
	rdv          *rendezvous.Rendezvous
	interval     time.Duration
	staleTimeout time.Duration
	maxAge       time.Duration
}

// NewReaper creates a Reaper with the default windows.
func NewReaper(sessions *db.SessionStore, rdv *rendezvous.Rendezvous) *Reaper {
	return &Reaper{
		sessions:     sessions,
		rdv:          rdv,
		interval:     config.DefaultReaperInterval,
		staleTimeout: config.DefaultStaleTimeout,
		maxAge:       config.DefaultSessionMaxAge,
	}
}

// Run sweeps on a ticker until the context ends. One immediate sweep runs
// at startup to clear leftovers from a previous process.
func (r *Reaper) Run(ctx context.Context) error {
	r.sweep(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

// sweep runs one pass. Each step is independent; an error in one does not
// stop the others.
func (r *Reaper) sweep(ctx context.Context) {
	stale, err := r.sessions.CleanupStale(ctx, r.staleTimeout)
	if err != nil {
		log.Error().Err(err).Msg("stale session sweep failed")
	} else if stale > 0 {
		log.Info().Int64("count", stale).Msg("sessions marked stale")
	}

	purged, err := r.sessions.CleanupOld(ctx, r.maxAge)
	if err != nil {
		log.Error().Err(err).Msg("old session sweep failed")
	} else if purged > 0 {
		log.Info().Int64("count", purged).Msg("aged sessions purged")
	}

	r.rdv.CleanupTempFiles()
}
