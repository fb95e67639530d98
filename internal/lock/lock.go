package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"
)

const retryInterval = 250 * time.Millisecond

// ActionLock guards the scheduler's decide-execute-commit section across
// operating-system processes. The surrounding system restarts the daemon
// externally, so a previous instance may still hold the lock while shutting
// down; acquisition waits rather than failing.
//
// The kernel drops a flock the moment its holder exits, so a lock that
// stays unavailable always has a live holder. Waiting is therefore always
// safe and never deadlocks on a crashed process; a wait that outlives the
// staleness window only raises a warning about the slow holder.
type ActionLock struct {
	path       string
	staleAfter time.Duration
	log        zerolog.Logger

	fl *flock.Flock
}

func New(path string, staleAfter time.Duration, log zerolog.Logger) *ActionLock {
	return &ActionLock{
		path:       path,
		staleAfter: staleAfter,
		log:        log,
		fl:         flock.New(path),
	}
}

// Acquire blocks until the lock is held or ctx is done. The returned
// release function must be called exactly once.
func (l *ActionLock) Acquire(ctx context.Context) (func(), error) {
	started := time.Now()
	warned := false
	for {
		locked, err := l.fl.TryLock()
		if err != nil {
			return nil, fmt.Errorf("acquire action lock %s: %w", l.path, err)
		}
		if locked {
			return l.release, nil
		}

		if !warned && time.Since(started) > l.staleAfter {
			warned = true
			l.log.Warn().
				Str("path", l.path).
				Dur("waited", time.Since(started)).
				Msg("action lock held unusually long, still waiting for holder")
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("acquire action lock %s: %w", l.path, ctx.Err())
		case <-time.After(retryInterval):
		}
	}
}

func (l *ActionLock) release() {
	if err := l.fl.Unlock(); err != nil {
		l.log.Warn().Err(err).Str("path", l.path).Msg("failed to release action lock")
	}
}
