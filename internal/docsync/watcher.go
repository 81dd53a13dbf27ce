package docsync

import (
	"context"
	"time"

	"github.com/keithlinneman/linnemanlabs-welcome/internal/log"
)

const maxBackoff = 10 * time.Minute

// releaseSyncer is what the Watcher needs from a *Syncer.
type releaseSyncer interface {
	CurrentRelease(ctx context.Context) (string, error)
	SyncRelease(ctx context.Context, release string) (Result, error)
}

// Watcher polls SSM and installs a release whenever the id changes.
type Watcher struct {
	syncer   releaseSyncer
	logger   log.Logger
	interval time.Duration
	current  string
	errs     int
}

// NewWatcher starts from current, normally the release the startup sync
// installed, so the first poll does not repeat it.
func NewWatcher(s *Syncer, interval time.Duration, current string) *Watcher {
	return newWatcher(s, s.logger, interval, current)
}

func newWatcher(s releaseSyncer, L log.Logger, interval time.Duration, current string) *Watcher {
	if L == nil {
		L = log.Nop()
	}
	return &Watcher{syncer: s, logger: L, interval: interval, current: current}
}

// Run polls until ctx is done. SSM failures back off exponentially up to
// maxBackoff; a failed sync is retried on the next tick.
func (w *Watcher) Run(ctx context.Context) {
	w.logger.Info(ctx, "docs watcher starting", "interval", w.interval.String(), "release", w.current)
	t := time.NewTimer(w.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info(ctx, "docs watcher stopping", "release", w.current)
			return
		case <-t.C:
			t.Reset(w.poll(ctx))
		}
	}
}

// poll runs one check and returns the delay until the next.
func (w *Watcher) poll(ctx context.Context) time.Duration {
	release, err := w.syncer.CurrentRelease(ctx)
	if err != nil {
		w.errs++
		next := w.backoff()
		w.logger.Warn(ctx, "docs watcher poll failed, backing off",
			"err", err.Error(),
			"consecutive_errors", w.errs,
			"next_poll_in", next.String(),
		)
		return next
	}
	if w.errs > 0 {
		w.logger.Info(ctx, "docs watcher recovered", "had_consecutive_errors", w.errs)
		w.errs = 0
	}
	if release == w.current {
		return w.interval
	}

	w.logger.Info(ctx, "new docs release detected", "old_release", w.current, "new_release", release)
	if _, err := w.syncer.SyncRelease(ctx, release); err != nil {
		w.logger.Error(ctx, err, "docs release sync failed, keeping current files", "release", release)
		return w.interval
	}
	w.current = release
	return w.interval
}

func (w *Watcher) backoff() time.Duration {
	d := w.interval
	for i := 0; i < w.errs && d < maxBackoff; i++ {
		d *= 2
	}
	return min(d, maxBackoff)
}
