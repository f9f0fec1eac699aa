package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/pagewatch/internal/differ"
	"github.com/hamed0406/pagewatch/internal/domain"
	"github.com/hamed0406/pagewatch/internal/filter"
	"github.com/hamed0406/pagewatch/internal/snapshot"
)

type session struct {
	site domain.MonitoredSite
	// info is guarded by Supervisor.mu.
	info     domain.SessionInfo
	cancel   context.CancelFunc
	ready    chan struct{}
	done     chan struct{}
	setupErr error
	out      *snapshot.Session
}

// setup creates the session directory and writes the filtered baseline.
func (sv *Supervisor) setup(ctx context.Context, s *session) (string, error) {
	out, err := sv.store.CreateSession(s.site.OutputDir, s.info.URL)
	if err != nil {
		return "", err
	}
	s.out = out
	sv.mu.Lock()
	s.info.Dir = out.Dir
	sv.mu.Unlock()

	raw, err := sv.fetcher.FetchContent(ctx, s.info.URL)
	if err != nil {
		return "", fmt.Errorf("baseline fetch: %w", err)
	}
	baseline, err := filter.FilterFetched(raw, s.site.ExcludedElements)
	if err != nil {
		return "", fmt.Errorf("baseline filter: %w", err)
	}
	if _, err := out.WriteInitial(baseline); err != nil {
		return "", err
	}
	return baseline, nil
}

type waitResult int

const (
	waitElapsed waitResult = iota
	waitCancelled
	waitExpired
)

// wait sleeps for d, cut short by cancellation or by the session deadline.
func wait(ctx context.Context, d time.Duration, deadline time.Time) waitResult {
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return waitExpired
	}
	expires := false
	if d >= remaining {
		d, expires = remaining, true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return waitCancelled
	case <-t.C:
		if expires {
			return waitExpired
		}
		return waitElapsed
	}
}

func (sv *Supervisor) run(ctx context.Context, s *session, baseline string, log *zap.Logger) {
	defer sv.wg.Done()

	deadline := time.Now().Add(s.info.Duration)
	storageFailures := 0
	iteration := 0
	delay := s.info.Interval

	for {
		switch wait(ctx, delay, deadline) {
		case waitCancelled:
			sv.finish(s, domain.StateCancelled)
			log.Info("session_cancelled", zap.Int("iterations", iteration))
			return
		case waitExpired:
			sv.finish(s, domain.StateCompleted)
			log.Info("session_completed", zap.Int("iterations", iteration))
			return
		}
		if ctx.Err() != nil {
			continue
		}

		iteration++
		sv.mu.Lock()
		s.info.Iteration = iteration
		sv.mu.Unlock()

		health, changed, err := sv.iterate(ctx, s, iteration, &baseline)
		if err == nil {
			storageFailures = 0
			delay = s.info.Interval
			log.Debug("iteration_done",
				zap.Int("iteration", iteration),
				zap.String("health", string(health.Status)),
				zap.Bool("changed", changed),
			)
			continue
		}

		var se *domain.StorageError
		if errors.As(err, &se) {
			storageFailures++
			if storageFailures >= sv.cfg.MaxStorageFailures {
				log.Error("session_failed", zap.Int("iteration", iteration), zap.Int("storage_failures", storageFailures), zap.Error(err))
				sv.finish(s, domain.StateFailed)
				return
			}
		}
		log.Warn("iteration_failed", zap.Int("iteration", iteration), zap.Error(err))

		status := health.Status
		if status == "" {
			status = domain.HealthDown
		}
		if werr := s.out.WriteStatus(snapshot.ErrorStatus(status, health.Port, err, sv.now())); werr != nil {
			log.Warn("status_write_failed", zap.Error(werr))
		}
		delay = sv.cfg.RetryDelay + s.info.Interval
	}
}

// iterate performs one poll: health, fetch+filter, snapshot, diff, status.
// On change the baseline is replaced by the candidate.
func (sv *Supervisor) iterate(ctx context.Context, s *session, n int, baseline *string) (domain.HealthResult, bool, error) {
	url := s.info.URL
	health := sv.health.CheckHealth(ctx, url)

	raw, err := sv.fetcher.FetchContent(ctx, url)
	if err != nil {
		return health, false, err
	}
	candidate, err := filter.FilterFetched(raw, s.site.ExcludedElements)
	if err != nil {
		return health, false, fmt.Errorf("filter: %w", err)
	}
	if _, err := s.out.WriteSnapshot(n, candidate); err != nil {
		return health, false, err
	}

	art := differ.Diff(n, *baseline, candidate)
	if art.Err != nil {
		sv.log.Warn("diff_failed", zap.String("url", url), zap.Int("iteration", n), zap.Error(art.Err))
	}
	if err := s.out.WriteDiff(art); err != nil {
		return health, false, err
	}
	if err := s.out.WriteStatus(snapshot.NewStatus(health, art.HasChanges, sv.now())); err != nil {
		return health, false, err
	}
	if art.HasChanges {
		*baseline = candidate
		sv.log.Info("change_detected",
			zap.String("url", url),
			zap.Int("iteration", n),
			zap.Int("added", art.Added),
			zap.Int("removed", art.Removed),
		)
	}
	return health, art.HasChanges, nil
}
