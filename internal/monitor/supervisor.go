// Package monitor runs one polling session per monitored site. A session
// takes a filtered baseline, then on every interval re-fetches the page,
// diffs it against the baseline and records the outcome in its session
// directory.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hamed0406/pagewatch/internal/domain"
	"github.com/hamed0406/pagewatch/internal/snapshot"
)

// ErrShuttingDown is returned by Start once Shutdown has been called.
var ErrShuttingDown = errors.New("monitor: shutting down")

type Fetcher interface {
	FetchContent(ctx context.Context, url string) (string, error)
}

type HealthChecker interface {
	CheckHealth(ctx context.Context, url string) domain.HealthResult
}

// SiteLookup is the slice of the registry the supervisor needs.
type SiteLookup interface {
	Get(ctx context.Context, url string) (*domain.MonitoredSite, error)
}

type Config struct {
	DefaultInterval time.Duration
	DefaultDuration time.Duration
	// RetryDelay is added to the next wait after a failed iteration.
	RetryDelay time.Duration
	// MaxStorageFailures consecutive storage errors fail the session.
	MaxStorageFailures int
}

func DefaultConfig() Config {
	return Config{
		DefaultInterval:    30 * time.Second,
		DefaultDuration:    60 * time.Minute,
		RetryDelay:         5 * time.Second,
		MaxStorageFailures: 3,
	}
}

// Options override the configured defaults for one session. Zero means
// "use the default"; negative values are rejected.
type Options struct {
	Interval time.Duration
	Duration time.Duration
}

type Supervisor struct {
	log     *zap.Logger
	sites   SiteLookup
	fetcher Fetcher
	health  HealthChecker
	store   *snapshot.Store
	cfg     Config
	now     func() time.Time

	mu     sync.Mutex
	live   map[string]*session
	last   map[string]domain.SessionInfo
	closed bool
	wg     sync.WaitGroup
}

func New(log *zap.Logger, sites SiteLookup, fetcher Fetcher, health HealthChecker, store *snapshot.Store, cfg Config) *Supervisor {
	if log == nil {
		log = zap.NewNop()
	}
	if store == nil {
		store = snapshot.NewStore()
	}
	def := DefaultConfig()
	if cfg.DefaultInterval <= 0 {
		cfg.DefaultInterval = def.DefaultInterval
	}
	if cfg.DefaultDuration <= 0 {
		cfg.DefaultDuration = def.DefaultDuration
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = 0
	}
	if cfg.MaxStorageFailures < 1 {
		cfg.MaxStorageFailures = def.MaxStorageFailures
	}
	return &Supervisor{
		log:     log,
		sites:   sites,
		fetcher: fetcher,
		health:  health,
		store:   store,
		cfg:     cfg,
		now:     time.Now,
		live:    make(map[string]*session),
		last:    make(map[string]domain.SessionInfo),
	}
}

func (sv *Supervisor) resolve(ctx context.Context, url string, opts Options) (domain.MonitoredSite, Options, error) {
	if opts.Interval < 0 {
		return domain.MonitoredSite{}, opts, &domain.ConfigError{Field: "interval", Reason: "must be positive"}
	}
	if opts.Duration < 0 {
		return domain.MonitoredSite{}, opts, &domain.ConfigError{Field: "duration", Reason: "must be positive"}
	}
	if opts.Interval == 0 {
		opts.Interval = sv.cfg.DefaultInterval
	}
	if opts.Duration == 0 {
		opts.Duration = sv.cfg.DefaultDuration
	}

	site, err := sv.sites.Get(ctx, url)
	if err != nil {
		return domain.MonitoredSite{}, opts, fmt.Errorf("lookup %s: %w", url, err)
	}
	if site == nil {
		return domain.MonitoredSite{}, opts, &domain.ConfigError{Field: "url", Reason: "not registered: " + url}
	}
	if site.OutputDir == "" {
		return domain.MonitoredSite{}, opts, &domain.ConfigError{Field: "output_dir", Reason: "output directory not set"}
	}
	if !site.DangerLevel.Valid() {
		return domain.MonitoredSite{}, opts, &domain.ConfigError{Field: "danger_level", Reason: "not set"}
	}
	return *site, opts, nil
}

// Start begins monitoring url. If a session for url is already live, Start
// waits for its baseline and returns it unchanged. Setup failures (bad
// config, unwritable directory, failed baseline) are returned synchronously
// and leave the URL in the Failed state.
func (sv *Supervisor) Start(ctx context.Context, url string, opts Options) (domain.SessionInfo, error) {
	site, opts, err := sv.resolve(ctx, url, opts)
	if err != nil {
		return domain.SessionInfo{}, err
	}

	sv.mu.Lock()
	if sv.closed {
		sv.mu.Unlock()
		return domain.SessionInfo{}, ErrShuttingDown
	}
	if existing, ok := sv.live[url]; ok {
		sv.mu.Unlock()
		return sv.awaitReady(ctx, existing)
	}
	sessCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s := &session{
		site:   site,
		cancel: cancel,
		ready:  make(chan struct{}),
		done:   make(chan struct{}),
		info: domain.SessionInfo{
			ID:        uuid.NewString(),
			URL:       url,
			State:     domain.StateIdle,
			Interval:  opts.Interval,
			Duration:  opts.Duration,
			StartedAt: sv.now(),
		},
	}
	sv.live[url] = s
	sv.mu.Unlock()

	log := sv.log.With(zap.String("url", url), zap.String("session_id", s.info.ID))

	// The caller's context only governs setup.
	stopOnCaller := context.AfterFunc(ctx, cancel)
	baseline, err := sv.setup(sessCtx, s)
	stopOnCaller()
	if err != nil || sessCtx.Err() != nil {
		state := domain.StateFailed
		if sessCtx.Err() != nil {
			state = domain.StateCancelled
			if err == nil {
				err = fmt.Errorf("monitoring %s cancelled during setup: %w", url, context.Canceled)
			}
		}
		log.Warn("session_setup_failed", zap.Error(err))
		s.setupErr = err
		sv.finish(s, state)
		close(s.ready)
		return sv.snapshotInfo(s), err
	}

	sv.mu.Lock()
	if sv.closed {
		sv.mu.Unlock()
		s.setupErr = ErrShuttingDown
		sv.finish(s, domain.StateCancelled)
		close(s.ready)
		return sv.snapshotInfo(s), ErrShuttingDown
	}
	s.info.State = domain.StateRunning
	sv.wg.Add(1)
	sv.mu.Unlock()
	close(s.ready)

	log.Info("session_started",
		zap.String("dir", s.info.Dir),
		zap.Duration("interval", s.info.Interval),
		zap.Duration("duration", s.info.Duration),
		zap.Ints("excluded", site.ExcludedElements),
	)
	go sv.run(sessCtx, s, baseline, log)
	return sv.snapshotInfo(s), nil
}

func (sv *Supervisor) awaitReady(ctx context.Context, s *session) (domain.SessionInfo, error) {
	select {
	case <-s.ready:
	case <-ctx.Done():
		return domain.SessionInfo{}, ctx.Err()
	}
	info := sv.snapshotInfo(s)
	if s.setupErr != nil {
		return info, s.setupErr
	}
	return info, nil
}

// Stop cancels the live session for url. It does not wait for the loop to
// exit; use Wait for that.
func (sv *Supervisor) Stop(url string) bool {
	sv.mu.Lock()
	s, ok := sv.live[url]
	sv.mu.Unlock()
	if !ok {
		return false
	}
	sv.log.Info("session_stop_requested", zap.String("url", url), zap.String("session_id", s.info.ID))
	s.cancel()
	return true
}

// Wait blocks until the live session for url (if any) has exited.
func (sv *Supervisor) Wait(ctx context.Context, url string) error {
	sv.mu.Lock()
	s, ok := sv.live[url]
	sv.mu.Unlock()
	if !ok {
		return nil
	}
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State reports the live state of url, else the state its last session
// ended in, else Idle.
func (sv *Supervisor) State(url string) domain.SessionState {
	info, ok := sv.Session(url)
	if !ok {
		return domain.StateIdle
	}
	return info.State
}

// IsRunning reports whether url has a session past its baseline.
func (sv *Supervisor) IsRunning(url string) bool {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	s, ok := sv.live[url]
	return ok && s.info.State == domain.StateRunning
}

// Session returns the live session for url or the last one that ended.
func (sv *Supervisor) Session(url string) (domain.SessionInfo, bool) {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	if s, ok := sv.live[url]; ok {
		return s.info, true
	}
	info, ok := sv.last[url]
	return info, ok
}

// Sessions lists live sessions ordered by URL.
func (sv *Supervisor) Sessions() []domain.SessionInfo {
	sv.mu.Lock()
	out := make([]domain.SessionInfo, 0, len(sv.live))
	for _, s := range sv.live {
		out = append(out, s.info)
	}
	sv.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out
}

// Shutdown cancels every session and waits for the loops to exit.
func (sv *Supervisor) Shutdown(ctx context.Context) error {
	sv.mu.Lock()
	sv.closed = true
	for _, s := range sv.live {
		s.cancel()
	}
	n := len(sv.live)
	sv.mu.Unlock()
	sv.log.Info("supervisor_shutdown", zap.Int("sessions", n))

	done := make(chan struct{})
	go func() {
		sv.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for sessions: %w", ctx.Err())
	}
}

func (sv *Supervisor) snapshotInfo(s *session) domain.SessionInfo {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	return s.info
}

// finish records a terminal state and removes s from the live table.
func (sv *Supervisor) finish(s *session, state domain.SessionState) {
	sv.mu.Lock()
	s.info.State = state
	if sv.live[s.info.URL] == s {
		delete(sv.live, s.info.URL)
	}
	sv.last[s.info.URL] = s.info
	sv.mu.Unlock()
	s.cancel()
	close(s.done)
}
