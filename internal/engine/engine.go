// Package engine is the collaborator API of pagewatch: the single entry
// point the HTTP server, the CLI and tests use to manage sites, drive
// monitoring sessions and read their status.
package engine

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"github.com/hamed0406/pagewatch/internal/domain"
	"github.com/hamed0406/pagewatch/internal/filter"
	"github.com/hamed0406/pagewatch/internal/monitor"
	"github.com/hamed0406/pagewatch/internal/repo"
	"github.com/hamed0406/pagewatch/internal/status"
)

type Engine struct {
	log        *zap.Logger
	sites      repo.SiteStore
	supervisor *monitor.Supervisor
	reader     *status.Reader
	fetcher    monitor.Fetcher
	health     monitor.HealthChecker
	// defaultOutputDir is assigned to new sites registered without one.
	defaultOutputDir string
}

type Deps struct {
	Logger           *zap.Logger
	Sites            repo.SiteStore
	Supervisor       *monitor.Supervisor
	Reader           *status.Reader
	Fetcher          monitor.Fetcher
	Health           monitor.HealthChecker
	DefaultOutputDir string
}

func New(d Deps) *Engine {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Reader == nil {
		d.Reader = status.NewReader(d.Supervisor.IsRunning, 0, d.Logger)
	}
	return &Engine{
		log:              d.Logger,
		sites:            d.Sites,
		supervisor:       d.Supervisor,
		reader:           d.Reader,
		fetcher:          d.Fetcher,
		health:           d.Health,
		defaultOutputDir: d.DefaultOutputDir,
	}
}

// ValidateURL accepts absolute http(s) URLs with a host.
func ValidateURL(raw string) error {
	if raw == "" {
		return &domain.ConfigError{Field: "url", Reason: "required"}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return &domain.ConfigError{Field: "url", Reason: err.Error()}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &domain.ConfigError{Field: "url", Reason: "scheme must be http or https"}
	}
	if u.Host == "" || u.Hostname() == "" {
		return &domain.ConfigError{Field: "url", Reason: "host required"}
	}
	return nil
}

func (e *Engine) ListSites(ctx context.Context) ([]domain.MonitoredSite, error) {
	return e.sites.List(ctx)
}

func (e *Engine) site(ctx context.Context, u string) (domain.MonitoredSite, error) {
	s, err := e.sites.Get(ctx, u)
	if err != nil {
		return domain.MonitoredSite{}, err
	}
	if s == nil {
		return domain.MonitoredSite{}, fmt.Errorf("%w: %s", domain.ErrSiteNotFound, u)
	}
	return *s, nil
}

// UpsertSite registers or updates a site.
func (e *Engine) UpsertSite(ctx context.Context, site domain.MonitoredSite) (domain.MonitoredSite, error) {
	site.Normalize()
	if err := ValidateURL(site.URL); err != nil {
		return domain.MonitoredSite{}, err
	}
	if !site.DangerLevel.Valid() {
		return domain.MonitoredSite{}, &domain.ConfigError{
			Field:  "danger_level",
			Reason: fmt.Sprintf("%q is not one of Low, Medium, High, Critical", site.DangerLevel),
		}
	}
	if site.OutputDir == "" {
		existing, err := e.sites.Get(ctx, site.URL)
		if err != nil {
			return domain.MonitoredSite{}, err
		}
		if existing == nil {
			site.OutputDir = e.defaultOutputDir
		}
	}
	return e.sites.Upsert(ctx, site)
}

// RemoveSite stops any live session for url before deleting it.
func (e *Engine) RemoveSite(ctx context.Context, u string) error {
	if e.supervisor.Stop(u) {
		e.log.Info("site_remove_stopped_session", zap.String("url", u))
	}
	ok, err := e.sites.Remove(ctx, u)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrSiteNotFound, u)
	}
	return nil
}

func (e *Engine) StartMonitoring(ctx context.Context, u string, opts monitor.Options) (domain.SessionInfo, error) {
	if err := ValidateURL(u); err != nil {
		return domain.SessionInfo{}, err
	}
	return e.supervisor.Start(ctx, u, opts)
}

// StopMonitoring reports whether a live session was cancelled.
func (e *Engine) StopMonitoring(u string) bool {
	return e.supervisor.Stop(u)
}

func (e *Engine) Sessions() []domain.SessionInfo {
	return e.supervisor.Sessions()
}

func (e *Engine) Describe(ctx context.Context, u string) (status.Summary, error) {
	s, err := e.site(ctx, u)
	if err != nil {
		return status.Summary{}, err
	}
	return e.reader.Describe(s), nil
}

func (e *Engine) DescribeAll(ctx context.Context) ([]status.Summary, error) {
	sites, err := e.sites.List(ctx)
	if err != nil {
		return nil, err
	}
	return e.reader.DescribeAll(sites), nil
}

// PreviewElements fetches u and enumerates its elements in the order the
// exclusion indices refer to.
func (e *Engine) PreviewElements(ctx context.Context, u string) ([]filter.Element, error) {
	if err := ValidateURL(u); err != nil {
		return nil, err
	}
	doc, err := e.fetcher.FetchContent(ctx, u)
	if err != nil {
		return nil, err
	}
	return filter.Elements(doc)
}

// FetchFiltered fetches u and applies an exclusion set, as a session
// baseline would.
func (e *Engine) FetchFiltered(ctx context.Context, u string, excluded []int) (string, error) {
	if err := ValidateURL(u); err != nil {
		return "", err
	}
	doc, err := e.fetcher.FetchContent(ctx, u)
	if err != nil {
		return "", err
	}
	return filter.FilterFetched(doc, domain.NormalizeIndices(excluded))
}

func (e *Engine) CheckHealth(ctx context.Context, u string) (domain.HealthResult, error) {
	if err := ValidateURL(u); err != nil {
		return domain.HealthResult{}, err
	}
	return e.health.CheckHealth(ctx, u), nil
}

// Shutdown stops every session.
func (e *Engine) Shutdown(ctx context.Context) error {
	return e.supervisor.Shutdown(ctx)
}

// IsNotFound reports whether err means the site is not registered.
func IsNotFound(err error) bool { return errors.Is(err, domain.ErrSiteNotFound) }
