package memory

import (
	"context"
	"sync"

	"github.com/hamed0406/pagewatch/internal/domain"
	"github.com/hamed0406/pagewatch/internal/repo"
)

// Store keeps sites and alert state in process memory. Used by tests and by
// ephemeral runs without a registry file.
type Store struct {
	mu     sync.RWMutex
	sites  []domain.MonitoredSite
	alerts map[string]repo.AlertRecord
}

func New(seed ...domain.MonitoredSite) *Store {
	s := &Store{alerts: make(map[string]repo.AlertRecord)}
	for _, site := range seed {
		s.sites, _ = repo.Merge(s.sites, site)
	}
	return s
}

// ---- SiteStore ----

func (m *Store) List(ctx context.Context) ([]domain.MonitoredSite, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.MonitoredSite, 0, len(m.sites))
	for _, s := range m.sites {
		s.ExcludedElements = append([]int(nil), s.ExcludedElements...)
		out = append(out, s)
	}
	return out, nil
}

func (m *Store) Get(ctx context.Context, url string) (*domain.MonitoredSite, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return repo.Find(m.sites, url), nil
}

func (m *Store) Upsert(ctx context.Context, site domain.MonitoredSite) (domain.MonitoredSite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var stored domain.MonitoredSite
	m.sites, stored = repo.Merge(m.sites, site)
	return stored, nil
}

func (m *Store) Remove(ctx context.Context, url string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ok bool
	m.sites, ok = repo.Without(m.sites, url)
	return ok, nil
}

// ---- AlertStore ----

func (m *Store) GetAlert(ctx context.Context, url string) (*repo.AlertRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.alerts[url]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *Store) SetAlert(ctx context.Context, rec repo.AlertRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts[rec.URL] = rec
	return nil
}
