// Package file stores the site registry as a JSON array on disk, compatible
// with the monitored_urls.json written by earlier versions of the tool.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/hamed0406/pagewatch/internal/atomicfile"
	"github.com/hamed0406/pagewatch/internal/domain"
	"github.com/hamed0406/pagewatch/internal/repo"
)

// Store serializes load-mutate-save under one mutex. The file is re-read on
// every call so edits made by hand between calls are picked up.
type Store struct {
	path string
	log  *zap.Logger
	mu   sync.Mutex
}

func New(path string, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{path: path, log: log}
}

func (s *Store) Path() string { return s.path }

// Load never fails: a missing or malformed file yields an empty registry.
func (s *Store) Load() []domain.MonitoredSite {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Store) load() []domain.MonitoredSite {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.log.Warn("registry_read_failed", zap.String("path", s.path), zap.Error(err))
		}
		return nil
	}
	out, err := decode(raw)
	if err != nil {
		s.log.Warn("registry_malformed", zap.String("path", s.path), zap.Error(err))
		return nil
	}
	return out
}

// Check reads the registry strictly and reports how many sites it holds.
// A missing file counts as empty.
func (s *Store) Check() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, &domain.StorageError{Op: "read", Path: s.path, Err: err}
	}
	sites, err := decode(raw)
	if err != nil {
		return 0, &domain.StorageError{Op: "decode", Path: s.path, Err: err}
	}
	return len(sites), nil
}

func decode(raw []byte) ([]domain.MonitoredSite, error) {
	var sites []domain.MonitoredSite
	if err := json.Unmarshal(raw, &sites); err != nil {
		return nil, err
	}
	var out []domain.MonitoredSite
	for _, site := range sites {
		if site.URL == "" {
			continue
		}
		out, _ = repo.Merge(out, site)
	}
	return out, nil
}

// Save replaces the registry file atomically.
func (s *Store) Save(sites []domain.MonitoredSite) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(sites)
}

func (s *Store) save(sites []domain.MonitoredSite) error {
	if sites == nil {
		sites = []domain.MonitoredSite{}
	}
	for i := range sites {
		if sites[i].ExcludedElements == nil {
			sites[i].ExcludedElements = []int{}
		}
	}
	raw, err := json.MarshalIndent(sites, "", "    ")
	if err != nil {
		return &domain.StorageError{Op: "encode", Path: s.path, Err: err}
	}
	if err := atomicfile.WriteFile(s.path, raw, 0o644); err != nil {
		return &domain.StorageError{Op: "write", Path: s.path, Err: err}
	}
	return nil
}

// ---- SiteStore ----

func (s *Store) List(ctx context.Context) ([]domain.MonitoredSite, error) {
	return s.Load(), nil
}

func (s *Store) Get(ctx context.Context, url string) (*domain.MonitoredSite, error) {
	return repo.Find(s.Load(), url), nil
}

func (s *Store) Upsert(ctx context.Context, site domain.MonitoredSite) (domain.MonitoredSite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sites, stored := repo.Merge(s.load(), site)
	if err := s.save(sites); err != nil {
		return domain.MonitoredSite{}, err
	}
	s.log.Info("site_saved", zap.String("url", stored.URL), zap.String("danger_level", string(stored.DangerLevel)))
	return stored, nil
}

func (s *Store) Remove(ctx context.Context, url string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sites, ok := repo.Without(s.load(), url)
	if !ok {
		return false, nil
	}
	if err := s.save(sites); err != nil {
		return false, err
	}
	s.log.Info("site_removed", zap.String("url", url))
	return true, nil
}
