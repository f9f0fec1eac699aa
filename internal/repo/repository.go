package repo

import (
	"context"

	"github.com/hamed0406/pagewatch/internal/domain"
)

// SiteStore is the registry of monitored sites. Implementations keep
// insertion order and key entries by URL.
type SiteStore interface {
	List(ctx context.Context) ([]domain.MonitoredSite, error)
	// Get returns nil, nil if the URL is not registered.
	Get(ctx context.Context, url string) (*domain.MonitoredSite, error)
	// Upsert returns the entry as stored after the merge.
	Upsert(ctx context.Context, site domain.MonitoredSite) (domain.MonitoredSite, error)
	// Remove reports whether an entry was deleted.
	Remove(ctx context.Context, url string) (bool, error)
}

// Merge applies site to list: an existing entry gets the new danger level
// and exclusion set (and output dir when one is supplied); otherwise site is
// appended. It returns the updated list and the stored entry.
func Merge(list []domain.MonitoredSite, site domain.MonitoredSite) ([]domain.MonitoredSite, domain.MonitoredSite) {
	site.Normalize()
	for i := range list {
		if list[i].URL != site.URL {
			continue
		}
		list[i].DangerLevel = site.DangerLevel
		list[i].ExcludedElements = site.ExcludedElements
		if site.OutputDir != "" {
			list[i].OutputDir = site.OutputDir
		}
		return list, list[i]
	}
	return append(list, site), site
}

// Without returns list minus the entry for url.
func Without(list []domain.MonitoredSite, url string) ([]domain.MonitoredSite, bool) {
	for i := range list {
		if list[i].URL == url {
			return append(list[:i:i], list[i+1:]...), true
		}
	}
	return list, false
}

// Find returns a copy of the entry for url, or nil.
func Find(list []domain.MonitoredSite, url string) *domain.MonitoredSite {
	for i := range list {
		if list[i].URL == url {
			s := list[i]
			s.ExcludedElements = append([]int(nil), s.ExcludedElements...)
			return &s
		}
	}
	return nil
}
