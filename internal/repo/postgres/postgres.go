package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/hamed0406/pagewatch/internal/domain"
	"github.com/hamed0406/pagewatch/internal/repo"
)

var _ repo.SiteStore = (*Store)(nil)

const siteColumns = `url, danger_level, excluded_tags, output_dir`

func scanSite(row pgx.Row) (domain.MonitoredSite, error) {
	var (
		site     domain.MonitoredSite
		level    string
		excluded []int32
	)
	if err := row.Scan(&site.URL, &level, &excluded, &site.OutputDir); err != nil {
		return domain.MonitoredSite{}, err
	}
	site.DangerLevel = domain.DangerLevel(level)
	site.ExcludedElements = make([]int, 0, len(excluded))
	for _, v := range excluded {
		site.ExcludedElements = append(site.ExcludedElements, int(v))
	}
	return site, nil
}

func toInt32(in []int) []int32 {
	out := make([]int32, 0, len(in))
	for _, v := range in {
		out = append(out, int32(v))
	}
	return out
}

// ---- SiteStore ----

func (s *Store) List(ctx context.Context) ([]domain.MonitoredSite, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+siteColumns+` FROM sites ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}
	defer rows.Close()

	var out []domain.MonitoredSite
	for rows.Next() {
		site, err := scanSite(rows)
		if err != nil {
			return nil, fmt.Errorf("scan site: %w", err)
		}
		out = append(out, site)
	}
	return out, rows.Err()
}

func (s *Store) Get(ctx context.Context, url string) (*domain.MonitoredSite, error) {
	site, err := scanSite(s.pool.QueryRow(ctx, `SELECT `+siteColumns+` FROM sites WHERE url = $1`, url))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get site: %w", err)
	}
	return &site, nil
}

// Upsert keeps the row's position, so insertion order survives updates.
func (s *Store) Upsert(ctx context.Context, site domain.MonitoredSite) (domain.MonitoredSite, error) {
	site.Normalize()
	stored, err := scanSite(s.pool.QueryRow(ctx, `
INSERT INTO sites (url, danger_level, excluded_tags, output_dir)
VALUES ($1, $2, $3, $4)
ON CONFLICT (url) DO UPDATE
   SET danger_level  = EXCLUDED.danger_level,
       excluded_tags = EXCLUDED.excluded_tags,
       output_dir    = COALESCE(NULLIF(EXCLUDED.output_dir, ''), sites.output_dir),
       updated_at    = now()
RETURNING `+siteColumns,
		site.URL, string(site.DangerLevel), toInt32(site.ExcludedElements), site.OutputDir))
	if err != nil {
		return domain.MonitoredSite{}, fmt.Errorf("upsert site: %w", err)
	}
	s.log.Info("site_saved", zap.String("url", stored.URL), zap.String("danger_level", string(stored.DangerLevel)))
	return stored, nil
}

func (s *Store) Remove(ctx context.Context, url string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sites WHERE url = $1`, url)
	if err != nil {
		return false, fmt.Errorf("delete site: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}
	s.log.Info("site_removed", zap.String("url", url))
	return true, nil
}
