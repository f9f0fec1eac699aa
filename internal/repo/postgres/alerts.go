package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/hamed0406/pagewatch/internal/domain"
	"github.com/hamed0406/pagewatch/internal/repo"
)

var _ repo.AlertStore = (*Store)(nil)

func (s *Store) GetAlert(ctx context.Context, url string) (*repo.AlertRecord, error) {
	const q = `SELECT last_health, last_change_key, last_sent_at FROM alerts WHERE url=$1`
	r := repo.AlertRecord{URL: url}
	var (
		health   string
		lastSent *time.Time
	)
	err := s.pool.QueryRow(ctx, q, url).Scan(&health, &r.LastChangeKey, &lastSent)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get alert: %w", err)
	}
	r.LastHealth = domain.HealthStatus(health)
	r.LastSentAt = lastSent
	return &r, nil
}

func (s *Store) SetAlert(ctx context.Context, rec repo.AlertRecord) error {
	const q = `
		INSERT INTO alerts (url, last_health, last_change_key, last_sent_at)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (url)
		DO UPDATE SET last_health=EXCLUDED.last_health,
		              last_change_key=EXCLUDED.last_change_key,
		              last_sent_at=EXCLUDED.last_sent_at
	`
	if _, err := s.pool.Exec(ctx, q, rec.URL, string(rec.LastHealth), rec.LastChangeKey, rec.LastSentAt); err != nil {
		return fmt.Errorf("set alert: %w", err)
	}
	return nil
}
