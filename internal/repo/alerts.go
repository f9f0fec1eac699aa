package repo

import (
	"context"
	"time"

	"github.com/hamed0406/pagewatch/internal/domain"
)

// AlertRecord holds what the alerter last saw for a site. LastChangeKey
// identifies the last change notification (session dir + diff iteration);
// LastSentAt drives the Down cooldown.
type AlertRecord struct {
	URL           string
	LastHealth    domain.HealthStatus
	LastChangeKey string
	LastSentAt    *time.Time
}

// AlertStore is implemented by a persistence layer to store alert state.
type AlertStore interface {
	// GetAlert returns nil, nil if there's no record yet.
	GetAlert(ctx context.Context, url string) (*AlertRecord, error)
	// SetAlert upserts the record. A nil LastSentAt is stored as NULL.
	SetAlert(ctx context.Context, rec AlertRecord) error
}
