//go:build integration

package postgres

// go test -tags=integration ./internal/repo/postgres -run AlertsCRUD -count=1

import (
	"context"
	"testing"
	"time"

	"github.com/hamed0406/pagewatch/internal/domain"
	"github.com/hamed0406/pagewatch/internal/repo"
)

func TestAlertsCRUD(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	url := "https://alerts.example/T1"

	// none yet
	rec, err := store.GetAlert(ctx, url)
	if err != nil || rec != nil {
		t.Fatalf("expected nil, got %+v err=%v", rec, err)
	}

	// set (no sent time)
	if err := store.SetAlert(ctx, repo.AlertRecord{URL: url, LastHealth: domain.HealthUp}); err != nil {
		t.Fatalf("set: %v", err)
	}
	rec, err = store.GetAlert(ctx, url)
	if err != nil || rec == nil || rec.LastSentAt != nil || rec.LastHealth != domain.HealthUp {
		t.Fatalf("unexpected: %+v err=%v", rec, err)
	}

	// set with sent time
	now := time.Now()
	if err := store.SetAlert(ctx, repo.AlertRecord{URL: url, LastHealth: domain.HealthDown, LastChangeKey: "dir#3", LastSentAt: &now}); err != nil {
		t.Fatalf("set2: %v", err)
	}
	rec, err = store.GetAlert(ctx, url)
	if err != nil || rec == nil || rec.LastSentAt == nil || rec.LastHealth != domain.HealthDown || rec.LastChangeKey != "dir#3" {
		t.Fatalf("unexpected2: %+v err=%v", rec, err)
	}
}
