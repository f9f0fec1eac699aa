package memory

import (
	"context"
	"testing"
	"time"

	"github.com/hamed0406/pagewatch/internal/domain"
	"github.com/hamed0406/pagewatch/internal/repo"
)

func TestMemoryStore_UpsertListRemove(t *testing.T) {
	ctx := context.Background()
	s := New()

	if _, err := s.Upsert(ctx, domain.MonitoredSite{URL: "https://example.com", DangerLevel: domain.DangerLow, OutputDir: "/out"}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if _, err := s.Upsert(ctx, domain.MonitoredSite{URL: "https://example.org", DangerLevel: domain.DangerHigh}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	all, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 2 || all[0].URL != "https://example.com" {
		t.Fatalf("unexpected list: %+v", all)
	}

	got, err := s.Get(ctx, "https://example.org")
	if err != nil || got == nil || got.DangerLevel != domain.DangerHigh {
		t.Fatalf("Get: %+v err=%v", got, err)
	}
	missing, err := s.Get(ctx, "https://nope")
	if err != nil || missing != nil {
		t.Fatalf("expected nil,nil got %+v %v", missing, err)
	}

	ok, err := s.Remove(ctx, "https://example.com")
	if err != nil || !ok {
		t.Fatalf("Remove: %v %v", ok, err)
	}
	all, _ = s.List(ctx)
	if len(all) != 1 {
		t.Fatalf("expected 1 site after remove, got %d", len(all))
	}
}

func TestMemoryStore_ListReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := New(domain.MonitoredSite{URL: "https://a", DangerLevel: domain.DangerLow, ExcludedElements: []int{1}})

	all, _ := s.List(ctx)
	all[0].ExcludedElements[0] = 99

	again, _ := s.Get(ctx, "https://a")
	if again.ExcludedElements[0] != 1 {
		t.Fatalf("store was mutated through List result: %v", again.ExcludedElements)
	}
}

func TestMemoryStore_Alerts(t *testing.T) {
	ctx := context.Background()
	s := New()

	rec, err := s.GetAlert(ctx, "https://a")
	if err != nil || rec != nil {
		t.Fatalf("expected nil, got %+v err=%v", rec, err)
	}

	now := time.Now()
	if err := s.SetAlert(ctx, repo.AlertRecord{URL: "https://a", LastHealth: domain.HealthDown, LastSentAt: &now}); err != nil {
		t.Fatalf("SetAlert: %v", err)
	}
	rec, err = s.GetAlert(ctx, "https://a")
	if err != nil || rec == nil || rec.LastHealth != domain.HealthDown || rec.LastSentAt == nil {
		t.Fatalf("unexpected: %+v err=%v", rec, err)
	}
}
