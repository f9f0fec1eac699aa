package scheduler

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hamed0406/pagewatch/internal/domain"
	"github.com/hamed0406/pagewatch/internal/repo/memory"
	"github.com/hamed0406/pagewatch/internal/status"
)

// ---- shared helpers ----

type fakeSummaries struct {
	rows []status.Summary
	err  error
}

func (f *fakeSummaries) DescribeAll(ctx context.Context) ([]status.Summary, error) {
	return f.rows, f.err
}

func summary(url string, h domain.HealthStatus, change string) status.Summary {
	return status.Summary{
		URL:               url,
		DangerLevel:       domain.DangerHigh,
		Health:            h,
		Port:              "443",
		SessionDir:        "/out/" + url,
		LastChangeMessage: change,
		UpdatedAt:         time.Now(),
	}
}

type memNotifier struct {
	titles []string
	err    error
}

func (m *memNotifier) Send(ctx context.Context, title, text string) error {
	m.titles = append(m.titles, title)
	return m.err
}

func newAlerter(src SummarySource, nt *memNotifier, cfg AlerterConfig) *Alerter {
	return NewAlerter(nil, src, memory.New(), nt, cfg)
}

// ---- tests ----

func TestAlerter_SendsOnDown_RespectsCooldown(t *testing.T) {
	src := &fakeSummaries{rows: []status.Summary{summary("https://a", domain.HealthDown, "")}}
	nt := &memNotifier{}
	al := newAlerter(src, nt, AlerterConfig{AlertOnRecovery: true, Cooldown: time.Minute})

	// first scan -> should alert
	if err := al.scanOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(nt.titles) != 1 || !strings.Contains(nt.titles[0], "DOWN") {
		t.Fatalf("want 1 down alert, got %v", nt.titles)
	}
	if !strings.Contains(nt.titles[0], "[High]") {
		t.Fatalf("title should carry danger level: %q", nt.titles[0])
	}

	// second scan same DOWN -> no new alert
	if err := al.scanOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(nt.titles) != 1 {
		t.Fatalf("want no repeat, got %v", nt.titles)
	}

	// flip to UP -> recovery alert allowed
	src.rows = []status.Summary{summary("https://a", domain.HealthUp, "")}
	if err := al.scanOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(nt.titles) != 2 || !strings.Contains(nt.titles[1], "RECOVERED") {
		t.Fatalf("want recovery alert, got %v", nt.titles)
	}

	// down again within cooldown -> suppressed
	src.rows = []status.Summary{summary("https://a", domain.HealthDown, "")}
	if err := al.scanOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(nt.titles) != 2 {
		t.Fatalf("want cooldown to suppress, got %v", nt.titles)
	}
}

func TestAlerter_NoRecoveryIfDisabled(t *testing.T) {
	src := &fakeSummaries{rows: []status.Summary{summary("https://b", domain.HealthUp, "")}}
	nt := &memNotifier{}
	al := newAlerter(src, nt, AlerterConfig{AlertOnRecovery: false})

	// first time UP -> nothing to report
	if err := al.scanOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(nt.titles) != 0 {
		t.Fatalf("unexpected alert: %v", nt.titles)
	}

	// go DOWN -> should alert
	src.rows = []status.Summary{summary("https://b", domain.HealthDown, "")}
	if err := al.scanOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(nt.titles) != 1 {
		t.Fatalf("want one down alert, got %v", nt.titles)
	}

	// back UP with recovery disabled -> silent
	src.rows = []status.Summary{summary("https://b", domain.HealthSlow, "")}
	if err := al.scanOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(nt.titles) != 1 {
		t.Fatalf("recovery should be silent, got %v", nt.titles)
	}
}

func TestAlerter_ChangeNotifiedOncePerStatus(t *testing.T) {
	line := "Status: Up | Port: 443 | Changements détectés à 10:00:00"
	src := &fakeSummaries{rows: []status.Summary{summary("https://c", domain.HealthUp, line)}}
	nt := &memNotifier{}
	al := newAlerter(src, nt, AlerterConfig{})

	for i := 0; i < 3; i++ {
		if err := al.scanOnce(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	if len(nt.titles) != 1 || !strings.Contains(nt.titles[0], "Change detected") {
		t.Fatalf("want exactly one change alert, got %v", nt.titles)
	}

	src.rows = []status.Summary{summary("https://c", domain.HealthUp, strings.Replace(line, "10:00:00", "10:05:00", 1))}
	if err := al.scanOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(nt.titles) != 2 {
		t.Fatalf("want a second change alert, got %v", nt.titles)
	}
}

func TestAlerter_UnknownHealthIsIgnored(t *testing.T) {
	src := &fakeSummaries{rows: []status.Summary{summary("https://d", domain.HealthUnknown, "")}}
	nt := &memNotifier{}
	al := newAlerter(src, nt, AlerterConfig{AlertOnRecovery: true})

	if err := al.scanOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(nt.titles) != 0 {
		t.Fatalf("unexpected alert: %v", nt.titles)
	}
}

func TestAlerter_SourceErrorIsReturned(t *testing.T) {
	boom := errors.New("boom")
	al := newAlerter(&fakeSummaries{err: boom}, &memNotifier{}, AlerterConfig{})
	if err := al.scanOnce(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("want boom, got %v", err)
	}
}

func TestAlerter_RunStopsOnCancel(t *testing.T) {
	src := &fakeSummaries{}
	al := newAlerter(src, &memNotifier{}, AlerterConfig{PollInterval: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- al.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("want context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}
