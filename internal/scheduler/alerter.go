package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hamed0406/pagewatch/internal/domain"
	"github.com/hamed0406/pagewatch/internal/notify"
	"github.com/hamed0406/pagewatch/internal/repo"
	"github.com/hamed0406/pagewatch/internal/status"
)

type AlerterConfig struct {
	AlertOnRecovery bool
	Cooldown        time.Duration
	PollInterval    time.Duration
}

// SummarySource yields the current summary of every registered site.
type SummarySource interface {
	DescribeAll(ctx context.Context) ([]status.Summary, error)
}

// Alerter polls site summaries and notifies on new detected changes, on
// transitions to Down (subject to Cooldown) and optionally on recovery.
type Alerter struct {
	log       *zap.Logger
	summaries SummarySource
	alertDB   repo.AlertStore
	notifier  notify.Notifier
	cfg       AlerterConfig
	now       func() time.Time
}

func NewAlerter(
	log *zap.Logger,
	summaries SummarySource,
	alertDB repo.AlertStore,
	notifier notify.Notifier,
	cfg AlerterConfig,
) *Alerter {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 15 * time.Second
	}
	return &Alerter{
		log:       log,
		summaries: summaries,
		alertDB:   alertDB,
		notifier:  notifier,
		cfg:       cfg,
		now:       time.Now,
	}
}

func (a *Alerter) Run(ctx context.Context) error {
	t := time.NewTicker(a.cfg.PollInterval)
	defer t.Stop()

	// initial pass
	if err := a.scanOnce(ctx); err != nil {
		a.log.Warn("alerter_scan_failed", zap.Error(err))
	}

	for {
		select {
		case <-ctx.Done():
			a.log.Info("alerter_stopped")
			return ctx.Err()
		case <-t.C:
			if err := a.scanOnce(ctx); err != nil {
				a.log.Warn("alerter_scan_failed", zap.Error(err))
			}
		}
	}
}

func changeKey(s status.Summary) string {
	if s.LastChangeMessage == "" {
		return ""
	}
	return s.SessionDir + "|" + s.LastChangeMessage
}

func (a *Alerter) scanOnce(ctx context.Context) error {
	sums, err := a.summaries.DescribeAll(ctx)
	if err != nil {
		return err
	}

	now := a.now()
	var errs error

	for _, s := range sums {
		rec, err := a.alertDB.GetAlert(ctx, s.URL)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		next := repo.AlertRecord{URL: s.URL, LastHealth: s.Health}
		if rec != nil {
			next.LastChangeKey = rec.LastChangeKey
			next.LastSentAt = rec.LastSentAt
		}
		if s.Health == domain.HealthUnknown && rec != nil {
			next.LastHealth = rec.LastHealth
		}
		sent := false

		if key := changeKey(s); key != "" && key != next.LastChangeKey {
			a.send(ctx, s, fmt.Sprintf("🟠 [%s] Change detected", s.DangerLevel), changeText(s))
			next.LastChangeKey = key
			sent = true
		}

		if s.Health != domain.HealthUnknown {
			wasDown := rec != nil && rec.LastHealth == domain.HealthDown
			isDown := s.Health == domain.HealthDown
			stateChanged := rec == nil || wasDown != isDown

			// Cooldown only matters for DOWN alerts (suppresses noisy repeats).
			cooled := true
			if rec != nil && rec.LastSentAt != nil {
				cooled = now.Sub(*rec.LastSentAt) >= a.cfg.Cooldown
			}

			switch {
			case stateChanged && isDown && cooled:
				a.send(ctx, s, fmt.Sprintf("🔴 [%s] Site DOWN", s.DangerLevel), healthText(s))
				sent = true
			case stateChanged && !isDown && wasDown && a.cfg.AlertOnRecovery:
				a.send(ctx, s, fmt.Sprintf("🟢 [%s] Site RECOVERED", s.DangerLevel), healthText(s))
				sent = true
			}
		}

		if sent {
			next.LastSentAt = &now
		}
		if rec == nil || sent || !sameRecord(*rec, next) {
			errs = multierr.Append(errs, a.alertDB.SetAlert(ctx, next))
		}
	}
	return errs
}

func sameRecord(a, b repo.AlertRecord) bool {
	if a.URL != b.URL || a.LastHealth != b.LastHealth || a.LastChangeKey != b.LastChangeKey {
		return false
	}
	if (a.LastSentAt == nil) != (b.LastSentAt == nil) {
		return false
	}
	return a.LastSentAt == nil || a.LastSentAt.Equal(*b.LastSentAt)
}

// send is best effort: a failed notification is logged, not retried.
func (a *Alerter) send(ctx context.Context, s status.Summary, title, text string) {
	if err := a.notifier.Send(ctx, title, text); err != nil {
		a.log.Warn("alert_send_failed", zap.String("url", s.URL), zap.String("title", title), zap.Error(err))
		return
	}
	a.log.Info("alert_sent", zap.String("url", s.URL), zap.String("title", title))
}

func healthText(s status.Summary) string {
	checked := "n/a"
	if !s.UpdatedAt.IsZero() {
		checked = s.UpdatedAt.Format(time.RFC3339)
	}
	return fmt.Sprintf("URL: %s\nHealth: %s\nPort: %s\nStatus: %s\nChecked: %s",
		s.URL, s.Health, s.Port, s.StatusLine, checked)
}

func changeText(s status.Summary) string {
	text := fmt.Sprintf("URL: %s\nDanger level: %s\n%s", s.URL, s.DangerLevel, s.LastChangeMessage)
	if s.DiffSummary != "" {
		text += "\n\n" + s.DiffSummary
	}
	return text
}
