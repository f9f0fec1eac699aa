// Package status derives a per-site summary from the newest session
// directory on disk. It works across processes: the writer may be another
// pagewatch instance.
package status

import (
	"errors"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/pagewatch/internal/differ"
	"github.com/hamed0406/pagewatch/internal/domain"
	"github.com/hamed0406/pagewatch/internal/snapshot"
)

const DefaultActiveWindow = 60 * time.Second

type Summary struct {
	URL                  string              `json:"url"`
	DangerLevel          domain.DangerLevel  `json:"danger_level"`
	Health               domain.HealthStatus `json:"health"`
	Port                 string              `json:"port"`
	IsActivelyMonitoring bool                `json:"is_actively_monitoring"`
	StatusLine           string              `json:"status_line,omitempty"`
	LastChangeMessage    string              `json:"last_change_message,omitempty"`
	LatestDiff           string              `json:"latest_diff,omitempty"`
	LatestDiffIteration  int                 `json:"latest_diff_iteration,omitempty"`
	DiffSummary          string              `json:"diff_summary,omitempty"`
	SessionDir           string              `json:"session_dir,omitempty"`
	UpdatedAt            time.Time           `json:"updated_at,omitempty"`
}

// Reader builds summaries. Live, when set, answers liveness in-process;
// otherwise a session counts as active if any of its files changed within
// ActiveWindow.
type Reader struct {
	Live         func(url string) bool
	ActiveWindow time.Duration
	Now          func() time.Time
	Logger       *zap.Logger
}

func NewReader(live func(string) bool, window time.Duration, log *zap.Logger) *Reader {
	if window <= 0 {
		window = DefaultActiveWindow
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Reader{Live: live, ActiveWindow: window, Now: time.Now, Logger: log}
}

// Describe never fails; anything unreadable degrades to Unknown.
func (r *Reader) Describe(site domain.MonitoredSite) Summary {
	sum := Summary{
		URL:         site.URL,
		DangerLevel: site.DangerLevel,
		Health:      domain.HealthUnknown,
		Port:        "unknown",
	}
	if r.Live != nil {
		sum.IsActivelyMonitoring = r.Live(site.URL)
	}
	if site.OutputDir == "" {
		return sum
	}

	name, err := snapshot.LatestSessionDir(site.OutputDir, site.URL)
	if err != nil {
		r.log().Warn("status_scan_failed", zap.String("url", site.URL), zap.Error(err))
		return sum
	}
	if name == "" {
		return sum
	}
	dir := filepath.Join(site.OutputDir, name)
	sum.SessionDir = dir

	if r.Live == nil {
		if mod, err := snapshot.LastModified(dir); err == nil {
			sum.IsActivelyMonitoring = r.now().Sub(mod) < r.window()
		}
	}

	line, mod, err := snapshot.ReadStatusLine(dir)
	switch {
	case errors.Is(err, snapshot.ErrNoStatus):
	case err != nil:
		r.log().Warn("status_read_failed", zap.String("dir", dir), zap.Error(err))
	default:
		sum.StatusLine = line
		sum.UpdatedAt = mod
		if rec, perr := snapshot.ParseStatus(line); perr == nil {
			sum.Health = rec.Health
			sum.Port = rec.Port
		}
		if snapshot.IsChangeLine(line) {
			sum.LastChangeMessage = line
		}
	}

	n, text, ok, err := snapshot.LatestDiff(dir)
	if err != nil {
		r.log().Warn("diff_read_failed", zap.String("dir", dir), zap.Error(err))
	} else if ok {
		sum.LatestDiff = text
		sum.LatestDiffIteration = n
		sum.DiffSummary = differ.Summarize(text)
	}
	return sum
}

func (r *Reader) DescribeAll(sites []domain.MonitoredSite) []Summary {
	out := make([]Summary, 0, len(sites))
	for _, s := range sites {
		out = append(out, r.Describe(s))
	}
	return out
}

func (r *Reader) now() time.Time {
	if r.Now == nil {
		return time.Now()
	}
	return r.Now()
}

func (r *Reader) window() time.Duration {
	if r.ActiveWindow <= 0 {
		return DefaultActiveWindow
	}
	return r.ActiveWindow
}

func (r *Reader) log() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}
