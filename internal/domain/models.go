package domain

import (
	"sort"
	"strings"
	"time"
)

type DangerLevel string

const (
	DangerLow      DangerLevel = "Low"
	DangerMedium   DangerLevel = "Medium"
	DangerHigh     DangerLevel = "High"
	DangerCritical DangerLevel = "Critical"
)

// Valid reports whether d is one of the four known levels.
func (d DangerLevel) Valid() bool {
	switch d {
	case DangerLow, DangerMedium, DangerHigh, DangerCritical:
		return true
	}
	return false
}

// MonitoredSite is one registry entry. The JSON keys match the
// monitored_urls.json file written by earlier versions of the tool.
type MonitoredSite struct {
	URL              string      `json:"url"`
	DangerLevel      DangerLevel `json:"danger_level"`
	ExcludedElements []int       `json:"excluded_tags"`
	OutputDir        string      `json:"output_dir,omitempty"`
}

// Normalize sorts and dedupes the exclusion set and drops negative indices.
func (s *MonitoredSite) Normalize() {
	s.URL = strings.TrimSpace(s.URL)
	s.OutputDir = strings.TrimSpace(s.OutputDir)
	s.ExcludedElements = NormalizeIndices(s.ExcludedElements)
}

func NormalizeIndices(in []int) []int {
	seen := make(map[int]struct{}, len(in))
	out := make([]int, 0, len(in))
	for _, i := range in {
		if i < 0 {
			continue
		}
		if _, ok := seen[i]; ok {
			continue
		}
		seen[i] = struct{}{}
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

type HealthStatus string

const (
	HealthUp      HealthStatus = "Up"
	HealthDown    HealthStatus = "Down"
	HealthSlow    HealthStatus = "Slow"
	HealthWarning HealthStatus = "Warning"
	// HealthUnknown is only produced by readers that found no status record.
	HealthUnknown HealthStatus = "Unknown"
)

// HealthResult is the outcome of a single point-in-time reachability check.
type HealthResult struct {
	Status    HealthStatus `json:"status"`
	Port      string       `json:"port"`
	Error     string       `json:"error,omitempty"`
	LatencyMS float64      `json:"latency_ms,omitempty"`
	CheckedAt time.Time    `json:"checked_at"`
}

type Snapshot struct {
	Iteration int       `json:"iteration"`
	HTML      string    `json:"-"`
	WrittenAt time.Time `json:"written_at"`
}

type DiffArtifact struct {
	Iteration  int    `json:"iteration"`
	Added      int    `json:"added"`
	Removed    int    `json:"removed"`
	Text       string `json:"text"`
	HasChanges bool   `json:"has_changes"`
	// Err is set when the diff could not be computed; Text then carries the
	// error message instead of a diff.
	Err error `json:"-"`
}

type StatusRecord struct {
	Health    HealthStatus `json:"health"`
	Port      string       `json:"port"`
	Message   string       `json:"message"`
	Changed   bool         `json:"changed"`
	WrittenAt time.Time    `json:"written_at"`
}

type SessionState string

const (
	StateIdle      SessionState = "Idle"
	StateRunning   SessionState = "Running"
	StateCompleted SessionState = "Completed"
	StateCancelled SessionState = "Cancelled"
	StateFailed    SessionState = "Failed"
)

// Terminal reports whether no further transitions can happen.
func (s SessionState) Terminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StateFailed
}

// SessionInfo is a read-only view of a monitoring session.
type SessionInfo struct {
	ID        string        `json:"id"`
	URL       string        `json:"url"`
	Dir       string        `json:"dir"`
	State     SessionState  `json:"state"`
	Interval  time.Duration `json:"interval"`
	Duration  time.Duration `json:"duration"`
	Iteration int           `json:"iteration"`
	StartedAt time.Time     `json:"started_at"`
}
