package status

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hamed0406/pagewatch/internal/domain"
	"github.com/hamed0406/pagewatch/internal/snapshot"
)

const site = "https://example.com"

func writeSession(t *testing.T, out string, at time.Time, status string, diffs map[int]string) string {
	t.Helper()
	st := &snapshot.Store{Now: func() time.Time { return at }}
	s, err := st.CreateSession(out, site)
	require.NoError(t, err)
	if status != "" {
		require.NoError(t, os.WriteFile(filepath.Join(s.Dir, snapshot.StatusFile), []byte(status), 0o644))
	}
	for n, text := range diffs {
		require.NoError(t, s.WriteDiff(domain.DiffArtifact{Iteration: n, Text: text}))
	}
	return s.Dir
}

func TestDescribe_NoOutputDirOrSessions(t *testing.T) {
	r := NewReader(nil, 0, nil)

	sum := r.Describe(domain.MonitoredSite{URL: site, DangerLevel: domain.DangerLow})
	assert.Equal(t, domain.HealthUnknown, sum.Health)
	assert.Equal(t, "unknown", sum.Port)
	assert.False(t, sum.IsActivelyMonitoring)

	sum = r.Describe(domain.MonitoredSite{URL: site, DangerLevel: domain.DangerLow, OutputDir: t.TempDir()})
	assert.Equal(t, domain.HealthUnknown, sum.Health)
	assert.Empty(t, sum.SessionDir)
}

func TestDescribe_ReadsNewestSession(t *testing.T) {
	out := t.TempDir()
	writeSession(t, out, time.Date(2024, 1, 1, 0, 0, 0, 0, time.Local),
		"Status: Down | Port: 80 | Erreur: old à 00:00:00", nil)
	newest := writeSession(t, out, time.Date(2024, 6, 1, 0, 0, 0, 0, time.Local),
		"Status: Up | Port: 443 | Changements détectés à 12:00:00",
		map[int]string{2: "two", 10: "-a\n+b", 9: "nine"})

	r := NewReader(nil, time.Minute, nil)
	sum := r.Describe(domain.MonitoredSite{URL: site, DangerLevel: domain.DangerCritical, OutputDir: out})

	assert.Equal(t, newest, sum.SessionDir)
	assert.Equal(t, domain.HealthUp, sum.Health)
	assert.Equal(t, "443", sum.Port)
	assert.Equal(t, domain.DangerCritical, sum.DangerLevel)
	assert.Equal(t, "Status: Up | Port: 443 | Changements détectés à 12:00:00", sum.LastChangeMessage)
	assert.Equal(t, 10, sum.LatestDiffIteration)
	assert.Equal(t, "-a\n+b", sum.LatestDiff)
	assert.Contains(t, sum.DiffSummary, "1 lines added")
	assert.True(t, sum.IsActivelyMonitoring, "files were just written")
}

func TestDescribe_NoChangeLineIsNotAChange(t *testing.T) {
	out := t.TempDir()
	writeSession(t, out, time.Now(), "Status: Up | Port: 443 | Pas de changements détectés à 12:00:00", nil)

	sum := NewReader(nil, 0, nil).Describe(domain.MonitoredSite{URL: site, OutputDir: out})
	assert.Empty(t, sum.LastChangeMessage)
	assert.Equal(t, domain.HealthUp, sum.Health)
}

func TestDescribe_ActivityWindow(t *testing.T) {
	out := t.TempDir()
	writeSession(t, out, time.Now(), "Status: Up | Port: 443 | Pas de changements détectés à 12:00:00", nil)

	r := NewReader(nil, time.Minute, nil)
	r.Now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	sum := r.Describe(domain.MonitoredSite{URL: site, OutputDir: out})
	assert.False(t, sum.IsActivelyMonitoring)
}

func TestDescribe_InProcessLivenessWins(t *testing.T) {
	out := t.TempDir()
	writeSession(t, out, time.Now(), "Status: Up | Port: 443 | Pas de changements détectés à 12:00:00", nil)

	live := NewReader(func(string) bool { return false }, time.Hour, nil)
	assert.False(t, live.Describe(domain.MonitoredSite{URL: site, OutputDir: out}).IsActivelyMonitoring)

	idle := NewReader(func(u string) bool { return u == site }, time.Nanosecond, nil)
	assert.True(t, idle.Describe(domain.MonitoredSite{URL: site, OutputDir: out}).IsActivelyMonitoring)
}

func TestDescribeAll_KeepsOrder(t *testing.T) {
	r := NewReader(nil, 0, nil)
	got := r.DescribeAll([]domain.MonitoredSite{{URL: "https://b"}, {URL: "https://a"}})
	require.Len(t, got, 2)
	assert.Equal(t, "https://b", got[0].URL)
	assert.Equal(t, "https://a", got[1].URL)
}
