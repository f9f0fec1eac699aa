// Package snapshot owns the on-disk layout of a monitoring session:
//
//	<output_dir>/<site>_<YYYYMMDD_HHMMSS>/
//	    initial_snapshot.html
//	    snapshot_<n>.html
//	    diff_<n>.txt
//	    status.txt
//
// Only the session's own goroutine writes into its directory; readers may
// live in another process.
package snapshot

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	InitialFile = "initial_snapshot.html"
	StatusFile  = "status.txt"

	sessionTimeLayout = "20060102_150405"
)

func SnapshotFile(iteration int) string { return fmt.Sprintf("snapshot_%d.html", iteration) }
func DiffFile(iteration int) string     { return fmt.Sprintf("diff_%d.txt", iteration) }

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// SitePrefix turns a URL into a directory-name prefix:
// "https://example.com/a?b" becomes "https_example.com_a_b".
func SitePrefix(url string) string {
	s := strings.Replace(url, "://", "_", 1)
	s = strings.ReplaceAll(s, "/", "_")
	return unsafeChars.ReplaceAllString(s, "_")
}

// sessionName is the directory name for a session started at t; seq > 0
// disambiguates two sessions started within the same second.
func sessionName(url string, t time.Time, seq int) string {
	name := SitePrefix(url) + "_" + t.Format(sessionTimeLayout)
	if seq > 0 {
		name += "-" + strconv.Itoa(seq)
	}
	return name
}

type sessionKey struct {
	at  time.Time
	seq int
}

// parseSessionName reports whether name is a session directory of prefix.
func parseSessionName(prefix, name string) (sessionKey, bool) {
	rest, ok := strings.CutPrefix(name, prefix+"_")
	if !ok {
		return sessionKey{}, false
	}
	stamp, seqText, hasSeq := strings.Cut(rest, "-")
	at, err := time.ParseInLocation(sessionTimeLayout, stamp, time.Local)
	if err != nil {
		return sessionKey{}, false
	}
	k := sessionKey{at: at}
	if hasSeq {
		n, err := strconv.Atoi(seqText)
		if err != nil || n < 1 {
			return sessionKey{}, false
		}
		k.seq = n
	}
	return k, true
}

// LatestSessionDir returns the name of the newest session directory for url
// under outputDir, or "" when there is none.
func LatestSessionDir(outputDir, url string) (string, error) {
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", err
	}
	prefix := SitePrefix(url)
	var (
		best    string
		bestKey sessionKey
	)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		k, ok := parseSessionName(prefix, e.Name())
		if !ok {
			continue
		}
		if best == "" || k.at.After(bestKey.at) || (k.at.Equal(bestKey.at) && k.seq > bestKey.seq) {
			best, bestKey = e.Name(), k
		}
	}
	return best, nil
}

var diffName = regexp.MustCompile(`^diff_(\d+)\.txt$`)

// diffIterations lists the iterations that have a diff file, ascending.
func diffIterations(dir string) ([]int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []int
	for _, e := range entries {
		m := diffName.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		out = append(out, n)
	}
	sort.Ints(out)
	return out, nil
}
