package snapshot

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hamed0406/pagewatch/internal/domain"
)

// ErrNoStatus is returned when a session directory has no status.txt yet.
var ErrNoStatus = errors.New("no status recorded")

// ReadStatusLine returns the first line of dir/status.txt and its mtime.
func ReadStatusLine(dir string) (string, time.Time, error) {
	path := filepath.Join(dir, StatusFile)
	fi, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", time.Time{}, ErrNoStatus
		}
		return "", time.Time{}, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", time.Time{}, err
	}
	line := strings.TrimSpace(string(raw))
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}
	if line == "" {
		return "", time.Time{}, ErrNoStatus
	}
	return line, fi.ModTime(), nil
}

// ReadStatus parses dir/status.txt. WrittenAt is taken from the file's
// modification time.
func ReadStatus(dir string) (domain.StatusRecord, error) {
	line, mod, err := ReadStatusLine(dir)
	if err != nil {
		return domain.StatusRecord{}, err
	}
	rec, err := ParseStatus(line)
	if err != nil {
		return domain.StatusRecord{}, err
	}
	rec.WrittenAt = mod
	return rec, nil
}

// LatestDiff returns the diff with the highest iteration number in dir.
// ok is false when the session has no diff yet.
func LatestDiff(dir string) (iteration int, text string, ok bool, err error) {
	its, err := diffIterations(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, "", false, nil
		}
		return 0, "", false, err
	}
	if len(its) == 0 {
		return 0, "", false, nil
	}
	n := its[len(its)-1]
	raw, err := os.ReadFile(filepath.Join(dir, DiffFile(n)))
	if err != nil {
		return 0, "", false, err
	}
	return n, string(raw), true, nil
}

// LastModified is the newest mtime among the files directly inside dir.
func LastModified(dir string) (time.Time, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return time.Time{}, err
	}
	var newest time.Time
	for _, e := range entries {
		fi, err := e.Info()
		if err != nil {
			continue
		}
		if fi.ModTime().After(newest) {
			newest = fi.ModTime()
		}
	}
	return newest, nil
}
