package snapshot

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/hamed0406/pagewatch/internal/atomicfile"
	"github.com/hamed0406/pagewatch/internal/differ"
	"github.com/hamed0406/pagewatch/internal/domain"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644
	maxSeq   = 100
)

// Store creates session directories. Now is swappable for tests.
type Store struct {
	Now func() time.Time
}

func NewStore() *Store { return &Store{Now: time.Now} }

// Session writes the artifacts of one monitoring session.
type Session struct {
	Dir string
	now func() time.Time
}

// CreateSession makes <outputDir>/<site>_<timestamp> and returns a writer
// for it. It never reuses an existing directory.
func (s *Store) CreateSession(outputDir, url string) (*Session, error) {
	now := s.now()
	if err := os.MkdirAll(outputDir, dirPerm); err != nil {
		return nil, &domain.StorageError{Op: "mkdir", Path: outputDir, Err: err}
	}
	for seq := 0; seq < maxSeq; seq++ {
		dir := filepath.Join(outputDir, sessionName(url, now, seq))
		err := os.Mkdir(dir, dirPerm)
		if err == nil {
			return &Session{Dir: dir, now: s.now}, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, &domain.StorageError{Op: "mkdir", Path: dir, Err: err}
		}
	}
	return nil, &domain.StorageError{
		Op:   "mkdir",
		Path: filepath.Join(outputDir, sessionName(url, now, 0)),
		Err:  errors.New("too many sessions started within one second"),
	}
}

func (s *Store) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// WriteInitial persists the baseline as iteration 0.
func (s *Session) WriteInitial(html string) (domain.Snapshot, error) {
	return s.writeSnapshot(0, InitialFile, html)
}

func (s *Session) WriteSnapshot(iteration int, html string) (domain.Snapshot, error) {
	return s.writeSnapshot(iteration, SnapshotFile(iteration), html)
}

func (s *Session) writeSnapshot(iteration int, name, html string) (domain.Snapshot, error) {
	path := filepath.Join(s.Dir, name)
	if err := os.WriteFile(path, []byte(html), filePerm); err != nil {
		return domain.Snapshot{}, &domain.StorageError{Op: "write", Path: path, Err: err}
	}
	return domain.Snapshot{Iteration: iteration, HTML: html, WrittenAt: s.now()}, nil
}

// WriteDiff persists an artifact; an empty diff is stored as the
// "No changes detected." sentinel.
func (s *Session) WriteDiff(art domain.DiffArtifact) error {
	text := art.Text
	if text == "" {
		text = differ.NoChanges
	}
	path := filepath.Join(s.Dir, DiffFile(art.Iteration))
	if err := os.WriteFile(path, []byte(text), filePerm); err != nil {
		return &domain.StorageError{Op: "write", Path: path, Err: err}
	}
	return nil
}

// WriteStatus replaces status.txt with a single formatted line.
func (s *Session) WriteStatus(rec domain.StatusRecord) error {
	path := filepath.Join(s.Dir, StatusFile)
	if err := atomicfile.WriteFile(path, []byte(FormatStatus(rec)), filePerm); err != nil {
		return &domain.StorageError{Op: "write", Path: path, Err: err}
	}
	return nil
}

// Exists reports whether the session directory is still present.
func (s *Session) Exists() bool {
	fi, err := os.Stat(s.Dir)
	return err == nil && fi.IsDir()
}
