// pkg/phase/marker.go

package phase

import (
	"os"
	"path/filepath"
	"sync"

	cerr "github.com/cockroachdb/errors"
)

// DefaultMarkerDir survives process restarts and reboots of the
// provisioning environment with persistence; it is reset at the start of
// a new installation attempt.
const DefaultMarkerDir = "/var/lib/bedrock/markers"

// MarkerStore persists per-phase completion markers. A marker is a
// presence-only boolean keyed by phase name, decoupled from its storage
// medium so tests can substitute the in-memory implementation.
type MarkerStore interface {
	IsSet(p Phase) (bool, error)
	Set(p Phase) error
	Clear(p Phase) error
	Reset() error
}

// FileMarkerStore keeps one empty file per completed phase.
type FileMarkerStore struct {
	Dir string
}

func NewFileMarkerStore(dir string) *FileMarkerStore {
	if dir == "" {
		dir = DefaultMarkerDir
	}
	return &FileMarkerStore{Dir: dir}
}

func (s *FileMarkerStore) path(p Phase) string {
	return filepath.Join(s.Dir, p.String()+".done")
}

func (s *FileMarkerStore) IsSet(p Phase) (bool, error) {
	_, err := os.Stat(s.path(p))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, cerr.Wrapf(err, "stat marker for %s", p)
}

// Set records completion. The file is created and synced before the
// directory is synced, so a crash can lose the marker (safe: the phase
// re-runs idempotently) but can never persist a marker for work that did
// not finish.
func (s *FileMarkerStore) Set(p Phase) error {
	if err := os.MkdirAll(s.Dir, 0700); err != nil {
		return cerr.Wrapf(err, "create marker directory %s", s.Dir)
	}

	file, err := os.OpenFile(s.path(p), os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return cerr.Wrapf(err, "create marker for %s", p)
	}
	if err := file.Sync(); err != nil {
		_ = file.Close()
		return cerr.Wrapf(err, "sync marker for %s", p)
	}
	if err := file.Close(); err != nil {
		return cerr.Wrapf(err, "close marker for %s", p)
	}

	dir, err := os.Open(s.Dir)
	if err == nil {
		_ = dir.Sync()
		_ = dir.Close()
	}
	return nil
}

func (s *FileMarkerStore) Clear(p Phase) error {
	err := os.Remove(s.path(p))
	if err != nil && !os.IsNotExist(err) {
		return cerr.Wrapf(err, "clear marker for %s", p)
	}
	return nil
}

// Reset clears every marker, starting a new installation attempt.
func (s *FileMarkerStore) Reset() error {
	for _, p := range Order() {
		if err := s.Clear(p); err != nil {
			return err
		}
	}
	return nil
}

// MemoryMarkerStore is the test substitute.
type MemoryMarkerStore struct {
	mu  sync.Mutex
	set map[Phase]bool
}

func NewMemoryMarkerStore() *MemoryMarkerStore {
	return &MemoryMarkerStore{set: make(map[Phase]bool)}
}

func (s *MemoryMarkerStore) IsSet(p Phase) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set[p], nil
}

func (s *MemoryMarkerStore) Set(p Phase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set[p] = true
	return nil
}

func (s *MemoryMarkerStore) Clear(p Phase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.set, p)
	return nil
}

func (s *MemoryMarkerStore) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set = make(map[Phase]bool)
	return nil
}
