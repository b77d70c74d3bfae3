// Package checkpoint persists simulation progress to durable files so
// an interrupted run can resume.
package checkpoint

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"cartstorm/internal/domain"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrNoCheckpoint is returned by LoadLatest when none exists.
var ErrNoCheckpoint = errors.New("no checkpoint found")

const (
	filePrefix = "checkpoint-"
	fileSuffix = ".json"
	tmpSuffix  = ".tmp"
)

// Store writes checkpoints to a directory. Each checkpoint publishes
// atomically (write temp, then rename) and older files are pruned
// down to the retention count.
type Store struct {
	dir      string
	interval int64 // checkpoint every N cycles; 0 disables periodic saves
	keep     int   // retain the newest K checkpoints
	logger   *log.Logger
}

// NewStore creates the directory if needed.
func NewStore(dir string, interval int64, keep int, logger *log.Logger) (*Store, error) {
	if keep < 1 {
		keep = 1
	}
	if logger == nil {
		logger = log.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoint dir: %w", err)
	}
	return &Store{dir: dir, interval: interval, keep: keep, logger: logger}, nil
}

// ShouldCheckpoint reports whether a periodic save is due at the end
// of the given cycle.
func (s *Store) ShouldCheckpoint(cycleIndex int64) bool {
	return s.interval > 0 && cycleIndex > 0 && cycleIndex%s.interval == 0
}

// Save publishes a checkpoint atomically and prunes old ones.
func (s *Store) Save(cp *domain.Checkpoint) error {
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	final := filepath.Join(s.dir, fmt.Sprintf("%s%010d%s", filePrefix, cp.CycleIndex, fileSuffix))
	tmp := final + tmpSuffix

	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint temp file: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("publish checkpoint: %w", err)
	}

	if err := s.prune(); err != nil {
		// The checkpoint itself is published; pruning is housekeeping.
		s.logger.Printf("[checkpoint] prune failed: %v", err)
	}
	return nil
}

// SaveEmergency attempts a best-effort save on an unhandled failure
// path. Its own failure is logged, never returned, so it cannot mask
// the original error.
func (s *Store) SaveEmergency(cp *domain.Checkpoint) {
	if cp == nil {
		return
	}
	if err := s.Save(cp); err != nil {
		s.logger.Printf("[checkpoint] emergency save failed: %v", err)
		return
	}
	s.logger.Printf("[checkpoint] emergency checkpoint written for cycle %d", cp.CycleIndex)
}

// LoadLatest returns the newest readable checkpoint. A corrupt newest
// file falls back to the one before it.
func (s *Store) LoadLatest() (*domain.Checkpoint, error) {
	files, err := s.list()
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, ErrNoCheckpoint
	}

	// Newest first.
	for i := len(files) - 1; i >= 0; i-- {
		cp, err := s.load(files[i])
		if err != nil {
			s.logger.Printf("[checkpoint] skipping unreadable %s: %v", files[i], err)
			continue
		}
		return cp, nil
	}
	return nil, ErrNoCheckpoint
}

func (s *Store) load(name string) (*domain.Checkpoint, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return nil, err
	}
	var cp domain.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("unmarshal checkpoint: %w", err)
	}
	return &cp, nil
}

// list returns published checkpoint file names sorted ascending by
// cycle index (lexical order matches because of the zero padding).
func (s *Store) list() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read checkpoint dir: %w", err)
	}

	var files []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		files = append(files, name)
	}
	sort.Strings(files)
	return files, nil
}

// prune deletes all but the newest keep checkpoints.
func (s *Store) prune() error {
	files, err := s.list()
	if err != nil {
		return err
	}
	if len(files) <= s.keep {
		return nil
	}
	for _, name := range files[:len(files)-s.keep] {
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
			return fmt.Errorf("remove superseded checkpoint %s: %w", name, err)
		}
	}
	return nil
}
