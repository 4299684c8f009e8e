package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"
	"github.com/tnicklin/metronome/clock"
	"github.com/tnicklin/metronome/codec"
	"github.com/tnicklin/metronome/logger"
	"github.com/tnicklin/metronome/tick"
	"go.uber.org/multierr"
)

var _ Store = (*FileStore)(nil)

// FileStore keeps one encoded snapshot file per clock in a directory.
type FileStore struct {
	mu     sync.RWMutex
	fs     afero.Fs
	dir    string
	format codec.Format
	logger logger.Logger
	clock  clock.Clock
	open   bool
}

type FileParams struct {
	// Fs defaults to the OS filesystem.
	Fs     afero.Fs
	Dir    string
	Format codec.Format
	Logger logger.Logger
	Clock  clock.Clock
}

// fileRecord is the on-disk layout of a saved clock.
type fileRecord struct {
	Name    string        `json:"name" yaml:"name" cbor:"name"`
	Clock   tick.Snapshot `json:"clock" yaml:"clock" cbor:"clock"`
	SavedAt string        `json:"saved_at" yaml:"saved_at" cbor:"saved_at"`
}

func NewFileStore(p FileParams) *FileStore {
	fsys := p.Fs
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	format := p.Format
	if format == "" {
		format = codec.JSON
	}
	return &FileStore{
		fs:     fsys,
		dir:    p.Dir,
		format: format,
		logger: p.Logger,
		clock:  sourceOrSystem(p.Clock),
	}
}

func (s *FileStore) log() logger.Logger {
	return logOrNop(s.logger)
}

func (s *FileStore) Open(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	s.open = true
	return nil
}

func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.open = false
	return nil
}

// Shutdown closes the store. Every Save is already on disk.
func (s *FileStore) Shutdown(_ context.Context) error {
	return s.Close()
}

func (s *FileStore) Save(ctx context.Context, name string, c tick.Reader) error {
	snap, err := snapshotOf(name, c)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return ErrNotOpen
	}

	data, err := codec.Marshal(s.format, fileRecord{
		Name:    name,
		Clock:   snap,
		SavedAt: s.clock.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("encode clock %q: %w", name, err)
	}

	path := s.path(name)
	tmp := path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		s.log().ErrorW("failed to write clock", "name", name, "path", tmp, "error", err)
		return err
	}
	if err := s.fs.Rename(tmp, path); err != nil {
		_ = s.fs.Remove(tmp)
		s.log().ErrorW("failed to write clock", "name", name, "path", path, "error", err)
		return err
	}

	s.log().DebugW("clock saved",
		"name", name,
		"path", path,
		"tick_rate_ms", snap.TickRateMS,
		"elapsed", snap.Elapsed,
	)
	return nil
}

func (s *FileStore) Get(ctx context.Context, name string) (Record, error) {
	if err := validateName(name); err != nil {
		return Record{}, err
	}
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.open {
		return Record{}, ErrNotOpen
	}
	return s.read(name)
}

func (s *FileStore) List(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.open {
		return nil, ErrNotOpen
	}

	entries, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		return nil, err
	}

	ext := s.format.Extension()
	var (
		out  []Record
		errs error
	)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ext) {
			continue
		}
		rec, err := s.read(strings.TrimSuffix(entry.Name(), ext))
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	if errs != nil {
		s.log().WarnW("unreadable clock files", "dir", s.dir, "error", errs)
	}
	return out, errs
}

func (s *FileStore) Delete(ctx context.Context, name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return ErrNotOpen
	}

	if err := s.fs.Remove(s.path(name)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("clock %q: %w", name, ErrNotFound)
		}
		return err
	}
	s.log().DebugW("clock deleted", "name", name)
	return nil
}

func (s *FileStore) read(name string) (Record, error) {
	data, err := afero.ReadFile(s.fs, s.path(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Record{}, fmt.Errorf("clock %q: %w", name, ErrNotFound)
		}
		return Record{}, err
	}

	var fr fileRecord
	if err := codec.Unmarshal(s.format, data, &fr); err != nil {
		return Record{}, fmt.Errorf("decode clock %q: %w", name, err)
	}
	if err := fr.Clock.Validate(); err != nil {
		return Record{}, fmt.Errorf("clock %q: %w", name, err)
	}
	savedAt, err := time.Parse(time.RFC3339Nano, fr.SavedAt)
	if err != nil {
		return Record{}, fmt.Errorf("clock %q: saved_at: %w", name, err)
	}
	return Record{Name: name, Snapshot: fr.Clock, SavedAt: savedAt}, nil
}

func (s *FileStore) path(name string) string {
	return filepath.Join(s.dir, name+s.format.Extension())
}
