package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/tnicklin/metronome/clock"
	"github.com/tnicklin/metronome/codec"
	"github.com/tnicklin/metronome/logger"
	"github.com/tnicklin/metronome/tick"
)

var (
	ErrNotOpen     = errors.New("store is not open")
	ErrNotFound    = errors.New("clock not found")
	ErrInvalidName = errors.New("invalid clock name")
)

// Record is a saved clock snapshot.
type Record struct {
	Name     string
	Snapshot tick.Snapshot
	SavedAt  time.Time
}

// Store persists clock snapshots by name. Saved clocks carry no time source
// reading, so a loaded clock is always paused.
type Store interface {
	Open(ctx context.Context) error
	Close() error
	Shutdown(ctx context.Context) error

	Save(ctx context.Context, name string, c tick.Reader) error
	Get(ctx context.Context, name string) (Record, error)
	List(ctx context.Context) ([]Record, error)
	Delete(ctx context.Context, name string) error
}

// New returns the store cfg describes.
func New(cfg Config, log logger.Logger) (Store, error) {
	cfg.Defaults()
	switch cfg.Driver {
	case DriverSQLite:
		return NewSQLiteStore(Params{Path: cfg.Path, Logger: log}), nil
	case DriverFile:
		format, err := codec.ParseFormat(cfg.Format)
		if err != nil {
			return nil, err
		}
		return NewFileStore(FileParams{
			Fs:     afero.NewOsFs(),
			Dir:    cfg.Path,
			Format: format,
			Logger: log,
		}), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// Load returns the named clock, paused at the elapsed time it was saved with.
func Load(ctx context.Context, s Store, name string, opts ...tick.Option) (*tick.Clock, error) {
	rec, err := s.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	return tick.FromSnapshot(rec.Snapshot, opts...)
}

func validateName(name string) error {
	if name == "" || strings.HasPrefix(name, ".") || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

func snapshotOf(name string, c tick.Reader) (tick.Snapshot, error) {
	if err := validateName(name); err != nil {
		return tick.Snapshot{}, err
	}
	snap, err := c.Snapshot()
	if err != nil {
		return tick.Snapshot{}, fmt.Errorf("snapshot clock %q: %w", name, err)
	}
	return snap, nil
}

func sourceOrSystem(c clock.Clock) clock.Clock {
	if c == nil {
		return clock.System()
	}
	return c
}

// nopLogger is a no-op logger for when no logger is configured.
type nopLogger struct{}

func (nopLogger) DebugW(_ string, _ ...any) {}
func (nopLogger) InfoW(_ string, _ ...any)  {}
func (nopLogger) WarnW(_ string, _ ...any)  {}
func (nopLogger) ErrorW(_ string, _ ...any) {}
func (nopLogger) Sync() error               { return nil }

func logOrNop(l logger.Logger) logger.Logger {
	if l == nil {
		return nopLogger{}
	}
	return l
}
