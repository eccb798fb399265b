package timesheet

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"
)

// ErrNoData is returned when no snapshot has been loaded yet or the source
// returned an empty list.
var ErrNoData = errors.New("no timesheet data available")

// Snapshot is one immutable fetch cycle of the timesheet list. Every request
// captures a single snapshot at entry and uses it end-to-end, so a refresh
// mid-request can never mix rows from different fetch cycles.
type Snapshot struct {
	Table     *Table
	FetchedAt time.Time
	Version   uint64
}

// Store holds the current snapshot behind an atomic swap. Snapshots are
// replaced wholesale, never merged or mutated in place.
type Store struct {
	mu      sync.RWMutex
	snap    *Snapshot
	version uint64
	logger  *slog.Logger
}

// NewStore creates an empty snapshot store.
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Store{logger: logger}
}

// Current returns the live snapshot, or nil when nothing has been loaded.
func (s *Store) Current() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Swap replaces the current snapshot with a new table and returns the new
// snapshot.
func (s *Store) Swap(t *Table) *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.version++
	s.snap = &Snapshot{
		Table:     t,
		FetchedAt: time.Now(),
		Version:   s.version,
	}
	s.logger.Info("timesheet snapshot swapped", "version", s.snap.Version, "rows", t.Len())
	return s.snap
}

// Restore installs a previously archived snapshot without bumping its
// fetch time, used at startup before the first live fetch completes.
func (s *Store) Restore(snap *Snapshot) {
	if snap == nil || snap.Table == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.version++
	s.snap = &Snapshot{Table: snap.Table, FetchedAt: snap.FetchedAt, Version: s.version}
	s.logger.Info("timesheet snapshot restored from archive",
		"rows", snap.Table.Len(), "fetched_at", snap.FetchedAt)
}

// FetchFunc fetches a fresh table from the remote list.
type FetchFunc func(ctx context.Context) (*Table, error)

// SaveFunc persists a freshly swapped snapshot.
type SaveFunc func(*Snapshot) error

// RunRefresh re-fetches the table every interval until ctx is cancelled,
// passing each swapped snapshot to save (nil to skip persistence). Fetch
// failures keep the previous snapshot in place; save failures are logged
// and do not stop the loop.
func (s *Store) RunRefresh(ctx context.Context, interval time.Duration, fetch FetchFunc, save SaveFunc) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		t, err := fetch(ctx)
		if err != nil {
			s.logger.Error("snapshot refresh failed", "error", err)
			continue
		}
		if t.Len() == 0 {
			s.logger.Warn("snapshot refresh returned no rows, keeping previous snapshot")
			continue
		}
		snap := s.Swap(t)
		if save != nil {
			if err := save(snap); err != nil {
				s.logger.Warn("failed to archive refreshed snapshot", "error", err)
			}
		}
	}
}
