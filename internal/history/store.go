// Package history keeps the bounded, most-recent-first list of generated forms.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"formgenie/internal/form"
	"formgenie/internal/storage"
)

const (
	DefaultKey      = "formGenieHistory"
	DefaultCapacity = 50
)

var ErrNotFound = errors.New("history entry not found")

type Config struct {
	Port     storage.Port
	Key      string
	Capacity int
	Logger   zerolog.Logger
	Now      func() time.Time
	NewID    func() string
}

type Store struct {
	mu       sync.Mutex
	port     storage.Port
	key      string
	capacity int
	logger   zerolog.Logger
	now      func() time.Time
	newID    func() string
	entries  []form.SavedForm
}

// Open restores the last snapshot. A corrupt or unreadable snapshot is logged
// and replaced by an empty history.
func Open(ctx context.Context, cfg Config) *Store {
	if cfg.Key == "" {
		cfg.Key = DefaultKey
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = form.NewID
	}
	s := &Store{
		port:     cfg.Port,
		key:      cfg.Key,
		capacity: cfg.Capacity,
		logger:   cfg.Logger.With().Str("component", "history").Logger(),
		now:      cfg.Now,
		newID:    cfg.NewID,
		entries:  []form.SavedForm{},
	}
	s.restore(ctx)
	return s
}

func (s *Store) restore(ctx context.Context) {
	raw, ok, err := s.port.Load(ctx, s.key)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to read history snapshot")
		return
	}
	if !ok {
		return
	}
	var entries []form.SavedForm
	if err := json.Unmarshal(raw, &entries); err != nil {
		s.logger.Warn().Err(err).Msg("failed to parse history")
		return
	}
	for i := range entries {
		entries[i].Normalize()
	}
	if len(entries) > s.capacity {
		entries = entries[:s.capacity]
	}
	s.entries = entries
}

// Record freezes a copy of structure at the head of the history and drops
// whatever falls beyond capacity.
func (s *Store) Record(ctx context.Context, structure form.Structure) (form.SavedForm, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := form.NewSavedForm(structure, s.newID(), s.now())
	entry.Normalize()
	next := make([]form.SavedForm, 0, len(s.entries)+1)
	next = append(next, entry)
	next = append(next, s.entries...)
	if len(next) > s.capacity {
		next = next[:s.capacity]
	}
	s.entries = next
	return entry, s.persist(ctx)
}

// List returns entries in insertion order, newest first.
func (s *Store) List() []form.SavedForm {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneEntries(s.entries)
}

// SortedBySavedAt orders by savedAt descending, ties keeping insertion order.
func (s *Store) SortedBySavedAt() []form.SavedForm {
	out := s.List()
	sort.SliceStable(out, func(i, j int) bool { return out[i].SavedAt > out[j].SavedAt })
	return out
}

// Recent returns at most n of the newest entries.
func (s *Store) Recent(n int) []form.SavedForm {
	out := s.List()
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

func (s *Store) Get(historyID string) (form.SavedForm, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.HistoryID == historyID {
			return cloneEntry(e), true
		}
	}
	return form.SavedForm{}, false
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Remove deletes one entry. Removing an unknown id changes nothing.
func (s *Store) Remove(ctx context.Context, historyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make([]form.SavedForm, 0, len(s.entries))
	for _, e := range s.entries {
		if e.HistoryID != historyID {
			next = append(next, e)
		}
	}
	if len(next) == len(s.entries) {
		return nil
	}
	s.entries = next
	return s.persist(ctx)
}

func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = []form.SavedForm{}
	return s.persist(ctx)
}

// Reset drops in-memory entries without touching storage, used after the
// backing keys were wiped elsewhere.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = []form.SavedForm{}
}

func (s *Store) persist(ctx context.Context) error {
	b, err := json.Marshal(s.entries)
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	if err := s.port.Save(ctx, s.key, b); err != nil {
		s.logger.Error().Err(err).Msg("failed to persist history")
		return fmt.Errorf("persist history: %w", err)
	}
	return nil
}

func cloneEntry(e form.SavedForm) form.SavedForm {
	e.Structure = e.Structure.Clone()
	return e
}

func cloneEntries(in []form.SavedForm) []form.SavedForm {
	out := make([]form.SavedForm, len(in))
	for i, e := range in {
		out[i] = cloneEntry(e)
	}
	return out
}
