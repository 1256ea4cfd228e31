package settings

import (
	"context"
	"errors"
	"sync"

	"siteguard/internal/config"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog/log"
)

const maxUpdateAttempts = 5

// Listener receives the keys changed by one committed update.
type Listener func(ctx context.Context, changes []Change)

// Store persists settings as whole JSON values keyed by name in badger.
type Store struct {
	db *badger.DB

	mu        sync.RWMutex
	listeners map[int]Listener
	nextID    int
	closed    bool
}

// Open opens the badger database described by cfg.
func Open(cfg config.StoreConfig) (*Store, error) {
	opts := badger.DefaultOptions(cfg.BadgerPath).
		WithInMemory(cfg.InMemory).
		WithLogger(nil)
	if cfg.InMemory {
		opts = opts.WithDir("").WithValueDir("")
	}

	db, err := badger.Open(opts)
	if err != nil {
		log.Error().Err(err).Str("path", cfg.BadgerPath).Msg("Failed to open badger database")
		return nil, err
	}

	log.Debug().Str("path", cfg.BadgerPath).Bool("in_memory", cfg.InMemory).Msg("Settings store opened")

	return &Store{
		db:        db,
		listeners: make(map[int]Listener),
	}, nil
}

// OpenInMemory opens a throwaway store, mostly for tests and dry runs.
func OpenInMemory() (*Store, error) {
	return Open(config.StoreConfig{InMemory: true})
}

func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.listeners = map[int]Listener{}
	s.mu.Unlock()

	return s.db.Close()
}

func (s *Store) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// View returns a snapshot of every setting with defaults applied.
func (s *Store) View(ctx context.Context) (*Settings, error) {
	if s.isClosed() {
		return nil, ErrStoreClosed
	}

	var snapshot *Settings
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		snapshot, err = newTx(txn).Snapshot()
		return err
	})
	return snapshot, err
}

// Update runs fn inside one read-write transaction. Everything fn writes is
// committed together, and listeners are told about the keys that changed.
// Transactions that lose an optimistic conflict are re-run.
func (s *Store) Update(ctx context.Context, fn func(tx *Tx) error) error {
	if s.isClosed() {
		return ErrStoreClosed
	}

	for attempt := 1; attempt <= maxUpdateAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		var tx *Tx
		err := s.db.Update(func(txn *badger.Txn) error {
			tx = newTx(txn)
			return fn(tx)
		})

		if errors.Is(err, badger.ErrConflict) {
			log.Debug().Int("attempt", attempt).Msg("Settings update conflicted, retrying")
			continue
		}
		if err != nil {
			return err
		}

		if changes := tx.committed(); len(changes) > 0 {
			s.notify(ctx, changes)
		}
		return nil
	}

	return ErrTooManyConflicts
}

// Subscribe registers l for change notifications. The returned func removes it.
func (s *Store) Subscribe(l Listener) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.listeners[id] = l

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

func (s *Store) notify(ctx context.Context, changes []Change) {
	s.mu.RLock()
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.RUnlock()

	if log.Trace().Enabled() {
		keys := make([]string, 0, len(changes))
		for _, c := range changes {
			keys = append(keys, string(c.Key))
		}
		log.Trace().Strs("keys", keys).Int("listeners", len(listeners)).Msg("Settings changed")
	}

	for _, l := range listeners {
		l(ctx, changes)
	}
}

// SeedDefaults writes first-run defaults for keys that were never set.
func (s *Store) SeedDefaults(ctx context.Context, autoToggleMinutes int) error {
	if autoToggleMinutes <= 0 {
		autoToggleMinutes = DefaultAutoToggleMinutes
	}

	return s.Update(ctx, func(tx *Tx) error {
		seeded := map[Key]func() error{
			KeyBlockedSites:    func() error { return tx.SetBlockedSites(DefaultSites()) },
			KeyBlockedElements: func() error { return tx.SetBlockedElements(nil) },
			KeyElementStates:   func() error { return tx.SetElementStates(map[string]bool{}) },
			KeyAutoToggleTime:  func() error { return tx.SetAutoToggleTime(autoToggleMinutes) },
		}

		for _, key := range []Key{KeyBlockedSites, KeyBlockedElements, KeyElementStates, KeyAutoToggleTime} {
			has, err := tx.Has(key)
			if err != nil {
				return err
			}
			if has {
				continue
			}
			if err := seeded[key](); err != nil {
				return err
			}
			log.Info().Str("key", string(key)).Msg("Default setting applied")
		}
		return nil
	})
}

// ContainsKey reports whether any change touches one of keys.
func ContainsKey(changes []Change, keys ...Key) bool {
	for _, c := range changes {
		for _, k := range keys {
			if c.Key == k {
				return true
			}
		}
	}
	return false
}
