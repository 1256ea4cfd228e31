package settings

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// Change describes one key written by a committed update.
// Old is nil when the key did not exist before.
type Change struct {
	Key Key             `json:"key"`
	Old json.RawMessage `json:"oldValue,omitempty"`
	New json.RawMessage `json:"newValue,omitempty"`
}

// Tx reads and writes settings inside a single badger transaction.
type Tx struct {
	txn     *badger.Txn
	changes map[Key]*Change
	order   []Key
}

func newTx(txn *badger.Txn) *Tx {
	return &Tx{txn: txn, changes: make(map[Key]*Change)}
}

func (tx *Tx) raw(key Key) ([]byte, error) {
	item, err := tx.txn.Get([]byte(key))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return item.ValueCopy(nil)
}

// Has reports whether key has been written at least once.
func (tx *Tx) Has(key Key) (bool, error) {
	v, err := tx.raw(key)
	return v != nil, err
}

func get[T any](tx *Tx, key Key, def T) (T, error) {
	v, err := tx.raw(key)
	if err != nil || v == nil {
		return def, err
	}

	var out T
	if err := json.Unmarshal(v, &out); err != nil {
		return def, fmt.Errorf("%w %q: %v", ErrDecodeValue, key, err)
	}
	return out, nil
}

func (tx *Tx) put(key Key, value any) error {
	next, err := json.Marshal(value)
	if err != nil {
		return err
	}

	prev, err := tx.raw(key)
	if err != nil {
		return err
	}
	if bytes.Equal(prev, next) {
		return nil
	}

	if err := tx.txn.Set([]byte(key), next); err != nil {
		return err
	}

	if c, ok := tx.changes[key]; ok {
		c.New = next
		return nil
	}
	tx.changes[key] = &Change{Key: key, Old: prev, New: next}
	tx.order = append(tx.order, key)
	return nil
}

// committed returns the effective changes, dropping keys written back to their
// original value.
func (tx *Tx) committed() []Change {
	out := make([]Change, 0, len(tx.order))
	for _, key := range tx.order {
		c := tx.changes[key]
		if bytes.Equal(c.Old, c.New) {
			continue
		}
		out = append(out, *c)
	}
	return out
}

func (tx *Tx) BlockedSites() ([]string, error) {
	sites, err := get[[]string](tx, KeyBlockedSites, nil)
	if err == nil && sites == nil {
		sites = DefaultSites()
	}
	return sites, err
}

func (tx *Tx) SetBlockedSites(sites []string) error {
	if sites == nil {
		sites = []string{}
	}
	return tx.put(KeyBlockedSites, sites)
}

func (tx *Tx) SiteStates() (map[string]bool, error) {
	states, err := get[map[string]bool](tx, KeySiteStates, nil)
	if states == nil {
		states = map[string]bool{}
	}
	return states, err
}

func (tx *Tx) SetSiteStates(states map[string]bool) error {
	return tx.put(KeySiteStates, states)
}

func (tx *Tx) BlockedElements() ([]BlockedElement, error) {
	elements, err := get[[]BlockedElement](tx, KeyBlockedElements, nil)
	if elements == nil {
		elements = []BlockedElement{}
	}
	return elements, err
}

func (tx *Tx) SetBlockedElements(elements []BlockedElement) error {
	if elements == nil {
		elements = []BlockedElement{}
	}
	return tx.put(KeyBlockedElements, elements)
}

func (tx *Tx) ElementStates() (map[string]bool, error) {
	states, err := get[map[string]bool](tx, KeyElementStates, nil)
	if states == nil {
		states = map[string]bool{}
	}
	return states, err
}

func (tx *Tx) SetElementStates(states map[string]bool) error {
	return tx.put(KeyElementStates, states)
}

func (tx *Tx) BlockingEnabled() (bool, error) {
	return get(tx, KeyBlockingEnabled, true)
}

func (tx *Tx) SetBlockingEnabled(enabled bool) error {
	return tx.put(KeyBlockingEnabled, enabled)
}

func (tx *Tx) AutoToggleTime() (int, error) {
	minutes, err := get(tx, KeyAutoToggleTime, DefaultAutoToggleMinutes)
	if err == nil && minutes <= 0 {
		minutes = DefaultAutoToggleMinutes
	}
	return minutes, err
}

func (tx *Tx) SetAutoToggleTime(minutes int) error {
	return tx.put(KeyAutoToggleTime, minutes)
}

func (tx *Tx) AutoToggleSchedules() (map[string]int64, error) {
	schedules, err := get[map[string]int64](tx, KeyAutoToggleSchedules, nil)
	if schedules == nil {
		schedules = map[string]int64{}
	}
	return schedules, err
}

func (tx *Tx) SetAutoToggleSchedules(schedules map[string]int64) error {
	return tx.put(KeyAutoToggleSchedules, schedules)
}

// Snapshot reads every key with defaults applied.
func (tx *Tx) Snapshot() (*Settings, error) {
	var (
		s   Settings
		err error
	)

	if s.BlockedSites, err = tx.BlockedSites(); err != nil {
		return nil, err
	}
	if s.SiteStates, err = tx.SiteStates(); err != nil {
		return nil, err
	}
	if s.BlockedElements, err = tx.BlockedElements(); err != nil {
		return nil, err
	}
	if s.ElementStates, err = tx.ElementStates(); err != nil {
		return nil, err
	}
	if s.BlockingEnabled, err = tx.BlockingEnabled(); err != nil {
		return nil, err
	}
	if s.AutoToggleTime, err = tx.AutoToggleTime(); err != nil {
		return nil, err
	}
	if s.AutoToggleSchedules, err = tx.AutoToggleSchedules(); err != nil {
		return nil, err
	}

	return &s, nil
}
