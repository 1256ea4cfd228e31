package settings

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestViewDefaults(t *testing.T) {
	s := newTestStore(t)

	snapshot, err := s.View(context.Background())
	require.NoError(t, err)

	assert.Equal(t, DefaultSites(), snapshot.BlockedSites)
	assert.Empty(t, snapshot.SiteStates)
	assert.Empty(t, snapshot.BlockedElements)
	assert.Empty(t, snapshot.ElementStates)
	assert.True(t, snapshot.BlockingEnabled)
	assert.Equal(t, DefaultAutoToggleMinutes, snapshot.AutoToggleTime)
	assert.Empty(t, snapshot.AutoToggleSchedules)
}

func TestUpdateAndView(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.Update(ctx, func(tx *Tx) error {
		if err := tx.SetBlockedSites([]string{"reddit.com"}); err != nil {
			return err
		}
		if err := tx.SetSiteStates(map[string]bool{"reddit.com": false}); err != nil {
			return err
		}
		return tx.SetBlockingEnabled(false)
	})
	require.NoError(t, err)

	snapshot, err := s.View(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{"reddit.com"}, snapshot.BlockedSites)
	assert.False(t, snapshot.SiteBlocked("reddit.com"))
	assert.True(t, snapshot.SiteBlocked("unknown.com"))
	assert.False(t, snapshot.BlockingEnabled)
}

func TestEmptySiteListIsNotDefaulted(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Update(ctx, func(tx *Tx) error {
		return tx.SetBlockedSites(nil)
	}))

	snapshot, err := s.View(ctx)
	require.NoError(t, err)
	assert.Empty(t, snapshot.BlockedSites)
	assert.NotNil(t, snapshot.BlockedSites)
}

func TestUpdateNotifiesOnceWithAllChanges(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var (
		mu    sync.Mutex
		calls [][]Change
	)
	cancel := s.Subscribe(func(_ context.Context, changes []Change) {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, changes)
	})
	defer cancel()

	require.NoError(t, s.Update(ctx, func(tx *Tx) error {
		if err := tx.SetSiteStates(map[string]bool{"x.com": true}); err != nil {
			return err
		}
		return tx.SetAutoToggleSchedules(map[string]int64{})
	}))

	require.Len(t, calls, 1)
	require.Len(t, calls[0], 2)
	assert.Equal(t, KeySiteStates, calls[0][0].Key)
	assert.Nil(t, calls[0][0].Old)
	assert.JSONEq(t, `{"x.com":true}`, string(calls[0][0].New))
	assert.Equal(t, KeyAutoToggleSchedules, calls[0][1].Key)
}

func TestUpdateSkipsUnchangedValues(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Update(ctx, func(tx *Tx) error {
		return tx.SetBlockingEnabled(true)
	}))

	notified := 0
	cancel := s.Subscribe(func(context.Context, []Change) { notified++ })
	defer cancel()

	require.NoError(t, s.Update(ctx, func(tx *Tx) error {
		return tx.SetBlockingEnabled(true)
	}))
	assert.Zero(t, notified)

	// Written and restored inside one transaction: no effective change.
	require.NoError(t, s.Update(ctx, func(tx *Tx) error {
		if err := tx.SetBlockingEnabled(false); err != nil {
			return err
		}
		return tx.SetBlockingEnabled(true)
	}))
	assert.Zero(t, notified)
}

func TestUnsubscribe(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	notified := 0
	cancel := s.Subscribe(func(context.Context, []Change) { notified++ })
	cancel()

	require.NoError(t, s.Update(ctx, func(tx *Tx) error {
		return tx.SetAutoToggleTime(5)
	}))
	assert.Zero(t, notified)
}

func TestSeedDefaults(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Update(ctx, func(tx *Tx) error {
		return tx.SetBlockedSites([]string{"keep.me"})
	}))

	var changed []Key
	cancel := s.Subscribe(func(_ context.Context, changes []Change) {
		for _, c := range changes {
			changed = append(changed, c.Key)
		}
	})
	defer cancel()

	require.NoError(t, s.SeedDefaults(ctx, 7))

	assert.ElementsMatch(t, []Key{KeyBlockedElements, KeyElementStates, KeyAutoToggleTime}, changed)

	snapshot, err := s.View(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"keep.me"}, snapshot.BlockedSites)
	assert.Equal(t, 7, snapshot.AutoToggleTime)

	// A second seed is a no-op.
	changed = nil
	require.NoError(t, s.SeedDefaults(ctx, 7))
	assert.Empty(t, changed)
}

func TestUpdateErrorRollsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.Update(ctx, func(tx *Tx) error {
		if err := tx.SetBlockingEnabled(false); err != nil {
			return err
		}
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)

	snapshot, err := s.View(ctx)
	require.NoError(t, err)
	assert.True(t, snapshot.BlockingEnabled)
}

func TestConcurrentUpdatesDoNotLoseWrites(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sites := []string{"a.com", "b.com", "c.com", "d.com"}

	var wg sync.WaitGroup
	for _, site := range sites {
		wg.Add(1)
		go func(site string) {
			defer wg.Done()
			assert.NoError(t, s.Update(ctx, func(tx *Tx) error {
				states, err := tx.SiteStates()
				if err != nil {
					return err
				}
				states[site] = false
				return tx.SetSiteStates(states)
			}))
		}(site)
	}
	wg.Wait()

	snapshot, err := s.View(ctx)
	require.NoError(t, err)
	assert.Len(t, snapshot.SiteStates, len(sites))
}

func TestClosedStore(t *testing.T) {
	s, err := OpenInMemory()
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err = s.View(context.Background())
	assert.ErrorIs(t, err, ErrStoreClosed)
}

func TestElementKey(t *testing.T) {
	e := BlockedElement{Domain: "youtube.com", Selector: "#related"}
	assert.Equal(t, "youtube.com:#related", e.Key())

	snapshot := &Settings{ElementStates: map[string]bool{"youtube.com:#related": false}}
	assert.False(t, snapshot.ElementEnabled(e))
	assert.True(t, snapshot.ElementEnabled(BlockedElement{Domain: "youtube.com", Selector: ".ad"}))
}

func TestChangeJSON(t *testing.T) {
	c := Change{Key: KeyBlockingEnabled, Old: json.RawMessage("true"), New: json.RawMessage("false")}
	b, err := json.Marshal(c)
	require.NoError(t, err)
	assert.JSONEq(t, `{"key":"blockingEnabled","oldValue":true,"newValue":false}`, string(b))
}
