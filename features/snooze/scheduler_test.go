package snooze

import (
	"context"
	"sync"
	"testing"
	"time"

	"siteguard/features/rules"
	"siteguard/features/settings"
	"siteguard/internal/config"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingTrigger struct {
	mu      sync.Mutex
	sources []string
}

func (c *countingTrigger) Trigger(source string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sources = append(c.sources, source)
	return true
}

func (c *countingTrigger) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sources)
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []map[string]bool
}

func (n *recordingNotifier) AutoToggleApplied(_ context.Context, siteStates map[string]bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, siteStates)
}

type fixture struct {
	store    *settings.Store
	clock    *clockwork.FakeClock
	trigger  *countingTrigger
	notifier *recordingNotifier
	sched    *Scheduler
}

func testConfig() config.SnoozeConfig {
	return config.SnoozeConfig{
		SweepInterval:     30 * time.Second,
		StartupCheckDelay: time.Second,
		DefaultMinutes:    2,
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store, err := settings.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	f := &fixture{
		store:    store,
		clock:    clockwork.NewFakeClockAt(time.UnixMilli(0)),
		trigger:  &countingTrigger{},
		notifier: &recordingNotifier{},
	}
	f.sched = New(store, f.trigger, testConfig(), WithClock(f.clock), WithNotifier(f.notifier))
	return f
}

func (f *fixture) view(t *testing.T) *settings.Settings {
	t.Helper()
	s, err := f.store.View(context.Background())
	require.NoError(t, err)
	return s
}

func (f *fixture) advanceTo(ms int64) {
	f.clock.Advance(time.UnixMilli(ms).Sub(f.clock.Now()))
}

func TestSnoozeScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.Update(ctx, func(tx *settings.Tx) error {
		if err := tx.SetBlockedSites([]string{"twitter.com"}); err != nil {
			return err
		}
		return tx.SetAutoToggleTime(2)
	}))

	require.NoError(t, f.sched.SetSiteEnabled(ctx, "twitter.com", false))
	s := f.view(t)
	assert.Equal(t, map[string]int64{"twitter.com": 120000}, s.AutoToggleSchedules)
	assert.False(t, s.SiteBlocked("twitter.com"))
	assert.Empty(t, rules.CompileSettings(s))

	f.advanceTo(120001)
	res, err := f.sched.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"twitter.com"}, res.Flipped)
	assert.Zero(t, res.Pending)

	s = f.view(t)
	assert.True(t, s.SiteBlocked("twitter.com"))
	assert.Empty(t, s.AutoToggleSchedules)
	compiled := rules.CompileSettings(s)
	require.Len(t, compiled, 1)
	assert.Equal(t, "twitter.com", compiled[0].Condition.URLFilter)

	assert.Equal(t, 1, f.trigger.Count())
	require.Len(t, f.notifier.calls, 1)
	assert.Equal(t, map[string]bool{"twitter.com": true}, f.notifier.calls[0])
}

func TestSweepBoundary(t *testing.T) {
	testCases := []struct {
		name    string
		now     int64
		flipped bool
	}{
		{name: "strictly before deadline", now: 119999, flipped: false},
		{name: "exactly at deadline", now: 120000, flipped: true},
		{name: "after deadline", now: 500000, flipped: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()

			require.NoError(t, f.sched.SetSiteEnabled(ctx, "x.com", false))
			f.advanceTo(tc.now)

			res, err := f.sched.Sweep(ctx)
			require.NoError(t, err)

			s := f.view(t)
			if tc.flipped {
				assert.Equal(t, []string{"x.com"}, res.Flipped)
				assert.True(t, s.SiteBlocked("x.com"))
				assert.Empty(t, s.AutoToggleSchedules)
				assert.Equal(t, 1, f.trigger.Count())
			} else {
				assert.Empty(t, res.Flipped)
				assert.Equal(t, 1, res.Pending)
				assert.False(t, s.SiteBlocked("x.com"))
				assert.Equal(t, int64(120000), s.AutoToggleSchedules["x.com"])
				assert.Zero(t, f.trigger.Count())
				assert.Empty(t, f.notifier.calls)
			}
		})
	}
}

func TestManualEnableClearsSchedule(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.sched.SetSiteEnabled(ctx, "x.com", false))
	f.advanceTo(1000)
	require.NoError(t, f.sched.SetSiteEnabled(ctx, "x.com", true))

	s := f.view(t)
	assert.True(t, s.SiteBlocked("x.com"))
	assert.NotContains(t, s.AutoToggleSchedules, "x.com")
}

func TestToggleWritesBothKeysInOneCommit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var commits [][]settings.Change
	cancel := f.store.Subscribe(func(_ context.Context, changes []settings.Change) {
		commits = append(commits, changes)
	})
	defer cancel()

	require.NoError(t, f.sched.SetSiteEnabled(ctx, "x.com", false))
	require.Len(t, commits, 1)
	assert.True(t, settings.ContainsKey(commits[0], settings.KeySiteStates))
	assert.True(t, settings.ContainsKey(commits[0], settings.KeyAutoToggleSchedules))
}

func TestSweepBatchesDueSites(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.sched.SetSiteEnabled(ctx, "a.com", false))
	require.NoError(t, f.sched.SetSiteEnabled(ctx, "b.com", false))
	f.advanceTo(60000)
	require.NoError(t, f.sched.SetSiteEnabled(ctx, "c.com", false))

	commits := 0
	cancel := f.store.Subscribe(func(context.Context, []settings.Change) { commits++ })
	defer cancel()

	f.advanceTo(130000)
	res, err := f.sched.Sweep(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{"a.com", "b.com"}, res.Flipped)
	assert.Equal(t, 1, res.Pending)
	assert.Equal(t, 1, commits, "all due sites are committed together")
	assert.Equal(t, 1, f.trigger.Count())
	assert.Len(t, f.notifier.calls, 1)

	s := f.view(t)
	assert.Equal(t, map[string]int64{"c.com": 180000}, s.AutoToggleSchedules)
}

func TestSweepWithNothingDueDoesNotWrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	commits := 0
	cancel := f.store.Subscribe(func(context.Context, []settings.Change) { commits++ })
	defer cancel()

	res, err := f.sched.Sweep(ctx)
	require.NoError(t, err)
	assert.Empty(t, res.Flipped)
	assert.Zero(t, commits)
	assert.Zero(t, f.trigger.Count())
}

func TestSweepDropsStaleEntries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.Update(ctx, func(tx *settings.Tx) error {
		if err := tx.SetSiteStates(map[string]bool{"x.com": true}); err != nil {
			return err
		}
		return tx.SetAutoToggleSchedules(map[string]int64{"x.com": 999999})
	}))

	res, err := f.sched.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"x.com"}, res.Stale)
	assert.Empty(t, res.Flipped)
	assert.Empty(t, f.view(t).AutoToggleSchedules)
	assert.Zero(t, f.trigger.Count())
}

func TestSweepWithoutNotifier(t *testing.T) {
	f := newFixture(t)
	f.sched = New(f.store, nil, testConfig(), WithClock(f.clock))
	ctx := context.Background()

	require.NoError(t, f.sched.SetSiteEnabled(ctx, "x.com", false))
	f.advanceTo(200000)

	res, err := f.sched.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"x.com"}, res.Flipped)
}

func TestSimulateTimePassing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.Update(ctx, func(tx *settings.Tx) error {
		return tx.SetAutoToggleTime(10)
	}))
	require.NoError(t, f.sched.SetSiteEnabled(ctx, "a.com", false))
	f.advanceTo(60000)
	require.NoError(t, f.sched.SetSiteEnabled(ctx, "b.com", false))

	before := f.view(t).AutoToggleSchedules
	require.Equal(t, map[string]int64{"a.com": 600000, "b.com": 660000}, before)

	res, err := f.sched.SimulateTimePassing(ctx, 3)
	require.NoError(t, err)
	assert.Empty(t, res.Flipped)
	assert.Equal(t, 2, res.Pending)

	after := f.view(t).AutoToggleSchedules
	assert.Equal(t, before["a.com"]-180000, after["a.com"])
	assert.Equal(t, before["b.com"]-180000, after["b.com"])
	assert.Equal(t, before["b.com"]-before["a.com"], after["b.com"]-after["a.com"], "relative order is preserved")

	res, err = f.sched.SimulateTimePassing(ctx, 6)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.com"}, res.Flipped)
	assert.Equal(t, 1, res.Pending)
}

func TestSimulateTimePassingDefaultsToTwoMinutes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.sched.SetSiteEnabled(ctx, "x.com", false))

	res, err := f.sched.SimulateTimePassing(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"x.com"}, res.Flipped)
}

func TestSimulateTimePassingRejectsNegativeShift(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.sched.SetSiteEnabled(ctx, "x.com", false))
	before := f.view(t).AutoToggleSchedules

	_, err := f.sched.SimulateTimePassing(ctx, -5)
	assert.ErrorIs(t, err, ErrNegativeShift)
	assert.Equal(t, before, f.view(t).AutoToggleSchedules, "deadlines are left untouched")
	assert.Zero(t, f.trigger.Count())
}

func TestSetSiteEnabledRejectsEmptySite(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.sched.SetSiteEnabled(context.Background(), "", false), ErrEmptySite)
}

func TestStartSweepsOnSchedule(t *testing.T) {
	store, err := settings.OpenInMemory()
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Update(ctx, func(tx *settings.Tx) error {
		if err := tx.SetSiteStates(map[string]bool{"x.com": false}); err != nil {
			return err
		}
		return tx.SetAutoToggleSchedules(map[string]int64{"x.com": 1})
	}))

	cfg := config.SnoozeConfig{SweepInterval: time.Hour, StartupCheckDelay: 10 * time.Millisecond, DefaultMinutes: 2}
	trigger := &countingTrigger{}
	sched := New(store, trigger, cfg)

	require.NoError(t, sched.Start(ctx))
	assert.ErrorIs(t, sched.Start(ctx), ErrAlreadyStarted)

	assert.Eventually(t, func() bool { return trigger.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	s, err := store.View(ctx)
	require.NoError(t, err)
	assert.True(t, s.SiteBlocked("x.com"))

	next, err := sched.NextSweep()
	require.NoError(t, err)
	assert.True(t, next.After(time.Now()))

	require.NoError(t, sched.Stop())
	require.NoError(t, sched.Stop())
}
