package control

import (
	"context"
	"testing"
	"time"

	"siteguard/features/settings"
	"siteguard/features/snooze"
	"siteguard/internal/config"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noopTrigger struct{}

func (noopTrigger) Trigger(string) bool { return true }

func newTestService(t *testing.T) (*Service, *settings.Store, *clockwork.FakeClock) {
	t.Helper()
	store, err := settings.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	clock := clockwork.NewFakeClockAt(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	sched := snooze.New(store, noopTrigger{}, config.SnoozeConfig{DefaultMinutes: 2}, snooze.WithClock(clock))
	return NewService(store, sched), store, clock
}

func TestNormalizeSite(t *testing.T) {
	testCases := []struct {
		raw      string
		expected string
		err      error
	}{
		{raw: "reddit.com", expected: "reddit.com"},
		{raw: "  https://www.Reddit.com/r/golang?x=1 ", expected: "reddit.com"},
		{raw: "http://news.ycombinator.com", expected: "news.ycombinator.com"},
		{raw: "www.example.com#top", expected: "example.com"},
		{raw: "localhost:8080/path", expected: "localhost:8080"},
		{raw: "bücher.de", expected: "xn--bcher-kva.de"},
		{raw: "   ", err: ErrEmptySite},
		{raw: "https://www./", err: ErrEmptySite},
		{raw: "bad host.com", err: ErrInvalidSite},
	}

	for _, tc := range testCases {
		t.Run(tc.raw, func(t *testing.T) {
			got, err := NormalizeSite(tc.raw)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestAddAndDeleteSite(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	site, err := svc.AddSite(ctx, "https://www.Reddit.com/r/all")
	require.NoError(t, err)
	assert.Equal(t, "reddit.com", site)

	_, err = svc.AddSite(ctx, "reddit.com")
	assert.ErrorIs(t, err, ErrSiteExists)

	snap, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Sites, 3)
	assert.Equal(t, "reddit.com", snap.Sites[2].Site)
	assert.True(t, snap.Sites[2].Enabled)

	require.NoError(t, svc.DeleteSite(ctx, "twitter.com"))
	assert.ErrorIs(t, svc.DeleteSite(ctx, "twitter.com"), ErrSiteNotFound)

	snap, err = svc.Snapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.Sites, 2)
}

func TestSetSiteEnabledShowsWakeTime(t *testing.T) {
	svc, store, clock := newTestService(t)
	ctx := context.Background()

	assert.ErrorIs(t, svc.SetSiteEnabled(ctx, "unknown.com", false), ErrSiteNotFound)
	require.NoError(t, svc.SetSiteEnabled(ctx, "x.com", false))

	snap, err := svc.Snapshot(ctx)
	require.NoError(t, err)

	var x Site
	for _, s := range snap.Sites {
		if s.Site == "x.com" {
			x = s
		}
	}
	assert.False(t, x.Enabled)
	require.NotNil(t, x.WakeAt)
	assert.True(t, clock.Now().Add(2*time.Minute).Equal(*x.WakeAt))

	require.NoError(t, svc.DeleteSite(ctx, "x.com"))
	st, err := store.View(ctx)
	require.NoError(t, err)
	assert.NotContains(t, st.SiteStates, "x.com")
	assert.NotContains(t, st.AutoToggleSchedules, "x.com")
}

func TestBlockingAndSnoozeLength(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.SetBlockingEnabled(ctx, false))
	assert.ErrorIs(t, svc.SetAutoToggleTime(ctx, 0), ErrInvalidSnoozeLen)
	require.NoError(t, svc.SetAutoToggleTime(ctx, 15))

	snap, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	assert.False(t, snap.BlockingEnabled)
	assert.Equal(t, 15, snap.AutoToggleTime)
}

func TestElements(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	el, err := svc.AddElement(ctx, " YouTube.com ", " #related ")
	require.NoError(t, err)
	assert.Equal(t, settings.BlockedElement{Domain: "youtube.com", Selector: "#related"}, el)

	_, err = svc.AddElement(ctx, "youtube.com", "#related")
	assert.ErrorIs(t, err, ErrElementExists)
	_, err = svc.AddElement(ctx, "youtube.com", "  ")
	assert.ErrorIs(t, err, ErrInvalidElement)

	require.NoError(t, svc.SetElementEnabled(ctx, "youtube.com", "#related", false))
	assert.ErrorIs(t, svc.SetElementEnabled(ctx, "youtube.com", ".nope", false), ErrElementNotFound)

	snap, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Elements, 1)
	assert.False(t, snap.Elements[0].Enabled)

	require.NoError(t, svc.DeleteElement(ctx, "youtube.com", "#related"))
	assert.ErrorIs(t, svc.DeleteElement(ctx, "youtube.com", "#related"), ErrElementNotFound)

	st, err := store.View(ctx)
	require.NoError(t, err)
	assert.Empty(t, st.BlockedElements)
	assert.Empty(t, st.ElementStates)
}
