package ruletable

import (
	"context"
	"path/filepath"
	"testing"

	"siteguard/features/rules"
	"siteguard/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTable(t *testing.T) *Table {
	t.Helper()
	table, err := Open(context.Background(), config.RuleTableConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = table.Close() })
	return table
}

func blockRule(id int, filter string) rules.Rule {
	return rules.Rule{
		ID:        id,
		Priority:  rules.DefaultPriority,
		Action:    rules.Action{Type: rules.ActionBlock},
		Condition: rules.Condition{URLFilter: filter, ResourceTypes: rules.AllResourceTypes()},
	}
}

func TestEmptyTable(t *testing.T) {
	table := newTestTable(t)

	installed, err := table.GetDynamicRules(context.Background())
	require.NoError(t, err)
	assert.Empty(t, installed)
	assert.Zero(t, table.Count())
}

func TestUpdateAddsAndRemoves(t *testing.T) {
	table := newTestTable(t)
	ctx := context.Background()

	require.NoError(t, table.UpdateDynamicRules(ctx, rules.UpdateOptions{
		AddRules: []rules.Rule{blockRule(2, "x.com"), blockRule(1, "twitter.com")},
	}))

	installed, err := table.GetDynamicRules(ctx)
	require.NoError(t, err)
	require.Len(t, installed, 2)
	assert.Equal(t, []int{1, 2}, rules.IDs(installed))
	assert.Equal(t, blockRule(1, "twitter.com"), installed[0])

	require.NoError(t, table.UpdateDynamicRules(ctx, rules.UpdateOptions{
		RemoveRuleIDs: []int{1, 2},
		AddRules:      []rules.Rule{blockRule(1, "reddit.com")},
	}))

	installed, err = table.GetDynamicRules(ctx)
	require.NoError(t, err)
	require.Len(t, installed, 1)
	assert.Equal(t, "reddit.com", installed[0].Condition.URLFilter)
	assert.Equal(t, 1, table.Count())
}

func TestUpdateRejections(t *testing.T) {
	testCases := []struct {
		name     string
		rule     rules.Rule
		expected error
	}{
		{name: "empty filter", rule: blockRule(5, ""), expected: ErrMalformedFilter},
		{name: "blank filter", rule: blockRule(5, "   "), expected: ErrMalformedFilter},
		{name: "non-ascii filter", rule: blockRule(5, "bücher.de"), expected: ErrMalformedFilter},
		{name: "zero id", rule: blockRule(0, "a.com"), expected: ErrInvalidRuleID},
		{name: "already installed id", rule: blockRule(1, "b.com"), expected: ErrDuplicateRuleID},
		{
			name:     "unknown action",
			rule:     rules.Rule{ID: 5, Action: rules.Action{Type: "redirect"}, Condition: rules.Condition{URLFilter: "a.com", ResourceTypes: rules.AllResourceTypes()}},
			expected: ErrMalformedRule,
		},
		{
			name:     "unknown resource type",
			rule:     rules.Rule{ID: 5, Action: rules.Action{Type: rules.ActionBlock}, Condition: rules.Condition{URLFilter: "a.com", ResourceTypes: []rules.ResourceType{"beacon"}}},
			expected: ErrMalformedRule,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			table := newTestTable(t)
			ctx := context.Background()
			require.NoError(t, table.UpdateDynamicRules(ctx, rules.UpdateOptions{AddRules: []rules.Rule{blockRule(1, "twitter.com")}}))

			err := table.UpdateDynamicRules(ctx, rules.UpdateOptions{AddRules: []rules.Rule{tc.rule}})
			assert.ErrorIs(t, err, tc.expected)

			installed, err := table.GetDynamicRules(ctx)
			require.NoError(t, err)
			assert.Len(t, installed, 1, "a rejected update leaves the table untouched")
		})
	}
}

func TestUpdateRejectsDuplicateIDsInOneRequest(t *testing.T) {
	table := newTestTable(t)

	err := table.UpdateDynamicRules(context.Background(), rules.UpdateOptions{
		AddRules: []rules.Rule{blockRule(1, "a.com"), blockRule(1, "b.com")},
	})
	assert.ErrorIs(t, err, ErrDuplicateRuleID)
	assert.Zero(t, table.Count())
}

func TestRejectedAdditionRollsBackRemoval(t *testing.T) {
	table := newTestTable(t)
	ctx := context.Background()
	require.NoError(t, table.UpdateDynamicRules(ctx, rules.UpdateOptions{
		AddRules: []rules.Rule{blockRule(1, "a.com"), blockRule(2, "b.com")},
	}))

	err := table.UpdateDynamicRules(ctx, rules.UpdateOptions{
		RemoveRuleIDs: []int{1},
		AddRules:      []rules.Rule{blockRule(2, "c.com")},
	})
	assert.ErrorIs(t, err, ErrDuplicateRuleID)

	installed, err := table.GetDynamicRules(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, rules.IDs(installed))
	assert.Equal(t, 2, table.Count())
}

func TestRemovingUnknownIDIsNotAnError(t *testing.T) {
	table := newTestTable(t)
	assert.NoError(t, table.UpdateDynamicRules(context.Background(), rules.UpdateOptions{RemoveRuleIDs: []int{42}}))
}

func TestMatch(t *testing.T) {
	table := newTestTable(t)
	ctx := context.Background()

	low := blockRule(3, "example.com")
	low.Priority = 10
	require.NoError(t, table.UpdateDynamicRules(ctx, rules.UpdateOptions{
		AddRules: []rules.Rule{blockRule(1, "twitter.com"), blockRule(2, "ads.example.com"), low},
	}))

	testCases := []struct {
		url     string
		matched bool
		id      int
	}{
		{url: "https://twitter.com/home", matched: true, id: 1},
		{url: "https://mobile.TWITTER.com", matched: true, id: 1},
		{url: "https://ads.example.com/pixel.gif", matched: true, id: 2},
		{url: "https://www.example.com/", matched: true, id: 3},
		{url: "https://golang.org", matched: false},
	}

	for _, tc := range testCases {
		t.Run(tc.url, func(t *testing.T) {
			r, ok := table.Match(tc.url)
			assert.Equal(t, tc.matched, ok)
			if tc.matched {
				assert.Equal(t, tc.id, r.ID)
			}
		})
	}
}

func TestMatchPrefersLowestIDOnEqualPriority(t *testing.T) {
	table := newTestTable(t)
	require.NoError(t, table.UpdateDynamicRules(context.Background(), rules.UpdateOptions{
		AddRules: []rules.Rule{blockRule(7, "x.com"), blockRule(4, "x.com")},
	}))

	r, ok := table.Match("https://x.com")
	require.True(t, ok)
	assert.Equal(t, 4, r.ID)
}

func TestRulesSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.db")
	ctx := context.Background()

	table, err := Open(ctx, config.RuleTableConfig{SQLitePath: path})
	require.NoError(t, err)
	require.NoError(t, table.UpdateDynamicRules(ctx, rules.UpdateOptions{AddRules: []rules.Rule{blockRule(1, "twitter.com")}}))
	require.NoError(t, table.Close())

	reopened, err := Open(ctx, config.RuleTableConfig{SQLitePath: path})
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, 1, reopened.Count())
	_, ok := reopened.Match("https://twitter.com")
	assert.True(t, ok)
}
