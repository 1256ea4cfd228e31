package ruletable

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode"

	"siteguard/features/rules"
	"siteguard/internal/config"
	"siteguard/internal/db"

	"github.com/rs/zerolog/log"
)

// Table is the live rule table requests are checked against. Rules are
// persisted in SQLite; matching is served from an in-memory copy that is
// swapped after every successful update.
type Table struct {
	db        *sql.DB
	writeLock sync.Mutex
	snapshot  atomic.Pointer[[]rules.Rule]
}

// Open connects to the SQLite file named in cfg and loads the installed rules.
func Open(ctx context.Context, cfg config.RuleTableConfig) (*Table, error) {
	conn, err := db.Connect(db.WithPath(cfg.SQLitePath), db.WithInMemory(cfg.InMemory))
	if err != nil {
		return nil, err
	}

	t, err := New(ctx, conn)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return t, nil
}

// New wraps an already initialised database handle.
func New(ctx context.Context, conn *sql.DB) (*Table, error) {
	t := &Table{db: conn}
	if err := t.reload(ctx); err != nil {
		return nil, err
	}

	log.Debug().Int("rules", t.Count()).Msg("Rule table loaded")
	return t, nil
}

func (t *Table) Close() error {
	return t.db.Close()
}

// GetDynamicRules returns every installed rule ordered by id.
func (t *Table) GetDynamicRules(ctx context.Context) ([]rules.Rule, error) {
	return t.query(ctx, t.db)
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (t *Table) query(ctx context.Context, q queryer) ([]rules.Rule, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, priority, action, url_filter, resource_types
		FROM dynamic_rules
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query dynamic rules: %w", err)
	}
	defer rows.Close()

	installed := []rules.Rule{}
	for rows.Next() {
		var (
			r     rules.Rule
			types string
		)
		if err := rows.Scan(&r.ID, &r.Priority, &r.Action.Type, &r.Condition.URLFilter, &types); err != nil {
			return nil, fmt.Errorf("failed to scan dynamic rule: %w", err)
		}
		if err := json.Unmarshal([]byte(types), &r.Condition.ResourceTypes); err != nil {
			return nil, fmt.Errorf("failed to decode resource types of rule %d: %w", r.ID, err)
		}
		installed = append(installed, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return installed, nil
}

// UpdateDynamicRules removes then adds rules in one transaction. A rejected
// rule rolls back the whole request, removals included. Removing an id that is
// not installed is not an error.
func (t *Table) UpdateDynamicRules(ctx context.Context, opts rules.UpdateOptions) error {
	if err := validateAdditions(opts.AddRules); err != nil {
		return err
	}

	t.writeLock.Lock()
	defer t.writeLock.Unlock()

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, id := range opts.RemoveRuleIDs {
		if _, err := tx.ExecContext(ctx, `DELETE FROM dynamic_rules WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to remove rule %d: %w", id, err)
		}
	}

	insert, err := tx.PrepareContext(ctx, `
		INSERT INTO dynamic_rules (id, priority, action, url_filter, resource_types, installed_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer insert.Close()

	now := time.Now().UTC()
	for _, r := range opts.AddRules {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM dynamic_rules WHERE id = ?`, r.ID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to look up rule %d: %w", r.ID, err)
		}
		if exists > 0 {
			return fmt.Errorf("%w: %d", ErrDuplicateRuleID, r.ID)
		}

		types, err := json.Marshal(r.Condition.ResourceTypes)
		if err != nil {
			return err
		}
		if _, err := insert.ExecContext(ctx, r.ID, r.Priority, string(r.Action.Type), r.Condition.URLFilter, string(types), now); err != nil {
			return fmt.Errorf("failed to add rule %d: %w", r.ID, err)
		}
	}

	installed, err := t.query(ctx, tx)
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit rule update: %w", err)
	}

	t.snapshot.Store(&installed)

	log.Debug().
		Int("removed", len(opts.RemoveRuleIDs)).
		Int("added", len(opts.AddRules)).
		Int("installed", len(installed)).
		Msg("Dynamic rules updated")

	return nil
}

func validateAdditions(add []rules.Rule) error {
	seen := make(map[int]struct{}, len(add))
	for _, r := range add {
		if r.ID < 1 {
			return fmt.Errorf("%w: %d", ErrInvalidRuleID, r.ID)
		}
		if _, dup := seen[r.ID]; dup {
			return fmt.Errorf("%w: %d appears twice in one request", ErrDuplicateRuleID, r.ID)
		}
		seen[r.ID] = struct{}{}

		if !isASCIIFilter(r.Condition.URLFilter) {
			return fmt.Errorf("%w: rule %d %q", ErrMalformedFilter, r.ID, r.Condition.URLFilter)
		}
		if r.Action.Type != rules.ActionBlock || len(r.Condition.ResourceTypes) == 0 {
			return fmt.Errorf("%w: rule %d", ErrMalformedRule, r.ID)
		}
		for _, rt := range r.Condition.ResourceTypes {
			if !rules.IsKnownResourceType(rt) {
				return fmt.Errorf("%w: rule %d resource type %q", ErrMalformedRule, r.ID, rt)
			}
		}
	}
	return nil
}

func isASCIIFilter(filter string) bool {
	if strings.TrimSpace(filter) == "" {
		return false
	}
	for _, c := range filter {
		if c > unicode.MaxASCII {
			return false
		}
	}
	return true
}

func (t *Table) reload(ctx context.Context) error {
	installed, err := t.GetDynamicRules(ctx)
	if err != nil {
		return err
	}
	t.snapshot.Store(&installed)
	return nil
}

func (t *Table) current() []rules.Rule {
	if p := t.snapshot.Load(); p != nil {
		return *p
	}
	return nil
}

// Match returns the rule that blocks rawURL. A rule matches when its filter is
// a case-insensitive substring of the URL; among several matches the highest
// priority wins, then the lowest id.
func (t *Table) Match(rawURL string) (rules.Rule, bool) {
	target := strings.ToLower(rawURL)

	var matched []rules.Rule
	for _, r := range t.current() {
		if strings.Contains(target, strings.ToLower(r.Condition.URLFilter)) {
			matched = append(matched, r)
		}
	}
	if len(matched) == 0 {
		return rules.Rule{}, false
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].Priority != matched[j].Priority {
			return matched[i].Priority > matched[j].Priority
		}
		return matched[i].ID < matched[j].ID
	})
	return matched[0], true
}

// Count returns the number of installed rules.
func (t *Table) Count() int {
	return len(t.current())
}
