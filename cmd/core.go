package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"siteguard/features/control"
	"siteguard/features/engine"
	"siteguard/features/messaging"
	"siteguard/features/ruletable"
	"siteguard/features/settings"
	"siteguard/internal/config"

	"github.com/rs/zerolog/log"
)

// core holds everything a command needs. The engine is built but not
// started; serve starts it.
type core struct {
	cfg     *config.Config
	store   *settings.Store
	table   *ruletable.Table
	hub     *messaging.Hub
	engine  *engine.Engine
	control *control.Service
}

func openCore(ctx context.Context) (*core, error) {
	cfg := config.GetConfig()
	if cfg == nil {
		return nil, errors.New("config not initialized")
	}

	store, err := settings.Open(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open settings store: %w", err)
	}

	table, err := ruletable.Open(ctx, cfg.RuleTable)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("open rule table: %w", err)
	}

	hub := messaging.NewHub(cfg.Notify)
	eng := engine.New(cfg, store, table, hub)

	return &core{
		cfg:     cfg,
		store:   store,
		table:   table,
		hub:     hub,
		engine:  eng,
		control: control.NewService(store, eng.Snooze()),
	}, nil
}

func (c *core) Close() error {
	errs := []error{c.engine.Stop()}
	c.hub.Close()
	errs = append(errs, c.table.Close(), c.store.Close())
	return errors.Join(errs...)
}

// sync brings the rule table in line with the settings a command just changed.
func (c *core) sync(ctx context.Context) error {
	res, err := c.engine.Applier().Apply(ctx)
	if err != nil {
		return fmt.Errorf("apply rules: %w", err)
	}
	log.Info().Int("removed", res.Removed).Int("installed", res.Installed).Msg("Rules applied")
	return nil
}

// awaitRules waits for passes a sweep triggered and reports the last one.
func (c *core) awaitRules() error {
	c.engine.Applier().Wait()
	last := c.engine.Applier().Last()
	if last.Error != "" {
		return fmt.Errorf("apply rules: %s", last.Error)
	}
	return nil
}

func withCore(ctx context.Context, fn func(c *core) error) (err error) {
	c, err := openCore(ctx)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, c.Close())
	}()
	return fn(c)
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	fmt.Println(string(data))
	return nil
}
