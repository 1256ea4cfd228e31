package rules

import "siteguard/features/settings"

const DefaultPriority = 2000

type compileOptions struct {
	priority int
}

type Option func(*compileOptions)

// WithPriority overrides the priority assigned to every compiled rule.
func WithPriority(priority int) Option {
	return func(o *compileOptions) {
		if priority > 0 {
			o.priority = priority
		}
	}
}

// Compile builds one block rule per site whose effective state is blocked.
// Ids are assigned from 1 in list order. A nil site list falls back to the
// built-in defaults; a disabled global flag compiles to nothing.
func Compile(sites []string, states map[string]bool, enabled bool, opts ...Option) []Rule {
	o := &compileOptions{priority: DefaultPriority}
	for _, opt := range opts {
		opt(o)
	}

	if !enabled {
		return []Rule{}
	}

	if sites == nil {
		sites = settings.DefaultSites()
	}

	compiled := make([]Rule, 0, len(sites))
	nextID := 1
	for _, site := range sites {
		if blocked, ok := states[site]; ok && !blocked {
			continue
		}

		compiled = append(compiled, Rule{
			ID:       nextID,
			Priority: o.priority,
			Action:   Action{Type: ActionBlock},
			Condition: Condition{
				URLFilter:     site,
				ResourceTypes: AllResourceTypes(),
			},
		})
		nextID++
	}

	return compiled
}

// CompileSettings compiles the rule set for a settings snapshot.
func CompileSettings(s *settings.Settings, opts ...Option) []Rule {
	return Compile(s.BlockedSites, s.SiteStates, s.BlockingEnabled, opts...)
}
