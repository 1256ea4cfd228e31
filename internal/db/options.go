package db

import "time"

type dbOptions struct {
	path        string
	isReadOnly  bool
	inMemory    bool
	busyTimeout time.Duration
}

type Option func(*dbOptions)

// WithPath sets the database file. Ignored for in-memory databases.
func WithPath(path string) Option {
	return func(opts *dbOptions) {
		opts.path = path
	}
}

// WithReadOnly opens an existing file without creating the schema.
func WithReadOnly(state bool) Option {
	return func(opts *dbOptions) {
		opts.isReadOnly = state
	}
}

func WithInMemory(state bool) Option {
	return func(opts *dbOptions) {
		opts.inMemory = state
	}
}

// WithBusyTimeout sets how long a writer waits on a locked file.
func WithBusyTimeout(d time.Duration) Option {
	return func(opts *dbOptions) {
		opts.busyTimeout = d
	}
}
