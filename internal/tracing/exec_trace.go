package tracing

import (
	"os"
	"path/filepath"
	"runtime/trace"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	EnvExecTrace      = "SITEGUARD_EXEC_TRACE"
	EnvExecTraceScope = "SITEGUARD_EXEC_TRACE_SCOPE"
	EnvExecTraceDir   = "SITEGUARD_EXEC_TRACE_DIR"
)

var active atomic.Bool

// Enabled reports whether a runtime trace was requested for scope.
// SITEGUARD_EXEC_TRACE=1 enables tracing; SITEGUARD_EXEC_TRACE_SCOPE limits it
// to one scope such as "rules.apply".
func Enabled(scope string) bool {
	if os.Getenv(EnvExecTrace) != "1" {
		return false
	}
	wanted := os.Getenv(EnvExecTraceScope)
	return wanted == "" || wanted == scope
}

// StartExecTrace records a Go runtime execution trace for scope until the
// returned stop func is called. Only one trace runs at a time; otherwise the
// stop func is a no-op.
func StartExecTrace(scope, runID string) (stop func()) {
	if !Enabled(scope) || !active.CompareAndSwap(false, true) {
		return func() {}
	}

	dir := os.Getenv(EnvExecTraceDir)
	if dir == "" {
		dir = "traces"
	}
	started := time.Now()
	name := filepath.Join(dir, scope+"-"+runID+"-"+started.UTC().Format("20060102T150405Z")+".out")

	f, err := create(dir, name)
	if err != nil {
		log.Warn().Err(err).Str("file", name).Msg("Skipping exec trace")
		active.Store(false)
		return func() {}
	}
	if err := trace.Start(f); err != nil {
		_ = f.Close()
		log.Warn().Err(err).Str("file", name).Msg("Failed to start exec trace")
		active.Store(false)
		return func() {}
	}

	log.Info().Str("scope", scope).Str("file", name).Msg("Exec trace started")

	return func() {
		trace.Stop()
		_ = f.Close()
		active.Store(false)
		log.Info().Str("scope", scope).Dur("duration", time.Since(started)).Str("file", name).Msg("Exec trace stopped")
	}
}

func create(dir, name string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return os.Create(name)
}

// Active reports whether a trace is being recorded.
func Active() bool {
	return active.Load()
}
