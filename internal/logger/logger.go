package logger

import (
	"io"
	stdlog "log"
	"os"

	"siteguard/internal/config"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const appName = "siteguard"

var (
	zerologger zerolog.Logger
)

// stdlogBridge forwards standard library log output into zerolog.
type stdlogBridge struct {
	zerolog.Logger
}

func (l stdlogBridge) Write(p []byte) (n int, err error) {
	n = len(p)
	if n > 0 && p[n-1] == '\n' {
		p = p[:n-1]
	}
	l.Info().Str("source", "stdlog").Msg(string(p))
	return
}

func InitializeLogger() {
	InitializeLoggerWithOutput(os.Stdout)
}

// InitializeLoggerWithOutput installs the global logger writing to out. The
// configured level wins over the environment default.
func InitializeLoggerWithOutput(out io.Writer) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(level())

	if f, ok := out.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		zerologger = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"})
	} else {
		zerologger = zerolog.New(out).With().Str("app", appName).Logger()
	}

	zerologger = zerologger.With().Timestamp().Caller().Logger()
	log.Logger = zerologger

	stdlog.SetFlags(0)
	stdlog.SetOutput(stdlogBridge{zerologger})
}

func level() zerolog.Level {
	if cfg := config.GetConfig(); cfg != nil {
		return cfg.APP.LogLevel
	}
	if config.IsDevMode() {
		return zerolog.DebugLevel
	}
	return zerolog.InfoLevel
}
