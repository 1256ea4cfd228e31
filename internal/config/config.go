package config

import (
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

type ServerConfig struct {
	Scheme string `koanf:"scheme" default:"http"`
	Port   int    `koanf:"port" default:"8082" validate:"min=1,max=65535"`
	Host   string `koanf:"host" default:"localhost"`

	ReadTimeout     time.Duration `koanf:"read_timeout" default:"5s"`
	WriteTimeout    time.Duration `koanf:"write_timeout" default:"10s"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" default:"30s"`

	AllowOrigins []string `koanf:"alloworigins" default:"[]"`
	HealthCheck  bool     `koanf:"health_check" default:"true"`
}

func (s *ServerConfig) GetServerURL() string {
	return s.Scheme + "://" + s.Host + ":" + strconv.Itoa(s.Port)
}

type APPConfig struct {
	Environtment string        `koanf:"environtment" default:"development"`
	LogLevel     zerolog.Level `koanf:"log_level" default:"0"`
}

// StoreConfig locates the badger database holding user settings.
type StoreConfig struct {
	BadgerPath string `koanf:"badger_path" default:"./data/settings"`
	InMemory   bool   `koanf:"in_memory" default:"false"`
}

// RuleTableConfig locates the SQLite file holding the installed rules.
type RuleTableConfig struct {
	SQLitePath string `koanf:"sqlite_path" default:"./data/rules.db"`
	InMemory   bool   `koanf:"in_memory" default:"false"`
}

type RulesConfig struct {
	Priority     int           `koanf:"priority" default:"2000" validate:"min=1"`
	StartupDelay time.Duration `koanf:"startup_delay" default:"500ms"`
}

type SnoozeConfig struct {
	SweepInterval     time.Duration `koanf:"sweep_interval" default:"30s"`
	StartupCheckDelay time.Duration `koanf:"startup_check_delay" default:"1s"`
	DefaultMinutes    int           `koanf:"default_minutes" default:"2" validate:"min=1"`
}

type HiderConfig struct {
	SettleDelay time.Duration `koanf:"settle_delay" default:"500ms"`
	LateDelay   time.Duration `koanf:"late_delay" default:"2s"`
}

type GatewayConfig struct {
	Enabled bool `koanf:"enabled" default:"false"`
	Port    int  `koanf:"port" default:"8089" validate:"min=1,max=65535"`
	// HideElements rewrites proxied HTML responses through the element hider.
	HideElements bool          `koanf:"hide_elements" default:"true"`
	MaxBodySize  int64         `koanf:"max_body_size" default:"8388608"`
	DialTimeout  time.Duration `koanf:"dial_timeout" default:"10s"`
}

type NotifyConfig struct {
	Workers      int           `koanf:"workers" default:"8" validate:"min=1"`
	WriteTimeout time.Duration `koanf:"write_timeout" default:"5s"`
}

type CollyConfig struct {
	MaxRedirects int           `koanf:"max_redirects" default:"5" validate:"min=0"`
	MaxSize      int           `koanf:"max_size" default:"1048576"`
	UserAgent    string        `koanf:"user_agent" default:"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/58.0.3029.110 Safari/537.3"`
	TimeOut      time.Duration `koanf:"timeout" default:"30s"`
}

type TelemetryConfig struct {
	Enabled        bool   `koanf:"enabled" default:"false"`
	ServiceName    string `koanf:"service_name" default:"siteguard"`
	ServiceVersion string `koanf:"service_version" default:"v0.1.0"`
	Endpoint       string `koanf:"endpoint" default:"localhost:4317"`
}

type Config struct {
	APP       APPConfig
	Server    ServerConfig
	Store     StoreConfig
	RuleTable RuleTableConfig
	Rules     RulesConfig
	Snooze    SnoozeConfig
	Hider     HiderConfig
	Gateway   GatewayConfig
	Notify    NotifyConfig
	Colly     CollyConfig
	Telemetry TelemetryConfig
}
