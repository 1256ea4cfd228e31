package config

import (
	"fmt"
	"os"
	"sync"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	_k      *koanf.Koanf
	_config *Config
	once    sync.Once
)

func GetConfig() *Config {
	if _config == nil {
		log.Info().Msg("config is nil trying to init")
		if err := InitConfig(); err != nil {
			log.Error().Msgf("error initializing config: %v", err)
		}
	}

	return _config
}

func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func InitConfig() error {
	var err error
	once.Do(func() {
		_k = koanf.New(".")

		configFile := GetEnv("CONFIG_FILE", ".env.toml")

		if err := _k.Load(file.Provider(configFile), toml.Parser()); err != nil {
			log.Debug().Msgf("error loading config [TOML]: %v", err)
		}

		_k.Load(file.Provider(".env"), dotenv.Parser())

		cfg, loadErr := Load(_k)
		if loadErr != nil {
			err = loadErr
			return
		}
		_config = cfg

		zerolog.SetGlobalLevel(_config.APP.LogLevel)
	})

	return err
}

// Load builds a Config from k on top of struct defaults and validates it.
func Load(k *koanf.Koanf) (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, err
	}

	if k != nil {
		if err := k.Unmarshal("", cfg); err != nil {
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
	}

	log.Trace().Msgf("k: %+v", cfg)

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Default returns a validated Config populated only from struct defaults.
func Default() *Config {
	cfg, err := Load(nil)
	if err != nil {
		panic(err)
	}
	return cfg
}

func IsDevMode() bool {
	if _config == nil {
		return true
	}

	return (_config.APP.Environtment == "development")
}
