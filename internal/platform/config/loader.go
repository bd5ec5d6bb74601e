package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"xtts-server-go/internal/platform/errors"
)

// Loader reads configuration in three layers: built-in defaults, an
// optional yaml file, then environment variable overrides.
type Loader struct {
	useDotEnv bool
	path      string
}

func NewLoader() *Loader {
	return &Loader{
		useDotEnv: true,
		path:      "config.yaml",
	}
}

// WithDotEnv toggles loading variables from a .env file before reading config.
func (l *Loader) WithDotEnv(enabled bool) *Loader {
	l.useDotEnv = enabled
	return l
}

// WithPath overrides the yaml file location (useful for tests).
func (l *Loader) WithPath(path string) *Loader {
	if path != "" {
		l.path = path
	}
	return l
}

// Result captures the loaded configuration and its origin path.
type Result struct {
	Config *Config
	Path   string
}

func (l *Loader) Load() (*Result, error) {
	if l.useDotEnv {
		if err := godotenv.Load(); err != nil {
			fmt.Println("no .env file found, using system environment")
		}
	}

	cfg := Default()

	path := l.path
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrap(errors.KindConfig, "config.load", "parse "+path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrap(errors.KindConfig, "config.load", "read "+path, err)
	} else {
		path = ""
	}

	applyEnvOverrides(cfg)

	return &Result{Config: cfg, Path: path}, nil
}

// applyEnvOverrides honors the environment variables the original launcher
// documented, so existing deployments keep working unchanged.
func applyEnvOverrides(cfg *Config) {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			*dst = v == "true"
		}
	}

	setString("DEVICE", &cfg.Model.Device)
	setString("MODEL", &cfg.Model.Folder)
	setString("MODEL_SOURCE", &cfg.Model.Source)
	setString("MODEL_VERSION", &cfg.Model.Version)
	setBool("LOWVRAM_MODE", &cfg.Model.LowVRAM)
	setBool("DEEPSPEED", &cfg.Model.DeepSpeed)

	setString("OUTPUT", &cfg.Folders.Output)
	setString("SPEAKER", &cfg.Folders.Speaker)
	setString("LATENT_SPEAKER", &cfg.Folders.Latent)

	setBool("USE_CACHE", &cfg.Cache.Enabled)
	setBool("STREAM_MODE", &cfg.Streaming.Enabled)
	setBool("STREAM_MODE_IMPROVE", &cfg.Streaming.Improved)
	setBool("STREAM_PLAY_SYNC", &cfg.Streaming.PlaySync)

	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	setString("HOST", &cfg.Server.IP)
}

// Validate rejects configurations the server cannot start with.
func Validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return errors.New(errors.KindConfig, "config.validate",
			fmt.Sprintf("invalid server port %d", cfg.Server.Port))
	}
	switch cfg.Model.Source {
	case "local", "api", "apiManual":
	default:
		return errors.New(errors.KindConfig, "config.validate",
			fmt.Sprintf("unknown model source %q", cfg.Model.Source))
	}
	switch cfg.Cache.Type {
	case "", "memory", "redis":
	default:
		return errors.New(errors.KindConfig, "config.validate",
			fmt.Sprintf("unknown cache type %q", cfg.Cache.Type))
	}
	switch cfg.Engine.Type {
	case "exec", "edge":
	default:
		return errors.New(errors.KindConfig, "config.validate",
			fmt.Sprintf("unknown engine type %q", cfg.Engine.Type))
	}
	return nil
}
