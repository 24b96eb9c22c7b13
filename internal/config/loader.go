// Package config loads the application configuration for trellis commands.
// Values are layered, lowest to highest precedence: built-in defaults, a
// trellis.yaml config file, TRELLIS_* environment variables, and runtime
// overrides passed by the caller.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// AppIdentity names the application for config discovery: the binary name,
// the prefix for environment variables, and the config file base name.
type AppIdentity struct {
	BinaryName string
	EnvPrefix  string
	ConfigName string
}

// Config is the loaded application configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Health  HealthConfig  `mapstructure:"health"`
	Debug   DebugConfig   `mapstructure:"debug"`
	Workers int           `mapstructure:"workers"`
}

// ServerConfig holds the HTTP server settings for the serve command.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig selects the log level and output profile. Profile is
// normalized to uppercase after loading (STRUCTURED or CONSOLE).
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Profile string `mapstructure:"profile"`
}

// MetricsConfig controls the Prometheus exporter endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// HealthConfig controls the health endpoints.
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// DebugConfig controls debug logging and the pprof endpoints.
type DebugConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	PprofEnabled bool `mapstructure:"pprof_enabled"`
}

// envSpec maps one environment variable to its config path.
type envSpec struct {
	Name string
	Path string
}

var (
	configMu    sync.RWMutex
	appIdentity *AppIdentity
	appConfig   *Config
)

// Load reads the configuration and stores it as the process config.
// Optional override maps apply last and win over environment variables,
// config files, and defaults. Nested maps address nested sections, as in
// {"server": {"port": 9000}}.
func Load(ctx context.Context, overrides ...map[string]any) (*Config, error) {
	configMu.Lock()
	defer configMu.Unlock()

	if appIdentity == nil {
		appIdentity = &AppIdentity{
			BinaryName: "trellis",
			EnvPrefix:  "TRELLIS",
			ConfigName: "trellis",
		}
	}

	v := viper.New()
	setLoaderDefaults(v)

	v.SetConfigName(appIdentity.ConfigName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if root, err := findProjectRoot(); err == nil {
		v.AddConfigPath(root)
	}
	for _, dir := range userConfigPathsLocked() {
		v.AddConfigPath(dir)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	for _, spec := range envSpecsLocked() {
		if err := v.BindEnv(spec.Path, spec.Name); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", spec.Name, err)
		}
	}

	for _, override := range overrides {
		flat := make(map[string]any)
		flattenOverride("", override, flat)
		for key, value := range flat {
			v.Set(key, value)
		}
	}

	var cfg Config
	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, decodeHook); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.Logging.Profile = strings.ToUpper(cfg.Logging.Profile)

	appConfig = &cfg
	return &cfg, nil
}

// GetConfig returns the most recently loaded configuration, or nil when
// Load has not run.
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// GetAppIdentity returns the identity established by Load, or nil before
// the first Load.
func GetAppIdentity() *AppIdentity {
	configMu.RLock()
	defer configMu.RUnlock()
	return appIdentity
}

func setLoaderDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "structured")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("health.enabled", true)
	v.SetDefault("workers", 4)
	v.SetDefault("debug.enabled", false)
	v.SetDefault("debug.pprof_enabled", false)
}

// getEnvSpecs returns the environment variable mappings for the current
// app identity, or an empty slice before Load.
func getEnvSpecs() []envSpec {
	configMu.RLock()
	defer configMu.RUnlock()
	return envSpecsLocked()
}

// envSpecsLocked builds the env mappings. Callers must hold configMu.
func envSpecsLocked() []envSpec {
	if appIdentity == nil {
		return nil
	}
	prefix := appIdentity.EnvPrefix + "_"
	return []envSpec{
		{Name: prefix + "HOST", Path: "server.host"},
		{Name: prefix + "PORT", Path: "server.port"},
		{Name: prefix + "READ_TIMEOUT", Path: "server.read_timeout"},
		{Name: prefix + "WRITE_TIMEOUT", Path: "server.write_timeout"},
		{Name: prefix + "IDLE_TIMEOUT", Path: "server.idle_timeout"},
		{Name: prefix + "SHUTDOWN_TIMEOUT", Path: "server.shutdown_timeout"},
		{Name: prefix + "LOG_LEVEL", Path: "logging.level"},
		{Name: prefix + "LOG_PROFILE", Path: "logging.profile"},
		{Name: prefix + "METRICS_ENABLED", Path: "metrics.enabled"},
		{Name: prefix + "METRICS_PORT", Path: "metrics.port"},
		{Name: prefix + "HEALTH_ENABLED", Path: "health.enabled"},
		{Name: prefix + "WORKERS", Path: "workers"},
		{Name: prefix + "DEBUG", Path: "debug.enabled"},
		{Name: prefix + "PPROF_ENABLED", Path: "debug.pprof_enabled"},
	}
}

// getUserConfigPaths returns per-user config directories to search, or an
// empty slice before Load.
func getUserConfigPaths() []string {
	configMu.RLock()
	defer configMu.RUnlock()
	return userConfigPathsLocked()
}

// userConfigPathsLocked builds the search paths. Callers must hold configMu.
func userConfigPathsLocked() []string {
	if appIdentity == nil {
		return nil
	}
	var paths []string
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, appIdentity.BinaryName))
	}
	if dir, err := gfconfig.GetAppDataDir(appIdentity.BinaryName); err == nil && dir != "" {
		paths = append(paths, dir)
	}
	return paths
}

// flattenOverride rewrites a nested override map into dotted viper keys.
func flattenOverride(prefix string, value any, out map[string]any) {
	if nested, ok := value.(map[string]any); ok {
		for key, val := range nested {
			path := key
			if prefix != "" {
				path = prefix + "." + key
			}
			flattenOverride(path, val, out)
		}
		return
	}
	if prefix != "" {
		out[prefix] = value
	}
}

// findProjectRoot locates the project directory for config file discovery.
//
// On CI (CI=true or GITHUB_ACTIONS=true) the workspace hint variables are
// consulted first: FULMEN_WORKSPACE_ROOT, GITHUB_WORKSPACE, CI_PROJECT_DIR,
// then WORKSPACE. A hint is used only when it is an absolute path to an
// existing directory that contains the working directory. Otherwise the
// walk-up search looks for go.mod or .git, stopping at $HOME when the
// working directory sits inside it, and falls back to the working
// directory itself when no marker is found.
func findProjectRoot() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("determine working directory: %w", err)
	}

	if os.Getenv("CI") == "true" || os.Getenv("GITHUB_ACTIONS") == "true" {
		hints := []string{
			os.Getenv("FULMEN_WORKSPACE_ROOT"),
			os.Getenv("GITHUB_WORKSPACE"),
			os.Getenv("CI_PROJECT_DIR"),
			os.Getenv("WORKSPACE"),
		}
		for _, hint := range hints {
			if hint == "" || !filepath.IsAbs(hint) {
				continue
			}
			info, statErr := os.Stat(hint)
			if statErr != nil || !info.IsDir() {
				continue
			}
			if containsPath(hint, cwd) {
				return hint, nil
			}
		}
	}

	// A home boundary only applies when the working directory is inside
	// $HOME; CI checkouts commonly live elsewhere.
	boundary := ""
	if home, homeErr := os.UserHomeDir(); homeErr == nil && containsPath(home, cwd) {
		boundary = home
	}

	dir := cwd
	for {
		for _, marker := range []string{"go.mod", ".git"} {
			if _, statErr := os.Stat(filepath.Join(dir, marker)); statErr == nil {
				return dir, nil
			}
		}
		if dir == boundary {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return cwd, nil
}

// containsPath reports whether path is root itself or a descendant of it.
func containsPath(root, path string) bool {
	root = filepath.Clean(root)
	path = filepath.Clean(path)
	if root == path {
		return true
	}
	return strings.HasPrefix(path, root+string(filepath.Separator))
}
