// Package cmd implements the trellis command line interface.
package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	appconfig "github.com/3leaps/trellis/internal/config"
	"github.com/3leaps/trellis/internal/observability"
)

// versionInfo holds the build identity stamped through SetVersionInfo.
var versionInfo struct {
	Version   string
	Commit    string
	BuildDate string
}

// SetVersionInfo records the link-time version stamp.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

// appIdentity is established by initConfig before any command runs.
var appIdentity *appconfig.AppIdentity

// GetAppIdentity returns the application identity, or nil before
// initialization.
func GetAppIdentity() *appconfig.AppIdentity {
	return appIdentity
}

var (
	cfgFile  string
	verbose  bool
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "trellis",
	Short: "Lint, expand, and audit Travis-style build matrices",
	Long: `Trellis works with Travis-style build-matrix configurations: it lints
them against matrix invariants, expands them into the concrete jobs a
build would run, converts them to GitHub Actions workflows, and audits
configurations stored in bulk on the local filesystem or S3.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI and returns the command error, if any.
func Execute() error {
	return rootCmd.Execute()
}

// exitCodeError carries a process exit code through the cobra error path.
type exitCodeError struct {
	code int
	err  error
}

func (e *exitCodeError) Error() string { return e.err.Error() }
func (e *exitCodeError) Unwrap() error { return e.err }

// ExitCode extracts the exit code carried by a command error. Errors
// without one map to 1.
func ExitCode(err error) int {
	var ec *exitCodeError
	if errors.As(err, &ec) {
		return ec.code
	}
	return 1
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches ./trellis.yaml and user config dirs)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug output")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
}

// initConfig wires viper, the app identity, and the CLI logger before any
// command runs.
func initConfig() {
	appIdentity = &appconfig.AppIdentity{
		BinaryName: "trellis",
		EnvPrefix:  "TRELLIS",
		ConfigName: "trellis",
	}

	setDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName(appIdentity.ConfigName)
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			viper.AddConfigPath(filepath.Join(dir, appIdentity.BinaryName))
		}
	}

	viper.SetEnvPrefix(appIdentity.EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// A missing config file is fine; defaults and env cover everything.
	_ = viper.ReadInConfig()

	if logLevel != "" {
		viper.Set("logging.level", logLevel)
	}

	observability.InitCLILogger(appIdentity.BinaryName, verbose)
}

// setDefaults registers the built-in configuration defaults on the global
// viper instance.
func setDefaults() {
	viper.SetDefault("server.host", "localhost")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.idle_timeout", "120s")
	viper.SetDefault("server.shutdown_timeout", "10s")
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.profile", "structured")
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.port", 9090)
	viper.SetDefault("health.enabled", true)
	viper.SetDefault("workers", 4)
	viper.SetDefault("debug.enabled", false)
	viper.SetDefault("debug.pprof_enabled", false)
}

// ExitWithCode logs the failure and terminates the process with the given
// exit code.
func ExitWithCode(logger *zap.Logger, code int, message string, err error) {
	if logger != nil {
		logger.Error(message, zap.Error(err), zap.Int("exit_code", code))
	} else {
		fmt.Fprintf(os.Stderr, "%s: %v (exit code %d)\n", message, err, code)
	}
	os.Exit(code)
}
