// Package cmd wires the warden CLI: flag and config resolution via
// cobra/viper, plus the daemon subcommand that assembles and runs the
// orchestration engine.
package cmd

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zjrosen/warden/internal/config"
)

var (
	version   = "dev"
	cfgFile   string
	debugFlag bool
	cfg       config.Config
)

var rootCmd = &cobra.Command{
	Use:   "warden",
	Short: "A daemon that supervises fleets of game client processes",
	Long: `Warden keeps a fleet of game clients running: it launches profiles with
credentials drawn from shared key pools, watches heartbeats, restarts
crashes with backoff, and opens or closes profiles on their configured
schedules. State lives in a SQLite database; everything that happens is
published as events for attached frontends.`,
	Version:      version,
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: ~/.config/warden/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false,
		"log at debug level")
	rootCmd.PersistentFlags().String("db", "",
		"path to the warden database")

	// Bind flags to viper
	_ = viper.BindPFlag("db_path", rootCmd.PersistentFlags().Lookup("db"))
}

func initConfig() {
	defaults := config.Defaults()
	viper.SetDefault("db_path", defaults.DBPath)
	viper.SetDefault("log_path", defaults.LogPath)
	viper.SetDefault("auto_refresh", defaults.AutoRefresh)
	viper.SetDefault("daemon.shutdown_timeout_seconds", defaults.Daemon.ShutdownTimeoutSeconds)
	viper.SetDefault("tracing.enabled", defaults.Tracing.Enabled)
	viper.SetDefault("tracing.exporter", defaults.Tracing.Exporter)
	viper.SetDefault("tracing.otlp_endpoint", defaults.Tracing.OTLPEndpoint)
	viper.SetDefault("tracing.sample_rate", defaults.Tracing.SampleRate)

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Config lookup order:
		// 1. .warden/config.yaml (current directory)
		// 2. ~/.config/warden/config.yaml (user config)
		if _, err := os.Stat(".warden/config.yaml"); err == nil {
			viper.SetConfigFile(".warden/config.yaml")
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(filepath.Join(home, ".config", "warden"))
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
	}

	viper.SetEnvPrefix("WARDEN")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file runs on defaults; `warden config init`
		// writes one. A file that exists but will not parse is fatal.
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if !notFound && !os.IsNotExist(err) {
			cobra.CheckErr(err)
		}
	}

	_ = viper.Unmarshal(&cfg)
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
