package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zjrosen/warden/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and edit the warden config file",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a commented default config file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		path := ".warden/config.yaml"
		if len(args) == 1 {
			path = args[0]
		}
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists at %s", path)
		}
		if err := config.WriteDefaultConfig(path); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}
		fmt.Printf("Wrote default config to %s\n", path)
		return nil
	},
}

var configTracingCmd = &cobra.Command{
	Use:   "tracing {on|off}",
	Short: "Toggle tracing in the config file",
	Long: `Flip tracing.enabled in the config file, leaving the other sections
and their comments untouched. Enabling with the file exporter and no
file_path fills in the default traces location.`,
	Args: cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		tracingCfg := cfg.Tracing
		switch args[0] {
		case "on":
			tracingCfg.Enabled = true
		case "off":
			tracingCfg.Enabled = false
		default:
			return fmt.Errorf("expected on or off, got %q", args[0])
		}
		if tracingCfg.Enabled && tracingCfg.Exporter == "file" && tracingCfg.FilePath == "" {
			tracingCfg.FilePath = config.DefaultTracesFilePath()
		}
		if err := config.ValidateTracing(tracingCfg); err != nil {
			return err
		}
		path := configFilePath()
		if err := config.SaveTracing(path, tracingCfg); err != nil {
			return fmt.Errorf("saving tracing config: %w", err)
		}
		fmt.Printf("Tracing %s in %s\n", args[0], path)
		return nil
	},
}

var (
	launcherExecutable string
	launcherGamePath   string
	launcherArgs       []string
)

var configLauncherCmd = &cobra.Command{
	Use:   "launcher",
	Short: "Record host launch defaults in the config file",
	Long: `Record the executable, arguments, and game path a profile inherits
when it does not set its own. Only flags you pass are changed.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		launcherCfg := cfg.Launcher
		if cmd.Flags().Changed("executable") {
			launcherCfg.Executable = launcherExecutable
		}
		if cmd.Flags().Changed("game-path") {
			launcherCfg.GamePath = launcherGamePath
		}
		if cmd.Flags().Changed("arg") {
			launcherCfg.Args = launcherArgs
		}
		path := configFilePath()
		if err := config.SaveLauncher(path, launcherCfg); err != nil {
			return fmt.Errorf("saving launcher config: %w", err)
		}
		fmt.Printf("Updated launcher defaults in %s\n", path)
		return nil
	},
}

// configFilePath resolves where config edits land: the explicit
// --config flag, then whichever file viper loaded, then the local
// default.
func configFilePath() string {
	if cfgFile != "" {
		return cfgFile
	}
	if used := viper.ConfigFileUsed(); used != "" {
		return used
	}
	return ".warden/config.yaml"
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configTracingCmd)
	configCmd.AddCommand(configLauncherCmd)

	configLauncherCmd.Flags().StringVar(&launcherExecutable, "executable", "", "default executable to launch")
	configLauncherCmd.Flags().StringVar(&launcherGamePath, "game-path", "", "default game working directory")
	configLauncherCmd.Flags().StringSliceVar(&launcherArgs, "arg", nil, "default launch argument (repeatable)")
}
