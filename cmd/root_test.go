package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func executeCommand(t *testing.T, args ...string) error {
	t.Helper()
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

func useConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	cfgFile = path
	t.Cleanup(func() { cfgFile = "" })
	return path
}

func TestRootSubcommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	require.True(t, names["daemon"])
	require.True(t, names["config"])

	sub := map[string]bool{}
	for _, c := range configCmd.Commands() {
		sub[c.Name()] = true
	}
	require.True(t, sub["init"])
	require.True(t, sub["tracing"])
	require.True(t, sub["launcher"])
}

func TestInitConfig_ExplicitFile(t *testing.T) {
	useConfigFile(t, `db_path: /x/warden.db
auto_refresh: false
daemon:
  shutdown_timeout_seconds: 5
`)

	initConfig()

	require.Equal(t, "/x/warden.db", cfg.DBPath)
	require.False(t, cfg.AutoRefresh)
	require.Equal(t, 5, cfg.Daemon.ShutdownTimeoutSeconds)
	require.Equal(t, "file", cfg.Tracing.Exporter, "unset keys fall back to defaults")
	require.InEpsilon(t, 1.0, cfg.Tracing.SampleRate, 1e-9)
}

func TestInitConfig_EnvOverridesFile(t *testing.T) {
	t.Setenv("WARDEN_AUTO_REFRESH", "false")
	t.Setenv("WARDEN_DAEMON_SHUTDOWN_TIMEOUT_SECONDS", "7")
	useConfigFile(t, "auto_refresh: true\n")

	initConfig()

	require.False(t, cfg.AutoRefresh)
	require.Equal(t, 7, cfg.Daemon.ShutdownTimeoutSeconds)
}

func TestConfigInit_WritesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	require.NoError(t, executeCommand(t, "config", "init", path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "auto_refresh: true")
	require.Contains(t, string(data), "shutdown_timeout_seconds: 30")

	err = executeCommand(t, "config", "init", path)
	require.ErrorContains(t, err, "already exists")
}

func TestConfigTracing_TogglePreservesOtherSections(t *testing.T) {
	path := useConfigFile(t, `# fleet database
db_path: /var/lib/warden/warden.db

tracing:
  enabled: false
  exporter: file
  sample_rate: 1.0
`)

	require.NoError(t, executeCommand(t, "config", "tracing", "on"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "# fleet database")
	require.Contains(t, string(data), "db_path: /var/lib/warden/warden.db")
	require.Contains(t, string(data), "enabled: true")
	require.Contains(t, string(data), "file_path:",
		"enabling the file exporter fills in the default traces path")

	require.NoError(t, executeCommand(t, "config", "tracing", "off"))

	data, err = os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "enabled: false")
	require.Contains(t, string(data), "db_path: /var/lib/warden/warden.db")
}

func TestConfigTracing_RejectsUnknownArgument(t *testing.T) {
	useConfigFile(t, "")
	require.ErrorContains(t, executeCommand(t, "config", "tracing", "maybe"), "expected on or off")
}

func TestConfigLauncher_UpdatesOnlyPassedFlags(t *testing.T) {
	path := useConfigFile(t, `launcher:
  executable: /old/bot
  game_path: /old/d2
`)

	require.NoError(t, executeCommand(t, "config", "launcher", "--executable", "/new/bot", "--arg=-ns"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "executable: /new/bot")
	require.Contains(t, string(data), "game_path: /old/d2", "flags not passed keep their file value")
	require.Contains(t, string(data), "-ns")
}
