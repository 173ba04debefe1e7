package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func readYAML(t *testing.T, path string) map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var parsed map[string]any
	require.NoError(t, yaml.Unmarshal(data, &parsed))
	return parsed
}

func TestSaveLauncher_CreatesNewFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	err := SaveLauncher(path, LauncherConfig{
		Executable: "/usr/local/bin/d2-headless",
		GamePath:   "/opt/diablo2",
		Args:       []string{"--no-sound", "--windowed"},
	})
	require.NoError(t, err)

	parsed := readYAML(t, path)
	launcher, ok := parsed["launcher"].(map[string]any)
	require.True(t, ok, "launcher section should exist")
	require.Equal(t, "/usr/local/bin/d2-headless", launcher["executable"])
	require.Equal(t, "/opt/diablo2", launcher["game_path"])
	require.Equal(t, []any{"--no-sound", "--windowed"}, launcher["args"])
}

func TestSaveLauncher_PreservesOtherSections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	initial := `# warden config
auto_refresh: true

# daemon tuning, do not touch
daemon:
  shutdown_timeout_seconds: 15

launcher:
  executable: /old/binary
`
	require.NoError(t, os.WriteFile(path, []byte(initial), 0o600))

	err := SaveLauncher(path, LauncherConfig{Executable: "/new/binary"})
	require.NoError(t, err)

	parsed := readYAML(t, path)
	require.Equal(t, true, parsed["auto_refresh"])

	daemon, ok := parsed["daemon"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, 15, daemon["shutdown_timeout_seconds"])

	launcher, ok := parsed["launcher"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "/new/binary", launcher["executable"])

	// Comments outside the replaced section survive
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "# daemon tuning, do not touch")
}

func TestSaveLauncher_AppendsWhenSectionMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	require.NoError(t, os.WriteFile(path, []byte("auto_refresh: false\n"), 0o600))

	err := SaveLauncher(path, LauncherConfig{Executable: "/bin/true"})
	require.NoError(t, err)

	parsed := readYAML(t, path)
	require.Equal(t, false, parsed["auto_refresh"])
	launcher, ok := parsed["launcher"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "/bin/true", launcher["executable"])
}

func TestSaveLauncher_SkipsEmptyFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	err := SaveLauncher(path, LauncherConfig{Executable: "/bin/true"})
	require.NoError(t, err)

	parsed := readYAML(t, path)
	launcher, ok := parsed["launcher"].(map[string]any)
	require.True(t, ok)
	require.NotContains(t, launcher, "game_path")
	require.NotContains(t, launcher, "args")
}

func TestSaveTracing_ReplacesExistingSection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	initial := `tracing:
  enabled: false
  exporter: file
`
	require.NoError(t, os.WriteFile(path, []byte(initial), 0o600))

	err := SaveTracing(path, TracingConfig{
		Enabled:      true,
		Exporter:     "otlp",
		OTLPEndpoint: "jaeger.internal:4317",
		SampleRate:   0.25,
	})
	require.NoError(t, err)

	parsed := readYAML(t, path)
	tracing, ok := parsed["tracing"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, true, tracing["enabled"])
	require.Equal(t, "otlp", tracing["exporter"])
	require.Equal(t, "jaeger.internal:4317", tracing["otlp_endpoint"])
	require.Equal(t, 0.25, tracing["sample_rate"])
}

func TestSaveTracing_SampleRateAlwaysFloat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	err := SaveTracing(path, TracingConfig{Exporter: "file", SampleRate: 1})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, strings.Contains(string(data), "sample_rate: 1.0"),
		"sample_rate should render as a float, got:\n%s", string(data))
}

func TestSaveTracing_RoundTripsThroughConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	want := TracingConfig{
		Enabled:    true,
		Exporter:   "file",
		FilePath:   "/tmp/traces.jsonl",
		SampleRate: 0.5,
	}
	require.NoError(t, SaveTracing(path, want))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var parsed struct {
		Tracing struct {
			Enabled    bool    `yaml:"enabled"`
			Exporter   string  `yaml:"exporter"`
			FilePath   string  `yaml:"file_path"`
			SampleRate float64 `yaml:"sample_rate"`
		} `yaml:"tracing"`
	}
	require.NoError(t, yaml.Unmarshal(data, &parsed))
	require.Equal(t, want.Enabled, parsed.Tracing.Enabled)
	require.Equal(t, want.Exporter, parsed.Tracing.Exporter)
	require.Equal(t, want.FilePath, parsed.Tracing.FilePath)
	require.Equal(t, want.SampleRate, parsed.Tracing.SampleRate)
}
