package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	require.True(t, cfg.AutoRefresh)
	require.Equal(t, 30, cfg.Daemon.ShutdownTimeoutSeconds)
	require.False(t, cfg.Tracing.Enabled)
	require.Equal(t, "file", cfg.Tracing.Exporter)
	require.Equal(t, "localhost:4317", cfg.Tracing.OTLPEndpoint)
	require.Equal(t, 1.0, cfg.Tracing.SampleRate)
}

func TestDefaults_AreValid(t *testing.T) {
	require.NoError(t, Validate(Defaults()))
}

func TestValidate_RejectsNegativeShutdownTimeout(t *testing.T) {
	cfg := Defaults()
	cfg.Daemon.ShutdownTimeoutSeconds = -1

	err := Validate(cfg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "shutdown_timeout_seconds")
}

func TestValidateTracing(t *testing.T) {
	tests := []struct {
		name      string
		tracing   TracingConfig
		errSubstr string
	}{
		{
			name:    "zero value is valid",
			tracing: TracingConfig{},
		},
		{
			name:    "disabled with no paths is valid",
			tracing: TracingConfig{Exporter: "file", SampleRate: 1.0},
		},
		{
			name:    "enabled file exporter with path",
			tracing: TracingConfig{Enabled: true, Exporter: "file", FilePath: "/tmp/traces.jsonl", SampleRate: 1.0},
		},
		{
			name:    "enabled otlp exporter with endpoint",
			tracing: TracingConfig{Enabled: true, Exporter: "otlp", OTLPEndpoint: "localhost:4317", SampleRate: 0.5},
		},
		{
			name:      "sample rate above one",
			tracing:   TracingConfig{SampleRate: 1.5},
			errSubstr: "sample_rate",
		},
		{
			name:      "negative sample rate",
			tracing:   TracingConfig{SampleRate: -0.1},
			errSubstr: "sample_rate",
		},
		{
			name:      "unknown exporter",
			tracing:   TracingConfig{Exporter: "jaeger"},
			errSubstr: "exporter",
		},
		{
			name:      "enabled file exporter without path",
			tracing:   TracingConfig{Enabled: true, Exporter: "file", SampleRate: 1.0},
			errSubstr: "file_path",
		},
		{
			name:      "enabled otlp exporter without endpoint",
			tracing:   TracingConfig{Enabled: true, Exporter: "otlp", SampleRate: 1.0},
			errSubstr: "otlp_endpoint",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTracing(tt.tracing)
			if tt.errSubstr == "" {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
				require.Contains(t, err.Error(), tt.errSubstr)
			}
		})
	}
}

func TestWriteDefaultConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.yaml")

	err := WriteDefaultConfig(path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	// Template must be parseable YAML
	var parsed map[string]any
	require.NoError(t, yaml.Unmarshal(data, &parsed))
	require.Contains(t, parsed, "auto_refresh")
	require.Contains(t, parsed, "daemon")
}

func TestDefaultConfigTemplate_MatchesDefaults(t *testing.T) {
	var parsed struct {
		AutoRefresh bool `yaml:"auto_refresh"`
		Daemon      struct {
			ShutdownTimeoutSeconds int `yaml:"shutdown_timeout_seconds"`
		} `yaml:"daemon"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(DefaultConfigTemplate()), &parsed))

	defaults := Defaults()
	require.Equal(t, defaults.AutoRefresh, parsed.AutoRefresh)
	require.Equal(t, defaults.Daemon.ShutdownTimeoutSeconds, parsed.Daemon.ShutdownTimeoutSeconds)
}
