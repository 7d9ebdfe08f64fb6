package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDurationUnmarshalYAML(t *testing.T) {
	var out struct {
		D Duration `yaml:"d"`
	}

	require.NoError(t, yaml.Unmarshal([]byte("d: 2s"), &out))
	assert.Equal(t, 2*time.Second, out.D.Std())

	require.NoError(t, yaml.Unmarshal([]byte("d: 1500ms"), &out))
	assert.Equal(t, 1500*time.Millisecond, out.D.Std())

	require.NoError(t, yaml.Unmarshal([]byte("d: 1000"), &out))
	assert.Equal(t, time.Duration(1000), out.D.Std())

	assert.Error(t, yaml.Unmarshal([]byte("d: nonsense"), &out))
}

func TestPacingSanitize(t *testing.T) {
	tests := []struct {
		name     string
		in       PacingConfig
		expected PacingConfig
	}{
		{
			name: "valid config unchanged",
			in: PacingConfig{
				DefaultInterval: Duration(2 * time.Second),
				Min:             Duration(time.Second),
				Max:             Duration(5 * time.Second),
				SpeedupFactor:   1.5,
				SlowdownFactor:  0.5,
				ScalingEnabled:  true,
			},
			expected: PacingConfig{
				DefaultInterval: Duration(2 * time.Second),
				Min:             Duration(time.Second),
				Max:             Duration(5 * time.Second),
				SpeedupFactor:   1.5,
				SlowdownFactor:  0.5,
				ScalingEnabled:  true,
			},
		},
		{
			name: "non-positive default resets to compile-time default",
			in: PacingConfig{
				DefaultInterval: Duration(-5 * time.Second),
				Min:             DefaultHeartbeatInterval,
				Max:             DefaultHeartbeatInterval,
			},
			expected: PacingConfig{
				DefaultInterval: DefaultHeartbeatInterval,
				Min:             DefaultHeartbeatInterval,
				Max:             DefaultHeartbeatInterval,
			},
		},
		{
			name: "broken ordering collapses min and max onto default",
			in: PacingConfig{
				DefaultInterval: Duration(2 * time.Second),
				Min:             Duration(3 * time.Second),
				Max:             Duration(10 * time.Second),
			},
			expected: PacingConfig{
				DefaultInterval: Duration(2 * time.Second),
				Min:             Duration(2 * time.Second),
				Max:             Duration(2 * time.Second),
			},
		},
		{
			name: "max below default collapses bounds",
			in: PacingConfig{
				DefaultInterval: Duration(2 * time.Second),
				Min:             Duration(time.Second),
				Max:             Duration(time.Second),
			},
			expected: PacingConfig{
				DefaultInterval: Duration(2 * time.Second),
				Min:             Duration(2 * time.Second),
				Max:             Duration(2 * time.Second),
			},
		},
		{
			name: "negative factors reset to defaults",
			in: PacingConfig{
				DefaultInterval: Duration(time.Second),
				Min:             Duration(time.Second),
				Max:             Duration(time.Second),
				SpeedupFactor:   -1,
				SlowdownFactor:  2,
			},
			expected: PacingConfig{
				DefaultInterval: Duration(time.Second),
				Min:             Duration(time.Second),
				Max:             Duration(time.Second),
				SpeedupFactor:   DefaultSpeedupFactor,
				SlowdownFactor:  DefaultSlowdownFactor,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.in.Sanitize(zerolog.Nop()))
		})
	}
}

func TestRuntimeHostValid(t *testing.T) {
	tests := []struct {
		name      string
		admission AdmissionConfig
		host      string
		expected  bool
	}{
		{
			name:      "no lists admits everyone",
			admission: AdmissionConfig{},
			host:      "h1",
			expected:  true,
		},
		{
			name:      "excluded host rejected",
			admission: AdmissionConfig{ExcludeHosts: []string{"h1"}},
			host:      "h1",
			expected:  false,
		},
		{
			name:      "include list is closed",
			admission: AdmissionConfig{IncludeHosts: []string{"h2"}},
			host:      "h1",
			expected:  false,
		},
		{
			name:      "included host admitted",
			admission: AdmissionConfig{IncludeHosts: []string{"h1"}},
			host:      "h1",
			expected:  true,
		},
		{
			name: "exclude wins over include",
			admission: AdmissionConfig{
				IncludeHosts: []string{"h1"},
				ExcludeHosts: []string{"h1"},
			},
			host:     "h1",
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Admission = tt.admission
			rt := NewRuntime(cfg, zerolog.Nop())
			assert.Equal(t, tt.expected, rt.HostValid(tt.host))
		})
	}
}

func TestRuntimeUpdateAdmission(t *testing.T) {
	rt := NewRuntime(Default(), zerolog.Nop())
	assert.True(t, rt.HostValid("h1"))

	rt.UpdateAdmission(AdmissionConfig{ExcludeHosts: []string{"h1"}})
	assert.False(t, rt.HostValid("h1"))
	assert.True(t, rt.HostValid("h2"))
}

func TestRuntimeUpdatePacingSanitizes(t *testing.T) {
	rt := NewRuntime(Default(), zerolog.Nop())
	rt.UpdatePacing(PacingConfig{DefaultInterval: Duration(-1)})
	assert.Equal(t, DefaultHeartbeatInterval, rt.Pacing().DefaultInterval)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load("/nonexistent/burrow.yaml", zerolog.Nop())
	assert.Error(t, err)
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("", zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, DefaultMinNodeVersion, cfg.Admission.MinNodeVersion)
	assert.Equal(t, DefaultHeartbeatInterval, cfg.Pacing.DefaultInterval)
	assert.Equal(t, DefaultLabelMode, cfg.LabelMode)
}

func TestLoadOverridesAndValidates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "burrow.yaml")
	doc := `
bind_addr: "0.0.0.0:9000"
admission:
  min_node_version: "3.2.0"
  min_alloc_memory_mib: 2048
  min_alloc_vcores: 2
  exclude_hosts: ["bad-host"]
pacing:
  default_interval: 2s
  min: 1s
  max: 4s
  scaling_enabled: true
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))

	cfg, err := Load(path, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9000", cfg.BindAddr)
	assert.Equal(t, "3.2.0", cfg.Admission.MinNodeVersion)
	assert.Equal(t, int64(2048), cfg.Admission.MinAllocMemoryMiB)
	assert.Equal(t, 2*time.Second, cfg.Pacing.DefaultInterval.Std())
	assert.True(t, cfg.Pacing.ScalingEnabled)
	assert.Equal(t, []string{"bad-host"}, cfg.Admission.ExcludeHosts)
}

func TestLoadRejectsBadLabelMode(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "burrow.yaml")
	require.NoError(t, os.WriteFile(path, []byte("label_mode: bogus\n"), 0644))

	_, err := Load(path, zerolog.Nop())
	assert.Error(t, err)
}
