package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML configs can carry values like
// "30s"; bare integers are read as nanoseconds.
type Duration time.Duration

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// UnmarshalYAML accepts either a duration string or an integer.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var n int64
	if err := node.Decode(&n); err == nil {
		*d = Duration(n)
		return nil
	}
	var s string
	if err := node.Decode(&s); err != nil {
		return fmt.Errorf("invalid duration %q", node.Value)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration in its string form.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Compile-time pacing defaults, used both as initial values and as the
// fallbacks when a loaded pacing block fails validation.
const (
	DefaultHeartbeatInterval = Duration(1 * time.Second)
	DefaultSpeedupFactor     = 1.0
	DefaultSlowdownFactor    = 1.0
)

// Other service defaults.
const (
	DefaultNodeExpiry      = Duration(10 * time.Minute)
	DefaultExpiryScan      = Duration(15 * time.Second)
	DefaultNMKeyCacheTTL   = Duration(1 * time.Hour)
	DefaultMinNodeVersion  = "NONE"
	DefaultLabelMode       = LabelModeDistributed
	DefaultClientThreads   = 50
	DefaultMinAllocMemory  = 1024
	DefaultMinAllocVCores  = 1
	DefaultShutdownTimeout = 10 * time.Second
)

// Label propagation modes; mutually exclusive.
const (
	LabelModeDistributed          = "distributed"
	LabelModeDelegatedCentralized = "delegated-centralized"
)

// PacingConfig drives the per-node heartbeat interval selection.
type PacingConfig struct {
	DefaultInterval Duration `yaml:"default_interval" json:"default_interval"`
	Min             Duration `yaml:"min" json:"min"`
	Max             Duration `yaml:"max" json:"max"`
	SpeedupFactor   float64  `yaml:"speedup_factor" json:"speedup_factor"`
	SlowdownFactor  float64  `yaml:"slowdown_factor" json:"slowdown_factor"`
	ScalingEnabled  bool     `yaml:"scaling_enabled" json:"scaling_enabled"`
}

// DefaultPacing returns the compile-time pacing configuration.
func DefaultPacing() PacingConfig {
	return PacingConfig{
		DefaultInterval: DefaultHeartbeatInterval,
		Min:             DefaultHeartbeatInterval,
		Max:             DefaultHeartbeatInterval,
		SpeedupFactor:   DefaultSpeedupFactor,
		SlowdownFactor:  DefaultSlowdownFactor,
	}
}

// Sanitize repairs an invalid pacing block instead of rejecting it:
// a non-positive default interval resets to the compile-time default,
// a broken 0 < min <= default <= max ordering collapses min and max onto
// the default, and negative factors reset to their defaults. Every repair
// is logged as a warning.
func (p PacingConfig) Sanitize(logger zerolog.Logger) PacingConfig {
	out := p
	if out.DefaultInterval <= 0 {
		logger.Warn().
			Dur("configured", out.DefaultInterval.Std()).
			Dur("fallback", DefaultHeartbeatInterval.Std()).
			Msg("Non-positive heartbeat interval, using default")
		out.DefaultInterval = DefaultHeartbeatInterval
	}
	if out.Min <= 0 || out.Min > out.DefaultInterval || out.Max < out.DefaultInterval {
		logger.Warn().
			Dur("min", out.Min.Std()).
			Dur("max", out.Max.Std()).
			Dur("default", out.DefaultInterval.Std()).
			Msg("Heartbeat interval bounds do not satisfy 0 < min <= default <= max, collapsing to default")
		out.Min = out.DefaultInterval
		out.Max = out.DefaultInterval
	}
	if out.SpeedupFactor < 0 || out.SlowdownFactor < 0 {
		logger.Warn().
			Float64("speedup", out.SpeedupFactor).
			Float64("slowdown", out.SlowdownFactor).
			Msg("Negative heartbeat scaling factor, using defaults")
		out.SpeedupFactor = DefaultSpeedupFactor
		out.SlowdownFactor = DefaultSlowdownFactor
	}
	return out
}

// AdmissionConfig holds the admission-policy inputs that admins may
// replace at runtime.
type AdmissionConfig struct {
	// MinNodeVersion is the node-agent version floor. "NONE" disables the
	// check; "EqualToRM" resolves to this server's own version.
	MinNodeVersion string `yaml:"min_node_version"`

	MinAllocMemoryMiB int64 `yaml:"min_alloc_memory_mib"`
	MinAllocVCores    int   `yaml:"min_alloc_vcores"`

	// IncludeHosts, when non-empty, is the closed admission list; only
	// listed hosts are valid. ExcludeHosts always rejects.
	IncludeHosts []string `yaml:"include_hosts"`
	ExcludeHosts []string `yaml:"exclude_hosts"`

	ResolveHostCheck bool `yaml:"resolve_host_check"`
}

// DecommissionConfig selects which workloads block a draining node.
type DecommissionConfig struct {
	// WaitForApps additionally requires the node's running-application
	// set to drain, not just its containers.
	WaitForApps bool `yaml:"wait_for_apps"`
}

// Config is the static service configuration loaded at startup. The
// pacing and admission subsets are also hot-swappable afterwards through
// the admin verbs; the dynamic resource table is not part of Config and
// lives in pkg/dynres.
type Config struct {
	BindAddr      string `yaml:"bind_addr" validate:"required,hostname_port"`
	DataDir       string `yaml:"data_dir" validate:"required"`
	ClientThreads int    `yaml:"client_threads" validate:"gte=1"`

	RMVersion string `yaml:"rm_version"`

	NodeExpiry         Duration `yaml:"node_expiry" validate:"gt=0"`
	ExpiryScanInterval Duration `yaml:"expiry_scan_interval" validate:"gt=0"`

	Pacing       PacingConfig       `yaml:"pacing"`
	Admission    AdmissionConfig    `yaml:"admission"`
	Decommission DecommissionConfig `yaml:"decommission"`

	TimelineV2Enabled      bool   `yaml:"timeline_v2_enabled"`
	LabelMode              string `yaml:"label_mode" validate:"oneof=distributed delegated-centralized"`
	WorkPreservingRecovery bool   `yaml:"work_preserving_recovery"`

	NMKeyCacheTTL Duration `yaml:"nm_key_cache_ttl" validate:"gt=0"`
}

// Default returns a runnable configuration.
func Default() Config {
	return Config{
		BindAddr:           "0.0.0.0:8031",
		DataDir:            "/var/lib/burrow",
		ClientThreads:      DefaultClientThreads,
		NodeExpiry:         DefaultNodeExpiry,
		ExpiryScanInterval: DefaultExpiryScan,
		Pacing:             DefaultPacing(),
		Admission: AdmissionConfig{
			MinNodeVersion:    DefaultMinNodeVersion,
			MinAllocMemoryMiB: DefaultMinAllocMemory,
			MinAllocVCores:    DefaultMinAllocVCores,
		},
		LabelMode:              DefaultLabelMode,
		WorkPreservingRecovery: true,
		NMKeyCacheTTL:          DefaultNMKeyCacheTTL,
	}
}

// Load reads a YAML config file over the defaults and validates the
// static fields. Pacing is sanitized, not rejected.
func Load(path string, logger zerolog.Logger) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}

	cfg.Pacing = cfg.Pacing.Sanitize(logger)
	return cfg, nil
}
