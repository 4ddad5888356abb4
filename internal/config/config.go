// Package config loads and validates the daemon's config.json (per spec
// §6 External Interfaces), following the teacher's internal/config
// loader conventions: recursive $include resolution, environment
// variable expansion, JSON5/YAML parsing, and schema validation before
// the daemon is allowed to start.
package config

// Config is the root document described by spec.md §6's config.json.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Profile       string              `yaml:"profile"`
	Transports    []string            `yaml:"transports"`
	RBAC          RBACConfig          `yaml:"rbac"`
	Observability ObservabilityConfig `yaml:"observability"`
	ContextEngine ContextEngineConfig `yaml:"context_engine"`
	Performance   PerformanceConfig   `yaml:"performance"`
	Sandbox       SandboxConfig       `yaml:"sandbox"`
	ManifestDir   string              `yaml:"manifest_dir"`
}

// ServerConfig is the daemon's listen configuration for the tool
// execution RPC (spec §6, the HTTP JSON boundary).
type ServerConfig struct {
	Port int `yaml:"port"`
}

// RBACConfig points at the persisted policies document and the
// filesystem allowlist override used by the Path Security Resolver.
// When FSAllowlist is empty, the allowlist embedded in the policies
// document itself (dispatchmodel.Policies.FSAllowlist) is used.
type RBACConfig struct {
	PoliciesPath string   `yaml:"policies_path"`
	FSAllowlist  []string `yaml:"fs_allowlist"`
}

// ObservabilityConfig is accepted and validated but, per spec §1
// Non-goals, its OTelExporter field is inert: no OTel/Prometheus wire
// format is produced by this daemon.
type ObservabilityConfig struct {
	OTelExporter string `yaml:"otel_exporter"`
	LogLevel     string `yaml:"log_level"`
	LogFormat    string `yaml:"log_format"`
}

// ContextEngineConfig configures the §4.5 Context Engine.
type ContextEngineConfig struct {
	Enabled            bool    `yaml:"enabled"`
	ChangeCapPctPerDay float64 `yaml:"changeCapPctPerDay"`
	MinConfidence      float64 `yaml:"minConfidence"`
}

// PerformanceConfig configures the §4.6 Event Bus's batching and
// backpressure thresholds.
type PerformanceConfig struct {
	MaxInflight    int     `yaml:"maxInflight"`
	BatchSize      int     `yaml:"batchSize"`
	QueueWatermark float64 `yaml:"queueWatermark"`
}

// SandboxConfig configures the §4.3 Sandbox Driver.
type SandboxConfig struct {
	RuntimeBinary string `yaml:"runtime_binary"`
	TimeoutMS     int    `yaml:"timeout_ms"`
	ScriptPath    string `yaml:"session_compress_script"`
}

// Default returns the daemon's out-of-the-box configuration, used when
// no config.json is present.
func Default() Config {
	return Config{
		Server:      ServerConfig{Port: 50550},
		Profile:     "default",
		Transports:  []string{"http"},
		RBAC:        RBACConfig{PoliciesPath: "policies.json"},
		ManifestDir: "manifests",
		ContextEngine: ContextEngineConfig{
			Enabled:            true,
			ChangeCapPctPerDay: 10,
			MinConfidence:      0.6,
		},
		Performance: PerformanceConfig{
			MaxInflight:    2048,
			BatchSize:      64,
			QueueWatermark: 0.75,
		},
		Sandbox: SandboxConfig{RuntimeBinary: "wasmtime"},
	}
}
