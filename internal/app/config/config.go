package config

import (
	"fmt"
	"time"
)

// Backend types understood by the agent gateway factory
const (
	BackendAnthropic = "anthropic"
	BackendOpenAI    = "openai"
	BackendClaudeCLI = "claude-cli"
	BackendMock      = "mock"
)

// Config is the immutable application configuration. It is built once by the
// infra config loader and passed explicitly to every component that needs it.
type Config struct {
	MaxIterations int
	LogLevel      string

	State    StateConfig
	Lock     LockConfig
	Archive  ArchiveConfig
	Provider ProviderConfig
	Stages   StagesConfig
	Metrics  MetricsConfig

	Source string // "yaml" or "default"
	Path   string // Path of the loaded file, empty for defaults
}

// StateConfig selects where workflow state is persisted
type StateConfig struct {
	Backend string // "sqlite" or "file"
	DBPath  string // Relative paths resolve against the project
	Dir     string // Directory for the file backend
}

// LockConfig controls the per-project run lock
type LockConfig struct {
	Enabled bool
	TTL     time.Duration
}

// ArchiveConfig controls where terminal run snapshots are copied
type ArchiveConfig struct {
	Type     string // "none", "local" or "s3"
	LocalDir string
	S3       S3Config
}

// S3Config holds S3 archive settings
type S3Config struct {
	Bucket   string
	Prefix   string
	Region   string
	Endpoint string
}

// ProviderConfig holds the provider chain policy and the backend definitions
type ProviderConfig struct {
	MaxAttempts    int
	AttemptTimeout time.Duration
	RetryDelay     time.Duration
	RateLimit      float64 // Requests per second per backend, 0 = unlimited
	Backends       []BackendConfig
}

// BackendConfig describes one model backend
type BackendConfig struct {
	Name      string
	Type      string
	Model     string
	APIKeyEnv string
	BaseURL   string
	Binary    string
	MaxTokens int
}

// StagesConfig holds per-stage settings
type StagesConfig struct {
	Discovery DiscoveryConfig
	Solution  AgentStageConfig
	Edit      AgentStageConfig
	Validate  ValidateConfig
}

// DiscoveryConfig controls the project scan
type DiscoveryConfig struct {
	Include      []string
	Exclude      []string
	MaxFileBytes int64
	Workers      int
}

// AgentStageConfig names the backends a model-driven stage uses, in fallback order.
// An empty list means every configured backend.
type AgentStageConfig struct {
	Backends  []string
	MaxTokens int
}

// ValidateConfig lists the checks run by the validate stage
type ValidateConfig struct {
	Checks []CheckConfig
}

// CheckConfig is one validation command
type CheckConfig struct {
	Name     string
	Command  []string
	Timeout  time.Duration
	PassWhen string // expr expression, default "exit_code == 0"
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Addr string
}

// Backend returns the backend with the given name
func (c Config) Backend(name string) (BackendConfig, bool) {
	for _, b := range c.Provider.Backends {
		if b.Name == name {
			return b, true
		}
	}
	return BackendConfig{}, false
}

// BackendsFor resolves a stage's backend list in order
func (c Config) BackendsFor(stage AgentStageConfig) ([]BackendConfig, error) {
	if len(stage.Backends) == 0 {
		return append([]BackendConfig(nil), c.Provider.Backends...), nil
	}
	out := make([]BackendConfig, 0, len(stage.Backends))
	for _, name := range stage.Backends {
		b, ok := c.Backend(name)
		if !ok {
			return nil, fmt.Errorf("unknown backend %q", name)
		}
		out = append(out, b)
	}
	return out, nil
}
