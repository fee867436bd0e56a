package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/foolishimp/c4h-intent-system-sub000/internal/app/config"
)

// DefaultPath is the config file location relative to the project root
const DefaultPath = ".c4h/config.yaml"

// RawSettings represents the structure of config.yaml.
// Pointer fields distinguish "absent" from zero values.
type RawSettings struct {
	MaxIterations *int    `yaml:"max_iterations"`
	LogLevel      *string `yaml:"log_level"`

	State *struct {
		Backend *string `yaml:"backend"`
		DBPath  *string `yaml:"db_path"`
		Dir     *string `yaml:"dir"`
	} `yaml:"state"`

	Lock *struct {
		Enabled *bool   `yaml:"enabled"`
		TTL     *string `yaml:"ttl"`
	} `yaml:"lock"`

	Archive *struct {
		Type     *string `yaml:"type"`
		LocalDir *string `yaml:"local_dir"`
		S3       *struct {
			Bucket   string `yaml:"bucket"`
			Prefix   string `yaml:"prefix"`
			Region   string `yaml:"region"`
			Endpoint string `yaml:"endpoint"`
		} `yaml:"s3"`
	} `yaml:"archive"`

	Provider *struct {
		MaxAttempts    *int         `yaml:"max_attempts"`
		AttemptTimeout *string      `yaml:"attempt_timeout"`
		RetryDelay     *string      `yaml:"retry_delay"`
		RateLimit      *float64     `yaml:"rate_limit"`
		Backends       []RawBackend `yaml:"backends"`
	} `yaml:"provider"`

	Stages *struct {
		Discovery *struct {
			Include      []string `yaml:"include"`
			Exclude      []string `yaml:"exclude"`
			MaxFileBytes *int64   `yaml:"max_file_bytes"`
			Workers      *int     `yaml:"workers"`
		} `yaml:"discovery"`
		Solution *RawAgentStage `yaml:"solution"`
		Edit     *RawAgentStage `yaml:"edit"`
		Validate *struct {
			Checks []RawCheck `yaml:"checks"`
		} `yaml:"validate"`
	} `yaml:"stages"`

	Metrics *struct {
		Addr *string `yaml:"addr"`
	} `yaml:"metrics"`
}

// RawBackend is one entry of provider.backends
type RawBackend struct {
	Name      string `yaml:"name"`
	Type      string `yaml:"type"`
	Model     string `yaml:"model"`
	APIKeyEnv string `yaml:"api_key_env"`
	BaseURL   string `yaml:"base_url"`
	Binary    string `yaml:"binary"`
	MaxTokens int    `yaml:"max_tokens"`
}

// RawAgentStage is the solution/edit stage section
type RawAgentStage struct {
	Backends  []string `yaml:"backends"`
	MaxTokens int      `yaml:"max_tokens"`
}

// RawCheck is one entry of stages.validate.checks
type RawCheck struct {
	Name     string   `yaml:"name"`
	Command  []string `yaml:"command"`
	Timeout  string   `yaml:"timeout"`
	PassWhen string   `yaml:"pass_when"`
}

// Defaults applied when a field is absent
var (
	defaultExclude = []string{".git/**", ".c4h/**", "**/node_modules/**", "**/*.bak_*", "**/__pycache__/**"}
)

// LoadSettings loads configuration from path. A missing file yields defaults.
// Priority: config.yaml > defaults
func LoadSettings(fs afero.Fs, path string) (*config.Config, error) {
	settings := &RawSettings{}
	source := "default"
	loadedPath := ""

	data, err := afero.ReadFile(fs, path)
	switch {
	case err == nil:
		if err := decodeStrict(data, settings); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		source = "yaml"
		loadedPath = path
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	cfg, err := buildConfig(settings)
	if err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	cfg.Source = source
	cfg.Path = loadedPath
	return cfg, nil
}

func decodeStrict(data []byte, v interface{}) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// buildConfig applies defaults and converts RawSettings to Config
func buildConfig(s *RawSettings) (*config.Config, error) {
	cfg := &config.Config{
		MaxIterations: 3,
		LogLevel:      "warn",
		State:         config.StateConfig{Backend: "sqlite", DBPath: ".c4h/c4h.db", Dir: ".c4h/runs"},
		Lock:          config.LockConfig{Enabled: true, TTL: 2 * time.Hour},
		Archive:       config.ArchiveConfig{Type: "none", LocalDir: ".c4h/archive"},
		Provider: config.ProviderConfig{
			MaxAttempts:    2,
			AttemptTimeout: 2 * time.Minute,
		},
		Stages: config.StagesConfig{
			Discovery: config.DiscoveryConfig{
				Exclude:      append([]string(nil), defaultExclude...),
				MaxFileBytes: 64 * 1024,
				Workers:      8,
			},
		},
	}

	if s.MaxIterations != nil {
		cfg.MaxIterations = *s.MaxIterations
	}
	if s.LogLevel != nil {
		cfg.LogLevel = *s.LogLevel
	}

	if st := s.State; st != nil {
		setString(&cfg.State.Backend, st.Backend)
		setString(&cfg.State.DBPath, st.DBPath)
		setString(&cfg.State.Dir, st.Dir)
	}

	if l := s.Lock; l != nil {
		if l.Enabled != nil {
			cfg.Lock.Enabled = *l.Enabled
		}
		if err := setDuration(&cfg.Lock.TTL, l.TTL, "lock.ttl"); err != nil {
			return nil, err
		}
	}

	if a := s.Archive; a != nil {
		setString(&cfg.Archive.Type, a.Type)
		setString(&cfg.Archive.LocalDir, a.LocalDir)
		if a.S3 != nil {
			cfg.Archive.S3 = config.S3Config{
				Bucket:   a.S3.Bucket,
				Prefix:   a.S3.Prefix,
				Region:   a.S3.Region,
				Endpoint: a.S3.Endpoint,
			}
		}
	}

	if p := s.Provider; p != nil {
		if p.MaxAttempts != nil {
			cfg.Provider.MaxAttempts = *p.MaxAttempts
		}
		if err := setDuration(&cfg.Provider.AttemptTimeout, p.AttemptTimeout, "provider.attempt_timeout"); err != nil {
			return nil, err
		}
		if err := setDuration(&cfg.Provider.RetryDelay, p.RetryDelay, "provider.retry_delay"); err != nil {
			return nil, err
		}
		if p.RateLimit != nil {
			cfg.Provider.RateLimit = *p.RateLimit
		}
		for _, b := range p.Backends {
			cfg.Provider.Backends = append(cfg.Provider.Backends, config.BackendConfig(b))
		}
	}

	if st := s.Stages; st != nil {
		if d := st.Discovery; d != nil {
			if d.Include != nil {
				cfg.Stages.Discovery.Include = d.Include
			}
			if d.Exclude != nil {
				cfg.Stages.Discovery.Exclude = d.Exclude
			}
			if d.MaxFileBytes != nil {
				cfg.Stages.Discovery.MaxFileBytes = *d.MaxFileBytes
			}
			if d.Workers != nil {
				cfg.Stages.Discovery.Workers = *d.Workers
			}
		}
		if st.Solution != nil {
			cfg.Stages.Solution = config.AgentStageConfig(*st.Solution)
		}
		if st.Edit != nil {
			cfg.Stages.Edit = config.AgentStageConfig(*st.Edit)
		}
		if v := st.Validate; v != nil {
			for _, c := range v.Checks {
				check := config.CheckConfig{Name: c.Name, Command: c.Command, PassWhen: c.PassWhen, Timeout: 5 * time.Minute}
				if c.Timeout != "" {
					d, err := time.ParseDuration(c.Timeout)
					if err != nil {
						return nil, fmt.Errorf("stages.validate.checks[%s].timeout: %w", c.Name, err)
					}
					check.Timeout = d
				}
				cfg.Stages.Validate.Checks = append(cfg.Stages.Validate.Checks, check)
			}
		}
	}

	if m := s.Metrics; m != nil {
		setString(&cfg.Metrics.Addr, m.Addr)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *config.Config) error {
	if cfg.MaxIterations < 1 {
		return fmt.Errorf("max_iterations must be >= 1, got %d", cfg.MaxIterations)
	}
	if cfg.Provider.MaxAttempts < 1 {
		return fmt.Errorf("provider.max_attempts must be >= 1, got %d", cfg.Provider.MaxAttempts)
	}
	switch cfg.State.Backend {
	case "sqlite", "file":
	default:
		return fmt.Errorf("state.backend must be sqlite or file, got %q", cfg.State.Backend)
	}
	switch cfg.Archive.Type {
	case "none", "local":
	case "s3":
		if cfg.Archive.S3.Bucket == "" {
			return fmt.Errorf("archive.s3.bucket is required for archive type s3")
		}
	default:
		return fmt.Errorf("archive.type must be none, local or s3, got %q", cfg.Archive.Type)
	}

	seen := make(map[string]bool)
	for i, b := range cfg.Provider.Backends {
		if strings.TrimSpace(b.Name) == "" {
			return fmt.Errorf("provider.backends[%d]: name is required", i)
		}
		if seen[b.Name] {
			return fmt.Errorf("provider.backends: duplicate name %q", b.Name)
		}
		seen[b.Name] = true
		switch b.Type {
		case config.BackendAnthropic, config.BackendOpenAI, config.BackendClaudeCLI, config.BackendMock:
		default:
			return fmt.Errorf("provider.backends[%s]: unsupported type %q", b.Name, b.Type)
		}
	}
	for _, stage := range []config.AgentStageConfig{cfg.Stages.Solution, cfg.Stages.Edit} {
		if _, err := cfg.BackendsFor(stage); err != nil {
			return fmt.Errorf("stages: %w", err)
		}
	}
	for i, c := range cfg.Stages.Validate.Checks {
		if c.Name == "" || len(c.Command) == 0 {
			return fmt.Errorf("stages.validate.checks[%d]: name and command are required", i)
		}
	}
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *string, field string) error {
	if v == nil {
		return nil
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	*dst = d
	return nil
}

// DefaultConfigYAML returns a starter config.yaml
func DefaultConfigYAML() []byte {
	return []byte(`# c4h configuration
max_iterations: 3
log_level: warn

state:
  backend: sqlite
  db_path: .c4h/c4h.db

lock:
  enabled: true
  ttl: 2h

archive:
  type: none

provider:
  max_attempts: 2
  attempt_timeout: 2m
  backends:
    - name: claude
      type: anthropic
      model: claude-sonnet-4-5
      api_key_env: ANTHROPIC_API_KEY
    - name: openai
      type: openai
      model: gpt-4o
      api_key_env: OPENAI_API_KEY
    - name: claude-cli
      type: claude-cli
      binary: claude

stages:
  validate:
    checks: []
`)
}
