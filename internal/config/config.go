// Package config loads the disputeflow settings file. Values are read from YAML
// over built-in defaults, then environment overrides are applied, relative
// paths are resolved against the file's directory and the result is validated.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultPath is where the binaries look for a config file.
	DefaultPath = "disputeflow.yaml"

	DefaultHost                  = "127.0.0.1"
	DefaultPort                  = 8780
	DefaultMaxBodyBytes    int64 = 1 << 20
	DefaultReadTimeout           = 15 * time.Second
	DefaultWriteTimeout          = 15 * time.Second
	DefaultIdleTimeout           = 60 * time.Second
	DefaultShutdownTimeout       = 5 * time.Second
	DefaultWorkflowsDir          = "workflows"
)

const defaultConfigYAML = `# disputeflow configuration
server:
  host: 127.0.0.1
  port: 8780
  max_body_bytes: 1048576
  read_timeout: 15s
  write_timeout: 15s
  idle_timeout: 60s

# Workflow definitions are read from <dir>/<id>.{yaml,yml,hcl,json} unless a
# database url is configured.
workflows:
  dir: workflows
  default: ""

database:
  url: ""

logging:
  path: ""

engine:
  # Stop on decisions that are neither approvals nor rejections instead of
  # routing them as approvals.
  strict_decisions: false
`

// Server holds HTTP listener settings.
type Server struct {
	Host            string        `yaml:"host" validate:"required"`
	Port            int           `yaml:"port" validate:"min=1,max=65535"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes" validate:"min=1"`
	ReadTimeout     time.Duration `yaml:"read_timeout" validate:"min=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" validate:"min=0"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" validate:"min=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"min=0"`
}

// Workflows locates workflow definitions.
type Workflows struct {
	Dir     string `yaml:"dir" validate:"required"`
	Default string `yaml:"default" validate:"omitempty,max=128"`
}

// Database configures the PostgreSQL definition store.
type Database struct {
	URL string `yaml:"url" validate:"omitempty,url"`
}

// Logging configures the run log file. An empty path logs to stderr.
type Logging struct {
	Path string `yaml:"path"`
}

// Engine carries traversal switches.
type Engine struct {
	StrictDecisions bool `yaml:"strict_decisions"`
}

// Config is the full settings file.
type Config struct {
	Server    Server    `yaml:"server"`
	Workflows Workflows `yaml:"workflows"`
	Database  Database  `yaml:"database"`
	Logging   Logging   `yaml:"logging"`
	Engine    Engine    `yaml:"engine"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("yaml"), ",", 2)[0]
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	return v
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: Server{
			Host:            DefaultHost,
			Port:            DefaultPort,
			MaxBodyBytes:    DefaultMaxBodyBytes,
			ReadTimeout:     DefaultReadTimeout,
			WriteTimeout:    DefaultWriteTimeout,
			IdleTimeout:     DefaultIdleTimeout,
			ShutdownTimeout: DefaultShutdownTimeout,
		},
		Workflows: Workflows{Dir: DefaultWorkflowsDir},
	}
}

// Load reads path over the defaults. A missing file is not an error; the
// defaults plus environment overrides are returned.
func Load(path string) (Config, error) {
	cfg := Default()
	base := "."
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
			}
			base = filepath.Dir(path)
		}
	}
	cfg.applyEnvOverrides()
	cfg.applyDefaults()
	cfg.normalize(base)
	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// EnsureFile writes the commented default config to path unless it exists.
func EnsureFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, []byte(defaultConfigYAML), 0o644)
}

// Address returns the listener address in host:port form.
func (c Config) Address() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// UsesDatabase reports whether definitions come from PostgreSQL.
func (c Config) UsesDatabase() bool {
	return c.Database.URL != ""
}

func (c *Config) applyEnvOverrides() {
	if host := strings.TrimSpace(os.Getenv("DISPUTEFLOW_HOST")); host != "" {
		c.Server.Host = host
	}
	if port := strings.TrimSpace(os.Getenv("DISPUTEFLOW_PORT")); port != "" {
		if parsed, err := strconv.Atoi(port); err == nil {
			c.Server.Port = parsed
		}
	}
	if dir := strings.TrimSpace(os.Getenv("DISPUTEFLOW_WORKFLOWS_DIR")); dir != "" {
		c.Workflows.Dir = dir
	}
	if url, ok := os.LookupEnv("DISPUTEFLOW_DATABASE_URL"); ok {
		c.Database.URL = url
	}
	if path, ok := os.LookupEnv("DISPUTEFLOW_LOG_PATH"); ok {
		c.Logging.Path = path
	}
	if value := strings.TrimSpace(os.Getenv("DISPUTEFLOW_STRICT_DECISIONS")); value != "" {
		if strict, err := strconv.ParseBool(value); err == nil {
			c.Engine.StrictDecisions = strict
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Server.MaxBodyBytes == 0 {
		c.Server.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = DefaultReadTimeout
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = DefaultWriteTimeout
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = DefaultIdleTimeout
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
}

func (c *Config) normalize(base string) {
	c.Server.Host = strings.TrimSpace(c.Server.Host)
	if c.Server.Host == "" {
		c.Server.Host = DefaultHost
	}
	c.Workflows.Dir = resolvePath(base, c.Workflows.Dir)
	if c.Workflows.Dir == "" {
		c.Workflows.Dir = resolvePath(base, DefaultWorkflowsDir)
	}
	c.Workflows.Default = strings.TrimSpace(c.Workflows.Default)
	c.Database.URL = strings.TrimSpace(c.Database.URL)
	c.Logging.Path = resolvePath(base, c.Logging.Path)
}

func (c *Config) validate() error {
	if err := validate.Struct(c); err != nil {
		return formatValidationError(err)
	}
	return nil
}

// formatValidationError reports the first failing field by its YAML path.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}
	for _, e := range validationErrs {
		field := strings.TrimPrefix(e.Namespace(), "Config.")
		switch e.Tag() {
		case "required":
			return fmt.Errorf("%s is required", field)
		case "min":
			return fmt.Errorf("%s must be at least %s", field, e.Param())
		case "max":
			return fmt.Errorf("%s must not exceed %s", field, e.Param())
		case "url":
			return fmt.Errorf("%s must be a valid url", field)
		default:
			return fmt.Errorf("%s failed %s validation", field, e.Tag())
		}
	}
	return err
}

func resolvePath(base, candidate string) string {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		return ""
	}
	if filepath.IsAbs(trimmed) {
		return filepath.Clean(trimmed)
	}
	return filepath.Clean(filepath.Join(base, trimmed))
}
