package bridgegen

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config holds the configuration for code generation. It can be read from a
// YAML file with LoadConfig; command line flags override file values.
//
// Example bridge.yaml:
//
//	package: ./api
//	siblings: [./api/models]
//	out: ./web/src/bridge
//	defaultTimeoutMs: 30000
type Config struct {
	// Package is the Go package scanned for services and events: an import
	// path or a directory.
	Package string `yaml:"package" validate:"required"`

	// Siblings are additional packages whose records are collected as models.
	Siblings []string `yaml:"siblings"`

	// Dir is the working directory for package resolution. Relative paths in
	// a config file are resolved against the file's directory.
	Dir string `yaml:"dir"`

	// Out is the output directory.
	Out string `yaml:"out" validate:"required"`

	// RuntimeImport replaces the bundled runtime.ts with an import from this
	// module path.
	RuntimeImport string `yaml:"runtimeImport"`

	// DefaultTimeoutMs is the default per-call timeout baked into the bundled
	// runtime. Zero means no timeout.
	DefaultTimeoutMs int `yaml:"defaultTimeoutMs" validate:"gte=0"`

	// Comments copies Go doc comments into the output. Default true.
	Comments *bool `yaml:"comments"`

	// Registration writes bridge_gen.go into the scanned package so that
	// Register applies the service names and ignored methods of the source
	// annotations. Default true.
	Registration *bool `yaml:"registration"`
}

var configValidator = validator.New(validator.WithRequiredStructEnabled())

// LoadConfig reads a YAML config file.
func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	base := filepath.Dir(path)
	if cfg.Dir == "" {
		cfg.Dir = base
	} else if !filepath.IsAbs(cfg.Dir) {
		cfg.Dir = filepath.Join(base, cfg.Dir)
	}
	if cfg.Out != "" && !filepath.IsAbs(cfg.Out) {
		cfg.Out = filepath.Join(base, cfg.Out)
	}
	return &cfg, nil
}

// Validate reports missing or invalid fields.
func (c *Config) Validate() error {
	err := configValidator.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	var errs []error
	for _, fe := range verrs {
		errs = append(errs, fmt.Errorf("config: %s failed %q validation", fe.Field(), fe.Tag()))
	}
	return errors.Join(errs...)
}

func (c *Config) comments() bool {
	return c.Comments == nil || *c.Comments
}

func (c *Config) registration() bool {
	return c.Registration == nil || *c.Registration
}
