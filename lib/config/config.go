// Package config loads host configuration from defaults, an optional YAML file and
// BUNDLEGO_ environment variables, in that order.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "BUNDLEGO_"

// Config is the complete host configuration.
type Config struct {
	// Addr is the HTTP listen address.
	Addr string `yaml:"addr" env:"ADDR"`
	// PackagePath is a jar holding the bundles. Empty means the bundles embedded in the binary.
	PackagePath string `yaml:"package_path" env:"PACKAGE_PATH"`
	// BundlesDir is the bundle location inside the package.
	BundlesDir string `yaml:"bundles_dir" env:"BUNDLES_DIR"`
	// InstallParallelism bounds concurrent installs at startup.
	InstallParallelism int `yaml:"install_parallelism" env:"INSTALL_PARALLELISM"`

	LogLevel  string `yaml:"log_level" env:"LOG_LEVEL"`
	LogFormat string `yaml:"log_format" env:"LOG_FORMAT"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`

	Server  ServerConfig  `yaml:"server" envPrefix:"SERVER_"`
	Bridge  BridgeConfig  `yaml:"bridge" envPrefix:"BRIDGE_"`
	Metrics MetricsConfig `yaml:"metrics" envPrefix:"METRICS_"`
	Tracing TracingConfig `yaml:"tracing" envPrefix:"TRACING_"`
	Crypto  CryptoConfig  `yaml:"crypto" envPrefix:"CRYPTO_"`
}

// ServerConfig holds http.Server timeouts.
type ServerConfig struct {
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" env:"READ_HEADER_TIMEOUT"`
	ReadTimeout       time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout      time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	IdleTimeout       time.Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT"`
}

// BridgeConfig is handed to the request delegate through the bridge.
type BridgeConfig struct {
	Name       string            `yaml:"name" env:"NAME"`
	InitParams map[string]string `yaml:"init_params" env:"INIT_PARAMS"`
}

// MetricsConfig controls the /metrics endpoint.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" env:"ENABLED"`
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
}

// TracingConfig selects the trace exporter.
type TracingConfig struct {
	Exporter string `yaml:"exporter" env:"EXPORTER"`
}

// CryptoConfig tunes the hashing endpoint.
type CryptoConfig struct {
	Iterations int `yaml:"iterations" env:"ITERATIONS"`
	SaltSize   int `yaml:"salt_size" env:"SALT_SIZE"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Addr:               ":8080",
		BundlesDir:         "bundles",
		InstallParallelism: 1,
		LogLevel:           "info",
		LogFormat:          "text",
		ShutdownTimeout:    10 * time.Second,
		Server: ServerConfig{
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       2 * time.Minute,
		},
		Bridge: BridgeConfig{
			Name: "bridge",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "bundlego",
		},
		Tracing: TracingConfig{
			Exporter: "none",
		},
		Crypto: CryptoConfig{
			Iterations: 10000,
			SaltSize:   32,
		},
	}
}

// Load reads the configuration from path (skipped when empty) and the process environment.
func Load(path string) (Config, error) {
	return load(path, nil)
}

// LoadWithEnv is Load with an explicit environment instead of the process one.
func LoadWithEnv(path string, environ map[string]string) (Config, error) {
	if environ == nil {
		environ = map[string]string{}
	}
	return load(path, environ)
}

func load(path string, environ map[string]string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := decodeYAML(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	opts := env.Options{Prefix: EnvPrefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// decodeYAML rejects unknown keys. An empty document leaves cfg unchanged.
func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("addr is required"))
	}
	if c.BundlesDir == "" {
		errs = append(errs, errors.New("bundles_dir is required"))
	}
	if c.InstallParallelism < 1 {
		errs = append(errs, fmt.Errorf("install_parallelism must be at least 1, got %d", c.InstallParallelism))
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format must be text or json, got %q", c.LogFormat))
	}
	switch c.Tracing.Exporter {
	case "none", "stdout":
	default:
		errs = append(errs, fmt.Errorf("tracing.exporter must be none or stdout, got %q", c.Tracing.Exporter))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("shutdown_timeout must be positive"))
	}
	if c.Crypto.Iterations < 1 || c.Crypto.SaltSize < 1 {
		errs = append(errs, errors.New("crypto iterations and salt_size must be positive"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
