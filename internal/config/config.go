// Package config loads and validates the service configuration from a YAML
// file with environment-variable overrides for the secrets.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DefaultBaseDomain      = "aedify.ai"
	DefaultContainerPort   = 3000
	DefaultInitialHostPort = 3003
	DefaultBuildPack       = "nixpacks"

	DefaultCounterFilePath = "./port_counter.json"
	DefaultCounterDBPath   = "./port_counter.db"
	DefaultHistoryDBPath   = "./deployments.db"
)

// Counter backends.
const (
	BackendFile     = "file"
	BackendDatabase = "database"
)

// CounterConfig selects and locates the port counter backend.
type CounterConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`    // file backend
	DBPath  string `yaml:"db_path"` // database backend
}

// Config is the root service configuration.
type Config struct {
	CoolifyURL       string        `yaml:"coolify_url"`
	APIToken         string        `yaml:"api_token"`
	DeployServerUUID string        `yaml:"deploy_server_uuid"`
	DockerhubImage   string        `yaml:"dockerhub_image"`
	GitHubToken      string        `yaml:"github_token"`
	BaseDomain       string        `yaml:"base_domain"`
	ContainerPort    int           `yaml:"container_port"`
	InitialHostPort  int           `yaml:"initial_host_port"`
	BuildPack        string        `yaml:"build_pack"`
	PortCounter      CounterConfig `yaml:"port_counter"`
	HistoryDBPath    string        `yaml:"history_db_path"`
}

// Load reads the YAML config at path, applies env overrides and defaults,
// and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	cfg.applyEnvOverrides()
	cfg.applyDefaults()

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration:\n%s", strings.Join(errs, "\n"))
	}

	return &cfg, nil
}

// applyEnvOverrides lets deployment environments inject secrets without
// writing them into the config file.
func (c *Config) applyEnvOverrides() {
	overrideString(&c.CoolifyURL, "PORTWAY_COOLIFY_URL")
	overrideString(&c.APIToken, "PORTWAY_API_TOKEN")
	overrideString(&c.DeployServerUUID, "PORTWAY_DEPLOY_SERVER_UUID")
	overrideString(&c.DockerhubImage, "PORTWAY_DOCKERHUB_IMAGE")
	overrideString(&c.GitHubToken, "PORTWAY_GITHUB_TOKEN")
	overrideString(&c.BaseDomain, "PORTWAY_BASE_DOMAIN")
	overrideInt(&c.InitialHostPort, "PORTWAY_INITIAL_HOST_PORT")
}

func (c *Config) applyDefaults() {
	if c.BaseDomain == "" {
		c.BaseDomain = DefaultBaseDomain
	}
	if c.ContainerPort == 0 {
		c.ContainerPort = DefaultContainerPort
	}
	if c.InitialHostPort == 0 {
		c.InitialHostPort = DefaultInitialHostPort
	}
	if c.BuildPack == "" {
		c.BuildPack = DefaultBuildPack
	}
	if c.PortCounter.Backend == "" {
		c.PortCounter.Backend = BackendFile
	}
	if c.PortCounter.Path == "" {
		c.PortCounter.Path = DefaultCounterFilePath
	}
	if c.PortCounter.DBPath == "" {
		c.PortCounter.DBPath = DefaultCounterDBPath
	}
	if c.HistoryDBPath == "" {
		c.HistoryDBPath = DefaultHistoryDBPath
	}
}

// Validate returns all configuration problems at once so the operator can
// fix them in one pass.
func (c *Config) Validate() []string {
	var errors []string

	if c.CoolifyURL == "" {
		errors = append(errors, "  - missing required 'coolify_url'")
	} else {
		u, err := url.Parse(c.CoolifyURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errors = append(errors, fmt.Sprintf("  - coolify_url must be an http(s) URL, got '%s'", c.CoolifyURL))
		}
	}

	if c.APIToken == "" {
		errors = append(errors, "  - missing required 'api_token'")
	}

	if c.DeployServerUUID == "" {
		errors = append(errors, "  - missing required 'deploy_server_uuid'")
	}

	if c.ContainerPort < 1 || c.ContainerPort > 65535 {
		errors = append(errors, fmt.Sprintf("  - container_port must be in 1-65535, got %d", c.ContainerPort))
	}

	if c.InitialHostPort < 1024 || c.InitialHostPort > 65535 {
		errors = append(errors, fmt.Sprintf("  - initial_host_port must be in 1024-65535, got %d", c.InitialHostPort))
	}

	switch c.PortCounter.Backend {
	case BackendFile, BackendDatabase:
	default:
		errors = append(errors, fmt.Sprintf("  - port_counter.backend must be '%s' or '%s', got '%s'",
			BackendFile, BackendDatabase, c.PortCounter.Backend))
	}

	return errors
}

func overrideString(dst *string, key string) {
	if value := os.Getenv(key); value != "" {
		*dst = value
	}
}

func overrideInt(dst *int, key string) {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			*dst = n
		}
	}
}
