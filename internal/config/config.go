package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	RoleBackend = "backend"
	RoleRouter  = "router"
	RoleAll     = "all"

	CacheMemory = "memory"
	CacheRedis  = "redis"

	DeployNoop       = "noop"
	DeployKubernetes = "kubernetes"

	// MinObservationInterval is the floor applied to observation.interval.
	MinObservationInterval = 5 * time.Second
)

// Config models intentmesh.yml.
type Config struct {
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
		Role     string `yaml:"role"`
		Name     string `yaml:"name"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"auth"`
	GraphDB     GraphDBConfig     `yaml:"graphdb"`
	Resolver    ResolverConfig    `yaml:"resolver"`
	Router      RouterConfig      `yaml:"router"`
	Notify      NotifyConfig      `yaml:"notify"`
	Observation ObservationConfig `yaml:"observation"`
	Deploy      DeployConfig      `yaml:"deploy"`
}

type GraphDBConfig struct {
	Endpoint        string        `yaml:"endpoint"`
	Graph           string        `yaml:"graph"`
	IDPredicate     string        `yaml:"id_predicate"`
	DomainPredicate string        `yaml:"domain_predicate"`
	Timeout         time.Duration `yaml:"timeout"`
}

type ResolverConfig struct {
	APIURLTemplate string `yaml:"api_url_template"`
	Cache          struct {
		Backend     string        `yaml:"backend"`
		TTL         time.Duration `yaml:"ttl"`
		RedisAddr   string        `yaml:"redis_addr"`
		RedisPrefix string        `yaml:"redis_prefix"`
	} `yaml:"cache"`
}

type RouterConfig struct {
	DefaultBackend string        `yaml:"default_backend"`
	Timeout        time.Duration `yaml:"timeout"`
	BearerToken    string        `yaml:"bearer_token"`
}

type NotifyConfig struct {
	Timeout     time.Duration `yaml:"timeout"`
	Concurrency int           `yaml:"concurrency"`
}

type ObservationConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

type DeployConfig struct {
	Backend    string `yaml:"backend"`
	Namespace  string `yaml:"namespace"`
	Kubeconfig string `yaml:"kubeconfig"`
	Replicas   int32  `yaml:"replicas"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	switch c.Server.Role {
	case RoleBackend, RoleRouter, RoleAll:
	default:
		return fmt.Errorf("server.role must be one of backend, router, all (got %q)", c.Server.Role)
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("server.base_path must start with /")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		return fmt.Errorf("invalid log format: %s, must be 'json' or 'console'", c.Log.Format)
	}
	if c.Server.Role != RoleBackend {
		if err := c.validateRouting(); err != nil {
			return err
		}
	}
	if c.Server.Role != RoleRouter {
		if err := c.validateBackend(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateRouting() error {
	if _, err := url.ParseRequestURI(c.GraphDB.Endpoint); err != nil {
		return fmt.Errorf("graphdb.endpoint must be an absolute url: %w", err)
	}
	if c.GraphDB.Graph == "" || c.GraphDB.IDPredicate == "" || c.GraphDB.DomainPredicate == "" {
		return fmt.Errorf("graphdb.graph, graphdb.id_predicate and graphdb.domain_predicate are required")
	}
	if c.GraphDB.Timeout <= 0 {
		return fmt.Errorf("graphdb.timeout must be positive")
	}
	if strings.Count(c.Resolver.APIURLTemplate, "%s") != 1 {
		return fmt.Errorf("resolver.api_url_template must contain exactly one %%s")
	}
	switch c.Resolver.Cache.Backend {
	case CacheMemory:
	case CacheRedis:
		if c.Resolver.Cache.RedisAddr == "" {
			return fmt.Errorf("resolver.cache.redis_addr is required for the redis cache")
		}
	default:
		return fmt.Errorf("resolver.cache.backend must be memory or redis")
	}
	if c.Resolver.Cache.TTL < 0 {
		return fmt.Errorf("resolver.cache.ttl must not be negative")
	}
	if c.Router.DefaultBackend != "" {
		if _, err := url.ParseRequestURI(c.Router.DefaultBackend); err != nil {
			return fmt.Errorf("router.default_backend must be an absolute url: %w", err)
		}
	}
	return nil
}

func (c *Config) validateBackend() error {
	if c.Notify.Timeout <= 0 {
		return fmt.Errorf("notify.timeout must be positive")
	}
	if c.Notify.Concurrency <= 0 {
		return fmt.Errorf("notify.concurrency must be positive")
	}
	switch c.Deploy.Backend {
	case DeployNoop:
	case DeployKubernetes:
		if c.Deploy.Namespace == "" {
			return fmt.Errorf("deploy.namespace is required for the kubernetes deployer")
		}
	default:
		return fmt.Errorf("deploy.backend must be noop or kubernetes")
	}
	return nil
}

// ObservationInterval returns the configured interval raised to the floor.
func (c *Config) ObservationInterval() time.Duration {
	if c.Observation.Interval < MinObservationInterval {
		return MinObservationInterval
	}
	return c.Observation.Interval
}

// Path returns the config file path for a directory.
func Path(dir string) string {
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, "intentmesh.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config.
func Default() *Config {
	var cfg Config
	if err := yaml.Unmarshal([]byte(defaultTemplate), &cfg); err != nil {
		panic(fmt.Sprintf("default config template: %v", err))
	}
	return &cfg
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := Default()
			if err := cfg.Validate(); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses config over the defaults and validates it.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `server:
  addr: 127.0.0.1:8080
  base_path: /tmf-api/intentManagement/v5
  role: backend
  name: intentmesh

log:
  level: info
  format: console

auth:
  jwt_secret: ""

graphdb:
  endpoint: http://localhost:7200/repositories/intents
  graph: http://5g4data.eu/5g4data/infrastructure
  id_predicate: http://5g4data.eu/5g4data#identifier
  domain_predicate: http://5g4data.eu/5g4data#domain
  timeout: 3s

resolver:
  api_url_template: http://%s/tmf-api/intentManagement/v5/
  cache:
    backend: memory
    ttl: 0s
    redis_addr: ""
    redis_prefix: "intentmesh:endpoint:"

router:
  default_backend: ""
  timeout: 10s
  bearer_token: ""

notify:
  timeout: 5s
  concurrency: 8

observation:
  enabled: true
  interval: 30s

deploy:
  backend: noop
  namespace: default
  kubeconfig: ""
  replicas: 1
`
