package config

import (
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vyrodovalexey/avagate/internal/cors"
)

// Store types.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// Config is the root configuration of the gate.
type Config struct {
	Server    ServerConfig    `yaml:"server" json:"server"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
	Tracing   TracingConfig   `yaml:"tracing" json:"tracing"`
	Metrics   MetricsConfig   `yaml:"metrics" json:"metrics"`
	CORS      CORSConfig      `yaml:"cors" json:"cors"`
	RateLimit RateLimitConfig `yaml:"rateLimit" json:"rateLimit"`
	Auth      AuthConfig      `yaml:"auth" json:"auth"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Address           string   `yaml:"address" json:"address"`
	ReadHeaderTimeout Duration `yaml:"readHeaderTimeout,omitempty" json:"readHeaderTimeout,omitempty"`
	ShutdownTimeout   Duration `yaml:"shutdownTimeout,omitempty" json:"shutdownTimeout,omitempty"`

	// Upstream is the base URL admitted requests are proxied to. Empty
	// answers admitted requests with 404.
	Upstream string `yaml:"upstream,omitempty" json:"upstream,omitempty"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level" json:"level"`

	// Format is json or console.
	Format string `yaml:"format" json:"format"`

	// Output is stdout, stderr or a file path.
	Output string `yaml:"output" json:"output"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	ServiceName  string  `yaml:"serviceName,omitempty" json:"serviceName,omitempty"`
	OTLPEndpoint string  `yaml:"otlpEndpoint,omitempty" json:"otlpEndpoint,omitempty"`
	SamplingRate float64 `yaml:"samplingRate,omitempty" json:"samplingRate,omitempty"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path,omitempty" json:"path,omitempty"`
}

// CORSConfig enables the cross-origin unit and holds its policy. The policy
// keys sit next to "enabled" in YAML.
type CORSConfig struct {
	Enabled bool        `yaml:"-" json:"enabled"`
	Policy  cors.Config `yaml:"-" json:"policy"`
}

// UnmarshalYAML decodes "enabled" and the policy keys from the same mapping.
func (c *CORSConfig) UnmarshalYAML(value *yaml.Node) error {
	var flags struct {
		Enabled *bool `yaml:"enabled"`
	}
	if err := value.Decode(&flags); err != nil {
		return err
	}
	if flags.Enabled != nil {
		c.Enabled = *flags.Enabled
	}
	return value.Decode(&c.Policy)
}

// RateLimitConfig configures the sliding-window limiter.
type RateLimitConfig struct {
	Enabled    bool     `yaml:"enabled" json:"enabled"`
	Window     Duration `yaml:"window" json:"window"`
	Max        int      `yaml:"max" json:"max"`
	StatusCode int      `yaml:"statusCode,omitempty" json:"statusCode,omitempty"`
	Message    string   `yaml:"message,omitempty" json:"message,omitempty"`

	// KeyBy selects the client key: ip, forwarded or header.
	KeyBy string `yaml:"keyBy,omitempty" json:"keyBy,omitempty"`

	// Header names the request header used when KeyBy is header.
	Header string `yaml:"header,omitempty" json:"header,omitempty"`

	SkipSuccessful bool        `yaml:"skipSuccessful,omitempty" json:"skipSuccessful,omitempty"`
	SkipFailed     bool        `yaml:"skipFailed,omitempty" json:"skipFailed,omitempty"`
	FailOpen       bool        `yaml:"failOpen" json:"failOpen"`
	Headers        bool        `yaml:"headers" json:"headers"`
	Store          StoreConfig `yaml:"store" json:"store"`
}

// StoreConfig selects and configures the rate limit store.
type StoreConfig struct {
	// Type is memory or redis.
	Type    string        `yaml:"type" json:"type"`
	Redis   RedisConfig   `yaml:"redis,omitempty" json:"redis,omitempty"`
	Breaker BreakerConfig `yaml:"breaker,omitempty" json:"breaker,omitempty"`
}

// RedisConfig configures the Redis store.
type RedisConfig struct {
	Address           string   `yaml:"address" json:"address"`
	Password          string   `yaml:"password,omitempty" json:"-"`
	DB                int      `yaml:"db,omitempty" json:"db,omitempty"`
	Prefix            string   `yaml:"prefix,omitempty" json:"prefix,omitempty"`
	PoolSize          int      `yaml:"poolSize,omitempty" json:"poolSize,omitempty"`
	DialTimeout       Duration `yaml:"dialTimeout,omitempty" json:"dialTimeout,omitempty"`
	ReadTimeout       Duration `yaml:"readTimeout,omitempty" json:"readTimeout,omitempty"`
	WriteTimeout      Duration `yaml:"writeTimeout,omitempty" json:"writeTimeout,omitempty"`
	ConnectionRetries int      `yaml:"connectionRetries,omitempty" json:"connectionRetries,omitempty"`
}

// BreakerConfig configures the circuit breaker in front of a remote store.
type BreakerConfig struct {
	Enabled      bool     `yaml:"enabled" json:"enabled"`
	Threshold    int      `yaml:"threshold,omitempty" json:"threshold,omitempty"`
	FailureRatio float64  `yaml:"failureRatio,omitempty" json:"failureRatio,omitempty"`
	Timeout      Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// AuthConfig configures the authentication dispatcher.
type AuthConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Methods lists strategies in the order they are tried.
	Methods []string `yaml:"methods" json:"methods"`

	// Secret is the signing key for signed tokens.
	Secret string `yaml:"secret,omitempty" json:"-"`

	// SkipPaths bypass authentication. A trailing "*" matches a prefix.
	SkipPaths []string `yaml:"skipPaths,omitempty" json:"skipPaths,omitempty"`

	// Users maps user names to bcrypt hashes for the password-pair method.
	Users map[string]string `yaml:"users,omitempty" json:"-"`

	// Tokens maps opaque bearer tokens to subjects.
	Tokens map[string]string `yaml:"tokens,omitempty" json:"-"`
}

// DefaultConfig returns the configuration used for omitted keys.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address:           ":8080",
			ReadHeaderTimeout: Duration(5 * time.Second),
			ShutdownTimeout:   Duration(15 * time.Second),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Tracing: TracingConfig{
			ServiceName:  "avagate",
			SamplingRate: 1.0,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		CORS: CORSConfig{
			Enabled: true,
			Policy:  cors.DefaultConfig(),
		},
		RateLimit: RateLimitConfig{
			Enabled:  true,
			Window:   Duration(15 * time.Minute),
			Max:      100,
			KeyBy:    "ip",
			FailOpen: true,
			Headers:  true,
			Store: StoreConfig{
				Type: StoreMemory,
				Redis: RedisConfig{
					Address: "localhost:6379",
					Prefix:  "avagate:ratelimit:",
				},
			},
		},
	}
}
