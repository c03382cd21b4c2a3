package config

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/vyrodovalexey/avagate/internal/auth"
)

// Validation sentinels. Every ValidationError wraps one of them.
var (
	ErrNilConfig         = errors.New("configuration is nil")
	ErrInvalidValue      = errors.New("invalid value")
	ErrMissingValue      = errors.New("missing value")
	ErrUnknownStore      = errors.New("unknown store type")
	ErrUnknownKeyBy      = errors.New("unknown rate limit key")
	ErrNoAuthMethods     = errors.New("auth enabled without methods")
	ErrUnknownAuthMethod = errors.New("unknown auth method")
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Path    string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

// Unwrap returns the sentinel.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []*ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e))
	for i, err := range e {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

// Unwrap exposes every error to errors.Is and errors.As.
func (e ValidationErrors) Unwrap() []error {
	out := make([]error, len(e))
	for i, err := range e {
		out[i] = err
	}
	return out
}

// Validator collects every problem in a configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateConfig validates a configuration.
func ValidateConfig(cfg *Config) error {
	return NewValidator().Validate(cfg)
}

// Validate validates the configuration and returns all errors together.
func (v *Validator) Validate(cfg *Config) error {
	v.errors = nil

	if cfg == nil {
		v.addError("", ErrNilConfig, "configuration is nil")
		return v.errors
	}

	v.validateServer(&cfg.Server)
	v.validateLogging(&cfg.Logging)
	v.validateTracing(&cfg.Tracing)
	v.validateRateLimit(&cfg.RateLimit)
	v.validateAuth(&cfg.Auth)

	if len(v.errors) > 0 {
		return v.errors
	}
	return nil
}

func (v *Validator) addError(path string, sentinel error, format string, args ...any) {
	v.errors = append(v.errors, &ValidationError{
		Path:    path,
		Message: fmt.Sprintf(format, args...),
		Err:     sentinel,
	})
}

func (v *Validator) validateServer(s *ServerConfig) {
	if s.Address == "" {
		v.addError("server.address", ErrMissingValue, "address is required")
	}
	if s.ShutdownTimeout < 0 {
		v.addError("server.shutdownTimeout", ErrInvalidValue, "must not be negative")
	}
	if s.Upstream != "" {
		u, err := url.Parse(s.Upstream)
		if err != nil || u.Scheme == "" || u.Host == "" {
			v.addError("server.upstream", ErrInvalidValue, "must be an absolute URL, got %q", s.Upstream)
		}
	}
}

func (v *Validator) validateLogging(l *LoggingConfig) {
	switch strings.ToLower(l.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		v.addError("logging.level", ErrInvalidValue, "unknown level %q", l.Level)
	}
	switch strings.ToLower(l.Format) {
	case "", "json", "console":
	default:
		v.addError("logging.format", ErrInvalidValue, "unknown format %q", l.Format)
	}
}

func (v *Validator) validateTracing(t *TracingConfig) {
	if t.SamplingRate < 0 || t.SamplingRate > 1 {
		v.addError("tracing.samplingRate", ErrInvalidValue, "must be between 0 and 1")
	}
}

func (v *Validator) validateRateLimit(r *RateLimitConfig) {
	if !r.Enabled {
		return
	}
	if r.Window <= 0 {
		v.addError("rateLimit.window", ErrInvalidValue, "must be positive")
	}
	if r.Max <= 0 {
		v.addError("rateLimit.max", ErrInvalidValue, "must be positive")
	}
	if r.StatusCode != 0 && (r.StatusCode < http.StatusBadRequest || r.StatusCode > 599) {
		v.addError("rateLimit.statusCode", ErrInvalidValue, "must be 4xx or 5xx, got %d", r.StatusCode)
	}

	switch strings.ToLower(r.KeyBy) {
	case "", "ip", "forwarded":
	case "header":
		if r.Header == "" {
			v.addError("rateLimit.header", ErrMissingValue, "header is required when keyBy is header")
		}
	default:
		v.addError("rateLimit.keyBy", ErrUnknownKeyBy, "unknown key %q", r.KeyBy)
	}

	switch r.Store.Type {
	case "", StoreMemory:
	case StoreRedis:
		if r.Store.Redis.Address == "" {
			v.addError("rateLimit.store.redis.address", ErrMissingValue, "address is required")
		}
	default:
		v.addError("rateLimit.store.type", ErrUnknownStore, "unknown store %q", r.Store.Type)
	}

	if b := r.Store.Breaker; b.Enabled && (b.FailureRatio < 0 || b.FailureRatio > 1) {
		v.addError("rateLimit.store.breaker.failureRatio", ErrInvalidValue, "must be between 0 and 1")
	}
}

func (v *Validator) validateAuth(a *AuthConfig) {
	if !a.Enabled {
		return
	}
	if len(a.Methods) == 0 {
		v.addError("auth.methods", ErrNoAuthMethods, "at least one method is required")
		return
	}

	for i, name := range a.Methods {
		path := fmt.Sprintf("auth.methods[%d]", i)
		method, err := auth.ParseMethod(name)
		if err != nil {
			v.addError(path, ErrUnknownAuthMethod, "unknown method %q", name)
			continue
		}
		if method == auth.MethodSignedToken && a.Secret == "" {
			v.addError("auth.secret", ErrMissingValue, "secret is required for %s", method)
		}
	}
}
