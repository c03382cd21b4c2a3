package auth

import (
	"errors"
	"fmt"
)

// Sentinel errors for authentication operations.
var (
	// ErrAuthFailed is the single error returned for any rejected credential.
	// The underlying cause is joined for debug logging and never reaches the
	// client.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrNoCredentials indicates that the request carried no credentials for
	// the strategy.
	ErrNoCredentials = errors.New("no credentials provided")

	// ErrNoStrategies indicates that authentication is configured without any
	// method.
	ErrNoStrategies = errors.New("no authentication methods configured")

	// ErrMissingSecret indicates that the signed-token method has no secret.
	ErrMissingSecret = errors.New("signed-token method requires a secret")

	// ErrMissingVerifier indicates that a method has no verification function.
	ErrMissingVerifier = errors.New("authentication method requires a verifier")

	// ErrUnknownMethod indicates an unrecognized method name.
	ErrUnknownMethod = errors.New("unknown authentication method")
)

// failed folds cause into ErrAuthFailed.
func failed(cause error) error {
	if cause == nil || errors.Is(cause, ErrAuthFailed) {
		return ErrAuthFailed
	}
	return errors.Join(ErrAuthFailed, cause)
}

// ConfigError reports a configuration problem for one method.
type ConfigError struct {
	Method Method
	Err    error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Method == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("auth method %s: %v", e.Method, e.Err)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Err
}
