package auth

import (
	"errors"
	"strings"
)

// Config selects and orders the authentication strategies.
type Config struct {
	// Methods lists enabled methods in the order they are tried.
	Methods []Method

	// Secret is the HMAC secret for MethodSignedToken.
	Secret []byte

	// PasswordVerifier backs MethodPasswordPair.
	PasswordVerifier PasswordVerifier

	// BearerVerifier backs MethodOpaqueBearer.
	BearerVerifier BearerVerifier

	// CustomVerifier backs MethodCustom.
	CustomVerifier CustomVerifier

	// SkipPaths are request paths that bypass authentication. An entry
	// ending in "*" matches by prefix.
	SkipPaths []string
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	if c == nil || len(c.Methods) == 0 {
		return ErrNoStrategies
	}

	var errs []error
	seen := make(map[Method]bool, len(c.Methods))
	for _, m := range c.Methods {
		if seen[m] {
			continue
		}
		seen[m] = true

		switch m {
		case MethodSignedToken:
			if len(c.Secret) == 0 {
				errs = append(errs, &ConfigError{Method: m, Err: ErrMissingSecret})
			}
		case MethodPasswordPair:
			if c.PasswordVerifier == nil {
				errs = append(errs, &ConfigError{Method: m, Err: ErrMissingVerifier})
			}
		case MethodOpaqueBearer:
			if c.BearerVerifier == nil {
				errs = append(errs, &ConfigError{Method: m, Err: ErrMissingVerifier})
			}
		case MethodCustom:
			if c.CustomVerifier == nil {
				errs = append(errs, &ConfigError{Method: m, Err: ErrMissingVerifier})
			}
		default:
			errs = append(errs, &ConfigError{Method: m, Err: ErrUnknownMethod})
		}
	}

	return errors.Join(errs...)
}

// Strategies builds the configured strategies in order. Repeated methods are
// kept once, at their first position.
func (c *Config) Strategies() ([]Strategy, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	strategies := make([]Strategy, 0, len(c.Methods))
	seen := make(map[Method]bool, len(c.Methods))
	for _, m := range c.Methods {
		if seen[m] {
			continue
		}
		seen[m] = true

		var (
			s   Strategy
			err error
		)
		switch m {
		case MethodSignedToken:
			s, err = NewSignedTokenStrategy(c.Secret)
		case MethodPasswordPair:
			s, err = NewPasswordPairStrategy(c.PasswordVerifier)
		case MethodOpaqueBearer:
			s, err = NewOpaqueBearerStrategy(c.BearerVerifier)
		case MethodCustom:
			s, err = NewCustomStrategy(c.CustomVerifier)
		}
		if err != nil {
			return nil, err
		}
		strategies = append(strategies, s)
	}

	return strategies, nil
}

// matchPath matches path against a skip entry. A trailing "*" matches a
// prefix.
func matchPath(pattern, path string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(path, prefix)
	}
	return pattern == path
}
