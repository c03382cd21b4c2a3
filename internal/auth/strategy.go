package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/vyrodovalexey/avagate/internal/auth/token"
	"github.com/vyrodovalexey/avagate/internal/pipeline"
)

// Method names an authentication strategy.
type Method string

// Supported methods.
const (
	MethodSignedToken  Method = "signed-token"
	MethodPasswordPair Method = "password-pair"
	MethodOpaqueBearer Method = "opaque-bearer"
	MethodCustom       Method = "custom"
)

var methodAliases = map[string]Method{
	"signed-token":  MethodSignedToken,
	"jwt":           MethodSignedToken,
	"password-pair": MethodPasswordPair,
	"basic":         MethodPasswordPair,
	"opaque-bearer": MethodOpaqueBearer,
	"bearer":        MethodOpaqueBearer,
	"custom":        MethodCustom,
}

// ParseMethod resolves a method name or one of its short aliases
// (jwt, basic, bearer).
func ParseMethod(name string) (Method, error) {
	m, ok := methodAliases[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownMethod, name)
	}
	return m, nil
}

// Strategy verifies one kind of credential.
type Strategy interface {
	// Name returns the method implemented by the strategy.
	Name() Method

	// Authenticate returns the caller identity or an error wrapping
	// ErrAuthFailed.
	Authenticate(ctx context.Context, req *pipeline.Request) (Identity, error)
}

// PasswordVerifier checks a username and password pair.
type PasswordVerifier func(ctx context.Context, username, password string) (Identity, bool)

// BearerVerifier checks an opaque bearer token.
type BearerVerifier func(ctx context.Context, token string) (Identity, bool)

// CustomVerifier inspects the whole request.
type CustomVerifier func(ctx context.Context, req *pipeline.Request) (Identity, bool)

// signedTokenStrategy verifies HS256 bearer tokens.
type signedTokenStrategy struct {
	codec *token.Codec
}

// NewSignedTokenStrategy creates the signed-token strategy.
func NewSignedTokenStrategy(secret []byte, opts ...token.Option) (Strategy, error) {
	if len(secret) == 0 {
		return nil, &ConfigError{Method: MethodSignedToken, Err: ErrMissingSecret}
	}
	codec, err := token.NewCodec(secret, opts...)
	if err != nil {
		return nil, &ConfigError{Method: MethodSignedToken, Err: err}
	}
	return &signedTokenStrategy{codec: codec}, nil
}

func (s *signedTokenStrategy) Name() Method { return MethodSignedToken }

func (s *signedTokenStrategy) Authenticate(_ context.Context, req *pipeline.Request) (Identity, error) {
	raw, err := extractBearer(req)
	if err != nil {
		return nil, failed(err)
	}

	claims, err := s.codec.Parse(raw)
	if err != nil {
		return nil, failed(err)
	}
	return Identity(claims), nil
}

// passwordPairStrategy verifies Basic credentials.
type passwordPairStrategy struct {
	verify PasswordVerifier
}

// NewPasswordPairStrategy creates the password-pair strategy.
func NewPasswordPairStrategy(verify PasswordVerifier) (Strategy, error) {
	if verify == nil {
		return nil, &ConfigError{Method: MethodPasswordPair, Err: ErrMissingVerifier}
	}
	return &passwordPairStrategy{verify: verify}, nil
}

func (s *passwordPairStrategy) Name() Method { return MethodPasswordPair }

func (s *passwordPairStrategy) Authenticate(ctx context.Context, req *pipeline.Request) (Identity, error) {
	username, password, err := extractBasic(req)
	if err != nil {
		return nil, failed(err)
	}

	identity, ok := s.verify(ctx, username, password)
	if !ok {
		return nil, ErrAuthFailed
	}
	return orEmpty(identity), nil
}

// opaqueBearerStrategy verifies opaque bearer tokens.
type opaqueBearerStrategy struct {
	verify BearerVerifier
}

// NewOpaqueBearerStrategy creates the opaque-bearer strategy.
func NewOpaqueBearerStrategy(verify BearerVerifier) (Strategy, error) {
	if verify == nil {
		return nil, &ConfigError{Method: MethodOpaqueBearer, Err: ErrMissingVerifier}
	}
	return &opaqueBearerStrategy{verify: verify}, nil
}

func (s *opaqueBearerStrategy) Name() Method { return MethodOpaqueBearer }

func (s *opaqueBearerStrategy) Authenticate(ctx context.Context, req *pipeline.Request) (Identity, error) {
	raw, err := extractBearer(req)
	if err != nil {
		return nil, failed(err)
	}

	identity, ok := s.verify(ctx, raw)
	if !ok {
		return nil, ErrAuthFailed
	}
	return orEmpty(identity), nil
}

// customStrategy delegates to a caller-supplied function.
type customStrategy struct {
	verify CustomVerifier
}

// NewCustomStrategy creates the custom strategy.
func NewCustomStrategy(verify CustomVerifier) (Strategy, error) {
	if verify == nil {
		return nil, &ConfigError{Method: MethodCustom, Err: ErrMissingVerifier}
	}
	return &customStrategy{verify: verify}, nil
}

func (s *customStrategy) Name() Method { return MethodCustom }

func (s *customStrategy) Authenticate(ctx context.Context, req *pipeline.Request) (Identity, error) {
	identity, ok := s.verify(ctx, req)
	if !ok {
		return nil, ErrAuthFailed
	}
	return orEmpty(identity), nil
}

func orEmpty(identity Identity) Identity {
	if identity == nil {
		return Identity{}
	}
	return identity
}

// BcryptCredentials verifies passwords against a table of bcrypt hashes.
type BcryptCredentials struct {
	hashes map[string][]byte
	dummy  []byte
}

// NewBcryptCredentials creates a verifier from username to bcrypt hash.
func NewBcryptCredentials(users map[string]string) (*BcryptCredentials, error) {
	c := &BcryptCredentials{hashes: make(map[string][]byte, len(users))}

	cost := bcrypt.MinCost
	for username, hash := range users {
		hashCost, err := bcrypt.Cost([]byte(hash))
		if err != nil {
			return nil, &ConfigError{
				Method: MethodPasswordPair,
				Err:    fmt.Errorf("invalid bcrypt hash for user %q: %w", username, err),
			}
		}
		if hashCost > cost {
			cost = hashCost
		}
		c.hashes[username] = []byte(hash)
	}

	// Unknown users are checked against a dummy hash of the highest cost.
	dummy, err := bcrypt.GenerateFromPassword([]byte("avagate-unknown-user"), cost)
	if err != nil {
		return nil, err
	}
	c.dummy = dummy

	return c, nil
}

// Verify implements PasswordVerifier.
func (c *BcryptCredentials) Verify(_ context.Context, username, password string) (Identity, bool) {
	hash, ok := c.hashes[username]
	if !ok {
		_ = bcrypt.CompareHashAndPassword(c.dummy, []byte(password))
		return nil, false
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		return nil, false
	}
	return Identity{ClaimSubject: username}, true
}

// StaticTokens verifies opaque bearer tokens against a fixed table mapping
// token to subject.
type StaticTokens struct {
	entries []staticToken
}

type staticToken struct {
	digest  [sha256.Size]byte
	subject string
}

// NewStaticTokens creates a verifier from token to subject.
func NewStaticTokens(tokens map[string]string) *StaticTokens {
	s := &StaticTokens{entries: make([]staticToken, 0, len(tokens))}
	for tok, subject := range tokens {
		s.entries = append(s.entries, staticToken{digest: sha256.Sum256([]byte(tok)), subject: subject})
	}
	return s
}

// Verify implements BearerVerifier. Every entry is compared.
func (s *StaticTokens) Verify(_ context.Context, raw string) (Identity, bool) {
	digest := sha256.Sum256([]byte(raw))

	match := -1
	for i := range s.entries {
		if subtle.ConstantTimeCompare(digest[:], s.entries[i].digest[:]) == 1 {
			match = i
		}
	}
	if match < 0 {
		return nil, false
	}
	return Identity{ClaimSubject: s.entries[match].subject}, true
}
