package auth

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/vyrodovalexey/avagate/internal/auth/token"
	"github.com/vyrodovalexey/avagate/internal/pipeline"
)

var testSecret = []byte("dispatcher-test-secret")

func requestWithAuth(value string) *pipeline.Request {
	req := pipeline.NewRequest("GET", "/api/items")
	if value != "" {
		req.Header.Set(HeaderAuthorization, value)
	}
	return req
}

func basicHeader(userpass string) string {
	return AuthSchemeBasic + base64.StdEncoding.EncodeToString([]byte(userpass))
}

func signedToken(t *testing.T, claims token.Claims) string {
	t.Helper()

	tok, err := token.Encode(claims, testSecret)
	require.NoError(t, err)
	return tok.String()
}

func staticPasswords(ctx context.Context, username, password string) (Identity, bool) {
	if username == "alice" && password == "s3cret:with:colons" {
		return Identity{ClaimSubject: "alice"}, true
	}
	return nil, false
}

func TestParseMethod(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Method
		wantErr bool
	}{
		{in: "jwt", want: MethodSignedToken},
		{in: "signed-token", want: MethodSignedToken},
		{in: "Basic", want: MethodPasswordPair},
		{in: "password-pair", want: MethodPasswordPair},
		{in: " bearer ", want: MethodOpaqueBearer},
		{in: "opaque-bearer", want: MethodOpaqueBearer},
		{in: "custom", want: MethodCustom},
		{in: "oauth2", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()

			got, err := ParseMethod(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownMethod)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSignedTokenStrategy(t *testing.T) {
	t.Parallel()

	s, err := NewSignedTokenStrategy(testSecret)
	require.NoError(t, err)
	assert.Equal(t, MethodSignedToken, s.Name())

	valid := signedToken(t, token.Claims{"sub": "alice", "exp": float64(time.Now().Add(time.Hour).Unix())})
	expired := signedToken(t, token.Claims{"sub": "alice", "exp": float64(time.Now().Add(-time.Minute).Unix())})
	otherSecret, err := token.Encode(token.Claims{"sub": "alice"}, []byte("other"))
	require.NoError(t, err)

	tests := []struct {
		name    string
		header  string
		wantSub string
	}{
		{name: "valid token", header: "Bearer " + valid, wantSub: "alice"},
		{name: "lower-case scheme", header: "bearer " + valid, wantSub: "alice"},
		{name: "missing header"},
		{name: "basic scheme", header: basicHeader("alice:x")},
		{name: "empty bearer", header: "Bearer "},
		{name: "expired", header: "Bearer " + expired},
		{name: "bad signature", header: "Bearer " + otherSecret.String()},
		{name: "malformed", header: "Bearer not.a-token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			identity, err := s.Authenticate(context.Background(), requestWithAuth(tt.header))
			if tt.wantSub == "" {
				assert.ErrorIs(t, err, ErrAuthFailed)
				assert.Nil(t, identity)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantSub, identity.Subject())
		})
	}
}

func TestSignedTokenStrategy_FailuresAreIndistinguishable(t *testing.T) {
	t.Parallel()

	s, err := NewSignedTokenStrategy(testSecret)
	require.NoError(t, err)

	expired := signedToken(t, token.Claims{"exp": float64(1)})
	bad, err := token.Encode(token.Claims{}, []byte("nope"))
	require.NoError(t, err)

	for _, header := range []string{"Bearer " + expired, "Bearer " + bad.String(), "Bearer x.y"} {
		_, err := s.Authenticate(context.Background(), requestWithAuth(header))
		require.ErrorIs(t, err, ErrAuthFailed)
		assert.Equal(t, "authentication failed", firstLine(err.Error()))
	}
}

func firstLine(s string) string {
	for i := range s {
		if s[i] == '\n' {
			return s[:i]
		}
	}
	return s
}

func TestNewStrategies_MissingMaterial(t *testing.T) {
	t.Parallel()

	_, err := NewSignedTokenStrategy(nil)
	assert.ErrorIs(t, err, ErrMissingSecret)

	_, err = NewPasswordPairStrategy(nil)
	assert.ErrorIs(t, err, ErrMissingVerifier)

	_, err = NewOpaqueBearerStrategy(nil)
	assert.ErrorIs(t, err, ErrMissingVerifier)

	_, err = NewCustomStrategy(nil)
	assert.ErrorIs(t, err, ErrMissingVerifier)

	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, MethodCustom, cfgErr.Method)
}

func TestPasswordPairStrategy(t *testing.T) {
	t.Parallel()

	s, err := NewPasswordPairStrategy(staticPasswords)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		wantOK bool
	}{
		{name: "valid credentials, password with colons", header: basicHeader("alice:s3cret:with:colons"), wantOK: true},
		{name: "wrong password", header: basicHeader("alice:wrong")},
		{name: "unknown user", header: basicHeader("bob:s3cret:with:colons")},
		{name: "missing colon", header: basicHeader("alice")},
		{name: "malformed base64", header: "Basic !!!not-base64!!!"},
		{name: "bearer scheme", header: "Bearer abc"},
		{name: "no header"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			identity, err := s.Authenticate(context.Background(), requestWithAuth(tt.header))
			if !tt.wantOK {
				assert.ErrorIs(t, err, ErrAuthFailed)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "alice", identity.Subject())
		})
	}
}

func TestOpaqueBearerStrategy(t *testing.T) {
	t.Parallel()

	tokens := NewStaticTokens(map[string]string{"tok-1": "svc-a", "tok-2": "svc-b"})
	s, err := NewOpaqueBearerStrategy(tokens.Verify)
	require.NoError(t, err)
	assert.Equal(t, MethodOpaqueBearer, s.Name())

	identity, err := s.Authenticate(context.Background(), requestWithAuth("Bearer tok-2"))
	require.NoError(t, err)
	assert.Equal(t, "svc-b", identity.Subject())

	_, err = s.Authenticate(context.Background(), requestWithAuth("Bearer tok-3"))
	assert.ErrorIs(t, err, ErrAuthFailed)

	_, err = s.Authenticate(context.Background(), requestWithAuth(""))
	assert.ErrorIs(t, err, ErrAuthFailed)
}

func TestCustomStrategy(t *testing.T) {
	t.Parallel()

	s, err := NewCustomStrategy(func(_ context.Context, req *pipeline.Request) (Identity, bool) {
		return nil, req.Header.Get("X-Api-Key") == "k1"
	})
	require.NoError(t, err)

	req := requestWithAuth("")
	req.Header.Set("X-Api-Key", "k1")
	identity, err := s.Authenticate(context.Background(), req)
	require.NoError(t, err)
	assert.NotNil(t, identity)
	assert.Empty(t, identity)

	_, err = s.Authenticate(context.Background(), requestWithAuth(""))
	assert.ErrorIs(t, err, ErrAuthFailed)
}

func TestBcryptCredentials(t *testing.T) {
	t.Parallel()

	hash, err := bcrypt.GenerateFromPassword([]byte("pw"), bcrypt.MinCost)
	require.NoError(t, err)

	creds, err := NewBcryptCredentials(map[string]string{"alice": string(hash)})
	require.NoError(t, err)

	identity, ok := creds.Verify(context.Background(), "alice", "pw")
	require.True(t, ok)
	assert.Equal(t, "alice", identity.Subject())

	_, ok = creds.Verify(context.Background(), "alice", "nope")
	assert.False(t, ok)

	_, ok = creds.Verify(context.Background(), "mallory", "pw")
	assert.False(t, ok)
}

func TestNewBcryptCredentials_InvalidHash(t *testing.T) {
	t.Parallel()

	_, err := NewBcryptCredentials(map[string]string{"alice": "plaintext"})
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, MethodPasswordPair, cfgErr.Method)
}

func TestIdentity(t *testing.T) {
	t.Parallel()

	id := Identity{ClaimSubject: "alice", "role": "admin"}
	clone := id.Clone()
	clone["role"] = "user"

	assert.Equal(t, "alice", id.Subject())
	assert.Equal(t, "admin", id["role"])
	assert.Empty(t, Identity{ClaimSubject: 42}.Subject())

	ctx := ContextWithIdentity(context.Background(), id)
	got, ok := IdentityFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, id, got)

	_, ok = IdentityFromContext(context.Background())
	assert.False(t, ok)
}
