package token

import (
	"strings"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret-key-0123456789")

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newTestCodec(t *testing.T, now time.Time) *Codec {
	t.Helper()

	c, err := NewCodec(testSecret, WithClock(fixedClock(now)))
	require.NoError(t, err)
	return c
}

func TestNewCodec_EmptySecret(t *testing.T) {
	t.Parallel()

	c, err := NewCodec(nil)
	assert.ErrorIs(t, err, ErrEmptySecret)
	assert.Nil(t, c)

	_, err = Encode(Claims{"sub": "x"}, []byte{})
	assert.ErrorIs(t, err, ErrEmptySecret)
}

func TestCodec_RoundTrip(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)

	tests := []struct {
		name   string
		claims Claims
	}{
		{name: "empty claims", claims: Claims{}},
		{name: "nil claims", claims: nil},
		{name: "string claims", claims: Claims{"sub": "alice", "role": "admin"}},
		{name: "future expiry", claims: Claims{"sub": "bob", "exp": float64(now.Unix() + 60)}},
		{name: "nested values", claims: Claims{"scopes": []any{"read", "write"}, "meta": map[string]any{"a": "b"}}},
		{name: "numbers and bools", claims: Claims{"n": float64(42), "ok": true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := newTestCodec(t, now)
			tok, err := c.Encode(tt.claims)
			require.NoError(t, err)

			claims, err := c.Parse(tok.String())
			require.NoError(t, err)

			want := tt.claims
			if want == nil {
				want = Claims{}
			}
			assert.Equal(t, want, claims)
		})
	}
}

func TestCodec_EncodeIsDeterministic(t *testing.T) {
	t.Parallel()

	a, err := Encode(Claims{"b": "2", "a": "1", "c": "3"}, testSecret)
	require.NoError(t, err)
	b, err := Encode(Claims{"c": "3", "a": "1", "b": "2"}, testSecret)
	require.NoError(t, err)

	assert.Equal(t, a.String(), b.String())
}

func TestCodec_EncodeInvalidClaims(t *testing.T) {
	t.Parallel()

	_, err := Encode(Claims{"ch": make(chan int)}, testSecret)
	assert.ErrorIs(t, err, ErrInvalidClaims)
}

func TestVerify_TamperedSignatureCharacters(t *testing.T) {
	t.Parallel()

	c := newTestCodec(t, time.Now())
	tok, err := c.Encode(Claims{"sub": "alice"})
	require.NoError(t, err)

	wire := tok.String()
	sigStart := strings.LastIndex(wire, ".") + 1

	for i := sigStart; i < len(wire); i++ {
		for bit := 0; bit < 8; bit++ {
			b := []byte(wire)
			b[i] ^= 1 << bit
			if b[i] == '.' {
				continue
			}

			tampered, err := Decode(string(b))
			require.NoError(t, err)

			_, err = c.Verify(tampered)
			require.ErrorIs(t, err, ErrBadSignature, "position %d bit %d", i, bit)
		}
	}
}

func TestVerify_TamperedSignatureBits(t *testing.T) {
	t.Parallel()

	c := newTestCodec(t, time.Now())
	tok, err := c.Encode(Claims{"sub": "alice"})
	require.NoError(t, err)

	sig, err := segmentEncoding.DecodeString(tok.Signature())
	require.NoError(t, err)

	for i := range sig {
		for bit := 0; bit < 8; bit++ {
			flipped := append([]byte(nil), sig...)
			flipped[i] ^= 1 << bit

			tampered := *tok
			tampered.rawSignature = segmentEncoding.EncodeToString(flipped)

			_, err := c.Verify(&tampered)
			require.ErrorIs(t, err, ErrBadSignature)
		}
	}
}

func TestVerify_WrongSecret(t *testing.T) {
	t.Parallel()

	tok, err := Encode(Claims{"sub": "alice"}, testSecret)
	require.NoError(t, err)

	_, err = Verify(tok, []byte("other-secret"))
	assert.ErrorIs(t, err, ErrBadSignature)

	_, err = Verify(tok, nil)
	assert.ErrorIs(t, err, ErrEmptySecret)
}

func TestVerify_TamperedPayload(t *testing.T) {
	t.Parallel()

	tok, err := Encode(Claims{"role": "user"}, testSecret)
	require.NoError(t, err)
	forged, err := Encode(Claims{"role": "admin"}, testSecret)
	require.NoError(t, err)

	parts := strings.Split(tok.String(), ".")
	forgedParts := strings.Split(forged.String(), ".")
	mixed := parts[0] + "." + forgedParts[1] + "." + parts[2]

	decoded, err := Decode(mixed)
	require.NoError(t, err)
	_, err = Verify(decoded, testSecret)
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestVerify_Expiry(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)

	tests := []struct {
		name    string
		exp     any
		wantErr error
	}{
		{name: "one second ago", exp: float64(now.Unix() - 1), wantErr: ErrExpired},
		{name: "exactly now", exp: float64(now.Unix()), wantErr: ErrExpired},
		{name: "one second ahead", exp: float64(now.Unix() + 1)},
		{name: "integer claim", exp: now.Unix() + 3600},
		{name: "non numeric", exp: "tomorrow", wantErr: ErrMalformedToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := newTestCodec(t, now)
			tok, err := c.Encode(Claims{"sub": "x", "exp": tt.exp})
			require.NoError(t, err)

			_, err = c.Verify(tok)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestVerify_ExpiredWithBadSignatureFails(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	c := newTestCodec(t, now)
	tok, err := c.Encode(Claims{"exp": float64(now.Unix() - 1)})
	require.NoError(t, err)

	tok.rawSignature = "AAAA"
	_, err = c.Verify(tok)
	assert.Error(t, err)
}

func TestVerify_UnsupportedAlgorithm(t *testing.T) {
	t.Parallel()

	tok, err := Encode(Claims{"sub": "x"}, testSecret)
	require.NoError(t, err)

	tok.Header.Alg = "none"
	_, err = Verify(tok, testSecret)
	assert.ErrorIs(t, err, ErrMalformedToken)

	_, err = Verify(nil, testSecret)
	assert.ErrorIs(t, err, ErrMalformedToken)
}

func TestDecode_Malformed(t *testing.T) {
	t.Parallel()

	header := segmentEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	payload := segmentEncoding.EncodeToString([]byte(`{"sub":"x"}`))

	tests := []struct {
		name  string
		token string
	}{
		{name: "empty", token: ""},
		{name: "one part", token: "abc"},
		{name: "two parts", token: header + "." + payload},
		{name: "four parts", token: header + "." + payload + ".sig.extra"},
		{name: "empty signature", token: header + "." + payload + "."},
		{name: "header not base64", token: "!!!." + payload + ".sig"},
		{name: "header padded", token: header + "==." + payload + ".sig"},
		{name: "header not json", token: segmentEncoding.EncodeToString([]byte("nope")) + "." + payload + ".sig"},
		{name: "payload not base64", token: header + ".***.sig"},
		{name: "payload array", token: header + "." + segmentEncoding.EncodeToString([]byte(`[1,2]`)) + ".sig"},
		{name: "payload null", token: header + "." + segmentEncoding.EncodeToString([]byte(`null`)) + ".sig"},
		{name: "payload scalar", token: header + "." + segmentEncoding.EncodeToString([]byte(`"x"`)) + ".sig"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tok, err := Decode(tt.token)
			assert.ErrorIs(t, err, ErrMalformedToken)
			assert.Nil(t, tok)
		})
	}
}

func TestInterop_VerifiedByJWS(t *testing.T) {
	t.Parallel()

	tok, err := Encode(Claims{"sub": "alice", "n": float64(7)}, testSecret)
	require.NoError(t, err)

	key, err := jwk.FromRaw(testSecret)
	require.NoError(t, err)

	payload, err := jws.Verify([]byte(tok.String()), jws.WithKey(jwa.HS256, key))
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":7,"sub":"alice"}`, string(payload))
}

func TestInterop_SignedByJWS(t *testing.T) {
	t.Parallel()

	signed, err := jws.Sign([]byte(`{"sub":"bob","exp":4102444800}`), jws.WithKey(jwa.HS256, testSecret))
	require.NoError(t, err)

	claims, err := newTestCodec(t, time.Unix(1_700_000_000, 0)).Parse(string(signed))
	require.NoError(t, err)
	assert.Equal(t, "bob", claims["sub"])
	assert.Equal(t, float64(4102444800), claims["exp"])
}
