package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// Algorithm and type values written into every token header.
const (
	AlgHS256 = "HS256"
	TypeJWT  = "JWT"

	// ClaimExpiry is the reserved expiry claim, seconds since the epoch.
	ClaimExpiry = "exp"
)

var segmentEncoding = base64.RawURLEncoding.Strict()

// Claims is the flat key to value payload of a token.
type Claims map[string]any

// Expiry returns the exp claim. ok is false when the claim is absent.
func (c Claims) Expiry() (exp time.Time, ok bool, err error) {
	raw, present := c[ClaimExpiry]
	if !present {
		return time.Time{}, false, nil
	}

	var secs float64
	switch v := raw.(type) {
	case float64:
		secs = v
	case json.Number:
		secs, err = v.Float64()
		if err != nil {
			return time.Time{}, true, fmt.Errorf("%w: exp is not numeric", ErrMalformedToken)
		}
	case int:
		secs = float64(v)
	case int64:
		secs = float64(v)
	default:
		return time.Time{}, true, fmt.Errorf("%w: exp is not numeric", ErrMalformedToken)
	}

	whole, frac := math.Modf(secs)
	return time.Unix(int64(whole), int64(frac*1e9)), true, nil
}

// Header is the decoded first segment of a token.
type Header struct {
	Alg string `json:"alg"`
	Typ string `json:"typ,omitempty"`
}

// Token is a parsed three-part token. The raw segments are kept so that the
// signature is always checked against the bytes that were received.
type Token struct {
	Header Header
	Claims Claims

	rawHeader    string
	rawPayload   string
	rawSignature string
}

// String returns the wire form.
func (t *Token) String() string {
	return t.signingInput() + "." + t.rawSignature
}

// Signature returns the raw signature segment.
func (t *Token) Signature() string {
	return t.rawSignature
}

func (t *Token) signingInput() string {
	return t.rawHeader + "." + t.rawPayload
}

// Codec signs and verifies tokens with a single secret.
type Codec struct {
	secret []byte
	now    func() time.Time
}

// Option configures a Codec.
type Option func(*Codec)

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCodec creates a codec for secret.
func NewCodec(secret []byte, opts ...Option) (*Codec, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}

	c := &Codec{
		secret: append([]byte(nil), secret...),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Encode serializes claims with sorted keys and signs them.
func (c *Codec) Encode(claims Claims) (*Token, error) {
	if claims == nil {
		claims = Claims{}
	}

	headerJSON, err := json.Marshal(Header{Alg: AlgHS256, Typ: TypeJWT})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidClaims, err)
	}
	payloadJSON, err := json.Marshal(map[string]any(claims))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidClaims, err)
	}

	// Claims are re-read from the payload so the token carries the same
	// value types a receiver would decode.
	var decoded Claims
	if err := json.Unmarshal(payloadJSON, &decoded); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidClaims, err)
	}

	tok := &Token{
		Header:     Header{Alg: AlgHS256, Typ: TypeJWT},
		Claims:     decoded,
		rawHeader:  segmentEncoding.EncodeToString(headerJSON),
		rawPayload: segmentEncoding.EncodeToString(payloadJSON),
	}
	tok.rawSignature = c.sign(tok.signingInput())
	return tok, nil
}

// Verify checks the signature in constant time, then the expiry, and returns
// the claims.
func (c *Codec) Verify(tok *Token) (Claims, error) {
	if tok == nil {
		return nil, ErrMalformedToken
	}
	if tok.Header.Alg != AlgHS256 {
		return nil, fmt.Errorf("%w: unsupported algorithm %q", ErrMalformedToken, tok.Header.Alg)
	}

	expected := c.sign(tok.signingInput())
	if !hmac.Equal([]byte(expected), []byte(tok.rawSignature)) {
		return nil, ErrBadSignature
	}

	exp, ok, err := tok.Claims.Expiry()
	if err != nil {
		return nil, err
	}
	if ok && !exp.After(c.now()) {
		return nil, ErrExpired
	}

	return tok.Claims, nil
}

// Parse decodes and verifies s.
func (c *Codec) Parse(s string) (Claims, error) {
	tok, err := Decode(s)
	if err != nil {
		return nil, err
	}
	return c.Verify(tok)
}

func (c *Codec) sign(input string) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(input))
	return segmentEncoding.EncodeToString(mac.Sum(nil))
}

// Decode parses the wire form without verifying it.
func Decode(s string) (*Token, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: expected 3 parts, got %d", ErrMalformedToken, len(parts))
	}
	if parts[2] == "" {
		return nil, fmt.Errorf("%w: empty signature", ErrMalformedToken)
	}

	headerJSON, err := segmentEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, fmt.Errorf("%w: header encoding", ErrMalformedToken)
	}
	var header Header
	if err := json.Unmarshal(headerJSON, &header); err != nil {
		return nil, fmt.Errorf("%w: header is not JSON", ErrMalformedToken)
	}

	payloadJSON, err := segmentEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: payload encoding", ErrMalformedToken)
	}
	var claims Claims
	if err := json.Unmarshal(payloadJSON, &claims); err != nil || claims == nil {
		return nil, fmt.Errorf("%w: payload is not a claims object", ErrMalformedToken)
	}

	return &Token{
		Header:       header,
		Claims:       claims,
		rawHeader:    parts[0],
		rawPayload:   parts[1],
		rawSignature: parts[2],
	}, nil
}

// Encode signs claims with secret.
func Encode(claims Claims, secret []byte) (*Token, error) {
	c, err := NewCodec(secret)
	if err != nil {
		return nil, err
	}
	return c.Encode(claims)
}

// Verify checks tok against secret using the current time.
func Verify(tok *Token, secret []byte) (Claims, error) {
	c, err := NewCodec(secret)
	if err != nil {
		return nil, err
	}
	return c.Verify(tok)
}
