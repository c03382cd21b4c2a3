package auth

import (
	"context"

	"github.com/vyrodovalexey/avagate/internal/pipeline"
)

// Identity is the set of claims describing an authenticated caller.
type Identity map[string]any

// ClaimSubject is the conventional subject claim.
const ClaimSubject = "sub"

// Subject returns the sub claim, or "".
func (i Identity) Subject() string {
	s, _ := i[ClaimSubject].(string)
	return s
}

// Clone returns a shallow copy.
func (i Identity) Clone() Identity {
	out := make(Identity, len(i))
	for k, v := range i {
		out[k] = v
	}
	return out
}

type contextKey struct{}

// ContextWithIdentity adds an identity to the context.
func ContextWithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, identity)
}

// IdentityFromContext extracts the identity from context.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(contextKey{}).(Identity)
	return identity, ok
}

// IdentityFromRequest returns the identity attached by the auth unit.
func IdentityFromRequest(req *pipeline.Request) (Identity, bool) {
	v, ok := req.Attributes().Get(AttrIdentity)
	if !ok {
		return nil, false
	}
	identity, ok := v.(Identity)
	return identity, ok
}

// MethodFromRequest returns the method that authenticated req.
func MethodFromRequest(req *pipeline.Request) (Method, bool) {
	v, ok := req.Attributes().Get(AttrAuthMethod)
	if !ok {
		return "", false
	}
	m, ok := v.(Method)
	return m, ok
}
