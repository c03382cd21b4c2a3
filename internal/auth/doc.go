// Package auth authenticates requests with an ordered list of strategies.
//
// Four strategies are available:
//   - signed-token: HS256 bearer tokens verified by package token
//   - password-pair: Basic credentials checked by a PasswordVerifier
//   - opaque-bearer: bearer tokens checked by a BearerVerifier
//   - custom: a CustomVerifier with access to the whole request
//
// A Dispatcher tries the configured strategies sequentially and stops at the
// first success. Every failure, whatever its cause, surfaces as
// ErrAuthFailed and a 401 response with the same JSON body, so clients cannot
// tell a bad signature from an expired token or an unknown user.
//
// Example:
//
//	d, err := auth.NewDispatcher(&auth.Config{
//	    Methods: []auth.Method{auth.MethodSignedToken, auth.MethodPasswordPair},
//	    Secret:  secret,
//	    PasswordVerifier: creds.Verify,
//	})
//	if err != nil {
//	    return err
//	}
//	p.Use(d.Middleware())
package auth
