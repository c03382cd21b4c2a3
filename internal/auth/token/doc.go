// Package token encodes and verifies HMAC-SHA256 signed tokens in the
// three-segment JWS compact form.
//
// Segments use unpadded base64url encoding and are decoded strictly. The
// payload is a flat claims object serialized with sorted keys, so encoding the
// same claims twice yields the same token. The reserved exp claim holds the
// expiry in seconds since the epoch; a token without exp never expires here.
//
// Example:
//
//	codec, err := token.NewCodec(secret)
//	if err != nil {
//	    return err
//	}
//	tok, err := codec.Encode(token.Claims{"sub": "alice"})
//	...
//	claims, err := codec.Parse(tok.String())
package token
