package auth

import (
	"encoding/base64"
	"strings"

	"github.com/vyrodovalexey/avagate/internal/pipeline"
)

// schemeValue returns the value after scheme in the Authorization header.
// The scheme name is matched case-insensitively.
func schemeValue(req *pipeline.Request, scheme string) (string, bool) {
	header := req.Header.Get(HeaderAuthorization)
	if len(header) < len(scheme) || !strings.EqualFold(header[:len(scheme)], scheme) {
		return "", false
	}
	value := strings.TrimSpace(header[len(scheme):])
	if value == "" {
		return "", false
	}
	return value, true
}

// extractBearer returns the bearer token from req.
func extractBearer(req *pipeline.Request) (string, error) {
	value, ok := schemeValue(req, AuthSchemeBearer)
	if !ok {
		return "", ErrNoCredentials
	}
	return value, nil
}

// extractBasic returns the Basic credentials from req. Undecodable payloads
// and payloads without a colon are rejected like wrong credentials.
func extractBasic(req *pipeline.Request) (username, password string, err error) {
	value, ok := schemeValue(req, AuthSchemeBasic)
	if !ok {
		return "", "", ErrNoCredentials
	}

	decoded, decodeErr := base64.StdEncoding.DecodeString(value)
	if decodeErr != nil {
		return "", "", failed(decodeErr)
	}

	username, password, ok = strings.Cut(string(decoded), ":")
	if !ok {
		return "", "", ErrAuthFailed
	}
	return username, password, nil
}
