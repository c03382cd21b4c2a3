package auth

// HTTP header constants for authentication.
const (
	// HeaderAuthorization is the Authorization header name.
	HeaderAuthorization = "Authorization"

	// HeaderContentType is the Content-Type header name.
	HeaderContentType = "Content-Type"
)

// Content type constants.
const (
	// ContentTypeJSON is the JSON content type.
	ContentTypeJSON = "application/json"
)

// Authentication scheme constants.
const (
	// AuthSchemeBearer is the Bearer authentication scheme prefix.
	AuthSchemeBearer = "Bearer "

	// AuthSchemeBasic is the Basic authentication scheme prefix.
	AuthSchemeBasic = "Basic "
)

// Request attribute keys set on successful authentication.
const (
	// AttrIdentity holds the authenticated Identity.
	AttrIdentity = "auth.identity"

	// AttrAuthMethod holds the Method that authenticated the request.
	AttrAuthMethod = "auth.method"
)

// ReasonAuthFailed is the only rejection reason exposed by the dispatcher.
const ReasonAuthFailed = "auth_failed"

// failureMessage is the body of every 401 response.
const failureMessage = "authentication failed"
