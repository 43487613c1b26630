package common

// HTTP surface constants shared by the server and its tests.
const (
	// SessionCookieName is the HTTP-only cookie carrying the session token.
	SessionCookieName = "session_token"

	// SessionHeaderName mirrors the session token on responses and may be
	// used by clients instead of the cookie on requests.
	SessionHeaderName = "X-Session-Token"

	// SessionExpiryHeaderName exposes the session's absolute expiry so
	// clients can refresh pre-emptively.
	SessionExpiryHeaderName = "X-Session-Expires-At"

	// CSRFHeaderName carries the anti-forgery token on mutating requests.
	CSRFHeaderName = "X-CSRF-Token"

	// RequestIDHeaderName carries the request correlation id.
	RequestIDHeaderName = "X-Request-Id"
)
