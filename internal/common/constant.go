package common

// AuthorizationHeader carries the agent access token as "Bearer <jwt>".
const AuthorizationHeader = "Authorization"

// RequestIDHeader is echoed by the server on every response.
const RequestIDHeader = "X-Request-Id"

// BackgroundSyncTag names the drain trigger registered after a submission is
// queued.
const BackgroundSyncTag = "submit-intervention"
