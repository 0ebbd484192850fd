package auth

import "errors"

// Authentication errors map to gRPC codes in UnaryInterceptor:
// UNAUTHENTICATED for missing or invalid keys (does not confirm key existence),
// PERMISSION_DENIED for revoked keys, UNAVAILABLE for storage failures.
var (
	ErrMissingKey       = errors.New("API key required in x-api-key metadata")
	ErrInvalidKeyFormat = errors.New("invalid API key format")
	ErrUnknownKey       = errors.New("unknown secret ID")
	ErrInvalidKey       = errors.New("invalid API key")
	ErrKeyRevoked       = errors.New("API key has been revoked")
	ErrStorage          = errors.New("database error")
)
