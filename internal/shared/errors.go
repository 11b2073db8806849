package shared

import "fmt"

var (
	// Configuration errors
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Authentication errors
	ErrAuthFailed       = fmt.Errorf("authentication failed")
	ErrNotAuthenticated = fmt.Errorf("not authenticated")
	ErrTokenExpired     = fmt.Errorf("access token expired")
	ErrRefreshFailed    = fmt.Errorf("token refresh failed")
	ErrNoRefreshToken   = fmt.Errorf("no refresh token available")
	ErrTimeout          = fmt.Errorf("operation timed out")

	// Storage errors
	ErrStorage           = fmt.Errorf("credential storage failed")
	ErrCorruptCredential = fmt.Errorf("credential file is not valid JSON")

	// API and service errors
	ErrAPIRequest       = fmt.Errorf("API request failed")
	ErrPresenceRejected = fmt.Errorf("presence update rejected")
	ErrPollingStopped   = fmt.Errorf("playback polling stopped")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)
