package push

import "errors"

var (
	// ErrPermissionDenied means the user declined notifications. Terminal until
	// the user changes the decision outside the application.
	ErrPermissionDenied = errors.New("notification permission denied")

	// ErrTokenUnavailable wraps provider failures other than missing permission.
	// Retryable by the caller.
	ErrTokenUnavailable = errors.New("registration token unavailable")

	// ErrNoPermission is returned by a provider that declines to issue a token
	// because the subscription lacks permission. The token manager maps it to
	// an empty token instead of failing.
	ErrNoPermission = errors.New("provider declined: no notification permission")

	// ErrInitializationIncomplete is returned when the shared client is asked
	// for before the gateway is ready.
	ErrInitializationIncomplete = errors.New("messaging gateway not initialized")

	// ErrConfigMismatch is returned when a gateway already bound to one
	// configuration is asked to initialize another.
	ErrConfigMismatch = errors.New("messaging gateway already bound to a different configuration")

	// ErrNotificationDisplay means the platform refused to render a notification.
	ErrNotificationDisplay = errors.New("notification display failed")

	// ErrClientEnumeration means the window client query failed.
	ErrClientEnumeration = errors.New("window client enumeration failed")

	// ErrMalformedPayload marks an inbound payload that had to be normalized
	// because it did not match the wire contract.
	ErrMalformedPayload = errors.New("malformed push payload")
)
