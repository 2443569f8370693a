package errors

import "errors"

var (
	ErrMissingBotToken   = errors.New("TELEGRAM_BOT_TOKEN environment variable is required")
	ErrMissingPublicURL  = errors.New("PUBLIC_URL is required for push subscriptions")
	ErrUnauthorized      = errors.New("unauthorized user")
	ErrResourceNotFound  = errors.New("resource not found")
	ErrSubscriberUnknown = errors.New("subscriber not found")
	ErrAlreadySubscribed = errors.New("already subscribed")
	ErrNotSubscribed     = errors.New("not subscribed")
	ErrCursorConflict    = errors.New("resource cursor changed concurrently")
	ErrUnsupportedSource = errors.New("unsupported source type")

	// Delivery outcomes.
	ErrDestinationGone  = errors.New("delivery destination no longer exists")
	ErrPermissionDenied = errors.New("delivery destination refused the message")

	// Upstream outcomes.
	ErrUpstreamTransient = errors.New("upstream temporarily unavailable")
	ErrUpstreamRejected  = errors.New("upstream rejected the request")
	ErrNotFound          = errors.New("upstream item not found")
	ErrInvalidSignature  = errors.New("invalid webhook signature")
)
