package push

import (
	"context"
	"time"
)

// Message is one inbound push as delivered by the provider, before decoding.
type Message struct {
	ID         string
	Data       []byte
	ReceivedAt time.Time
}

// Handler receives inbound push messages from a Client.
type Handler func(ctx context.Context, msg Message)

// TokenRequest carries what the provider needs to issue a registration token.
type TokenRequest struct {
	VAPIDKey string
	DeviceID string
}

// Client is the shared, initialized push provider handle.
type Client interface {
	// GetToken returns the current registration token, issuing one if needed.
	// Returns ErrNoPermission when the provider declines for lack of permission.
	GetToken(ctx context.Context, req TokenRequest) (Token, error)

	// DeleteToken revokes the held token. Reports false when none existed.
	DeleteToken(ctx context.Context) (bool, error)

	// Listen delivers inbound messages to h until ctx is done.
	Listen(ctx context.Context, h Handler) error

	Close() error
}

// Provider bootstraps push provider clients. Bootstrap returns only once the
// client is usable.
type Provider interface {
	Bootstrap(ctx context.Context, cfg Config) (Client, error)
}
