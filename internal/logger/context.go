package logger

import (
	"context"

	"github.com/google/uuid"
)

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// WithDeviceID adds the device fingerprint to the context.
func WithDeviceID(ctx context.Context, deviceID string) context.Context {
	return context.WithValue(ctx, ContextKeyDeviceID, deviceID)
}

// WithMessageID adds an inbound push message ID to the context.
func WithMessageID(ctx context.Context, messageID string) context.Context {
	return context.WithValue(ctx, ContextKeyMessageID, messageID)
}

// WithOperation adds an operation name to the context.
func WithOperation(ctx context.Context, operation string) context.Context {
	return context.WithValue(ctx, ContextKeyOperation, operation)
}

// GenerateRequestID generates a new request ID.
func GenerateRequestID() string {
	requestID := uuid.New()
	return requestID.String()
}
