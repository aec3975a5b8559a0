// Package tokens manages notification permission and the device registration token.
package tokens

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/eternisai/enchanted-push/internal/logger"
	"github.com/eternisai/enchanted-push/internal/metrics"
	"github.com/eternisai/enchanted-push/internal/push"
	"golang.org/x/sync/singleflight"
)

// Permissions is the platform permission API.
type Permissions interface {
	// State returns the current decision without prompting.
	State() push.PermissionState
	// Request shows the permission prompt and returns the user's decision.
	Request(ctx context.Context) (push.PermissionState, error)
}

// Initializer yields the shared push client once it is usable.
type Initializer interface {
	Initialize(ctx context.Context, cfg push.Config) (push.Client, error)
}

// Manager requests permission and obtains or invalidates the registration
// token. It borrows the gateway's client and never builds its own.
type Manager struct {
	gateway     Initializer
	cfg         push.Config
	permissions Permissions
	deviceID    string
	logger      *logger.Logger

	prompts singleflight.Group

	mu      sync.Mutex
	current push.Token
}

// NewManager creates a token manager for the device identified by deviceID.
func NewManager(gateway Initializer, cfg push.Config, permissions Permissions, deviceID string, log *logger.Logger) *Manager {
	return &Manager{
		gateway:     gateway,
		cfg:         cfg,
		permissions: permissions,
		deviceID:    deviceID,
		logger:      log.WithComponent("token-manager"),
	}
}

// PermissionState returns the current platform decision without prompting.
func (m *Manager) PermissionState() push.PermissionState {
	return m.permissions.State()
}

// RequestPermission prompts the user when no decision has been made yet.
// A recorded decision is returned as is; concurrent calls share one prompt.
// It never retries.
func (m *Manager) RequestPermission(ctx context.Context) (push.PermissionState, error) {
	if state := m.permissions.State(); state != push.PermissionDefault {
		return state, nil
	}

	// The shared prompt outlives any one caller; the platform bounds it.
	prompt := context.WithoutCancel(ctx)
	ch := m.prompts.DoChan("permission", func() (any, error) {
		if state := m.permissions.State(); state != push.PermissionDefault {
			return state, nil
		}
		return m.permissions.Request(prompt)
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		metrics.TokenOperation("request_permission", "cancelled")
		return push.PermissionDefault, fmt.Errorf("requesting notification permission: %w", ctx.Err())
	case res = <-ch:
	}
	if res.Err != nil {
		metrics.TokenOperation("request_permission", "error")
		return push.PermissionDefault, fmt.Errorf("requesting notification permission: %w", res.Err)
	}

	state := res.Val.(push.PermissionState)
	metrics.TokenOperation("request_permission", state.String())
	m.logger.WithContext(ctx).Info("notification permission decided",
		slog.String("state", state.String()))
	return state, nil
}

// GetToken returns the registration token. It returns an empty token, not an
// error, when permission is not granted or the provider declines for lack of
// permission. Other provider failures wrap push.ErrTokenUnavailable.
// It never prompts for permission.
func (m *Manager) GetToken(ctx context.Context) (push.Token, error) {
	log := m.logger.WithContext(ctx)

	if state := m.permissions.State(); state != push.PermissionGranted {
		log.Warn("notification permission not granted, no token requested",
			slog.String("state", state.String()))
		metrics.TokenOperation("get", "no_permission")
		return "", nil
	}

	client, err := m.gateway.Initialize(ctx, m.cfg)
	if err != nil {
		metrics.TokenOperation("get", "error")
		return "", fmt.Errorf("%w: %w", push.ErrTokenUnavailable, err)
	}

	token, err := client.GetToken(ctx, push.TokenRequest{
		VAPIDKey: m.cfg.VAPIDPublicKey,
		DeviceID: m.deviceID,
	})
	switch {
	case errors.Is(err, push.ErrNoPermission):
		log.Warn("no registration token available, request permission to generate one")
		metrics.TokenOperation("get", "no_permission")
		return "", nil
	case err != nil:
		log.Error("failed to retrieve registration token", slog.String("error", err.Error()))
		metrics.TokenOperation("get", "error")
		return "", fmt.Errorf("%w: %w", push.ErrTokenUnavailable, err)
	case token == "":
		metrics.TokenOperation("get", "empty")
		return "", nil
	}

	m.mu.Lock()
	changed := m.current != token
	m.current = token
	m.mu.Unlock()

	if changed {
		log.Info("registration token received", slog.String("token_prefix", token.Prefix()))
	}
	metrics.TokenOperation("get", "ok")
	return token, nil
}

// DeleteToken invalidates the held token. It reports false when no token
// existed. Provider errors are returned.
func (m *Manager) DeleteToken(ctx context.Context) (bool, error) {
	client, err := m.gateway.Initialize(ctx, m.cfg)
	if err != nil {
		metrics.TokenOperation("delete", "error")
		return false, fmt.Errorf("deleting registration token: %w", err)
	}

	deleted, err := client.DeleteToken(ctx)
	if err != nil {
		metrics.TokenOperation("delete", "error")
		return false, fmt.Errorf("deleting registration token: %w", err)
	}

	m.mu.Lock()
	m.current = ""
	m.mu.Unlock()

	if !deleted {
		metrics.TokenOperation("delete", "none")
		return false, nil
	}
	metrics.TokenOperation("delete", "ok")
	m.logger.WithContext(ctx).Info("registration token deleted")
	return true, nil
}

// Acquire requests permission when undecided and then fetches the token.
// It fails with push.ErrPermissionDenied when the user does not grant it.
func (m *Manager) Acquire(ctx context.Context) (push.Token, error) {
	state, err := m.RequestPermission(ctx)
	if err != nil {
		return "", err
	}
	if state != push.PermissionGranted {
		return "", push.ErrPermissionDenied
	}

	token, err := m.GetToken(ctx)
	if err != nil {
		return "", err
	}
	if token == "" {
		return "", push.ErrPermissionDenied
	}
	return token, nil
}

// Current returns the last token obtained, or empty.
func (m *Manager) Current() push.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// DeviceID returns the fingerprint tokens are requested for.
func (m *Manager) DeviceID() string {
	return m.deviceID
}
