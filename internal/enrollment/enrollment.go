// Package enrollment turns push notifications on and off for a signed-in
// user: it acquires the device token and records it in the registry.
package enrollment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/eternisai/enchanted-push/internal/logger"
	"github.com/eternisai/enchanted-push/internal/push"
	"github.com/eternisai/enchanted-push/internal/registry"
	"github.com/robfig/cron/v3"
)

// DefaultRefreshSchedule re-checks enrolled tokens every six hours.
const DefaultRefreshSchedule = "@every 6h"

// Tokens is the token manager surface enrollment needs.
type Tokens interface {
	Acquire(ctx context.Context) (push.Token, error)
	GetToken(ctx context.Context) (push.Token, error)
	DeleteToken(ctx context.Context) (bool, error)
	DeviceID() string
}

// Verifier checks a token with the provider before it is registered.
type Verifier interface {
	Verify(ctx context.Context, token string) error
}

// Service keeps the registry in step with the device token.
type Service struct {
	tokens   Tokens
	store    registry.Store
	verifier Verifier
	logger   *logger.Logger

	mu       sync.Mutex
	enrolled map[string]push.Token

	cron *cron.Cron
}

// New creates an enrollment service. verifier may be nil.
func New(tokens Tokens, store registry.Store, verifier Verifier, log *logger.Logger) *Service {
	return &Service{
		tokens:   tokens,
		store:    store,
		verifier: verifier,
		logger:   log.WithComponent("enrollment"),
		enrolled: make(map[string]push.Token),
	}
}

// Enable requests permission, obtains the token and registers the device
// for userID. It fails with push.ErrPermissionDenied when permission is not
// granted.
func (s *Service) Enable(ctx context.Context, userID string) (push.Token, error) {
	log := s.logger.WithContext(ctx).With(slog.String("user_id", userID))

	token, err := s.tokens.Acquire(ctx)
	if err != nil {
		return "", err
	}

	if s.verifier != nil {
		token, err = s.verified(ctx, token)
		if err != nil {
			return "", err
		}
	}

	if err := s.store.Register(ctx, userID, s.tokens.DeviceID(), string(token)); err != nil {
		return "", fmt.Errorf("registering device: %w", err)
	}

	s.mu.Lock()
	s.enrolled[userID] = token
	s.mu.Unlock()

	log.Info("push notifications enabled", slog.String("token_prefix", token.Prefix()))
	return token, nil
}

// verified returns token, or a replacement when the provider rejects it.
func (s *Service) verified(ctx context.Context, token push.Token) (push.Token, error) {
	err := s.verifier.Verify(ctx, string(token))
	if err == nil {
		return token, nil
	}
	if !errors.Is(err, registry.ErrTokenRejected) {
		return "", err
	}

	s.logger.WithContext(ctx).Warn("provider rejected token, requesting a new one",
		slog.String("token_prefix", token.Prefix()))
	if _, err := s.tokens.DeleteToken(ctx); err != nil {
		return "", fmt.Errorf("discarding rejected token: %w", err)
	}
	fresh, err := s.tokens.Acquire(ctx)
	if err != nil {
		return "", err
	}
	if err := s.verifier.Verify(ctx, string(fresh)); err != nil {
		return "", err
	}
	return fresh, nil
}

// Disable unregisters the device for userID and deletes the token. A device
// the registry does not know is not an error.
func (s *Service) Disable(ctx context.Context, userID string) error {
	log := s.logger.WithContext(ctx).With(slog.String("user_id", userID))

	err := s.store.Unregister(ctx, userID, s.tokens.DeviceID())
	switch {
	case errors.Is(err, registry.ErrDeviceNotFound):
		log.Warn("device was not registered, continuing")
	case err != nil:
		return fmt.Errorf("unregistering device: %w", err)
	}

	if _, err := s.tokens.DeleteToken(ctx); err != nil {
		return fmt.Errorf("deleting token: %w", err)
	}

	s.mu.Lock()
	delete(s.enrolled, userID)
	s.mu.Unlock()

	log.Info("push notifications disabled")
	return nil
}

// Enrolled returns the token registered for userID.
func (s *Service) Enrolled(userID string) (push.Token, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token, ok := s.enrolled[userID]
	return token, ok
}

// Users returns the enrolled users in order.
func (s *Service) Users() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	users := make([]string, 0, len(s.enrolled))
	for u := range s.enrolled {
		users = append(users, u)
	}
	sort.Strings(users)
	return users
}

// Refresh re-reads the token and re-registers every enrolled user whose
// registered token changed. Users whose permission was revoked are left
// registered and skipped.
func (s *Service) Refresh(ctx context.Context) error {
	log := s.logger.WithContext(ctx)

	users := s.Users()
	if len(users) == 0 {
		return nil
	}

	token, err := s.tokens.GetToken(ctx)
	if err != nil {
		return fmt.Errorf("refreshing token: %w", err)
	}
	if token == "" {
		log.Warn("no token available, skipping refresh", slog.Int("users", len(users)))
		return nil
	}

	var errs []error
	for _, userID := range users {
		registered, _ := s.Enrolled(userID)
		if registered == token {
			continue
		}
		if err := s.store.Register(ctx, userID, s.tokens.DeviceID(), string(token)); err != nil {
			errs = append(errs, fmt.Errorf("user %s: %w", userID, err))
			continue
		}
		s.mu.Lock()
		s.enrolled[userID] = token
		s.mu.Unlock()
		log.Info("re-registered renewed token",
			slog.String("user_id", userID),
			slog.String("token_prefix", token.Prefix()))
	}
	return errors.Join(errs...)
}

// Start schedules Refresh on schedule, a cron expression or descriptor.
func (s *Service) Start(schedule string) error {
	if schedule == "" {
		schedule = DefaultRefreshSchedule
	}
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		if err := s.Refresh(context.Background()); err != nil {
			s.logger.Error("scheduled token refresh failed", slog.String("error", err.Error()))
		}
	})
	if err != nil {
		return fmt.Errorf("invalid refresh schedule %q: %w", schedule, err)
	}

	s.mu.Lock()
	s.cron = c
	s.mu.Unlock()

	c.Start()
	s.logger.Info("token refresh scheduled", slog.String("schedule", schedule))
	return nil
}

// Stop cancels the schedule and waits for a running refresh.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c == nil {
		return
	}

	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
}
