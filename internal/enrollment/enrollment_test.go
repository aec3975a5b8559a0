package enrollment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/eternisai/enchanted-push/internal/logger"
	"github.com/eternisai/enchanted-push/internal/push"
	"github.com/eternisai/enchanted-push/internal/registry"
)

type tokensEmulator struct {
	mu      sync.Mutex
	token   push.Token
	issued  int
	denied  bool
	deletes int
	getErr  error
}

func (t *tokensEmulator) Acquire(ctx context.Context) (push.Token, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.denied {
		return "", push.ErrPermissionDenied
	}
	if t.token == "" {
		t.issued++
		t.token = push.Token(fmt.Sprintf("token-%d", t.issued))
	}
	return t.token, nil
}

func (t *tokensEmulator) GetToken(ctx context.Context) (push.Token, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.getErr != nil {
		return "", t.getErr
	}
	return t.token, nil
}

func (t *tokensEmulator) DeleteToken(ctx context.Context) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.deletes++
	had := t.token != ""
	t.token = ""
	return had, nil
}

func (t *tokensEmulator) DeviceID() string { return "device-1" }

func (t *tokensEmulator) rotate(token push.Token) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.token = token
}

type verifierEmulator struct {
	rejected map[string]bool
	calls    int
}

func (v *verifierEmulator) Verify(ctx context.Context, token string) error {
	v.calls++
	if v.rejected[token] {
		return registry.ErrTokenRejected
	}
	return nil
}

func TestEnableRegistersDevice(t *testing.T) {
	tokens := &tokensEmulator{}
	store := registry.NewMemoryStore()
	s := New(tokens, store, nil, logger.Discard())
	ctx := context.Background()

	token, err := s.Enable(ctx, "user-1")
	if err != nil {
		t.Fatalf("enable: %v", err)
	}

	registered, err := store.Tokens(ctx, "user-1")
	if err != nil {
		t.Fatalf("tokens: %v", err)
	}
	info, ok := registry.Find(registered, "device-1")
	if !ok || info.Token != string(token) {
		t.Errorf("expected device-1 registered with %s, got %+v", token, registered)
	}
	if got, ok := s.Enrolled("user-1"); !ok || got != token {
		t.Errorf("expected user-1 enrolled with %s, got %s", token, got)
	}
}

func TestEnablePermissionDenied(t *testing.T) {
	store := registry.NewMemoryStore()
	s := New(&tokensEmulator{denied: true}, store, nil, logger.Discard())

	if _, err := s.Enable(context.Background(), "user-1"); !errors.Is(err, push.ErrPermissionDenied) {
		t.Errorf("expected ErrPermissionDenied, got %v", err)
	}
	if _, err := store.Tokens(context.Background(), "user-1"); !errors.Is(err, registry.ErrNoTokens) {
		t.Error("expected nothing registered")
	}
}

func TestEnableReplacesRejectedToken(t *testing.T) {
	tokens := &tokensEmulator{}
	verifier := &verifierEmulator{rejected: map[string]bool{"token-1": true}}
	s := New(tokens, registry.NewMemoryStore(), verifier, logger.Discard())

	token, err := s.Enable(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("enable: %v", err)
	}
	if token != "token-2" {
		t.Errorf("expected the replacement token, got %s", token)
	}
	if tokens.deletes != 1 {
		t.Errorf("expected the rejected token to be deleted, got %d deletes", tokens.deletes)
	}
}

func TestDisableToleratesUnknownDevice(t *testing.T) {
	tokens := &tokensEmulator{token: "token-9"}
	s := New(tokens, registry.NewMemoryStore(), nil, logger.Discard())

	if err := s.Disable(context.Background(), "user-1"); err != nil {
		t.Fatalf("expected unknown device to be tolerated, got %v", err)
	}
	if tokens.deletes != 1 {
		t.Error("expected the token to be deleted anyway")
	}
}

func TestDisableUnregisters(t *testing.T) {
	tokens := &tokensEmulator{}
	store := registry.NewMemoryStore()
	s := New(tokens, store, nil, logger.Discard())
	ctx := context.Background()

	if _, err := s.Enable(ctx, "user-1"); err != nil {
		t.Fatal(err)
	}
	if err := s.Disable(ctx, "user-1"); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if _, err := store.Tokens(ctx, "user-1"); !errors.Is(err, registry.ErrNoTokens) {
		t.Errorf("expected device to be unregistered, got %v", err)
	}
	if _, ok := s.Enrolled("user-1"); ok {
		t.Error("expected user to be unenrolled")
	}
}

func TestRefreshReregistersRenewedToken(t *testing.T) {
	tokens := &tokensEmulator{}
	store := registry.NewMemoryStore()
	s := New(tokens, store, nil, logger.Discard())
	ctx := context.Background()

	if _, err := s.Enable(ctx, "user-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Enable(ctx, "user-2"); err != nil {
		t.Fatal(err)
	}

	tokens.rotate("token-renewed")
	if err := s.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	for _, user := range []string{"user-1", "user-2"} {
		registered, _ := store.Tokens(ctx, user)
		if info, _ := registry.Find(registered, "device-1"); info.Token != "token-renewed" {
			t.Errorf("%s: expected renewed token, got %q", user, info.Token)
		}
	}
}

func TestRefreshSkipsWithoutToken(t *testing.T) {
	tokens := &tokensEmulator{}
	store := registry.NewMemoryStore()
	s := New(tokens, store, nil, logger.Discard())
	ctx := context.Background()

	token, _ := s.Enable(ctx, "user-1")
	tokens.rotate("")

	if err := s.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	registered, _ := store.Tokens(ctx, "user-1")
	if info, _ := registry.Find(registered, "device-1"); info.Token != string(token) {
		t.Errorf("expected registration to be left alone, got %q", info.Token)
	}

	tokens.getErr = push.ErrTokenUnavailable
	if err := s.Refresh(ctx); !errors.Is(err, push.ErrTokenUnavailable) {
		t.Errorf("expected ErrTokenUnavailable, got %v", err)
	}
}

func TestStartRejectsBadSchedule(t *testing.T) {
	s := New(&tokensEmulator{}, registry.NewMemoryStore(), nil, logger.Discard())
	if err := s.Start("not a schedule"); err == nil {
		t.Error("expected invalid schedule to be rejected")
	}

	if err := s.Start("@every 1h"); err != nil {
		t.Fatalf("start: %v", err)
	}
	s.Stop(context.Background())
}
