package tokens

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/eternisai/enchanted-push/internal/gateway"
	"github.com/eternisai/enchanted-push/internal/logger"
	"github.com/eternisai/enchanted-push/internal/push"
	"github.com/eternisai/enchanted-push/internal/push/pushtest"
)

var testConfig = push.Config{
	ProjectID:      "client-device-notification",
	AppID:          "1:257800168511:web:test",
	SenderID:       "257800168511",
	VAPIDPublicKey: "BHVX-test-key",
}

// permissionEmulator answers prompts with a fixed decision.
type permissionEmulator struct {
	mu      sync.Mutex
	state   push.PermissionState
	answer  push.PermissionState
	err     error
	prompts int32
	delay   time.Duration
}

func (p *permissionEmulator) State() push.PermissionState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *permissionEmulator) Request(ctx context.Context) (push.PermissionState, error) {
	atomic.AddInt32(&p.prompts, 1)
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return push.PermissionDefault, ctx.Err()
		}
	}
	if p.err != nil {
		return push.PermissionDefault, p.err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = p.answer
	return p.state, nil
}

func (p *permissionEmulator) set(state push.PermissionState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = state
}

func newTestManager(perms *permissionEmulator) (*Manager, *pushtest.Provider) {
	provider := pushtest.NewProvider()
	gw := gateway.New(provider, logger.Discard())
	return NewManager(gw, testConfig, perms, "device-1", logger.Discard()), provider
}

func TestGetTokenWhenGranted(t *testing.T) {
	m, _ := newTestManager(&permissionEmulator{state: push.PermissionGranted})

	token, err := m.GetToken(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token == "" {
		t.Fatal("expected a token")
	}
	if m.Current() != token {
		t.Errorf("expected current token %s, got %s", token, m.Current())
	}
}

func TestDeleteThenGetYieldsDifferentToken(t *testing.T) {
	perms := &permissionEmulator{state: push.PermissionGranted}
	m, _ := newTestManager(perms)
	ctx := context.Background()

	first, err := m.GetToken(ctx)
	if err != nil {
		t.Fatalf("get token: %v", err)
	}

	deleted, err := m.DeleteToken(ctx)
	if err != nil || !deleted {
		t.Fatalf("expected delete to succeed, got %v %v", deleted, err)
	}
	if m.Current() != "" {
		t.Error("expected no current token after delete")
	}

	second, err := m.GetToken(ctx)
	if err != nil {
		t.Fatalf("get token: %v", err)
	}
	if second == "" || second == first {
		t.Errorf("expected a fresh token, got %q (previous %q)", second, first)
	}

	perms.set(push.PermissionDenied)
	if _, err := m.DeleteToken(ctx); err != nil {
		t.Fatalf("delete: %v", err)
	}
	third, err := m.GetToken(ctx)
	if err != nil || third != "" {
		t.Errorf("expected empty token once permission is revoked, got %q %v", third, err)
	}
}

func TestGetTokenWithoutPermissionNeverCallsProvider(t *testing.T) {
	perms := &permissionEmulator{state: push.PermissionDefault, answer: push.PermissionGranted}
	m, provider := newTestManager(perms)

	token, err := m.GetToken(context.Background())
	if err != nil || token != "" {
		t.Fatalf("expected empty token and no error, got %q %v", token, err)
	}
	if atomic.LoadInt32(&perms.prompts) != 0 {
		t.Error("GetToken must not prompt for permission")
	}
	if provider.Client().GetTokenCalls() != 0 {
		t.Error("provider must not be asked for a token without permission")
	}
}

func TestGetTokenProviderDeclines(t *testing.T) {
	m, provider := newTestManager(&permissionEmulator{state: push.PermissionGranted})
	provider.Client().Decline(true)

	token, err := m.GetToken(context.Background())
	if err != nil {
		t.Fatalf("expected no error when provider declines, got %v", err)
	}
	if token != "" {
		t.Errorf("expected empty token, got %s", token)
	}
}

func TestGetTokenProviderFailureIsTokenUnavailable(t *testing.T) {
	m, provider := newTestManager(&permissionEmulator{state: push.PermissionGranted})
	quota := errors.New("quota exceeded")
	provider.Client().FailTokens(quota)

	_, err := m.GetToken(context.Background())
	if !errors.Is(err, push.ErrTokenUnavailable) {
		t.Errorf("expected ErrTokenUnavailable, got %v", err)
	}
	if !errors.Is(err, quota) {
		t.Errorf("expected provider error to be wrapped, got %v", err)
	}
}

func TestGetTokenBootstrapFailureIsTokenUnavailable(t *testing.T) {
	m, provider := newTestManager(&permissionEmulator{state: push.PermissionGranted})
	provider.FailWith(errors.New("invalid key"))

	if _, err := m.GetToken(context.Background()); !errors.Is(err, push.ErrTokenUnavailable) {
		t.Errorf("expected ErrTokenUnavailable, got %v", err)
	}
}

func TestConcurrentGetTokenWaitsForInitialization(t *testing.T) {
	m, provider := newTestManager(&permissionEmulator{state: push.PermissionGranted})
	provider.Hold()

	var wg sync.WaitGroup
	tokens := make([]push.Token, 5)
	for i := range tokens {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], _ = m.GetToken(context.Background())
		}(i)
	}

	time.Sleep(10 * time.Millisecond)
	if calls := provider.Client().GetTokenCalls(); calls != 0 {
		t.Fatalf("token requested before initialization completed (%d calls)", calls)
	}

	provider.Release()
	wg.Wait()

	for i, token := range tokens {
		if token == "" || token != tokens[0] {
			t.Errorf("caller %d got %q, expected %q", i, token, tokens[0])
		}
	}
	if provider.Bootstraps() != 1 {
		t.Errorf("expected one bootstrap, got %d", provider.Bootstraps())
	}
}

func TestDeleteTokenWhenNoneHeld(t *testing.T) {
	m, _ := newTestManager(&permissionEmulator{state: push.PermissionGranted})

	deleted, err := m.DeleteToken(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deleted {
		t.Error("expected false when no token existed")
	}
}

func TestDeleteTokenPropagatesProviderError(t *testing.T) {
	m, provider := newTestManager(&permissionEmulator{state: push.PermissionGranted})
	boom := errors.New("boom")
	provider.Client().FailDeletes(boom)

	if _, err := m.DeleteToken(context.Background()); !errors.Is(err, boom) {
		t.Errorf("expected provider error, got %v", err)
	}
}

func TestRequestPermissionPromptsOnce(t *testing.T) {
	perms := &permissionEmulator{
		state:  push.PermissionDefault,
		answer: push.PermissionGranted,
		delay:  20 * time.Millisecond,
	}
	m, _ := newTestManager(perms)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			state, err := m.RequestPermission(context.Background())
			if err != nil || state != push.PermissionGranted {
				t.Errorf("expected granted, got %v %v", state, err)
			}
		}()
	}
	wg.Wait()

	if n := atomic.LoadInt32(&perms.prompts); n != 1 {
		t.Errorf("expected a single prompt, got %d", n)
	}

	// A recorded decision never prompts again.
	if _, err := m.RequestPermission(context.Background()); err != nil {
		t.Fatal(err)
	}
	if n := atomic.LoadInt32(&perms.prompts); n != 1 {
		t.Errorf("expected no further prompts, got %d", n)
	}
}

func TestRequestPermissionSurvivesCancelledCaller(t *testing.T) {
	perms := &permissionEmulator{
		state:  push.PermissionDefault,
		answer: push.PermissionGranted,
		delay:  50 * time.Millisecond,
	}
	m, _ := newTestManager(perms)

	first, cancel := context.WithCancel(context.Background())
	firstDone := make(chan error, 1)
	go func() {
		_, err := m.RequestPermission(first)
		firstDone <- err
	}()

	// Let the first caller start the prompt before the second joins it.
	for atomic.LoadInt32(&perms.prompts) == 0 {
		time.Sleep(time.Millisecond)
	}
	secondDone := make(chan push.PermissionState, 1)
	go func() {
		state, err := m.RequestPermission(context.Background())
		if err != nil {
			t.Errorf("second caller: %v", err)
		}
		secondDone <- state
	}()

	cancel()
	select {
	case err := <-firstDone:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected the first caller to see its cancellation, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("cancelled caller did not return")
	}

	select {
	case state := <-secondDone:
		if state != push.PermissionGranted {
			t.Errorf("expected granted, got %s", state)
		}
	case <-time.After(time.Second):
		t.Fatal("second caller did not get the decision")
	}
	if n := atomic.LoadInt32(&perms.prompts); n != 1 {
		t.Errorf("expected a single prompt, got %d", n)
	}
}

func TestRequestPermissionDeniedIsNotRetried(t *testing.T) {
	perms := &permissionEmulator{state: push.PermissionDenied}
	m, _ := newTestManager(perms)

	state, err := m.RequestPermission(context.Background())
	if err != nil || state != push.PermissionDenied {
		t.Fatalf("expected denied, got %v %v", state, err)
	}
	if atomic.LoadInt32(&perms.prompts) != 0 {
		t.Error("denied permission must not prompt")
	}
}

func TestAcquire(t *testing.T) {
	m, _ := newTestManager(&permissionEmulator{state: push.PermissionDefault, answer: push.PermissionGranted})
	token, err := m.Acquire(context.Background())
	if err != nil || token == "" {
		t.Fatalf("expected token, got %q %v", token, err)
	}

	denied, _ := newTestManager(&permissionEmulator{state: push.PermissionDefault, answer: push.PermissionDenied})
	if _, err := denied.Acquire(context.Background()); !errors.Is(err, push.ErrPermissionDenied) {
		t.Errorf("expected ErrPermissionDenied, got %v", err)
	}
}
