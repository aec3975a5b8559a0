package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/eternisai/enchanted-push/internal/logger"
	"github.com/eternisai/enchanted-push/internal/push"
	"github.com/eternisai/enchanted-push/internal/push/pushtest"
)

var testConfig = push.Config{
	ProjectID:      "client-device-notification",
	AppID:          "1:257800168511:web:test",
	SenderID:       "257800168511",
	StorageBucket:  "client-device-notification.firebasestorage.app",
	VAPIDPublicKey: "BHVX-test-key",
}

func TestInitializeIsIdempotent(t *testing.T) {
	provider := pushtest.NewProvider()
	gw := New(provider, logger.Discard())
	ctx := context.Background()

	first, err := gw.Initialize(ctx, testConfig)
	if err != nil {
		t.Fatalf("first initialize: %v", err)
	}
	second, err := gw.Initialize(ctx, testConfig)
	if err != nil {
		t.Fatalf("second initialize: %v", err)
	}

	if first != second {
		t.Error("expected the same client handle from both calls")
	}
	if provider.Bootstraps() != 1 {
		t.Errorf("expected exactly one bootstrap, got %d", provider.Bootstraps())
	}
	if gw.State() != StateReady {
		t.Errorf("expected ready state, got %s", gw.State())
	}
}

func TestConcurrentInitializeSharesBootstrap(t *testing.T) {
	provider := pushtest.NewProvider()
	provider.Hold()
	gw := New(provider, logger.Discard())

	const callers = 10
	var wg sync.WaitGroup
	clients := make([]push.Client, callers)
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			clients[i], errs[i] = gw.Initialize(context.Background(), testConfig)
		}(i)
	}

	// Nobody may observe a client before the bootstrap completes.
	deadline := time.Now().Add(time.Second)
	for gw.State() != StateInitializing && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if _, err := gw.Client(); !errors.Is(err, push.ErrInitializationIncomplete) {
		t.Errorf("expected ErrInitializationIncomplete while initializing, got %v", err)
	}

	provider.Release()
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d failed: %v", i, errs[i])
		}
		if clients[i] != clients[0] {
			t.Errorf("caller %d got a different handle", i)
		}
	}
	if provider.Bootstraps() != 1 {
		t.Errorf("expected one bootstrap for %d callers, got %d", callers, provider.Bootstraps())
	}
}

func TestInitializeRejectsDifferentConfig(t *testing.T) {
	gw := New(pushtest.NewProvider(), logger.Discard())
	ctx := context.Background()

	if _, err := gw.Initialize(ctx, testConfig); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	other := testConfig
	other.ProjectID = "production-project"
	if _, err := gw.Initialize(ctx, other); !errors.Is(err, push.ErrConfigMismatch) {
		t.Errorf("expected ErrConfigMismatch, got %v", err)
	}
}

func TestFailedBootstrapCanBeRetried(t *testing.T) {
	provider := pushtest.NewProvider()
	provider.FailWith(errors.New("network down"))
	gw := New(provider, logger.Discard())
	ctx := context.Background()

	if _, err := gw.Initialize(ctx, testConfig); err == nil {
		t.Fatal("expected bootstrap failure")
	}
	if gw.State() != StateUninitialized {
		t.Errorf("expected uninitialized after failure, got %s", gw.State())
	}

	provider.FailWith(nil)
	if _, err := gw.Initialize(ctx, testConfig); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if provider.Bootstraps() != 2 {
		t.Errorf("expected two bootstraps, got %d", provider.Bootstraps())
	}
}

func TestWaiterContextCancellation(t *testing.T) {
	provider := pushtest.NewProvider()
	provider.Hold()
	gw := New(provider, logger.Discard())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := gw.Initialize(ctx, testConfig); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}

	// The bootstrap itself keeps going for the next caller.
	provider.Release()
	if _, err := gw.Initialize(context.Background(), testConfig); err != nil {
		t.Fatalf("initialize after release: %v", err)
	}
	if provider.Bootstraps() != 1 {
		t.Errorf("expected the original bootstrap to be reused, got %d", provider.Bootstraps())
	}
}

func TestInvalidConfig(t *testing.T) {
	gw := New(pushtest.NewProvider(), logger.Discard())
	if _, err := gw.Initialize(context.Background(), push.Config{}); err == nil {
		t.Error("expected invalid config to be rejected")
	}
}

func TestClose(t *testing.T) {
	provider := pushtest.NewProvider()
	gw := New(provider, logger.Discard())

	if _, err := gw.Initialize(context.Background(), testConfig); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := gw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !provider.Client().Closed() {
		t.Error("expected client to be closed")
	}
	if _, err := gw.Initialize(context.Background(), testConfig); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}
