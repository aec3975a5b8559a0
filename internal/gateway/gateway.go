// Package gateway owns process-wide initialization of the push provider client.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/eternisai/enchanted-push/internal/logger"
	"github.com/eternisai/enchanted-push/internal/push"
)

// ErrClosed is returned once the gateway has been shut down.
var ErrClosed = errors.New("messaging gateway closed")

// State is the gateway lifecycle.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	default:
		return "uninitialized"
	}
}

// initCall is one in-flight bootstrap shared by every caller that arrives
// while the gateway is initializing.
type initCall struct {
	done   chan struct{}
	client push.Client
	err    error
}

// Gateway hands out the single shared client for one configuration.
type Gateway struct {
	provider push.Provider
	logger   *logger.Logger

	mu      sync.Mutex
	state   State
	cfg     push.Config
	pending *initCall
	client  push.Client
	closed  bool
}

// New creates a gateway in the Uninitialized state.
func New(provider push.Provider, log *logger.Logger) *Gateway {
	return &Gateway{
		provider: provider,
		logger:   log.WithComponent("messaging-gateway"),
	}
}

// Initialize returns the shared client for cfg, bootstrapping it on first use.
// Concurrent callers wait on the same bootstrap. The call returns only once
// the client is usable. A gateway bound to one configuration refuses another.
func (g *Gateway) Initialize(ctx context.Context, cfg push.Config) (push.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil, ErrClosed
	}

	switch g.state {
	case StateReady:
		if g.cfg != cfg {
			g.mu.Unlock()
			return nil, fmt.Errorf("%w: bound to project %s", push.ErrConfigMismatch, g.cfg.ProjectID)
		}
		client := g.client
		g.mu.Unlock()
		return client, nil

	case StateInitializing:
		if g.cfg != cfg {
			g.mu.Unlock()
			return nil, fmt.Errorf("%w: bound to project %s", push.ErrConfigMismatch, g.cfg.ProjectID)
		}
		call := g.pending
		g.mu.Unlock()
		return g.await(ctx, call)
	}

	call := &initCall{done: make(chan struct{})}
	g.state = StateInitializing
	g.cfg = cfg
	g.pending = call
	g.mu.Unlock()

	// The bootstrap outlives the caller that started it; other waiters
	// depend on it completing.
	go g.bootstrap(context.WithoutCancel(ctx), cfg, call)

	return g.await(ctx, call)
}

func (g *Gateway) await(ctx context.Context, call *initCall) (push.Client, error) {
	select {
	case <-call.done:
		return call.client, call.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (g *Gateway) bootstrap(ctx context.Context, cfg push.Config, call *initCall) {
	log := g.logger.WithContext(ctx)

	var client push.Client
	err := log.LogOperation(ctx, "provider_bootstrap", func() error {
		var err error
		client, err = g.provider.Bootstrap(ctx, cfg)
		return err
	})

	g.mu.Lock()
	g.pending = nil
	switch {
	case err != nil:
		g.state = StateUninitialized
		g.cfg = push.Config{}
		err = fmt.Errorf("bootstrapping push client: %w", err)
	case g.closed:
		client.Close()
		client = nil
		g.state = StateUninitialized
		err = ErrClosed
	default:
		g.state = StateReady
		g.client = client
		log.Info("push client ready",
			slog.String("project_id", cfg.ProjectID),
			slog.String("sender_id", cfg.SenderID))
	}
	call.client, call.err = client, err
	g.mu.Unlock()

	close(call.done)
}

// Client returns the shared client, or ErrInitializationIncomplete when the
// gateway is not Ready.
func (g *Gateway) Client() (push.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != StateReady {
		return nil, push.ErrInitializationIncomplete
	}
	return g.client, nil
}

// State reports the current lifecycle state.
func (g *Gateway) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Close releases the shared client. A bootstrap still in flight is closed
// as soon as it completes.
func (g *Gateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.closed = true
	if g.state != StateReady {
		return nil
	}
	client := g.client
	g.client = nil
	g.state = StateUninitialized
	return client.Close()
}
