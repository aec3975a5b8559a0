// Package pushtest provides in-memory push provider emulators for tests.
package pushtest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/eternisai/enchanted-push/internal/push"
)

// Provider emulates a push provider. Bootstrap blocks on Gate when set.
type Provider struct {
	mu         sync.Mutex
	bootstraps int
	gate       chan struct{}
	err        error
	client     *Client
}

// NewProvider returns a provider whose bootstraps succeed immediately.
func NewProvider() *Provider {
	return &Provider{client: NewClient()}
}

// Hold makes subsequent bootstraps block until Release is called.
func (p *Provider) Hold() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gate = make(chan struct{})
}

// Release unblocks held bootstraps.
func (p *Provider) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gate != nil {
		close(p.gate)
		p.gate = nil
	}
}

// FailWith makes subsequent bootstraps fail with err. nil restores success.
func (p *Provider) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// Bootstraps reports how many times Bootstrap ran.
func (p *Provider) Bootstraps() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bootstraps
}

// Client returns the client handed out by Bootstrap.
func (p *Provider) Client() *Client {
	return p.client
}

func (p *Provider) Bootstrap(ctx context.Context, cfg push.Config) (push.Client, error) {
	p.mu.Lock()
	p.bootstraps++
	gate, err := p.gate, p.err
	p.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	p.client.mu.Lock()
	p.client.cfg = cfg
	p.client.mu.Unlock()
	return p.client, nil
}

// Client emulates a bootstrapped provider client.
type Client struct {
	mu            sync.Mutex
	cfg           push.Config
	token         push.Token
	issued        int
	getTokenCalls int
	tokenErr      error
	deleteErr     error
	decline       bool
	handler       push.Handler
	listening     chan struct{}
	closed        bool
}

// NewClient returns an idle client with no token.
func NewClient() *Client {
	return &Client{listening: make(chan struct{})}
}

// FailTokens makes GetToken fail with err. nil restores success.
func (c *Client) FailTokens(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokenErr = err
}

// FailDeletes makes DeleteToken fail with err.
func (c *Client) FailDeletes(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleteErr = err
}

// Decline makes GetToken report that the subscription lacks permission.
func (c *Client) Decline(decline bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.decline = decline
}

// GetTokenCalls reports how many times GetToken reached the client.
func (c *Client) GetTokenCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getTokenCalls
}

// Config returns the configuration the client was bootstrapped with.
func (c *Client) Config() push.Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// Closed reports whether Close was called.
func (c *Client) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Client) GetToken(ctx context.Context, req push.TokenRequest) (push.Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.getTokenCalls++
	if c.tokenErr != nil {
		return "", c.tokenErr
	}
	if c.decline {
		return "", push.ErrNoPermission
	}
	if c.token == "" {
		c.issued++
		c.token = push.Token(fmt.Sprintf("token-%d-%s", c.issued, req.DeviceID))
	}
	return c.token, nil
}

func (c *Client) DeleteToken(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.deleteErr != nil {
		return false, c.deleteErr
	}
	if c.token == "" {
		return false, nil
	}
	c.token = ""
	return true, nil
}

func (c *Client) Listen(ctx context.Context, h push.Handler) error {
	c.mu.Lock()
	if c.handler != nil {
		c.mu.Unlock()
		return errors.New("pushtest: already listening")
	}
	c.handler = h
	close(c.listening)
	c.mu.Unlock()

	<-ctx.Done()
	return nil
}

// Listening is closed once a handler is attached.
func (c *Client) Listening() <-chan struct{} {
	return c.listening
}

// Deliver hands msg to the attached handler synchronously.
func (c *Client) Deliver(ctx context.Context, msg push.Message) error {
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()
	if h == nil {
		return errors.New("pushtest: no listener attached")
	}
	h(ctx, msg)
	return nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}
