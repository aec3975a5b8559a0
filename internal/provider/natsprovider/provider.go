// Package natsprovider is a push provider client that talks to a token
// registrar and receives deliveries over NATS.
package natsprovider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/eternisai/enchanted-push/internal/logger"
	"github.com/eternisai/enchanted-push/internal/push"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

const requestTimeout = 10 * time.Second

// Options configure the NATS connection.
type Options struct {
	URL    string
	Prefix string
	// Name identifies the connection on the server.
	Name string
}

// Provider bootstraps NATS-backed clients.
type Provider struct {
	opts   Options
	logger *logger.Logger
}

func NewProvider(opts Options, log *logger.Logger) *Provider {
	if opts.URL == "" {
		opts.URL = nats.DefaultURL
	}
	if opts.Name == "" {
		opts.Name = "enchanted-push-agent"
	}
	return &Provider{opts: opts, logger: log.WithComponent("nats-provider")}
}

// Bootstrap connects and waits for the server to acknowledge the connection.
func (p *Provider) Bootstrap(ctx context.Context, cfg push.Config) (push.Client, error) {
	log := p.logger.WithContext(ctx)

	nc, err := nats.Connect(p.opts.URL,
		nats.Name(p.opts.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", slog.String("error", err.Error()))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", slog.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats at %s: %w", p.opts.URL, err)
	}

	if err := nc.FlushWithContext(ctx); err != nil {
		nc.Close()
		return nil, fmt.Errorf("flushing nats connection: %w", err)
	}

	log.Info("connected to push provider",
		slog.String("url", nc.ConnectedUrl()),
		slog.String("project_id", cfg.ProjectID))

	return &Client{
		nc:       nc,
		cfg:      cfg,
		subjects: NewSubjects(p.opts.Prefix, cfg),
		logger:   p.logger,
		renewed:  make(chan struct{}, 1),
		closed:   make(chan struct{}),
	}, nil
}

// Client is a bootstrapped NATS provider client.
type Client struct {
	nc       *nats.Conn
	cfg      push.Config
	subjects Subjects
	logger   *logger.Logger

	mu        sync.Mutex
	token     push.Token
	listening bool

	renewed   chan struct{}
	closed    chan struct{}
	closeOnce sync.Once
}

// GetToken returns the held token or asks the registrar for one.
func (c *Client) GetToken(ctx context.Context, req push.TokenRequest) (push.Token, error) {
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()
	if token != "" {
		return token, nil
	}

	var reply IssueReply
	err := c.request(ctx, c.subjects.Issue(), IssueRequest{
		DeviceID: req.DeviceID,
		AppID:    c.cfg.AppID,
		SenderID: c.cfg.SenderID,
		VAPIDKey: req.VAPIDKey,
	}, &reply)
	if err != nil {
		return "", err
	}

	switch {
	case reply.Code == CodeNoPermission:
		return "", push.ErrNoPermission
	case reply.Error != "":
		return "", fmt.Errorf("registrar refused token: %s", reply.Error)
	case reply.Token == "":
		return "", errors.New("registrar returned an empty token")
	}

	c.setToken(push.Token(reply.Token))
	return push.Token(reply.Token), nil
}

// DeleteToken revokes the held token.
func (c *Client) DeleteToken(ctx context.Context) (bool, error) {
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()
	if token == "" {
		return false, nil
	}

	var reply RevokeReply
	if err := c.request(ctx, c.subjects.Revoke(), RevokeRequest{Token: string(token)}, &reply); err != nil {
		return false, err
	}
	if reply.Error != "" {
		return false, fmt.Errorf("registrar refused revocation: %s", reply.Error)
	}

	c.setToken("")
	return reply.Deleted, nil
}

func (c *Client) setToken(token push.Token) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()

	select {
	case c.renewed <- struct{}{}:
	default:
	}
}

func (c *Client) request(ctx context.Context, subject string, req, reply any) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	msg, err := c.nc.RequestWithContext(reqCtx, subject, data)
	if err != nil {
		if errors.Is(err, nats.ErrNoResponders) {
			return fmt.Errorf("no token registrar on %s: %w", subject, err)
		}
		return fmt.Errorf("request on %s failed: %w", subject, err)
	}

	if err := json.Unmarshal(msg.Data, reply); err != nil {
		return fmt.Errorf("failed to unmarshal reply: %w", err)
	}
	return nil
}

// Listen delivers messages published for the held token to h. It follows
// token renewal and blocks until ctx is done or the client is closed.
func (c *Client) Listen(ctx context.Context, h push.Handler) error {
	c.mu.Lock()
	if c.listening {
		c.mu.Unlock()
		return errors.New("natsprovider: listener already attached")
	}
	c.listening = true
	c.mu.Unlock()

	for {
		c.mu.Lock()
		token := c.token
		c.mu.Unlock()

		var sub *nats.Subscription
		if token != "" {
			var err error
			sub, err = c.nc.Subscribe(c.subjects.Deliver(token), func(m *nats.Msg) {
				h(ctx, toMessage(m))
			})
			if err != nil {
				return fmt.Errorf("subscribing to deliveries: %w", err)
			}
			c.logger.Debug("listening for deliveries", slog.String("token_prefix", token.Prefix()))
		}

		select {
		case <-ctx.Done():
			drain(sub)
			return nil
		case <-c.closed:
			drain(sub)
			return nil
		case <-c.renewed:
			drain(sub)
		}
	}
}

func toMessage(m *nats.Msg) push.Message {
	id := ""
	if m.Header != nil {
		id = m.Header.Get(HeaderMessageID)
	}
	if id == "" {
		id = uuid.NewString()
	}
	return push.Message{ID: id, Data: m.Data, ReceivedAt: time.Now()}
}

func drain(sub *nats.Subscription) {
	if sub != nil {
		_ = sub.Drain()
	}
}

// Close drains the connection.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.nc.Drain()
	})
	return err
}

// Publish sends payload to the device holding token.
func Publish(ctx context.Context, nc *nats.Conn, subjects Subjects, token push.Token, payload []byte, messageID string) error {
	if messageID == "" {
		messageID = uuid.NewString()
	}
	msg := nats.NewMsg(subjects.Deliver(token))
	msg.Header.Set(HeaderMessageID, messageID)
	msg.Data = payload
	if err := nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("publishing delivery: %w", err)
	}
	return nc.FlushWithContext(ctx)
}
