// Package agent wires the push agent together and runs it.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/eternisai/enchanted-push/internal/api"
	"github.com/eternisai/enchanted-push/internal/bridge"
	"github.com/eternisai/enchanted-push/internal/config"
	"github.com/eternisai/enchanted-push/internal/delivery"
	"github.com/eternisai/enchanted-push/internal/enrollment"
	"github.com/eternisai/enchanted-push/internal/fingerprint"
	"github.com/eternisai/enchanted-push/internal/gateway"
	"github.com/eternisai/enchanted-push/internal/host"
	"github.com/eternisai/enchanted-push/internal/logger"
	"github.com/eternisai/enchanted-push/internal/push"
	"github.com/eternisai/enchanted-push/internal/registry"
	"github.com/eternisai/enchanted-push/internal/tokens"
	"github.com/eternisai/enchanted-push/internal/worker"
)

// Agent is one running push agent.
type Agent struct {
	cfg    *config.Config
	logger *logger.Logger

	attrs    fingerprint.Attributes
	deviceID string

	host       *host.Host
	gateway    *gateway.Gateway
	tokens     *tokens.Manager
	worker     *worker.Worker
	bridge     *bridge.Bridge
	router     *delivery.Router
	enrollment *enrollment.Service
	firebase   *registry.FirebaseClient

	handler http.Handler
}

// New builds an agent talking to provider. Nothing runs until Run.
func New(ctx context.Context, cfg *config.Config, provider push.Provider, log *logger.Logger) (*Agent, error) {
	a := &Agent{
		cfg:    cfg,
		logger: log.WithComponent("agent"),
	}

	a.attrs = fingerprint.Collect(fingerprint.Overrides{
		Version:          cfg.Version,
		ScreenResolution: cfg.ScreenResolution,
	})
	a.deviceID = string(fingerprint.Compute(a.attrs))

	presentation := cfg.Files.Presentation

	var opener host.Opener
	if len(cfg.OpenCommand) > 0 {
		opener = host.CommandOpener{Command: cfg.OpenCommand, BaseURL: presentation.AppBaseURL}
	}
	a.host = host.New(host.Options{
		Permission:    cfg.InitialPermission,
		PromptTimeout: cfg.PermissionPromptTimeout,
		Opener:        opener,
	}, log)

	notifiers := host.Notifiers{a.host}
	if len(cfg.NotifyCommand) > 0 {
		notifiers = append(notifiers, host.CommandNotifier{Command: cfg.NotifyCommand, IconFlag: cfg.NotifyIconFlag})
	}

	a.gateway = gateway.New(provider, log)
	a.tokens = tokens.NewManager(a.gateway, cfg.Push, a.host.Permissions(), a.deviceID, log)

	a.worker = worker.New(notifiers, a.host, worker.Options{
		DefaultIcon: presentation.DefaultIcon,
		ClickTarget: presentation.ClickTarget,
		Version:     cfg.Version,
	}, log)
	a.host.OnNotificationClick(func(ctx context.Context, n push.Display) {
		a.worker.OnNotificationClick(ctx, n)
	})

	a.bridge = bridge.New(a.host, notifiers, bridge.Options{
		ShowNotifications: presentation.ForegroundNotifications,
		DefaultIcon:       presentation.DefaultIcon,
	}, log)
	a.router = delivery.New(a.host, a.bridge, a.worker, log)

	store, verifier, err := a.newRegistry(ctx, log)
	if err != nil {
		return nil, err
	}
	a.enrollment = enrollment.New(a.tokens, store, verifier, log)

	origins := api.ParseOrigins(cfg.CORSAllowedOrigins)
	h := api.NewHandler(a.tokens, a.enrollment, a.host, a, a.attrs, api.OriginChecker(origins), log)
	a.handler = api.NewRouter(h, origins)

	a.logger.Info("push agent configured",
		slog.String("environment", cfg.Environment),
		slog.String("device_id", a.deviceID),
		slog.String("permission", cfg.InitialPermission.String()))
	return a, nil
}

// newRegistry returns the Firestore registry when credentials are configured
// and an in-memory one otherwise. The verifier is nil unless VerifyTokens is set.
func (a *Agent) newRegistry(ctx context.Context, log *logger.Logger) (registry.Store, enrollment.Verifier, error) {
	if a.cfg.FirebaseCredJSON == "" {
		if a.cfg.VerifyTokens {
			a.logger.Warn("token verification needs Firebase credentials, skipping")
		}
		return registry.NewMemoryStore(), nil, nil
	}

	fb, err := registry.NewFirebaseClient(ctx, a.cfg.FirebaseProjectID, a.cfg.FirebaseCredJSON)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing device registry: %w", err)
	}
	a.firebase = fb

	store := registry.NewFirestoreStore(fb.Firestore, log)
	if !a.cfg.VerifyTokens {
		return store, nil, nil
	}
	return store, registry.NewSender(fb.Messaging, store, a.cfg.FirebaseProjectID, a.cfg.FirebaseCredJSON, log), nil
}

// Handler returns the agent's HTTP handler.
func (a *Agent) Handler() http.Handler {
	return a.handler
}

// DeviceID returns the device fingerprint.
func (a *Agent) DeviceID() string {
	return a.deviceID
}

// Components reports the lifecycle state of the gateway and the worker.
func (a *Agent) Components() map[string]string {
	return map[string]string{
		"gateway":        a.gateway.State().String(),
		"worker":         a.worker.State().String(),
		"worker_version": a.worker.Version(),
	}
}
