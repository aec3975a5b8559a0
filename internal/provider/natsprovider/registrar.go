package natsprovider

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/eternisai/enchanted-push/internal/logger"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// Registrar is a development token registrar. It issues one token per
// device and forgets it on revocation.
type Registrar struct {
	nc       *nats.Conn
	subjects Subjects
	logger   *logger.Logger

	mu       sync.Mutex
	byDevice map[string]string
	byToken  map[string]string
}

func NewRegistrar(nc *nats.Conn, subjects Subjects, log *logger.Logger) *Registrar {
	return &Registrar{
		nc:       nc,
		subjects: subjects,
		logger:   log.WithComponent("registrar"),
		byDevice: make(map[string]string),
		byToken:  make(map[string]string),
	}
}

// Run answers token requests until ctx is done.
func (r *Registrar) Run(ctx context.Context) error {
	issue, err := r.nc.Subscribe(r.subjects.Issue(), r.handleIssue)
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", r.subjects.Issue(), err)
	}
	defer issue.Drain()

	revoke, err := r.nc.Subscribe(r.subjects.Revoke(), r.handleRevoke)
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", r.subjects.Revoke(), err)
	}
	defer revoke.Drain()

	r.logger.Info("token registrar started",
		slog.String("issue_subject", r.subjects.Issue()),
		slog.String("revoke_subject", r.subjects.Revoke()))

	<-ctx.Done()
	return nil
}

// Issue returns the device's token, creating one when needed.
func (r *Registrar) Issue(deviceID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if token, ok := r.byDevice[deviceID]; ok {
		return token
	}
	token := uuid.NewString()
	r.byDevice[deviceID] = token
	r.byToken[token] = deviceID
	return token
}

// Revoke forgets token and reports whether it existed.
func (r *Registrar) Revoke(token string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	deviceID, ok := r.byToken[token]
	if !ok {
		return false
	}
	delete(r.byToken, token)
	delete(r.byDevice, deviceID)
	return true
}

func (r *Registrar) handleIssue(msg *nats.Msg) {
	var req IssueRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil || req.DeviceID == "" {
		r.logger.Warn("received invalid issue request")
		r.reply(msg, IssueReply{Code: CodeInvalid, Error: "deviceId is required"})
		return
	}

	token := r.Issue(req.DeviceID)
	r.logger.Debug("issued token", slog.String("device_id", req.DeviceID))
	r.reply(msg, IssueReply{Token: token})
}

func (r *Registrar) handleRevoke(msg *nats.Msg) {
	var req RevokeRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		r.reply(msg, RevokeReply{Error: "invalid request"})
		return
	}
	r.reply(msg, RevokeReply{Deleted: r.Revoke(req.Token)})
}

func (r *Registrar) reply(msg *nats.Msg, resp any) {
	data, err := json.Marshal(resp)
	if err != nil {
		r.logger.Error("failed to marshal response", slog.String("error", err.Error()))
		return
	}
	if err := msg.Respond(data); err != nil {
		r.logger.Error("failed to send response", slog.String("error", err.Error()))
	}
}
