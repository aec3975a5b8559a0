// Package api exposes the push agent to local application pages over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	apierrors "github.com/eternisai/enchanted-push/internal/errors"
	"github.com/eternisai/enchanted-push/internal/fingerprint"
	"github.com/eternisai/enchanted-push/internal/logger"
	"github.com/eternisai/enchanted-push/internal/push"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// UserIDHeader names the enrolling user on /v1/enrollment.
const UserIDHeader = "X-User-ID"

// Tokens is the permission and token surface of the agent.
type Tokens interface {
	PermissionState() push.PermissionState
	RequestPermission(ctx context.Context) (push.PermissionState, error)
	GetToken(ctx context.Context) (push.Token, error)
	DeleteToken(ctx context.Context) (bool, error)
	DeviceID() string
}

// Enrollment toggles notifications for a user.
type Enrollment interface {
	Enable(ctx context.Context, userID string) (push.Token, error)
	Disable(ctx context.Context, userID string) error
}

// Pages accepts application page sessions.
type Pages interface {
	Serve(ctx context.Context, conn *websocket.Conn) error
	PageCount() int
	Focused() bool
}

// Status reports component state for /healthz.
type Status interface {
	Components() map[string]string
}

// Handler serves the agent's HTTP endpoints.
type Handler struct {
	tokens      Tokens
	enrollment  Enrollment
	pages       Pages
	status      Status
	fingerprint fingerprint.Attributes
	upgrader    websocket.Upgrader
	logger      *logger.Logger
}

// NewHandler creates a new agent handler. status may be nil.
func NewHandler(tokens Tokens, enrollment Enrollment, pages Pages, status Status, attrs fingerprint.Attributes, checkOrigin func(*http.Request) bool, log *logger.Logger) *Handler {
	return &Handler{
		tokens:      tokens,
		enrollment:  enrollment,
		pages:       pages,
		status:      status,
		fingerprint: attrs,
		upgrader:    websocket.Upgrader{CheckOrigin: checkOrigin},
		logger:      log.WithComponent("api"),
	}
}

// TokenResponse is returned by the token endpoints. Token is null when no
// token is available.
type TokenResponse struct {
	Token      *string              `json:"token"`
	DeviceID   string               `json:"deviceId"`
	Permission push.PermissionState `json:"permission"`
	Deleted    *bool                `json:"deleted,omitempty"`
}

// PermissionResponse is returned by POST /v1/permission.
type PermissionResponse struct {
	Permission push.PermissionState `json:"permission"`
}

// FingerprintResponse is returned by GET /v1/fingerprint.
type FingerprintResponse struct {
	Fingerprint fingerprint.Fingerprint `json:"fingerprint"`
	Attributes  fingerprint.Attributes  `json:"attributes"`
}

// EnrollmentResponse is returned by the enrollment endpoints.
type EnrollmentResponse struct {
	UserID   string  `json:"userId"`
	DeviceID string  `json:"deviceId"`
	Enabled  bool    `json:"enabled"`
	Token    *string `json:"token,omitempty"`
}

func tokenPtr(t push.Token) *string {
	if t == "" {
		return nil
	}
	s := string(t)
	return &s
}

// Health handles GET /healthz
func (h *Handler) Health(c *gin.Context) {
	body := gin.H{
		"status":     "ok",
		"pages":      h.pages.PageCount(),
		"focused":    h.pages.Focused(),
		"permission": h.tokens.PermissionState(),
	}
	if h.status != nil {
		for name, state := range h.status.Components() {
			body[name] = state
		}
	}
	c.JSON(http.StatusOK, body)
}

// Pages handles GET /v1/pages, upgrading to a page session.
func (h *Handler) Pages(c *gin.Context) {
	log := h.logger.WithContext(c.Request.Context())

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// The upgrader has already written the error response.
		log.Warn("page upgrade failed", slog.String("error", err.Error()))
		return
	}

	if err := h.pages.Serve(c.Request.Context(), conn); err != nil {
		log.Info("page session ended", slog.String("reason", err.Error()))
	}
}

// RequestPermission handles POST /v1/permission
func (h *Handler) RequestPermission(c *gin.Context) {
	state, err := h.tokens.RequestPermission(c.Request.Context())
	if err != nil {
		h.logger.LogError(c.Request.Context(), err, "permission request failed")
		apierrors.AbortWithPushError(c, "failed to request notification permission", err)
		return
	}
	c.JSON(http.StatusOK, PermissionResponse{Permission: state})
}

// GetToken handles GET /v1/token
func (h *Handler) GetToken(c *gin.Context) {
	token, err := h.tokens.GetToken(c.Request.Context())
	if err != nil {
		h.logger.LogError(c.Request.Context(), err, "token retrieval failed")
		apierrors.AbortWithPushError(c, "failed to retrieve registration token", err)
		return
	}
	c.JSON(http.StatusOK, TokenResponse{
		Token:      tokenPtr(token),
		DeviceID:   h.tokens.DeviceID(),
		Permission: h.tokens.PermissionState(),
	})
}

// DeleteToken handles DELETE /v1/token
func (h *Handler) DeleteToken(c *gin.Context) {
	deleted, err := h.tokens.DeleteToken(c.Request.Context())
	if err != nil {
		h.logger.LogError(c.Request.Context(), err, "token deletion failed")
		apierrors.AbortWithPushError(c, "failed to delete registration token", err)
		return
	}
	c.JSON(http.StatusOK, TokenResponse{
		DeviceID:   h.tokens.DeviceID(),
		Permission: h.tokens.PermissionState(),
		Deleted:    &deleted,
	})
}

// Fingerprint handles GET /v1/fingerprint
func (h *Handler) Fingerprint(c *gin.Context) {
	c.JSON(http.StatusOK, FingerprintResponse{
		Fingerprint: fingerprint.Compute(h.fingerprint),
		Attributes:  h.fingerprint,
	})
}

// Enable handles POST /v1/enrollment
func (h *Handler) Enable(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	token, err := h.enrollment.Enable(c.Request.Context(), userID)
	if err != nil {
		h.logger.LogError(c.Request.Context(), err, "enabling notifications failed", slog.String("user_id", userID))
		apierrors.AbortWithPushError(c, "failed to enable notifications", err)
		return
	}
	c.JSON(http.StatusOK, EnrollmentResponse{
		UserID:   userID,
		DeviceID: h.tokens.DeviceID(),
		Enabled:  true,
		Token:    tokenPtr(token),
	})
}

// Disable handles DELETE /v1/enrollment
func (h *Handler) Disable(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	if err := h.enrollment.Disable(c.Request.Context(), userID); err != nil {
		h.logger.LogError(c.Request.Context(), err, "disabling notifications failed", slog.String("user_id", userID))
		apierrors.AbortWithPushError(c, "failed to disable notifications", err)
		return
	}
	c.JSON(http.StatusOK, EnrollmentResponse{
		UserID:   userID,
		DeviceID: h.tokens.DeviceID(),
	})
}

func requireUser(c *gin.Context) (string, bool) {
	userID := strings.TrimSpace(c.GetHeader(UserIDHeader))
	if userID == "" {
		apierrors.AbortWithUnauthorized(c, UserIDHeader+" header is required", nil)
		return "", false
	}
	return userID, true
}
