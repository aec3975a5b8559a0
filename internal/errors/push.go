package errors

import (
	stderrors "errors"
	"net/http"

	"github.com/eternisai/enchanted-push/internal/host"
	"github.com/eternisai/enchanted-push/internal/push"
	"github.com/eternisai/enchanted-push/internal/registry"
	"github.com/gin-gonic/gin"
)

// Machine-readable reasons returned in APIError.Code.
const (
	CodePermissionDenied = "permission_denied"
	CodeTokenUnavailable = "token_unavailable"
	CodeNotInitialized   = "not_initialized"
	CodeConfigMismatch   = "config_mismatch"
	CodeDeviceNotFound   = "device_not_found"
	CodeTokenRejected    = "token_rejected"
	CodeNoPages          = "no_pages"
	CodeInternal         = "internal_error"
)

// StatusFor maps a push agent error to an HTTP status and reason code.
func StatusFor(err error) (int, string) {
	switch {
	case stderrors.Is(err, push.ErrPermissionDenied):
		return http.StatusForbidden, CodePermissionDenied
	case stderrors.Is(err, push.ErrTokenUnavailable):
		return http.StatusServiceUnavailable, CodeTokenUnavailable
	case stderrors.Is(err, push.ErrInitializationIncomplete):
		return http.StatusServiceUnavailable, CodeNotInitialized
	case stderrors.Is(err, host.ErrNoPages):
		return http.StatusServiceUnavailable, CodeNoPages
	case stderrors.Is(err, push.ErrConfigMismatch):
		return http.StatusConflict, CodeConfigMismatch
	case stderrors.Is(err, registry.ErrDeviceNotFound), stderrors.Is(err, registry.ErrNoTokens):
		return http.StatusNotFound, CodeDeviceNotFound
	case stderrors.Is(err, registry.ErrTokenRejected):
		return http.StatusBadGateway, CodeTokenRejected
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// AbortWithPushError sends the response StatusFor selects and aborts the request.
// Internal errors are reported with message only, the cause is left to the logs.
func AbortWithPushError(c *gin.Context, message string, err error) {
	status, code := StatusFor(err)
	apiErr := NewAPIError(message, nil).WithCode(code)
	if status != http.StatusInternalServerError {
		apiErr.Details = map[string]interface{}{"reason": err.Error()}
	}
	c.AbortWithStatusJSON(status, apiErr)
}
