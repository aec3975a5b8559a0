package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/eternisai/enchanted-push/internal/host"
	"github.com/eternisai/enchanted-push/internal/push"
	"github.com/eternisai/enchanted-push/internal/registry"
	"github.com/gin-gonic/gin"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{push.ErrPermissionDenied, http.StatusForbidden, CodePermissionDenied},
		{fmt.Errorf("get token: %w", push.ErrTokenUnavailable), http.StatusServiceUnavailable, CodeTokenUnavailable},
		{push.ErrInitializationIncomplete, http.StatusServiceUnavailable, CodeNotInitialized},
		{host.ErrNoPages, http.StatusServiceUnavailable, CodeNoPages},
		{push.ErrConfigMismatch, http.StatusConflict, CodeConfigMismatch},
		{registry.ErrDeviceNotFound, http.StatusNotFound, CodeDeviceNotFound},
		{registry.ErrTokenRejected, http.StatusBadGateway, CodeTokenRejected},
		{fmt.Errorf("boom"), http.StatusInternalServerError, CodeInternal},
	}
	for _, tc := range cases {
		status, code := StatusFor(tc.err)
		if status != tc.status || code != tc.code {
			t.Errorf("%v: expected %d %s, got %d %s", tc.err, tc.status, tc.code, status, code)
		}
	}
}

func TestAbortWithPushError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	for _, tc := range []struct {
		err         error
		wantDetails bool
	}{
		{push.ErrPermissionDenied, true},
		{fmt.Errorf("secret cause"), false},
	} {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		AbortWithPushError(c, "failed", tc.err)

		var body APIError
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.Error != "failed" || body.Code == "" {
			t.Errorf("unexpected body %+v", body)
		}
		if (body.Details != nil) != tc.wantDetails {
			t.Errorf("%v: unexpected details %v", tc.err, body.Details)
		}
	}
}
