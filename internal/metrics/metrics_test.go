package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNotificationShown(t *testing.T) {
	shown := testutil.ToFloat64(notifications.WithLabelValues(PathBackground, "shown"))
	failed := testutil.ToFloat64(notifications.WithLabelValues(PathBackground, "failed"))

	NotificationShown(PathBackground, nil)
	NotificationShown(PathBackground, errors.New("denied"))
	NotificationShown(PathBackground, nil)

	if got := testutil.ToFloat64(notifications.WithLabelValues(PathBackground, "shown")) - shown; got != 2 {
		t.Errorf("expected 2 shown, got %v", got)
	}
	if got := testutil.ToFloat64(notifications.WithLabelValues(PathBackground, "failed")) - failed; got != 1 {
		t.Errorf("expected 1 failed, got %v", got)
	}
}

func TestPagesAttached(t *testing.T) {
	before := testutil.ToFloat64(pages)
	PagesAttached(1)
	PagesAttached(1)
	PagesAttached(-1)
	if got := testutil.ToFloat64(pages) - before; got != 1 {
		t.Errorf("expected one page, got %v", got)
	}
}

func TestHandler(t *testing.T) {
	MessageRouted(PathForeground)

	w := httptest.NewRecorder()
	Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(w.Body)
	if !strings.Contains(string(body), `enchanted_push_messages_routed_total{path="foreground"}`) {
		t.Error("expected routed messages in the exposition")
	}
}
