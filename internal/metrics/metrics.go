// Package metrics holds the agent's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "enchanted_push"

// Delivery paths.
const (
	PathForeground = "foreground"
	PathBackground = "background"
)

var (
	messagesRouted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_routed_total",
		Help:      "Inbound push messages by delivery path.",
	}, []string{"path"})

	malformedPayloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "malformed_payloads_total",
		Help:      "Inbound payloads that had to be normalized.",
	}, []string{"path"})

	notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_total",
		Help:      "System notifications by delivery path and outcome.",
	}, []string{"path", "outcome"})

	tokenOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "token_operations_total",
		Help:      "Token lifecycle operations by operation and result.",
	}, []string{"operation", "result"})

	clicks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notification_clicks_total",
		Help:      "Notification clicks by routing outcome.",
	}, []string{"outcome"})

	pages = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "attached_pages",
		Help:      "Application pages currently attached to the agent.",
	})
)

// MessageRouted counts one inbound message on path.
func MessageRouted(path string) {
	messagesRouted.WithLabelValues(path).Inc()
}

// MalformedPayload counts one normalized payload on path.
func MalformedPayload(path string) {
	malformedPayloads.WithLabelValues(path).Inc()
}

// NotificationShown records the outcome of one notification display.
func NotificationShown(path string, err error) {
	outcome := "shown"
	if err != nil {
		outcome = "failed"
	}
	notifications.WithLabelValues(path, outcome).Inc()
}

// TokenOperation records one token operation result.
func TokenOperation(operation, result string) {
	tokenOperations.WithLabelValues(operation, result).Inc()
}

// Click records how a notification click was routed: focused, opened or failed.
func Click(outcome string) {
	clicks.WithLabelValues(outcome).Inc()
}

// PagesAttached adjusts the attached page gauge by delta.
func PagesAttached(delta int) {
	pages.Add(float64(delta))
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
