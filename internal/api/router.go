package api

import (
	"net/http"
	"strings"

	"github.com/eternisai/enchanted-push/internal/logger"
	"github.com/eternisai/enchanted-push/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
)

// ParseOrigins splits a comma separated CORS_ALLOWED_ORIGINS value.
func ParseOrigins(value string) []string {
	var origins []string
	for _, origin := range strings.Split(value, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}

// OriginChecker returns a websocket origin check accepting the given origins.
// "*" accepts any origin. Requests without an Origin header are accepted.
func OriginChecker(origins []string) func(*http.Request) bool {
	allowed := make(map[string]bool, len(origins))
	for _, origin := range origins {
		if origin == "*" {
			return func(*http.Request) bool { return true }
		}
		allowed[strings.TrimSuffix(origin, "/")] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowed[origin]
	}
}

// NewRouter builds the agent's HTTP handler with CORS applied.
func NewRouter(h *Handler, allowedOrigins []string) http.Handler {
	router := gin.New()
	router.Use(gin.Recovery(), logger.RequestLoggingMiddleware(h.logger))

	router.GET("/healthz", h.Health)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	v1 := router.Group("/v1")
	{
		v1.GET("/pages", h.Pages)
		v1.POST("/permission", h.RequestPermission)
		v1.GET("/token", h.GetToken)
		v1.DELETE("/token", h.DeleteToken)
		v1.GET("/fingerprint", h.Fingerprint)
		v1.POST("/enrollment", h.Enable)
		v1.DELETE("/enrollment", h.Disable)
	}

	return cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Origin", "Content-Type", "Accept", UserIDHeader, logger.RequestIDHeader},
		ExposedHeaders: []string{logger.RequestIDHeader},
	}).Handler(router)
}
