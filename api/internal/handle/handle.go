// Package handle holds the gin handlers of the HTTP API.
package handle

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"

	"comic-vault/api/internal/config"
	"comic-vault/api/internal/metadata"
)

const (
	ServiceName = "Comic Vault API"
	Version     = "1.0.0"

	PathRoot     = "/"
	PathHealth   = "/health"
	PathIdentify = "/api/comics/identify"
	PathMetrics  = "/metrics"

	// RequestIDKey is the gin context key the request-id middleware sets.
	RequestIDKey = "request_id"
)

// Identifier runs the identification pipeline on raw upload bytes.
type Identifier interface {
	Identify(ctx context.Context, data []byte) (metadata.Record, error)
}

type Handle struct {
	svc    Identifier
	cfg    *config.Config
	routes func() gin.RoutesInfo
}

func New(svc Identifier, cfg *config.Config) *Handle {
	return &Handle{svc: svc, cfg: cfg}
}

// SetRoutes lets Health report on the router it is mounted in.
func (h *Handle) SetRoutes(fn func() gin.RoutesInfo) { h.routes = fn }

func (h *Handle) timeout() time.Duration {
	if h.cfg != nil && h.cfg.VisionTimeout > 0 {
		return h.cfg.VisionTimeout
	}
	return 120 * time.Second
}

func (h *Handle) maxUpload() int64 {
	if h.cfg != nil {
		return h.cfg.MaxUploadBytes
	}
	return 0
}

func logger(c *gin.Context) *log.Entry {
	return log.WithField("request_id", c.GetString(RequestIDKey))
}

func writeDetail(c *gin.Context, code int, detail string) {
	c.JSON(code, gin.H{"detail": detail})
}

// NoRoute answers unknown paths.
func (h *Handle) NoRoute(c *gin.Context) {
	writeDetail(c, http.StatusNotFound, "Not Found")
}

func (h *Handle) Root(c *gin.Context) {
	logger(c).Info("root endpoint accessed")
	c.JSON(http.StatusOK, gin.H{
		"message": ServiceName,
		"version": Version,
		"status":  "running",
		"endpoints": gin.H{
			"health":   PathHealth,
			"identify": PathIdentify,
			"metrics":  PathMetrics,
		},
	})
}

// Health reports configuration presence only; the key itself is never echoed.
func (h *Handle) Health(c *gin.Context) {
	logger(c).Info("health check accessed")

	routesLoaded := false
	if h.routes != nil {
		for _, r := range h.routes() {
			if r.Method == http.MethodPost && r.Path == PathIdentify {
				routesLoaded = true
				break
			}
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":            "healthy",
		"openai_configured": h.cfg.OpenAIConfigured(),
		"routes_loaded":     routesLoaded,
		"go_version":        runtime.Version(),
		"environment":       h.cfg.Environment,
		"vision_provider":   h.cfg.VisionProvider,
	})
}
