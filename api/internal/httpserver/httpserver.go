// Package httpserver assembles the gin router and runs it with graceful
// shutdown.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/apex/log"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"comic-vault/api/internal/config"
	"comic-vault/api/internal/handle"
	"comic-vault/api/internal/metrics"
)

const HeaderRequestID = "X-Request-ID"

// NewRouter mounts every endpoint of the API on a fresh gin engine.
func NewRouter(cfg *config.Config, h *handle.Handle) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	metrics.Register()

	r := gin.New()
	r.Use(RequestID(), AccessLog(), gin.CustomRecovery(recoverJSON))
	r.Use(cors.New(corsConfig(cfg.CORSAllowedOrigins)))

	r.GET(handle.PathRoot, h.Root)
	r.GET(handle.PathHealth, h.Health)
	r.POST(handle.PathIdentify, h.Identify)
	r.GET(handle.PathMetrics, gin.WrapH(promhttp.Handler()))
	r.NoRoute(h.NoRoute)

	h.SetRoutes(r.Routes)
	return r
}

func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", HeaderRequestID},
		ExposeHeaders: []string{HeaderRequestID},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		// credentials cannot be combined with a literal "*"
		c.AllowOriginFunc = func(string) bool { return true }
		c.AllowCredentials = true
		return c
	}
	c.AllowOrigins = origins
	c.AllowCredentials = true
	return c
}

// RequestID echoes the caller's X-Request-ID or generates one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set(handle.RequestIDKey, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

func AccessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(log.Fields{
			"request_id": c.GetString(handle.RequestIDKey),
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"duration":   time.Since(start).String(),
		}).Info("request")
	}
}

func recoverJSON(c *gin.Context, recovered any) {
	log.WithFields(log.Fields{
		"request_id": c.GetString(handle.RequestIDKey),
		"path":       c.Request.URL.Path,
	}).Errorf("unhandled panic: %v", recovered)

	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
		"error":   "Internal server error",
		"message": fmt.Sprint(recovered),
		"path":    requestURL(c.Request),
	})
}

func requestURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if p := r.Header.Get("X-Forwarded-Proto"); p != "" {
		scheme = p
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

// LogRoutes prints every registered route at startup.
func LogRoutes(r *gin.Engine) {
	log.Info("available endpoints:")
	for _, ri := range r.Routes() {
		log.Infof("  %-8s %s", ri.Method, ri.Path)
	}
}

// Run serves handler on addr until ctx is cancelled, then drains in-flight
// requests for up to grace.
func Run(ctx context.Context, addr string, handler http.Handler, grace time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
