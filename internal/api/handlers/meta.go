package handlers

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/coldorg/coldbot/backend/internal/health"
	"github.com/coldorg/coldbot/backend/internal/models"
)

type HealthReporter interface {
	CheckCached(ctx context.Context) health.OverallHealth
}

type MetaHandler struct {
	health           HealthReporter
	recaptchaSiteKey string
	webRoot          string
}

func NewMetaHandler(health HealthReporter, recaptchaSiteKey, webRoot string) *MetaHandler {
	return &MetaHandler{
		health:           health,
		recaptchaSiteKey: recaptchaSiteKey,
		webRoot:          webRoot,
	}
}

// HandlePublicConfig exposes the values the browser needs before sign-in.
func (h *MetaHandler) HandlePublicConfig(c *gin.Context) {
	c.JSON(http.StatusOK, models.PublicConfigResponse{RecaptchaSiteKey: h.recaptchaSiteKey})
}

func (h *MetaHandler) HandleHealth(c *gin.Context) {
	overall := h.health.CheckCached(c.Request.Context())

	services := make(map[string]string, len(overall.Services))
	for _, s := range overall.Services {
		services[s.Name] = s.Status
	}

	code := http.StatusOK
	if overall.Status == health.StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, models.HealthResponse{
		Status:    overall.Status,
		Service:   "coldbot-backend",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Services:  services,
	})
}

// Page serves <webRoot>/<name>.html. Without a web root it answers with
// the page name so the routes stay reachable behind the gate.
func (h *MetaHandler) Page(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.webRoot == "" {
			c.String(http.StatusOK, name)
			return
		}
		path := filepath.Join(h.webRoot, name+".html")
		if _, err := os.Stat(path); err != nil {
			c.String(http.StatusNotFound, "page not found")
			return
		}
		c.File(path)
	}
}
