// Package api exposes the pipeline engine over HTTP: POST /execute
// streams stage results as server-sent events, GET /metrics exposes
// Prometheus text exposition.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/harrowfung/pentagon/internal/logging"
	"github.com/harrowfung/pentagon/internal/model"
	"github.com/harrowfung/pentagon/internal/pipeline"
)

// NewRouter builds the gin engine serving the two HTTP endpoints.
func NewRouter(engine *pipeline.Engine, reg *prometheus.Registry) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.POST("/execute", executeHandler(engine))
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	return r
}

func executeHandler(engine *pipeline.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.ContentType() != "application/json" {
			c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "Content-Type must be application/json"})
			return
		}

		var req model.ExecutionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		flusher, ok := c.Writer.(http.Flusher)
		if !ok {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming unsupported"})
			return
		}

		requestID := uuid.NewString()
		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		logging.FromContext(ctx).Info("execute request received", zap.Int("stages", len(req.Executions)), zap.Int("files", len(req.Files)))
		c.Header("X-Request-Id", requestID)

		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Status(http.StatusOK)
		flusher.Flush()

		events := engine.Run(ctx, req)
		for ev := range events {
			writeEvent(c.Writer, ev, flusher)
		}
	}
}

func writeEvent(w http.ResponseWriter, ev pipeline.Event, flusher http.Flusher) {
	var payload any
	if ev.Error != "" {
		payload = gin.H{"error": ev.Error}
	} else {
		payload = ev.Result
	}

	data, err := json.Marshal(payload)
	if err != nil {
		logging.L().Error("marshal stream event", zap.Error(err))
		return
	}

	if _, err := w.Write([]byte("data: ")); err != nil {
		return
	}
	if _, err := w.Write(data); err != nil {
		return
	}
	if _, err := w.Write([]byte("\n\n")); err != nil {
		return
	}
	flusher.Flush()
}
