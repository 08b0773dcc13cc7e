package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"

	"github.com/harrowfung/pentagon/internal/blobstore"
	"github.com/harrowfung/pentagon/internal/metrics"
	"github.com/harrowfung/pentagon/internal/pipeline"
)

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	engine := pipeline.New("/tmp", blobstore.NewMemoryStore(), metrics.New(reg))
	return NewRouter(engine, reg)
}

func TestExecuteRejectsNonJSONContentType(t *testing.T) {
	router := newTestRouter()

	req := httptest.NewRequest(http.MethodPost, "/execute", strings.NewReader("{}"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
}

func TestExecuteRejectsMalformedJSON(t *testing.T) {
	router := newTestRouter()

	req := httptest.NewRequest(http.MethodPost, "/execute", strings.NewReader("not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMetricsEndpointServesPrometheusText(t *testing.T) {
	router := newTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "pentagon_requests_total")
}
