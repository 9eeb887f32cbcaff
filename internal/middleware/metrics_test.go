package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type observedRequest struct {
	method string
	path   string
	status int
}

type requestObserverStub struct {
	seen []observedRequest
}

func (s *requestObserverStub) ObserveHTTPRequest(method, path string, status int, _ time.Duration) {
	s.seen = append(s.seen, observedRequest{method: method, path: path, status: status})
}

func TestMetricsUsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	observer := &requestObserverStub{}
	router := gin.New()
	router.Use(Metrics(observer))
	router.GET("/schedules/runs/:id/classes", func(c *gin.Context) { c.Status(http.StatusOK) })

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/schedules/runs/42/classes", nil))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope/123", nil))

	require.Len(t, observer.seen, 2)
	assert.Equal(t, observedRequest{method: http.MethodGet, path: "/schedules/runs/:id/classes", status: http.StatusOK}, observer.seen[0])
	assert.Equal(t, "unmatched", observer.seen[1].path)
	assert.Equal(t, http.StatusNotFound, observer.seen[1].status)
}

func TestMetricsNilObserver(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Metrics(nil))
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
}
