package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "2xx", statusClass(http.StatusNoContent))
	assert.Equal(t, "3xx", statusClass(http.StatusFound))
	assert.Equal(t, "4xx", statusClass(http.StatusLocked))
	assert.Equal(t, "5xx", statusClass(http.StatusServiceUnavailable))
}

func TestMiddlewareCountsByRoutePattern(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())
	r.GET("/v1/accounts/:account/freeze", func(c *gin.Context) { c.Status(http.StatusLocked) })

	for _, acct := range []string{"0xa", "0xb"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/accounts/"+acct+"/freeze", nil))
		require.Equal(t, http.StatusLocked, w.Code)
	}

	body := scrape(t)
	assert.Contains(t, body, `vaultguard_http_requests_total{method="GET",path="/v1/accounts/:account/freeze",status="4xx"} 2`)
	assert.NotContains(t, body, "0xa")
}

func scrape(t *testing.T) string {
	t.Helper()
	w := httptest.NewRecorder()
	Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	return w.Body.String()
}

func TestHandlerExposesCollectors(t *testing.T) {
	AnalysesTotal.WithLabelValues("BLOCK").Inc()

	assert.True(t, strings.Contains(scrape(t), `vaultguard_analyses_total{action="BLOCK"}`))
}
