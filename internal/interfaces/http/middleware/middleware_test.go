package middleware

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/ragcore/backend/internal/infrastructure/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/simplifiedchinese"
)

func newEngine(mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(mw...)
	return r
}

func echoBody(c *gin.Context) {
	data, _ := io.ReadAll(c.Request.Body)
	c.String(http.StatusOK, string(data))
}

func TestEnsureUTF8Body_PassesUTF8Through(t *testing.T) {
	r := newEngine(EnsureUTF8Body())
	r.POST("/", echoBody)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"query":"你好"}`)))

	assert.Equal(t, `{"query":"你好"}`, w.Body.String())
}

func TestEnsureUTF8Body_ConvertsGBK(t *testing.T) {
	gbk, err := simplifiedchinese.GBK.NewEncoder().Bytes([]byte(`{"query":"检索"}`))
	require.NoError(t, err)

	r := newEngine(EnsureUTF8Body())
	r.POST("/", echoBody)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(gbk)))

	assert.Equal(t, `{"query":"检索"}`, w.Body.String())
}

func TestEnsureUTF8Body_UsesDeclaredCharset(t *testing.T) {
	latin1, err := charmap.ISO8859_1.NewEncoder().Bytes([]byte(`{"query":"café"}`))
	require.NoError(t, err)

	r := newEngine(EnsureUTF8Body())
	r.POST("/", echoBody)

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(latin1))
	req.Header.Set("Content-Type", "application/json; charset=ISO-8859-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, `{"query":"café"}`, w.Body.String())
}

func TestRequestID_GeneratesAndEchoes(t *testing.T) {
	r := newEngine(RequestID())
	var fromCtx string
	r.GET("/", func(c *gin.Context) {
		fromCtx = log.RequestIDFromContext(c.Request.Context())
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, w.Header().Get(HeaderRequestID))
	assert.Equal(t, w.Header().Get(HeaderRequestID), fromCtx)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, "req-1")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "req-1", w.Header().Get(HeaderRequestID))
}

func TestTenantHeader(t *testing.T) {
	r := newEngine(TenantHeader())
	r.GET("/", func(c *gin.Context) {
		assert.Equal(t, TenantID(c), log.TenantIDFromContext(c.Request.Context()))
		c.String(http.StatusOK, TenantID(c))
	})

	t.Run("missing header", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("tenant-id header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(HeaderTenantID, "tenant-a")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "tenant-a", w.Body.String())
	})

	t.Run("X-Tenant-ID fallback", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(HeaderXTenantID, "tenant-b")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, "tenant-b", w.Body.String())
	})
}
