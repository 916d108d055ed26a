package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devflow/devflow-api/pkg/auth"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubVerifier struct {
	claims *auth.Claims
}

func (v stubVerifier) Verify(token string) (*auth.Claims, error) {
	if token != "good" {
		return nil, auth.ErrInvalidToken
	}
	return v.claims, nil
}

type errorBody struct {
	Status  string            `json:"status"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors"`
}

func serve(t *testing.T, engine *gin.Engine, req *http.Request) (*httptest.ResponseRecorder, errorBody) {
	t.Helper()
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	var body errorBody
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	}
	return w, body
}

func TestAuthenticate(t *testing.T) {
	userID := uuid.New()
	m := NewAuthMiddleware(stubVerifier{claims: &auth.Claims{UserID: userID, Email: "a@example.com"}}, nil)

	engine := gin.New()
	engine.GET("/me", m.Authenticate(), func(c *gin.Context) {
		id, ok := UserID(c)
		require.True(t, ok)
		c.String(http.StatusOK, id.String())
	})

	tests := []struct {
		name    string
		header  string
		status  int
		message string
	}{
		{"missing header", "", http.StatusUnauthorized, "missing authorization header"},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized, "invalid authorization format"},
		{"bad token", "Bearer nope", http.StatusUnauthorized, "invalid token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w, body := serve(t, engine, req)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.message, body.Message)
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "bearer good")
	w, _ := serve(t, engine, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, userID.String(), w.Body.String())
}

func TestRequireAdmin(t *testing.T) {
	admin := uuid.New()
	other := uuid.New()

	for _, tc := range []struct {
		user   uuid.UUID
		status int
	}{
		{admin, http.StatusNoContent},
		{other, http.StatusForbidden},
	} {
		m := NewAuthMiddleware(stubVerifier{claims: &auth.Claims{UserID: tc.user}}, []uuid.UUID{admin})
		engine := gin.New()
		engine.POST("/admin", m.Authenticate(), m.RequireAdmin(), func(c *gin.Context) {
			c.Status(http.StatusNoContent)
		})

		req := httptest.NewRequest(http.MethodPost, "/admin", nil)
		req.Header.Set("Authorization", "Bearer good")
		w, _ := serve(t, engine, req)
		assert.Equal(t, tc.status, w.Code)
	}
}

func TestRateLimit(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Rate: 0.001, Burst: 1})
	engine := gin.New()
	engine.GET("/", rl.RateLimit(), func(c *gin.Context) { c.Status(http.StatusOK) })

	request := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = ip + ":1234"
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusOK, request("10.0.0.1").Code)

	w := request("10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, request("10.0.0.2").Code)
}

func TestCORS(t *testing.T) {
	config := DefaultCORSConfig()
	config.AllowOrigins = []string{"https://app.devflow.dev"}

	engine := gin.New()
	engine.Use(CORS(config))
	engine.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://app.devflow.dev")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://app.devflow.dev", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
	assert.Equal(t, "86400", w.Header().Get("Access-Control-Max-Age"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "https://app.devflow.dev")
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestValidation(t *testing.T) {
	type request struct {
		Type  string `json:"type" binding:"required,notiftype"`
		Count int    `json:"count" binding:"min=1"`
	}

	engine := gin.New()
	engine.Use(Validation(DefaultValidationConfig()))
	engine.POST("/", func(c *gin.Context) {
		var req request
		if err := c.ShouldBindJSON(&req); err != nil {
			_ = c.Error(err).SetType(gin.ErrorTypeBind)
			return
		}
		c.Status(http.StatusNoContent)
	})

	post := func(body string) (*httptest.ResponseRecorder, errorBody) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		return serve(t, engine, req)
	}

	w, _ := post(`{"type":"welcome","count":1}`)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w, body := post(`{"type":"party","count":0}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid request", body.Message)
	assert.ElementsMatch(t, []ValidationError{
		{Field: "type", Message: "Unknown notification type"},
		{Field: "count", Message: "Value is too small"},
	}, body.Errors)

	w, body = post(`{"type":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, body.Errors)
}

func TestSizeLimit(t *testing.T) {
	engine := gin.New()
	engine.Use(SizeLimit(8))
	engine.POST("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w, body := serve(t, engine, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("0123456789")))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, "error", body.Status)

	w, _ = serve(t, engine, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("01234")))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRecoveryAndErrorHandler(t *testing.T) {
	engine := gin.New()
	engine.Use(Recovery(), RequestID(), ErrorHandler(), SecurityHeaders(DefaultSecurityConfig()))
	engine.GET("/panic", func(c *gin.Context) { panic("boom") })
	engine.GET("/fail", func(c *gin.Context) { _ = c.Error(errors.New("db down")) })

	w, body := serve(t, engine, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal server error", body.Message)

	w, body = serve(t, engine, httptest.NewRequest(http.MethodGet, "/fail", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "error", body.Status)
	assert.NotEmpty(t, w.Header().Get(HeaderXRequestID))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}

func TestRequestIDPropagation(t *testing.T) {
	engine := gin.New()
	engine.Use(RequestID())
	engine.GET("/", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(ContextRequestID)) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderXRequestID, "abc-123")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Body.String())
	assert.Equal(t, "abc-123", w.Header().Get(HeaderXRequestID))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderXRequestID, strings.Repeat("x", 200))
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	_, err := uuid.Parse(w.Body.String())
	assert.NoError(t, err)
}
