package access

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hookrelay/internal/config"
	"hookrelay/internal/logger"
	"hookrelay/pkg/ratelimit"
)

func testConfig() config.AccessConfig {
	return config.AccessConfig{
		SharedSecret:    "secret",
		RequireAPIKey:   true,
		AllowedOrigins:  []string{"https://app.example.com", "http://localhost:5173"},
		AllowedReferers: []string{"https://app.example.com/", "http://localhost:5173/"},
	}
}

type failingStore struct{}

func (failingStore) Allow(context.Context, string) (ratelimit.Result, error) {
	return ratelimit.Result{}, errors.New("store unavailable")
}

func TestCheckOrigin(t *testing.T) {
	gate := NewGate(testConfig(), nil)

	tests := []struct {
		name    string
		origin  string
		echo    string
		allowed bool
	}{
		{name: "missing origin", origin: "", echo: "", allowed: true},
		{name: "listed origin", origin: "https://app.example.com", echo: "https://app.example.com", allowed: true},
		{name: "second listed origin", origin: "http://localhost:5173", echo: "http://localhost:5173", allowed: true},
		{name: "unlisted origin", origin: "https://evil.example", echo: "", allowed: false},
		{name: "prefix is not enough", origin: "https://app.example.com.evil.example", echo: "", allowed: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			echo, ok := gate.CheckOrigin(tt.origin)
			assert.Equal(t, tt.allowed, ok)
			assert.Equal(t, tt.echo, echo)
		})
	}
}

func TestCheckOrigin_EmptyAllowlist(t *testing.T) {
	gate := NewGate(config.AccessConfig{}, nil)

	echo, ok := gate.CheckOrigin("https://anything.example")
	assert.True(t, ok)
	assert.Empty(t, echo)
}

func TestCheckReferer(t *testing.T) {
	gate := NewGate(testConfig(), nil)

	assert.True(t, gate.CheckReferer(""))
	assert.True(t, gate.CheckReferer("https://app.example.com/docs/page"))
	assert.True(t, gate.CheckReferer("http://localhost:5173/"))
	assert.False(t, gate.CheckReferer("https://evil.example/https://app.example.com/"))

	open := NewGate(config.AccessConfig{}, nil)
	assert.True(t, open.CheckReferer("https://evil.example/"))
}

func TestCheckCredential(t *testing.T) {
	gate := NewGate(testConfig(), nil)
	assert.True(t, gate.CheckCredential("secret"))
	assert.False(t, gate.CheckCredential("Secret"))
	assert.False(t, gate.CheckCredential(""))

	noSecret := NewGate(config.AccessConfig{RequireAPIKey: true}, nil)
	assert.False(t, noSecret.CheckCredential(""))
}

func TestEvaluate_JSONChecks(t *testing.T) {
	gate := NewGate(testConfig(), nil)
	checks := Checks{RateLimit: true, Origin: true, Credential: true}

	tests := []struct {
		name   string
		meta   RequestMeta
		reason Reason
	}{
		{
			name:   "allowed",
			meta:   RequestMeta{Origin: "https://app.example.com", APIKey: "secret"},
			reason: ReasonOK,
		},
		{
			name:   "bad origin wins over bad key",
			meta:   RequestMeta{Origin: "https://evil.example", APIKey: "wrong"},
			reason: ReasonBadOrigin,
		},
		{
			name:   "bad key",
			meta:   RequestMeta{APIKey: "wrong"},
			reason: ReasonBadCredential,
		},
		{
			name:   "referer ignored for json",
			meta:   RequestMeta{APIKey: "secret", Referer: "https://evil.example/"},
			reason: ReasonOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := gate.Evaluate(context.Background(), tt.meta, checks)
			assert.Equal(t, tt.reason, d.Reason)
			assert.Equal(t, tt.reason == ReasonOK, d.Allowed)
		})
	}
}

func TestEvaluate_QueryChecks(t *testing.T) {
	gate := NewGate(testConfig(), nil)
	checks := Checks{RateLimit: true, Referer: true}

	d := gate.Evaluate(context.Background(), RequestMeta{Referer: "https://app.example.com/x"}, checks)
	assert.True(t, d.Allowed)

	d = gate.Evaluate(context.Background(), RequestMeta{Referer: "https://evil.example/"}, checks)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonBadReferer, d.Reason)

	d = gate.Evaluate(context.Background(), RequestMeta{}, checks)
	assert.True(t, d.Allowed, "query transport needs no api key")
}

func TestEvaluate_CredentialNotRequired(t *testing.T) {
	cfg := testConfig()
	cfg.RequireAPIKey = false
	gate := NewGate(cfg, nil)

	d := gate.Evaluate(context.Background(), RequestMeta{}, Checks{Credential: true})
	assert.True(t, d.Allowed)
	assert.False(t, gate.RequiresAPIKey())
}

func TestEvaluate_RateLimitRunsFirst(t *testing.T) {
	store := ratelimit.NewMemoryStore(ratelimit.RateLimitConfig{Quota: 1, Window: time.Minute})
	gate := NewGate(testConfig(), ratelimit.NewLimiter(store, "allow", logger.NopLogger()))
	checks := Checks{RateLimit: true, Origin: true, Credential: true}
	meta := RequestMeta{ClientKey: "203.0.113.7", APIKey: "wrong"}

	d := gate.Evaluate(context.Background(), meta, checks)
	assert.Equal(t, ReasonBadCredential, d.Reason)
	require.NotNil(t, d.RateLimit)
	assert.True(t, d.RateLimit.Allowed)

	d = gate.Evaluate(context.Background(), meta, checks)
	assert.Equal(t, ReasonRateLimited, d.Reason)
	require.NotNil(t, d.RateLimit)
	assert.False(t, d.RateLimit.Allowed)

	other := gate.Evaluate(context.Background(), RequestMeta{ClientKey: "203.0.113.8", APIKey: "secret"}, checks)
	assert.True(t, other.Allowed)
}

func TestEvaluate_StoreErrorFallback(t *testing.T) {
	checks := Checks{RateLimit: true}

	allowGate := NewGate(testConfig(), ratelimit.NewLimiter(failingStore{}, "allow", logger.NopLogger()))
	assert.True(t, allowGate.Evaluate(context.Background(), RequestMeta{ClientKey: "a"}, checks).Allowed)

	denyGate := NewGate(testConfig(), ratelimit.NewLimiter(failingStore{}, "deny", logger.NopLogger()))
	d := denyGate.Evaluate(context.Background(), RequestMeta{ClientKey: "a"}, checks)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonRateLimited, d.Reason)
}

func TestCORSMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	gate := NewGate(testConfig(), nil)

	router := gin.New()
	router.Use(CORSMiddleware(gate))
	router.POST("/relay", func(c *gin.Context) { c.Status(http.StatusTeapot) })
	router.OPTIONS("/relay", func(c *gin.Context) { c.Status(http.StatusTeapot) })

	tests := []struct {
		name         string
		method       string
		origin       string
		expectedCode int
		echo         string
	}{
		{name: "preflight reaches route handler", method: http.MethodOptions, origin: "https://app.example.com", expectedCode: http.StatusTeapot, echo: "https://app.example.com"},
		{name: "preflight from unknown origin", method: http.MethodOptions, origin: "https://evil.example", expectedCode: http.StatusTeapot, echo: ""},
		{name: "post passes through", method: http.MethodPost, origin: "https://app.example.com", expectedCode: http.StatusTeapot, echo: "https://app.example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/relay", nil)
			req.Header.Set("Origin", tt.origin)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedCode, w.Code)
			assert.Equal(t, tt.echo, w.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, "POST,OPTIONS,GET", w.Header().Get("Access-Control-Allow-Methods"))
			assert.NotEqual(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}
