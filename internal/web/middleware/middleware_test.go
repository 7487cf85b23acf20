package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/JonMunkholm/tradejournal/internal/config"
)

func echoRemoteAddr() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.RemoteAddr))
	})
}

func TestTrustedRealIP(t *testing.T) {
	tests := []struct {
		name     string
		trusted  []string
		remote   string
		headers  map[string]string
		expected string
	}{
		{
			name:     "no trusted proxies ignores headers",
			remote:   "10.0.0.5:4321",
			headers:  map[string]string{"X-Real-IP": "203.0.113.7"},
			expected: "10.0.0.5:4321",
		},
		{
			name:     "trusted proxy uses X-Real-IP",
			trusted:  []string{"10.0.0.0/8"},
			remote:   "10.0.0.5:4321",
			headers:  map[string]string{"X-Real-IP": "203.0.113.7"},
			expected: "203.0.113.7",
		},
		{
			name:     "trusted proxy uses first forwarded hop",
			trusted:  []string{"10.0.0.5"},
			remote:   "10.0.0.5:4321",
			headers:  map[string]string{"X-Forwarded-For": "198.51.100.2, 10.0.0.9"},
			expected: "198.51.100.2",
		},
		{
			name:     "untrusted source keeps remote address",
			trusted:  []string{"10.0.0.0/8"},
			remote:   "192.0.2.1:1234",
			headers:  map[string]string{"X-Real-IP": "203.0.113.7"},
			expected: "192.0.2.1:1234",
		},
		{
			name:     "invalid header value is ignored",
			trusted:  []string{"10.0.0.0/8", "not-a-cidr"},
			remote:   "10.0.0.5:4321",
			headers:  map[string]string{"X-Real-IP": "bogus"},
			expected: "10.0.0.5:4321",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()

			TrustedRealIP(tt.trusted)(echoRemoteAddr()).ServeHTTP(rec, req)

			assert.Equal(t, tt.expected, rec.Body.String())
		})
	}
}

func TestAPIKeyAuth(t *testing.T) {
	cfg := &config.SecurityConfig{RequireAPIKey: true, APIKeys: []string{"alpha", "beta"}}
	h := APIKeyAuth(cfg)(echoRemoteAddr())

	tests := []struct {
		key    string
		status int
	}{
		{"", http.StatusUnauthorized},
		{"gamma", http.StatusForbidden},
		{"alpha", http.StatusOK},
		{"beta", http.StatusOK},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/api/tables", nil)
		if tt.key != "" {
			req.Header.Set(APIKeyHeader, tt.key)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, tt.status, rec.Code, "key %q", tt.key)
	}

	disabled := APIKeyAuth(&config.SecurityConfig{})(echoRemoteAddr())
	rec := httptest.NewRecorder()
	disabled.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLogger_CapturesStatusAndSize(t *testing.T) {
	h := Logger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "short and stout", rec.Body.String())
}

func TestNewCORS(t *testing.T) {
	preflight := func(h http.Handler, origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodOptions, "/api/import", nil)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	allowed := NewCORS([]string{"https://journal.example.com"}).Handler(echoRemoteAddr())
	rec := preflight(allowed, "https://journal.example.com")
	assert.Equal(t, "https://journal.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = preflight(allowed, "https://evil.example.com")
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	closed := NewCORS(nil).Handler(echoRemoteAddr())
	rec = preflight(closed, "https://journal.example.com")
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
