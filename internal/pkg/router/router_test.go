package router

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shandysiswandi/contactrelay/internal/pkg/clock"
	"github.com/shandysiswandi/contactrelay/internal/pkg/config"
	"github.com/shandysiswandi/contactrelay/internal/pkg/goerror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticID string

func (s staticID) Generate() string { return string(s) }

func newTestRouter(t *testing.T, yaml string) *Router {
	t.Helper()

	cfg, err := config.NewViperFromBytes("yaml", []byte(yaml))
	require.NoError(t, err)

	return NewRouter(Config{
		Config:       cfg,
		UUID:         staticID("generated-cid"),
		Clock:        clock.Func(func() time.Time { return time.UnixMilli(1760000000123) }),
		LivenessText: "relay up",
	})
}

func serve(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestRouter_Liveness(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, "app: {}")

	rec := serve(r, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "relay up", rec.Body.String())
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain"))

	rec = serve(r, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true,"timestamp":1760000000123}`, rec.Body.String())
}

func TestRouter_DefaultLivenessText(t *testing.T) {
	t.Parallel()

	r := NewRouter(Config{})

	rec := serve(r, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, DefaultLivenessText, rec.Body.String())

	rec = serve(r, httptest.NewRequest(http.MethodGet, "/health", nil))
	body := decode(t, rec)
	assert.Equal(t, true, body["ok"])
	assert.Positive(t, body["timestamp"])
}

func TestRouter_NotFoundAndMethodNotAllowed(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, "app: {}")

	rec := serve(r, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":"Endpoint not found"}`, rec.Body.String())

	rec = serve(r, httptest.NewRequest(http.MethodDelete, "/health", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, false, decode(t, rec)["success"])
}

func TestRouter_ErrorCodec(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, "app: {}")
	r.POST("/invalid", func(*Request) (any, error) {
		return nil, goerror.NewInvalidInput("Missing required fields", errors.New("name is a required field"))
	})
	r.POST("/relay", func(*Request) (any, error) {
		return nil, goerror.NewServer(errors.New("dial tcp: refused"), "dial tcp: refused")
	})
	r.POST("/plain", func(*Request) (any, error) {
		return nil, errors.New("boom")
	})

	rec := serve(r, httptest.NewRequest(http.MethodPost, "/invalid", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":"Missing required fields"}`, rec.Body.String())

	rec = serve(r, httptest.NewRequest(http.MethodPost, "/relay", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":"dial tcp: refused"}`, rec.Body.String())

	rec = serve(r, httptest.NewRequest(http.MethodPost, "/plain", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":"Internal server error"}`, rec.Body.String())
}

type createdResponse struct {
	ID string `json:"id"`
}

func (createdResponse) StatusCode() int { return http.StatusCreated }

func TestRouter_OKCodec(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, "app: {}")
	r.POST("/created", func(*Request) (any, error) { return createdResponse{ID: "1"}, nil })
	r.POST("/empty", func(*Request) (any, error) { return nil, nil })

	rec := serve(r, httptest.NewRequest(http.MethodPost, "/created", nil))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"id":"1"}`, rec.Body.String())

	rec = serve(r, httptest.NewRequest(http.MethodPost, "/empty", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestRouter_Recover(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, "app: {}")
	r.GET("/panic", func(*Request) (any, error) { panic("kaboom") })

	rec := serve(r, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":"Internal server error"}`, rec.Body.String())
}

func TestRouter_CorrelationID(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, "app: {}")

	rec := serve(r, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, "generated-cid", rec.Header().Get(HeaderCorrelationID))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "  from-proxy ")
	rec = serve(r, req)
	assert.Equal(t, "from-proxy", rec.Header().Get(HeaderCorrelationID))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(HeaderCorrelationID, "has space")
	req.Header.Set("X-Request-ID", "proxy-id")
	rec = serve(r, req)
	assert.Equal(t, "proxy-id", rec.Header().Get(HeaderCorrelationID))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(HeaderCorrelationID, strings.Repeat("c", 300))
	rec = serve(r, req)
	assert.Equal(t, strings.Repeat("c", maxCorrelationIDLen), rec.Header().Get(HeaderCorrelationID))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(HeaderCorrelationID, "client-cid")
	rec = serve(r, req)
	assert.Equal(t, "client-cid", rec.Header().Get(HeaderCorrelationID))
}

func TestRouter_Maintenance(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, `
app:
  maintenance:
    endpoints: "/api/send-email"
`)
	r.POST("/api/send-email", func(*Request) (any, error) { return createdResponse{}, nil })

	rec := serve(r, httptest.NewRequest(http.MethodPost, "/api/send-email", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":"Service is under maintenance"}`, rec.Body.String())

	rec = serve(r, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequest_DecodeBody(t *testing.T) {
	t.Parallel()

	type payload struct {
		Name string `json:"name"`
	}

	r := newTestRouter(t, "app: {}")
	r.POST("/decode", func(req *Request) (any, error) {
		var p payload
		if err := req.DecodeBody(&p); err != nil {
			return nil, err
		}
		return p, nil
	})

	tests := []struct {
		name     string
		body     string
		wantCode int
		wantBody string
	}{
		{name: "unknown fields ignored", body: `{"name":"Jane","extra":1}`, wantCode: http.StatusOK, wantBody: `{"name":"Jane"}`},
		{name: "malformed", body: `{"name":`, wantCode: http.StatusBadRequest, wantBody: `{"success":false,"error":"Invalid request body"}`},
		{name: "empty", body: ``, wantCode: http.StatusBadRequest, wantBody: `{"success":false,"error":"Invalid request body"}`},
		{name: "trailing document", body: `{"name":"a"}{"name":"b"}`, wantCode: http.StatusBadRequest, wantBody: `{"success":false,"error":"Invalid request body"}`},
		{
			name:     "too large",
			body:     `{"name":"` + strings.Repeat("a", int(MaxBodyBytes)) + `"}`,
			wantCode: http.StatusBadRequest,
			wantBody: `{"success":false,"error":"Request body too large"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodPost, "/decode", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")

			rec := serve(r, req)
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.JSONEq(t, tt.wantBody, rec.Body.String())
		})
	}
}

func TestClientIP(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1", clientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "203.0.113.7", clientIP(req))

	req.Header.Set("X-Real-IP", "198.51.100.2")
	assert.Equal(t, "198.51.100.2", clientIP(req))

	req.Header.Set("True-Client-IP", "not-an-ip")
	assert.Equal(t, "198.51.100.2", clientIP(req))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "[::ffff:192.0.2.9]:443"
	assert.Equal(t, "192.0.2.9", clientIP(req))

	req.RemoteAddr = "pipe"
	assert.Empty(t, clientIP(req))
}

func TestMiddlewareClientIP_StoresAddress(t *testing.T) {
	t.Parallel()

	var got string
	h := middlewareClientIP(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = ClientIP(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Real-IP", "198.51.100.2")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "198.51.100.2", got)
}

func TestRecover_LoggedAsServerError(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	r := newTestRouter(t, "app: {}")
	r.GET("/panic", func(*Request) (any, error) { panic("kaboom") })

	rec := serve(r, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var sawPanic, sawResponse bool
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		switch entry["msg"] {
		case "handler panicked":
			sawPanic = true
			assert.Equal(t, "kaboom", entry["panic"])
		case "response sent":
			sawResponse = true
			assert.Equal(t, "ERROR", entry["level"])
			assert.EqualValues(t, http.StatusInternalServerError, entry["status"])
		}
	}
	assert.True(t, sawPanic)
	assert.True(t, sawResponse)
}

func TestChain_Order(t *testing.T) {
	t.Parallel()

	var order []string
	mw := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		order = append(order, "handler")
	}), mw("outer"), nil, mw("inner"))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"outer", "inner", "handler"}, order)
}

func TestObservability_MasksInquiryFields(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	r := newTestRouter(t, `instrument: {log_mask_fields: "name,email,phone,message"}`)
	r.POST("/api/send-email", func(req *Request) (any, error) {
		var body map[string]string
		if err := req.DecodeBody(&body); err != nil {
			return nil, err
		}
		return map[string]string{"received": body["email"]}, nil
	})

	req := httptest.NewRequest(http.MethodPost, "/api/send-email",
		strings.NewReader(`{"name":"Jane","email":"jane@example.org","phone":"555-0100","message":"secret plans"}`))
	rec := serve(r, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"received":"jane@example.org"}`, rec.Body.String())

	logs := buf.String()
	assert.Contains(t, logs, `"email":"***"`)
	assert.Contains(t, logs, `"message":"***"`)
	assert.NotContains(t, logs, "555-0100")
	assert.NotContains(t, logs, "secret plans")
	assert.NotContains(t, logs, `"name":"Jane"`)
}
