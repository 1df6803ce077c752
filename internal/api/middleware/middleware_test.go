package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActor_MissingHeader(t *testing.T) {
	called := false
	h := Actor(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/backups/x", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, called)
}

func TestActor_InvalidHeader(t *testing.T) {
	h := Actor(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(ActorHeader, "bad actor\nwith newline")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestActor_StoresActorInContext(t *testing.T) {
	var got string
	h := Actor(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = GetActorID(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(ActorHeader, "user-42")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-42", got)
}

func TestRequestLogger_LogsStatusAndBytes(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	h := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		zerolog.Ctx(r.Context()).Debug().Msg("inside")
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("short"))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	out := buf.String()
	assert.Contains(t, out, `"status":418`)
	assert.Contains(t, out, `"bytes":5`)
	assert.Contains(t, out, `"path":"/healthz"`)
	assert.Contains(t, out, `"message":"inside"`)
}

func TestMetrics_UsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Metrics)
	r.Get("/backups/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/backups/abc", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)

	c, err := httpRequestsTotal.GetMetricWithLabelValues(http.MethodGet, "/backups/{id}", "204")
	require.NoError(t, err)
	assert.NotNil(t, c)
}

func TestStatusWriter_Unwrap(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := &statusWriter{ResponseWriter: rec, status: http.StatusOK}
	assert.Same(t, rec, sw.Unwrap())
}
