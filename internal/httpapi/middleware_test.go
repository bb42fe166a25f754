package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aegislabs/promptgate/internal/core"
)

func TestLoggingMiddlewareStampsRequestIDHeader(t *testing.T) {
	handler := LoggingMiddleware(&core.NoOpLogger{}, true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if core.RequestIDFromContext(r.Context()) == "" {
			t.Error("expected a request id to be attached to the handler's context")
		}
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/internal/health", nil)
	handler.ServeHTTP(rec, req)

	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected LoggingMiddleware to set an X-Request-ID response header")
	}
}

func TestLoggingMiddlewarePreservesIncomingRequestID(t *testing.T) {
	var seen string
	handler := LoggingMiddleware(&core.NoOpLogger{}, true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = core.RequestIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/internal/health", nil)
	req.Header.Set("X-Request-ID", "client-supplied-id")
	handler.ServeHTTP(rec, req)

	if seen != "client-supplied-id" {
		t.Fatalf("expected the incoming X-Request-ID to be preserved, got %q", seen)
	}
	if rec.Header().Get("X-Request-ID") != "client-supplied-id" {
		t.Fatalf("expected response header to echo the incoming request id, got %q", rec.Header().Get("X-Request-ID"))
	}
}

func TestLoggingMiddlewareRecordsPrincipalSetByAuth(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rec, ok := r.Context().Value(principalRecorderKey{}).(*principalRecorder); ok {
			rec.id = "abc12345..."
		}
		w.WriteHeader(http.StatusOK)
	})

	var loggedPrincipal interface{}
	logger := &recordingLogger{onInfo: func(fields map[string]interface{}) { loggedPrincipal = fields["principal"] }}

	handler := LoggingMiddleware(logger, true)(inner)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/text_processing/process", nil)
	handler.ServeHTTP(rec, req)

	if loggedPrincipal != "abc12345..." {
		t.Fatalf("expected the access log to carry the principal set deeper in the chain, got %v", loggedPrincipal)
	}
}

// recordingLogger is a minimal core.Logger double for asserting on log
// field contents without pulling in a full logging framework.
type recordingLogger struct {
	core.NoOpLogger
	onInfo func(fields map[string]interface{})
}

func (l *recordingLogger) InfoWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	if l.onInfo != nil {
		l.onInfo(fields)
	}
}
