package middleware

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()

	if got := GetAdminSubject(ctx); got != "" {
		t.Errorf("GetAdminSubject(empty) = %q, want empty", got)
	}
	if got := GetErrorCode(ctx); got != "" {
		t.Errorf("GetErrorCode(empty) = %q, want empty", got)
	}

	ctx = SetAdminSubject(ctx, "ops")
	ctx = SetErrorCode(ctx, "not_found")

	if got := GetAdminSubject(ctx); got != "ops" {
		t.Errorf("GetAdminSubject() = %q, want ops", got)
	}
	if got := GetErrorCode(ctx); got != "not_found" {
		t.Errorf("GetErrorCode() = %q, want not_found", got)
	}
}

func TestLogging_ErrorCodePropagation(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	// The handler sets the error code mid-request and pushes the updated
	// context back through the writer, the way WriteError does.
	handler := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := SetErrorCode(r.Context(), "agent_not_found")
		UpdateResponseContext(w, ctx)
		w.WriteHeader(http.StatusNotFound)
	}))

	req := httptest.NewRequest(http.MethodGet, "/agents/nope", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	out := buf.String()
	if !strings.Contains(out, `"status":404`) {
		t.Errorf("log missing status: %s", out)
	}
	if !strings.Contains(out, `"error_code":"agent_not_found"`) {
		t.Errorf("log missing error code: %s", out)
	}
	if !strings.Contains(out, `"level":"WARN"`) {
		t.Errorf("4xx should log at WARN: %s", out)
	}
}

func TestLogging_SuccessOmitsErrorCode(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	handler := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	out := buf.String()
	if strings.Contains(out, "error_code") {
		t.Errorf("success log carries error code: %s", out)
	}
	if !strings.Contains(out, `"level":"INFO"`) {
		t.Errorf("2xx should log at INFO: %s", out)
	}
}

func TestUpdateResponseContext_PlainWriter(t *testing.T) {
	// A writer that is not a middleware wrapper must be a no-op, not a panic.
	rec := httptest.NewRecorder()
	UpdateResponseContext(rec, SetErrorCode(context.Background(), "x"))
}

func TestResponseWriter_FirstStatusWins(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := newResponseWriter(rec)

	rw.WriteHeader(http.StatusTeapot)
	rw.WriteHeader(http.StatusOK)

	if rw.statusCode != http.StatusTeapot {
		t.Errorf("statusCode = %d, want first write to win", rw.statusCode)
	}
	if rec.Code != http.StatusTeapot {
		t.Errorf("recorded code = %d, want %d", rec.Code, http.StatusTeapot)
	}
}
