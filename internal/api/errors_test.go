package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWriteError_Envelope(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, context.Background(), http.StatusNotFound, ErrCodeAgentNotFound, "Agent not found")

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("content type = %q", ct)
	}

	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode envelope: %v", err)
	}
	if resp.Error.Code != ErrCodeAgentNotFound {
		t.Errorf("code = %s, want %s", resp.Error.Code, ErrCodeAgentNotFound)
	}
	if resp.Error.Message != "Agent not found" {
		t.Errorf("message = %q", resp.Error.Message)
	}
}

func TestStatusCodeMapping(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{ErrCodeValidation, http.StatusBadRequest},
		{ErrCodeInvalidSort, http.StatusBadRequest},
		{ErrCodeInvalidWindow, http.StatusBadRequest},
		{ErrCodeAuthFailed, http.StatusUnauthorized},
		{ErrCodeForbidden, http.StatusForbidden},
		{ErrCodeAgentNotFound, http.StatusNotFound},
		{ErrCodeUnknownCategory, http.StatusNotFound},
		{ErrCodeRateLimited, http.StatusTooManyRequests},
		{ErrCodePassInProgress, http.StatusConflict},
		{ErrCodeNoRankingData, http.StatusServiceUnavailable},
		{ErrCodeInternal, http.StatusInternalServerError},
		{"something_else", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			if got := StatusCodeMapping(tt.code); got != tt.want {
				t.Errorf("StatusCodeMapping(%s) = %d, want %d", tt.code, got, tt.want)
			}
		})
	}
}
