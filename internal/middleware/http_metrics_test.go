package middleware

import "testing"

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/", "/"},
		{"/agents/top", "/agents/top"},
		{"/agents/featured", "/agents/featured"},
		{"/trending", "/trending"},
		{"/search", "/search"},
		{"/stats", "/stats"},
		{"/agents/agent-123", "/agents/{id}"},
		{"/agents/agent-123/referral", "/agents/{id}/referral"},
		{"/categories", "/categories"},
		{"/categories/coding", "/categories/{name}"},
		{"/featured/checkout", "/featured/checkout"},
		{"/admin/recompute", "/admin/recompute"},
		{"/metrics", "/metrics"},
		{"/unknown/route", "/unknown/route"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := normalizePath(tt.path); got != tt.want {
				t.Errorf("normalizePath(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}
