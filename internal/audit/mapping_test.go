package audit

import "testing"

func TestParseRoute(t *testing.T) {
	tests := []struct {
		method, pattern string
		want            ActionResource
	}{
		{"POST", "/api/cloud/{provider}/account", ActionResource{"create", "cloud.account"}},
		{"PUT", "/api/user/password", ActionResource{"update", "user.password"}},
		{"DELETE", "/api/admin/cloud/{provider}/users/{providerID}", ActionResource{"delete", "cloud.users"}},
		{"GET", "/api/admin/audit", ActionResource{"get", "audit"}},
		{"PATCH", "/admin/roles/{name}", ActionResource{"update", "roles"}},
		{"OPTIONS", "/api/user/*", ActionResource{"options", "user"}},
		{"POST", "", ActionResource{"create", "unknown"}},
		{"POST", "/api/{id}", ActionResource{"create", "unknown"}},
	}
	for _, tt := range tests {
		if got := ParseRoute(tt.method, tt.pattern); got != tt.want {
			t.Errorf("ParseRoute(%q, %q) = %+v, want %+v", tt.method, tt.pattern, got, tt.want)
		}
	}
}
