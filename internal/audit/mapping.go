package audit

import (
	"net/http"
	"strings"
)

// ActionResource holds action and resource derived from an HTTP route.
type ActionResource struct {
	Action   string
	Resource string
}

// ParseRoute returns action and resource for an HTTP method and chi route pattern
// (e.g. POST /api/cloud/{provider}/account -> create, cloud.account).
// Path parameters, the /api prefix and the admin segment are dropped from the resource.
func ParseRoute(method, pattern string) ActionResource {
	return ActionResource{Action: methodToAction(method), Resource: patternToResource(pattern)}
}

func methodToAction(method string) string {
	switch method {
	case http.MethodGet, http.MethodHead:
		return "get"
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return strings.ToLower(method)
	}
}

func patternToResource(pattern string) string {
	pattern = strings.TrimSuffix(pattern, "/*")
	var parts []string
	for i, seg := range strings.Split(strings.Trim(pattern, "/"), "/") {
		switch {
		case seg == "":
		case i == 0 && seg == "api":
		case seg == "admin":
		case strings.HasPrefix(seg, "{"):
		default:
			parts = append(parts, seg)
		}
	}
	if len(parts) == 0 {
		return "unknown"
	}
	return strings.Join(parts, ".")
}
