// Package engine decides whether a verified caller may reach a path, using an OPA Rego policy.
package engine

import "context"

// Input is what the policy sees for one request.
type Input struct {
	Path   string
	Method string
	Roles  []string
}

// Evaluator decides route access for verified callers.
type Evaluator interface {
	// Allow reports whether a caller holding roles may reach the request path.
	// An evaluation error must be treated as a denial.
	Allow(ctx context.Context, in Input) (bool, error)
}
