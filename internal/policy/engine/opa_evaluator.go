package engine

import (
	"context"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
)

const (
	policyPackage = "pikacloud.authz"
	allowQuery    = "data.pikacloud.authz.allow"
)

// Default Rego policy: admin prefixes require the "admin" role, everything else admits any
// verified caller. Prefixes match as plain string prefixes.
const defaultRegoPolicy = `package pikacloud.authz

default allow := false

admin_path if {
	some prefix in input.admin_prefixes
	startswith(input.path, prefix)
}

allow if not admin_path

allow if {
	admin_path
	"admin" in input.roles
}
`

// OPAEvaluator evaluates a compiled route policy. It is safe for concurrent use.
type OPAEvaluator struct {
	adminPrefixes []string
	query         rego.PreparedEvalQuery
}

// NewOPAEvaluator compiles policy (the default when empty) and prepares the allow query.
// A custom policy must declare package pikacloud.authz and define allow.
func NewOPAEvaluator(ctx context.Context, adminPrefixes []string, policy string) (*OPAEvaluator, error) {
	if policy == "" {
		policy = defaultRegoPolicy
	}
	compiler, err := ast.CompileModules(map[string]string{"authz.rego": policy})
	if err != nil {
		return nil, fmt.Errorf("compile policy: %w", err)
	}
	q, err := rego.New(
		rego.Query(allowQuery),
		rego.Compiler(compiler),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare policy: %w", err)
	}
	e := &OPAEvaluator{
		adminPrefixes: append([]string(nil), adminPrefixes...),
		query:         q,
	}
	if err := e.HealthCheck(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

// NewOPAEvaluatorFromFile reads the policy at path. An empty path selects the default policy.
func NewOPAEvaluatorFromFile(ctx context.Context, adminPrefixes []string, path string) (*OPAEvaluator, error) {
	if path == "" {
		return NewOPAEvaluator(ctx, adminPrefixes, "")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	return NewOPAEvaluator(ctx, adminPrefixes, string(b))
}

// Allow evaluates the allow rule for in. Undefined or non-boolean results deny.
func (e *OPAEvaluator) Allow(ctx context.Context, in Input) (bool, error) {
	roles := in.Roles
	if roles == nil {
		roles = []string{}
	}
	input := map[string]interface{}{
		"path":           in.Path,
		"method":         in.Method,
		"roles":          roles,
		"admin_prefixes": e.adminPrefixes,
	}
	rs, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return false, fmt.Errorf("eval policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, nil
	}
	allowed, ok := rs[0].Expressions[0].Value.(bool)
	return ok && allowed, nil
}

// HealthCheck verifies the prepared policy evaluates to a boolean for a minimal input.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	rs, err := e.query.Eval(ctx, rego.EvalInput(map[string]interface{}{
		"path":           "/",
		"method":         "GET",
		"roles":          []string{},
		"admin_prefixes": e.adminPrefixes,
	}))
	if err != nil {
		return fmt.Errorf("eval policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return fmt.Errorf("policy query returned no result; policy must define %s.allow", policyPackage)
	}
	if _, ok := rs[0].Expressions[0].Value.(bool); !ok {
		return fmt.Errorf("policy %s.allow is not boolean", policyPackage)
	}
	return nil
}
