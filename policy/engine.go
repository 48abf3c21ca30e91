package policy

import (
	"context"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/rego"
)

// Decisions returned by the access policy.
const (
	DecisionAllow = "allow"
	DecisionDeny  = "deny"
)

// Resources and actions the service asks about.
const (
	ResourceLogs = "logs"

	ActionRead   = "read"
	ActionDelete = "delete"
)

// Input is the document evaluated by the access policy.
type Input struct {
	Role     string `json:"role"`
	Resource string `json:"resource"`
	Action   string `json:"action"`
}

// Engine is the OPA policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates a new policy engine with the given policy content.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.run_access.decision"),
		rego.Module("run_access.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// NewEngineFromFile loads the policy module from path, or the default
// policy when path is empty.
func NewEngineFromFile(ctx context.Context, path string) (*Engine, error) {
	if path == "" {
		return NewEngine(ctx, DefaultPolicy)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	return NewEngine(ctx, string(content))
}

// Evaluate returns the decision for input. Anything but an explicit
// allow is treated as deny.
func (e *Engine) Evaluate(ctx context.Context, input Input) (string, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return "", fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return DecisionDeny, nil
	}

	if s, ok := results[0].Expressions[0].Value.(string); ok && s == DecisionAllow {
		return DecisionAllow, nil
	}
	return DecisionDeny, nil
}

// Allowed is a convenience wrapper around Evaluate.
func (e *Engine) Allowed(ctx context.Context, role, resource, action string) (bool, error) {
	decision, err := e.Evaluate(ctx, Input{Role: role, Resource: resource, Action: action})
	if err != nil {
		return false, err
	}
	return decision == DecisionAllow, nil
}

// DefaultPolicy is the default policy content.
const DefaultPolicy = `
package run_access

default decision = "deny"

# Anyone may replay a conversation.
decision = "allow" {
	input.action == "read"
}

# Only project owners and admins may delete threads.
decision = "allow" {
	input.resource == "logs"
	input.action == "delete"
	input.role == "owner"
}

decision = "allow" {
	input.resource == "logs"
	input.action == "delete"
	input.role == "admin"
}
`
