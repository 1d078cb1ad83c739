package policy

import (
	"context"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/rego"

	"github.com/frederikbeimgraben/mcssh/internal/domain"
)

// Input is the document a command is evaluated against.
type Input struct {
	User    string
	Admin   bool
	Kind    domain.CommandKind
	Command string
	Args    string
}

func (in Input) toMap() map[string]interface{} {
	return map[string]interface{}{
		"user":    in.User,
		"admin":   in.Admin,
		"kind":    string(in.Kind),
		"command": in.Command,
		"args":    in.Args,
	}
}

// Engine is the OPA policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates a new policy engine with the given policy content.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.mcssh.decision"),
		rego.Module("mcssh.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// LoadEngine creates an engine from a policy file, or from DefaultPolicy
// when path is empty.
func LoadEngine(ctx context.Context, path string) (*Engine, error) {
	if path == "" {
		return NewEngine(ctx, DefaultPolicy)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy: %w", err)
	}
	return NewEngine(ctx, string(content))
}

// Evaluate checks whether a command may run.
// A policy that produces no decision allows the command.
func (e *Engine) Evaluate(ctx context.Context, input Input) (domain.Decision, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(input.toMap()))
	if err != nil {
		return "", fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return domain.DecisionAllow, nil
	}

	val := results[0].Expressions[0].Value
	s, ok := val.(string)
	if !ok {
		return "", fmt.Errorf("policy returned %T, want string", val)
	}
	switch d := domain.Decision(s); d {
	case domain.DecisionAllow, domain.DecisionBlock:
		return d, nil
	default:
		return "", fmt.Errorf("policy returned unknown decision %q", s)
	}
}

// DefaultPolicy is the default policy content.
const DefaultPolicy = `
package mcssh

default decision = "allow"

restricted := {"stop", "op", "deop", "ban", "ban-ip", "whitelist"}

# Restarting the service is reserved for admins
decision = "block" {
	input.kind == "reset"
	not input.admin
}

# Labels are matched like the server does: any case, any namespace.
command_name = name {
	parts := split(lower(trim_prefix(input.command, "/")), ":")
	name := parts[count(parts) - 1]
}

decision = "block" {
	input.kind == "console"
	restricted[command_name]
	not input.admin
}
`
