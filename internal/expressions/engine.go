package expressions

import "context"

// Engine evaluates a rule expression against a sample record scope.
// Two implementations preview rule fields (CEL for condition, Expr for
// filterExpression); a third (GoJQ) projects over rule collections.
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}
