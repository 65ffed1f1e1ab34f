package expressions

import (
	"context"

	"github.com/rendis/ruleflow/pkg/schema"
)

// Previewer bundles the three engines behind the operations the panel and
// agent tools expose: condition preview, filter preview, and rule projection.
type Previewer struct {
	cel  *CELEngine
	expr *ExprEngine
	jq   *GoJQEngine
}

// NewPreviewer creates a Previewer with freshly initialized engines.
func NewPreviewer() (*Previewer, error) {
	celEngine, err := NewCELEngine()
	if err != nil {
		return nil, err
	}
	return &Previewer{
		cel:  celEngine,
		expr: NewExprEngine(),
		jq:   NewGoJQEngine(),
	}, nil
}

// PreviewCondition evaluates a rule condition against a sample scope.
func (p *Previewer) PreviewCondition(ctx context.Context, expression string, scope PreviewScope) (any, error) {
	return p.cel.Evaluate(ctx, expression, scope.Activation())
}

// PreviewFilter evaluates a rule filterExpression against a sample scope.
func (p *Previewer) PreviewFilter(ctx context.Context, expression string, scope PreviewScope) (any, error) {
	return p.expr.Evaluate(ctx, expression, scope.Activation())
}

// Project runs a jq expression over a subject's rule collection and returns
// all outputs.
func (p *Previewer) Project(ctx context.Context, expression, subject string, rules []schema.Rule) ([]any, error) {
	doc, err := RulesDocument(subject, rules)
	if err != nil {
		return nil, err
	}
	return p.jq.EvaluateAll(ctx, expression, doc)
}
