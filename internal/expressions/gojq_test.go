package expressions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/ruleflow/pkg/schema"
)

func sampleDocument(t *testing.T) map[string]any {
	t.Helper()
	doc, err := RulesDocument("incident", []schema.Rule{
		{ID: "r1", Name: "validate", Phase: "before", Order: 10, Active: true},
		{ID: "r2", Name: "enrich", Phase: "before", Order: 20, Active: false, InheritedFrom: "task"},
		{ID: "r3", Name: "audit", Phase: "after", Order: 10, Active: true},
	})
	require.NoError(t, err)
	return doc
}

func TestGoJQProjectRuleNames(t *testing.T) {
	e := NewGoJQEngine()

	got, err := e.Evaluate(context.Background(), `[.rules[].name]`, sampleDocument(t))
	require.NoError(t, err)
	assert.Equal(t, []any{"validate", "enrich", "audit"}, got)
}

func TestGoJQFilterByPhase(t *testing.T) {
	e := NewGoJQEngine()

	got, err := e.Evaluate(context.Background(),
		`[.rules[] | select(.phase == "before") | .id]`, sampleDocument(t))
	require.NoError(t, err)
	assert.Equal(t, []any{"r1", "r2"}, got)
}

func TestGoJQAggregate(t *testing.T) {
	e := NewGoJQEngine()

	got, err := e.Evaluate(context.Background(),
		`.rules | group_by(.phase) | map({phase: .[0].phase, count: length})`, sampleDocument(t))
	require.NoError(t, err)
	assert.Equal(t, []any{
		map[string]any{"phase": "after", "count": 1},
		map[string]any{"phase": "before", "count": 2},
	}, got)
}

func TestGoJQMultipleOutputs(t *testing.T) {
	e := NewGoJQEngine()

	all, err := e.EvaluateAll(context.Background(), `.rules[].id`, sampleDocument(t))
	require.NoError(t, err)
	assert.Equal(t, []any{"r1", "r2", "r3"}, all)
}

func TestGoJQEmptyExpression(t *testing.T) {
	e := NewGoJQEngine()

	_, err := e.Evaluate(context.Background(), "", nil)
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeValidation, schema.CodeOf(err))
}

func TestGoJQParseError(t *testing.T) {
	e := NewGoJQEngine()

	_, err := e.Evaluate(context.Background(), `.rules[`, nil)
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeValidation, schema.CodeOf(err))
}

func TestGoJQEnvBlocked(t *testing.T) {
	e := NewGoJQEngine()

	got, err := e.Evaluate(context.Background(), `$ENV | length`, map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, 0, got)
}

func TestGoJQCacheReuse(t *testing.T) {
	e := NewGoJQEngine()
	ctx := context.Background()

	_, err := e.Evaluate(ctx, `.rules`, sampleDocument(t))
	require.NoError(t, err)
	_, err = e.Evaluate(ctx, `.rules`, sampleDocument(t))
	require.NoError(t, err)

	e.mu.RLock()
	assert.Len(t, e.cache, 1)
	e.mu.RUnlock()
}
