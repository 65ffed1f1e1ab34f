package expressions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/ruleflow/pkg/schema"
)

func newCEL(t *testing.T) *CELEngine {
	t.Helper()
	e, err := NewCELEngine()
	require.NoError(t, err)
	return e
}

func TestCELEvaluateCondition(t *testing.T) {
	e := newCEL(t)
	ctx := context.Background()

	data := map[string]any{
		"record":   map[string]any{"status": "open", "priority": 3.0},
		"previous": map[string]any{"status": "new"},
		"user":     map[string]any{"role": "admin"},
	}

	tests := []struct {
		name       string
		expression string
		want       any
	}{
		{"field comparison", `record.status == "open"`, true},
		{"state transition", `previous.status != record.status`, true},
		{"numeric threshold", `record.priority > 2.0`, true},
		{"user gate", `user.role in ["admin", "manager"]`, true},
		{"false result", `record.status == "closed"`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Evaluate(ctx, tt.expression, data)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCELMissingNamespaceDefaultsToEmpty(t *testing.T) {
	e := newCEL(t)

	got, err := e.Evaluate(context.Background(), `size(previous) == 0`, map[string]any{
		"record": map[string]any{"status": "open"},
	})
	require.NoError(t, err)
	assert.Equal(t, true, got)
}

func TestCELEmptyExpression(t *testing.T) {
	e := newCEL(t)

	_, err := e.Evaluate(context.Background(), "", nil)
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeValidation, schema.CodeOf(err))
}

func TestCELCompileError(t *testing.T) {
	e := newCEL(t)

	_, err := e.Evaluate(context.Background(), `record.status ==`, nil)
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeValidation, schema.CodeOf(err))
}

func TestCELUnknownVariableRejected(t *testing.T) {
	e := newCEL(t)

	// Only record/previous/user exist in the sandboxed environment.
	_, err := e.Evaluate(context.Background(), `workflow.id == "x"`, nil)
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeValidation, schema.CodeOf(err))
}

func TestCELRuntimeError(t *testing.T) {
	e := newCEL(t)

	_, err := e.Evaluate(context.Background(), `record.missing.deeper == 1`, map[string]any{
		"record": map[string]any{"status": "open"},
	})
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeExecution, schema.CodeOf(err))
}

func TestCELCacheReuse(t *testing.T) {
	e := newCEL(t)
	ctx := context.Background()

	_, err := e.Evaluate(ctx, `record.status == "open"`, nil)
	require.NoError(t, err)

	e.mu.RLock()
	assert.Len(t, e.cache, 1)
	e.mu.RUnlock()

	_, err = e.Evaluate(ctx, `record.status == "open"`, nil)
	require.NoError(t, err)

	e.mu.RLock()
	assert.Len(t, e.cache, 1)
	e.mu.RUnlock()
}
