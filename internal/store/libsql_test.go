package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/ruleflow/pkg/schema"
)

func newTestStore(t *testing.T) *LibSQLStore {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	s, err := NewLibSQLStore("file:" + dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() {
		_ = s.Close()
		_ = os.RemoveAll(dir)
	})
	return s
}

func seedRules(t *testing.T, s *LibSQLStore, subject string, rules []schema.Rule) {
	t.Helper()
	require.NoError(t, s.ReplaceRules(context.Background(), subject, rules))
}

func sampleRules() []schema.Rule {
	return []schema.Rule{
		{
			ID: "r1", Name: "validate state", Phase: "before", Order: 50,
			Priority: 100, Active: true, TriggersUpdate: true,
			Condition: `record.state == "open"`, ScriptBody: "setValue();",
		},
		{
			ID: "r2", Name: "audit change", Phase: "after", Order: 100,
			Priority: 100, Active: true, TriggersInsert: true, TriggersUpdate: true,
			InheritedFrom: "task",
		},
		{
			ID: "r3", Name: "notify watchers", Phase: "async", Order: 200,
			Active: false, TriggersUpdate: true,
		},
	}
}

// --- Rule tests ---

func TestReplaceAndFetchRules(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedRules(t, s, "incident", sampleRules())

	rules, err := s.FetchRules(ctx, "incident")
	require.NoError(t, err)
	require.Len(t, rules, 3)

	assert.Equal(t, "r1", rules[0].ID)
	assert.Equal(t, "validate state", rules[0].Name)
	assert.Equal(t, 50, rules[0].Order)
	assert.Equal(t, `record.state == "open"`, rules[0].Condition)
	assert.Equal(t, "task", rules[1].InheritedFrom)
	assert.True(t, rules[1].Inherited())
	assert.False(t, rules[2].Active)

	// Script bodies stay out of the list payload.
	for _, r := range rules {
		assert.Empty(t, r.ScriptBody)
	}
}

func TestFetchRulesPreservesRetrievalOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var rules []schema.Rule
	for i := 0; i < 5; i++ {
		rules = append(rules, schema.Rule{
			ID: fmt.Sprintf("tie-%d", i), Name: "tie", Phase: "before", Order: 100,
		})
	}
	seedRules(t, s, "incident", rules)

	got, err := s.FetchRules(ctx, "incident")
	require.NoError(t, err)
	require.Len(t, got, 5)
	for i, r := range got {
		assert.Equal(t, fmt.Sprintf("tie-%d", i), r.ID)
	}
}

func TestFetchRulesDefaultsMissingOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedRules(t, s, "incident", []schema.Rule{
		{ID: "r1", Name: "no order", Phase: "before"},
	})

	rules, err := s.FetchRules(ctx, "incident")
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, schema.DefaultOrder, rules[0].Order)
	assert.Equal(t, schema.DefaultOrder, rules[0].Priority)
}

func TestFetchRulesUnknownSubject(t *testing.T) {
	s := newTestStore(t)
	_, err := s.FetchRules(context.Background(), "nope")
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeNotFound, schema.CodeOf(err))
}

func TestFetchRulesEmptySubject(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedRules(t, s, "incident", nil)

	// A known subject with zero rules is an empty result, not NOT_FOUND.
	rules, err := s.FetchRules(ctx, "incident")
	require.NoError(t, err)
	assert.Empty(t, rules)
}

func TestReplaceRulesSwapsAtomically(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedRules(t, s, "incident", sampleRules())
	seedRules(t, s, "incident", []schema.Rule{
		{ID: "r9", Name: "only survivor", Phase: "display", Order: 10},
	})

	rules, err := s.FetchRules(ctx, "incident")
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "r9", rules[0].ID)
}

func TestFetchScript(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedRules(t, s, "incident", sampleRules())

	body, err := s.FetchScript(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "setValue();", body)

	_, err = s.FetchScript(ctx, "missing")
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeNotFound, schema.CodeOf(err))
}

func TestListSubjects(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedRules(t, s, "task", nil)
	seedRules(t, s, "incident", nil)

	subjects, err := s.ListSubjects(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"incident", "task"}, subjects)
}

// --- Recent subject tests ---

func TestRecentSubjectsDedupAndPrepend(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveRecentSubject(ctx, "incident"))
	require.NoError(t, s.SaveRecentSubject(ctx, "task"))
	require.NoError(t, s.SaveRecentSubject(ctx, "incident"))

	recent, err := s.RecentSubjects(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"incident", "task"}, recent)
}

func TestRecentSubjectsCap(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < MaxRecentSubjects+5; i++ {
		require.NoError(t, s.SaveRecentSubject(ctx, fmt.Sprintf("subject-%d", i)))
	}

	recent, err := s.RecentSubjects(ctx)
	require.NoError(t, err)
	require.Len(t, recent, MaxRecentSubjects)
	assert.Equal(t, fmt.Sprintf("subject-%d", MaxRecentSubjects+4), recent[0])
}

func TestDeleteRecentSubject(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveRecentSubject(ctx, "incident"))
	require.NoError(t, s.DeleteRecentSubject(ctx, "incident"))

	recent, err := s.RecentSubjects(ctx)
	require.NoError(t, err)
	assert.Empty(t, recent)
}
