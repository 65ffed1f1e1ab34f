package store

import (
	"context"

	"github.com/rendis/ruleflow/pkg/schema"
)

// MaxRecentSubjects caps the recent-subject history.
const MaxRecentSubjects = 10

// RuleSource supplies rule collections for named subjects. Script bodies
// are excluded from FetchRules and fetched lazily via FetchScript to keep
// the initial payload small.
type RuleSource interface {
	FetchRules(ctx context.Context, subject string) ([]schema.Rule, error)
	FetchScript(ctx context.Context, ruleID string) (string, error)
}

// PreferenceStore persists the user's recently viewed subjects.
// Failures on this path are always non-critical to callers.
type PreferenceStore interface {
	RecentSubjects(ctx context.Context) ([]string, error)
	SaveRecentSubject(ctx context.Context, name string) error
	DeleteRecentSubject(ctx context.Context, name string) error
}

// Store is the full persistence contract.
// All implementations must be safe for concurrent use.
type Store interface {
	RuleSource
	PreferenceStore

	// ReplaceRules registers the subject and atomically swaps its rule set.
	ReplaceRules(ctx context.Context, subject string, rules []schema.Rule) error
	ListSubjects(ctx context.Context) ([]string, error)

	// Maintenance
	Migrate(ctx context.Context) error

	// Lifecycle
	Close() error
}
