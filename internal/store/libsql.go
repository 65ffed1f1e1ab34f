package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/rendis/ruleflow/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Apply connection-level PRAGMAs. Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// --- Rules ---

const ruleColumns = `id, name, phase, rule_order, priority, active,
	triggers_insert, triggers_update, triggers_delete, triggers_query,
	aborts_on_condition, filter_expression, condition, description, inherited_from`

// FetchRules returns the rule collection for a subject in retrieval order.
// Script bodies are omitted; use FetchScript. An unknown subject is
// NOT_FOUND; a known subject with no rules returns an empty slice.
func (s *LibSQLStore) FetchRules(ctx context.Context, subject string) ([]schema.Rule, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM subjects WHERE name = ?`, subject).Scan(&exists)
	if err == sql.ErrNoRows {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "subject %q not found", subject)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup subject: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+ruleColumns+` FROM rules WHERE subject = ? ORDER BY seq`, subject)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	defer rows.Close()

	rules := []schema.Rule{}
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// FetchScript returns the script body of a single rule. Fetched lazily when
// a rule's detail view opens, never with the list.
func (s *LibSQLStore) FetchScript(ctx context.Context, ruleID string) (string, error) {
	var body sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT script_body FROM rules WHERE id = ?`, ruleID).Scan(&body)
	if err == sql.ErrNoRows {
		return "", schema.NewErrorf(schema.ErrCodeNotFound, "rule %q not found", ruleID)
	}
	if err != nil {
		return "", fmt.Errorf("query script: %w", err)
	}
	return body.String, nil
}

// ReplaceRules registers the subject and atomically swaps its rule set.
// Row order in the slice becomes the stored retrieval order.
func (s *LibSQLStore) ReplaceRules(ctx context.Context, subject string, rules []schema.Rule) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO subjects (name) VALUES (?)
		 ON CONFLICT(name) DO UPDATE SET updated_at = CURRENT_TIMESTAMP`, subject); err != nil {
		return fmt.Errorf("upsert subject: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM rules WHERE subject = ?`, subject); err != nil {
		return fmt.Errorf("clear rules: %w", err)
	}

	for i, r := range rules {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO rules (id, subject, name, phase, rule_order, priority, active,
				triggers_insert, triggers_update, triggers_delete, triggers_query,
				aborts_on_condition, filter_expression, condition, description,
				script_body, inherited_from, seq)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, subject, r.Name, r.Phase, nullIfNonPositive(r.Order), nullIfNonPositive(r.Priority),
			r.Active, r.TriggersInsert, r.TriggersUpdate, r.TriggersDelete, r.TriggersQuery,
			r.AbortsOnCondition, nullStr(r.FilterExpression), nullStr(r.Condition),
			nullStr(r.Description), nullStr(r.ScriptBody), nullStr(r.InheritedFrom), i,
		)
		if err != nil {
			return fmt.Errorf("insert rule %q: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

// ListSubjects returns every known subject, sorted by name.
func (s *LibSQLStore) ListSubjects(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM subjects ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query subjects: %w", err)
	}
	defer rows.Close()
	return collectStrings(rows)
}

// --- Recent subjects ---

// RecentSubjects returns the recently viewed subjects, newest first.
func (s *LibSQLStore) RecentSubjects(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name FROM recent_subjects ORDER BY id DESC LIMIT ?`, MaxRecentSubjects)
	if err != nil {
		return nil, fmt.Errorf("query recent subjects: %w", err)
	}
	defer rows.Close()
	return collectStrings(rows)
}

// SaveRecentSubject dedups, prepends, and trims the history to the cap.
func (s *LibSQLStore) SaveRecentSubject(ctx context.Context, name string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save recent: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM recent_subjects WHERE name = ?`, name); err != nil {
		return fmt.Errorf("dedup recent subject: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO recent_subjects (name) VALUES (?)`, name); err != nil {
		return fmt.Errorf("insert recent subject: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM recent_subjects WHERE id NOT IN
			(SELECT id FROM recent_subjects ORDER BY id DESC LIMIT ?)`, MaxRecentSubjects); err != nil {
		return fmt.Errorf("trim recent subjects: %w", err)
	}
	return tx.Commit()
}

// DeleteRecentSubject removes one entry from the history.
func (s *LibSQLStore) DeleteRecentSubject(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM recent_subjects WHERE name = ?`, name)
	return err
}

// --- Helpers ---

func scanRule(rows *sql.Rows) (schema.Rule, error) {
	var r schema.Rule
	var order, priority sql.NullInt64
	var filter, condition, description, inherited sql.NullString
	err := rows.Scan(&r.ID, &r.Name, &r.Phase, &order, &priority, &r.Active,
		&r.TriggersInsert, &r.TriggersUpdate, &r.TriggersDelete, &r.TriggersQuery,
		&r.AbortsOnCondition, &filter, &condition, &description, &inherited)
	if err != nil {
		return schema.Rule{}, fmt.Errorf("scan rule: %w", err)
	}
	r.Order = int(order.Int64)
	r.Priority = int(priority.Int64)
	r.FilterExpression = filter.String
	r.Condition = condition.String
	r.Description = description.String
	r.InheritedFrom = inherited.String
	// Absent or invalid numeric fields default to 100.
	r.Normalize()
	return r, nil
}

func collectStrings(rows *sql.Rows) ([]string, error) {
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullIfNonPositive(n int) any {
	if n <= 0 {
		return nil
	}
	return n
}

var _ Store = (*LibSQLStore)(nil)
