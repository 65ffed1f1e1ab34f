package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/rendis/ruleflow/internal/validation"
)

// runImport validates a rule document file and replaces the subject's
// rule set in the local store.
func runImport(path string) error {
	cfg := loadConfig()
	logger := newLogger(cfg, os.Stderr)

	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	validator, err := validation.NewJSONSchemaValidator()
	if err != nil {
		return err
	}
	doc, err := validator.ValidateRaw(raw)
	if err != nil {
		return err
	}

	ctx := context.Background()
	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.ReplaceRules(ctx, doc.Subject, doc.Rules); err != nil {
		return err
	}

	logger.Info("rules imported",
		slog.String("subject", doc.Subject),
		slog.Int("rule_count", len(doc.Rules)))
	fmt.Printf("imported %d rules for subject %q\n", len(doc.Rules), doc.Subject)
	return nil
}
