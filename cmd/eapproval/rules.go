package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/rafaeljc/eapproval/internal/rulestore"
)

const cliLoadTimeout = 10 * time.Second

func newRulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect ruleset files",
	}
	cmd.AddCommand(newRulesCheckCmd())
	return cmd
}

func newRulesCheckCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Compile a ruleset and print its metadata",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := loadRules(cmd, file)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), store.Current().Metadata())
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "rules/rules.json", "path of the ruleset file")
	return cmd
}

// loadRules compiles file into a fresh store. Diagnostics go to stderr so
// stdout carries only the command's JSON output.
func loadRules(cmd *cobra.Command, file string) (*rulestore.Store, error) {
	log := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelWarn}))
	store := rulestore.New(rulestore.NewFileSource(file), log)

	ctx, cancel := withTimeout(cmd, cliLoadTimeout)
	defer cancel()

	if _, err := store.Reload(ctx, rulestore.TriggerCLI); err != nil {
		return nil, fmt.Errorf("failed to load ruleset: %w", err)
	}
	return store, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
