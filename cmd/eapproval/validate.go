package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rafaeljc/eapproval/internal/approval"
	"github.com/rafaeljc/eapproval/internal/ruleengine"
)

func newValidateCmd() *cobra.Command {
	var rulesFile, payloadFile string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a document offline and print the result",
		Long: "Validate a document against a ruleset without running the service.\n" +
			"The exit status is 2 when the document fails validation.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			payload, err := readPayload(cmd, payloadFile)
			if err != nil {
				return err
			}

			store, err := loadRules(cmd, rulesFile)
			if err != nil {
				return err
			}

			log := slog.New(slog.NewTextHandler(io.Discard, nil))
			svc := approval.NewService(store, ruleengine.New(log), log, approval.Options{})

			resp, err := svc.Validate(cmd.Context(), payload)
			if err != nil {
				return err
			}
			if err := writeJSON(cmd.OutOrStdout(), resp); err != nil {
				return err
			}
			if !resp.Passed {
				return errDocumentRejected
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&rulesFile, "rules", "r", "rules/rules.json", "path of the ruleset file")
	cmd.Flags().StringVarP(&payloadFile, "payload", "p", "", `path of the document JSON ("-" reads stdin)`)
	_ = cmd.MarkFlagRequired("payload")
	return cmd
}

func readPayload(cmd *cobra.Command, path string) (ruleengine.DocumentPayload, error) {
	var raw []byte
	var err error
	if path == "-" {
		raw, err = io.ReadAll(cmd.InOrStdin())
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return ruleengine.DocumentPayload{}, fmt.Errorf("failed to read payload: %w", err)
	}

	var payload ruleengine.DocumentPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return ruleengine.DocumentPayload{}, fmt.Errorf("invalid payload JSON: %w", err)
	}
	return payload, nil
}

func withTimeout(cmd *cobra.Command, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), d)
}
