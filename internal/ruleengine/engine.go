package ruleengine

import (
	"log/slog"
)

// Engine is the orchestrator for document validation.
// It holds no mutable state and is safe for concurrent use.
type Engine struct {
	checks []Check
	logger *slog.Logger // Dedicated logger instance (DI)
}

// New creates a new Engine running the standard checks in their fixed order:
// document number, document type, approval chain, attachments, risk flags.
// If logger is nil, it defaults to slog.Default().
func New(logger *slog.Logger) *Engine {
	return NewWithChecks(logger,
		DocNumberCheck{},
		DocTypeCheck{},
		ApprovalCheck{},
		AttachmentCheck{},
		RiskCheck{},
	)
}

// NewWithChecks creates an Engine running the given checks in order.
func NewWithChecks(logger *slog.Logger, checks ...Check) *Engine {
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		logger: logger,
		checks: checks,
	}
}

// Validate runs every check against payload and aggregates the issues.
// Checks never short-circuit: a failing document number still reports the
// approval, attachment and risk issues. Passed is the AND of all issues.
//
// Validate panics if rs is nil; callers own the ruleset snapshot.
func (e *Engine) Validate(rs *Ruleset, payload DocumentPayload) ValidationResponse {
	if rs == nil {
		panic("ruleengine: Validate called with nil ruleset")
	}

	in := NewEvaluationInput(payload)
	issues := make([]ValidationIssue, 0, 8)

	for _, check := range e.checks {
		produced := check.Evaluate(rs, in)
		issues = append(issues, produced...)

		e.logger.Debug("check evaluated",
			"check", check.Name(),
			"doc_no", payload.DocNo,
			"issues", len(produced),
		)
	}

	passed := true
	for _, issue := range issues {
		passed = passed && issue.Passed
	}

	return ValidationResponse{
		Passed:       passed,
		RulesVersion: rs.Version,
		Issues:       issues,
	}
}
