package ruleengine

import "fmt"

// RiskCheck applies the extra requirements attached to risk flags.
// Roles and attachments are checked by set membership, not by count.
type RiskCheck struct{}

func (RiskCheck) Name() string { return "risk" }

func (RiskCheck) Evaluate(rs *Ruleset, in *EvaluationInput) []ValidationIssue {
	issues := make([]ValidationIssue, 0)

	for _, rule := range rs.RiskRules {
		if !in.HasRiskFlag(rule.RiskFlag) || !rule.appliesTo(in.Payload.DocType) {
			continue
		}

		missingRoles := in.missingRoles(rule.RequiredRoles)
		missingAttachments := make([]string, 0)
		for _, kind := range rule.RequiredAttachments {
			if !in.HasAttachment(kind) {
				missingAttachments = append(missingAttachments, kind)
			}
		}
		passed := len(missingRoles) == 0 && len(missingAttachments) == 0

		message := fmt.Sprintf("Risk flag '%s' requirements satisfied", rule.RiskFlag)
		if !passed {
			message = fmt.Sprintf("Risk flag '%s' requirements not met", rule.RiskFlag)
		}

		issues = append(issues, ValidationIssue{
			Rule:    rule.ID,
			Passed:  passed,
			Message: message,
			Details: map[string]any{
				"required_roles":       append([]string(nil), rule.RequiredRoles...),
				"missing_roles":        missingRoles,
				"required_attachments": append([]string(nil), rule.RequiredAttachments...),
				"missing_attachments":  missingAttachments,
				"note":                 rule.Note,
			},
		})
	}
	return issues
}

func (r RiskRule) appliesTo(docType string) bool {
	if len(r.DocTypes) == 0 {
		return true
	}
	for _, dt := range r.DocTypes {
		if dt == docType {
			return true
		}
	}
	return false
}
