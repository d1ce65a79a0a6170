package ruleengine

import "fmt"

// amountTolerance absorbs floating-point rounding at the upper bracket bound.
const amountTolerance = 1e-6

// ApprovalCheck verifies the approval chain against every approval rule whose
// doc type and amount bracket match the document.
//
// When no rule matches, a single failing approval_rules_missing issue is
// emitted: every transacted doc type and amount must be covered by a rule.
// Overlapping brackets are allowed and each matching rule must pass.
type ApprovalCheck struct{}

func (ApprovalCheck) Name() string { return "approval" }

func (ApprovalCheck) Evaluate(rs *Ruleset, in *EvaluationInput) []ValidationIssue {
	docType := in.Payload.DocType

	matched := make([]ApprovalRule, 0)
	for _, rule := range rs.ApprovalRules {
		if rule.DocType == docType && rule.covers(in.Amount) {
			matched = append(matched, rule)
		}
	}

	if len(matched) == 0 {
		return []ValidationIssue{{
			Rule:   RuleApprovalRulesMissing,
			Passed: false,
			Message: fmt.Sprintf("No approval rule found for document type and amount (doc_type=%s, amount=%s)",
				docType, formatAmount(in.Amount)),
			Details: map[string]any{
				"doc_type": docType,
				"amount":   in.Amount,
			},
		}}
	}

	issues := make([]ValidationIssue, 0, len(matched))
	for _, rule := range matched {
		missing := in.missingRoles(rule.RequiredRoles)
		passed := len(missing) == 0

		message := "Approval chain meets required roles"
		if !passed {
			message = "Approval chain missing required roles"
		}

		issues = append(issues, ValidationIssue{
			Rule:    rule.ID,
			Passed:  passed,
			Message: message,
			Details: map[string]any{
				"required_roles":       append([]string(nil), rule.RequiredRoles...),
				"present_roles":        append([]string(nil), in.PresentRoles...),
				"missing_roles":        missing,
				"allow_delegation_for": append([]string(nil), rule.AllowDelegate...),
			},
		})
	}
	return issues
}

// covers reports whether amount falls inside the rule's bracket.
func (r ApprovalRule) covers(amount float64) bool {
	if amount < r.MinAmount {
		return false
	}
	return r.MaxAmount == nil || amount <= *r.MaxAmount+amountTolerance
}
