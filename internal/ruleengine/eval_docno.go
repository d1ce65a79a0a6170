package ruleengine

// Rule identifiers emitted by the single-issue checks.
const (
	RuleDocNoFormat          = "doc_no_format"
	RuleDocTypeKnown         = "doc_type_known"
	RuleApprovalRulesMissing = "approval_rules_missing"
)

// DocNumberCheck verifies the document number against the ruleset pattern.
// The pattern is matched from the start of the string only; it must anchor
// the end itself to require a full match. An empty number always fails.
type DocNumberCheck struct{}

func (DocNumberCheck) Name() string { return "doc_no" }

func (DocNumberCheck) Evaluate(rs *Ruleset, in *EvaluationInput) []ValidationIssue {
	docNo := in.Payload.DocNo
	passed := docNo != "" && rs.DocNoPattern.MatchString(docNo)

	message := "Document number matches required pattern"
	if !passed {
		message = "Document number does not match required pattern"
	}

	return []ValidationIssue{{
		Rule:    RuleDocNoFormat,
		Passed:  passed,
		Message: message,
		Details: map[string]any{
			"doc_no":  docNo,
			"pattern": rs.DocNoSource,
		},
	}}
}
