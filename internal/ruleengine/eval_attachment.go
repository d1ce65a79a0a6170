package ruleengine

import "fmt"

// AttachmentCheck counts attachments of each required type.
//
// A requirement only applies when all of its required risk flags are present
// on the document. Inapplicable requirements produce no issue at all.
type AttachmentCheck struct{}

func (AttachmentCheck) Name() string { return "attachment" }

func (AttachmentCheck) Evaluate(rs *Ruleset, in *EvaluationInput) []ValidationIssue {
	issues := make([]ValidationIssue, 0)

	for _, req := range rs.AttachmentRequirements {
		if req.DocType != in.Payload.DocType || !in.hasAllRiskFlags(req.RequiredRiskFlags) {
			continue
		}

		provided := in.AttachmentCounts[req.Type]
		passed := provided >= req.MinCount

		message := fmt.Sprintf("Attachment '%s' requirement satisfied", req.Type)
		if !passed {
			message = fmt.Sprintf("Attachment '%s' requirement not met", req.Type)
		}

		issues = append(issues, ValidationIssue{
			Rule:    req.ID,
			Passed:  passed,
			Message: message,
			Details: map[string]any{
				"required_min": req.MinCount,
				"provided":     provided,
				"missing":      max(0, req.MinCount-provided),
				"note":         req.Note,
				"risk_flags":   in.riskFlagList(),
			},
		})
	}
	return issues
}

func (in *EvaluationInput) hasAllRiskFlags(flags []string) bool {
	for _, flag := range flags {
		if !in.HasRiskFlag(flag) {
			return false
		}
	}
	return true
}
