package ruleengine

import "fmt"

// DocTypeCheck verifies the document type is registered in the ruleset.
type DocTypeCheck struct{}

func (DocTypeCheck) Name() string { return "doc_type" }

func (DocTypeCheck) Evaluate(rs *Ruleset, in *EvaluationInput) []ValidationIssue {
	docType := in.Payload.DocType
	passed := rs.KnowsDocType(docType)

	message := "Document type is registered in ruleset"
	if !passed {
		message = fmt.Sprintf("Unknown document type '%s'", docType)
	}

	return []ValidationIssue{{
		Rule:    RuleDocTypeKnown,
		Passed:  passed,
		Message: message,
		Details: map[string]any{
			"doc_type": docType,
			"allowed":  rs.AllowedDocTypes(),
		},
	}}
}
