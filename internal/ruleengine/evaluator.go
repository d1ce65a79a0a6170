package ruleengine

// Check is the interface that every validation strategy must implement.
// A check inspects one aspect of a document and reports zero or more issues.
type Check interface {
	// Name identifies the check in logs and metrics.
	Name() string

	// Evaluate returns the issues produced for the document.
	//
	// Parameters:
	// - rs: The compiled ruleset. Never nil.
	// - in: The document plus lookup sets derived from it once per validation.
	//
	// Returns an empty slice when no rule of this kind applies. A check never
	// fails with an error: a configuration gap is reported as a failing issue.
	Evaluate(rs *Ruleset, in *EvaluationInput) []ValidationIssue
}

// EvaluationInput holds a document together with the sets every check needs.
// It is built once per validation so checks do not rescan the payload.
type EvaluationInput struct {
	Payload DocumentPayload
	Amount  float64

	// PresentRoles lists chain roles in chain order, duplicates included.
	PresentRoles []string
	Roles        map[string]struct{}

	// AttachmentCounts counts attachments per type.
	AttachmentCounts map[string]int
	RiskFlags        map[string]struct{}
}

// NewEvaluationInput derives the lookup sets for payload.
func NewEvaluationInput(payload DocumentPayload) *EvaluationInput {
	in := &EvaluationInput{
		Payload:          payload,
		Amount:           payload.Amount(),
		PresentRoles:     make([]string, 0, len(payload.ApprovalChain)),
		Roles:            make(map[string]struct{}, len(payload.ApprovalChain)),
		AttachmentCounts: make(map[string]int, len(payload.Attachments)),
		RiskFlags:        make(map[string]struct{}, len(payload.RiskFlags)),
	}

	for _, member := range payload.ApprovalChain {
		in.PresentRoles = append(in.PresentRoles, member.Role)
		in.Roles[member.Role] = struct{}{}
	}
	for _, att := range payload.Attachments {
		in.AttachmentCounts[att.Type]++
	}
	for _, flag := range payload.RiskFlags {
		in.RiskFlags[flag] = struct{}{}
	}

	return in
}

// HasRole reports whether role appears anywhere in the approval chain.
func (in *EvaluationInput) HasRole(role string) bool {
	_, ok := in.Roles[role]
	return ok
}

// HasAttachment reports whether at least one attachment has the given type.
func (in *EvaluationInput) HasAttachment(kind string) bool {
	return in.AttachmentCounts[kind] > 0
}

// HasRiskFlag reports whether the document carries flag.
func (in *EvaluationInput) HasRiskFlag(flag string) bool {
	_, ok := in.RiskFlags[flag]
	return ok
}

// missingRoles returns the required roles absent from the chain, in required
// order and without duplicates.
func (in *EvaluationInput) missingRoles(required []string) []string {
	missing := make([]string, 0)
	seen := make(map[string]struct{}, len(required))
	for _, role := range required {
		if _, dup := seen[role]; dup {
			continue
		}
		seen[role] = struct{}{}
		if !in.HasRole(role) {
			missing = append(missing, role)
		}
	}
	return missing
}

// riskFlagList returns the document's risk flags as submitted, never nil.
func (in *EvaluationInput) riskFlagList() []string {
	if in.Payload.RiskFlags == nil {
		return []string{}
	}
	return append([]string(nil), in.Payload.RiskFlags...)
}
