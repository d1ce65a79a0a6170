// Package ruleengine provides the core logic for e-approval document validation.
// A JSON ruleset is compiled once into a Ruleset (typed rules plus lookup sets)
// and every submitted document is evaluated against it by a fixed list of
// independent checks (strategies) whose issues are combined with logical AND.
package ruleengine

import (
	"regexp"
	"time"
)

// ApprovalMember is one entry of a document's approval chain.
type ApprovalMember struct {
	// Role is the role code (e.g. "ROLE_LEAD"). Only the role is checked.
	Role string `json:"role"`

	// UserID optionally identifies the approver. It is never validated.
	UserID *string `json:"user_id,omitempty"`
}

// Attachment is a file attached to a document.
type Attachment struct {
	Filename string `json:"filename"`

	// Type is the logical attachment type (e.g. "quote").
	Type string `json:"type"`
}

// DocumentPayload is the document submitted for validation.
type DocumentPayload struct {
	DocNo   string  `json:"doc_no"`
	DocType string  `json:"doc_type"`
	Title   *string `json:"title,omitempty"`

	// AmountTotal is used for approval brackets. A nil amount counts as 0.
	AmountTotal *float64 `json:"amount_total,omitempty"`

	RiskFlags     []string         `json:"risk_flags"`
	ApprovalChain []ApprovalMember `json:"approval_chain"`
	Attachments   []Attachment     `json:"attachments"`
}

// Amount returns AmountTotal, defaulting to 0 when absent.
func (p DocumentPayload) Amount() float64 {
	if p.AmountTotal == nil {
		return 0
	}
	return *p.AmountTotal
}

// ValidationIssue is one atomic pass/fail check result.
// Rule identifiers are deterministic: the same logical rule always
// produces the same identifier.
type ValidationIssue struct {
	Rule    string         `json:"rule"`
	Passed  bool           `json:"passed"`
	Message string         `json:"message"`
	Details map[string]any `json:"details"`
}

// ValidationResponse aggregates every issue emitted for a document.
// Passed is the logical AND of all issues.
type ValidationResponse struct {
	Passed       bool              `json:"passed"`
	RulesVersion string            `json:"rules_version"`
	Issues       []ValidationIssue `json:"issues"`
}

// FailedRules returns the identifiers of failing issues, in issue order.
func (r ValidationResponse) FailedRules() []string {
	failed := make([]string, 0)
	for _, issue := range r.Issues {
		if !issue.Passed {
			failed = append(failed, issue.Rule)
		}
	}
	return failed
}

// DocType is a document type declared by the ruleset.
type DocType struct {
	Code  string `json:"code"`
	Label string `json:"label"`
}

// ApprovalRule requires a set of roles for a doc type within an amount bracket.
type ApprovalRule struct {
	ID        string
	DocType   string
	MinAmount float64

	// MaxAmount is nil when the bracket is unbounded.
	MaxAmount *float64

	// RequiredRoles keeps ruleset order; duplicates are harmless.
	RequiredRoles []string
	AllowDelegate []string
}

// AttachmentRequirement is one flattened (doc_type, condition) pair.
type AttachmentRequirement struct {
	ID       string
	DocType  string
	Type     string
	MinCount int

	// RequiredRiskFlags makes the requirement conditional: it only applies
	// when every listed flag is present on the document.
	RequiredRiskFlags []string
	Note              string
}

// RiskRule adds requirements to documents carrying a risk flag.
type RiskRule struct {
	ID       string
	RiskFlag string

	// DocTypes restricts the rule; empty means every doc type.
	DocTypes            []string
	RequiredRoles       []string
	RequiredAttachments []string
	Note                string
}

// CatalogEntry is a UI-facing description of a role, attachment type or risk flag.
type CatalogEntry struct {
	Label string

	// Notes are deduplicated and sorted.
	Notes []string
}

// Ruleset is the compiled, immutable form of a ruleset file.
// It is safe to share between goroutines; nothing mutates it after Compile.
type Ruleset struct {
	Version     string
	UpdatedAt   string
	Description string

	// Digest is the hex SHA-256 of the raw ruleset bytes.
	Digest   string
	LoadedAt time.Time

	// DocNoPattern is anchored at the start only (prefix match semantics).
	DocNoPattern *regexp.Regexp
	DocNoSource  string

	DocTypes               []DocType
	ApprovalRules          []ApprovalRule
	AttachmentRequirements []AttachmentRequirement
	RiskRules              []RiskRule

	AttachmentCatalog map[string]CatalogEntry
	RiskCatalog       map[string]CatalogEntry
	RoleCatalog       map[string]CatalogEntry

	// knownDocTypes is the membership set used by the doc type check.
	knownDocTypes map[string]struct{}
	// allowedDocTypes is the sorted form of knownDocTypes, reported in issue details.
	allowedDocTypes []string
}

// KnowsDocType reports whether code is a registered document type.
func (rs *Ruleset) KnowsDocType(code string) bool {
	_, ok := rs.knownDocTypes[code]
	return ok
}

// AllowedDocTypes returns the sorted list of registered document types.
func (rs *Ruleset) AllowedDocTypes() []string {
	return append([]string(nil), rs.allowedDocTypes...)
}
