package ruleengine

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	defaultVersion     = "unknown"
	defaultDescription = "E-approval validation rules"
	defaultMinCount    = 1
)

// rulesetFile mirrors the on-disk JSON. Pointer fields distinguish an absent
// value from a zero value so defaults can be applied explicitly.
type rulesetFile struct {
	Version     json.RawMessage `json:"version"`
	UpdatedAt   string          `json:"updated_at"`
	Description string          `json:"description"`
	Patterns    struct {
		DocNo string `json:"doc_no"`
	} `json:"patterns"`
	DocTypes []struct {
		DocType string  `json:"doc_type"`
		Label   *string `json:"label"`
	} `json:"doc_types"`
	ApprovalRequirements []struct {
		DocType            string   `json:"doc_type"`
		MinAmount          *float64 `json:"min_amount"`
		MaxAmount          *float64 `json:"max_amount"`
		RequiredRoles      []string `json:"required_roles"`
		AllowDelegationFor []string `json:"allow_delegation_for"`
	} `json:"approval_requirements"`
	AttachmentRequirements []struct {
		DocType    string `json:"doc_type"`
		Conditions []struct {
			Type              string   `json:"type"`
			MinCount          *float64 `json:"min_count"`
			RequiredRiskFlags []string `json:"required_risk_flags"`
			Note              string   `json:"note"`
		} `json:"conditions"`
	} `json:"attachment_requirements"`
	RiskRequirements []struct {
		RiskFlag            string   `json:"risk_flag"`
		DocTypes            []string `json:"doc_types"`
		RequiredRoles       []string `json:"required_roles"`
		RequiredAttachments []string `json:"required_attachments"`
		Note                string   `json:"note"`
	} `json:"risk_requirements"`
}

// Compile turns raw ruleset JSON into an immutable Ruleset.
// It returns a *ParseError for malformed JSON and a *SchemaError for
// structurally invalid content (including a missing or invalid doc_no pattern).
func Compile(raw []byte) (*Ruleset, error) {
	if err := validateShape(raw); err != nil {
		return nil, err
	}

	var file rulesetFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, &ParseError{Err: err}
	}

	if strings.TrimSpace(file.Patterns.DocNo) == "" {
		return nil, &SchemaError{Reason: "missing doc_no pattern"}
	}
	// Prefix semantics: anchor the start only, the pattern may anchor the end itself.
	pattern, err := regexp.Compile("^(?:" + file.Patterns.DocNo + ")")
	if err != nil {
		return nil, &SchemaError{Reason: "invalid doc_no pattern", Err: err}
	}

	sum := sha256.Sum256(raw)
	loadedAt := time.Now().UTC()

	rs := &Ruleset{
		Version:           versionString(file.Version),
		UpdatedAt:         file.UpdatedAt,
		Description:       file.Description,
		Digest:            hex.EncodeToString(sum[:]),
		LoadedAt:          loadedAt,
		DocNoPattern:      pattern,
		DocNoSource:       file.Patterns.DocNo,
		AttachmentCatalog: make(map[string]CatalogEntry),
		RiskCatalog:       make(map[string]CatalogEntry),
		RoleCatalog:       make(map[string]CatalogEntry),
	}
	if rs.UpdatedAt == "" {
		rs.UpdatedAt = loadedAt.Format(time.RFC3339)
	}
	if rs.Description == "" {
		rs.Description = defaultDescription
	}

	catalogs := newCatalogBuilder()

	for _, entry := range file.DocTypes {
		label := entry.DocType
		if entry.Label != nil && *entry.Label != "" {
			label = *entry.Label
		}
		rs.DocTypes = append(rs.DocTypes, DocType{Code: entry.DocType, Label: label})
	}

	for _, entry := range file.ApprovalRequirements {
		rule := ApprovalRule{
			DocType:       entry.DocType,
			MaxAmount:     entry.MaxAmount,
			RequiredRoles: nonNil(entry.RequiredRoles),
			AllowDelegate: nonNil(entry.AllowDelegationFor),
		}
		if entry.MinAmount != nil {
			rule.MinAmount = *entry.MinAmount
		}
		rule.ID = approvalRuleID(rule)
		rs.ApprovalRules = append(rs.ApprovalRules, rule)

		for _, role := range rule.RequiredRoles {
			catalogs.role(role)
		}
	}

	for _, entry := range file.AttachmentRequirements {
		for _, cond := range entry.Conditions {
			req := AttachmentRequirement{
				ID:                "attachment::" + entry.DocType + "::" + cond.Type,
				DocType:           entry.DocType,
				Type:              cond.Type,
				MinCount:          defaultMinCount,
				RequiredRiskFlags: nonNil(cond.RequiredRiskFlags),
				Note:              cond.Note,
			}
			// The schema only admits whole numbers, so 2.0 is 2.
			if cond.MinCount != nil {
				req.MinCount = int(*cond.MinCount)
			}
			rs.AttachmentRequirements = append(rs.AttachmentRequirements, req)

			catalogs.attachment(req.Type, req.Note)
			for _, flag := range req.RequiredRiskFlags {
				catalogs.risk(flag, req.Note)
			}
		}
	}

	for _, entry := range file.RiskRequirements {
		rule := RiskRule{
			ID:                  "risk::" + entry.RiskFlag,
			RiskFlag:            entry.RiskFlag,
			DocTypes:            nonNil(entry.DocTypes),
			RequiredRoles:       nonNil(entry.RequiredRoles),
			RequiredAttachments: nonNil(entry.RequiredAttachments),
			Note:                entry.Note,
		}
		rs.RiskRules = append(rs.RiskRules, rule)

		catalogs.risk(rule.RiskFlag, rule.Note)
		for _, role := range rule.RequiredRoles {
			catalogs.role(role)
		}
		for _, attachment := range rule.RequiredAttachments {
			catalogs.attachment(attachment, "")
		}
	}

	rs.AttachmentCatalog = catalogs.build(catalogs.attachments, attachmentLabels)
	rs.RiskCatalog = catalogs.build(catalogs.risks, riskFlagLabels)
	rs.RoleCatalog = catalogs.build(catalogs.roles, roleLabels)

	rs.knownDocTypes = make(map[string]struct{})
	if len(rs.DocTypes) > 0 {
		for _, dt := range rs.DocTypes {
			rs.knownDocTypes[dt.Code] = struct{}{}
		}
	} else {
		for _, rule := range rs.ApprovalRules {
			rs.knownDocTypes[rule.DocType] = struct{}{}
		}
	}
	rs.allowedDocTypes = sortedKeys(rs.knownDocTypes)

	return rs, nil
}

// approvalRuleID renders "approval_roles::<doc_type>::<min>-<max>" with amounts
// in their shortest decimal form and "inf" for an unbounded maximum.
func approvalRuleID(rule ApprovalRule) string {
	upper := "inf"
	if rule.MaxAmount != nil {
		upper = formatAmount(*rule.MaxAmount)
	}
	return fmt.Sprintf("approval_roles::%s::%s-%s", rule.DocType, formatAmount(rule.MinAmount), upper)
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// versionString keeps a numeric version exactly as written ("2.0" stays "2.0").
func versionString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return defaultVersion
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil || s == "" {
			return defaultVersion
		}
		return s
	}
	return string(raw)
}

// catalogBuilder accumulates notes per code before the catalogs are frozen.
type catalogBuilder struct {
	attachments map[string]map[string]struct{}
	risks       map[string]map[string]struct{}
	roles       map[string]map[string]struct{}
}

func newCatalogBuilder() *catalogBuilder {
	return &catalogBuilder{
		attachments: make(map[string]map[string]struct{}),
		risks:       make(map[string]map[string]struct{}),
		roles:       make(map[string]map[string]struct{}),
	}
}

func (b *catalogBuilder) attachment(code, note string) { register(b.attachments, code, note) }
func (b *catalogBuilder) risk(code, note string)       { register(b.risks, code, note) }
func (b *catalogBuilder) role(code string)             { register(b.roles, code, "") }

func register(dst map[string]map[string]struct{}, code, note string) {
	if code == "" {
		return
	}
	notes, ok := dst[code]
	if !ok {
		notes = make(map[string]struct{})
		dst[code] = notes
	}
	if note != "" {
		notes[note] = struct{}{}
	}
}

func (b *catalogBuilder) build(src map[string]map[string]struct{}, labels map[string]string) map[string]CatalogEntry {
	out := make(map[string]CatalogEntry, len(src))
	for code, notes := range src {
		out[code] = CatalogEntry{
			Label: labelFor(code, labels),
			Notes: sortedKeys(notes),
		}
	}
	return out
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
