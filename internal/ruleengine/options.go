package ruleengine

import (
	"sort"
	"strings"
)

// noteSeparator joins catalog notes into a single display string.
const noteSeparator = " · "

// Metadata summarises a loaded ruleset.
type Metadata struct {
	Version     string `json:"version"`
	UpdatedAt   string `json:"updated_at"`
	Description string `json:"description"`
	Digest      string `json:"digest"`
	Stats       Stats  `json:"stats"`
}

// Stats counts the rules of each kind.
type Stats struct {
	// DocTypes lists the doc types referenced by approval rules, sorted.
	DocTypes        []string `json:"doc_types"`
	ApprovalRules   int      `json:"approval_rules"`
	AttachmentRules int      `json:"attachment_rules"`
	RiskRules       int      `json:"risk_rules"`
}

// Option is one entry of a UI selection list.
type Option struct {
	Code  string `json:"code"`
	Label string `json:"label"`
	Note  string `json:"note,omitempty"`
	Order int    `json:"order,omitempty"`
}

// Options groups the selection lists a client needs to compose a document.
type Options struct {
	DocTypes    []Option `json:"doc_types"`
	Roles       []Option `json:"roles"`
	Attachments []Option `json:"attachments"`
	RiskFlags   []Option `json:"risk_flags"`
}

// Metadata returns the ruleset summary.
func (rs *Ruleset) Metadata() Metadata {
	docTypes := make(map[string]struct{}, len(rs.ApprovalRules))
	for _, rule := range rs.ApprovalRules {
		docTypes[rule.DocType] = struct{}{}
	}

	return Metadata{
		Version:     rs.Version,
		UpdatedAt:   rs.UpdatedAt,
		Description: rs.Description,
		Digest:      rs.Digest,
		Stats: Stats{
			DocTypes:        sortedKeys(docTypes),
			ApprovalRules:   len(rs.ApprovalRules),
			AttachmentRules: len(rs.AttachmentRequirements),
			RiskRules:       len(rs.RiskRules),
		},
	}
}

// Options builds the UI selection lists from the catalogs.
func (rs *Ruleset) Options() Options {
	return Options{
		DocTypes:    rs.docTypeOptions(),
		Roles:       rs.roleOptions(),
		Attachments: catalogOptions(rs.AttachmentCatalog),
		RiskFlags:   catalogOptions(rs.RiskCatalog),
	}
}

// docTypeOptions keeps declared order; without declarations the doc types of
// the approval rules are used, sorted by code.
func (rs *Ruleset) docTypeOptions() []Option {
	opts := make([]Option, 0, len(rs.DocTypes))
	if len(rs.DocTypes) > 0 {
		for _, dt := range rs.DocTypes {
			opts = append(opts, Option{Code: dt.Code, Label: dt.Label})
		}
		return opts
	}

	for _, code := range rs.allowedDocTypes {
		opts = append(opts, Option{Code: code, Label: code})
	}
	return opts
}

// roleOptions orders roles by approval rank, then by code.
func (rs *Ruleset) roleOptions() []Option {
	opts := make([]Option, 0, len(rs.RoleCatalog))
	for code, entry := range rs.RoleCatalog {
		opts = append(opts, Option{Code: code, Label: entry.Label, Order: roleRank(code)})
	}
	sort.Slice(opts, func(i, j int) bool {
		if opts[i].Order != opts[j].Order {
			return opts[i].Order < opts[j].Order
		}
		return opts[i].Code < opts[j].Code
	})
	return opts
}

func catalogOptions(catalog map[string]CatalogEntry) []Option {
	opts := make([]Option, 0, len(catalog))
	for code, entry := range catalog {
		opts = append(opts, Option{
			Code:  code,
			Label: entry.Label,
			Note:  strings.Join(entry.Notes, noteSeparator),
		})
	}
	sort.Slice(opts, func(i, j int) bool {
		if opts[i].Label != opts[j].Label {
			return opts[i].Label < opts[j].Label
		}
		return opts[i].Code < opts[j].Code
	})
	return opts
}
