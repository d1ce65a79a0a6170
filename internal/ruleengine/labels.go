package ruleengine

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// roleLabels holds display names for well-known role codes.
var roleLabels = map[string]string{
	"ROLE_LEAD": "Team Lead",
	"ROLE_HEAD": "Division Head",
	"ROLE_FIN":  "Finance Approval",
	"ROLE_EXE":  "Executive Approval",
	"ROLE_PUR":  "Procurement Team",
	"ROLE_LGL":  "Legal Review",
	"ROLE_SEC":  "Security Review",
	"ROLE_CEO":  "Chief Executive",
}

// roleOrder ranks roles from first to last approver. Unknown roles sort last.
var roleOrder = map[string]int{
	"ROLE_LEAD": 10,
	"ROLE_HEAD": 20,
	"ROLE_PUR":  25,
	"ROLE_FIN":  30,
	"ROLE_LGL":  40,
	"ROLE_SEC":  45,
	"ROLE_EXE":  50,
	"ROLE_CEO":  60,
}

const unknownRoleOrder = 999

var attachmentLabels = map[string]string{
	"quote":               "Quotation",
	"plan":                "Event Plan",
	"receipt":             "Invoice / Receipt",
	"card_statement":      "Corporate Card Statement",
	"security_review":     "Security Review Report",
	"legal_review":        "Legal Review Report",
	"contract":            "Contract",
	"inspection":          "Inspection Report",
	"recipient_list":      "Recipient List",
	"nda_original":        "NDA Original",
	"dpa":                 "DPA (Data Processing Agreement)",
	"medical_certificate": "Medical Certificate",
	"family_event":        "Family Event Evidence",
}

var riskFlagLabels = map[string]string{
	"personal_data": "Personal Data",
	"it_saas":       "IT / SaaS Adoption",
	"event":         "Event / Promotion",
	"leave_sick":    "Sick Leave",
	"leave_family":  "Family Event Leave",
}

// labelFor returns the known label for code, or a humanised form of the code
// ("card_statement" -> "Card Statement").
func labelFor(code string, known map[string]string) string {
	if label, ok := known[code]; ok {
		return label
	}
	// Casers keep internal state, so one is built per call.
	return cases.Title(language.Und).String(strings.ReplaceAll(code, "_", " "))
}

func roleRank(code string) int {
	if order, ok := roleOrder[code]; ok {
		return order
	}
	return unknownRoleOrder
}
