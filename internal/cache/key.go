package cache

import (
	"encoding/json"
	"fmt"

	"github.com/spaolacci/murmur3"

	"github.com/rafaeljc/eapproval/internal/ruleengine"
)

// resultKeyInput is the part of a payload that can change a validation
// response. Title, user ids and filenames are left out so documents that
// differ only there share an entry.
type resultKeyInput struct {
	DocNo       string   `json:"n"`
	DocType     string   `json:"t"`
	Amount      float64  `json:"a"`
	RiskFlags   []string `json:"f"`
	Roles       []string `json:"r"`
	Attachments []string `json:"x"`
}

// ResultKey builds the L1 key for payload evaluated under the ruleset with
// the given digest: "<digest>:<murmur3 x64 128-bit hash of the payload>".
func ResultKey(digest string, payload ruleengine.DocumentPayload) (string, error) {
	in := resultKeyInput{
		DocNo:       payload.DocNo,
		DocType:     payload.DocType,
		Amount:      payload.Amount(),
		RiskFlags:   payload.RiskFlags,
		Roles:       make([]string, 0, len(payload.ApprovalChain)),
		Attachments: make([]string, 0, len(payload.Attachments)),
	}
	for _, member := range payload.ApprovalChain {
		in.Roles = append(in.Roles, member.Role)
	}
	for _, att := range payload.Attachments {
		in.Attachments = append(in.Attachments, att.Type)
	}

	raw, err := json.Marshal(in)
	if err != nil {
		return "", fmt.Errorf("failed to encode cache key: %w", err)
	}

	h1, h2 := murmur3.Sum128(raw)
	return fmt.Sprintf("%s:%016x%016x", digest, h1, h2), nil
}
