package cache

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaeljc/eapproval/internal/ruleengine"
)

func ptr[T any](v T) *T { return &v }

func basePayload() ruleengine.DocumentPayload {
	return ruleengine.DocumentPayload{
		DocNo:       "EXR-2025-001",
		DocType:     "EXR",
		Title:       ptr("Team offsite"),
		AmountTotal: ptr(1500.0),
		RiskFlags:   []string{"event"},
		ApprovalChain: []ruleengine.ApprovalMember{
			{Role: "ROLE_LEAD", UserID: ptr("u-1")},
		},
		Attachments: []ruleengine.Attachment{{Filename: "quote.pdf", Type: "quote"}},
	}
}

func TestResultKey(t *testing.T) {
	t.Parallel()

	base, err := ResultKey("abc", basePayload())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(base, "abc:"), "key must be scoped by ruleset digest")
	assert.Len(t, strings.TrimPrefix(base, "abc:"), 32)

	tests := []struct {
		name     string
		digest   string
		mutate   func(p *ruleengine.DocumentPayload)
		wantSame bool
	}{
		{name: "identical payload", digest: "abc", mutate: func(p *ruleengine.DocumentPayload) {}, wantSame: true},
		{name: "different title", digest: "abc", mutate: func(p *ruleengine.DocumentPayload) { p.Title = ptr("Other") }, wantSame: true},
		{name: "different user id", digest: "abc", mutate: func(p *ruleengine.DocumentPayload) { p.ApprovalChain[0].UserID = nil }, wantSame: true},
		{name: "different filename", digest: "abc", mutate: func(p *ruleengine.DocumentPayload) { p.Attachments[0].Filename = "q2.pdf" }, wantSame: true},
		{name: "missing amount", digest: "abc", mutate: func(p *ruleengine.DocumentPayload) { p.AmountTotal = nil }, wantSame: false},
		{name: "different digest", digest: "def", mutate: func(p *ruleengine.DocumentPayload) {}, wantSame: false},
		{name: "different amount", digest: "abc", mutate: func(p *ruleengine.DocumentPayload) { p.AmountTotal = ptr(2000.0) }, wantSame: false},
		{name: "different role", digest: "abc", mutate: func(p *ruleengine.DocumentPayload) { p.ApprovalChain[0].Role = "ROLE_HEAD" }, wantSame: false},
		{name: "different attachment type", digest: "abc", mutate: func(p *ruleengine.DocumentPayload) { p.Attachments[0].Type = "plan" }, wantSame: false},
		{name: "different risk flags", digest: "abc", mutate: func(p *ruleengine.DocumentPayload) { p.RiskFlags = nil }, wantSame: false},
		{name: "different doc no", digest: "abc", mutate: func(p *ruleengine.DocumentPayload) { p.DocNo = "EXR-2025-002" }, wantSame: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// Arrange
			payload := basePayload()
			tt.mutate(&payload)

			// Act
			key, err := ResultKey(tt.digest, payload)

			// Assert
			require.NoError(t, err)
			if tt.wantSame {
				assert.Equal(t, base, key)
			} else {
				assert.NotEqual(t, base, key)
			}
		})
	}
}

func TestResultKey_ZeroAndMissingAmountCollide(t *testing.T) {
	t.Parallel()

	withZero := basePayload()
	withZero.AmountTotal = ptr(0.0)
	missing := basePayload()
	missing.AmountTotal = nil

	a, err := ResultKey("abc", withZero)
	require.NoError(t, err)
	b, err := ResultKey("abc", missing)
	require.NoError(t, err)

	assert.Equal(t, a, b, "a missing amount is evaluated as 0")
}
