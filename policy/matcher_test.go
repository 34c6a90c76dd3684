package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentpay/payflow/storage/memory"
	"github.com/agentpay/payflow/types"
)

const (
	testUser  = "user-1"
	testChain = int64(8453)
)

func newTestMatcher(t *testing.T) (*Matcher, *memory.Backend) {
	t.Helper()
	db := memory.New()
	return NewMatcher(db, nil), db
}

func addPolicy(t *testing.T, db *memory.Backend, pattern string, autoSign bool) types.SpendingPolicy {
	t.Helper()
	p, err := db.CreatePolicy(context.Background(), types.SpendingPolicy{
		UserID:          testUser,
		ChainID:         testChain,
		EndpointPattern: pattern,
		AutoSign:        autoSign,
		Status:          types.PolicyActive,
	})
	require.NoError(t, err)
	return p
}

func TestCheckPolicy_AutoSignMatch(t *testing.T) {
	m, db := newTestMatcher(t)
	p := addPolicy(t, db, "https://api.example.com/v1", true)

	result, err := m.CheckPolicy(context.Background(), "0.10", "https://api.example.com/v1/reports", testUser, testChain)
	require.NoError(t, err)
	assert.Equal(t, types.ActionAutoSign, result.Action)
	assert.True(t, result.AutoSign)
	require.NotNil(t, result.PolicyID)
	assert.Equal(t, p.ID, *result.PolicyID)
}

func TestCheckPolicy_ManualApprovalMatch(t *testing.T) {
	m, db := newTestMatcher(t)
	addPolicy(t, db, "https://api.example.com", false)

	result, err := m.CheckPolicy(context.Background(), "0.10", "https://api.example.com/v1/reports", testUser, testChain)
	require.NoError(t, err)
	assert.Equal(t, types.ActionManualApproval, result.Action)
	assert.False(t, result.AutoSign)
}

func TestCheckPolicy_LongestPrefixWins(t *testing.T) {
	m, db := newTestMatcher(t)
	addPolicy(t, db, "https://api.example.com", false)
	specific := addPolicy(t, db, "https://api.example.com/v1/reports", true)

	result, err := m.CheckPolicy(context.Background(), "0.10", "https://api.example.com/v1/reports/today", testUser, testChain)
	require.NoError(t, err)
	assert.Equal(t, types.ActionAutoSign, result.Action)
	assert.Equal(t, specific.ID, *result.PolicyID)
}

func TestCheckPolicy_BoundaryRule(t *testing.T) {
	m, db := newTestMatcher(t)
	addPolicy(t, db, "https://api.example.com", true)

	// Exact value and boundary-delimited extensions match.
	for _, endpoint := range []string{
		"https://api.example.com",
		"https://api.example.com/v1",
		"https://api.example.com?q=1",
		"https://api.example.com#frag",
	} {
		result, err := m.CheckPolicy(context.Background(), "0.10", endpoint, testUser, testChain)
		require.NoError(t, err)
		assert.Equal(t, types.ActionAutoSign, result.Action, endpoint)
	}

	// A lookalike host must not ride on the prefix.
	result, err := m.CheckPolicy(context.Background(), "0.10", "https://api.example.com-evil.com/steal", testUser, testChain)
	require.NoError(t, err)
	assert.Equal(t, types.ActionRejected, result.Action)
}

func TestCheckPolicy_PatternEndingInSlashMatchesAnyExtension(t *testing.T) {
	m, db := newTestMatcher(t)
	addPolicy(t, db, "https://api.example.com/v1/", true)

	result, err := m.CheckPolicy(context.Background(), "0.10", "https://api.example.com/v1/reports", testUser, testChain)
	require.NoError(t, err)
	assert.Equal(t, types.ActionAutoSign, result.Action)
}

func TestCheckPolicy_OtherChainDoesNotMatch(t *testing.T) {
	m, db := newTestMatcher(t)
	addPolicy(t, db, "https://api.example.com", true)

	result, err := m.CheckPolicy(context.Background(), "0.10", "https://api.example.com/v1", testUser, 137)
	require.NoError(t, err)
	assert.Equal(t, types.ActionRejected, result.Action)
}

func TestCheckPolicy_NoMatchCreatesDraftOnce(t *testing.T) {
	m, db := newTestMatcher(t)

	first, err := m.CheckPolicy(context.Background(), "0.10", "https://new.example.com/v2/data?x=1", testUser, testChain)
	require.NoError(t, err)
	assert.Equal(t, types.ActionRejected, first.Action)
	require.NotNil(t, first.PolicyID)

	second, err := m.CheckPolicy(context.Background(), "0.10", "https://new.example.com/other", testUser, testChain)
	require.NoError(t, err)
	assert.Equal(t, types.ActionRejected, second.Action)
	assert.Equal(t, *first.PolicyID, *second.PolicyID)

	policies, err := db.GetPolicies(context.Background(), testUser)
	require.NoError(t, err)
	require.Len(t, policies, 1)
	assert.Equal(t, types.PolicyDraft, policies[0].Status)
	assert.Equal(t, "https://new.example.com", policies[0].EndpointPattern)
}

func TestCheckPolicy_DraftPolicyDoesNotAuthorize(t *testing.T) {
	m, db := newTestMatcher(t)
	_, err := db.UpsertDraftPolicy(context.Background(), testUser, testChain, "https://api.example.com")
	require.NoError(t, err)

	result, err := m.CheckPolicy(context.Background(), "0.10", "https://api.example.com/v1", testUser, testChain)
	require.NoError(t, err)
	assert.Equal(t, types.ActionRejected, result.Action)
}

func TestPatternMatches(t *testing.T) {
	tests := []struct {
		pattern  string
		endpoint string
		want     bool
	}{
		{"https://a.com/v1", "https://a.com/v1", true},
		{"https://a.com/v1", "https://a.com/v1/x", true},
		{"https://a.com/v1", "https://a.com/v1?x=1", true},
		{"https://a.com/v1", "https://a.com/v1#x", true},
		{"https://a.com/v1", "https://a.com/v1x", false},
		{"https://a.com/v1", "https://a.com/v2", false},
		{"https://a.com/v1/", "https://a.com/v1/x", true},
		{"https://a.com", "https://a.com-evil.com", false},
		{"https://a.com", "https://a.com.evil.com", false},
		{"", "https://a.com", false},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, patternMatches(tc.pattern, tc.endpoint),
			"pattern=%s endpoint=%s", tc.pattern, tc.endpoint)
	}
}
