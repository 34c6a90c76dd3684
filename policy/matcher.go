// Package policy decides whether a payment against an endpoint is
// auto-approved, needs manual approval, or is rejected. It is a pure
// authorization gate: no balance, no cryptography.
package policy

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/agentpay/payflow/logger"
	"github.com/agentpay/payflow/storage"
	"github.com/agentpay/payflow/types"
)

// Matcher matches endpoints against the user's spending policies.
type Matcher struct {
	policies storage.PolicyRepository
	log      logger.Logger
}

// NewMatcher builds a Matcher over the policy repository.
func NewMatcher(policies storage.PolicyRepository, log logger.Logger) *Matcher {
	if log == nil {
		log = logger.NoopLogger{}
	}
	return &Matcher{policies: policies, log: log}
}

// CheckPolicy selects the most specific active policy whose endpoint
// pattern prefixes the endpoint at a URL boundary. When nothing matches, a
// draft policy for the endpoint's origin is upserted (idempotently) and
// the payment is rejected pending review.
func (m *Matcher) CheckPolicy(ctx context.Context, amount, endpoint, userID string, chainID int64) (types.PolicyCheckResult, error) {
	active, err := m.policies.GetActivePolicies(ctx, userID, chainID)
	if err != nil {
		return types.PolicyCheckResult{}, types.NewEngineError(types.ErrStorageError,
			fmt.Sprintf("failed to load policies: %v", err))
	}

	var matched *types.SpendingPolicy
	for i := range active {
		if !patternMatches(active[i].EndpointPattern, endpoint) {
			continue
		}
		if matched == nil || len(active[i].EndpointPattern) > len(matched.EndpointPattern) {
			matched = &active[i]
		}
	}

	if matched == nil {
		return m.provisionDraft(ctx, endpoint, userID, chainID)
	}

	result := types.PolicyCheckResult{
		PolicyID: &matched.ID,
		AutoSign: matched.AutoSign,
	}
	if matched.AutoSign {
		result.Action = types.ActionAutoSign
	} else {
		result.Action = types.ActionManualApproval
		result.Reason = fmt.Sprintf("policy for %s requires manual approval", matched.EndpointPattern)
	}

	m.log.Debug("policy matched", map[string]any{
		"endpoint": endpoint,
		"pattern":  matched.EndpointPattern,
		"action":   string(result.Action),
	})
	return result, nil
}

// provisionDraft upserts a draft policy for the endpoint's origin. The
// upsert is atomic at the storage layer, so concurrent first requests to
// the same origin yield exactly one draft row.
func (m *Matcher) provisionDraft(ctx context.Context, endpoint, userID string, chainID int64) (types.PolicyCheckResult, error) {
	origin, err := endpointOrigin(endpoint)
	if err != nil {
		return types.PolicyCheckResult{}, types.NewEngineError(types.ErrPolicyRejected,
			fmt.Sprintf("cannot derive origin from %q: %v", endpoint, err))
	}

	draft, err := m.policies.UpsertDraftPolicy(ctx, userID, chainID, origin)
	if err != nil {
		return types.PolicyCheckResult{}, types.NewEngineError(types.ErrStorageError,
			fmt.Sprintf("failed to create draft policy: %v", err))
	}

	m.log.Info("draft policy created for unmatched endpoint", map[string]any{
		"origin":  origin,
		"chainId": chainID,
	})

	return types.PolicyCheckResult{
		Action:   types.ActionRejected,
		PolicyID: &draft.ID,
		Reason: fmt.Sprintf(
			"no policy covers %s; a draft policy for %s was created and awaits review", endpoint, origin),
	}, nil
}

// patternMatches reports whether pattern prefixes endpoint at a URL
// boundary. The character following the prefix must be '/', '?', '#', or
// end-of-string, unless the pattern itself already ends in one of those.
// This keeps https://api.example.com from matching
// https://api.example.com-evil.com while still matching the exact value
// and its sub-paths, queries, and fragments.
func patternMatches(pattern, endpoint string) bool {
	if pattern == "" || !strings.HasPrefix(endpoint, pattern) {
		return false
	}
	if len(endpoint) == len(pattern) {
		return true
	}
	switch pattern[len(pattern)-1] {
	case '/', '?', '#':
		return true
	}
	switch endpoint[len(pattern)] {
	case '/', '?', '#':
		return true
	}
	return false
}

// endpointOrigin reduces an endpoint URL to scheme://host.
func endpointOrigin(endpoint string) (string, error) {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("not an absolute URL")
	}
	return parsed.Scheme + "://" + parsed.Host, nil
}
