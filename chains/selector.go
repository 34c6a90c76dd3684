package chains

import (
	"context"
	"math/big"
	"time"

	"github.com/agentpay/payflow/types"
)

// BalanceReader reads the payment-asset balance of an address on a chain,
// in atomic units.
type BalanceReader interface {
	Balance(ctx context.Context, chainID int64, owner string) (*big.Int, error)
}

// Selection identifies the chain chosen to pay from and the merchant
// requirement it satisfies.
type Selection struct {
	ChainID     int64
	AcceptIndex int

	// Wallet is the wallet the balance ranking used on the selected
	// chain. It is nil when the selection degraded to a chain where the
	// user has no wallet with an active signer.
	Wallet *types.Wallet
}

// Selector picks the chain to pay from among the networks a merchant
// accepts.
type Selector struct {
	registry *Registry
	balances BalanceReader
}

// NewSelector builds a Selector over the given registry and balance oracle.
func NewSelector(registry *Registry, balances BalanceReader) *Selector {
	return &Selector{registry: registry, balances: balances}
}

// SelectBestChain resolves every accepted network to a supported chain,
// drops unresolvable entries, and among the survivors picks the chain with
// the highest balance on a wallet that can sign automatically right now.
// Ties break in accepts order. When no candidate has an active signing
// capability the first resolved candidate is returned anyway, so the
// caller can degrade to manual approval instead of failing outright.
// Returns nil only when zero entries resolve.
//
// Balance lookups run sequentially: a misbehaving RPC endpoint surfaces as
// latency on its own candidate, and ordering stays deterministic for the
// tie-break.
func (s *Selector) SelectBestChain(ctx context.Context, accepts []types.PaymentRequirements, wallets []types.Wallet) *Selection {
	type candidate struct {
		info        Info
		acceptIndex int
		wallet      *types.Wallet
	}

	now := time.Now()
	var candidates []candidate
	for i, accept := range accepts {
		info, ok := s.registry.Resolve(accept.Network)
		if !ok {
			continue
		}
		c := candidate{info: info, acceptIndex: i}
		for j := range wallets {
			if wallets[j].ChainID == info.ChainID && wallets[j].HasActiveSigner(now) {
				c.wallet = &wallets[j]
				break
			}
		}
		candidates = append(candidates, c)
	}

	if len(candidates) == 0 {
		return nil
	}

	var best *Selection
	var bestBalance *big.Int
	for _, c := range candidates {
		if c.wallet == nil {
			continue
		}
		balance, err := s.balances.Balance(ctx, c.info.ChainID, c.wallet.PayerAddress())
		if err != nil {
			// A failing RPC disqualifies this candidate, not the payment.
			continue
		}
		if bestBalance == nil || balance.Cmp(bestBalance) > 0 {
			bestBalance = balance
			best = &Selection{ChainID: c.info.ChainID, AcceptIndex: c.acceptIndex, Wallet: c.wallet}
		}
	}

	if best != nil {
		return best
	}

	// No candidate is auto-signable; hand back the first resolved one and
	// let the orchestrator route to manual approval.
	return &Selection{ChainID: candidates[0].info.ChainID, AcceptIndex: candidates[0].acceptIndex, Wallet: candidates[0].wallet}
}
