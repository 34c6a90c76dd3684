// Package chains maps merchant-advertised network identifiers onto
// supported chains, selects the chain to pay from, and reads on-chain
// token balances.
package chains

import (
	"fmt"
	"strconv"
	"strings"
)

// Info describes one supported chain and its payment asset.
type Info struct {
	// ChainID is the EVM chain id (the reference part of eip155:<id>).
	ChainID int64

	// Network is the registry name, e.g. "base".
	Network string

	// AssetAddress is the payment token contract on this chain.
	AssetAddress string

	// AssetName and AssetVersion are the token's EIP-712 domain fields.
	AssetName    string
	AssetVersion string

	// AssetDecimals converts atomic units to human units.
	AssetDecimals int32

	// RPCURL is the JSON-RPC endpoint used for balance queries.
	RPCURL string
}

// CAIP2 returns the chain's CAIP-2 identifier, e.g. "eip155:8453".
func (i Info) CAIP2() string {
	return fmt.Sprintf("eip155:%d", i.ChainID)
}

// Registry resolves network strings (CAIP-2 or registry names) to chains.
type Registry struct {
	byID      map[int64]Info
	byNetwork map[string]Info
}

// NewRegistry indexes the given chains by id and network name.
func NewRegistry(infos []Info) *Registry {
	r := &Registry{
		byID:      make(map[int64]Info, len(infos)),
		byNetwork: make(map[string]Info, len(infos)),
	}
	for _, info := range infos {
		r.byID[info.ChainID] = info
		r.byNetwork[strings.ToLower(info.Network)] = info
	}
	return r
}

// Resolve maps a merchant network identifier onto a supported chain.
// Accepts the CAIP-2 form ("eip155:8453") and registry names ("base").
func (r *Registry) Resolve(network string) (Info, bool) {
	network = strings.ToLower(strings.TrimSpace(network))
	if network == "" {
		return Info{}, false
	}

	if rest, ok := strings.CutPrefix(network, "eip155:"); ok {
		id, err := strconv.ParseInt(rest, 10, 64)
		if err != nil {
			return Info{}, false
		}
		info, ok := r.byID[id]
		return info, ok
	}

	info, ok := r.byNetwork[network]
	return info, ok
}

// ByID looks a chain up by its EVM chain id.
func (r *Registry) ByID(chainID int64) (Info, bool) {
	info, ok := r.byID[chainID]
	return info, ok
}

// DefaultChains lists the networks the engine supports out of the box,
// paying with native USDC. RPC URLs come from configuration.
func DefaultChains() []Info {
	return []Info{
		{
			ChainID: 8453, Network: "base",
			AssetAddress: "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
			AssetName:    "USD Coin", AssetVersion: "2", AssetDecimals: 6,
		},
		{
			ChainID: 84532, Network: "base-sepolia",
			AssetAddress: "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
			AssetName:    "USDC", AssetVersion: "2", AssetDecimals: 6,
		},
		{
			ChainID: 137, Network: "polygon",
			AssetAddress: "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359",
			AssetName:    "USD Coin", AssetVersion: "2", AssetDecimals: 6,
		},
		{
			ChainID: 80002, Network: "polygon-amoy",
			AssetAddress: "0x41E94Eb019C0762f9Bfcf9Fb1E58725BfB0e7582",
			AssetName:    "USDC", AssetVersion: "2", AssetDecimals: 6,
		},
	}
}
