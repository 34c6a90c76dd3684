package chains

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentpay/payflow/types"
)

// fakeBalances serves canned balances per chain and records query order.
type fakeBalances struct {
	byChain map[int64]*big.Int
	errs    map[int64]error
	queried []int64
}

func (f *fakeBalances) Balance(_ context.Context, chainID int64, _ string) (*big.Int, error) {
	f.queried = append(f.queried, chainID)
	if err, ok := f.errs[chainID]; ok {
		return nil, err
	}
	if b, ok := f.byChain[chainID]; ok {
		return b, nil
	}
	return big.NewInt(0), nil
}

func hotWallet(chainID int64) types.Wallet {
	return types.Wallet{
		UserID:       "user-1",
		ChainID:      chainID,
		Address:      "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266",
		EncryptedKey: "aa:bb:cc",
	}
}

func accepts(networks ...string) []types.PaymentRequirements {
	out := make([]types.PaymentRequirements, 0, len(networks))
	for _, n := range networks {
		out = append(out, types.PaymentRequirements{
			Scheme:            "exact",
			Network:           n,
			Amount:            "100000",
			PayTo:             "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
			Asset:             "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
			MaxTimeoutSeconds: 300,
		})
	}
	return out
}

func TestSelectBestChain_HighestBalanceWins(t *testing.T) {
	balances := &fakeBalances{byChain: map[int64]*big.Int{
		8453: big.NewInt(50),
		137:  big.NewInt(500),
	}}
	s := NewSelector(NewRegistry(DefaultChains()), balances)

	sel := s.SelectBestChain(context.Background(), accepts("base", "polygon"),
		[]types.Wallet{hotWallet(8453), hotWallet(137)})
	require.NotNil(t, sel)
	assert.Equal(t, int64(137), sel.ChainID)
	assert.Equal(t, 1, sel.AcceptIndex)
}

func TestSelectBestChain_TieBreaksInAcceptsOrder(t *testing.T) {
	balances := &fakeBalances{byChain: map[int64]*big.Int{
		8453: big.NewInt(100),
		137:  big.NewInt(100),
	}}
	s := NewSelector(NewRegistry(DefaultChains()), balances)

	sel := s.SelectBestChain(context.Background(), accepts("polygon", "base"),
		[]types.Wallet{hotWallet(8453), hotWallet(137)})
	require.NotNil(t, sel)
	assert.Equal(t, int64(137), sel.ChainID)
	assert.Equal(t, 0, sel.AcceptIndex)
}

func TestSelectBestChain_SkipsUnresolvableNetworks(t *testing.T) {
	balances := &fakeBalances{byChain: map[int64]*big.Int{8453: big.NewInt(1)}}
	s := NewSelector(NewRegistry(DefaultChains()), balances)

	sel := s.SelectBestChain(context.Background(),
		accepts("solana-mainnet", "base"), []types.Wallet{hotWallet(8453)})
	require.NotNil(t, sel)
	assert.Equal(t, int64(8453), sel.ChainID)
	assert.Equal(t, 1, sel.AcceptIndex)
}

func TestSelectBestChain_NoResolvableNetwork(t *testing.T) {
	s := NewSelector(NewRegistry(DefaultChains()), &fakeBalances{})
	sel := s.SelectBestChain(context.Background(), accepts("solana-mainnet"), nil)
	assert.Nil(t, sel)
}

func TestSelectBestChain_OnlyActiveSignersQueried(t *testing.T) {
	balances := &fakeBalances{byChain: map[int64]*big.Int{
		8453: big.NewInt(1000),
		137:  big.NewInt(10),
	}}
	s := NewSelector(NewRegistry(DefaultChains()), balances)

	// The base wallet's session key is expired, so only polygon competes.
	baseWallet := types.Wallet{
		UserID:  "user-1",
		ChainID: 8453,
		Address: "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266",
		SessionKey: &types.SessionKey{
			EncryptedKey: "aa:bb:cc",
			SmartAccount: "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
			ExpiresAt:    time.Now().Add(-time.Hour),
		},
	}

	sel := s.SelectBestChain(context.Background(), accepts("base", "polygon"),
		[]types.Wallet{baseWallet, hotWallet(137)})
	require.NotNil(t, sel)
	assert.Equal(t, int64(137), sel.ChainID)
	assert.Equal(t, []int64{137}, balances.queried)
}

func TestSelectBestChain_ReturnsRankedWallet(t *testing.T) {
	balances := &fakeBalances{byChain: map[int64]*big.Int{8453: big.NewInt(500)}}
	s := NewSelector(NewRegistry(DefaultChains()), balances)

	// A watch-only wallet sits before the signing wallet on the same
	// chain; the selection must carry the wallet the ranking used.
	watchOnly := types.Wallet{
		UserID:  "user-1",
		ChainID: 8453,
		Address: "0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC",
	}
	active := hotWallet(8453)

	sel := s.SelectBestChain(context.Background(), accepts("base"),
		[]types.Wallet{watchOnly, active})
	require.NotNil(t, sel)
	require.NotNil(t, sel.Wallet)
	assert.Equal(t, active.Address, sel.Wallet.Address)
}

func TestSelectBestChain_DegradesToFirstResolvedWithoutSigners(t *testing.T) {
	s := NewSelector(NewRegistry(DefaultChains()), &fakeBalances{})

	sel := s.SelectBestChain(context.Background(), accepts("polygon", "base"), nil)
	require.NotNil(t, sel)
	assert.Equal(t, int64(137), sel.ChainID)
	assert.Equal(t, 0, sel.AcceptIndex)
	assert.Nil(t, sel.Wallet)
}

func TestSelectBestChain_RPCErrorDisqualifiesCandidate(t *testing.T) {
	balances := &fakeBalances{
		byChain: map[int64]*big.Int{137: big.NewInt(1)},
		errs:    map[int64]error{8453: errors.New("rpc down")},
	}
	s := NewSelector(NewRegistry(DefaultChains()), balances)

	sel := s.SelectBestChain(context.Background(), accepts("base", "polygon"),
		[]types.Wallet{hotWallet(8453), hotWallet(137)})
	require.NotNil(t, sel)
	assert.Equal(t, int64(137), sel.ChainID)
}
