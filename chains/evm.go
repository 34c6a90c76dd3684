package chains

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/agentpay/payflow/types"
)

const erc20ABI = `[{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"}]`

// EVMBalanceReader reads ERC-20 balances over JSON-RPC, one lazily-dialed
// client per chain.
type EVMBalanceReader struct {
	registry *Registry
	parsed   abi.ABI

	mu      sync.Mutex
	clients map[int64]*ethclient.Client
}

// NewEVMBalanceReader builds a reader over the registry's RPC endpoints.
func NewEVMBalanceReader(registry *Registry) (*EVMBalanceReader, error) {
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse erc20 ABI: %w", err)
	}
	return &EVMBalanceReader{
		registry: registry,
		parsed:   parsed,
		clients:  make(map[int64]*ethclient.Client),
	}, nil
}

// Balance calls balanceOf(owner) on the chain's payment asset.
func (r *EVMBalanceReader) Balance(ctx context.Context, chainID int64, owner string) (*big.Int, error) {
	info, ok := r.registry.ByID(chainID)
	if !ok {
		return nil, types.NewEngineError(types.ErrUnsupportedNetwork,
			fmt.Sprintf("chain %d is not supported", chainID))
	}

	client, err := r.client(chainID, info.RPCURL)
	if err != nil {
		return nil, err
	}

	input, err := r.parsed.Pack("balanceOf", common.HexToAddress(owner))
	if err != nil {
		return nil, fmt.Errorf("failed to pack balanceOf call: %w", err)
	}

	asset := common.HexToAddress(info.AssetAddress)
	output, err := client.CallContract(ctx, ethereumCallMsg(asset, input), nil)
	if err != nil {
		return nil, types.NewEngineError(types.ErrNetworkError,
			fmt.Sprintf("balance query on chain %d failed: %v", chainID, err))
	}

	results, err := r.parsed.Unpack("balanceOf", output)
	if err != nil || len(results) != 1 {
		return nil, fmt.Errorf("failed to unpack balanceOf result: %v", err)
	}
	balance, ok := results[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected balanceOf result type %T", results[0])
	}
	return balance, nil
}

func (r *EVMBalanceReader) client(chainID int64, rpcURL string) (*ethclient.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if client, ok := r.clients[chainID]; ok {
		return client, nil
	}
	if rpcURL == "" {
		return nil, types.NewEngineError(types.ErrConfigError,
			fmt.Sprintf("no RPC URL configured for chain %d", chainID))
	}
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, types.NewEngineError(types.ErrNetworkError,
			fmt.Sprintf("failed to dial RPC for chain %d: %v", chainID, err))
	}
	r.clients[chainID] = client
	return client, nil
}

func ethereumCallMsg(to common.Address, data []byte) ethereum.CallMsg {
	return ethereum.CallMsg{To: &to, Data: data}
}

// Close releases every dialed RPC client.
func (r *EVMBalanceReader) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, client := range r.clients {
		client.Close()
	}
	r.clients = make(map[int64]*ethclient.Client)
}
