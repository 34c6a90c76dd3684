// Package signer provides the signing capability used to authorize
// payments. A Signer is bound to one chain and one paying account and
// produces EIP-712 typed-data signatures; callers never see raw key bytes.
package signer

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/agentpay/payflow/eip712"
	"github.com/agentpay/payflow/types"
)

// Signer authorizes value transfers from one account on one chain.
type Signer interface {
	// Address is the account payments are authorized from.
	Address() common.Address

	// ChainID is the chain the signer is bound to.
	ChainID() int64

	// SignTransferAuthorization produces the 65-byte EIP-712 signature
	// over the EIP-3009 authorization, 0x-hex encoded.
	SignTransferAuthorization(domain eip712.Domain, auth types.EVMAuthorization) (string, error)

	// SignMessage signs a personal_sign message, used for the optional
	// identity-binding extension.
	SignMessage(message string) (string, error)
}

// keySigner signs with a secp256k1 private key. For a custodial hot wallet
// the payer is the key's own address; for a session key the payer is the
// smart account the key is delegated for.
type keySigner struct {
	key     *ecdsa.PrivateKey
	payer   common.Address
	chainID int64
}

// NewPrivateKeySigner builds a Signer over a hot-wallet private key.
func NewPrivateKeySigner(hexKey string, chainID int64) (Signer, error) {
	key, err := privateKeyFromHex(hexKey)
	if err != nil {
		return nil, err
	}
	return &keySigner{
		key:     key,
		payer:   crypto.PubkeyToAddress(key.PublicKey),
		chainID: chainID,
	}, nil
}

// NewSessionKeySigner builds a Signer over a delegated session key acting
// for a smart account. The authorization's from field is the smart account;
// the signature comes from the session key.
func NewSessionKeySigner(hexKey, smartAccount string, chainID int64) (Signer, error) {
	key, err := privateKeyFromHex(hexKey)
	if err != nil {
		return nil, err
	}
	if !common.IsHexAddress(smartAccount) {
		return nil, types.NewEngineError(types.ErrSignerUnavailable,
			fmt.Sprintf("invalid smart account address %q", smartAccount))
	}
	return &keySigner{
		key:     key,
		payer:   common.HexToAddress(smartAccount),
		chainID: chainID,
	}, nil
}

func (s *keySigner) Address() common.Address {
	return s.payer
}

func (s *keySigner) ChainID() int64 {
	return s.chainID
}

func (s *keySigner) SignTransferAuthorization(domain eip712.Domain, auth types.EVMAuthorization) (string, error) {
	digest, err := eip712.TransferAuthorizationDigest(
		domain, auth.From, auth.To, auth.Value, auth.ValidAfter, auth.ValidBefore, auth.Nonce)
	if err != nil {
		return "", fmt.Errorf("failed to build authorization digest: %w", err)
	}

	sig, err := crypto.Sign(digest.Bytes(), s.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign authorization: %w", err)
	}

	// Contracts expect v as 27/28.
	if sig[64] < 27 {
		sig[64] += 27
	}
	return hexutil.Encode(sig), nil
}

func (s *keySigner) SignMessage(message string) (string, error) {
	hash := accounts.TextHash([]byte(message))
	sig, err := crypto.Sign(hash, s.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign message: %w", err)
	}
	if sig[64] < 27 {
		sig[64] += 27
	}
	return hexutil.Encode(sig), nil
}

func privateKeyFromHex(hexKey string) (*ecdsa.PrivateKey, error) {
	if len(hexKey) >= 2 && hexKey[:2] == "0x" {
		hexKey = hexKey[2:]
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, types.NewEngineError(types.ErrSignerUnavailable,
			fmt.Sprintf("invalid private key material: %v", err))
	}
	return key, nil
}
