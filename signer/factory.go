package signer

import (
	"fmt"
	"time"

	"github.com/agentpay/payflow/types"
	"github.com/agentpay/payflow/vault"
)

// Factory produces Signers from stored wallet records. Key material is
// decrypted through the vault at signing time and never leaves this
// package.
type Factory interface {
	SignerFor(wallet *types.Wallet) (Signer, error)
}

// VaultFactory is the production Factory: it unlocks encrypted key
// material with the credential vault.
type VaultFactory struct {
	vault *vault.Vault
}

// NewVaultFactory builds a Factory over the given vault.
func NewVaultFactory(v *vault.Vault) *VaultFactory {
	return &VaultFactory{vault: v}
}

// SignerFor resolves the wallet's signing capability. Session keys take
// precedence over hot key material; an expired or revoked session key is
// an error, not a silent fallback.
func (f *VaultFactory) SignerFor(wallet *types.Wallet) (Signer, error) {
	if wallet == nil {
		return nil, types.NewEngineError(types.ErrSignerUnavailable, "no wallet available")
	}

	if wallet.SessionKey != nil {
		if !wallet.SessionKey.Active(time.Now()) {
			return nil, types.NewEngineError(types.ErrSignerUnavailable,
				fmt.Sprintf("session key for wallet %s is expired or revoked", wallet.Address))
		}
		hexKey, err := f.vault.Decrypt(wallet.SessionKey.EncryptedKey)
		if err != nil {
			return nil, err
		}
		return NewSessionKeySigner(hexKey, wallet.SessionKey.SmartAccount, wallet.ChainID)
	}

	if wallet.EncryptedKey == "" {
		return nil, types.NewEngineError(types.ErrSignerUnavailable,
			fmt.Sprintf("wallet %s has no signing capability", wallet.Address))
	}
	hexKey, err := f.vault.Decrypt(wallet.EncryptedKey)
	if err != nil {
		return nil, err
	}
	return NewPrivateKeySigner(hexKey, wallet.ChainID)
}
