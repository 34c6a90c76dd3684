// Package eip712 implements the typed-data hashing needed to authorize an
// EIP-3009 TransferWithAuthorization: domain separator, struct hash, and
// the final \x19\x01 digest, plus signer recovery for verification.
package eip712

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Domain is the EIP-712 domain separator input for the token contract.
type Domain struct {
	Name              string // token name, e.g. "USD Coin"
	Version           string // e.g. "2"
	ChainID           string // decimal string
	VerifyingContract string // token contract address, 0x-hex
}

var (
	domainTypeHash = crypto.Keccak256Hash([]byte(
		"EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"))

	transferAuthTypeHash = crypto.Keccak256Hash([]byte(
		"TransferWithAuthorization(address from,address to,uint256 value,uint256 validAfter,uint256 validBefore,bytes32 nonce)"))
)

// concatHash hashes the concatenation of 32-byte words, the way
// abi.encode lays out static EIP-712 struct fields.
func concatHash(words ...[]byte) common.Hash {
	var joined []byte
	for _, w := range words {
		joined = append(joined, w...)
	}
	return crypto.Keccak256Hash(joined)
}

// padLeft32 right-aligns a big.Int into a 32-byte word.
func padLeft32(i *big.Int) []byte {
	b := i.Bytes()
	if len(b) > 32 {
		b = b[len(b)-32:]
	}
	out := make([]byte, 32)
	copy(out[32-len(b):], b)
	return out
}

// addressWord left-pads an address into a 32-byte word.
func addressWord(a common.Address) []byte {
	out := make([]byte, 32)
	copy(out[12:], a.Bytes())
	return out
}

func decimalToBig(s string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid decimal integer string %q", s)
	}
	return n, nil
}

// NonceToBytes32 decodes a hex nonce (with or without 0x) into bytes32.
func NonceToBytes32(nonceHex string) ([32]byte, error) {
	var out [32]byte
	if len(nonceHex) >= 2 && nonceHex[:2] == "0x" {
		nonceHex = nonceHex[2:]
	}
	b, err := hex.DecodeString(nonceHex)
	if err != nil {
		return out, err
	}
	if len(b) > 32 {
		return out, fmt.Errorf("nonce longer than 32 bytes")
	}
	copy(out[32-len(b):], b)
	return out, nil
}

// DomainSeparator hashes the domain per EIP-712:
// keccak256(abi.encode(domainTypeHash, keccak256(name), keccak256(version), chainId, verifyingContract))
func DomainSeparator(d Domain) (common.Hash, error) {
	if d.Name == "" || d.Version == "" || d.ChainID == "" || d.VerifyingContract == "" {
		return common.Hash{}, errors.New("incomplete EIP-712 domain")
	}

	chainID, err := decimalToBig(d.ChainID)
	if err != nil {
		return common.Hash{}, err
	}

	return concatHash(
		domainTypeHash.Bytes(),
		crypto.Keccak256Hash([]byte(d.Name)).Bytes(),
		crypto.Keccak256Hash([]byte(d.Version)).Bytes(),
		padLeft32(chainID),
		addressWord(common.HexToAddress(d.VerifyingContract)),
	), nil
}

// HashTransferAuthorization computes the struct hash for
// TransferWithAuthorization(from, to, value, validAfter, validBefore, nonce).
func HashTransferAuthorization(from, to common.Address, value, validAfter, validBefore *big.Int, nonce [32]byte) common.Hash {
	return concatHash(
		transferAuthTypeHash.Bytes(),
		addressWord(from),
		addressWord(to),
		padLeft32(value),
		padLeft32(validAfter),
		padLeft32(validBefore),
		nonce[:],
	)
}

// TypedDataDigest returns the final digest to sign:
// keccak256(0x1901 || domainSeparator || structHash)
func TypedDataDigest(domainSeparator, structHash common.Hash) common.Hash {
	prefix := []byte{0x19, 0x01}
	return crypto.Keccak256Hash(append(append(prefix, domainSeparator.Bytes()...), structHash.Bytes()...))
}

// TransferAuthorizationDigest builds the complete digest for an EIP-3009
// authorization from its wire-form fields: decimal strings for the numeric
// values, hex for the nonce.
func TransferAuthorizationDigest(domain Domain, fromHex, toHex, valueDec, validAfterDec, validBeforeDec, nonceHex string) (common.Hash, error) {
	domainSep, err := DomainSeparator(domain)
	if err != nil {
		return common.Hash{}, err
	}

	value, err := decimalToBig(valueDec)
	if err != nil {
		return common.Hash{}, err
	}
	validAfter, err := decimalToBig(validAfterDec)
	if err != nil {
		return common.Hash{}, err
	}
	validBefore, err := decimalToBig(validBeforeDec)
	if err != nil {
		return common.Hash{}, err
	}
	nonce, err := NonceToBytes32(nonceHex)
	if err != nil {
		return common.Hash{}, err
	}

	structHash := HashTransferAuthorization(
		common.HexToAddress(fromHex),
		common.HexToAddress(toHex),
		value, validAfter, validBefore, nonce,
	)
	return TypedDataDigest(domainSep, structHash), nil
}

// RecoverSigner recovers the address that produced sig over digest.
// sig must be 65 bytes (r||s||v); v of 0/1 is normalized to 27/28.
func RecoverSigner(digest common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != 65 {
		return common.Address{}, errors.New("signature must be 65 bytes")
	}

	s := make([]byte, 65)
	copy(s, sig)
	if s[64] >= 27 {
		s[64] -= 27
	}

	pubKey, err := crypto.SigToPub(digest.Bytes(), s)
	if err != nil {
		return common.Address{}, fmt.Errorf("sig to pub failed: %w", err)
	}
	return crypto.PubkeyToAddress(*pubKey), nil
}
