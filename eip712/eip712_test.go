package eip712

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var usdcBase = Domain{
	Name:              "USD Coin",
	Version:           "2",
	ChainID:           "8453",
	VerifyingContract: "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
}

func TestDomainSeparator_Deterministic(t *testing.T) {
	first, err := DomainSeparator(usdcBase)
	require.NoError(t, err)
	second, err := DomainSeparator(usdcBase)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestDomainSeparator_SensitiveToEveryField(t *testing.T) {
	base, err := DomainSeparator(usdcBase)
	require.NoError(t, err)

	variants := []Domain{
		{Name: "USDC", Version: "2", ChainID: "8453", VerifyingContract: usdcBase.VerifyingContract},
		{Name: "USD Coin", Version: "1", ChainID: "8453", VerifyingContract: usdcBase.VerifyingContract},
		{Name: "USD Coin", Version: "2", ChainID: "137", VerifyingContract: usdcBase.VerifyingContract},
		{Name: "USD Coin", Version: "2", ChainID: "8453", VerifyingContract: "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359"},
	}
	for _, d := range variants {
		got, err := DomainSeparator(d)
		require.NoError(t, err)
		assert.NotEqual(t, base, got)
	}
}

func TestDomainSeparator_IncompleteDomain(t *testing.T) {
	_, err := DomainSeparator(Domain{Name: "USD Coin"})
	assert.Error(t, err)

	bad := usdcBase
	bad.ChainID = "not-a-number"
	_, err = DomainSeparator(bad)
	assert.Error(t, err)
}

func TestNonceToBytes32(t *testing.T) {
	nonce, err := NonceToBytes32("0x" + strings.Repeat("ab", 32))
	require.NoError(t, err)
	assert.Equal(t, byte(0xab), nonce[0])
	assert.Equal(t, byte(0xab), nonce[31])

	short, err := NonceToBytes32("0xff")
	require.NoError(t, err)
	assert.Equal(t, byte(0x00), short[0])
	assert.Equal(t, byte(0xff), short[31])

	_, err = NonceToBytes32("0x" + strings.Repeat("ab", 33))
	assert.Error(t, err)

	_, err = NonceToBytes32("zz")
	assert.Error(t, err)
}

func TestTransferAuthorizationDigest_SignAndRecover(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	from := crypto.PubkeyToAddress(key.PublicKey)

	digest, err := TransferAuthorizationDigest(
		usdcBase,
		from.Hex(),
		"0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
		"100000",
		"1700000000",
		"1700000300",
		"0x"+strings.Repeat("11", 32),
	)
	require.NoError(t, err)

	sig, err := crypto.Sign(digest.Bytes(), key)
	require.NoError(t, err)

	recovered, err := RecoverSigner(digest, sig)
	require.NoError(t, err)
	assert.Equal(t, from, recovered)

	// Contract-style v values recover identically.
	sig[64] += 27
	recovered, err = RecoverSigner(digest, sig)
	require.NoError(t, err)
	assert.Equal(t, from, recovered)
}

func TestTransferAuthorizationDigest_FieldSensitivity(t *testing.T) {
	base, err := TransferAuthorizationDigest(usdcBase,
		"0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266",
		"0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
		"100000", "0", "1700000300", "0x"+strings.Repeat("11", 32))
	require.NoError(t, err)

	changedValue, err := TransferAuthorizationDigest(usdcBase,
		"0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266",
		"0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
		"100001", "0", "1700000300", "0x"+strings.Repeat("11", 32))
	require.NoError(t, err)
	assert.NotEqual(t, base, changedValue)

	changedNonce, err := TransferAuthorizationDigest(usdcBase,
		"0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266",
		"0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
		"100000", "0", "1700000300", "0x"+strings.Repeat("22", 32))
	require.NoError(t, err)
	assert.NotEqual(t, base, changedNonce)
}

func TestTransferAuthorizationDigest_RejectsBadInputs(t *testing.T) {
	_, err := TransferAuthorizationDigest(usdcBase,
		"0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266",
		"0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
		"not-a-number", "0", "1", "0x11")
	assert.Error(t, err)

	_, err = TransferAuthorizationDigest(usdcBase,
		"0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266",
		"0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
		"1", "0", "1", "not-hex")
	assert.Error(t, err)
}
