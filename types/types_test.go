package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaymentRequirements_AmountFieldUnion(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"current field", `{"scheme":"exact","network":"base","amount":"100"}`, "100"},
		{"legacy field", `{"scheme":"exact","network":"base","maxAmountRequired":"200"}`, "200"},
		{"current wins over legacy", `{"scheme":"exact","network":"base","amount":"100","maxAmountRequired":"200"}`, "100"},
		{"neither", `{"scheme":"exact","network":"base"}`, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var pr PaymentRequirements
			require.NoError(t, json.Unmarshal([]byte(tc.body), &pr))
			assert.Equal(t, tc.want, pr.Amount)
		})
	}
}

func TestPaymentRequirements_MarshalEmitsBothSpellings(t *testing.T) {
	raw, err := json.Marshal(PaymentRequirements{
		Scheme:            "exact",
		Network:           "base",
		Amount:            "100",
		PayTo:             "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
		Asset:             "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
		MaxTimeoutSeconds: 300,
	})
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "100", decoded["amount"])
	assert.Equal(t, "100", decoded["maxAmountRequired"])
}

func TestPaymentRequirements_Validate(t *testing.T) {
	valid := PaymentRequirements{
		Scheme:            "exact",
		Network:           "base",
		Amount:            "100",
		PayTo:             "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
		Asset:             "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
		MaxTimeoutSeconds: 300,
	}
	assert.NoError(t, valid.Validate())

	mutations := map[string]func(*PaymentRequirements){
		"scheme":  func(pr *PaymentRequirements) { pr.Scheme = "" },
		"network": func(pr *PaymentRequirements) { pr.Network = "" },
		"amount":  func(pr *PaymentRequirements) { pr.Amount = "" },
		"payTo":   func(pr *PaymentRequirements) { pr.PayTo = "" },
		"asset":   func(pr *PaymentRequirements) { pr.Asset = "" },
		"timeout": func(pr *PaymentRequirements) { pr.MaxTimeoutSeconds = 0 },
	}
	for name, mutate := range mutations {
		pr := valid
		mutate(&pr)
		assert.Error(t, pr.Validate(), name)
	}
}

func TestPaymentRequirements_IdentityChallenge(t *testing.T) {
	pr := PaymentRequirements{}
	_, ok := pr.IdentityChallenge()
	assert.False(t, ok)

	pr.Extra = map[string]interface{}{ExtraKeyIdentityChallenge: "nonce-abc"}
	challenge, ok := pr.IdentityChallenge()
	assert.True(t, ok)
	assert.Equal(t, "nonce-abc", challenge)

	pr.Extra = map[string]interface{}{ExtraKeyIdentityChallenge: ""}
	_, ok = pr.IdentityChallenge()
	assert.False(t, ok)
}

func TestPaymentPayload_EncodeDecode(t *testing.T) {
	payload := &PaymentPayload{
		X402Version: 1,
		Scheme:      "exact",
		Network:     "base",
		Payload: ExactEVMPayload{
			Signature: "0xdeadbeef",
			Authorization: EVMAuthorization{
				From:        "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266",
				To:          "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
				Value:       "100000",
				ValidAfter:  "0",
				ValidBefore: "1700000300",
				Nonce:       "0x11",
			},
		},
	}

	encoded, err := payload.Encode()
	require.NoError(t, err)

	decoded, err := DecodePaymentPayload(encoded)
	require.NoError(t, err)
	assert.Equal(t, payload, decoded)
}

func TestDecodePaymentPayload_Invalid(t *testing.T) {
	_, err := DecodePaymentPayload("not base64 !!!")
	assert.Error(t, err)

	_, err = DecodePaymentPayload("bm90IGpzb24=")
	assert.Error(t, err)
}

func TestWallet_HasActiveSigner(t *testing.T) {
	now := time.Now()

	hot := Wallet{EncryptedKey: "aa:bb:cc"}
	assert.True(t, hot.HasActiveSigner(now))

	empty := Wallet{}
	assert.False(t, empty.HasActiveSigner(now))

	session := Wallet{SessionKey: &SessionKey{ExpiresAt: now.Add(time.Hour)}}
	assert.True(t, session.HasActiveSigner(now))

	expired := Wallet{EncryptedKey: "aa:bb:cc", SessionKey: &SessionKey{ExpiresAt: now.Add(-time.Hour)}}
	// A present but dead session key wins over hot key material.
	assert.False(t, expired.HasActiveSigner(now))

	revoked := Wallet{SessionKey: &SessionKey{ExpiresAt: now.Add(time.Hour), Revoked: true}}
	assert.False(t, revoked.HasActiveSigner(now))
}

func TestWallet_PayerAddress(t *testing.T) {
	w := Wallet{Address: "0xaaa"}
	assert.Equal(t, "0xaaa", w.PayerAddress())

	w.SessionKey = &SessionKey{SmartAccount: "0xbbb"}
	assert.Equal(t, "0xbbb", w.PayerAddress())
}

func TestPendingPayment_Expired(t *testing.T) {
	now := time.Now()
	p := PendingPayment{ExpiresAt: now.Add(time.Minute)}
	assert.False(t, p.Expired(now))
	assert.True(t, p.Expired(now.Add(2*time.Minute)))
}

func TestPaymentResult_Members(t *testing.T) {
	var r PaymentResult = Completed{Paid: true}
	assert.Equal(t, StatusCompleted, r.Status())
	assert.True(t, r.Success())

	r = PendingApproval{Reason: "manual"}
	assert.Equal(t, StatusPendingApproval, r.Status())
	assert.False(t, r.Success())

	r = Rejected{Err: NewEngineError(ErrPolicyRejected, "denied")}
	assert.Equal(t, StatusRejected, r.Status())
	assert.False(t, r.Success())
	assert.Equal(t, "denied", r.(Rejected).Error())
}
