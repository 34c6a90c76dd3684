// Package types defines the wire-level and domain types for the x402
// payment execution engine: payment requirements advertised by resource
// servers, signed payment payloads, and the records the engine persists.
package types

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// X402Version represents the version of the x402 protocol
type X402Version int

const (
	X402Version1 X402Version = 1
)

// PaymentScheme represents different payment schemes
type PaymentScheme string

const (
	SchemeExact PaymentScheme = "exact"
)

// Header names used on the wire. The 402 requirement set may arrive either
// in the response body (legacy form) or base64-encoded in
// HeaderPaymentRequired (current form); the paid retry always carries
// HeaderPayment.
const (
	HeaderPayment         = "X-Payment"
	HeaderPaymentRequired = "X-Payment-Required"
	HeaderPaymentResponse = "X-Payment-Response"
	HeaderPaymentIdentity = "X-Payment-Identity"
)

// ExtraKeyIdentityChallenge is the requirement extension key carrying an
// identity-binding challenge the payer must sign alongside the payment.
const ExtraKeyIdentityChallenge = "identityChallenge"

// PaymentRequirements defines one payment method a resource server accepts.
type PaymentRequirements struct {
	// Scheme of the payment protocol to use (currently only "exact").
	Scheme string `json:"scheme" validate:"required"`

	// Network the payment must be sent on. Either a CAIP-2 identifier
	// ("eip155:8453") or a registry network name ("base").
	Network string `json:"network" validate:"required"`

	// Amount required, in atomic units of the asset, as a decimal string.
	// Historical protocol versions named this field maxAmountRequired;
	// both spellings are accepted on decode and emitted on encode.
	Amount string `json:"amount" validate:"required"`

	// Resource is the URL of the resource being paid for.
	Resource string `json:"resource,omitempty"`

	// Description of the resource being purchased.
	Description string `json:"description,omitempty"`

	// MimeType of the resource response.
	MimeType string `json:"mimeType,omitempty"`

	// PayTo is the address the payment must be sent to.
	PayTo string `json:"payTo" validate:"required"`

	// MaxTimeoutSeconds bounds the validity window of the authorization.
	MaxTimeoutSeconds int `json:"maxTimeoutSeconds" validate:"required,gt=0"`

	// Asset is the address of the token contract to pay with.
	Asset string `json:"asset" validate:"required"`

	// Extra carries scheme-specific details, e.g. the EIP-712 domain name
	// and version for the token, or an identity-binding challenge.
	Extra map[string]interface{} `json:"extra,omitempty"`
}

// requirementsAlias mirrors PaymentRequirements with both historical amount
// field spellings so either protocol generation decodes cleanly.
type requirementsAlias struct {
	Scheme            string                 `json:"scheme"`
	Network           string                 `json:"network"`
	Amount            string                 `json:"amount,omitempty"`
	MaxAmountRequired string                 `json:"maxAmountRequired,omitempty"`
	Resource          string                 `json:"resource,omitempty"`
	Description       string                 `json:"description,omitempty"`
	MimeType          string                 `json:"mimeType,omitempty"`
	PayTo             string                 `json:"payTo"`
	MaxTimeoutSeconds int                    `json:"maxTimeoutSeconds"`
	Asset             string                 `json:"asset"`
	Extra             map[string]interface{} `json:"extra,omitempty"`
}

// UnmarshalJSON accepts both the current `amount` field and the legacy
// `maxAmountRequired` field. When both are present, `amount` wins.
func (pr *PaymentRequirements) UnmarshalJSON(data []byte) error {
	var alias requirementsAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}

	amount := alias.Amount
	if amount == "" {
		amount = alias.MaxAmountRequired
	}

	*pr = PaymentRequirements{
		Scheme:            alias.Scheme,
		Network:           alias.Network,
		Amount:            amount,
		Resource:          alias.Resource,
		Description:       alias.Description,
		MimeType:          alias.MimeType,
		PayTo:             alias.PayTo,
		MaxTimeoutSeconds: alias.MaxTimeoutSeconds,
		Asset:             alias.Asset,
		Extra:             alias.Extra,
	}
	return nil
}

// MarshalJSON emits the amount under both spellings so servers on either
// protocol generation parse the requirement set.
func (pr PaymentRequirements) MarshalJSON() ([]byte, error) {
	return json.Marshal(requirementsAlias{
		Scheme:            pr.Scheme,
		Network:           pr.Network,
		Amount:            pr.Amount,
		MaxAmountRequired: pr.Amount,
		Resource:          pr.Resource,
		Description:       pr.Description,
		MimeType:          pr.MimeType,
		PayTo:             pr.PayTo,
		MaxTimeoutSeconds: pr.MaxTimeoutSeconds,
		Asset:             pr.Asset,
		Extra:             pr.Extra,
	})
}

// Validate checks that the requirement carries every field the engine needs.
func (pr *PaymentRequirements) Validate() error {
	if pr.Scheme == "" {
		return fmt.Errorf("paymentRequirements.scheme is required")
	}

	if pr.Network == "" {
		return fmt.Errorf("paymentRequirements.network is required")
	}

	if pr.Amount == "" {
		return fmt.Errorf("paymentRequirements.amount is required")
	}

	if pr.PayTo == "" {
		return fmt.Errorf("paymentRequirements.payTo is required")
	}

	if pr.Asset == "" {
		return fmt.Errorf("paymentRequirements.asset is required")
	}

	if pr.MaxTimeoutSeconds <= 0 {
		return fmt.Errorf("paymentRequirements.maxTimeoutSeconds must be greater than 0")
	}

	return nil
}

// IdentityChallenge returns the identity-binding challenge advertised by the
// server, if any.
func (pr *PaymentRequirements) IdentityChallenge() (string, bool) {
	if pr.Extra == nil {
		return "", false
	}
	challenge, ok := pr.Extra[ExtraKeyIdentityChallenge].(string)
	return challenge, ok && challenge != ""
}

// PaymentRequiredResponse is the machine-readable body (or header payload)
// of a 402 response.
type PaymentRequiredResponse struct {
	// Version of the x402 payment protocol.
	X402Version int `json:"x402Version"`

	// List of payment requirements the resource server accepts, in the
	// server's preference order.
	Accepts []PaymentRequirements `json:"accepts"`

	// Message from the resource server indicating any processing error.
	Error string `json:"error,omitempty"`
}

// EVMAuthorization is the EIP-3009 TransferWithAuthorization message that
// gets hashed and signed per EIP-712.
type EVMAuthorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`       // uint256, decimal string
	ValidAfter  string `json:"validAfter"`  // uint256 timestamp
	ValidBefore string `json:"validBefore"` // uint256 timestamp
	Nonce       string `json:"nonce"`       // bytes32 hex
}

// ExactEVMPayload carries the signed authorization for the "exact" scheme
// on EVM networks.
type ExactEVMPayload struct {
	// Signature is the 65-byte ECDSA signature (r||s||v), 0x-hex.
	Signature string `json:"signature"`

	Authorization EVMAuthorization `json:"authorization"`
}

// PaymentPayload is the value of the X-Payment header, base64/JSON-encoded.
type PaymentPayload struct {
	X402Version int             `json:"x402Version"`
	Scheme      string          `json:"scheme"`
	Network     string          `json:"network"`
	Payload     ExactEVMPayload `json:"payload"`
}

// Encode serializes the payload to the base64 header form.
func (p *PaymentPayload) Encode() (string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payment payload: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DecodePaymentPayload parses the base64 header form back into a payload.
func DecodePaymentPayload(header string) (*PaymentPayload, error) {
	raw, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return nil, fmt.Errorf("failed to decode payment header: %w", err)
	}
	var p PaymentPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("failed to parse payment header: %w", err)
	}
	return &p, nil
}

// SettlementResponse is the settlement metadata a server may return on a
// paid 2xx response, in the X-Payment-Response header or the JSON body.
type SettlementResponse struct {
	Success     bool   `json:"success"`
	Transaction string `json:"transaction,omitempty"`
	Network     string `json:"network,omitempty"`
	Payer       string `json:"payer,omitempty"`
	ErrorReason string `json:"errorReason,omitempty"`
}
