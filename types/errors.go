package types

// EngineError is the structured error surfaced by the payment engine.
type EngineError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *EngineError) Error() string {
	return e.Message
}

// Error codes, grouped by the failure class they belong to. Input
// validation and protocol errors reject the request before (or instead of)
// any signing; capability and economic conditions route to manual approval;
// execution errors surface the underlying failure.
const (
	ErrBlockedURL          = "BLOCKED_URL"
	ErrInvalidRequirements = "INVALID_REQUIREMENTS"
	ErrUnsupportedNetwork  = "UNSUPPORTED_NETWORK"
	ErrChainMismatch       = "CHAIN_MISMATCH"
	ErrPolicyRejected      = "POLICY_REJECTED"
	ErrSignerUnavailable   = "SIGNER_UNAVAILABLE"
	ErrInsufficientBalance = "INSUFFICIENT_BALANCE"
	ErrPaymentFailed       = "PAYMENT_FAILED"
	ErrNetworkError        = "NETWORK_ERROR"
	ErrVaultError          = "VAULT_ERROR"
	ErrConfigError         = "CONFIG_ERROR"
	ErrStorageError        = "STORAGE_ERROR"
)

// NewEngineError builds an EngineError with the given code and message.
func NewEngineError(code, message string) *EngineError {
	return &EngineError{Code: code, Message: message}
}
