package payflow

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/agentpay/payflow/chains"
	"github.com/agentpay/payflow/eip712"
	"github.com/agentpay/payflow/metrics"
	"github.com/agentpay/payflow/signer"
	"github.com/agentpay/payflow/types"
	"github.com/agentpay/payflow/urlguard"
)

const (
	// approvalTTL bounds how long a pending payment waits for a human
	// decision before it expires.
	approvalTTL = 24 * time.Hour

	// maxRecordedBody caps the response body captured on audit rows.
	maxRecordedBody = 2048
)

// PaymentRequest describes one resource fetch the engine may pay for.
type PaymentRequest struct {
	// UserID owns the wallets, policies, and records this payment touches.
	UserID string

	Method  string
	URL     string
	Body    []byte
	Headers map[string]string

	// Network, when non-empty, pins the payment to one network (CAIP-2 or
	// registry name) instead of letting the engine choose.
	Network string
}

// ExecutePayment fetches the resource and, when it is payment-gated, runs
// the full payment flow: requirement parsing, chain selection, policy
// enforcement, balance check, authorization signing, and the paid retry.
// Exactly one of the PaymentResult members comes back; the error return is
// reserved for storage and infrastructure failures.
func (e *Engine) ExecutePayment(ctx context.Context, req *PaymentRequest) (types.PaymentResult, error) {
	start := e.now()
	result, err := e.execute(ctx, req)
	if err != nil {
		return nil, err
	}

	network := ""
	switch r := result.(type) {
	case types.Completed:
		network = r.Network
		if r.Paid {
			e.metrics.IncCounter(metrics.EventPaymentCompleted, map[string]string{"network": network})
		}
	case types.PendingApproval:
		e.metrics.IncCounter(metrics.EventPaymentPending, map[string]string{"network": network})
	case types.Rejected:
		event := metrics.EventPaymentRejected
		if r.Err != nil && r.Err.Code == types.ErrPaymentFailed {
			event = metrics.EventPaymentFailed
		}
		e.metrics.IncCounter(event, map[string]string{"network": network})
	}
	e.metrics.ObserveLatency(metrics.OpExecutePayment, e.now().Sub(start), map[string]string{"network": network})
	return result, nil
}

func (e *Engine) execute(ctx context.Context, req *PaymentRequest) (types.PaymentResult, error) {
	if req == nil || req.UserID == "" || req.URL == "" {
		return types.Rejected{Err: types.NewEngineError(types.ErrInvalidRequirements,
			"userId and url are required")}, nil
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	if err := urlguard.ValidateURL(req.URL); err != nil {
		e.metrics.IncCounter(metrics.EventBlockedURL, map[string]string{"network": ""})
		return rejectedFrom(err, types.ErrBlockedURL), nil
	}

	header := urlguard.SanitizeHeaders(req.Headers)
	initial, err := e.httpc.SafeFetch(ctx, urlguard.Request{
		Method: method,
		URL:    req.URL,
		Body:   req.Body,
		Header: header,
	})
	if err != nil {
		return rejectedFrom(err, types.ErrNetworkError), nil
	}

	if initial.StatusCode != http.StatusPaymentRequired {
		// Not payment-gated; pass the response through untouched. No
		// audit row is written because no payment was attempted.
		return types.Completed{
			StatusCode: initial.StatusCode,
			Body:       initial.Body,
			Paid:       false,
		}, nil
	}

	required, err := parsePaymentRequired(initial)
	if err != nil {
		return rejectedFrom(err, types.ErrInvalidRequirements), nil
	}

	accepts := usableRequirements(required.Accepts)
	if len(accepts) == 0 {
		return types.Rejected{Err: types.NewEngineError(types.ErrInvalidRequirements,
			"server advertised no usable payment requirements")}, nil
	}

	if req.Network != "" {
		accepts, err = pinToNetwork(e.registry, accepts, req.Network)
		if err != nil {
			return rejectedFrom(err, types.ErrChainMismatch), nil
		}
	}

	wallets, err := e.db.GetWallets(ctx, req.UserID)
	if err != nil {
		return nil, types.NewEngineError(types.ErrStorageError,
			fmt.Sprintf("failed to load wallets: %v", err))
	}

	selection := e.selector.SelectBestChain(ctx, accepts, wallets)
	if selection == nil {
		return types.Rejected{Err: types.NewEngineError(types.ErrUnsupportedNetwork,
			"no accepted network is supported")}, nil
	}
	info, _ := e.registry.ByID(selection.ChainID)
	requirement := accepts[selection.AcceptIndex]

	atomicAmount, err := decimal.NewFromString(requirement.Amount)
	if err != nil || atomicAmount.IsNegative() {
		return types.Rejected{Err: types.NewEngineError(types.ErrInvalidRequirements,
			fmt.Sprintf("unparseable amount %q", requirement.Amount))}, nil
	}
	humanAmount := atomicAmount.Shift(-info.AssetDecimals)

	check, err := e.matcher.CheckPolicy(ctx, humanAmount.String(), req.URL, req.UserID, info.ChainID)
	if err != nil {
		if engineErr, ok := err.(*types.EngineError); ok && engineErr.Code == types.ErrStorageError {
			return nil, err
		}
		return rejectedFrom(err, types.ErrPolicyRejected), nil
	}

	switch check.Action {
	case types.ActionRejected:
		e.metrics.IncCounter(metrics.EventDraftPolicy, map[string]string{"network": info.Network})
		e.log.Info("payment rejected by policy", map[string]any{
			"endpoint": req.URL,
			"reason":   check.Reason,
		})
		return types.Rejected{Err: types.NewEngineError(types.ErrPolicyRejected, check.Reason)}, nil

	case types.ActionManualApproval:
		return e.deferForApproval(ctx, req, method, accepts, selection.AcceptIndex, info, requirement.Amount, check.Reason)
	}

	wallet := selection.Wallet
	if wallet == nil || !wallet.HasActiveSigner(e.now()) {
		return e.deferForApproval(ctx, req, method, accepts, selection.AcceptIndex, info, requirement.Amount,
			"no active signing capability on the selected chain")
	}

	balance, err := e.balances.Balance(ctx, info.ChainID, wallet.PayerAddress())
	if err != nil {
		return rejectedFrom(err, types.ErrNetworkError), nil
	}
	if decimal.NewFromBigInt(balance, 0).LessThan(atomicAmount) {
		return e.deferForApproval(ctx, req, method, accepts, selection.AcceptIndex, info, requirement.Amount,
			fmt.Sprintf("insufficient balance on %s: have %s, need %s atomic units",
				info.Network, balance.String(), requirement.Amount))
	}

	return e.payAndRecord(ctx, req.UserID, method, req.URL, req.Body, header, requirement, info, wallet)
}

// payAndRecord signs the transfer authorization, retries the request with
// payment attached, and appends exactly one audit row for the attempt.
func (e *Engine) payAndRecord(
	ctx context.Context,
	userID, method, endpoint string,
	body []byte,
	header http.Header,
	requirement types.PaymentRequirements,
	info chains.Info,
	wallet *types.Wallet,
) (types.PaymentResult, error) {
	sg, err := e.signers.SignerFor(wallet)
	if err != nil {
		return rejectedFrom(err, types.ErrSignerUnavailable), nil
	}

	auth, err := e.buildAuthorization(wallet.PayerAddress(), requirement)
	if err != nil {
		return rejectedFrom(err, types.ErrPaymentFailed), nil
	}

	signature, err := sg.SignTransferAuthorization(e.signingDomain(requirement, info), auth)
	if err != nil {
		return rejectedFrom(err, types.ErrSignerUnavailable), nil
	}

	payload := &types.PaymentPayload{
		X402Version: int(types.X402Version1),
		Scheme:      requirement.Scheme,
		Network:     requirement.Network,
		Payload: types.ExactEVMPayload{
			Signature:     signature,
			Authorization: auth,
		},
	}
	encoded, err := payload.Encode()
	if err != nil {
		return rejectedFrom(err, types.ErrPaymentFailed), nil
	}

	paidHeader := header.Clone()
	if paidHeader == nil {
		paidHeader = http.Header{}
	}
	paidHeader.Set(types.HeaderPayment, encoded)

	if challenge, ok := requirement.IdentityChallenge(); ok {
		identity, err := identityHeader(sg, challenge)
		if err != nil {
			return rejectedFrom(err, types.ErrSignerUnavailable), nil
		}
		paidHeader.Set(types.HeaderPaymentIdentity, identity)
	}

	e.log.Info("submitting paid request", map[string]any{
		"endpoint": endpoint,
		"network":  info.Network,
		"payer":    wallet.PayerAddress(),
		"amount":   requirement.Amount,
	})

	resp, err := e.httpc.SafeFetch(ctx, urlguard.Request{
		Method: method,
		URL:    endpoint,
		Body:   body,
		Header: paidHeader,
	})
	if err != nil {
		_, recordErr := e.recordAttempt(ctx, userID, endpoint, requirement, info, nil, nil, err.Error())
		if recordErr != nil {
			return nil, recordErr
		}
		return rejectedFrom(err, types.ErrNetworkError), nil
	}

	settlement := parseSettlement(resp)
	txID, err := e.recordAttempt(ctx, userID, endpoint, requirement, info, resp, settlement, "")
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return types.Rejected{Err: types.NewEngineError(types.ErrPaymentFailed,
			fmt.Sprintf("paid request to %s returned status %d", endpoint, resp.StatusCode))}, nil
	}

	result := types.Completed{
		StatusCode:    resp.StatusCode,
		Body:          resp.Body,
		Paid:          true,
		Settlement:    settlement,
		TransactionID: txID,
		ChainID:       info.ChainID,
		Network:       info.Network,
	}
	if settlement != nil {
		result.TxHash = settlement.Transaction
	}
	return result, nil
}

// recordAttempt appends the single audit row for a payment attempt. The
// response may be nil when the paid request never produced one.
func (e *Engine) recordAttempt(
	ctx context.Context,
	userID, endpoint string,
	requirement types.PaymentRequirements,
	info chains.Info,
	resp *urlguard.Response,
	settlement *types.SettlementResponse,
	errMsg string,
) (uuid.UUID, error) {
	atomicAmount, _ := decimal.NewFromString(requirement.Amount)
	record := types.TransactionRecord{
		UserID:       userID,
		Amount:       atomicAmount.Shift(-info.AssetDecimals),
		Endpoint:     endpoint,
		ChainID:      info.ChainID,
		Network:      info.Network,
		Status:       types.TransactionFailed,
		ErrorMessage: errMsg,
	}
	if resp != nil {
		record.ResponseStatus = resp.StatusCode
		record.ResponseBody = truncate(resp.Body, maxRecordedBody)
		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			record.Status = types.TransactionCompleted
		} else {
			record.ErrorMessage = fmt.Sprintf("paid request returned status %d", resp.StatusCode)
		}
	}
	if settlement != nil {
		record.TxHash = settlement.Transaction
		if raw, err := json.Marshal(settlement); err == nil {
			record.Settlement = raw
		}
	}

	id, err := e.db.AppendTransaction(ctx, record)
	if err != nil {
		return uuid.Nil, types.NewEngineError(types.ErrStorageError,
			fmt.Sprintf("failed to record payment attempt: %v", err))
	}
	return id, nil
}

// deferForApproval parks the payment for a human decision and returns the
// pending result.
func (e *Engine) deferForApproval(
	ctx context.Context,
	req *PaymentRequest,
	method string,
	accepts []types.PaymentRequirements,
	acceptIndex int,
	info chains.Info,
	amount, reason string,
) (types.PaymentResult, error) {
	raw, err := json.Marshal(accepts)
	if err != nil {
		return nil, types.NewEngineError(types.ErrInvalidRequirements,
			fmt.Sprintf("failed to serialize requirements: %v", err))
	}

	pending, err := e.db.CreatePendingPayment(ctx, types.PendingPayment{
		UserID:       req.UserID,
		Status:       types.PendingStatusPending,
		Endpoint:     req.URL,
		Method:       method,
		Body:         string(req.Body),
		Headers:      req.Headers,
		Requirements: raw,
		AcceptIndex:  acceptIndex,
		ChainID:      info.ChainID,
		Amount:       amount,
		Reason:       reason,
		ExpiresAt:    e.now().Add(approvalTTL),
	})
	if err != nil {
		return nil, types.NewEngineError(types.ErrStorageError,
			fmt.Sprintf("failed to park payment for approval: %v", err))
	}

	e.log.Info("payment deferred for approval", map[string]any{
		"pendingId": pending.ID.String(),
		"endpoint":  req.URL,
		"network":   info.Network,
		"reason":    reason,
	})

	return types.PendingApproval{
		PendingPaymentID: pending.ID,
		Requirements:     accepts,
		AcceptIndex:      acceptIndex,
		ChainID:          info.ChainID,
		Amount:           amount,
		Reason:           reason,
	}, nil
}

// buildAuthorization fills an EIP-3009 authorization with a fresh random
// nonce and a validity window derived from the requirement's timeout. The
// window starts a minute in the past to tolerate clock skew.
func (e *Engine) buildAuthorization(payer string, requirement types.PaymentRequirements) (types.EVMAuthorization, error) {
	nonce := make([]byte, 32)
	if _, err := rand.Read(nonce); err != nil {
		return types.EVMAuthorization{}, fmt.Errorf("failed to generate nonce: %w", err)
	}

	now := e.now()
	return types.EVMAuthorization{
		From:        payer,
		To:          requirement.PayTo,
		Value:       requirement.Amount,
		ValidAfter:  strconv.FormatInt(now.Add(-time.Minute).Unix(), 10),
		ValidBefore: strconv.FormatInt(now.Add(time.Duration(requirement.MaxTimeoutSeconds)*time.Second).Unix(), 10),
		Nonce:       hexutil.Encode(nonce),
	}, nil
}

// signingDomain assembles the token's EIP-712 domain. The requirement's
// extra fields override the registry defaults when the server advertises
// the token's own name and version.
func (e *Engine) signingDomain(requirement types.PaymentRequirements, info chains.Info) eip712.Domain {
	domain := eip712.Domain{
		Name:              info.AssetName,
		Version:           info.AssetVersion,
		ChainID:           strconv.FormatInt(info.ChainID, 10),
		VerifyingContract: requirement.Asset,
	}
	if requirement.Extra != nil {
		if name, ok := requirement.Extra["name"].(string); ok && name != "" {
			domain.Name = name
		}
		if version, ok := requirement.Extra["version"].(string); ok && version != "" {
			domain.Version = version
		}
	}
	return domain
}

// parsePaymentRequired extracts the requirement set from a 402 response:
// the JSON body first, then the X-Payment-Required header (base64 or raw
// JSON).
func parsePaymentRequired(resp *urlguard.Response) (*types.PaymentRequiredResponse, error) {
	var required types.PaymentRequiredResponse
	if len(resp.Body) > 0 {
		if err := json.Unmarshal(resp.Body, &required); err == nil && len(required.Accepts) > 0 {
			return &required, nil
		}
	}

	headerValue := resp.Header.Get(types.HeaderPaymentRequired)
	if headerValue == "" {
		return nil, types.NewEngineError(types.ErrInvalidRequirements,
			"402 response carried no payment requirements")
	}

	raw := []byte(headerValue)
	if decoded, err := base64.StdEncoding.DecodeString(headerValue); err == nil {
		raw = decoded
	}
	if err := json.Unmarshal(raw, &required); err != nil || len(required.Accepts) == 0 {
		return nil, types.NewEngineError(types.ErrInvalidRequirements,
			"unparseable payment requirements in 402 response")
	}
	return &required, nil
}

// usableRequirements filters the accepts list down to entries the engine
// can execute.
func usableRequirements(accepts []types.PaymentRequirements) []types.PaymentRequirements {
	usable := make([]types.PaymentRequirements, 0, len(accepts))
	for _, accept := range accepts {
		if accept.Scheme != string(types.SchemeExact) {
			continue
		}
		if err := accept.Validate(); err != nil {
			continue
		}
		usable = append(usable, accept)
	}
	return usable
}

// pinToNetwork narrows the accepts list to the caller's requested network.
// An unknown network and a known-but-unaccepted network fail differently
// so callers can tell configuration errors from merchant mismatches.
func pinToNetwork(registry *chains.Registry, accepts []types.PaymentRequirements, network string) ([]types.PaymentRequirements, error) {
	want, ok := registry.Resolve(network)
	if !ok {
		return nil, types.NewEngineError(types.ErrUnsupportedNetwork,
			fmt.Sprintf("requested network %q is not supported", network))
	}

	var pinned []types.PaymentRequirements
	for _, accept := range accepts {
		if info, ok := registry.Resolve(accept.Network); ok && info.ChainID == want.ChainID {
			pinned = append(pinned, accept)
		}
	}
	if len(pinned) == 0 {
		return nil, types.NewEngineError(types.ErrChainMismatch,
			fmt.Sprintf("server does not accept payment on %s", want.Network))
	}
	return pinned, nil
}

// identityHeader signs the server's challenge and encodes the proof for
// the X-Payment-Identity header.
func identityHeader(sg signer.Signer, challenge string) (string, error) {
	sig, err := sg.SignMessage(challenge)
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(map[string]string{
		"address":   sg.Address().Hex(),
		"challenge": challenge,
		"signature": sig,
	})
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// parseSettlement reads settlement metadata from the paid response's
// X-Payment-Response header, if present.
func parseSettlement(resp *urlguard.Response) *types.SettlementResponse {
	headerValue := resp.Header.Get(types.HeaderPaymentResponse)
	if headerValue == "" {
		return nil
	}
	raw, err := base64.StdEncoding.DecodeString(headerValue)
	if err != nil {
		raw = []byte(headerValue)
	}
	var settlement types.SettlementResponse
	if err := json.Unmarshal(raw, &settlement); err != nil {
		return nil
	}
	return &settlement
}

// walletForChain picks the user's wallet on a chain, preferring one that
// can sign automatically right now. The first wallet on the chain is the
// fallback so callers can surface a signer-unavailable error instead of a
// missing wallet.
func walletForChain(wallets []types.Wallet, chainID int64, now time.Time) *types.Wallet {
	var fallback *types.Wallet
	for i := range wallets {
		if wallets[i].ChainID != chainID {
			continue
		}
		if wallets[i].HasActiveSigner(now) {
			return &wallets[i]
		}
		if fallback == nil {
			fallback = &wallets[i]
		}
	}
	return fallback
}

// rejectedFrom wraps an error into a Rejected result, preserving an
// EngineError's code and substituting fallback otherwise.
func rejectedFrom(err error, fallback string) types.Rejected {
	if engineErr, ok := err.(*types.EngineError); ok {
		return types.Rejected{Err: engineErr}
	}
	return types.Rejected{Err: types.NewEngineError(fallback, err.Error())}
}

func truncate(body []byte, limit int) string {
	if len(body) > limit {
		body = body[:limit]
	}
	return string(body)
}
