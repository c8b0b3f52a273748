package httpserver

import "encoding/json"

// operationRequest is the wire form of an engine operation.
type operationRequest struct {
	AccountID     string          `json:"accountId" validate:"required"`
	Kind          string          `json:"kind" validate:"required,oneof=deposit withdrawal bonus profit penalty"`
	Amount        int64           `json:"amount" validate:"required,gt=0"`
	Currency      string          `json:"currency" validate:"required,len=3"`
	Channel       string          `json:"channel" validate:"required,oneof=bank mobile crypto manual system"`
	Urgent        bool            `json:"urgent"`
	CorrelationID string          `json:"correlationId" validate:"required"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
}

// feeBreakdown is the wire form of a fee quote.
type feeBreakdown struct {
	BaseFee       int64 `json:"baseFee"`
	PercentageFee int64 `json:"percentageFee"`
	UrgentFee     int64 `json:"urgentFee"`
	TotalFee      int64 `json:"totalFee"`
	NetAmount     int64 `json:"netAmount"`
}

// operationResponse is the wire form of an operation outcome.
type operationResponse struct {
	EntryID        string       `json:"entryId"`
	Status         string       `json:"status"`
	Fees           feeBreakdown `json:"fees"`
	NetAmount      int64        `json:"netAmount"`
	NewBalance     *int64       `json:"newBalance,omitempty"`
	Warnings       []string     `json:"warnings,omitempty"`
	Duplicate      bool         `json:"duplicate,omitempty"`
	ProcessingTime string       `json:"processingTime,omitempty"`
}

// settleRequest resolves one pending entry.
type settleRequest struct {
	Decision       string `json:"decision" validate:"required,oneof=approve reject"`
	AdjustedAmount *int64 `json:"adjustedAmount,omitempty" validate:"omitempty,gt=0"`
	Note           string `json:"note,omitempty"`
}

// batchSettleRequest resolves many pending entries in one call.
type batchSettleRequest struct {
	Items []batchSettleItem `json:"items" validate:"required,min=1,dive"`
}

type batchSettleItem struct {
	EntryID        string `json:"entryId" validate:"required"`
	Decision       string `json:"decision" validate:"required,oneof=approve reject"`
	AdjustedAmount *int64 `json:"adjustedAmount,omitempty" validate:"omitempty,gt=0"`
	Note           string `json:"note,omitempty"`
}

// batchSettleResponse reports per-entry outcomes with success counts.
type batchSettleResponse struct {
	Succeeded int                  `json:"succeeded"`
	Failed    int                  `json:"failed"`
	Results   []batchSettleOutcome `json:"results"`
}

type batchSettleOutcome struct {
	EntryID string             `json:"entryId"`
	Status  string             `json:"status,omitempty"`
	Error   string             `json:"error,omitempty"`
	Outcome *operationResponse `json:"outcome,omitempty"`
}

// cancelRequest withdraws a pending entry before settlement.
type cancelRequest struct {
	Reason string `json:"reason,omitempty"`
}

// balanceResponse reports an account's current balance.
type balanceResponse struct {
	AccountID string `json:"accountId"`
	Balance   int64  `json:"balance"`
	Currency  string `json:"currency"`
}

// entryView is the wire form of a ledger entry.
type entryView struct {
	EntryID       string          `json:"entryId"`
	Kind          string          `json:"kind"`
	Channel       string          `json:"channel"`
	Gross         int64           `json:"gross"`
	Fee           int64           `json:"fee"`
	Net           int64           `json:"net"`
	Currency      string          `json:"currency"`
	Status        string          `json:"status"`
	CorrelationID string          `json:"correlationId"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
	CreatedAt     int64           `json:"createdAt"`
	SettledAt     int64           `json:"settledAt,omitempty"`
}

// errorResponse carries a stable error code and itemized details.
type errorResponse struct {
	Error   string   `json:"error"`
	Code    string   `json:"code"`
	Details []string `json:"details,omitempty"`
}
