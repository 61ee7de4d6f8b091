package payment

import (
	"errors"

	"stayvista/internal/domain/shared/money"
)

var (
	// ErrUnavailable marks provider failures that are safe to retry: network
	// errors, timeouts and 5xx answers.
	ErrUnavailable = errors.New("payment: provider unavailable")
	// ErrUnknownReference is returned when the provider has no intent for the reference.
	ErrUnknownReference = errors.New("payment: unknown reference")
	// ErrRejected is a non-retryable provider refusal (invalid amount, refund not allowed).
	ErrRejected = errors.New("payment: rejected by provider")
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusRefunded  Status = "refunded"
)

// Authorization is the provider-owned view of a payment intent.
type Authorization struct {
	Reference    string      `json:"reference"`
	ClientSecret string      `json:"client_secret,omitempty"`
	Amount       money.Money `json:"amount"`
	Status       Status      `json:"status"`
}

// Confirmed reports whether the charge went through and was not refunded.
func (a Authorization) Confirmed() bool {
	return a.Status == StatusSucceeded
}

type RefundOutcome struct {
	RefundID  string `json:"refund_id"`
	Reference string `json:"reference"`
	Status    string `json:"status"`
}
