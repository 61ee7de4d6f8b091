package policies

import (
	"context"

	"stayvista/internal/domain/payment"
	"stayvista/internal/domain/shared/money"
)

// PaymentsPort is the coordinator's view of the payment provider. Every call is
// a fallible network operation.
type PaymentsPort interface {
	// CreateIntent is never retried silently; idempotencyKey is forwarded to the provider.
	CreateIntent(ctx context.Context, amount money.Money, idempotencyKey string) (payment.Authorization, error)
	GetStatus(ctx context.Context, reference string) (payment.Authorization, error)
	// Refund is never retried silently; the adapter derives a provider idempotency key from reference.
	Refund(ctx context.Context, reference string) (payment.RefundOutcome, error)
}
