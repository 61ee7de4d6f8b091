package payments

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"stayvista/internal/domain/payment"
	"stayvista/internal/domain/shared/money"
)

// FakeProvider is an in-process provider for local runs and tests. Intents are
// created pending unless AutoConfirm is set; Confirm simulates the guest
// completing the card flow.
type FakeProvider struct {
	AutoConfirm bool

	mu       sync.Mutex
	intents  map[string]payment.Authorization
	byKey    map[string]string
	refunds  map[string]payment.RefundOutcome
	refundBy map[string]string
}

func NewFakeProvider(autoConfirm bool) *FakeProvider {
	return &FakeProvider{
		AutoConfirm: autoConfirm,
		intents:     make(map[string]payment.Authorization),
		byKey:       make(map[string]string),
		refunds:     make(map[string]payment.RefundOutcome),
		refundBy:    make(map[string]string),
	}
}

func (f *FakeProvider) CreateIntent(ctx context.Context, amount money.Money, idempotencyKey string) (payment.Authorization, error) {
	if err := ctx.Err(); err != nil {
		return payment.Authorization{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if ref, ok := f.byKey[idempotencyKey]; ok && idempotencyKey != "" {
		return f.intents[ref], nil
	}
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	status := payment.StatusPending
	if f.AutoConfirm {
		status = payment.StatusSucceeded
	}
	auth := payment.Authorization{
		Reference:    "pi_" + id,
		ClientSecret: fmt.Sprintf("pi_%s_secret_%s", id, id[:8]),
		Amount:       amount,
		Status:       status,
	}
	f.intents[auth.Reference] = auth
	if idempotencyKey != "" {
		f.byKey[idempotencyKey] = auth.Reference
	}
	return auth, nil
}

func (f *FakeProvider) GetStatus(ctx context.Context, reference string) (payment.Authorization, error) {
	if err := ctx.Err(); err != nil {
		return payment.Authorization{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	auth, ok := f.intents[reference]
	if !ok {
		return payment.Authorization{}, payment.ErrUnknownReference
	}
	auth.ClientSecret = ""
	return auth, nil
}

// Refund refunds a succeeded intent once; repeats with the same key return the first outcome.
func (f *FakeProvider) Refund(ctx context.Context, reference, idempotencyKey string) (payment.RefundOutcome, error) {
	if err := ctx.Err(); err != nil {
		return payment.RefundOutcome{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if ref, ok := f.refundBy[idempotencyKey]; ok && idempotencyKey != "" {
		return f.refunds[ref], nil
	}
	auth, ok := f.intents[reference]
	if !ok {
		return payment.RefundOutcome{}, payment.ErrUnknownReference
	}
	if auth.Status != payment.StatusSucceeded {
		return payment.RefundOutcome{}, fmt.Errorf("%w: intent is %s", payment.ErrRejected, auth.Status)
	}
	auth.Status = payment.StatusRefunded
	f.intents[reference] = auth
	out := payment.RefundOutcome{RefundID: "re_" + strings.TrimPrefix(reference, "pi_"), Reference: reference, Status: "succeeded"}
	f.refunds[reference] = out
	if idempotencyKey != "" {
		f.refundBy[idempotencyKey] = reference
	}
	return out, nil
}

// Confirm marks a pending intent as succeeded.
func (f *FakeProvider) Confirm(reference string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	auth, ok := f.intents[reference]
	if !ok {
		return payment.ErrUnknownReference
	}
	if auth.Status == payment.StatusPending {
		auth.Status = payment.StatusSucceeded
		f.intents[reference] = auth
	}
	return nil
}

// Fail marks a pending intent as failed.
func (f *FakeProvider) Fail(reference string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	auth, ok := f.intents[reference]
	if !ok {
		return payment.ErrUnknownReference
	}
	auth.Status = payment.StatusFailed
	f.intents[reference] = auth
	return nil
}

var _ Provider = (*FakeProvider)(nil)
