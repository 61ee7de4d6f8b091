package payments

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"stayvista/internal/app/policies"
	"stayvista/internal/domain/payment"
	"stayvista/internal/domain/shared/money"
)

const defaultTimeout = 10 * time.Second

// Provider is a concrete payment provider. Errors should wrap the payment
// package sentinels; anything else is treated as unavailable.
type Provider interface {
	CreateIntent(ctx context.Context, amount money.Money, idempotencyKey string) (payment.Authorization, error)
	GetStatus(ctx context.Context, reference string) (payment.Authorization, error)
	Refund(ctx context.Context, reference, idempotencyKey string) (payment.RefundOutcome, error)
}

type Options struct {
	// Timeout bounds every provider call.
	Timeout time.Duration
	// StatusBackoff lists the waits between GetStatus attempts. Only GetStatus
	// is retried; creating intents and refunds are single attempts.
	StatusBackoff []time.Duration
	Sleep         func(ctx context.Context, d time.Duration) error
	Logger        *slog.Logger
}

// Gateway adapts a Provider to policies.PaymentsPort.
type Gateway struct {
	provider      Provider
	timeout       time.Duration
	statusBackoff []time.Duration
	sleep         func(ctx context.Context, d time.Duration) error
	logger        *slog.Logger
}

func NewGateway(provider Provider, opts Options) *Gateway {
	g := &Gateway{
		provider:      provider,
		timeout:       opts.Timeout,
		statusBackoff: append([]time.Duration(nil), opts.StatusBackoff...),
		sleep:         opts.Sleep,
		logger:        opts.Logger,
	}
	if g.timeout <= 0 {
		g.timeout = defaultTimeout
	}
	if g.sleep == nil {
		g.sleep = sleepContext
	}
	if g.logger == nil {
		g.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return g
}

func (g *Gateway) CreateIntent(ctx context.Context, amount money.Money, idempotencyKey string) (payment.Authorization, error) {
	if !amount.IsPositive() {
		return payment.Authorization{}, fmt.Errorf("payments: create intent: %w: amount must be positive", payment.ErrRejected)
	}
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	auth, err := g.provider.CreateIntent(callCtx, amount, idempotencyKey)
	if err != nil {
		return payment.Authorization{}, classify("create intent", err)
	}
	return auth, nil
}

func (g *Gateway) GetStatus(ctx context.Context, reference string) (payment.Authorization, error) {
	for attempt := 0; ; attempt++ {
		auth, err := g.statusOnce(ctx, reference)
		if err == nil {
			return auth, nil
		}
		if !errors.Is(err, payment.ErrUnavailable) || attempt >= len(g.statusBackoff) {
			return payment.Authorization{}, err
		}
		g.logger.WarnContext(ctx, "payment status lookup failed, retrying",
			slog.String("payment_reference", reference),
			slog.Int("attempt", attempt+1),
			slog.Any("error", err),
		)
		if serr := g.sleep(ctx, g.statusBackoff[attempt]); serr != nil {
			return payment.Authorization{}, err
		}
	}
}

func (g *Gateway) statusOnce(ctx context.Context, reference string) (payment.Authorization, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	auth, err := g.provider.GetStatus(callCtx, reference)
	if err != nil {
		return payment.Authorization{}, classify("get status", err)
	}
	return auth, nil
}

// Refund issues a full refund. The provider idempotency key is derived from the
// reference so a repeated refund of the same payment is deduplicated upstream.
func (g *Gateway) Refund(ctx context.Context, reference string) (payment.RefundOutcome, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	out, err := g.provider.Refund(callCtx, reference, RefundKey(reference))
	if err != nil {
		return payment.RefundOutcome{}, classify("refund", err)
	}
	return out, nil
}

// RefundKey is the provider idempotency key used for refunding reference.
func RefundKey(reference string) string {
	return "refund-" + reference
}

func classify(op string, err error) error {
	switch {
	case errors.Is(err, payment.ErrUnavailable),
		errors.Is(err, payment.ErrUnknownReference),
		errors.Is(err, payment.ErrRejected):
		return fmt.Errorf("payments: %s: %w", op, err)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("payments: %s: %w: timeout", op, payment.ErrUnavailable)
	default:
		return fmt.Errorf("payments: %s: %w: %w", op, payment.ErrUnavailable, err)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var _ policies.PaymentsPort = (*Gateway)(nil)
