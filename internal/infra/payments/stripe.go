package payments

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"

	"stayvista/internal/domain/payment"
	"stayvista/internal/domain/shared/money"
)

// StripeProvider talks to Stripe PaymentIntents. The SDK's own network retries
// are disabled; retry policy lives in Gateway.
type StripeProvider struct {
	api *client.API
}

type StripeOptions struct {
	HTTPClient *http.Client
	// BaseURL overrides the API endpoint, for stripe-mock or tests.
	BaseURL string
}

func NewStripeProvider(secretKey string, opts StripeOptions) (*StripeProvider, error) {
	secretKey = strings.TrimSpace(secretKey)
	if secretKey == "" {
		return nil, errors.New("payments: stripe secret key is required")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	cfg := &stripe.BackendConfig{
		HTTPClient:        httpClient,
		MaxNetworkRetries: stripe.Int64(0),
		EnableTelemetry:   stripe.Bool(false),
	}
	if opts.BaseURL != "" {
		cfg.URL = stripe.String(strings.TrimRight(opts.BaseURL, "/"))
	}
	backends := &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, cfg),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, cfg),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, cfg),
	}
	return &StripeProvider{api: client.New(secretKey, backends)}, nil
}

func (p *StripeProvider) CreateIntent(ctx context.Context, amount money.Money, idempotencyKey string) (payment.Authorization, error) {
	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(amount.Amount),
		Currency:           stripe.String(amount.LowerCurrency()),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
	}
	params.Context = ctx
	if idempotencyKey != "" {
		params.SetIdempotencyKey("intent-" + idempotencyKey)
	}
	pi, err := p.api.PaymentIntents.New(params)
	if err != nil {
		return payment.Authorization{}, stripeError(err)
	}
	return authorizationFromIntent(pi, amount.Currency), nil
}

func (p *StripeProvider) GetStatus(ctx context.Context, reference string) (payment.Authorization, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	params.AddExpand("latest_charge")
	pi, err := p.api.PaymentIntents.Get(reference, params)
	if err != nil {
		return payment.Authorization{}, stripeError(err)
	}
	auth := authorizationFromIntent(pi, "")
	auth.ClientSecret = ""
	return auth, nil
}

func (p *StripeProvider) Refund(ctx context.Context, reference, idempotencyKey string) (payment.RefundOutcome, error) {
	params := &stripe.RefundParams{PaymentIntent: stripe.String(reference)}
	params.Context = ctx
	if idempotencyKey != "" {
		params.SetIdempotencyKey(idempotencyKey)
	}
	refund, err := p.api.Refunds.New(params)
	if err != nil {
		var serr *stripe.Error
		if errors.As(err, &serr) && serr.Code == stripe.ErrorCodeChargeAlreadyRefunded {
			return payment.RefundOutcome{Reference: reference, Status: "succeeded"}, nil
		}
		return payment.RefundOutcome{}, stripeError(err)
	}
	return payment.RefundOutcome{RefundID: refund.ID, Reference: reference, Status: string(refund.Status)}, nil
}

func authorizationFromIntent(pi *stripe.PaymentIntent, fallbackCurrency string) payment.Authorization {
	currency := strings.ToUpper(string(pi.Currency))
	if currency == "" {
		currency = strings.ToUpper(fallbackCurrency)
	}
	return payment.Authorization{
		Reference:    pi.ID,
		ClientSecret: pi.ClientSecret,
		Amount:       money.Money{Amount: pi.Amount, Currency: currency},
		Status:       intentStatus(pi),
	}
}

func intentStatus(pi *stripe.PaymentIntent) payment.Status {
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		if pi.LatestCharge != nil && (pi.LatestCharge.Refunded || pi.LatestCharge.AmountRefunded > 0) {
			return payment.StatusRefunded
		}
		return payment.StatusSucceeded
	case stripe.PaymentIntentStatusCanceled:
		return payment.StatusFailed
	case stripe.PaymentIntentStatusRequiresPaymentMethod:
		if pi.LastPaymentError != nil {
			return payment.StatusFailed
		}
		return payment.StatusPending
	default:
		return payment.StatusPending
	}
}

func stripeError(err error) error {
	var serr *stripe.Error
	if !errors.As(err, &serr) {
		return fmt.Errorf("%w: %w", payment.ErrUnavailable, err)
	}
	switch {
	case serr.HTTPStatusCode == http.StatusNotFound || serr.Code == stripe.ErrorCodeResourceMissing:
		return fmt.Errorf("%w: %s", payment.ErrUnknownReference, serr.Msg)
	case serr.HTTPStatusCode == http.StatusTooManyRequests || serr.HTTPStatusCode >= 500 || serr.HTTPStatusCode == 0:
		return fmt.Errorf("%w: stripe %d: %s", payment.ErrUnavailable, serr.HTTPStatusCode, serr.Msg)
	default:
		return fmt.Errorf("%w: stripe %d: %s", payment.ErrRejected, serr.HTTPStatusCode, serr.Msg)
	}
}

var _ Provider = (*StripeProvider)(nil)
