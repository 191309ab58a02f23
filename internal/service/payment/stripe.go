// internal/service/payment/stripe.go
package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"towbook-service/internal/domain/booking"
	"towbook-service/internal/pkg/money"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/paymentintent"
	"go.uber.org/zap"
)

// intentCreator is the slice of the Stripe client the gateway uses.
type intentCreator interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

// StripeGateway charges cards with confirmed PaymentIntents.
type StripeGateway struct {
	intents  intentCreator
	currency string
	logger   *zap.Logger
}

func NewStripeGateway(secretKey, currency string, logger *zap.Logger) *StripeGateway {
	return newStripeGateway(&paymentintent.Client{
		B:   stripe.GetBackend(stripe.APIBackend),
		Key: secretKey,
	}, currency, logger)
}

func newStripeGateway(intents intentCreator, currency string, logger *zap.Logger) *StripeGateway {
	if currency == "" {
		currency = string(stripe.CurrencyUSD)
	}
	return &StripeGateway{
		intents:  intents,
		currency: strings.ToLower(currency),
		logger:   logger,
	}
}

// Charge creates and confirms a PaymentIntent for amount. Card errors come
// back as a declined result; any other failure is returned as an error
// because the outcome is unknown.
func (g *StripeGateway) Charge(ctx context.Context, amount money.Money, methodToken, idempotencyKey string) (booking.ChargeResult, error) {
	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(amount.Cents()),
		Currency:           stripe.String(g.currency),
		PaymentMethod:      stripe.String(methodToken),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Confirm:            stripe.Bool(true),
	}
	params.Context = ctx
	params.SetIdempotencyKey(idempotencyKey)

	pi, err := g.intents.New(params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Type == stripe.ErrorTypeCard {
			reason := string(stripeErr.DeclineCode)
			if reason == "" {
				reason = string(stripeErr.Code)
			}
			g.logger.Info("card declined",
				zap.String("idempotency_key", idempotencyKey),
				zap.String("decline_code", reason),
			)
			return booking.ChargeResult{Success: false, ErrorReason: reason}, nil
		}
		return booking.ChargeResult{}, fmt.Errorf("stripe payment intent failed: %w", err)
	}

	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return booking.ChargeResult{Success: true, TransactionID: pi.ID}, nil
	case stripe.PaymentIntentStatusProcessing:
		return booking.ChargeResult{}, fmt.Errorf("payment intent %s is still processing", pi.ID)
	case stripe.PaymentIntentStatusRequiresAction:
		return booking.ChargeResult{Success: false, ErrorReason: "authentication_required"}, nil
	default:
		return booking.ChargeResult{Success: false, ErrorReason: string(pi.Status)}, nil
	}
}
