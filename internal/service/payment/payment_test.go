package payment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"towbook-service/internal/domain/booking"
	"towbook-service/internal/pkg/money"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"
	"go.uber.org/zap"
)

type mockIntents struct {
	mock.Mock
}

func (m *mockIntents) New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	args := m.Called(params)
	pi, _ := args.Get(0).(*stripe.PaymentIntent)
	return pi, args.Error(1)
}

func TestStripeGateway_Charge(t *testing.T) {
	amount := money.MustParse("35.00")

	tests := []struct {
		name    string
		intent  *stripe.PaymentIntent
		err     error
		want    booking.ChargeResult
		wantErr bool
	}{
		{
			name:   "succeeded",
			intent: &stripe.PaymentIntent{ID: "pi_123", Status: stripe.PaymentIntentStatusSucceeded},
			want:   booking.ChargeResult{Success: true, TransactionID: "pi_123"},
		},
		{
			name: "card declined",
			err: &stripe.Error{
				Type:        stripe.ErrorTypeCard,
				Code:        stripe.ErrorCodeCardDeclined,
				DeclineCode: stripe.DeclineCodeInsufficientFunds,
			},
			want: booking.ChargeResult{Success: false, ErrorReason: "insufficient_funds"},
		},
		{
			name: "card error without decline code",
			err:  &stripe.Error{Type: stripe.ErrorTypeCard, Code: stripe.ErrorCodeExpiredCard},
			want: booking.ChargeResult{Success: false, ErrorReason: "expired_card"},
		},
		{
			name:   "needs authentication",
			intent: &stripe.PaymentIntent{ID: "pi_3ds", Status: stripe.PaymentIntentStatusRequiresAction},
			want:   booking.ChargeResult{Success: false, ErrorReason: "authentication_required"},
		},
		{
			name:    "api error is ambiguous",
			err:     &stripe.Error{Type: stripe.ErrorTypeAPI, HTTPStatusCode: 500},
			wantErr: true,
		},
		{
			name:    "network error",
			err:     errors.New("connection reset by peer"),
			wantErr: true,
		},
		{
			name:    "still processing",
			intent:  &stripe.PaymentIntent{ID: "pi_slow", Status: stripe.PaymentIntentStatusProcessing},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intents := new(mockIntents)
			intents.On("New", mock.MatchedBy(func(p *stripe.PaymentIntentParams) bool {
				return *p.Amount == 3500 &&
					*p.Currency == "usd" &&
					*p.PaymentMethod == "pm_card_visa" &&
					*p.Confirm &&
					*p.IdempotencyKey == "key-1:1"
			})).Return(tt.intent, tt.err).Once()

			g := newStripeGateway(intents, "USD", zap.NewNop())
			got, err := g.Charge(context.Background(), amount, "pm_card_visa", "key-1:1")

			if tt.wantErr {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
			intents.AssertExpectations(t)
		})
	}
}

// memLedger is an in-memory ChargeLedger.
type memLedger struct {
	mu      sync.Mutex
	locks   map[string]bool
	results map[string]booking.ChargeResult
	failAll error
}

func newMemLedger() *memLedger {
	return &memLedger{locks: map[string]bool{}, results: map[string]booking.ChargeResult{}}
}

func (l *memLedger) Acquire(_ context.Context, key string, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failAll != nil {
		return false, l.failAll
	}
	if l.locks[key] {
		return false, nil
	}
	l.locks[key] = true
	return true, nil
}

func (l *memLedger) Release(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.locks, key)
	return l.failAll
}

func (l *memLedger) Result(_ context.Context, key string) (*booking.ChargeResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failAll != nil {
		return nil, l.failAll
	}
	r, ok := l.results[key]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (l *memLedger) Record(_ context.Context, key string, r booking.ChargeResult) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failAll != nil {
		return l.failAll
	}
	l.results[key] = r
	return nil
}

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) Charge(ctx context.Context, amount money.Money, token, key string) (booking.ChargeResult, error) {
	args := m.Called(ctx, amount, token, key)
	return args.Get(0).(booking.ChargeResult), args.Error(1)
}

func TestGuardedGateway_ReplaysRecordedOutcome(t *testing.T) {
	inner := new(mockGateway)
	inner.On("Charge", mock.Anything, mock.Anything, "pm", "key-1:1").
		Return(booking.ChargeResult{Success: true, TransactionID: "tx1"}, nil).Once()

	ledger := newMemLedger()
	g := NewGuardedGateway(inner, ledger, time.Minute, zap.NewNop())
	ctx := context.Background()

	first, err := g.Charge(ctx, money.FromCents(3500), "pm", "key-1:1")
	require.NoError(t, err)
	second, err := g.Charge(ctx, money.FromCents(3500), "pm", "key-1:1")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	inner.AssertNumberOfCalls(t, "Charge", 1)
	assert.Empty(t, ledger.locks)
}

func TestGuardedGateway_RejectsConcurrentCharge(t *testing.T) {
	inner := new(mockGateway)
	ledger := newMemLedger()
	ledger.locks["key-1:1"] = true

	_, err := NewGuardedGateway(inner, ledger, time.Minute, zap.NewNop()).
		Charge(context.Background(), money.FromCents(3500), "pm", "key-1:1")

	assert.ErrorIs(t, err, ErrChargeInFlight)
	inner.AssertNotCalled(t, "Charge", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestGuardedGateway_UnknownOutcomeIsNotRecorded(t *testing.T) {
	inner := new(mockGateway)
	inner.On("Charge", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(booking.ChargeResult{}, errors.New("timeout")).Once()
	inner.On("Charge", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(booking.ChargeResult{Success: true, TransactionID: "tx1"}, nil).Once()

	ledger := newMemLedger()
	g := NewGuardedGateway(inner, ledger, time.Minute, zap.NewNop())
	ctx := context.Background()

	_, err := g.Charge(ctx, money.FromCents(3500), "pm", "key-1:1")
	require.Error(t, err)
	assert.Empty(t, ledger.results)
	assert.Empty(t, ledger.locks)

	res, err := g.Charge(ctx, money.FromCents(3500), "pm", "key-1:1")
	require.NoError(t, err)
	assert.Equal(t, "tx1", res.TransactionID)
}

func TestGuardedGateway_LedgerOutageFallsThrough(t *testing.T) {
	inner := new(mockGateway)
	inner.On("Charge", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(booking.ChargeResult{Success: false, ErrorReason: "card_declined"}, nil).Once()

	ledger := newMemLedger()
	ledger.failAll = errors.New("redis down")

	res, err := NewGuardedGateway(inner, ledger, time.Minute, zap.NewNop()).
		Charge(context.Background(), money.FromCents(3500), "pm", "key-1:1")
	require.NoError(t, err)
	assert.Equal(t, "card_declined", res.ErrorReason)
}
