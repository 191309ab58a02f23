// internal/service/payment/guarded.go
package payment

import (
	"context"
	"errors"
	"time"

	"towbook-service/internal/domain/booking"
	"towbook-service/internal/pkg/money"

	"go.uber.org/zap"
)

var ErrChargeInFlight = errors.New("a charge with this idempotency key is already in flight")

// ChargeLedger remembers settled outcomes per idempotency key.
type ChargeLedger interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
	Result(ctx context.Context, key string) (*booking.ChargeResult, error)
	Record(ctx context.Context, key string, result booking.ChargeResult) error
}

// GuardedGateway replays a recorded outcome for a repeated key and refuses
// to run two charges for one key at the same time. Ledger outages degrade
// to the gateway's own idempotency handling.
type GuardedGateway struct {
	gateway booking.PaymentGateway
	ledger  ChargeLedger
	lockTTL time.Duration
	logger  *zap.Logger
}

func NewGuardedGateway(gateway booking.PaymentGateway, ledger ChargeLedger, lockTTL time.Duration, logger *zap.Logger) *GuardedGateway {
	if lockTTL <= 0 {
		lockTTL = time.Minute
	}
	return &GuardedGateway{gateway: gateway, ledger: ledger, lockTTL: lockTTL, logger: logger}
}

func (g *GuardedGateway) Charge(ctx context.Context, amount money.Money, methodToken, idempotencyKey string) (booking.ChargeResult, error) {
	log := g.logger.With(zap.String("idempotency_key", idempotencyKey))

	prior, err := g.ledger.Result(ctx, idempotencyKey)
	if err != nil {
		log.Warn("charge ledger read failed", zap.Error(err))
	}
	if prior != nil {
		log.Info("replaying recorded charge outcome", zap.Bool("success", prior.Success))
		return *prior, nil
	}

	acquired, err := g.ledger.Acquire(ctx, idempotencyKey, g.lockTTL)
	switch {
	case err != nil:
		log.Warn("charge lock unavailable", zap.Error(err))
	case !acquired:
		return booking.ChargeResult{}, ErrChargeInFlight
	default:
		defer func() {
			if err := g.ledger.Release(context.WithoutCancel(ctx), idempotencyKey); err != nil {
				log.Warn("charge lock release failed", zap.Error(err))
			}
		}()
	}

	result, err := g.gateway.Charge(ctx, amount, methodToken, idempotencyKey)
	if err != nil {
		return booking.ChargeResult{}, err
	}

	if err := g.ledger.Record(context.WithoutCancel(ctx), idempotencyKey, result); err != nil {
		log.Warn("charge ledger write failed", zap.Error(err))
	}
	return result, nil
}
