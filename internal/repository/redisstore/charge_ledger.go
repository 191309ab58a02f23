// internal/repository/redisstore/charge_ledger.go
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"towbook-service/internal/domain/booking"

	"github.com/redis/go-redis/v9"
)

// ChargeLedger records gateway outcomes per idempotency key and holds a
// short lock while a charge is in flight.
type ChargeLedger struct {
	client    redis.Cmdable
	resultTTL time.Duration
}

func NewChargeLedger(client redis.Cmdable, resultTTL time.Duration) *ChargeLedger {
	if resultTTL <= 0 {
		resultTTL = 24 * time.Hour
	}
	return &ChargeLedger{client: client, resultTTL: resultTTL}
}

func chargeLockKey(key string) string {
	return fmt.Sprintf("charge:lock:%s", key)
}

func chargeResultKey(key string) string {
	return fmt.Sprintf("charge:result:%s", key)
}

// Acquire takes the in-flight lock for key. It reports false if another
// caller holds it.
func (l *ChargeLedger) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, chargeLockKey(key), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire charge lock: %w", err)
	}
	return ok, nil
}

func (l *ChargeLedger) Release(ctx context.Context, key string) error {
	return l.client.Del(ctx, chargeLockKey(key)).Err()
}

// Result returns the recorded outcome for key, or nil if none is recorded.
func (l *ChargeLedger) Result(ctx context.Context, key string) (*booking.ChargeResult, error) {
	data, err := l.client.Get(ctx, chargeResultKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read charge result: %w", err)
	}

	var result booking.ChargeResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal charge result: %w", err)
	}
	return &result, nil
}

func (l *ChargeLedger) Record(ctx context.Context, key string, result booking.ChargeResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal charge result: %w", err)
	}
	if err := l.client.Set(ctx, chargeResultKey(key), data, l.resultTTL).Err(); err != nil {
		return fmt.Errorf("failed to record charge result: %w", err)
	}
	return nil
}
