// internal/repository/redisstore/reconciliation.go
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"

	"towbook-service/internal/domain/booking"

	"github.com/redis/go-redis/v9"
)

const reconciliationKey = "reconciliation:queue"

// ReconciliationQueue is a redis list of captured charges that have no
// booking row, newest first.
type ReconciliationQueue struct {
	client redis.Cmdable
}

func NewReconciliationQueue(client redis.Cmdable) *ReconciliationQueue {
	return &ReconciliationQueue{client: client}
}

func (q *ReconciliationQueue) Push(ctx context.Context, r booking.Reconciliation) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal reconciliation: %w", err)
	}
	if err := q.client.LPush(ctx, reconciliationKey, data).Err(); err != nil {
		return fmt.Errorf("failed to queue reconciliation: %w", err)
	}
	return nil
}

func (q *ReconciliationQueue) List(ctx context.Context, limit int64) ([]booking.Reconciliation, error) {
	if limit <= 0 {
		limit = 50
	}

	items, err := q.client.LRange(ctx, reconciliationKey, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list reconciliations: %w", err)
	}

	out := make([]booking.Reconciliation, 0, len(items))
	for _, item := range items {
		var r booking.Reconciliation
		if err := json.Unmarshal([]byte(item), &r); err != nil {
			return nil, fmt.Errorf("failed to unmarshal reconciliation: %w", err)
		}
		out = append(out, r)
	}
	return out, nil
}
