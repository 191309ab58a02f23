// internal/service/booking/session.go
package booking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"towbook-service/internal/domain/booking"
	"towbook-service/internal/pkg/retry"

	"go.uber.org/zap"
)

// Timeouts bound each external call made by the executor.
type Timeouts struct {
	Distance     time.Duration
	Payment      time.Duration
	Persistence  time.Duration
	Notification time.Duration
}

// DefaultTimeouts are used for any zero field.
var DefaultTimeouts = Timeouts{
	Distance:     10 * time.Second,
	Payment:      30 * time.Second,
	Persistence:  15 * time.Second,
	Notification: 5 * time.Second,
}

// Dependencies are the collaborators the executor drives.
type Dependencies struct {
	Distance       booking.DistanceProvider
	Payments       booking.PaymentGateway
	Store          booking.BookingStore
	Notifier       booking.Notifier
	Reconciliation booking.ReconciliationQueue
	PersistRetry   retry.Policy
	Timeouts       Timeouts
	Now            func() time.Time
}

func (d *Dependencies) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now().UTC()
}

func (d *Dependencies) withDefaults() {
	if d.Timeouts.Distance <= 0 {
		d.Timeouts.Distance = DefaultTimeouts.Distance
	}
	if d.Timeouts.Payment <= 0 {
		d.Timeouts.Payment = DefaultTimeouts.Payment
	}
	if d.Timeouts.Persistence <= 0 {
		d.Timeouts.Persistence = DefaultTimeouts.Persistence
	}
	if d.Timeouts.Notification <= 0 {
		d.Timeouts.Notification = DefaultTimeouts.Notification
	}
	if d.PersistRetry.MaxAttempts < 1 {
		d.PersistRetry = retry.New(3, time.Second, 2, 0)
	}
}

// Session owns one draft. It applies events through the machine under its
// lock and runs the resulting effects outside it, so an abandon can land
// while a lookup or charge is in flight.
type Session struct {
	id      string
	machine *Machine
	deps    *Dependencies
	logger  *zap.Logger

	mu          sync.Mutex
	state       booking.State
	lastActive  time.Time
	routeCtx    context.Context
	routeCancel context.CancelFunc
	settled     chan struct{} // non-nil while in PaymentPending
}

func newSession(initial booking.State, machine *Machine, deps *Dependencies, logger *zap.Logger) *Session {
	id := booking.DraftOf(initial).ID
	return &Session{
		id:         id,
		machine:    machine,
		deps:       deps,
		logger:     logger.With(zap.String("draft_id", id)),
		state:      initial,
		lastActive: deps.now(),
	}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) State() booking.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// Dispatch applies ev and runs every effect it causes, including the
// follow-up events fed back from external calls. It returns once the chain
// has settled.
func (s *Session) Dispatch(ctx context.Context, ev booking.Event) (booking.State, error) {
	effects, err := s.apply(ctx, ev)
	if err != nil {
		return s.State(), err
	}
	s.run(ctx, effects)
	return s.State(), nil
}

// Abandon requests abandonment. If a payment is in flight it blocks until
// the charge settles and returns the final state.
func (s *Session) Abandon(ctx context.Context) (booking.State, error) {
	st, err := s.Dispatch(ctx, booking.Abandon{At: s.deps.now()})
	if err != nil {
		return st, err
	}

	s.mu.Lock()
	settled := s.settled
	s.mu.Unlock()
	if settled == nil {
		return s.State(), nil
	}

	s.logger.Info("abandon requested during payment, awaiting settlement")
	select {
	case <-settled:
		final := s.State()
		s.logger.Info("payment settled after abandon request", zap.String("state", string(final.Name())))
		return final, nil
	case <-ctx.Done():
		return s.State(), ctx.Err()
	}
}

// apply runs one transition under the lock. A route lookup gets its context
// here, so an abandon arriving before the lookup starts still cancels it.
func (s *Session) apply(ctx context.Context, ev booking.Event) ([]booking.Effect, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.state
	next, effects, err := s.machine.Transition(prev, ev)
	if err != nil {
		return nil, err
	}
	s.state = next
	s.lastActive = s.deps.now()

	_, wasPending := prev.(booking.PaymentPending)
	_, isPending := next.(booking.PaymentPending)
	switch {
	case isPending && !wasPending:
		s.settled = make(chan struct{})
	case wasPending && !isPending:
		close(s.settled)
		s.settled = nil
	}

	for _, eff := range effects {
		if _, ok := eff.(booking.ResolveRoute); ok {
			s.routeCtx, s.routeCancel = context.WithTimeout(ctx, s.deps.Timeouts.Distance)
		}
	}

	if prev.Name() != next.Name() {
		s.logger.Debug("booking state changed",
			zap.String("from", string(prev.Name())),
			zap.String("to", string(next.Name())),
		)
	}
	return effects, nil
}

func (s *Session) run(ctx context.Context, effects []booking.Effect) {
	queue := append([]booking.Effect(nil), effects...)
	for len(queue) > 0 {
		eff := queue[0]
		queue = queue[1:]

		ev := s.perform(ctx, eff)
		if ev == nil {
			continue
		}

		more, err := s.apply(ctx, ev)
		if err != nil {
			// The draft moved on (abandoned, or finalized) before the result arrived.
			s.logger.Info("discarding late result",
				zap.String("event", fmt.Sprintf("%T", ev)),
				zap.Error(err),
			)
			continue
		}
		queue = append(queue, more...)
	}
}

func (s *Session) perform(ctx context.Context, eff booking.Effect) booking.Event {
	switch e := eff.(type) {
	case booking.ResolveRoute:
		return s.resolveRoute(ctx, e)
	case booking.CancelRoute:
		s.cancelRoute()
	case booking.Charge:
		return s.charge(ctx, e)
	case booking.Persist:
		return s.persist(ctx, e)
	case booking.Notify:
		s.notify(ctx, e)
	case booking.Escalate:
		s.escalate(ctx, e)
	default:
		s.logger.Error("unknown effect", zap.String("effect", fmt.Sprintf("%T", eff)))
	}
	return nil
}

func (s *Session) resolveRoute(ctx context.Context, e booking.ResolveRoute) booking.Event {
	s.mu.Lock()
	routeCtx, cancel := s.routeCtx, s.routeCancel
	s.mu.Unlock()
	if routeCtx == nil {
		routeCtx, cancel = context.WithTimeout(ctx, s.deps.Timeouts.Distance)
	}

	defer func() {
		cancel()
		s.mu.Lock()
		s.routeCtx, s.routeCancel = nil, nil
		s.mu.Unlock()
	}()

	route, err := s.deps.Distance.ResolveRoute(routeCtx, e.Pickup, e.DropOff)
	if err == nil && routeCtx.Err() != nil {
		err = routeCtx.Err()
	}
	if err != nil {
		s.logger.Warn("distance lookup failed", zap.Error(err))
		return booking.RouteFailed{Err: err}
	}

	s.logger.Info("route resolved", zap.Float64("distance_km", route.DistanceKm))
	return booking.RouteResolved{Route: route, At: s.deps.now()}
}

func (s *Session) cancelRoute() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.routeCancel != nil {
		s.routeCancel()
	}
}

func (s *Session) charge(ctx context.Context, e booking.Charge) booking.Event {
	// Detached from the caller: a charge is never cancelled mid-flight.
	chargeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.deps.Timeouts.Payment)
	defer cancel()

	s.logger.Info("charging payment",
		zap.Int64("amount_cents", e.Amount.Cents()),
		zap.String("idempotency_key", e.IdempotencyKey),
	)

	result, err := s.deps.Payments.Charge(chargeCtx, e.Amount, e.MethodToken, e.IdempotencyKey)
	switch {
	case err != nil:
		s.logger.Warn("payment gateway error", zap.String("idempotency_key", e.IdempotencyKey), zap.Error(err))
	case !result.Success:
		s.logger.Warn("payment declined", zap.String("idempotency_key", e.IdempotencyKey), zap.String("reason", result.ErrorReason))
	default:
		s.logger.Info("payment captured", zap.String("transaction_id", result.TransactionID))
	}

	return booking.PaymentSettled{Result: result, Err: err, At: s.deps.now()}
}

func (s *Session) persist(ctx context.Context, e booking.Persist) booking.Event {
	var receipt booking.BookingReceipt

	attempts, err := s.deps.PersistRetry.Do(context.WithoutCancel(ctx), func(ctx context.Context, attempt int) error {
		attemptCtx, cancel := context.WithTimeout(ctx, s.deps.Timeouts.Persistence)
		defer cancel()

		r, err := s.deps.Store.CreateBooking(attemptCtx, e.Input, e.IdempotencyKey)
		if err != nil {
			s.logger.Warn("booking write failed",
				zap.Int("attempt", attempt),
				zap.String("idempotency_key", e.IdempotencyKey),
				zap.Error(err),
			)
			if errors.Is(err, booking.ErrIdempotencyKeyReused) {
				return retry.Permanent(err)
			}
			return err
		}
		receipt = r
		return nil
	})
	if err != nil {
		return booking.PersistenceFailed{Err: err, Attempts: attempts, At: s.deps.now()}
	}

	s.logger.Info("booking recorded",
		zap.String("booking_id", receipt.ID),
		zap.String("service_number", receipt.ServiceNumber),
		zap.Int("attempts", attempts),
	)
	return booking.PersistenceAcknowledged{Receipt: receipt, At: s.deps.now()}
}

func (s *Session) notify(ctx context.Context, e booking.Notify) {
	if s.deps.Notifier == nil {
		return
	}
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.deps.Timeouts.Notification)
	defer cancel()

	if err := s.deps.Notifier.Notify(notifyCtx, e.Channel, e.Notification); err != nil {
		s.logger.Warn("notification failed",
			zap.String("channel", string(e.Channel)),
			zap.String("kind", string(e.Notification.Kind)),
			zap.Error(err),
		)
	}
}

func (s *Session) escalate(ctx context.Context, e booking.Escalate) {
	rec := e.Reconciliation
	s.logger.Error("payment captured but booking not recorded",
		zap.Bool("reconciliation_required", true),
		zap.String("transaction_id", rec.TransactionID),
		zap.String("idempotency_key", rec.IdempotencyKey),
		zap.Int64("amount_cents", rec.Amount.Cents()),
		zap.Int("persistence_attempts", rec.Attempts),
		zap.String("last_error", rec.LastError),
	)

	if s.deps.Reconciliation != nil {
		queueCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.deps.Timeouts.Persistence)
		defer cancel()
		if err := s.deps.Reconciliation.Push(queueCtx, rec); err != nil {
			s.logger.Error("failed to queue reconciliation",
				zap.Bool("reconciliation_required", true),
				zap.String("transaction_id", rec.TransactionID),
				zap.Error(err),
			)
		}
	}

	s.notify(ctx, booking.Notify{Channel: booking.ChannelAdmin, Notification: e.Notification})
}
