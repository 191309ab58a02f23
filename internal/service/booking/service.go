// internal/service/booking/service.go
package booking

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"towbook-service/internal/domain/booking"
	"towbook-service/internal/service/pricing"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

type BookingService struct {
	machine *Machine
	pricer  *pricing.Engine
	deps    *Dependencies
	idleTTL time.Duration
	newID   func() string
	logger  *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewBookingService builds the draft registry. idleTTL is how long a draft may
// sit untouched before the janitor ends its session.
func NewBookingService(pricer *pricing.Engine, deps Dependencies, maxPaymentAttempts int, idleTTL time.Duration, logger *zap.Logger) *BookingService {
	deps.withDefaults()
	if idleTTL <= 0 {
		idleTTL = 30 * time.Minute
	}
	return &BookingService{
		machine:  NewMachine(pricer, maxPaymentAttempts),
		pricer:   pricer,
		deps:     &deps,
		idleTTL:  idleTTL,
		newID:    func() string { return ulid.Make().String() },
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

// Quote prices a tow without creating a draft.
func (s *BookingService) Quote(size string, distanceKm float64) (*booking.QuoteResponse, error) {
	vs, err := booking.ParseVehicleSize(size)
	if err != nil {
		return nil, err
	}
	q, err := s.pricer.Quote(distanceKm, vs, s.deps.now())
	if err != nil {
		return nil, err
	}
	return &booking.QuoteResponse{VehicleSize: vs, PriceQuote: q}, nil
}

// StartDraft opens a new draft in address selection.
func (s *BookingService) StartDraft(ctx context.Context, edit booking.DraftEdit, identityID string) (*booking.DraftView, error) {
	now := s.deps.now()
	draft := booking.Draft{
		ID:            s.newID(),
		Customer:      booking.Customer{IdentityID: identityID},
		PaymentMethod: booking.PaymentMethodCard,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	sess := newSession(booking.AwaitingAddresses{Draft: draft}, s.machine, s.deps, s.logger)
	st, err := sess.Dispatch(ctx, booking.EditDraft{Edit: edit, At: now})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.sessions[sess.ID()] = sess
	s.mu.Unlock()

	s.logger.Info("booking draft started",
		zap.String("draft_id", sess.ID()),
		zap.String("vehicle_size", string(booking.DraftOf(st).Vehicle.Size)),
	)

	view := booking.NewDraftView(st)
	return &view, nil
}

func (s *BookingService) GetDraft(ctx context.Context, id string) (*booking.DraftView, error) {
	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}
	view := booking.NewDraftView(sess.State())
	return &view, nil
}

// UpdateDraft edits vehicle, customer or schedule details. A vehicle change
// in review supersedes the quote.
func (s *BookingService) UpdateDraft(ctx context.Context, id string, edit booking.DraftEdit) (*booking.DraftView, error) {
	return s.dispatch(ctx, id, booking.EditDraft{Edit: edit, At: s.deps.now()})
}

// SelectAddresses fixes the pickup and drop-off and prices the route. It
// returns once the distance lookup has finished or failed.
func (s *BookingService) SelectAddresses(ctx context.Context, id string, addresses booking.AddressSelection) (*booking.DraftView, error) {
	return s.dispatch(ctx, id, booking.SelectAddresses{Addresses: addresses, At: s.deps.now()})
}

// ConfirmPayment charges the quoted amount and records the booking. A repeat
// confirmation of an already confirmed draft returns the existing booking.
func (s *BookingService) ConfirmPayment(ctx context.Context, id, methodToken, idempotencyKey string) (*booking.DraftView, error) {
	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}

	if st, ok := sess.State().(booking.Confirmed); ok {
		s.logger.Info("duplicate confirmation for confirmed draft",
			zap.String("draft_id", id),
			zap.String("booking_id", st.Booking.ID),
		)
		view := booking.NewDraftView(st)
		return &view, nil
	}

	key := strings.TrimSpace(idempotencyKey)
	if key == "" {
		key = ulid.Make().String()
	}

	st, err := sess.Dispatch(ctx, booking.ConfirmPayment{
		MethodToken:    methodToken,
		IdempotencyKey: key,
		At:             s.deps.now(),
	})
	if err != nil {
		return nil, err
	}
	view := booking.NewDraftView(st)
	return &view, nil
}

// AbandonDraft ends the draft. With a payment in flight it waits for
// settlement first.
func (s *BookingService) AbandonDraft(ctx context.Context, id string) (*booking.DraftView, error) {
	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}
	st, err := sess.Abandon(ctx)
	if err != nil {
		return nil, err
	}

	s.logger.Info("booking draft abandoned",
		zap.String("draft_id", id),
		zap.String("final_state", string(st.Name())),
	)
	view := booking.NewDraftView(st)
	return &view, nil
}

// Sweep ends sessions idle longer than the TTL and evicts finished ones.
// Drafts with a payment in flight are left to settle.
func (s *BookingService) Sweep(ctx context.Context) int {
	cutoff := s.deps.now().Add(-s.idleTTL)

	s.mu.RLock()
	var stale []*Session
	for _, sess := range s.sessions {
		if sess.LastActive().Before(cutoff) {
			stale = append(stale, sess)
		}
	}
	s.mu.RUnlock()

	evicted := 0
	for _, sess := range stale {
		st := sess.State()
		if _, pending := st.(booking.PaymentPending); pending {
			continue
		}
		if !st.Terminal() {
			if _, err := sess.Abandon(ctx); err != nil && !errors.Is(err, booking.ErrInvalidTransition) {
				s.logger.Warn("failed to abandon idle draft", zap.String("draft_id", sess.ID()), zap.Error(err))
				continue
			}
		}

		s.mu.Lock()
		delete(s.sessions, sess.ID())
		s.mu.Unlock()
		evicted++
	}

	if evicted > 0 {
		s.logger.Info("idle booking drafts evicted", zap.Int("count", evicted))
	}
	return evicted
}

// RunJanitor sweeps on every tick until ctx is done.
func (s *BookingService) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// ActiveDrafts reports how many drafts are held in memory.
func (s *BookingService) ActiveDrafts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *BookingService) session(id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, booking.ErrDraftNotFound
	}
	return sess, nil
}

func (s *BookingService) dispatch(ctx context.Context, id string, ev booking.Event) (*booking.DraftView, error) {
	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}
	st, err := sess.Dispatch(ctx, ev)
	if err != nil {
		return nil, err
	}
	view := booking.NewDraftView(st)
	return &view, nil
}
