// internal/service/booking/machine.go
package booking

import (
	"fmt"
	"strings"
	"time"

	"towbook-service/internal/domain/booking"
	"towbook-service/internal/pkg/money"
	"towbook-service/internal/service/pricing"
)

// Machine is the booking workflow as a pure function of (state, event).
// It never performs I/O; side effects are returned for the executor to run.
type Machine struct {
	pricer             *pricing.Engine
	maxPaymentAttempts int
}

func NewMachine(pricer *pricing.Engine, maxPaymentAttempts int) *Machine {
	return &Machine{
		pricer:             pricer,
		maxPaymentAttempts: maxPaymentAttempts,
	}
}

// Transition returns the next state and the effects to run. On error the
// returned state is the input state and no effects are produced.
func (m *Machine) Transition(s booking.State, ev booking.Event) (booking.State, []booking.Effect, error) {
	if s.Terminal() {
		return s, nil, fmt.Errorf("%w: %s cannot accept %T", booking.ErrTerminalState, s.Name(), ev)
	}

	switch st := s.(type) {
	case booking.AwaitingAddresses:
		return m.fromAwaitingAddresses(st, ev)
	case booking.Pricing:
		return m.fromPricing(st, ev)
	case booking.Review:
		return m.fromReview(st, ev)
	case booking.PaymentPending:
		return m.fromPaymentPending(st, ev)
	}
	return s, nil, invalidTransition(s, ev)
}

func (m *Machine) fromAwaitingAddresses(st booking.AwaitingAddresses, ev booking.Event) (booking.State, []booking.Effect, error) {
	switch e := ev.(type) {
	case booking.SelectAddresses:
		if err := e.Addresses.Validate(); err != nil {
			return st, nil, err
		}
		if st.Draft.Vehicle.Size == "" {
			return st, nil, booking.NewInvalidInput(booking.ReasonInvalidVehicleSize,
				"vehicle details are required before choosing addresses")
		}
		if _, err := m.pricer.ClassifyVehicle(st.Draft.Vehicle.Size); err != nil {
			return st, nil, err
		}

		d := st.Draft
		addresses := e.Addresses
		d.Addresses = &addresses
		d.Route = nil
		d.Quote = nil
		d.UpdatedAt = e.At

		return booking.Pricing{Draft: d}, []booking.Effect{
			booking.ResolveRoute{Pickup: addresses.Pickup, DropOff: addresses.DropOff},
		}, nil

	case booking.EditDraft:
		d, err := m.applyEdit(st.Draft, e)
		if err != nil {
			return st, nil, err
		}
		st.Draft = d
		return st, nil, nil

	case booking.Abandon:
		return abandon(st.Draft, st.Name(), e.At), nil, nil
	}
	return st, nil, invalidTransition(st, ev)
}

func (m *Machine) fromPricing(st booking.Pricing, ev booking.Event) (booking.State, []booking.Effect, error) {
	switch e := ev.(type) {
	case booking.RouteResolved:
		quote, err := m.pricer.Quote(e.Route.DistanceKm, st.Draft.Vehicle.Size, e.At)
		if err != nil {
			// The provider answered with a distance we cannot price.
			return booking.AwaitingAddresses{Draft: st.Draft, LastError: booking.NewDistanceLookupFailed(err)}, nil, nil
		}

		d := st.Draft
		route := e.Route
		d.Route = &route
		d.Quote = &quote
		d.UpdatedAt = e.At
		return booking.Review{Draft: d, Quote: quote}, nil, nil

	case booking.RouteFailed:
		return booking.AwaitingAddresses{Draft: st.Draft, LastError: booking.NewDistanceLookupFailed(e.Err)}, nil, nil

	case booking.EditDraft:
		d, err := m.applyEdit(st.Draft, e)
		if err != nil {
			return st, nil, err
		}
		st.Draft = d
		return st, nil, nil

	case booking.Abandon:
		return abandon(st.Draft, st.Name(), e.At), []booking.Effect{booking.CancelRoute{}}, nil
	}
	return st, nil, invalidTransition(st, ev)
}

func (m *Machine) fromReview(st booking.Review, ev booking.Event) (booking.State, []booking.Effect, error) {
	switch e := ev.(type) {
	case booking.EditDraft:
		d, err := m.applyEdit(st.Draft, e)
		if err != nil {
			return st, nil, err
		}
		quote, err := m.requote(d, st.Quote, e.At)
		if err != nil {
			return st, nil, err
		}
		d.Quote = &quote
		return booking.Review{Draft: d, Quote: quote}, nil, nil

	case booking.ConfirmPayment:
		return m.confirm(st, e)

	case booking.Abandon:
		return abandon(st.Draft, st.Name(), e.At), nil, nil
	}
	return st, nil, invalidTransition(st, ev)
}

func (m *Machine) confirm(st booking.Review, e booking.ConfirmPayment) (booking.State, []booking.Effect, error) {
	d := st.Draft

	token := strings.TrimSpace(e.MethodToken)
	if token == "" {
		return st, nil, booking.NewInvalidInput(booking.ReasonMissingPaymentMethod, "a payment method is required")
	}

	if m.maxPaymentAttempts > 0 && len(d.Attempts) >= m.maxPaymentAttempts {
		failure := booking.NewPaymentAttemptsExhausted(m.maxPaymentAttempts)
		d.UpdatedAt = e.At
		n := newNotification(booking.NotificationPaymentFailed, d, st.Quote, e.At)
		n.Reason = failure.Reason
		n.Message = failure.Message
		return booking.Failed{Draft: d, Failure: failure}, []booking.Effect{
			booking.Notify{Channel: booking.ChannelUser, Notification: n},
		}, nil
	}

	class, err := m.pricer.ClassifyVehicle(d.Vehicle.Size)
	if err != nil {
		return st, nil, err
	}
	if d.Route == nil || !st.Quote.ValidFor(d.Route.DistanceKm, class) {
		return st, nil, booking.NewInvalidInput(booking.ReasonStaleQuote, "the price has changed, please review the new quote")
	}

	if d.IdempotencyKey == "" {
		clientKey := strings.TrimSpace(e.IdempotencyKey)
		if clientKey == "" {
			return st, nil, booking.NewInvalidInput(booking.ReasonMissingIdempotencyKey, "an idempotency key is required to confirm payment")
		}
		d.IdempotencyKey = draftKey(d.ID, clientKey)
	}

	seq := nextChargeSeq(d, token, st.Quote.TotalCost)
	key := fmt.Sprintf("%s:%d", d.IdempotencyKey, seq)
	d.ChargeSeq = seq
	d.UpdatedAt = e.At

	attempt := booking.PaymentAttempt{
		Number:         len(d.Attempts) + 1,
		MethodToken:    token,
		Amount:         st.Quote.TotalCost,
		IdempotencyKey: key,
		AttemptedAt:    e.At,
	}

	next := booking.PaymentPending{
		Draft:    d,
		Snapshot: booking.Snapshot{Draft: d, Quote: st.Quote},
		Attempt:  attempt,
	}
	return next, []booking.Effect{
		booking.Charge{Amount: attempt.Amount, MethodToken: token, IdempotencyKey: key},
	}, nil
}

func (m *Machine) fromPaymentPending(st booking.PaymentPending, ev booking.Event) (booking.State, []booking.Effect, error) {
	switch e := ev.(type) {
	case booking.PaymentSettled:
		if st.Charged != nil {
			return st, nil, invalidTransition(st, ev)
		}
		return m.settle(st, e)

	case booking.PersistenceAcknowledged:
		if st.Charged == nil {
			return st, nil, invalidTransition(st, ev)
		}

		d := st.Draft
		d.UpdatedAt = e.At
		confirmed := booking.ConfirmedBooking{
			ID:                    e.Receipt.ID,
			ServiceNumber:         e.Receipt.ServiceNumber,
			Status:                booking.StatusConfirmed,
			ConfirmedBookingInput: confirmedInput(st.Snapshot, st.Charged.TransactionID),
			CreatedAt:             e.At,
			UpdatedAt:             e.At,
		}

		n := newNotification(booking.NotificationBookingConfirmed, st.Snapshot.Draft, st.Snapshot.Quote, e.At)
		n.BookingID = confirmed.ID
		n.ServiceNumber = confirmed.ServiceNumber
		n.Message = fmt.Sprintf("Booking %s confirmed: class %s tow, %.1f km, %s charged.",
			confirmed.ServiceNumber, confirmed.TruckClass, confirmed.DistanceKm, confirmed.TotalCost)

		return booking.Confirmed{Draft: d, Booking: confirmed}, []booking.Effect{
			booking.Notify{Channel: booking.ChannelUser, Notification: n},
			booking.Notify{Channel: booking.ChannelAdmin, Notification: n},
		}, nil

	case booking.PersistenceFailed:
		if st.Charged == nil {
			return st, nil, invalidTransition(st, ev)
		}

		failure := booking.NewPersistenceAfterPaymentFailure(e.Err)
		snapshot := st.Snapshot
		d := st.Draft
		d.UpdatedAt = e.At

		lastErr := ""
		if e.Err != nil {
			lastErr = e.Err.Error()
		}
		rec := booking.Reconciliation{
			DraftID:        d.ID,
			IdempotencyKey: d.IdempotencyKey,
			TransactionID:  st.Charged.TransactionID,
			Amount:         snapshot.Quote.TotalCost,
			Customer:       snapshot.Draft.Customer,
			Attempts:       e.Attempts,
			LastError:      lastErr,
			Input:          confirmedInput(snapshot, st.Charged.TransactionID),
			RaisedAt:       e.At,
		}

		n := newNotification(booking.NotificationReconciliationRequired, snapshot.Draft, snapshot.Quote, e.At)
		n.Reason = failure.Reason
		n.Message = fmt.Sprintf("Payment %s of %s was captured for draft %s but the booking could not be saved after %d attempts.",
			rec.TransactionID, rec.Amount, rec.DraftID, rec.Attempts)

		return booking.Failed{Draft: d, Failure: failure, Snapshot: &snapshot}, []booking.Effect{
			booking.Escalate{Reconciliation: rec, Notification: n},
		}, nil

	case booking.EditDraft:
		// Edits land on the draft only; the in-flight payment uses the snapshot.
		d, err := m.applyEdit(st.Draft, e)
		if err != nil {
			return st, nil, err
		}
		st.Draft = d
		return st, nil, nil

	case booking.Abandon:
		st.AbandonRequested = true
		return st, nil, nil

	case booking.ConfirmPayment:
		return st, nil, booking.ErrPaymentInFlight
	}
	return st, nil, invalidTransition(st, ev)
}

func (m *Machine) settle(st booking.PaymentPending, e booking.PaymentSettled) (booking.State, []booking.Effect, error) {
	attempt := st.Attempt
	settledAt := e.At
	attempt.SettledAt = &settledAt

	if e.Err == nil && e.Result.Success {
		result := e.Result
		attempt.Outcome = booking.OutcomeSuccess
		attempt.TransactionID = result.TransactionID

		st.Draft = st.Draft.WithAttempt(attempt)
		st.Draft.UpdatedAt = e.At
		st.Attempt = attempt
		st.Charged = &result

		// The charge has settled, so an abandon request no longer applies:
		// the booking must be recorded.
		return st, []booking.Effect{
			booking.Persist{
				Input:          confirmedInput(st.Snapshot, result.TransactionID),
				IdempotencyKey: st.Draft.IdempotencyKey,
			},
		}, nil
	}

	var failure *booking.Error
	if e.Err != nil {
		failure = booking.NewGatewayError(e.Err)
	} else {
		failure = booking.NewPaymentDeclined(e.Result.ErrorReason)
	}
	attempt.Outcome = booking.OutcomeFailure
	attempt.FailureReason = failure.Reason

	d := st.Draft.WithAttempt(attempt)
	d.UpdatedAt = e.At

	if st.AbandonRequested {
		return abandon(d, st.Name(), e.At), nil, nil
	}

	quote, err := m.requote(d, st.Snapshot.Quote, e.At)
	if err != nil {
		quote = st.Snapshot.Quote
	}
	d.Quote = &quote

	n := newNotification(booking.NotificationPaymentFailed, d, quote, e.At)
	n.Reason = failure.Reason
	n.Message = failure.Message

	return booking.Review{Draft: d, Quote: quote, LastFailure: failure}, []booking.Effect{
		booking.Notify{Channel: booking.ChannelUser, Notification: n},
	}, nil
}

// applyEdit validates a vehicle change before applying the edit.
func (m *Machine) applyEdit(d booking.Draft, e booking.EditDraft) (booking.Draft, error) {
	if e.Edit.Vehicle != nil {
		if _, err := m.pricer.ClassifyVehicle(e.Edit.Vehicle.Size); err != nil {
			return d, err
		}
	}
	d = e.Edit.Apply(d)
	d.UpdatedAt = e.At
	return d, nil
}

// requote keeps the current quote while its inputs are unchanged and
// supersedes it otherwise.
func (m *Machine) requote(d booking.Draft, current booking.PriceQuote, at time.Time) (booking.PriceQuote, error) {
	if d.Route == nil {
		return current, nil
	}
	class, err := m.pricer.ClassifyVehicle(d.Vehicle.Size)
	if err != nil {
		return booking.PriceQuote{}, err
	}
	if current.ValidFor(d.Route.DistanceKm, class) {
		return current, nil
	}
	return m.pricer.Quote(d.Route.DistanceKm, d.Vehicle.Size, at)
}

// nextChargeSeq reuses the previous gateway key when the last attempt ended
// in a gateway error for the same card and amount, so the gateway can
// deduplicate a charge whose outcome we never observed.
// draftKey binds a client key to one draft, so the same key sent for another
// draft never replays this draft's charge or booking row.
func draftKey(draftID, clientKey string) string {
	return draftID + ":" + clientKey
}

func nextChargeSeq(d booking.Draft, token string, amount money.Money) int {
	if n := len(d.Attempts); n > 0 && d.ChargeSeq > 0 {
		last := d.Attempts[n-1]
		if last.FailureReason == booking.ReasonGatewayError && last.MethodToken == token && last.Amount == amount {
			return d.ChargeSeq
		}
	}
	return d.ChargeSeq + 1
}

func confirmedInput(s booking.Snapshot, transactionID string) booking.ConfirmedBookingInput {
	d := s.Draft
	var addresses booking.AddressSelection
	if d.Addresses != nil {
		addresses = *d.Addresses
	}
	return booking.ConfirmedBookingInput{
		DraftID:           d.ID,
		Customer:          d.Customer,
		Vehicle:           d.Vehicle,
		Addresses:         addresses,
		ServiceType:       d.ServiceType,
		AdditionalDetails: d.AdditionalDetails,
		PickupAt:          d.PickupAt,
		PaymentMethod:     d.PaymentMethod,
		TruckClass:        s.Quote.TruckClass,
		DistanceKm:        s.Quote.DistanceKm,
		TotalCost:         s.Quote.TotalCost,
		TransactionID:     transactionID,
	}
}

func newNotification(kind booking.NotificationKind, d booking.Draft, q booking.PriceQuote, at time.Time) booking.Notification {
	return booking.Notification{
		Kind:       kind,
		DraftID:    d.ID,
		Amount:     q.TotalCost,
		TruckClass: q.TruckClass,
		Recipient:  d.Customer,
		At:         at,
	}
}

func abandon(d booking.Draft, from booking.StateName, at time.Time) booking.Abandoned {
	d.UpdatedAt = at
	return booking.Abandoned{Draft: d, From: from}
}

func invalidTransition(s booking.State, ev booking.Event) error {
	return fmt.Errorf("%w: %T in state %s", booking.ErrInvalidTransition, ev, s.Name())
}
