// internal/domain/booking/event.go
package booking

import (
	"time"

	"towbook-service/internal/pkg/money"
)

// Event is an input to the state machine: a user action or the observed
// result of an external call.
type Event interface {
	isEvent()
}

type SelectAddresses struct {
	Addresses AddressSelection
	At        time.Time
}

type RouteResolved struct {
	Route Route
	At    time.Time
}

type RouteFailed struct {
	Err error
}

type EditDraft struct {
	Edit DraftEdit
	At   time.Time
}

type ConfirmPayment struct {
	MethodToken    string
	IdempotencyKey string
	At             time.Time
}

// PaymentSettled carries the gateway outcome. Err is set when the gateway
// could not be reached or timed out; Result is then ignored.
type PaymentSettled struct {
	Result ChargeResult
	Err    error
	At     time.Time
}

type PersistenceAcknowledged struct {
	Receipt BookingReceipt
	At      time.Time
}

type PersistenceFailed struct {
	Err      error
	Attempts int
	At       time.Time
}

type Abandon struct {
	At time.Time
}

func (SelectAddresses) isEvent()         {}
func (RouteResolved) isEvent()           {}
func (RouteFailed) isEvent()             {}
func (EditDraft) isEvent()               {}
func (ConfirmPayment) isEvent()          {}
func (PaymentSettled) isEvent()          {}
func (PersistenceAcknowledged) isEvent() {}
func (PersistenceFailed) isEvent()       {}
func (Abandon) isEvent()                 {}

// Effect is a side effect requested by a transition. The executor performs
// it and feeds the result back as an Event.
type Effect interface {
	isEffect()
}

type ResolveRoute struct {
	Pickup  Coordinate
	DropOff Coordinate
}

// CancelRoute stops an in-flight distance lookup.
type CancelRoute struct{}

type Charge struct {
	Amount         money.Money
	MethodToken    string
	IdempotencyKey string
}

type Persist struct {
	Input          ConfirmedBookingInput
	IdempotencyKey string
}

type Notify struct {
	Channel      Channel
	Notification Notification
}

// Escalate raises a charge without a booking record for manual reconciliation.
type Escalate struct {
	Reconciliation Reconciliation
	Notification   Notification
}

func (ResolveRoute) isEffect() {}
func (CancelRoute) isEffect()  {}
func (Charge) isEffect()       {}
func (Persist) isEffect()      {}
func (Notify) isEffect()       {}
func (Escalate) isEffect()     {}
