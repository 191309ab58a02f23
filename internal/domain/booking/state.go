// internal/domain/booking/state.go
package booking

type StateName string

const (
	StateAddressSelection StateName = "address_selection"
	StatePricing          StateName = "pricing"
	StateReview           StateName = "review"
	StatePaymentPending   StateName = "payment_pending"
	StateConfirmed        StateName = "confirmed"
	StateFailed           StateName = "failed"
	StateAbandoned        StateName = "abandoned"
)

// State is one variant of the booking lifecycle. The set is closed; only
// the types in this file implement it.
type State interface {
	Name() StateName
	Terminal() bool
	current() Draft
}

// DraftOf returns the draft carried by any state.
func DraftOf(s State) Draft {
	return s.current()
}

// AwaitingAddresses is the address-selection state: it waits for a
// pickup/drop-off pair. LastError holds the previous lookup failure, if any.
type AwaitingAddresses struct {
	Draft     Draft
	LastError *Error
}

// Pricing waits for the distance provider.
type Pricing struct {
	Draft Draft
}

// Review holds a current quote awaiting the user's confirmation.
type Review struct {
	Draft       Draft
	Quote       PriceQuote
	LastFailure *Error
}

// PaymentPending waits for the gateway and then the booking store. Charged
// is set once the gateway reports success.
type PaymentPending struct {
	Draft            Draft
	Snapshot         Snapshot
	Attempt          PaymentAttempt
	Charged          *ChargeResult
	AbandonRequested bool
}

type Confirmed struct {
	Draft   Draft
	Booking ConfirmedBooking
}

type Failed struct {
	Draft    Draft
	Failure  *Error
	Snapshot *Snapshot
}

type Abandoned struct {
	Draft Draft
	From  StateName
}

func (AwaitingAddresses) Name() StateName { return StateAddressSelection }
func (Pricing) Name() StateName           { return StatePricing }
func (Review) Name() StateName            { return StateReview }
func (PaymentPending) Name() StateName    { return StatePaymentPending }
func (Confirmed) Name() StateName         { return StateConfirmed }
func (Failed) Name() StateName            { return StateFailed }
func (Abandoned) Name() StateName         { return StateAbandoned }

func (AwaitingAddresses) Terminal() bool { return false }
func (Pricing) Terminal() bool           { return false }
func (Review) Terminal() bool            { return false }
func (PaymentPending) Terminal() bool    { return false }
func (Confirmed) Terminal() bool         { return true }
func (Failed) Terminal() bool            { return true }
func (Abandoned) Terminal() bool         { return true }

func (s AwaitingAddresses) current() Draft { return s.Draft }
func (s Pricing) current() Draft           { return s.Draft }
func (s Review) current() Draft            { return s.Draft }
func (s PaymentPending) current() Draft    { return s.Draft }
func (s Confirmed) current() Draft         { return s.Draft }
func (s Failed) current() Draft            { return s.Draft }
func (s Abandoned) current() Draft         { return s.Draft }
