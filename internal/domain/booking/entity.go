// internal/domain/booking/entity.go
package booking

import (
	"strings"
	"time"

	"towbook-service/internal/pkg/money"
)

// Coordinate is a WGS84 latitude/longitude pair.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Validate checks the coordinate falls inside ±90 latitude and ±180 longitude.
func (c Coordinate) Validate() error {
	if c.Lat < -90 || c.Lat > 90 {
		return NewInvalidInput(ReasonInvalidCoordinate, "latitude must be between -90 and 90")
	}
	if c.Lng < -180 || c.Lng > 180 {
		return NewInvalidInput(ReasonInvalidCoordinate, "longitude must be between -180 and 180")
	}
	return nil
}

// AddressSelection is the pickup/drop-off pair. It is fixed once pricing starts.
type AddressSelection struct {
	Pickup      Coordinate `json:"pickup"`
	DropOff     Coordinate `json:"drop_off"`
	PickupText  string     `json:"pickup_address"`
	DropOffText string     `json:"drop_off_address"`
}

func (a AddressSelection) Validate() error {
	if err := a.Pickup.Validate(); err != nil {
		return err
	}
	return a.DropOff.Validate()
}

type VehicleSize string

const (
	SizeSmall      VehicleSize = "Small"
	SizeMedium     VehicleSize = "Medium"
	SizeLarge      VehicleSize = "Large"
	SizeExtraLarge VehicleSize = "ExtraLarge"
)

// ParseVehicleSize accepts the enumerated sizes case-insensitively, including
// the "Extra Large" spelling used by the booking form.
func ParseVehicleSize(s string) (VehicleSize, error) {
	switch strings.ToLower(strings.Join(strings.Fields(s), "")) {
	case "small":
		return SizeSmall, nil
	case "medium":
		return SizeMedium, nil
	case "large":
		return SizeLarge, nil
	case "extralarge", "extra-large", "extra_large":
		return SizeExtraLarge, nil
	}
	return "", NewInvalidInput(ReasonInvalidVehicleSize, "vehicle size must be one of Small, Medium, Large, Extra Large")
}

type WheelsStatus string

const (
	WheelsTurn   WheelsStatus = "WheelsTurn"
	WheelsLocked WheelsStatus = "WheelsLocked"
)

func ParseWheelsStatus(s string) (WheelsStatus, error) {
	switch strings.ToLower(strings.Join(strings.Fields(s), "")) {
	case "wheelsturn", "turn":
		return WheelsTurn, nil
	case "wheelslocked", "wheelsdon'tturn", "wheelsdontturn", "locked":
		return WheelsLocked, nil
	}
	return "", NewInvalidInput(ReasonInvalidWheelsStatus, "wheels status must be Wheels Turn or Wheels Don't Turn")
}

type VehicleProfile struct {
	Size         VehicleSize  `json:"size"`
	Make         string       `json:"make"`
	Model        string       `json:"model"`
	Color        string       `json:"color"`
	LicensePlate string       `json:"license_plate"`
	Issue        string       `json:"issue"`
	Wheels       WheelsStatus `json:"wheels_status"`
}

// TowTruckClass is ordered A < B < C < D by capability.
type TowTruckClass string

const (
	ClassA TowTruckClass = "A"
	ClassB TowTruckClass = "B"
	ClassC TowTruckClass = "C"
	ClassD TowTruckClass = "D"
)

// TruckClasses lists every class in ascending order.
var TruckClasses = []TowTruckClass{ClassA, ClassB, ClassC, ClassD}

// Rank returns the position of the class in the ordering, or -1 if unknown.
func (c TowTruckClass) Rank() int {
	for i, tc := range TruckClasses {
		if tc == c {
			return i
		}
	}
	return -1
}

// PriceQuote is never mutated; a change of inputs produces a new quote.
type PriceQuote struct {
	DistanceKm float64       `json:"distance_km"`
	TruckClass TowTruckClass `json:"truck_class"`
	TotalCost  money.Money   `json:"total_cost"`
	ComputedAt time.Time     `json:"computed_at"`
}

// ValidFor reports whether the quote was computed from these inputs.
func (q PriceQuote) ValidFor(distanceKm float64, class TowTruckClass) bool {
	return q.DistanceKm == distanceKm && q.TruckClass == class
}

type Route struct {
	DistanceKm float64      `json:"distance_km"`
	Path       []Coordinate `json:"path,omitempty"`
}

type Customer struct {
	IdentityID string `json:"identity_id,omitempty"`
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	Email      string `json:"email,omitempty"`
}

type PaymentOutcome string

const (
	OutcomeSuccess PaymentOutcome = "success"
	OutcomeFailure PaymentOutcome = "failure"
)

type PaymentAttempt struct {
	Number         int            `json:"number"`
	MethodToken    string         `json:"-"`
	Amount         money.Money    `json:"amount"`
	IdempotencyKey string         `json:"idempotency_key"`
	Outcome        PaymentOutcome `json:"outcome,omitempty"`
	FailureReason  Reason         `json:"failure_reason,omitempty"`
	TransactionID  string         `json:"transaction_id,omitempty"`
	AttemptedAt    time.Time      `json:"attempted_at"`
	SettledAt      *time.Time     `json:"settled_at,omitempty"`
}

// ChargeResult is what the payment gateway reports for a settled charge.
type ChargeResult struct {
	Success       bool   `json:"success"`
	TransactionID string `json:"transaction_id,omitempty"`
	ErrorReason   string `json:"error_reason,omitempty"`
}

// Draft is the in-progress booking owned by one session.
type Draft struct {
	ID                string            `json:"id"`
	Addresses         *AddressSelection `json:"addresses,omitempty"`
	Vehicle           VehicleProfile    `json:"vehicle"`
	Customer          Customer          `json:"customer"`
	ServiceType       string            `json:"service_type,omitempty"`
	AdditionalDetails string            `json:"additional_details,omitempty"`
	PickupAt          *time.Time        `json:"pickup_at,omitempty"`
	PaymentMethod     string            `json:"payment_method"`
	Route             *Route            `json:"route,omitempty"`
	Quote             *PriceQuote       `json:"quote,omitempty"`

	// IdempotencyKey is minted on the first confirmation and kept for the
	// lifetime of the draft.
	IdempotencyKey string `json:"idempotency_key,omitempty"`

	// ChargeSeq numbers gateway keys. A retry after a gateway error with the
	// same card and amount keeps the previous number.
	ChargeSeq int              `json:"-"`
	Attempts  []PaymentAttempt `json:"attempts,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// WithAttempt returns a copy of the draft with the attempt appended.
func (d Draft) WithAttempt(a PaymentAttempt) Draft {
	attempts := make([]PaymentAttempt, len(d.Attempts), len(d.Attempts)+1)
	copy(attempts, d.Attempts)
	d.Attempts = append(attempts, a)
	return d
}

// SuccessfulAttempt returns the settled successful attempt, if any.
func (d Draft) SuccessfulAttempt() (PaymentAttempt, bool) {
	for _, a := range d.Attempts {
		if a.Outcome == OutcomeSuccess {
			return a, true
		}
	}
	return PaymentAttempt{}, false
}

// DraftEdit carries the optional detail fields a user may change on a draft.
type DraftEdit struct {
	Vehicle           *VehicleProfile
	Customer          *Customer
	ServiceType       *string
	AdditionalDetails *string
	PickupAt          *time.Time
	PaymentMethod     *string
}

// Apply returns a copy of d with the edit applied.
func (e DraftEdit) Apply(d Draft) Draft {
	if e.Vehicle != nil {
		d.Vehicle = *e.Vehicle
	}
	if e.Customer != nil {
		identity := d.Customer.IdentityID
		d.Customer = *e.Customer
		if d.Customer.IdentityID == "" {
			d.Customer.IdentityID = identity
		}
	}
	if e.ServiceType != nil {
		d.ServiceType = *e.ServiceType
	}
	if e.AdditionalDetails != nil {
		d.AdditionalDetails = *e.AdditionalDetails
	}
	if e.PickupAt != nil {
		at := *e.PickupAt
		d.PickupAt = &at
	}
	if e.PaymentMethod != nil {
		d.PaymentMethod = *e.PaymentMethod
	}
	return d
}

// Snapshot freezes the draft and quote at the moment payment was requested.
type Snapshot struct {
	Draft Draft      `json:"draft"`
	Quote PriceQuote `json:"quote"`
}

type BookingStatus string

const (
	StatusConfirmed  BookingStatus = "confirmed"
	StatusDispatched BookingStatus = "dispatched"
	StatusCompleted  BookingStatus = "completed"
	StatusCancelled  BookingStatus = "cancelled"
)

// CanMoveTo reports whether the dispatch lifecycle allows the status change.
func (s BookingStatus) CanMoveTo(next BookingStatus) bool {
	switch s {
	case StatusConfirmed:
		return next == StatusDispatched || next == StatusCancelled
	case StatusDispatched:
		return next == StatusCompleted || next == StatusCancelled
	}
	return false
}

func ParseBookingStatus(s string) (BookingStatus, bool) {
	switch BookingStatus(strings.ToLower(strings.TrimSpace(s))) {
	case StatusConfirmed:
		return StatusConfirmed, true
	case StatusDispatched:
		return StatusDispatched, true
	case StatusCompleted:
		return StatusCompleted, true
	case StatusCancelled:
		return StatusCancelled, true
	}
	return "", false
}

// ConfirmedBookingInput is the record handed to the booking store.
type ConfirmedBookingInput struct {
	DraftID           string           `json:"draft_id"`
	Customer          Customer         `json:"customer"`
	Vehicle           VehicleProfile   `json:"vehicle"`
	Addresses         AddressSelection `json:"addresses"`
	ServiceType       string           `json:"service_type,omitempty"`
	AdditionalDetails string           `json:"additional_details,omitempty"`
	PickupAt          *time.Time       `json:"pickup_at,omitempty"`
	PaymentMethod     string           `json:"payment_method"`
	TruckClass        TowTruckClass    `json:"truck_class"`
	DistanceKm        float64          `json:"distance_km"`
	TotalCost         money.Money      `json:"total_cost"`
	TransactionID     string           `json:"transaction_id"`
}

// BookingReceipt is the store's acknowledgement of a write.
type BookingReceipt struct {
	ID            string `json:"id"`
	ServiceNumber string `json:"service_number"`
}

// ConfirmedBooking is the immutable artifact of a completed workflow. Only
// its dispatch Status changes afterwards.
type ConfirmedBooking struct {
	ID            string        `json:"id"`
	ServiceNumber string        `json:"service_number"`
	Status        BookingStatus `json:"status"`
	ConfirmedBookingInput
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Reconciliation describes a charge that has no booking record.
type Reconciliation struct {
	DraftID        string                `json:"draft_id"`
	IdempotencyKey string                `json:"idempotency_key"`
	TransactionID  string                `json:"transaction_id"`
	Amount         money.Money           `json:"amount"`
	Customer       Customer              `json:"customer"`
	Attempts       int                   `json:"persistence_attempts"`
	LastError      string                `json:"last_error"`
	Input          ConfirmedBookingInput `json:"booking"`
	RaisedAt       time.Time             `json:"raised_at"`
}
