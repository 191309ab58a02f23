// internal/domain/booking/dto.go
package booking

import (
	"fmt"
	"strings"
	"time"
)

type QuoteRequest struct {
	VehicleSize string   `json:"vehicle_size" binding:"required"`
	DistanceKm  *float64 `json:"distance_km" binding:"required"`
}

type QuoteResponse struct {
	VehicleSize VehicleSize `json:"vehicle_size"`
	PriceQuote
}

type VehicleRequest struct {
	Size         string `json:"size" binding:"required"`
	Make         string `json:"make" binding:"required,max=100"`
	Model        string `json:"model" binding:"required,max=100"`
	Color        string `json:"color" binding:"max=50"`
	LicensePlate string `json:"license_plate" binding:"required,max=20"`
	Issue        string `json:"issue" binding:"max=1000"`
	WheelsStatus string `json:"wheels_status" binding:"required"`
}

func (r VehicleRequest) ToProfile() (VehicleProfile, error) {
	size, err := ParseVehicleSize(r.Size)
	if err != nil {
		return VehicleProfile{}, err
	}
	wheels, err := ParseWheelsStatus(r.WheelsStatus)
	if err != nil {
		return VehicleProfile{}, err
	}
	return VehicleProfile{
		Size:         size,
		Make:         strings.TrimSpace(r.Make),
		Model:        strings.TrimSpace(r.Model),
		Color:        strings.TrimSpace(r.Color),
		LicensePlate: strings.ToUpper(strings.TrimSpace(r.LicensePlate)),
		Issue:        strings.TrimSpace(r.Issue),
		Wheels:       wheels,
	}, nil
}

type CustomerRequest struct {
	Name  string `json:"name" binding:"required,max=255"`
	Phone string `json:"phone" binding:"required,max=30"`
	Email string `json:"email" binding:"omitempty,email"`
}

// DraftDetailsRequest creates or edits a draft. Omitted fields are left alone.
type DraftDetailsRequest struct {
	Vehicle           *VehicleRequest  `json:"vehicle"`
	Customer          *CustomerRequest `json:"customer"`
	ServiceType       *string          `json:"service_type" binding:"omitempty,max=100"`
	AdditionalDetails *string          `json:"additional_details" binding:"omitempty,max=2000"`
	PickupDate        *string          `json:"pickup_date"` // 2006-01-02
	PickupTime        *string          `json:"pickup_time"` // 15:04
	PaymentMethod     *string          `json:"payment_method"`
}

// ToEdit validates the request and converts it into a DraftEdit.
func (r DraftDetailsRequest) ToEdit() (DraftEdit, error) {
	var edit DraftEdit

	if r.Vehicle != nil {
		profile, err := r.Vehicle.ToProfile()
		if err != nil {
			return DraftEdit{}, err
		}
		edit.Vehicle = &profile
	}

	if r.Customer != nil {
		edit.Customer = &Customer{
			Name:  strings.TrimSpace(r.Customer.Name),
			Phone: strings.TrimSpace(r.Customer.Phone),
			Email: strings.TrimSpace(r.Customer.Email),
		}
	}

	edit.ServiceType = r.ServiceType
	edit.AdditionalDetails = r.AdditionalDetails

	if r.PickupDate != nil {
		clock := "00:00"
		if r.PickupTime != nil && *r.PickupTime != "" {
			clock = *r.PickupTime
		}
		at, err := time.ParseInLocation("2006-01-02 15:04", fmt.Sprintf("%s %s", *r.PickupDate, clock), time.UTC)
		if err != nil {
			return DraftEdit{}, NewInvalidInput(ReasonInvalidPickupTime, "pickup date must be YYYY-MM-DD and time HH:MM")
		}
		edit.PickupAt = &at
	}

	if r.PaymentMethod != nil {
		method := strings.ToLower(strings.TrimSpace(*r.PaymentMethod))
		if method != PaymentMethodCard {
			return DraftEdit{}, NewInvalidInput(ReasonUnsupportedPaymentMethod, "only card payments are supported")
		}
		edit.PaymentMethod = &method
	}

	return edit, nil
}

// PaymentMethodCard is the only payment method the booking form offers.
const PaymentMethodCard = "card"

type CoordinateRequest struct {
	Lat *float64 `json:"lat" binding:"required"`
	Lng *float64 `json:"lng" binding:"required"`
}

type AddressRequest struct {
	Pickup         CoordinateRequest `json:"pickup" binding:"required"`
	DropOff        CoordinateRequest `json:"drop_off" binding:"required"`
	PickupAddress  string            `json:"pickup_address" binding:"required,max=500"`
	DropOffAddress string            `json:"drop_off_address" binding:"required,max=500"`
}

func (r AddressRequest) ToSelection() AddressSelection {
	return AddressSelection{
		Pickup:      Coordinate{Lat: *r.Pickup.Lat, Lng: *r.Pickup.Lng},
		DropOff:     Coordinate{Lat: *r.DropOff.Lat, Lng: *r.DropOff.Lng},
		PickupText:  strings.TrimSpace(r.PickupAddress),
		DropOffText: strings.TrimSpace(r.DropOffAddress),
	}
}

type ConfirmRequest struct {
	PaymentMethodToken string `json:"payment_method_token" binding:"required"`
	IdempotencyKey     string `json:"idempotency_key" binding:"omitempty,max=64"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

type BookingListFilters struct {
	Status   []string `form:"status"`
	From     string   `form:"from"`
	To       string   `form:"to"`
	Search   string   `form:"search"`
	Page     int      `form:"page"`
	PageSize int      `form:"page_size"`
}

// DraftView is the client-facing rendering of a draft and its state.
type DraftView struct {
	ID               string            `json:"id"`
	State            StateName         `json:"state"`
	Terminal         bool              `json:"terminal"`
	Addresses        *AddressSelection `json:"addresses,omitempty"`
	Vehicle          VehicleProfile    `json:"vehicle"`
	Customer         Customer          `json:"customer"`
	ServiceType      string            `json:"service_type,omitempty"`
	PickupAt         *time.Time        `json:"pickup_at,omitempty"`
	PaymentMethod    string            `json:"payment_method,omitempty"`
	Route            *Route            `json:"route,omitempty"`
	Quote            *PriceQuote       `json:"quote,omitempty"`
	Attempts         []PaymentAttempt  `json:"payment_attempts,omitempty"`
	Error            *Error            `json:"error,omitempty"`
	AbandonRequested bool              `json:"abandon_requested,omitempty"`
	Booking          *ConfirmedBooking `json:"booking,omitempty"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

func NewDraftView(s State) DraftView {
	d := DraftOf(s)
	v := DraftView{
		ID:            d.ID,
		State:         s.Name(),
		Terminal:      s.Terminal(),
		Addresses:     d.Addresses,
		Vehicle:       d.Vehicle,
		Customer:      d.Customer,
		ServiceType:   d.ServiceType,
		PickupAt:      d.PickupAt,
		PaymentMethod: d.PaymentMethod,
		Route:         d.Route,
		Quote:         d.Quote,
		Attempts:      d.Attempts,
		UpdatedAt:     d.UpdatedAt,
	}

	switch st := s.(type) {
	case AwaitingAddresses:
		v.Error = st.LastError
	case Review:
		q := st.Quote
		v.Quote = &q
		v.Error = st.LastFailure
	case PaymentPending:
		q := st.Snapshot.Quote
		v.Quote = &q
		v.AbandonRequested = st.AbandonRequested
	case Confirmed:
		b := st.Booking
		v.Booking = &b
	case Failed:
		v.Error = st.Failure
		if st.Snapshot != nil {
			q := st.Snapshot.Quote
			v.Quote = &q
		}
	}
	return v
}

type BookingListResponse struct {
	Bookings   []ConfirmedBooking `json:"bookings"`
	Total      int64              `json:"total"`
	Page       int                `json:"page"`
	PageSize   int                `json:"page_size"`
	TotalPages int                `json:"total_pages"`
}
