package booking

import (
	"context"
	"time"

	"towbook-service/internal/pkg/money"
)

// DistanceProvider resolves the driving route between two points.
type DistanceProvider interface {
	ResolveRoute(ctx context.Context, pickup, dropOff Coordinate) (Route, error)
}

// PaymentGateway executes a charge. A decline is reported in ChargeResult;
// a returned error means the outcome is unknown.
type PaymentGateway interface {
	Charge(ctx context.Context, amount money.Money, methodToken, idempotencyKey string) (ChargeResult, error)
}

// BookingStore durably records confirmed bookings. Calling CreateBooking
// again with the same key returns the existing receipt.
type BookingStore interface {
	CreateBooking(ctx context.Context, input ConfirmedBookingInput, idempotencyKey string) (BookingReceipt, error)
}

// Notifier is best-effort; callers log and drop its errors.
type Notifier interface {
	Notify(ctx context.Context, channel Channel, n Notification) error
}

// ReconciliationQueue keeps escalated charges until an admin resolves them.
type ReconciliationQueue interface {
	Push(ctx context.Context, r Reconciliation) error
	List(ctx context.Context, limit int64) ([]Reconciliation, error)
}

// BookingFilter narrows admin listings.
type BookingFilter struct {
	Statuses []BookingStatus
	From     *time.Time
	To       *time.Time
	Search   string
	Limit    int
	Offset   int
}

// BookingRepository is the admin read/update surface over stored bookings.
type BookingRepository interface {
	BookingStore
	FindByID(ctx context.Context, id string) (*ConfirmedBooking, error)
	List(ctx context.Context, filter BookingFilter) ([]ConfirmedBooking, int64, error)
	UpdateStatus(ctx context.Context, id string, status BookingStatus) (*ConfirmedBooking, error)
}
