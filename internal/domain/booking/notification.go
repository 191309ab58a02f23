package booking

import (
	"time"

	"towbook-service/internal/pkg/money"
)

// Channel selects the audience of a notification.
type Channel string

const (
	ChannelAdmin Channel = "admin"
	ChannelUser  Channel = "user"
)

type NotificationKind string

const (
	NotificationBookingConfirmed       NotificationKind = "booking_confirmed"
	NotificationPaymentFailed          NotificationKind = "payment_failed"
	NotificationReconciliationRequired NotificationKind = "reconciliation_required"
)

// Notification is the payload handed to the notification sink.
type Notification struct {
	Kind          NotificationKind `json:"kind"`
	DraftID       string           `json:"draft_id"`
	BookingID     string           `json:"booking_id,omitempty"`
	ServiceNumber string           `json:"service_number,omitempty"`
	Amount        money.Money      `json:"amount"`
	TruckClass    TowTruckClass    `json:"truck_class,omitempty"`
	Reason        Reason           `json:"reason,omitempty"`
	Message       string           `json:"message"`
	Recipient     Customer         `json:"recipient"`
	At            time.Time        `json:"at"`
}
