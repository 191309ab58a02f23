// internal/domain/booking/errors.go
package booking

import (
	"errors"
	"fmt"
)

// ErrorKind is the coarse failure category surfaced to callers.
type ErrorKind string

const (
	KindInvalidInput                   ErrorKind = "invalid_input"
	KindExternalServiceFailure         ErrorKind = "external_service_failure"
	KindPaymentDeclined                ErrorKind = "payment_declined"
	KindPersistenceAfterPaymentFailure ErrorKind = "persistence_after_payment_failure"
)

// Reason is the specific, machine-readable cause of a failure.
type Reason string

const (
	ReasonInvalidVehicleSize             Reason = "InvalidVehicleSize"
	ReasonInvalidWheelsStatus            Reason = "InvalidWheelsStatus"
	ReasonInvalidDistance                Reason = "InvalidDistance"
	ReasonInvalidCoordinate              Reason = "InvalidCoordinate"
	ReasonInvalidPickupTime              Reason = "InvalidPickupTime"
	ReasonMissingPaymentMethod           Reason = "MissingPaymentMethod"
	ReasonMissingIdempotencyKey          Reason = "MissingIdempotencyKey"
	ReasonUnsupportedPaymentMethod       Reason = "UnsupportedPaymentMethod"
	ReasonStaleQuote                     Reason = "StaleQuote"
	ReasonDistanceLookupFailed           Reason = "DistanceLookupFailed"
	ReasonPaymentDeclined                Reason = "PaymentDeclined"
	ReasonGatewayError                   Reason = "GatewayError"
	ReasonPaymentAttemptsExhausted       Reason = "PaymentAttemptsExhausted"
	ReasonPersistenceAfterPaymentFailure Reason = "PersistenceAfterPaymentFailure"
)

var (
	ErrInvalidTransition = errors.New("invalid booking state transition")
	ErrTerminalState     = fmt.Errorf("%w: booking is already finalized", ErrInvalidTransition)
	ErrPaymentInFlight   = fmt.Errorf("%w: a payment is already in progress", ErrInvalidTransition)
	ErrDraftNotFound     = errors.New("booking draft not found")
	ErrBookingNotFound   = errors.New("booking not found")
	// ErrIdempotencyKeyReused means a stored booking already holds the key
	// for another draft.
	ErrIdempotencyKeyReused = errors.New("idempotency key already used by another draft")
)

// Error is the typed failure every booking operation returns.
type Error struct {
	Kind      ErrorKind `json:"kind"`
	Reason    Reason    `json:"reason"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
	Err       error     `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Reason, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewInvalidInput builds a non-retryable caller error.
func NewInvalidInput(reason Reason, message string) *Error {
	return &Error{Kind: KindInvalidInput, Reason: reason, Message: message}
}

func NewDistanceLookupFailed(err error) *Error {
	return &Error{
		Kind:      KindExternalServiceFailure,
		Reason:    ReasonDistanceLookupFailed,
		Message:   "We could not calculate the route between these addresses. Please try again or adjust the locations.",
		Retryable: true,
		Err:       err,
	}
}

func NewPaymentDeclined(gatewayReason string) *Error {
	msg := "Your payment was declined. Please check your card details or use a different card."
	if gatewayReason != "" {
		msg = fmt.Sprintf("Your payment was declined: %s", gatewayReason)
	}
	return &Error{
		Kind:      KindPaymentDeclined,
		Reason:    ReasonPaymentDeclined,
		Message:   msg,
		Retryable: true,
	}
}

func NewGatewayError(err error) *Error {
	return &Error{
		Kind:      KindExternalServiceFailure,
		Reason:    ReasonGatewayError,
		Message:   "The payment service could not complete the charge. Please try again.",
		Retryable: true,
		Err:       err,
	}
}

func NewPaymentAttemptsExhausted(max int) *Error {
	return &Error{
		Kind:    KindPaymentDeclined,
		Reason:  ReasonPaymentAttemptsExhausted,
		Message: fmt.Sprintf("Payment failed %d times. Please start a new booking or contact support.", max),
	}
}

func NewPersistenceAfterPaymentFailure(err error) *Error {
	return &Error{
		Kind:    KindPersistenceAfterPaymentFailure,
		Reason:  ReasonPersistenceAfterPaymentFailure,
		Message: "Your payment was received but we could not record the booking. Our team has been alerted and will contact you.",
		Err:     err,
	}
}

// AsError extracts a *Error from err.
func AsError(err error) (*Error, bool) {
	var be *Error
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}
