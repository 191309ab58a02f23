// internal/handlers/booking/booking_handler.go
package booking

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"towbook-service/internal/domain/booking"
	"towbook-service/internal/middleware"
	xerrors "towbook-service/internal/pkg/errors"
	"towbook-service/internal/pkg/response"

	"github.com/gin-gonic/gin"
)

// DraftService is the booking flow the handler drives.
type DraftService interface {
	Quote(size string, distanceKm float64) (*booking.QuoteResponse, error)
	StartDraft(ctx context.Context, edit booking.DraftEdit, identityID string) (*booking.DraftView, error)
	GetDraft(ctx context.Context, id string) (*booking.DraftView, error)
	UpdateDraft(ctx context.Context, id string, edit booking.DraftEdit) (*booking.DraftView, error)
	SelectAddresses(ctx context.Context, id string, addresses booking.AddressSelection) (*booking.DraftView, error)
	ConfirmPayment(ctx context.Context, id, methodToken, idempotencyKey string) (*booking.DraftView, error)
	AbandonDraft(ctx context.Context, id string) (*booking.DraftView, error)
}

type BookingReader interface {
	FindByID(ctx context.Context, id string) (*booking.ConfirmedBooking, error)
}

type BookingHandler struct {
	drafts   DraftService
	bookings BookingReader
}

func NewBookingHandler(drafts DraftService, bookings BookingReader) *BookingHandler {
	return &BookingHandler{
		drafts:   drafts,
		bookings: bookings,
	}
}

// Quote prices a tow for a vehicle size and distance without opening a draft
func (h *BookingHandler) Quote(c *gin.Context) {
	var req booking.QuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	quote, err := h.drafts.Quote(req.VehicleSize, *req.DistanceKm)
	if err != nil {
		respondError(c, err, "failed to price tow")
		return
	}

	response.Success(c, http.StatusOK, "quote calculated", quote)
}

// CreateDraft opens a booking draft
func (h *BookingHandler) CreateDraft(c *gin.Context) {
	var req booking.DraftDetailsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	edit, err := req.ToEdit()
	if err != nil {
		respondError(c, err, "invalid booking details")
		return
	}

	identityID, _ := middleware.GetIdentityID(c)
	view, err := h.drafts.StartDraft(c.Request.Context(), edit, identityID)
	if err != nil {
		respondError(c, err, "failed to start booking")
		return
	}

	response.Success(c, http.StatusCreated, "booking draft created", view)
}

// GetDraft returns the current state of a draft
func (h *BookingHandler) GetDraft(c *gin.Context) {
	view, ok := h.ownedDraft(c)
	if !ok {
		return
	}
	response.Success(c, http.StatusOK, "booking draft retrieved", view)
}

// UpdateDraft edits vehicle, customer, schedule or payment details
func (h *BookingHandler) UpdateDraft(c *gin.Context) {
	var req booking.DraftDetailsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	edit, err := req.ToEdit()
	if err != nil {
		respondError(c, err, "invalid booking details")
		return
	}

	if _, ok := h.ownedDraft(c); !ok {
		return
	}

	view, err := h.drafts.UpdateDraft(c.Request.Context(), c.Param("id"), edit)
	if err != nil {
		respondError(c, err, "failed to update booking")
		return
	}

	response.Success(c, http.StatusOK, "booking draft updated", view)
}

// SelectAddresses sets pickup and drop-off and prices the route
func (h *BookingHandler) SelectAddresses(c *gin.Context) {
	var req booking.AddressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	if _, ok := h.ownedDraft(c); !ok {
		return
	}

	view, err := h.drafts.SelectAddresses(c.Request.Context(), c.Param("id"), req.ToSelection())
	if err != nil {
		respondError(c, err, "failed to select addresses")
		return
	}
	if view.Error != nil {
		respondFailure(c, view.Error, view)
		return
	}

	response.Success(c, http.StatusOK, "route priced", view)
}

// ConfirmPayment charges the quoted amount and books the tow
func (h *BookingHandler) ConfirmPayment(c *gin.Context) {
	var req booking.ConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	key := req.IdempotencyKey
	if key == "" {
		key = strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	}

	if _, ok := h.ownedDraft(c); !ok {
		return
	}

	view, err := h.drafts.ConfirmPayment(c.Request.Context(), c.Param("id"), req.PaymentMethodToken, key)
	if err != nil {
		respondError(c, err, "failed to confirm booking")
		return
	}
	if view.Error != nil && view.State != booking.StateConfirmed {
		respondFailure(c, view.Error, view)
		return
	}

	response.Success(c, http.StatusOK, "booking confirmed", view)
}

// AbandonDraft cancels a draft. With a payment in flight the response waits
// for the charge to settle, and reports a confirmed booking if it succeeded.
func (h *BookingHandler) AbandonDraft(c *gin.Context) {
	if _, ok := h.ownedDraft(c); !ok {
		return
	}

	view, err := h.drafts.AbandonDraft(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, "failed to cancel booking")
		return
	}

	message := "booking draft abandoned"
	if view.State == booking.StateConfirmed {
		message = "payment had already been captured; booking confirmed"
	}
	response.Success(c, http.StatusOK, message, view)
}

// GetBooking retrieves a confirmed booking
func (h *BookingHandler) GetBooking(c *gin.Context) {
	b, err := h.bookings.FindByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, "failed to retrieve booking")
		return
	}
	if !canAccess(c, b.Customer.IdentityID) {
		response.NotFound(c, "booking not found")
		return
	}

	response.Success(c, http.StatusOK, "booking retrieved", b)
}

// ownedDraft loads the draft named in the path and checks the caller may
// see it. On failure the response is already written.
func (h *BookingHandler) ownedDraft(c *gin.Context) (*booking.DraftView, bool) {
	view, err := h.drafts.GetDraft(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, "failed to retrieve booking draft")
		return nil, false
	}
	if !canAccess(c, view.Customer.IdentityID) {
		response.NotFound(c, "booking draft not found")
		return nil, false
	}
	return view, true
}

// canAccess allows admins, the owning identity, and anyone for drafts
// started anonymously.
func canAccess(c *gin.Context, owner string) bool {
	if owner == "" || middleware.IsAdmin(c) {
		return true
	}
	id, ok := middleware.GetIdentityID(c)
	return ok && id == owner
}

func respondFailure(c *gin.Context, be *booking.Error, data interface{}) {
	response.Failure(c, statusForKind(be.Kind), be.Message, string(be.Reason), be.Retryable, data)
}

func respondError(c *gin.Context, err error, fallback string) {
	if be, ok := booking.AsError(err); ok {
		respondFailure(c, be, nil)
		return
	}

	switch {
	case errors.Is(err, booking.ErrDraftNotFound), errors.Is(err, booking.ErrBookingNotFound), errors.Is(err, xerrors.ErrNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, booking.ErrPaymentInFlight):
		response.Failure(c, http.StatusConflict, err.Error(), "PaymentInFlight", true, nil)
	case errors.Is(err, booking.ErrInvalidTransition), errors.Is(err, xerrors.ErrConflict):
		response.Error(c, http.StatusConflict, err.Error(), nil)
	case errors.Is(err, xerrors.ErrInvalidInput):
		response.ValidationError(c, fallback, err)
	case errors.Is(err, xerrors.ErrRateLimited):
		response.TooManyRequests(c, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		response.Error(c, http.StatusGatewayTimeout, "request timed out", nil)
	default:
		_ = c.Error(err)
		response.Error(c, http.StatusInternalServerError, fallback, nil)
	}
}

func statusForKind(kind booking.ErrorKind) int {
	switch kind {
	case booking.KindInvalidInput:
		return http.StatusBadRequest
	case booking.KindExternalServiceFailure:
		return http.StatusBadGateway
	case booking.KindPaymentDeclined:
		return http.StatusPaymentRequired
	default:
		return http.StatusInternalServerError
	}
}
