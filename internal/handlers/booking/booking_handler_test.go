package booking

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"towbook-service/internal/domain/booking"
	"towbook-service/internal/pkg/money"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type mockDrafts struct{ mock.Mock }

func (m *mockDrafts) Quote(size string, distanceKm float64) (*booking.QuoteResponse, error) {
	args := m.Called(size, distanceKm)
	q, _ := args.Get(0).(*booking.QuoteResponse)
	return q, args.Error(1)
}

func (m *mockDrafts) StartDraft(ctx context.Context, edit booking.DraftEdit, identityID string) (*booking.DraftView, error) {
	args := m.Called(edit, identityID)
	v, _ := args.Get(0).(*booking.DraftView)
	return v, args.Error(1)
}

func (m *mockDrafts) GetDraft(ctx context.Context, id string) (*booking.DraftView, error) {
	args := m.Called(id)
	v, _ := args.Get(0).(*booking.DraftView)
	return v, args.Error(1)
}

func (m *mockDrafts) UpdateDraft(ctx context.Context, id string, edit booking.DraftEdit) (*booking.DraftView, error) {
	args := m.Called(id, edit)
	v, _ := args.Get(0).(*booking.DraftView)
	return v, args.Error(1)
}

func (m *mockDrafts) SelectAddresses(ctx context.Context, id string, addresses booking.AddressSelection) (*booking.DraftView, error) {
	args := m.Called(id, addresses)
	v, _ := args.Get(0).(*booking.DraftView)
	return v, args.Error(1)
}

func (m *mockDrafts) ConfirmPayment(ctx context.Context, id, methodToken, idempotencyKey string) (*booking.DraftView, error) {
	args := m.Called(id, methodToken, idempotencyKey)
	v, _ := args.Get(0).(*booking.DraftView)
	return v, args.Error(1)
}

func (m *mockDrafts) AbandonDraft(ctx context.Context, id string) (*booking.DraftView, error) {
	args := m.Called(id)
	v, _ := args.Get(0).(*booking.DraftView)
	return v, args.Error(1)
}

type mockBookings struct{ mock.Mock }

func (m *mockBookings) FindByID(ctx context.Context, id string) (*booking.ConfirmedBooking, error) {
	args := m.Called(id)
	b, _ := args.Get(0).(*booking.ConfirmedBooking)
	return b, args.Error(1)
}

type envelope struct {
	Success   bool            `json:"success"`
	Message   string          `json:"message"`
	Reason    string          `json:"reason"`
	Retryable *bool           `json:"retryable"`
	Data      json.RawMessage `json:"data"`
}

// newRouter mounts the handler with an optional fake identity in place of
// the auth middleware.
func newRouter(h *BookingHandler, identity string, roles ...string) *gin.Engine {
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if identity != "" {
			c.Set("identity_id", identity)
			c.Set("roles", roles)
		}
		c.Next()
	})
	r.POST("/bookings/quote", h.Quote)
	r.POST("/bookings/drafts", h.CreateDraft)
	r.GET("/bookings/drafts/:id", h.GetDraft)
	r.PATCH("/bookings/drafts/:id", h.UpdateDraft)
	r.PUT("/bookings/drafts/:id/addresses", h.SelectAddresses)
	r.POST("/bookings/drafts/:id/confirm", h.ConfirmPayment)
	r.DELETE("/bookings/drafts/:id", h.AbandonDraft)
	r.GET("/bookings/:id", h.GetBooking)
	return r
}

func do(t *testing.T, r http.Handler, method, path string, body interface{}, headers ...string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func TestQuote(t *testing.T) {
	drafts := &mockDrafts{}
	r := newRouter(NewBookingHandler(drafts, nil), "")

	drafts.On("Quote", "Medium", 12.5).Return(&booking.QuoteResponse{
		VehicleSize: booking.SizeMedium,
		PriceQuote:  booking.PriceQuote{TruckClass: booking.ClassB, TotalCost: money.MustParse("35.00")},
	}, nil).Once()
	drafts.On("Quote", "Huge", 3.0).Return(nil, booking.NewInvalidInput(booking.ReasonInvalidVehicleSize, "unknown vehicle size")).Once()

	w, env := do(t, r, http.MethodPost, "/bookings/quote", map[string]interface{}{"vehicle_size": "Medium", "distance_km": 12.5})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.Success)

	w, env = do(t, r, http.MethodPost, "/bookings/quote", map[string]interface{}{"vehicle_size": "Huge", "distance_km": 3})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, string(booking.ReasonInvalidVehicleSize), env.Reason)
	require.NotNil(t, env.Retryable)
	assert.False(t, *env.Retryable)

	w, _ = do(t, r, http.MethodPost, "/bookings/quote", map[string]interface{}{"vehicle_size": "Medium"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateDraft_AttachesIdentity(t *testing.T) {
	drafts := &mockDrafts{}
	r := newRouter(NewBookingHandler(drafts, nil), "alice")

	drafts.On("StartDraft", mock.MatchedBy(func(e booking.DraftEdit) bool {
		return e.Vehicle != nil && e.Vehicle.Size == booking.SizeLarge && e.Vehicle.LicensePlate == "KDA 123A"
	}), "alice").Return(&booking.DraftView{ID: "d1", State: booking.StateAddressSelection}, nil).Once()

	w, env := do(t, r, http.MethodPost, "/bookings/drafts", map[string]interface{}{
		"vehicle": map[string]string{
			"size": "large", "make": "Isuzu", "model": "D-Max",
			"license_plate": "kda 123a", "wheels_status": "turn",
		},
	})
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Contains(t, string(env.Data), `"id":"d1"`)
	drafts.AssertExpectations(t)
}

func TestDraftOwnership(t *testing.T) {
	drafts := &mockDrafts{}
	owned := &booking.DraftView{ID: "d1", State: booking.StateReview, Customer: booking.Customer{IdentityID: "alice"}}
	drafts.On("GetDraft", "d1").Return(owned, nil)
	drafts.On("GetDraft", "missing").Return(nil, booking.ErrDraftNotFound)

	h := NewBookingHandler(drafts, nil)

	w, _ := do(t, newRouter(h, "alice"), http.MethodGet, "/bookings/drafts/d1", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = do(t, newRouter(h, "bob"), http.MethodGet, "/bookings/drafts/d1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = do(t, newRouter(h, ""), http.MethodGet, "/bookings/drafts/d1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = do(t, newRouter(h, "ops", "admin"), http.MethodGet, "/bookings/drafts/d1", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = do(t, newRouter(h, "alice"), http.MethodGet, "/bookings/drafts/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = do(t, newRouter(h, "bob"), http.MethodDelete, "/bookings/drafts/d1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	drafts.AssertNotCalled(t, "AbandonDraft", "d1")
}

func TestSelectAddresses_RouteFailure(t *testing.T) {
	drafts := &mockDrafts{}
	r := newRouter(NewBookingHandler(drafts, nil), "")

	drafts.On("GetDraft", "d1").Return(&booking.DraftView{ID: "d1"}, nil)
	drafts.On("SelectAddresses", "d1", mock.Anything).Return(&booking.DraftView{
		ID:    "d1",
		State: booking.StateAddressSelection,
		Error: booking.NewDistanceLookupFailed(context.DeadlineExceeded),
	}, nil).Once()

	w, env := do(t, r, http.MethodPut, "/bookings/drafts/d1/addresses", map[string]interface{}{
		"pickup":           map[string]float64{"lat": -1.2921, "lng": 36.8219},
		"drop_off":         map[string]float64{"lat": -1.3, "lng": 36.9},
		"pickup_address":   "Kenyatta Ave",
		"drop_off_address": "Mombasa Rd",
	})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, string(booking.ReasonDistanceLookupFailed), env.Reason)
	require.NotNil(t, env.Retryable)
	assert.True(t, *env.Retryable)
	assert.Contains(t, string(env.Data), `"state":"address_selection"`)
}

func TestConfirmPayment(t *testing.T) {
	tests := []struct {
		name       string
		view       *booking.DraftView
		err        error
		wantCode   int
		wantReason string
	}{
		{
			name:     "confirmed",
			view:     &booking.DraftView{ID: "d1", State: booking.StateConfirmed},
			wantCode: http.StatusOK,
		},
		{
			name:       "declined",
			view:       &booking.DraftView{ID: "d1", State: booking.StateReview, Error: booking.NewPaymentDeclined("insufficient_funds")},
			wantCode:   http.StatusPaymentRequired,
			wantReason: string(booking.ReasonPaymentDeclined),
		},
		{
			name:       "persistence after payment",
			view:       &booking.DraftView{ID: "d1", State: booking.StateFailed, Error: booking.NewPersistenceAfterPaymentFailure(nil)},
			wantCode:   http.StatusInternalServerError,
			wantReason: string(booking.ReasonPersistenceAfterPaymentFailure),
		},
		{
			name:       "payment in flight",
			err:        booking.ErrPaymentInFlight,
			wantCode:   http.StatusConflict,
			wantReason: "PaymentInFlight",
		},
		{
			name:     "terminal",
			err:      booking.ErrTerminalState,
			wantCode: http.StatusConflict,
		},
		{
			name:       "stale quote",
			err:        booking.NewInvalidInput(booking.ReasonStaleQuote, "quote is out of date"),
			wantCode:   http.StatusBadRequest,
			wantReason: string(booking.ReasonStaleQuote),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			drafts := &mockDrafts{}
			r := newRouter(NewBookingHandler(drafts, nil), "")
			drafts.On("GetDraft", "d1").Return(&booking.DraftView{ID: "d1"}, nil)
			drafts.On("ConfirmPayment", "d1", "pm_card_visa", "idem-1").Return(tt.view, tt.err).Once()

			w, env := do(t, r, http.MethodPost, "/bookings/drafts/d1/confirm",
				map[string]string{"payment_method_token": "pm_card_visa"},
				"Idempotency-Key", "idem-1",
			)
			assert.Equal(t, tt.wantCode, w.Code, w.Body.String())
			assert.Equal(t, tt.wantReason, env.Reason)
			drafts.AssertExpectations(t)
		})
	}
}

func TestConfirmPayment_BodyKeyWins(t *testing.T) {
	drafts := &mockDrafts{}
	r := newRouter(NewBookingHandler(drafts, nil), "")
	drafts.On("GetDraft", "d1").Return(&booking.DraftView{ID: "d1"}, nil)
	drafts.On("ConfirmPayment", "d1", "pm_1", "body-key").
		Return(&booking.DraftView{ID: "d1", State: booking.StateConfirmed}, nil).Once()

	w, _ := do(t, r, http.MethodPost, "/bookings/drafts/d1/confirm",
		map[string]string{"payment_method_token": "pm_1", "idempotency_key": "body-key"},
		"Idempotency-Key", "header-key",
	)
	assert.Equal(t, http.StatusOK, w.Code)
	drafts.AssertExpectations(t)
}

func TestAbandonAfterCapture(t *testing.T) {
	drafts := &mockDrafts{}
	r := newRouter(NewBookingHandler(drafts, nil), "")
	drafts.On("GetDraft", "d1").Return(&booking.DraftView{ID: "d1"}, nil)
	drafts.On("AbandonDraft", "d1").Return(&booking.DraftView{ID: "d1", State: booking.StateConfirmed}, nil).Once()

	w, env := do(t, r, http.MethodDelete, "/bookings/drafts/d1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "payment had already been captured; booking confirmed", env.Message)
}

func TestGetBooking(t *testing.T) {
	bookings := &mockBookings{}
	b := &booking.ConfirmedBooking{ID: "b1", Status: booking.StatusConfirmed}
	b.Customer = booking.Customer{IdentityID: "alice"}
	bookings.On("FindByID", "b1").Return(b, nil)
	bookings.On("FindByID", "nope").Return(nil, booking.ErrBookingNotFound)

	h := NewBookingHandler(&mockDrafts{}, bookings)

	w, _ := do(t, newRouter(h, "alice"), http.MethodGet, "/bookings/b1", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = do(t, newRouter(h, "bob"), http.MethodGet, "/bookings/b1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = do(t, newRouter(h, "alice"), http.MethodGet, "/bookings/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
