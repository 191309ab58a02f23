// internal/handlers/admin/admin_handler.go
package admin

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"towbook-service/internal/domain/booking"
	xerrors "towbook-service/internal/pkg/errors"
	"towbook-service/internal/pkg/response"
	service "towbook-service/internal/service/admin"

	"github.com/gin-gonic/gin"
)

type AdminHandler struct {
	adminService *service.AdminService
}

func NewAdminHandler(adminService *service.AdminService) *AdminHandler {
	return &AdminHandler{
		adminService: adminService,
	}
}

// ListBookings lists confirmed bookings with filters
func (h *AdminHandler) ListBookings(c *gin.Context) {
	var filters booking.BookingListFilters
	if err := c.ShouldBindQuery(&filters); err != nil {
		response.ValidationError(c, "invalid query parameters", err)
		return
	}
	filters.Status = splitCSV(filters.Status)

	result, err := h.adminService.ListBookings(c.Request.Context(), &filters)
	if err != nil {
		handleError(c, err, "failed to list bookings")
		return
	}

	response.Success(c, http.StatusOK, "bookings retrieved", result)
}

// GetBooking retrieves a booking by ID
func (h *AdminHandler) GetBooking(c *gin.Context) {
	result, err := h.adminService.GetBooking(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err, "failed to retrieve booking")
		return
	}

	response.Success(c, http.StatusOK, "booking retrieved", result)
}

// UpdateStatus moves a booking through dispatch
func (h *AdminHandler) UpdateStatus(c *gin.Context) {
	var req booking.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	result, err := h.adminService.UpdateStatus(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		handleError(c, err, "failed to update booking status")
		return
	}

	response.Success(c, http.StatusOK, "booking status updated", result)
}

// ListReconciliations lists captured charges that have no booking record
func (h *AdminHandler) ListReconciliations(c *gin.Context) {
	var limit int64
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			response.ValidationError(c, "invalid limit", err)
			return
		}
		limit = n
	}

	items, err := h.adminService.ListReconciliations(c.Request.Context(), limit)
	if err != nil {
		handleError(c, err, "failed to list reconciliations")
		return
	}

	response.Success(c, http.StatusOK, "reconciliations retrieved", gin.H{
		"items": items,
		"count": len(items),
	})
}

func handleError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, booking.ErrBookingNotFound), errors.Is(err, xerrors.ErrNotFound):
		response.NotFound(c, "booking not found")
	case errors.Is(err, xerrors.ErrInvalidInput):
		response.ValidationError(c, fallback, err)
	case errors.Is(err, xerrors.ErrConflict):
		response.Error(c, http.StatusConflict, fallback, err)
	default:
		_ = c.Error(err)
		response.Error(c, http.StatusInternalServerError, fallback, nil)
	}
}

// splitCSV accepts both ?status=a&status=b and ?status=a,b.
func splitCSV(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
