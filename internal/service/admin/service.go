// internal/service/admin/service.go
package admin

import (
	"context"
	"fmt"
	"time"

	"towbook-service/internal/domain/booking"
	xerrors "towbook-service/internal/pkg/errors"

	"go.uber.org/zap"
)

// StatusNotifier announces dispatch status changes.
type StatusNotifier interface {
	StatusChanged(ctx context.Context, b *booking.ConfirmedBooking) error
}

// AdminService is the back-office view over recorded bookings and charges
// awaiting reconciliation.
type AdminService struct {
	bookings booking.BookingRepository
	recon    booking.ReconciliationQueue
	notifier StatusNotifier
	logger   *zap.Logger
}

func NewAdminService(bookings booking.BookingRepository, recon booking.ReconciliationQueue, notifier StatusNotifier, logger *zap.Logger) *AdminService {
	return &AdminService{
		bookings: bookings,
		recon:    recon,
		notifier: notifier,
		logger:   logger,
	}
}

// ListBookings retrieves bookings with filters
func (s *AdminService) ListBookings(ctx context.Context, filters *booking.BookingListFilters) (*booking.BookingListResponse, error) {
	if filters.Page < 1 {
		filters.Page = 1
	}
	if filters.PageSize < 1 {
		filters.PageSize = 20
	}
	if filters.PageSize > 100 {
		filters.PageSize = 100
	}

	filter := booking.BookingFilter{
		Search: filters.Search,
		Limit:  filters.PageSize,
		Offset: (filters.Page - 1) * filters.PageSize,
	}
	for _, raw := range filters.Status {
		status, ok := booking.ParseBookingStatus(raw)
		if !ok {
			return nil, fmt.Errorf("%w: unknown status %q", xerrors.ErrInvalidInput, raw)
		}
		filter.Statuses = append(filter.Statuses, status)
	}

	var err error
	if filter.From, err = parseDate(filters.From); err != nil {
		return nil, err
	}
	if filter.To, err = parseDate(filters.To); err != nil {
		return nil, err
	}
	if filter.To != nil {
		// inclusive of the whole end day
		end := filter.To.AddDate(0, 0, 1)
		filter.To = &end
	}

	bookings, total, err := s.bookings.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	if bookings == nil {
		bookings = []booking.ConfirmedBooking{}
	}

	totalPages := int(total) / filters.PageSize
	if int(total)%filters.PageSize > 0 {
		totalPages++
	}

	return &booking.BookingListResponse{
		Bookings:   bookings,
		Total:      total,
		Page:       filters.Page,
		PageSize:   filters.PageSize,
		TotalPages: totalPages,
	}, nil
}

func (s *AdminService) GetBooking(ctx context.Context, id string) (*booking.ConfirmedBooking, error) {
	return s.bookings.FindByID(ctx, id)
}

// UpdateStatus moves a booking through dispatch and tells the customer.
func (s *AdminService) UpdateStatus(ctx context.Context, id string, req *booking.UpdateStatusRequest) (*booking.ConfirmedBooking, error) {
	status, ok := booking.ParseBookingStatus(req.Status)
	if !ok {
		return nil, fmt.Errorf("%w: unknown status %q", xerrors.ErrInvalidInput, req.Status)
	}

	b, err := s.bookings.UpdateStatus(ctx, id, status)
	if err != nil {
		return nil, err
	}

	s.logger.Info("booking status updated",
		zap.String("booking_id", b.ID),
		zap.String("service_number", b.ServiceNumber),
		zap.String("status", string(b.Status)),
	)

	if s.notifier != nil {
		if err := s.notifier.StatusChanged(ctx, b); err != nil {
			s.logger.Warn("status change notification failed", zap.String("booking_id", b.ID), zap.Error(err))
		}
	}
	return b, nil
}

// ListReconciliations returns escalated charges, newest first.
func (s *AdminService) ListReconciliations(ctx context.Context, limit int64) ([]booking.Reconciliation, error) {
	if s.recon == nil {
		return []booking.Reconciliation{}, nil
	}
	if limit < 1 || limit > 500 {
		limit = 50
	}
	items, err := s.recon.List(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list reconciliations: %w", err)
	}
	if items == nil {
		items = []booking.Reconciliation{}
	}
	return items, nil
}

func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation("2006-01-02", s, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("%w: dates must be YYYY-MM-DD", xerrors.ErrInvalidInput)
	}
	return &t, nil
}
