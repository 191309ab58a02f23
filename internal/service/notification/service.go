// internal/service/notification/service.go
package notification

import (
	"context"
	"errors"
	"fmt"

	"towbook-service/internal/domain/booking"
	wstypes "towbook-service/internal/domain/websocket"
	"towbook-service/internal/service/email"

	"go.uber.org/zap"
)

// Broadcaster pushes realtime events to connected clients.
type Broadcaster interface {
	SendToIdentity(ctx context.Context, identityID string, event wstypes.EventType, data interface{}) error
	BroadcastAdmin(ctx context.Context, event wstypes.EventType, data interface{}) error
}

// EventPublisher appends events to the durable booking stream.
type EventPublisher interface {
	Publish(ctx context.Context, key, eventType string, payload interface{}) error
}

type Mailer interface {
	Send(ctx context.Context, to, subject, bodyHTML string) error
}

// NotificationService fans booking notifications out to websocket clients,
// the event stream and customer email. Every sink is optional.
type NotificationService struct {
	hub      Broadcaster
	events   EventPublisher
	mailer   Mailer
	currency string
	logger   *zap.Logger
}

func NewNotificationService(hub Broadcaster, events EventPublisher, mailer Mailer, currency string, logger *zap.Logger) *NotificationService {
	return &NotificationService{
		hub:      hub,
		events:   events,
		mailer:   mailer,
		currency: currency,
		logger:   logger,
	}
}

// Notify delivers n to the audience named by channel. Sink failures are
// joined; a failing sink does not stop the others.
func (s *NotificationService) Notify(ctx context.Context, channel booking.Channel, n booking.Notification) error {
	event, ok := eventFor(n.Kind)
	if !ok {
		return fmt.Errorf("unknown notification kind %q", n.Kind)
	}

	var errs []error
	switch channel {
	case booking.ChannelAdmin:
		if s.hub != nil {
			if err := s.hub.BroadcastAdmin(ctx, event, n); err != nil {
				errs = append(errs, fmt.Errorf("admin broadcast: %w", err))
			}
		}
		if s.events != nil {
			if err := s.events.Publish(ctx, n.DraftID, string(n.Kind), n); err != nil {
				errs = append(errs, fmt.Errorf("event stream: %w", err))
			}
		}

	case booking.ChannelUser:
		if s.hub != nil && n.Recipient.IdentityID != "" {
			if err := s.hub.SendToIdentity(ctx, n.Recipient.IdentityID, event, n); err != nil {
				errs = append(errs, fmt.Errorf("user push: %w", err))
			}
		}
		if s.mailer != nil && n.Recipient.Email != "" {
			if err := s.sendEmail(ctx, n); err != nil {
				errs = append(errs, fmt.Errorf("email: %w", err))
			}
		}

	default:
		return fmt.Errorf("unknown notification channel %q", channel)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	s.logger.Debug("notification delivered",
		zap.String("channel", string(channel)),
		zap.String("kind", string(n.Kind)),
		zap.String("draft_id", n.DraftID),
	)
	return nil
}

// StatusChanged announces a dispatch status change to the customer and admins.
func (s *NotificationService) StatusChanged(ctx context.Context, b *booking.ConfirmedBooking) error {
	payload := map[string]interface{}{
		"booking_id":     b.ID,
		"service_number": b.ServiceNumber,
		"status":         b.Status,
		"updated_at":     b.UpdatedAt,
	}

	var errs []error
	if s.hub != nil {
		if b.Customer.IdentityID != "" {
			if err := s.hub.SendToIdentity(ctx, b.Customer.IdentityID, wstypes.EventTypeBookingStatusChanged, payload); err != nil {
				errs = append(errs, fmt.Errorf("user push: %w", err))
			}
		}
		if err := s.hub.BroadcastAdmin(ctx, wstypes.EventTypeBookingStatusChanged, payload); err != nil {
			errs = append(errs, fmt.Errorf("admin broadcast: %w", err))
		}
	}
	if s.events != nil {
		if err := s.events.Publish(ctx, b.DraftID, "booking_status_changed", payload); err != nil {
			errs = append(errs, fmt.Errorf("event stream: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (s *NotificationService) sendEmail(ctx context.Context, n booking.Notification) error {
	var subject, body string
	switch n.Kind {
	case booking.NotificationBookingConfirmed:
		subject, body = email.BookingConfirmed(n, s.currency)
	case booking.NotificationPaymentFailed:
		subject, body = email.PaymentFailed(n)
	default:
		return nil
	}
	return s.mailer.Send(ctx, n.Recipient.Email, subject, body)
}

func eventFor(kind booking.NotificationKind) (wstypes.EventType, bool) {
	switch kind {
	case booking.NotificationBookingConfirmed:
		return wstypes.EventTypeBookingConfirmed, true
	case booking.NotificationPaymentFailed:
		return wstypes.EventTypePaymentFailed, true
	case booking.NotificationReconciliationRequired:
		return wstypes.EventTypeReconciliationRequired, true
	}
	return "", false
}
