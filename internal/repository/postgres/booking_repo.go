// internal/repository/postgres/booking_repo.go
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"towbook-service/internal/domain/booking"
	xerrors "towbook-service/internal/pkg/errors"
	"towbook-service/internal/pkg/money"

	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"
	"github.com/oklog/ulid/v2"
)

const bookingColumns = `
	id, service_number, status, draft_id,
	customer_identity_id, customer_name, customer_phone, customer_email,
	vehicle, pickup_lat, pickup_lng, pickup_address,
	drop_off_lat, drop_off_lng, drop_off_address,
	service_type, additional_details, pickup_at, payment_method,
	truck_class, distance_km, total_cost_cents, transaction_id,
	created_at, updated_at`

type BookingRepository struct {
	db *DB
}

func NewBookingRepository(db *DB) *BookingRepository {
	return &BookingRepository{db: db}
}

// CreateBooking inserts the confirmed booking. A second call with the same
// idempotency key returns the row written by the first.
func (r *BookingRepository) CreateBooking(ctx context.Context, in booking.ConfirmedBookingInput, idempotencyKey string) (booking.BookingReceipt, error) {
	if idempotencyKey == "" {
		return booking.BookingReceipt{}, fmt.Errorf("%w: idempotency key is required", xerrors.ErrInvalidInput)
	}

	vehicleJSON, err := json.Marshal(in.Vehicle)
	if err != nil {
		return booking.BookingReceipt{}, fmt.Errorf("failed to marshal vehicle: %w", err)
	}

	query := `
		INSERT INTO bookings (
			id, idempotency_key, draft_id, status,
			customer_identity_id, customer_name, customer_phone, customer_email,
			vehicle, pickup_lat, pickup_lng, pickup_address,
			drop_off_lat, drop_off_lng, drop_off_address,
			service_type, additional_details, pickup_at, payment_method,
			truck_class, distance_km, total_cost_cents, transaction_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
		        $16, $17, $18, $19, $20, $21, $22, $23)
		ON CONFLICT (idempotency_key) DO UPDATE SET idempotency_key = EXCLUDED.idempotency_key
		RETURNING id, service_number, draft_id
	`

	row := r.db.Pool().QueryRow(
		ctx, query,
		ulid.Make().String(), idempotencyKey, in.DraftID, string(booking.StatusConfirmed),
		in.Customer.IdentityID, in.Customer.Name, in.Customer.Phone, in.Customer.Email,
		vehicleJSON, in.Addresses.Pickup.Lat, in.Addresses.Pickup.Lng, in.Addresses.PickupText,
		in.Addresses.DropOff.Lat, in.Addresses.DropOff.Lng, in.Addresses.DropOffText,
		in.ServiceType, in.AdditionalDetails, in.PickupAt, in.PaymentMethod,
		string(in.TruckClass), in.DistanceKm, in.TotalCost.Cents(), in.TransactionID,
	)
	return scanReceipt(row, in.DraftID, idempotencyKey)
}

// scanReceipt reads the inserted (or replayed) row. A replayed row written
// for a different draft is a key collision, never a success.
func scanReceipt(row pgx.Row, draftID, idempotencyKey string) (booking.BookingReceipt, error) {
	var (
		receipt booking.BookingReceipt
		owner   string
	)
	if err := row.Scan(&receipt.ID, &receipt.ServiceNumber, &owner); err != nil {
		return booking.BookingReceipt{}, xerrors.Wrap(err, "failed to create booking")
	}
	if owner != draftID {
		return booking.BookingReceipt{}, fmt.Errorf("%w: key %s is held by draft %s, not %s",
			booking.ErrIdempotencyKeyReused, idempotencyKey, owner, draftID)
	}
	return receipt, nil
}

// FindByID retrieves a booking by its server id
func (r *BookingRepository) FindByID(ctx context.Context, id string) (*booking.ConfirmedBooking, error) {
	query := fmt.Sprintf(`SELECT %s FROM bookings WHERE id = $1`, bookingColumns)

	b, err := scanBooking(r.db.Pool().QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, booking.ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find booking: %w", err)
	}
	return b, nil
}

// List returns bookings matching the filter, newest first, with the total
// count before paging.
func (r *BookingRepository) List(ctx context.Context, filter booking.BookingFilter) ([]booking.ConfirmedBooking, int64, error) {
	conditions := []string{"1=1"}
	args := []interface{}{}
	argPos := 1

	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		conditions = append(conditions, fmt.Sprintf("status = ANY($%d)", argPos))
		args = append(args, pq.Array(statuses))
		argPos++
	}

	if filter.From != nil {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argPos))
		args = append(args, *filter.From)
		argPos++
	}

	if filter.To != nil {
		conditions = append(conditions, fmt.Sprintf("created_at < $%d", argPos))
		args = append(args, *filter.To)
		argPos++
	}

	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf(
			"(service_number ILIKE $%d OR customer_name ILIKE $%d OR customer_phone ILIKE $%d OR transaction_id ILIKE $%d)",
			argPos, argPos, argPos, argPos,
		))
		args = append(args, "%"+filter.Search+"%")
		argPos++
	}

	whereClause := strings.Join(conditions, " AND ")

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM bookings WHERE %s", whereClause)
	var total int64
	if err := r.db.Pool().QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count bookings: %w", err)
	}

	limit := filter.Limit
	if limit < 1 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM bookings
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, bookingColumns, whereClause, argPos, argPos+1)
	args = append(args, limit, offset)

	rows, err := r.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list bookings: %w", err)
	}
	defer rows.Close()

	var bookings []booking.ConfirmedBooking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to read bookings: %w", err)
	}

	return bookings, total, nil
}

// UpdateStatus moves a booking along the dispatch lifecycle. The row is
// locked so concurrent admins cannot skip a step.
func (r *BookingRepository) UpdateStatus(ctx context.Context, id string, status booking.BookingStatus) (*booking.ConfirmedBooking, error) {
	tx, err := r.db.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var current string
	err = tx.QueryRow(ctx, `SELECT status FROM bookings WHERE id = $1 FOR UPDATE`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, booking.ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock booking: %w", err)
	}

	if !booking.BookingStatus(current).CanMoveTo(status) {
		return nil, fmt.Errorf("%w: booking %s cannot move from %s to %s", xerrors.ErrConflict, id, current, status)
	}

	query := fmt.Sprintf(`
		UPDATE bookings SET status = $1, updated_at = $2
		WHERE id = $3
		RETURNING %s
	`, bookingColumns)

	b, err := scanBooking(tx.QueryRow(ctx, query, string(status), time.Now().UTC(), id))
	if err != nil {
		return nil, fmt.Errorf("failed to update booking status: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit status change: %w", err)
	}
	return b, nil
}

func scanBooking(row pgx.Row) (*booking.ConfirmedBooking, error) {
	var (
		b           booking.ConfirmedBooking
		status      string
		truckClass  string
		costCents   int64
		vehicleJSON []byte
	)

	err := row.Scan(
		&b.ID, &b.ServiceNumber, &status, &b.DraftID,
		&b.Customer.IdentityID, &b.Customer.Name, &b.Customer.Phone, &b.Customer.Email,
		&vehicleJSON, &b.Addresses.Pickup.Lat, &b.Addresses.Pickup.Lng, &b.Addresses.PickupText,
		&b.Addresses.DropOff.Lat, &b.Addresses.DropOff.Lng, &b.Addresses.DropOffText,
		&b.ServiceType, &b.AdditionalDetails, &b.PickupAt, &b.PaymentMethod,
		&truckClass, &b.DistanceKm, &costCents, &b.TransactionID,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(vehicleJSON) > 0 {
		if err := json.Unmarshal(vehicleJSON, &b.Vehicle); err != nil {
			return nil, fmt.Errorf("failed to unmarshal vehicle: %w", err)
		}
	}
	b.Status = booking.BookingStatus(status)
	b.TruckClass = booking.TowTruckClass(truckClass)
	b.TotalCost = money.FromCents(costCents)

	return &b, nil
}
