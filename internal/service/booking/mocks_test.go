package booking

import (
	"context"
	"fmt"
	"testing"
	"time"

	"towbook-service/internal/domain/booking"
	"towbook-service/internal/pkg/money"
	"towbook-service/internal/pkg/retry"
	"towbook-service/internal/service/pricing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type MockDistance struct {
	mock.Mock
}

func (m *MockDistance) ResolveRoute(ctx context.Context, pickup, dropOff booking.Coordinate) (booking.Route, error) {
	args := m.Called(ctx, pickup, dropOff)
	return args.Get(0).(booking.Route), args.Error(1)
}

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) Charge(ctx context.Context, amount money.Money, methodToken, idempotencyKey string) (booking.ChargeResult, error) {
	args := m.Called(ctx, amount, methodToken, idempotencyKey)
	return args.Get(0).(booking.ChargeResult), args.Error(1)
}

type MockStore struct {
	mock.Mock
}

func (m *MockStore) CreateBooking(ctx context.Context, input booking.ConfirmedBookingInput, idempotencyKey string) (booking.BookingReceipt, error) {
	args := m.Called(ctx, input, idempotencyKey)
	return args.Get(0).(booking.BookingReceipt), args.Error(1)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, channel booking.Channel, n booking.Notification) error {
	args := m.Called(ctx, channel, n)
	return args.Error(0)
}

// count returns how many notifications of kind were sent on channel.
func (m *MockNotifier) count(channel booking.Channel, kind booking.NotificationKind) int {
	total := 0
	for _, call := range m.Calls {
		if call.Method != "Notify" {
			continue
		}
		if call.Arguments.Get(1).(booking.Channel) == channel &&
			call.Arguments.Get(2).(booking.Notification).Kind == kind {
			total++
		}
	}
	return total
}

type MockReconciliation struct {
	mock.Mock
}

func (m *MockReconciliation) Push(ctx context.Context, r booking.Reconciliation) error {
	args := m.Called(ctx, r)
	return args.Error(0)
}

func (m *MockReconciliation) List(ctx context.Context, limit int64) ([]booking.Reconciliation, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]booking.Reconciliation), args.Error(1)
}

var fixedNow = time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)

// testPricer uses base 10.00 + 2.00/km for class B, matching the worked
// example of a Medium vehicle over 12.5 km costing 35.00.
func testPricer(t *testing.T) *pricing.Engine {
	t.Helper()
	e, err := pricing.NewEngine(pricing.Table{
		booking.ClassA: {Base: money.MustParse("8.00"), PerKm: money.MustParse("1.50")},
		booking.ClassB: {Base: money.MustParse("10.00"), PerKm: money.MustParse("2.00")},
		booking.ClassC: {Base: money.MustParse("15.00"), PerKm: money.MustParse("3.00")},
		booking.ClassD: {Base: money.MustParse("25.00"), PerKm: money.MustParse("4.50")},
	}, money.MustParse("5.00"))
	require.NoError(t, err)
	return e
}

type fixture struct {
	distance *MockDistance
	gateway  *MockGateway
	store    *MockStore
	notifier *MockNotifier
	recon    *MockReconciliation
	sleeps   []time.Duration
	deps     Dependencies
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		distance: new(MockDistance),
		gateway:  new(MockGateway),
		store:    new(MockStore),
		notifier: new(MockNotifier),
		recon:    new(MockReconciliation),
	}

	policy := retry.New(3, time.Second, 2, 0)
	policy.Sleep = func(_ context.Context, d time.Duration) error {
		f.sleeps = append(f.sleeps, d)
		return nil
	}

	f.deps = Dependencies{
		Distance:       f.distance,
		Payments:       f.gateway,
		Store:          f.store,
		Notifier:       f.notifier,
		Reconciliation: f.recon,
		PersistRetry:   policy,
		Timeouts: Timeouts{
			Distance:     200 * time.Millisecond,
			Payment:      time.Second,
			Persistence:  time.Second,
			Notification: time.Second,
		},
		Now: func() time.Time { return fixedNow },
	}
	f.notifier.On("Notify", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	return f
}

func (f *fixture) service(t *testing.T) *BookingService {
	t.Helper()
	svc := NewBookingService(testPricer(t), f.deps, 5, 30*time.Minute, zap.NewNop())
	seq := 0
	svc.newID = func() string {
		seq++
		return fmt.Sprintf("draft-%d", seq)
	}
	return svc
}

func mediumVehicle() booking.VehicleProfile {
	return booking.VehicleProfile{
		Size:         booking.SizeMedium,
		Make:         "Toyota",
		Model:        "Camry",
		Color:        "Blue",
		LicensePlate: "ABC123",
		Issue:        "Engine will not start",
		Wheels:       booking.WheelsTurn,
	}
}

func testAddresses() booking.AddressSelection {
	return booking.AddressSelection{
		Pickup:      booking.Coordinate{Lat: 40.7128, Lng: -74.0060},
		DropOff:     booking.Coordinate{Lat: 40.7306, Lng: -73.9352},
		PickupText:  "1 Centre St, New York",
		DropOffText: "Greenpoint Ave, Brooklyn",
	}
}

func testRoute() booking.Route {
	return booking.Route{
		DistanceKm: 12.5,
		Path: []booking.Coordinate{
			{Lat: 40.7128, Lng: -74.0060},
			{Lat: 40.7306, Lng: -73.9352},
		},
	}
}
