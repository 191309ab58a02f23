// internal/service/pricing/engine.go
package pricing

import (
	"fmt"
	"math"
	"time"

	"towbook-service/internal/domain/booking"
	"towbook-service/internal/pkg/money"
)

// Rate is the tariff of one tow-truck class.
type Rate struct {
	Base  money.Money
	PerKm money.Money
}

// Table maps every truck class to its rate.
type Table map[booking.TowTruckClass]Rate

// MaxDistanceKm is the longest tow the engine prices.
const MaxDistanceKm = 20000.0

var sizeClasses = map[booking.VehicleSize]booking.TowTruckClass{
	booking.SizeSmall:      booking.ClassA,
	booking.SizeMedium:     booking.ClassB,
	booking.SizeLarge:      booking.ClassC,
	booking.SizeExtraLarge: booking.ClassD,
}

// Engine prices tows from a validated rate table. It holds no mutable state.
type Engine struct {
	rates         Table
	minimumCharge money.Money
}

// NewEngine validates that every class has a non-negative rate and that base
// and per-km rates never decrease from A to D.
func NewEngine(rates Table, minimumCharge money.Money) (*Engine, error) {
	if minimumCharge <= 0 {
		return nil, fmt.Errorf("minimum charge must be positive, got %s", minimumCharge)
	}

	var prev *Rate
	for _, class := range booking.TruckClasses {
		rate, ok := rates[class]
		if !ok {
			return nil, fmt.Errorf("missing rate for truck class %s", class)
		}
		if rate.Base < 0 || rate.PerKm < 0 {
			return nil, fmt.Errorf("rate for truck class %s must not be negative", class)
		}
		if prev != nil && (rate.Base < prev.Base || rate.PerKm < prev.PerKm) {
			return nil, fmt.Errorf("rate for truck class %s is lower than the class below it", class)
		}
		r := rate
		prev = &r
	}

	table := make(Table, len(rates))
	for class, rate := range rates {
		table[class] = rate
	}

	return &Engine{rates: table, minimumCharge: minimumCharge}, nil
}

// ClassifyVehicle maps a vehicle size to the truck class that can tow it.
func (e *Engine) ClassifyVehicle(size booking.VehicleSize) (booking.TowTruckClass, error) {
	class, ok := sizeClasses[size]
	if !ok {
		return "", booking.NewInvalidInput(booking.ReasonInvalidVehicleSize,
			fmt.Sprintf("unsupported vehicle size %q", size))
	}
	return class, nil
}

// ComputeCost returns base + distance × per-km for the class, floored at the
// minimum charge. Distances above MaxDistanceKm are rejected. Distance is rounded to whole metres and the variable part
// to the nearest cent.
func (e *Engine) ComputeCost(distanceKm float64, class booking.TowTruckClass) (money.Money, error) {
	if distanceKm < 0 || math.IsNaN(distanceKm) || math.IsInf(distanceKm, 0) {
		return 0, booking.NewInvalidInput(booking.ReasonInvalidDistance,
			fmt.Sprintf("distance must be a non-negative number of kilometres, got %v", distanceKm))
	}

	rate, ok := e.rates[class]
	if !ok {
		return 0, booking.NewInvalidInput(booking.ReasonInvalidVehicleSize,
			fmt.Sprintf("unknown truck class %q", class))
	}

	if distanceKm > MaxDistanceKm {
		return 0, booking.NewInvalidInput(booking.ReasonInvalidDistance,
			fmt.Sprintf("distance must not exceed %.0f km, got %v", MaxDistanceKm, distanceKm))
	}

	meters := int64(math.Round(distanceKm * 1000))
	perKm := rate.PerKm.Cents()
	if perKm > 0 && meters > (math.MaxInt64-500)/perKm {
		return 0, tooCostly(distanceKm, class)
	}
	variable := (meters*perKm + 500) / 1000
	if variable > math.MaxInt64-rate.Base.Cents() {
		return 0, tooCostly(distanceKm, class)
	}

	total := rate.Base + money.FromCents(variable)
	return money.Max(total, e.minimumCharge), nil
}

func tooCostly(distanceKm float64, class booking.TowTruckClass) error {
	return booking.NewInvalidInput(booking.ReasonInvalidDistance,
		fmt.Sprintf("cost of %v km in class %s exceeds the representable amount", distanceKm, class))
}

// Quote classifies the vehicle and prices the distance in one step.
func (e *Engine) Quote(distanceKm float64, size booking.VehicleSize, at time.Time) (booking.PriceQuote, error) {
	class, err := e.ClassifyVehicle(size)
	if err != nil {
		return booking.PriceQuote{}, err
	}
	total, err := e.ComputeCost(distanceKm, class)
	if err != nil {
		return booking.PriceQuote{}, err
	}
	return booking.PriceQuote{
		DistanceKm: distanceKm,
		TruckClass: class,
		TotalCost:  total,
		ComputedAt: at,
	}, nil
}

// MinimumCharge is the floor applied to every quote.
func (e *Engine) MinimumCharge() money.Money {
	return e.minimumCharge
}
