package utils

import (
	"math"
	"testing"
	"time"
)

func TestHaversineDistance(t *testing.T) {
	// Nairobi CBD to JKIA is roughly 15km as the crow flies.
	d := HaversineDistance(-1.2864, 36.8172, -1.3192, 36.9278)
	if d < 12 || d > 14 {
		t.Fatalf("distance = %.2f, want about 12.8", d)
	}
	if HaversineDistance(1, 1, 1, 1) != 0 {
		t.Fatal("same point should be zero distance")
	}
}

func TestEstimateFareMinimum(t *testing.T) {
	est := EstimateFare(FareInput{DistanceKm: 2, VehicleClass: "van"})
	if est.Base != 1200 {
		t.Fatalf("base = %v, want van minimum 1200", est.Base)
	}
	if est.Min != 1080 || est.Max != 1440 {
		t.Fatalf("band = %v-%v, want 1080-1440", est.Min, est.Max)
	}
}

func TestEstimateFareSurcharges(t *testing.T) {
	plain := EstimateFare(FareInput{DistanceKm: 50, VehicleClass: "truck_small"})
	urgent := EstimateFare(FareInput{DistanceKm: 50, VehicleClass: "truck_small", Urgent: true})
	heavy := EstimateFare(FareInput{DistanceKm: 50, VehicleClass: "truck_small", WeightKg: 3500})

	if math.Abs(urgent.Max-math.Round(plain.Max*UrgentMultiplier)) > 1 {
		t.Fatalf("urgent max = %v, plain max = %v", urgent.Max, plain.Max)
	}
	if heavy.WeightPct != 25 {
		t.Fatalf("weight surcharge = %v%%, want 25%%", heavy.WeightPct)
	}
	if heavy.Max <= plain.Max {
		t.Fatal("a full load should cost more than an empty one")
	}
}

func TestEstimateFareTraffic(t *testing.T) {
	// Wednesday 08:00 in Nairobi, pickup in the CBD.
	peak := time.Date(2026, 3, 4, 5, 0, 0, 0, time.UTC)
	est := EstimateFare(FareInput{
		DistanceKm: 10, VehicleClass: "pickup", PickupAt: peak,
		PickupLat: -1.2864, PickupLng: 36.8172,
	})
	if !est.Traffic {
		t.Fatal("expected peak-hour CBD pickup to be priced with traffic")
	}

	offPeak := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	if IsLikelyTrafficTime(offPeak) {
		t.Fatal("13:00 on a weekday should be off-peak")
	}
}
