package utils

import (
	"math"
	"time"
)

// VehicleRate is the tariff for one vehicle class, in KES.
type VehicleRate struct {
	RatePerKm   float64
	MinimumFare float64
	CapacityKg  float64
}

// VehicleRates is keyed by vehicle class.
var VehicleRates = map[string]VehicleRate{
	"motorbike":   {RatePerKm: 35, MinimumFare: 150, CapacityKg: 30},
	"pickup":      {RatePerKm: 60, MinimumFare: 800, CapacityKg: 1000},
	"van":         {RatePerKm: 80, MinimumFare: 1200, CapacityKg: 1500},
	"truck_small": {RatePerKm: 120, MinimumFare: 2500, CapacityKg: 3500},
	"truck_large": {RatePerKm: 180, MinimumFare: 5000, CapacityKg: 10000},
}

const (
	// TrafficMultiplier mirrors the 38/35 KES per km peak tariff.
	TrafficMultiplier = 38.0 / 35.0
	UrgentMultiplier  = 1.3
	// MaxWeightSurcharge applies when the load reaches the vehicle capacity.
	MaxWeightSurcharge = 0.25

	bandLowFactor  = 0.9
	bandHighFactor = 1.2
)

// FareInput describes a shipment for pricing.
type FareInput struct {
	DistanceKm   float64
	VehicleClass string
	WeightKg     float64
	Urgent       bool
	PickupAt     time.Time
	PickupLat    float64
	PickupLng    float64
	DropoffLat   float64
	DropoffLng   float64
}

// FareEstimate is the suggested price range drivers bid within.
type FareEstimate struct {
	Min       float64 `json:"min"`
	Max       float64 `json:"max"`
	Base      float64 `json:"base"`
	Traffic   bool    `json:"traffic"`
	Urgent    bool    `json:"urgent"`
	WeightPct float64 `json:"weightSurchargePct"`
}

// EstimateFare prices a shipment and widens the result into a band. Unknown
// vehicle classes are priced as a pickup.
func EstimateFare(in FareInput) FareEstimate {
	rate, ok := VehicleRates[in.VehicleClass]
	if !ok {
		rate = VehicleRates["pickup"]
	}

	base := in.DistanceKm * rate.RatePerKm
	if base < rate.MinimumFare {
		base = rate.MinimumFare
	}

	weightPct := 0.0
	if rate.CapacityKg > 0 && in.WeightKg > 0 {
		weightPct = math.Min(in.WeightKg/rate.CapacityKg, 1) * MaxWeightSurcharge
	}
	fare := base * (1 + weightPct)

	traffic := IsLikelyTrafficTime(in.PickupAt) &&
		(IsHighTrafficZone(in.PickupLat, in.PickupLng) || IsHighTrafficZone(in.DropoffLat, in.DropoffLng))
	if traffic {
		fare *= TrafficMultiplier
	}
	if in.Urgent {
		fare *= UrgentMultiplier
	}

	return FareEstimate{
		Min:       math.Round(fare * bandLowFactor),
		Max:       math.Round(fare * bandHighFactor),
		Base:      math.Round(base*100) / 100,
		Traffic:   traffic,
		Urgent:    in.Urgent,
		WeightPct: math.Round(weightPct*10000) / 100,
	}
}

var nairobi = func() *time.Location {
	loc, err := time.LoadLocation("Africa/Nairobi")
	if err != nil {
		return time.FixedZone("EAT", 3*60*60)
	}
	return loc
}()

// IsLikelyTrafficTime reports whether t falls in Nairobi peak hours.
func IsLikelyTrafficTime(t time.Time) bool {
	if t.IsZero() {
		return false
	}
	local := t.In(nairobi)
	hour := local.Hour()

	if wd := local.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return hour >= 11 && hour < 19
	}
	return (hour >= 6 && hour < 10) || (hour >= 16 && hour < 20)
}

type trafficZone struct {
	lat, lng, radiusKm float64
}

var highTrafficZones = []trafficZone{
	{-1.2864, 36.8172, 3.0}, // CBD
	{-1.2675, 36.8078, 2.0}, // Westlands
	{-1.2195, 36.8909, 5.0}, // Thika Road
	{-1.3226, 36.8519, 3.0}, // Industrial Area
	{-1.2964, 36.7821, 2.5}, // Ngong Road
	{-1.2845, 36.8562, 4.0}, // Jogoo Road
	{-1.2198, 36.8923, 3.5}, // Outering Road north
	{-1.3019, 36.9141, 3.0}, // Outering Road east
	{-1.3431, 36.8889, 2.5}, // Outering Road south
}

// IsHighTrafficZone checks if coordinates are in a known congested area.
func IsHighTrafficZone(lat, lng float64) bool {
	for _, z := range highTrafficZones {
		if IsWithinRadius(z.lat, z.lng, lat, lng, z.radiusKm) {
			return true
		}
	}
	return false
}
