package domain

import (
	"encoding/json"
	"fmt"
	"math"

	dErrors "jornada/pkg/domain-errors"
)

// earthRadiusKm is the mean Earth radius used by the haversine formula.
const earthRadiusKm = 6371.0

// Location is an immutable GPS fix captured when an event starts or ends.
//
// Invariants:
//   - latitude in [-90, 90]
//   - longitude in [-180, 180]
//   - accuracy (meters) is not negative
type Location struct {
	latitude       float64
	longitude      float64
	accuracyMeters int
}

// NewLocation validates coordinates and accuracy.
func NewLocation(latitude, longitude float64, accuracyMeters int) (Location, error) {
	if math.IsNaN(latitude) || latitude < -90 || latitude > 90 {
		return Location{}, dErrors.Newf(dErrors.CodeValidation, "invalid latitude: %v, must be between -90 and 90", latitude)
	}
	if math.IsNaN(longitude) || longitude < -180 || longitude > 180 {
		return Location{}, dErrors.Newf(dErrors.CodeValidation, "invalid longitude: %v, must be between -180 and 180", longitude)
	}
	if accuracyMeters < 0 {
		return Location{}, dErrors.Newf(dErrors.CodeValidation, "accuracy cannot be negative: %d", accuracyMeters)
	}
	return Location{latitude: latitude, longitude: longitude, accuracyMeters: accuracyMeters}, nil
}

// MustLocation panics on invalid input. Use only for constants and tests.
func MustLocation(latitude, longitude float64, accuracyMeters int) Location {
	loc, err := NewLocation(latitude, longitude, accuracyMeters)
	if err != nil {
		panic(err)
	}
	return loc
}

func (l Location) Latitude() float64   { return l.latitude }
func (l Location) Longitude() float64  { return l.longitude }
func (l Location) AccuracyMeters() int { return l.accuracyMeters }

// DistanceToKm returns the great-circle distance to other in kilometres.
func (l Location) DistanceToKm(other Location) float64 {
	lat1 := toRadians(l.latitude)
	lat2 := toRadians(other.latitude)
	dLat := toRadians(other.latitude - l.latitude)
	dLon := toRadians(other.longitude - l.longitude)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	// rounding can push a past 1 for near-antipodal points
	a = math.Min(1, math.Max(0, a))
	return earthRadiusKm * 2 * math.Asin(math.Sqrt(a))
}

func (l Location) Equal(other Location) bool {
	return l == other
}

func (l Location) String() string {
	return fmt.Sprintf("(%.6f, %.6f) ±%dm", l.latitude, l.longitude, l.accuracyMeters)
}

type locationJSON struct {
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	AccuracyMeters int     `json:"accuracy_meters"`
}

func (l Location) MarshalJSON() ([]byte, error) {
	return json.Marshal(locationJSON{Latitude: l.latitude, Longitude: l.longitude, AccuracyMeters: l.accuracyMeters})
}

// UnmarshalJSON runs the constructor so decoded payloads cannot bypass validation.
func (l *Location) UnmarshalJSON(b []byte) error {
	var raw locationJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid location payload")
	}
	loc, err := NewLocation(raw.Latitude, raw.Longitude, raw.AccuracyMeters)
	if err != nil {
		return err
	}
	*l = loc
	return nil
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
