package models

import "time"

type AlertState string

const (
	AlertStateAvailable AlertState = "available"
	AlertStateTaken     AlertState = "taken"
	AlertStateEnRoute   AlertState = "en_route"
	AlertStateResolved  AlertState = "resolved"
	AlertStateExpired   AlertState = "expired"
)

// OpenStates are the states in which an alert can still be reinforced,
// dispatched or expired.
var OpenStates = []AlertState{AlertStateAvailable, AlertStateTaken, AlertStateEnRoute}

func (s AlertState) IsOpen() bool {
	return s == AlertStateAvailable || s == AlertStateTaken || s == AlertStateEnRoute
}

func (s AlertState) IsTerminal() bool {
	return s == AlertStateResolved || s == AlertStateExpired
}

type UrgencyLevel string

const (
	UrgencyLow      UrgencyLevel = "low"
	UrgencyMedium   UrgencyLevel = "medium"
	UrgencyCritical UrgencyLevel = "critical"
)

type Alert struct {
	ID               string // store document id, empty before first save
	DeviceEUI        string
	DeviceID         string
	VictimName       string
	Latitude         float64
	Longitude        float64
	BatteryLevel     float64
	Timestamp        time.Time // device/provider reading time, not server receipt
	State            AlertState
	ActivationCount  int
	LastActivationAt time.Time
	UrgencyLevel     UrgencyLevel
	Recurrent        bool
	AssignedPatrolID string
	TakenAt          *time.Time
	EnRouteAt        *time.Time
	ResolvedAt       *time.Time
	CreatedAt        time.Time
}

type Coordinates struct {
	Latitude  float64
	Longitude float64
}

func (a *Alert) Coordinates() Coordinates {
	return Coordinates{
		Latitude:  a.Latitude,
		Longitude: a.Longitude,
	}
}

// ValidCoordinates reports whether the fix is usable: both components
// non-zero and inside geographic range.
func ValidCoordinates(lat, lon float64) bool {
	if lat == 0 || lon == 0 {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}
