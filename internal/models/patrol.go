package models

import "time"

// PatrolLocation is the current position of a patrol officer. One record per
// officer; each update replaces the previous one.
type PatrolLocation struct {
	PatrolID  string
	Latitude  float64
	Longitude float64
	UpdatedAt time.Time
}

// ActiveWindow is how long a location stays "active" before the patrol is
// reported as inactive on the dashboard.
const ActiveWindow = 10 * time.Minute

func (p *PatrolLocation) Active(now time.Time) bool {
	return now.Sub(p.UpdatedAt) <= ActiveWindow
}
