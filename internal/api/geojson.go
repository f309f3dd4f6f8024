package api

import (
	"github.com/mr1hm/go-panic-alerts/internal/models"
)

type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}
type Feature struct {
	Type       string         `json:"type"`
	Geometry   Geometry       `json:"geometry"`
	Properties map[string]any `json:"properties"`
}
type Geometry struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

func toGeoJSON(alerts []models.Alert) FeatureCollection {
	features := make([]Feature, 0, len(alerts))

	for _, a := range alerts {
		f := Feature{
			Type: "Feature",
			Geometry: Geometry{
				Type:        "Point",
				Coordinates: []float64{a.Longitude, a.Latitude},
			},
			Properties: map[string]any{
				"id":                   a.ID,
				"estado":               string(a.State),
				"nombre":               a.VictimName,
				"bateria":              a.BatteryLevel,
				"nivelUrgencia":        string(a.UrgencyLevel),
				"cantidadActivaciones": a.ActivationCount,
				"device_id":            a.DeviceID,
				"devEUI":               a.DeviceEUI,
				"timestamp":            a.Timestamp,
			},
		}
		features = append(features, f)
	}

	return FeatureCollection{
		Type:     "FeatureCollection",
		Features: features,
	}
}
