package notify

import (
	"time"

	"github.com/mr1hm/go-panic-alerts/internal/models"
)

type EventType string

const (
	EventAlertCreated    EventType = "alert_created"
	EventAlertReinforced EventType = "alert_reinforced"
	EventAlertTaken      EventType = "alert_taken"
	EventAlertEnRoute    EventType = "alert_en_route"
	EventAlertResolved   EventType = "alert_resolved"
	EventAlertExpired    EventType = "alert_expired"
)

// Event is a lifecycle notification fanned out to operators and patrols.
type Event struct {
	Type  EventType    `json:"tipo"`
	Alert AlertPayload `json:"alerta"`
}

// AlertPayload is the wire shape consumed by the dashboard and the patrol
// app. Field names follow the frontend contract.
type AlertPayload struct {
	ID               string     `json:"id"`
	Estado           string     `json:"estado"`
	Nombre           string     `json:"nombre"`
	Lat              float64    `json:"lat"`
	Lon              float64    `json:"lon"`
	Bateria          float64    `json:"bateria"`
	Timestamp        time.Time  `json:"timestamp"`
	DeviceID         string     `json:"device_id"`
	DevEUI           string     `json:"devEUI"`
	Activaciones     int        `json:"cantidadActivaciones"`
	UltimaActivacion time.Time  `json:"ultimaActivacion"`
	NivelUrgencia    string     `json:"nivelUrgencia"`
	EsRecurrente     bool       `json:"esRecurrente"`
	Patrullero       string     `json:"patrulleroAsignado"`
	FechaTomada      *time.Time `json:"fechaTomada,omitempty"`
	FechaEnCamino    *time.Time `json:"fechaEnCamino,omitempty"`
	FechaResuelto    *time.Time `json:"fechaResuelto,omitempty"`
}

func NewAlertPayload(a *models.Alert) AlertPayload {
	return AlertPayload{
		ID:               a.ID,
		Estado:           string(a.State),
		Nombre:           a.VictimName,
		Lat:              a.Latitude,
		Lon:              a.Longitude,
		Bateria:          a.BatteryLevel,
		Timestamp:        a.Timestamp,
		DeviceID:         a.DeviceID,
		DevEUI:           a.DeviceEUI,
		Activaciones:     a.ActivationCount,
		UltimaActivacion: a.LastActivationAt,
		NivelUrgencia:    string(a.UrgencyLevel),
		EsRecurrente:     a.Recurrent,
		Patrullero:       a.AssignedPatrolID,
		FechaTomada:      a.TakenAt,
		FechaEnCamino:    a.EnRouteAt,
		FechaResuelto:    a.ResolvedAt,
	}
}

func NewEvent(t EventType, a *models.Alert) Event {
	return Event{Type: t, Alert: NewAlertPayload(a)}
}
