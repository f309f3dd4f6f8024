// Package lifecycle is the single authority over alert creation,
// reinforcement and state transitions.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mr1hm/go-panic-alerts/internal/config"
	"github.com/mr1hm/go-panic-alerts/internal/decoder"
	"github.com/mr1hm/go-panic-alerts/internal/models"
	"github.com/mr1hm/go-panic-alerts/internal/repository"
)

var ErrAlertNotFound = errors.New("alert not found")

// ValidationError marks a reading rejected before any record was created or
// mutated.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid reading: " + e.Reason
}

const unassignedVictim = "Sin asignar"

type Engine struct {
	alerts  repository.AlertRepository
	users   repository.UserRepository
	urgency config.UrgencyConfig

	now func() time.Time

	// deviceLocks serializes ingestion per device so that two near-simultaneous
	// readings cannot both observe "no open alert" and create duplicates.
	deviceLocks sync.Map // deviceEUI -> *sync.Mutex
}

func NewEngine(alerts repository.AlertRepository, users repository.UserRepository, urgency config.UrgencyConfig) *Engine {
	return &Engine{
		alerts:  alerts,
		users:   users,
		urgency: urgency,
		now:     time.Now,
	}
}

func (e *Engine) lockDevice(deviceEUI string) *sync.Mutex {
	mu, _ := e.deviceLocks.LoadOrStore(deviceEUI, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// IngestReading creates a new alert for the reading's device, or reinforces
// the device's open alert if one exists. created reports which path was
// taken.
func (e *Engine) IngestReading(ctx context.Context, r *decoder.Reading) (alert *models.Alert, created bool, err error) {
	if err := validateReading(r); err != nil {
		return nil, false, err
	}

	mu := e.lockDevice(r.DeviceEUI)
	mu.Lock()
	defer mu.Unlock()

	open, err := e.alerts.FindOpenByDevice(ctx, r.DeviceEUI)
	if err != nil {
		return nil, false, fmt.Errorf("error looking up open alert: %w", err)
	}

	if open != nil {
		a, err := e.reinforce(ctx, open, r)
		return a, false, err
	}

	a, err := e.create(ctx, r)
	return a, true, err
}

func (e *Engine) reinforce(ctx context.Context, open *models.Alert, r *decoder.Reading) (*models.Alert, error) {
	count := open.ActivationCount + 1

	// lastActivationAt never moves backwards, even if the provider delivers
	// readings out of order.
	lastActivation := r.Timestamp
	if open.LastActivationAt.After(lastActivation) {
		lastActivation = open.LastActivationAt
	}

	urgency := e.urgencyFor(count)

	err := e.alerts.UpdateFields(ctx, open.ID, map[string]any{
		"latitude":           r.Latitude,
		"longitude":          r.Longitude,
		"battery_level":      r.BatteryLevel,
		"timestamp":          r.Timestamp,
		"activation_count":   count,
		"last_activation_at": lastActivation,
		"urgency_level":      string(urgency),
	})
	if err != nil {
		return nil, fmt.Errorf("error reinforcing alert %s: %w", open.ID, err)
	}

	updated := *open
	updated.Latitude = r.Latitude
	updated.Longitude = r.Longitude
	updated.BatteryLevel = r.BatteryLevel
	updated.Timestamp = r.Timestamp
	updated.ActivationCount = count
	updated.LastActivationAt = lastActivation
	updated.UrgencyLevel = urgency

	slog.Info("alert reinforced", "id", open.ID, "device_eui", r.DeviceEUI,
		"activations", count, "urgency", urgency)
	return &updated, nil
}

func (e *Engine) create(ctx context.Context, r *decoder.Reading) (*models.Alert, error) {
	a := &models.Alert{
		DeviceEUI:        r.DeviceEUI,
		DeviceID:         r.DeviceID,
		VictimName:       e.resolveVictim(ctx, r.DeviceID),
		Latitude:         r.Latitude,
		Longitude:        r.Longitude,
		BatteryLevel:     r.BatteryLevel,
		Timestamp:        r.Timestamp,
		State:            models.AlertStateAvailable,
		ActivationCount:  1,
		LastActivationAt: r.Timestamp,
		UrgencyLevel:     e.urgencyFor(1),
		CreatedAt:        e.now().UTC(),
	}

	// A device with prior resolved/expired alerts gets flagged recurrent and
	// starts at critical urgency.
	closed, err := e.alerts.CountClosedByDevice(ctx, r.DeviceEUI)
	if err != nil {
		slog.Error("error checking alert history", "device_eui", r.DeviceEUI, "error", err)
	} else if closed > 0 {
		a.Recurrent = true
		a.UrgencyLevel = models.UrgencyCritical
	}

	id, err := e.alerts.Save(ctx, a)
	if err != nil {
		return nil, fmt.Errorf("error saving alert: %w", err)
	}
	a.ID = id

	slog.Info("alert created", "id", id, "device_eui", r.DeviceEUI,
		"victim", a.VictimName, "urgency", a.UrgencyLevel, "recurrent", a.Recurrent)
	return a, nil
}

// Transition applies a dispatcher action. On a state-machine violation the
// record is left unchanged and a *TransitionError is returned.
func (e *Engine) Transition(ctx context.Context, alertID string, action Action, actorID string) (*models.Alert, error) {
	if action == ActionTake && actorID == "" {
		return nil, &ValidationError{Reason: "a patrol assignee is required to take an alert"}
	}

	a, err := e.alerts.GetByID(ctx, alertID)
	if err != nil {
		return nil, fmt.Errorf("error loading alert %s: %w", alertID, err)
	}
	if a == nil {
		return nil, fmt.Errorf("alert %s: %w", alertID, ErrAlertNotFound)
	}

	mu := e.lockDevice(a.DeviceEUI)
	mu.Lock()
	defer mu.Unlock()

	// Re-read under the lock: a concurrent transition may have landed.
	a, err = e.alerts.GetByID(ctx, alertID)
	if err != nil {
		return nil, fmt.Errorf("error loading alert %s: %w", alertID, err)
	}
	if a == nil {
		return nil, fmt.Errorf("alert %s: %w", alertID, ErrAlertNotFound)
	}

	next, err := nextState(a.State, action)
	if err != nil {
		return nil, err
	}

	now := e.now().UTC()
	fields := map[string]any{"state": string(next)}

	updated := *a
	updated.State = next

	switch action {
	case ActionTake:
		fields["assigned_patrol_id"] = actorID
		fields["taken_at"] = now
		updated.AssignedPatrolID = actorID
		updated.TakenAt = &now
	case ActionEnRoute:
		fields["en_route_at"] = now
		updated.EnRouteAt = &now
	case ActionResolve:
		fields["resolved_at"] = now
		updated.ResolvedAt = &now
	}

	if err := e.alerts.UpdateFields(ctx, alertID, fields); err != nil {
		return nil, fmt.Errorf("error applying transition on alert %s: %w", alertID, err)
	}

	slog.Info("alert transitioned", "id", alertID, "from", a.State, "to", next, "actor", actorID)
	return &updated, nil
}

func (e *Engine) urgencyFor(activations int) models.UrgencyLevel {
	switch {
	case activations >= e.urgency.CriticalActivations:
		return models.UrgencyCritical
	case activations >= e.urgency.MediumActivations:
		return models.UrgencyMedium
	default:
		return models.UrgencyLow
	}
}

func (e *Engine) resolveVictim(ctx context.Context, deviceID string) string {
	if deviceID == "" {
		return unassignedVictim
	}
	u, err := e.users.FindUserByDeviceID(ctx, deviceID)
	if err != nil {
		slog.Error("error resolving victim", "device_id", deviceID, "error", err)
		return unassignedVictim
	}
	if u == nil || u.Name == "" {
		return unassignedVictim
	}
	return u.Name
}

func validateReading(r *decoder.Reading) error {
	switch {
	case r.DeviceEUI == "":
		return &ValidationError{Reason: "empty device EUI"}
	case !models.ValidCoordinates(r.Latitude, r.Longitude):
		return &ValidationError{Reason: "missing or out-of-range coordinates"}
	case r.BatteryLevel <= 0 || r.BatteryLevel > 100:
		return &ValidationError{Reason: "battery level out of range"}
	}
	return nil
}
