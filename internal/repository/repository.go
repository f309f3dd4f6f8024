package repository

import (
	"context"
	"errors"

	"github.com/mr1hm/go-panic-alerts/internal/models"
)

// ErrNotFound is returned by partial updates targeting an id that does not
// exist in the store.
var ErrNotFound = errors.New("record not found")

type Filter struct {
	Limit     int
	States    []models.AlertState
	DeviceEUI string
}

// AlertRepository is the persisted alert collection. UpdateFields applies a
// partial update restricted to the named columns so that concurrent writers
// (reinforcement, dispatch actions, the sweeper) cannot undo each other's
// unrelated fields.
type AlertRepository interface {
	Save(ctx context.Context, a *models.Alert) (string, error)
	GetByID(ctx context.Context, id string) (*models.Alert, error)
	FindOpenByDevice(ctx context.Context, deviceEUI string) (*models.Alert, error)
	CountClosedByDevice(ctx context.Context, deviceEUI string) (int, error)
	List(ctx context.Context, opts Filter) ([]models.Alert, error)
	UpdateFields(ctx context.Context, id string, fields map[string]any) error
}

type UserRepository interface {
	SaveUser(ctx context.Context, u *models.User) error
	GetUserByUID(ctx context.Context, uid string) (*models.User, error)
	FindUserByDeviceID(ctx context.Context, deviceID string) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
}

// PatrolLocationRepository keeps one current location per patrol officer.
type PatrolLocationRepository interface {
	Upsert(ctx context.Context, loc *models.PatrolLocation) error
	List(ctx context.Context) ([]models.PatrolLocation, error)
}
