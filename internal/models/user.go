package models

import "time"

type Role string

const (
	RoleOperator Role = "operator"
	RolePatrol   Role = "patrol"
	RoleVictim   Role = "victim"
)

// User is the projection of an externally-managed identity. The lifecycle
// engine reads it only to resolve the victim bound to a device.
type User struct {
	UID       string
	Email     string
	Name      string
	Role      Role
	DNI       string
	DeviceID  string // panic-button device linked to this user, if any
	CreatedAt time.Time
}
