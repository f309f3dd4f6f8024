package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mr1hm/go-panic-alerts/internal/models"
)

func setupTestDB(t *testing.T) *SQLiteDB {
	t.Helper()
	db, err := NewSQLiteDB(":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testAlert(deviceEUI string, state models.AlertState) *models.Alert {
	ts := time.Date(2024, 3, 10, 14, 30, 0, 0, time.UTC)
	return &models.Alert{
		DeviceEUI:        deviceEUI,
		DeviceID:         "device123",
		VictimName:       "Maria Lopez",
		Latitude:         12.3456,
		Longitude:        -76.5432,
		BatteryLevel:     78,
		Timestamp:        ts,
		State:            state,
		ActivationCount:  1,
		LastActivationAt: ts,
		UrgencyLevel:     models.UrgencyLow,
		CreatedAt:        ts,
	}
}

func TestSaveAndGetByID(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	a := testAlert("70B3D57ED0072E7F", models.AlertStateAvailable)
	id, err := db.Save(ctx, a)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if id == "" {
		t.Fatal("expected a generated id")
	}

	got, err := db.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected alert, got nil")
	}

	if got.DeviceEUI != a.DeviceEUI || got.VictimName != a.VictimName {
		t.Errorf("round-trip mismatch: %+v", got)
	}
	if got.State != models.AlertStateAvailable {
		t.Errorf("expected available state, got %s", got.State)
	}
	if !got.LastActivationAt.Equal(a.LastActivationAt) {
		t.Errorf("expected last activation %v, got %v", a.LastActivationAt, got.LastActivationAt)
	}
	if got.TakenAt != nil || got.EnRouteAt != nil || got.ResolvedAt != nil {
		t.Error("expected nil transition timestamps on a new alert")
	}
}

func TestGetByID_Missing(t *testing.T) {
	db := setupTestDB(t)

	got, err := db.GetByID(context.Background(), "nope")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing alert, got %+v", got)
	}
}

func TestFindOpenByDevice(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	// A terminal alert must not count as open.
	closed := testAlert("EUI-1", models.AlertStateResolved)
	if _, err := db.Save(ctx, closed); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := db.FindOpenByDevice(ctx, "EUI-1")
	if err != nil {
		t.Fatalf("FindOpenByDevice failed: %v", err)
	}
	if got != nil {
		t.Fatalf("expected no open alert, got %+v", got)
	}

	open := testAlert("EUI-1", models.AlertStateTaken)
	openID, err := db.Save(ctx, open)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err = db.FindOpenByDevice(ctx, "EUI-1")
	if err != nil {
		t.Fatalf("FindOpenByDevice failed: %v", err)
	}
	if got == nil || got.ID != openID {
		t.Fatalf("expected open alert %s, got %+v", openID, got)
	}

	// Other devices stay invisible.
	got, err = db.FindOpenByDevice(ctx, "EUI-2")
	if err != nil {
		t.Fatalf("FindOpenByDevice failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for unknown device, got %+v", got)
	}
}

func TestCountClosedByDevice(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	for _, state := range []models.AlertState{
		models.AlertStateResolved,
		models.AlertStateExpired,
		models.AlertStateAvailable,
	} {
		if _, err := db.Save(ctx, testAlert("EUI-1", state)); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	count, err := db.CountClosedByDevice(ctx, "EUI-1")
	if err != nil {
		t.Fatalf("CountClosedByDevice failed: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 closed alerts, got %d", count)
	}

	count, err = db.CountClosedByDevice(ctx, "EUI-2")
	if err != nil {
		t.Fatalf("CountClosedByDevice failed: %v", err)
	}
	if count != 0 {
		t.Errorf("expected 0 closed alerts for unknown device, got %d", count)
	}
}

func TestList_Filters(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	states := []models.AlertState{
		models.AlertStateAvailable,
		models.AlertStateTaken,
		models.AlertStateExpired,
	}
	for i, state := range states {
		a := testAlert("EUI-1", state)
		a.Timestamp = a.Timestamp.Add(time.Duration(i) * time.Minute)
		if _, err := db.Save(ctx, a); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}
	if _, err := db.Save(ctx, testAlert("EUI-2", models.AlertStateAvailable)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	all, err := db.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 4 {
		t.Errorf("expected 4 alerts, got %d", len(all))
	}

	open, err := db.List(ctx, Filter{States: models.OpenStates})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(open) != 3 {
		t.Errorf("expected 3 open alerts, got %d", len(open))
	}

	byDevice, err := db.List(ctx, Filter{DeviceEUI: "EUI-2"})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(byDevice) != 1 {
		t.Errorf("expected 1 alert for EUI-2, got %d", len(byDevice))
	}

	limited, err := db.List(ctx, Filter{Limit: 2})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("expected 2 alerts with limit, got %d", len(limited))
	}
}

func TestUpdateFields(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	id, err := db.Save(ctx, testAlert("EUI-1", models.AlertStateAvailable))
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	takenAt := time.Date(2024, 3, 10, 14, 35, 0, 0, time.UTC)
	err = db.UpdateFields(ctx, id, map[string]any{
		"state":              string(models.AlertStateTaken),
		"taken_at":           takenAt,
		"assigned_patrol_id": "patrol-7",
	})
	if err != nil {
		t.Fatalf("UpdateFields failed: %v", err)
	}

	got, err := db.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.State != models.AlertStateTaken {
		t.Errorf("expected taken, got %s", got.State)
	}
	if got.AssignedPatrolID != "patrol-7" {
		t.Errorf("expected patrol-7, got %q", got.AssignedPatrolID)
	}
	if got.TakenAt == nil || !got.TakenAt.Equal(takenAt) {
		t.Errorf("expected takenAt %v, got %v", takenAt, got.TakenAt)
	}

	// Untouched fields must survive the partial update.
	if got.ActivationCount != 1 || got.VictimName != "Maria Lopez" {
		t.Error("partial update must not clobber unrelated fields")
	}
}

func TestUpdateFields_MissingAlert(t *testing.T) {
	db := setupTestDB(t)

	err := db.UpdateFields(context.Background(), "nope", map[string]any{
		"state": string(models.AlertStateExpired),
	})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateFields_RejectsUnknownColumn(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	id, err := db.Save(ctx, testAlert("EUI-1", models.AlertStateAvailable))
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	err = db.UpdateFields(ctx, id, map[string]any{"device_eui": "EVIL"})
	if err == nil {
		t.Fatal("expected error for non-updatable column")
	}

	got, _ := db.GetByID(ctx, id)
	if got.DeviceEUI != "EUI-1" {
		t.Error("rejected update must not modify the row")
	}
}

func TestUsers_SaveAndLookup(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	u := &models.User{
		UID:       "u1",
		Email:     "maria@example.com",
		Name:      "Maria Lopez",
		Role:      models.RoleVictim,
		DNI:       "45678901",
		DeviceID:  "device123",
		CreatedAt: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := db.SaveUser(ctx, u); err != nil {
		t.Fatalf("SaveUser failed: %v", err)
	}

	got, err := db.GetUserByUID(ctx, "u1")
	if err != nil {
		t.Fatalf("GetUserByUID failed: %v", err)
	}
	if got == nil || got.Email != u.Email || got.Role != models.RoleVictim {
		t.Fatalf("round-trip mismatch: %+v", got)
	}

	byDevice, err := db.FindUserByDeviceID(ctx, "device123")
	if err != nil {
		t.Fatalf("FindUserByDeviceID failed: %v", err)
	}
	if byDevice == nil || byDevice.UID != "u1" {
		t.Fatalf("expected user u1 for device123, got %+v", byDevice)
	}

	missing, err := db.FindUserByDeviceID(ctx, "ghost")
	if err != nil {
		t.Fatalf("FindUserByDeviceID failed: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for unknown device, got %+v", missing)
	}
}

func TestUsers_UpsertByUID(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	u := &models.User{
		UID:       "u1",
		Email:     "old@example.com",
		Role:      models.RoleVictim,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.SaveUser(ctx, u); err != nil {
		t.Fatalf("SaveUser failed: %v", err)
	}

	u.Email = "new@example.com"
	u.DeviceID = "device456"
	if err := db.SaveUser(ctx, u); err != nil {
		t.Fatalf("SaveUser upsert failed: %v", err)
	}

	users, err := db.ListUsers(ctx)
	if err != nil {
		t.Fatalf("ListUsers failed: %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("expected 1 user after upsert, got %d", len(users))
	}
	if users[0].Email != "new@example.com" || users[0].DeviceID != "device456" {
		t.Errorf("upsert did not apply: %+v", users[0])
	}
}
