package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/mr1hm/go-panic-alerts/internal/models"
)

const alertColumns = `id, device_eui, device_id, victim_name, latitude, longitude,
	battery_level, timestamp, state, activation_count, last_activation_at,
	urgency_level, recurrent, assigned_patrol_id, taken_at, en_route_at,
	resolved_at, created_at`

// updatableAlertColumns is the whitelist for partial-field updates. Anything
// outside it is a programming error, not caller input.
var updatableAlertColumns = map[string]bool{
	"latitude":           true,
	"longitude":          true,
	"battery_level":      true,
	"timestamp":          true,
	"state":              true,
	"activation_count":   true,
	"last_activation_at": true,
	"urgency_level":      true,
	"recurrent":          true,
	"assigned_patrol_id": true,
	"taken_at":           true,
	"en_route_at":        true,
	"resolved_at":        true,
}

func (s *SQLiteDB) Save(ctx context.Context, a *models.Alert) (string, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO alerts (`+alertColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.DeviceEUI, a.DeviceID, a.VictimName, a.Latitude, a.Longitude,
		a.BatteryLevel, a.Timestamp, string(a.State), a.ActivationCount,
		a.LastActivationAt, string(a.UrgencyLevel), a.Recurrent,
		a.AssignedPatrolID, a.TakenAt, a.EnRouteAt, a.ResolvedAt, a.CreatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("error inserting alert: %w", err)
	}
	return a.ID, nil
}

func (s *SQLiteDB) GetByID(ctx context.Context, id string) (*models.Alert, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+alertColumns+` FROM alerts WHERE id = ?`, id)

	a, err := scanAlert(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error scanning alert: %w", err)
	}
	return a, nil
}

func (s *SQLiteDB) FindOpenByDevice(ctx context.Context, deviceEUI string) (*models.Alert, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+alertColumns+` FROM alerts
		WHERE device_eui = ? AND state IN (?, ?, ?)
		ORDER BY created_at DESC LIMIT 1`,
		deviceEUI,
		string(models.AlertStateAvailable), string(models.AlertStateTaken), string(models.AlertStateEnRoute),
	)

	a, err := scanAlert(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error scanning open alert: %w", err)
	}
	return a, nil
}

func (s *SQLiteDB) CountClosedByDevice(ctx context.Context, deviceEUI string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM alerts WHERE device_eui = ? AND state IN (?, ?)`,
		deviceEUI, string(models.AlertStateResolved), string(models.AlertStateExpired),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("error counting closed alerts: %w", err)
	}
	return count, nil
}

func (s *SQLiteDB) List(ctx context.Context, opts Filter) ([]models.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts`
	var conds []string
	var args []any

	if len(opts.States) > 0 {
		placeholders := make([]string, len(opts.States))
		for i, st := range opts.States {
			placeholders[i] = "?"
			args = append(args, string(st))
		}
		conds = append(conds, "state IN ("+strings.Join(placeholders, ", ")+")")
	}
	if opts.DeviceEUI != "" {
		conds = append(conds, "device_eui = ?")
		args = append(args, opts.DeviceEUI)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	query += " ORDER BY timestamp DESC"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error listing alerts: %w", err)
	}
	defer rows.Close()

	var alerts []models.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning alert row: %w", err)
		}
		alerts = append(alerts, *a)
	}
	return alerts, rows.Err()
}

func (s *SQLiteDB) UpdateFields(ctx context.Context, id string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}

	cols := make([]string, 0, len(fields))
	for col := range fields {
		if !updatableAlertColumns[col] {
			return fmt.Errorf("column %q is not updatable", col)
		}
		cols = append(cols, col)
	}
	sort.Strings(cols)

	sets := make([]string, len(cols))
	args := make([]any, 0, len(cols)+1)
	for i, col := range cols {
		sets[i] = col + " = ?"
		args = append(args, fields[col])
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx,
		"UPDATE alerts SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return fmt.Errorf("error updating alert fields: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error reading rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("alert %s: %w", id, ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlert(row rowScanner) (*models.Alert, error) {
	var a models.Alert
	var state, urgency string
	var deviceID, victimName, patrolID sql.NullString
	var takenAt, enRouteAt, resolvedAt sql.NullTime

	err := row.Scan(
		&a.ID, &a.DeviceEUI, &deviceID, &victimName, &a.Latitude, &a.Longitude,
		&a.BatteryLevel, &a.Timestamp, &state, &a.ActivationCount,
		&a.LastActivationAt, &urgency, &a.Recurrent, &patrolID,
		&takenAt, &enRouteAt, &resolvedAt, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.State = models.AlertState(state)
	a.UrgencyLevel = models.UrgencyLevel(urgency)
	a.DeviceID = deviceID.String
	a.VictimName = victimName.String
	a.AssignedPatrolID = patrolID.String
	if takenAt.Valid {
		t := takenAt.Time
		a.TakenAt = &t
	}
	if enRouteAt.Valid {
		t := enRouteAt.Time
		a.EnRouteAt = &t
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		a.ResolvedAt = &t
	}
	return &a, nil
}
