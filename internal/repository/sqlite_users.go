package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mr1hm/go-panic-alerts/internal/models"
)

func (s *SQLiteDB) SaveUser(ctx context.Context, u *models.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (uid, email, name, role, dni, device_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(uid) DO UPDATE SET
			email = excluded.email,
			name = excluded.name,
			role = excluded.role,
			dni = excluded.dni,
			device_id = excluded.device_id`,
		u.UID, u.Email, u.Name, string(u.Role), u.DNI, u.DeviceID, u.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("error saving user: %w", err)
	}
	return nil
}

func (s *SQLiteDB) GetUserByUID(ctx context.Context, uid string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT uid, email, name, role, dni, device_id, created_at
		FROM users WHERE uid = ?`, uid)
	return scanUser(row)
}

func (s *SQLiteDB) FindUserByDeviceID(ctx context.Context, deviceID string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT uid, email, name, role, dni, device_id, created_at
		FROM users WHERE device_id = ? LIMIT 1`, deviceID)
	return scanUser(row)
}

func (s *SQLiteDB) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT uid, email, name, role, dni, device_id, created_at
		FROM users ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("error listing users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning user row: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	var role string
	var name, dni, deviceID sql.NullString

	err := row.Scan(&u.UID, &u.Email, &name, &role, &dni, &deviceID, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	u.Role = models.Role(role)
	u.Name = name.String
	u.DNI = dni.String
	u.DeviceID = deviceID.String
	return &u, nil
}
