package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/mr1hm/go-panic-alerts/internal/models"
)

const patrolKeyPrefix = "patrol:location:"

// PatrolLocationStore keeps the current location of each patrol officer in
// Redis, one key per officer. Updates overwrite the previous value; no
// history is retained.
type PatrolLocationStore struct {
	client *redis.Client
}

func NewPatrolLocationStore(client *redis.Client) *PatrolLocationStore {
	return &PatrolLocationStore{client: client}
}

type patrolLocationDoc struct {
	PatrolID  string  `json:"patrol_id"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	UpdatedAt int64   `json:"updated_at"` // unix millis
}

func (p *PatrolLocationStore) Upsert(ctx context.Context, loc *models.PatrolLocation) error {
	doc := patrolLocationDoc{
		PatrolID:  loc.PatrolID,
		Latitude:  loc.Latitude,
		Longitude: loc.Longitude,
		UpdatedAt: loc.UpdatedAt.UnixMilli(),
	}

	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("error marshaling patrol location: %w", err)
	}

	if err := p.client.Set(ctx, patrolKeyPrefix+loc.PatrolID, payload, 0).Err(); err != nil {
		return fmt.Errorf("error storing patrol location: %w", err)
	}
	return nil
}

func (p *PatrolLocationStore) List(ctx context.Context) ([]models.PatrolLocation, error) {
	var locations []models.PatrolLocation

	iter := p.client.Scan(ctx, 0, patrolKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		val, err := p.client.Get(ctx, iter.Val()).Result()
		if err == redis.Nil {
			continue // key expired between scan and get
		}
		if err != nil {
			return nil, fmt.Errorf("error reading patrol location: %w", err)
		}

		var doc patrolLocationDoc
		if err := json.Unmarshal([]byte(val), &doc); err != nil {
			return nil, fmt.Errorf("error unmarshaling patrol location: %w", err)
		}

		locations = append(locations, models.PatrolLocation{
			PatrolID:  doc.PatrolID,
			Latitude:  doc.Latitude,
			Longitude: doc.Longitude,
			UpdatedAt: timeFromMillis(doc.UpdatedAt),
		})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("error scanning patrol locations: %w", err)
	}
	return locations, nil
}

func timeFromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
