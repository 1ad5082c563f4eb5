package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// CacheStore caches ride snapshots for polling clients. Snapshots are
// invalidated on every lifecycle transition, so a poll sees at worst a
// briefly stale view and never a phantom transition.
type CacheStore struct {
	client *redis.Client
}

// NewCacheStore creates a new CacheStore.
func NewCacheStore(client *redis.Client) *CacheStore {
	return &CacheStore{client: client}
}

// RideCacheTTL bounds staleness for polled ride snapshots. Ride state
// changes on every transition, so keep it short.
const RideCacheTTL = 10 * time.Second

const rideCachePrefix = "cache:ride:"

// CachedRide represents a cached ride snapshot. Verification codes are
// deliberately excluded; they are exchanged out-of-band.
type CachedRide struct {
	ID        string  `json:"id"`
	DriverID  string  `json:"driver_id"`
	Status    string  `json:"status"`
	Price     float64 `json:"price"`
	SeatsLeft int     `json:"seats_left"`
}

// GetRide retrieves a ride snapshot from cache. Returns nil on cache miss.
func (s *CacheStore) GetRide(ctx context.Context, rideID string) (*CachedRide, error) {
	key := rideCachePrefix + rideID
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // Cache miss
		}
		return nil, err
	}

	var cached CachedRide
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, err
	}

	return &cached, nil
}

// SetRide stores a ride snapshot in cache.
func (s *CacheStore) SetRide(ctx context.Context, ride *CachedRide) error {
	data, err := json.Marshal(ride)
	if err != nil {
		return err
	}

	key := rideCachePrefix + ride.ID
	return s.client.Set(ctx, key, data, RideCacheTTL).Err()
}

// InvalidateRide removes a ride snapshot from cache.
func (s *CacheStore) InvalidateRide(ctx context.Context, rideID string) error {
	key := fmt.Sprintf("%s%s", rideCachePrefix, rideID)
	return s.client.Del(ctx, key).Err()
}
