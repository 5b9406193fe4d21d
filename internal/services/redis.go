package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// EventsTopic is the pub/sub channel every published event is mirrored to,
// so other processes can observe the marketplace.
const EventsTopic = "mooveit:events"

const driverLocationTTL = time.Hour

// RedisCache holds short-lived driver state and mirrors events. A nil
// *RedisCache is valid and does nothing.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(ctx context.Context, url string) (*RedisCache, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &RedisCache{client: client}, nil
}

// DriverLocation is the last reported position of a driver.
type DriverLocation struct {
	DriverID  uint      `json:"driverId"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Heading   float64   `json:"heading"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func driverLocationKey(driverID uint) string {
	return fmt.Sprintf("driver:location:%d", driverID)
}

func (c *RedisCache) SetDriverLocation(ctx context.Context, loc DriverLocation) error {
	if c == nil {
		return nil
	}
	data, err := json.Marshal(loc)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, driverLocationKey(loc.DriverID), data, driverLocationTTL).Err()
}

// GetDriverLocation returns redis.Nil when nothing is cached.
func (c *RedisCache) GetDriverLocation(ctx context.Context, driverID uint) (*DriverLocation, error) {
	if c == nil {
		return nil, redis.Nil
	}
	data, err := c.client.Get(ctx, driverLocationKey(driverID)).Bytes()
	if err != nil {
		return nil, err
	}
	var loc DriverLocation
	if err := json.Unmarshal(data, &loc); err != nil {
		return nil, err
	}
	return &loc, nil
}

// PublishEvent mirrors a serialized event frame to EventsTopic.
func (c *RedisCache) PublishEvent(ctx context.Context, frame []byte) error {
	if c == nil {
		return nil
	}
	return c.client.Publish(ctx, EventsTopic, frame).Err()
}

func (c *RedisCache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}
