package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Redis is a slot backend storing each slot under "<prefix>:<slot>".
type Redis struct {
	client *redis.Client
	prefix string
}

func NewRedis(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = "architect"
	}
	return &Redis{client: client, prefix: prefix}
}

// OpenRedis connects to addr and verifies the connection.
func OpenRedis(ctx context.Context, addr, password string, database int, prefix string) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       database,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return NewRedis(client, prefix), nil
}

func (r *Redis) key(slot string) string {
	return r.prefix + ":" + slot
}

func (r *Redis) Load(ctx context.Context, slot string) ([]byte, bool, error) {
	data, err := r.client.Get(ctx, r.key(slot)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get %s: %w", r.key(slot), err)
	}
	return data, true, nil
}

func (r *Redis) Save(ctx context.Context, slot string, data []byte) error {
	if err := r.client.Set(ctx, r.key(slot), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set %s: %w", r.key(slot), err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
