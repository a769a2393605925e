package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/dkeye/voicerooms/internal/core"
	"github.com/dkeye/voicerooms/internal/domain"
)

const (
	// RoomsKey is hash of room_id => Room snapshot
	RoomsKey = "voicerooms:rooms"
)

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func NewRedisClient(ctx context.Context, conf RedisConfig) (*redis.Client, error) {
	rc := redis.NewClient(&redis.Options{
		Addr:     conf.Addr,
		Password: conf.Password,
		DB:       conf.DB,
	})
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, errors.Wrapf(err, "unable to connect to redis at %s", conf.Addr)
	}
	return rc, nil
}

type RedisRoomStore struct {
	rc *redis.Client
}

func NewRedisRoomStore(rc *redis.Client) *RedisRoomStore {
	return &RedisRoomStore{rc: rc}
}

func (s *RedisRoomStore) LoadRoom(ctx context.Context, id domain.RoomID) (*domain.Room, error) {
	data, err := s.rc.HGet(ctx, RoomsKey, string(id)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, domain.ErrRoomNotFound
		}
		return nil, errors.Wrap(err, "could not load room")
	}
	return decodeRoom([]byte(data))
}

func (s *RedisRoomStore) StoreRoom(ctx context.Context, room *domain.Room) error {
	data, err := json.Marshal(room)
	if err != nil {
		return err
	}
	if err := s.rc.HSet(ctx, RoomsKey, string(room.ID), data).Err(); err != nil {
		return errors.Wrap(err, "could not store room")
	}
	return nil
}

func (s *RedisRoomStore) DeleteRoom(ctx context.Context, id domain.RoomID) error {
	if err := s.rc.HDel(ctx, RoomsKey, string(id)).Err(); err != nil {
		return errors.Wrap(err, "could not delete room")
	}
	return nil
}

type RedisCache struct {
	rc *redis.Client
}

func NewRedisCache(rc *redis.Client) *RedisCache {
	return &RedisCache{rc: rc}
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return errors.Wrapf(c.rc.Set(ctx, key, value, ttl).Err(), "could not set %s", key)
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := c.rc.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, core.ErrCacheMiss
	}
	if err != nil {
		return nil, errors.Wrapf(err, "could not get %s", key)
	}
	return data, nil
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return errors.Wrapf(c.rc.Del(ctx, key).Err(), "could not delete %s", key)
}
