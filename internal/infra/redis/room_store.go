package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"quizroom-service/internal/domain"
)

// RoomStore keeps each room as one JSON document under quizroom:room:{code}.
// A zero ttl keeps rooms until they are deleted.
type RoomStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRoomStore(client *redis.Client, ttl time.Duration) *RoomStore {
	return &RoomStore{client: client, ttl: ttl}
}

func (s *RoomStore) FindByCode(ctx context.Context, code string) (*domain.Room, error) {
	raw, err := s.client.Get(ctx, roomKey(code)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get room %s: %w", code, err)
	}
	var room domain.Room
	if err := json.Unmarshal(raw, &room); err != nil {
		return nil, fmt.Errorf("decode room %s: %w", code, err)
	}
	return &room, nil
}

func (s *RoomStore) Create(ctx context.Context, room *domain.Room) error {
	raw, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("encode room %s: %w", room.Code, err)
	}
	created, err := s.client.SetNX(ctx, roomKey(room.Code), raw, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("create room %s: %w", room.Code, err)
	}
	if !created {
		return domain.ErrRoomExists
	}
	return nil
}

// Update overwrites an existing room only; a deleted room stays deleted.
func (s *RoomStore) Update(ctx context.Context, room *domain.Room) error {
	raw, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("encode room %s: %w", room.Code, err)
	}
	updated, err := s.client.SetXX(ctx, roomKey(room.Code), raw, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("update room %s: %w", room.Code, err)
	}
	if !updated {
		return domain.ErrRoomNotFound
	}
	return nil
}

func (s *RoomStore) Delete(ctx context.Context, code string) error {
	n, err := s.client.Del(ctx, roomKey(code)).Result()
	if err != nil {
		return fmt.Errorf("delete room %s: %w", code, err)
	}
	if n == 0 {
		return domain.ErrRoomNotFound
	}
	return nil
}

func roomKey(code string) string {
	return "quizroom:room:" + code
}
