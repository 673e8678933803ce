package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/sap-order-agent/server/internal/agent/model"
	errx "github.com/sap-order-agent/server/internal/core/error"
	logx "github.com/sap-order-agent/server/pkg/logger"
)

const (
	// maxSessionEvents bounds the stored event log of one session.
	maxSessionEvents = 200
	// eventsPerTurnWindow sizes the tail read for k turns.
	eventsPerTurnWindow = 8
)

type RedisMemoryRepository struct {
	rdb      redis.Cmdable
	memoryID string
	ttl      time.Duration
	now      func() time.Time
}

func NewRedisMemoryRepository(rdb redis.Cmdable, memoryID string, ttl time.Duration) *RedisMemoryRepository {
	return &RedisMemoryRepository{rdb: rdb, memoryID: memoryID, ttl: ttl, now: time.Now}
}

func (r *RedisMemoryRepository) eventsKey(actorID, sessionID string) string {
	return fmt.Sprintf("memory:%s:%s:%s:events", r.memoryID, actorID, sessionID)
}

func (r *RedisMemoryRepository) AppendTurn(ctx context.Context, actorID, sessionID string, role model.Role, text string) (string, error) {
	ev := model.Event{
		ID:        uuid.NewString(),
		Role:      role,
		Text:      text,
		CreatedAt: r.now().UTC(),
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}
	key := r.eventsKey(actorID, sessionID)

	if err := r.rdb.RPush(ctx, key, b).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to push memory event to redis")
		return "", errx.WrapRedis(err)
	}
	if err := r.rdb.LTrim(ctx, key, -maxSessionEvents, -1).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to trim memory events")
		return "", errx.WrapRedis(err)
	}
	// extend TTL on touch
	if r.ttl > 0 {
		if ok, err := r.rdb.Expire(ctx, key, r.ttl).Result(); err != nil {
			logx.Error().Err(err).Str("key", key).Msg("failed to set expire")
			return "", errx.WrapRedis(err)
		} else if !ok {
			logx.Warn().Str("key", key).Dur("ttl", r.ttl).Msg("failed to set TTL on memory key")
		}
	}
	return ev.ID, nil
}

func (r *RedisMemoryRepository) LastKTurns(ctx context.Context, actorID, sessionID string, k int) ([]model.Turn, error) {
	if k <= 0 {
		return nil, nil
	}
	key := r.eventsKey(actorID, sessionID)

	window := int64(k * eventsPerTurnWindow)
	rows, err := r.rdb.LRange(ctx, key, -window, -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		logx.Error().Err(err).Str("key", key).Msg("failed to load memory events from redis")
		return nil, errx.WrapRedis(err)
	}

	events := make([]model.Event, 0, len(rows))
	for i, s := range rows {
		var ev model.Event
		if err := json.Unmarshal([]byte(s), &ev); err != nil {
			logx.Warn().Err(err).Str("key", key).Int("index", i).Msg("skipping undecodable memory event")
			continue
		}
		events = append(events, ev)
	}
	if int64(len(rows)) == window {
		// a full window may open mid-turn
		events = dropPartialTurn(events)
	}
	return model.LastK(model.GroupTurns(events), k), nil
}

func (r *RedisMemoryRepository) ClearSession(ctx context.Context, actorID, sessionID string) error {
	key := r.eventsKey(actorID, sessionID)
	if err := r.rdb.Del(ctx, key).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to delete memory events from redis")
		return errx.WrapRedis(err)
	}
	return nil
}

func dropPartialTurn(events []model.Event) []model.Event {
	for i, ev := range events {
		if ev.Role == model.RoleUser {
			return events[i:]
		}
	}
	return nil
}

var _ model.MemoryRepository = (*RedisMemoryRepository)(nil)
