package repo

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/sap-order-agent/server/internal/agent/model"
)

// NewMemoryRepository returns the driver named by cfg. rdb is only used by
// the redis driver and must be non-nil for it.
func NewMemoryRepository(cfg model.MemoryConfig, rdb redis.Cmdable) (model.MemoryRepository, error) {
	switch cfg.Driver {
	case model.MemoryDriverInMem, "":
		return NewInMemoryRepository(), nil
	case model.MemoryDriverRedis:
		if rdb == nil {
			return nil, fmt.Errorf("memory driver %q requires a redis client", cfg.Driver)
		}
		return NewRedisMemoryRepository(rdb, cfg.ID, cfg.TTL), nil
	default:
		return nil, fmt.Errorf("unsupported memory driver: %s", cfg.Driver)
	}
}

// GenerateSessionID returns sap_session_{user}_{YYYYMMDD_HHMMSS}_{8 hex chars}
// for a known user and sap_session_{8 hex chars} otherwise. The random suffix
// keeps ids distinct for callers sharing a user name within one second.
func GenerateSessionID(user string, now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	if user = strings.TrimSpace(user); user != "" {
		return fmt.Sprintf("sap_session_%s_%s_%s", user, now.Format("20060102_150405"), suffix)
	}
	return "sap_session_" + suffix
}
