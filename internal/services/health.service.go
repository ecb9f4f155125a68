package services

import (
	"context"
	"fmt"
	"time"

	"github.com/pushmill/push-gateway/pkg/pg"
	"github.com/pushmill/push-gateway/pkg/redis"
)

const healthProbeTimeout = 2 * time.Second

// HealthService answers liveness probes by touching the two backing stores.
// Either dependency may be nil when a deployment runs without it.
type HealthService struct {
	db    *pg.DB
	redis redis.RedisAdapter
}

func NewHealthService(db *pg.DB, redis redis.RedisAdapter) *HealthService {
	return &HealthService{
		db:    db,
		redis: redis,
	}
}

// Get reports the first unreachable dependency, nil when all respond.
func (s *HealthService) Get() error {
	ctx, cancel := context.WithTimeout(context.Background(), healthProbeTimeout)
	defer cancel()

	if s.db != nil {
		sqlDB, err := s.db.Read(ctx).DB()
		if err != nil {
			return fmt.Errorf("postgres handle: %w", err)
		}
		if err := sqlDB.PingContext(ctx); err != nil {
			return fmt.Errorf("postgres ping: %w", err)
		}
	}
	if s.redis != nil {
		if err := s.redis.Client().Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
	}
	return nil
}
