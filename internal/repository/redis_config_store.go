package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"RatePulse/internal/domain/models"
	domrepo "RatePulse/internal/domain/repository"
	applogger "RatePulse/pkg/logger"
)

const (
	thresholdsKey = "ratepulse:thresholds"
	overridesKey  = "ratepulse:overrides"
)

// RedisConfigStore persists thresholds and overrides in Redis hashes so
// the engine picks them back up after a restart.
type RedisConfigStore struct {
	cli *redis.Client
	l   *applogger.Logger
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

var _ domrepo.ConfigStore = (*RedisConfigStore)(nil)

func NewRedisConfigStore(cfg RedisConfig) *RedisConfigStore {
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	return &RedisConfigStore{cli: rdb}
}

// SetLogger injects a structured logger.
func (s *RedisConfigStore) SetLogger(l *applogger.Logger) { s.l = l }

func (s *RedisConfigStore) LoadThresholds(ctx context.Context) ([]*models.RateThreshold, error) {
	raw, err := s.cli.HGetAll(ctx, thresholdsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("load thresholds: %w", err)
	}
	out := make([]*models.RateThreshold, 0, len(raw))
	for field, v := range raw {
		var t models.RateThreshold
		if err := json.Unmarshal([]byte(v), &t); err != nil {
			if s.l != nil {
				s.l.Warn("skip corrupt threshold", applogger.String("field", field), applogger.Error(err))
			}
			continue
		}
		out = append(out, &t)
	}
	return out, nil
}

func (s *RedisConfigStore) SaveThreshold(ctx context.Context, t *models.RateThreshold) error {
	b, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal threshold: %w", err)
	}
	if err := s.cli.HSet(ctx, thresholdsKey, t.Pair, b).Err(); err != nil {
		return fmt.Errorf("save threshold %s: %w", t.Pair, err)
	}
	return nil
}

func (s *RedisConfigStore) LoadOverrides(ctx context.Context) ([]*models.RateOverride, error) {
	raw, err := s.cli.HGetAll(ctx, overridesKey).Result()
	if err != nil {
		return nil, fmt.Errorf("load overrides: %w", err)
	}
	out := make([]*models.RateOverride, 0, len(raw))
	for field, v := range raw {
		var o models.RateOverride
		if err := json.Unmarshal([]byte(v), &o); err != nil {
			if s.l != nil {
				s.l.Warn("skip corrupt override", applogger.String("field", field), applogger.Error(err))
			}
			continue
		}
		out = append(out, &o)
	}
	return out, nil
}

func (s *RedisConfigStore) SaveOverride(ctx context.Context, o *models.RateOverride) error {
	b, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("marshal override: %w", err)
	}
	if err := s.cli.HSet(ctx, overridesKey, overrideField(o.Pair, o.StoreID), b).Err(); err != nil {
		return fmt.Errorf("save override %s: %w", o.Pair, err)
	}
	return nil
}

func (s *RedisConfigStore) DeleteOverride(ctx context.Context, pair, storeID string) error {
	if err := s.cli.HDel(ctx, overridesKey, overrideField(pair, storeID)).Err(); err != nil {
		return fmt.Errorf("delete override %s: %w", pair, err)
	}
	return nil
}

func (s *RedisConfigStore) Close() error {
	return s.cli.Close()
}

func overrideField(pair, storeID string) string {
	if storeID == "" {
		return pair
	}
	return pair + "|" + storeID
}
