// internal/snapshot/redis_sink.go
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"portfolio-sync/internal/aggregator"
	"portfolio-sync/internal/common/config"
	"portfolio-sync/internal/common/logger"
)

const (
	DefaultKey     = "portfolio:snapshot"
	DefaultChannel = "portfolio:snapshot:updated"
)

// Announcement is published on the update channel after each write.
type Announcement struct {
	Key           string                   `json:"key"`
	GeneratedAt   time.Time                `json:"generated_at"`
	Authenticated bool                     `json:"authenticated"`
	Degraded      []aggregator.ResourceKey `json:"degraded"`
}

// RedisSink stores the latest snapshot as JSON and announces the update.
type RedisSink struct {
	rdb     redis.Cmdable
	key     string
	channel string
	ttl     time.Duration
	logger  logger.Logger
}

func NewRedisSink(rdb redis.Cmdable, cfg config.SnapshotConfig, log logger.Logger) *RedisSink {
	key := cfg.Key
	if key == "" {
		key = DefaultKey
	}
	channel := cfg.Channel
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisSink{
		rdb:     rdb,
		key:     key,
		channel: channel,
		ttl:     config.GetDuration(cfg.TTL),
		logger:  log.With(map[string]interface{}{"component": "snapshot.redis"}),
	}
}

// Publish implements aggregator.Sink.
func (s *RedisSink) Publish(ctx context.Context, snap *aggregator.Snapshot) error {
	if snap == nil {
		return nil
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := s.rdb.Set(ctx, s.key, string(payload), s.ttl).Err(); err != nil {
		return fmt.Errorf("store snapshot at %s: %w", s.key, err)
	}

	note, err := json.Marshal(Announcement{
		Key:           s.key,
		GeneratedAt:   snap.GeneratedAt,
		Authenticated: snap.Authenticated,
		Degraded:      snap.Degraded,
	})
	if err != nil {
		return fmt.Errorf("marshal announcement: %w", err)
	}
	receivers, err := s.rdb.Publish(ctx, s.channel, string(note)).Result()
	if err != nil {
		return fmt.Errorf("announce snapshot on %s: %w", s.channel, err)
	}

	s.logger.Debug("snapshot published", map[string]interface{}{
		"key":       s.key,
		"bytes":     len(payload),
		"receivers": receivers,
	})
	return nil
}

// Load returns the stored snapshot, or nil when none exists.
func (s *RedisSink) Load(ctx context.Context) (*aggregator.Snapshot, error) {
	raw, err := s.rdb.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot from %s: %w", s.key, err)
	}
	var snap aggregator.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}
