package push

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"portfolio-sync/internal/common/config"
	"portfolio-sync/internal/common/database"
	"portfolio-sync/internal/common/logger"
)

// Factory opens a Channel authorized with token.
type Factory func(ctx context.Context, token string) (Channel, error)

// Manager owns at most one live Channel. It is created lazily on Connect and
// replaced when the token changes.
type Manager struct {
	factory Factory
	logger  logger.Logger

	mu      sync.Mutex
	token   string
	channel Channel
}

func NewManager(factory Factory, log logger.Logger) *Manager {
	return &Manager{
		factory: factory,
		logger:  log.With(map[string]interface{}{"component": "push.manager"}),
	}
}

// Connect returns the live channel for token, opening or replacing it as
// needed. A nil factory yields a nil channel and no error.
func (m *Manager) Connect(ctx context.Context, token string) (Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.channel != nil && m.token == token {
		return m.channel, nil
	}
	if m.channel != nil {
		m.closeLocked()
	}
	if m.factory == nil {
		return nil, nil
	}

	ch, err := m.factory(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("open push channel: %w", err)
	}
	m.channel = ch
	m.token = token
	m.logger.Info("push channel opened", nil)
	return ch, nil
}

// Channel returns the live channel or nil.
func (m *Manager) Channel() Channel {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.channel
}

// Disconnect tears the live channel down. Safe to call repeatedly.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeLocked()
}

func (m *Manager) closeLocked() {
	if m.channel == nil {
		return
	}
	if err := m.channel.Close(); err != nil {
		m.logger.Warn("closing push channel failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
	m.channel = nil
	m.token = ""
	m.logger.Info("push channel closed", nil)
}

// NewFactory builds a Factory for the configured driver. memory and redis
// are only consulted by their drivers and may be nil otherwise.
func NewFactory(cfg config.PushConfig, memory *Memory, redis *database.RedisClient, log logger.Logger) (Factory, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", config.PushDriverNone:
		return nil, nil

	case config.PushDriverMemory:
		if memory == nil {
			memory = NewMemory(cfg.EventNamespace)
		}
		return func(ctx context.Context, token string) (Channel, error) {
			return newSharedMemory(memory), nil
		}, nil

	case config.PushDriverRedis:
		if redis == nil {
			return nil, fmt.Errorf("push driver redis needs a redis client")
		}
		return func(ctx context.Context, token string) (Channel, error) {
			return NewRedisChannel(redis, cfg.Redis.ChannelPrefix, cfg.EventNamespace, log), nil
		}, nil

	case config.PushDriverPusher:
		return func(ctx context.Context, token string) (Channel, error) {
			client := NewPusherClient(PusherOptions{
				Key:          cfg.Pusher.Key,
				Cluster:      cfg.Pusher.Cluster,
				Host:         cfg.Pusher.Host,
				Port:         cfg.Pusher.Port,
				TLS:          cfg.Pusher.TLS,
				AuthEndpoint: cfg.Pusher.AuthEndpoint,
				Token:        token,
				Namespace:    cfg.EventNamespace,
				PingInterval: config.GetDuration(cfg.Pusher.PingInterval),
			}, log)
			if err := client.Connect(ctx); err != nil {
				return nil, err
			}
			return client, nil
		}, nil
	}
	return nil, fmt.Errorf("unknown push driver %q", cfg.Driver)
}

// sharedMemory lets each connection drop its own subscriptions without
// touching other connections on the process-wide broker.
type sharedMemory struct {
	*Memory
	owner uint64
}

func newSharedMemory(m *Memory) *sharedMemory {
	return &sharedMemory{Memory: m, owner: m.newOwner()}
}

func (s *sharedMemory) Listen(ctx context.Context, channel, event string, handler Handler) error {
	return s.Memory.listen(s.owner, channel, event, handler)
}

func (s *sharedMemory) Leave(channel string) error {
	s.Memory.release(s.owner, channel)
	return nil
}

func (s *sharedMemory) Close() error {
	s.Memory.release(s.owner, "")
	return nil
}
