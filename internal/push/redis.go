package push

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"

	"portfolio-sync/internal/common/database"
	apperrors "portfolio-sync/internal/common/errors"
	"portfolio-sync/internal/common/logger"
)

// Message is the envelope carried on Redis pub/sub, matching what a
// Laravel redis broadcaster publishes.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// RedisChannel subscribes to broadcast channels over Redis pub/sub. One
// PubSub connection carries every channel.
type RedisChannel struct {
	client    *database.RedisClient
	prefix    string
	namespace string
	logger    logger.Logger

	mu       sync.Mutex
	pubsub   *redis.PubSub
	handlers handlerSet
	done     chan struct{}
	closed   bool
}

func NewRedisChannel(client *database.RedisClient, prefix, namespace string, log logger.Logger) *RedisChannel {
	return &RedisChannel{
		client:    client,
		prefix:    prefix,
		namespace: namespace,
		logger:    log.With(map[string]interface{}{"component": "push.redis"}),
		handlers:  make(handlerSet),
	}
}

func (r *RedisChannel) Listen(ctx context.Context, channel, event string, handler Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return apperrors.NewPushSubscribeFailedError(channel, ErrClosed)
	}

	full := r.prefix + channel
	if !r.handlers.add(channel, EventName(r.namespace, event), handler) {
		return nil
	}

	if r.pubsub == nil {
		r.pubsub = r.client.Subscribe(ctx, full)
		// Receive blocks until the subscription is confirmed.
		if _, err := r.pubsub.Receive(ctx); err != nil {
			_ = r.pubsub.Close()
			r.pubsub = nil
			delete(r.handlers, channel)
			return apperrors.NewPushSubscribeFailedError(channel, err)
		}
		r.done = make(chan struct{})
		go r.receiveLoop(r.pubsub, r.done)
	} else if err := r.pubsub.Subscribe(ctx, full); err != nil {
		delete(r.handlers, channel)
		return apperrors.NewPushSubscribeFailedError(channel, err)
	}

	r.logger.Debug("subscribed", map[string]interface{}{"channel": full})
	return nil
}

func (r *RedisChannel) Leave(channel string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handlers[channel]; !ok {
		return nil
	}
	delete(r.handlers, channel)
	if r.pubsub == nil {
		return nil
	}
	if err := r.pubsub.Unsubscribe(context.Background(), r.prefix+channel); err != nil {
		return fmt.Errorf("unsubscribe %s: %w", channel, err)
	}
	return nil
}

func (r *RedisChannel) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.handlers = make(handlerSet)
	ps, done := r.pubsub, r.done
	r.pubsub = nil
	r.mu.Unlock()

	if ps == nil {
		return nil
	}
	err := ps.Close()
	<-done
	return err
}

// Publish sends one event the way the backend broadcaster would.
func (r *RedisChannel) Publish(ctx context.Context, channel, event string, payload map[string]interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	msg, err := json.Marshal(Message{Event: EventName(r.namespace, event), Data: data})
	if err != nil {
		return err
	}
	_, err = r.client.Publish(ctx, r.prefix+channel, string(msg))
	return err
}

func (r *RedisChannel) receiveLoop(ps *redis.PubSub, done chan struct{}) {
	defer close(done)
	for m := range ps.Channel() {
		r.dispatch(m)
	}
}

func (r *RedisChannel) dispatch(m *redis.Message) {
	channel := strings.TrimPrefix(m.Channel, r.prefix)

	var msg Message
	if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
		r.logger.Warn("dropping undecodable message", map[string]interface{}{
			"channel": m.Channel,
			"error":   err.Error(),
		})
		return
	}
	payload, err := decodeData(msg.Data)
	if err != nil {
		r.logger.Warn("dropping message with invalid data", map[string]interface{}{
			"channel": m.Channel,
			"event":   msg.Event,
			"error":   err.Error(),
		})
		return
	}

	r.mu.Lock()
	handlers := r.handlers.lookup(channel, msg.Event)
	r.mu.Unlock()

	for _, h := range handlers {
		h(payload)
	}
}

// decodeData accepts an object or a JSON string holding an object.
func decodeData(raw json.RawMessage) (map[string]interface{}, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return map[string]interface{}{}, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		raw = json.RawMessage(s)
	}
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, apperrors.NewPushPayloadInvalidError(err.Error())
	}
	if out == nil {
		out = map[string]interface{}{}
	}
	return out, nil
}
