package push

import (
	"context"
	"errors"
	"sync"
)

var ErrClosed = errors.New("push channel closed")

// brokerOwner tags handlers registered directly on the broker.
const brokerOwner uint64 = 0

type memoryListener struct {
	owner   uint64
	event   string
	handler Handler
}

// Memory is an in-process broker. Emit delivers synchronously.
type Memory struct {
	mu        sync.RWMutex
	namespace string
	listeners map[string][]memoryListener
	nextOwner uint64
	closed    bool
}

func NewMemory(namespace string) *Memory {
	return &Memory{namespace: namespace, listeners: make(map[string][]memoryListener)}
}

func (m *Memory) Listen(ctx context.Context, channel, event string, handler Handler) error {
	return m.listen(brokerOwner, channel, event, handler)
}

// Leave drops every handler on channel, whoever registered it.
func (m *Memory) Leave(channel string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.listeners, channel)
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.listeners = make(map[string][]memoryListener)
	return nil
}

// Emit delivers payload to listeners of event on channel and returns how
// many handlers ran. event uses the same naming as Listen.
func (m *Memory) Emit(channel, event string, payload map[string]interface{}) int {
	name := EventName(m.namespace, event)

	m.mu.RLock()
	var handlers []Handler
	for _, l := range m.listeners[channel] {
		if l.event == name {
			handlers = append(handlers, l.handler)
		}
	}
	m.mu.RUnlock()

	for _, h := range handlers {
		h(payload)
	}
	return len(handlers)
}

// Subscribed lists channels with at least one handler.
func (m *Memory) Subscribed() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.listeners))
	for name := range m.listeners {
		out = append(out, name)
	}
	return out
}

func (m *Memory) listen(owner uint64, channel, event string, handler Handler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.listeners[channel] = append(m.listeners[channel], memoryListener{
		owner:   owner,
		event:   EventName(m.namespace, event),
		handler: handler,
	})
	return nil
}

func (m *Memory) newOwner() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextOwner++
	return m.nextOwner
}

// release drops owner's handlers on channel, or on every channel when
// channel is empty.
func (m *Memory) release(owner uint64, channel string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, ls := range m.listeners {
		if channel != "" && name != channel {
			continue
		}
		kept := ls[:0]
		for _, l := range ls {
			if l.owner != owner {
				kept = append(kept, l)
			}
		}
		if len(kept) == 0 {
			delete(m.listeners, name)
			continue
		}
		m.listeners[name] = kept
	}
}
