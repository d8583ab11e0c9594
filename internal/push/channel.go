// Package push carries server-originated notification events. Transports
// share the Channel contract; Manager owns the live connection.
package push

import (
	"context"
	"strings"
)

// PrivatePrefix marks channels that need backend authorization.
const PrivatePrefix = "private-"

// Handler receives one decoded event payload.
type Handler func(payload map[string]interface{})

// Channel is a subscription-capable real-time connection.
type Channel interface {
	// Listen registers handler for event on channel, subscribing to the
	// channel on first use.
	Listen(ctx context.Context, channel, event string, handler Handler) error
	// Leave drops every handler on channel and unsubscribes.
	Leave(channel string) error
	Close() error
}

// PrivateChannel returns the wire name of a private channel.
func PrivateChannel(name string) string {
	if strings.HasPrefix(name, PrivatePrefix) {
		return name
	}
	return PrivatePrefix + name
}

// IsPrivate reports whether channel requires authorization.
func IsPrivate(channel string) bool {
	return strings.HasPrefix(channel, PrivatePrefix)
}

// EventName resolves a listener event to its wire name. A leading dot marks
// a fully qualified name; anything else is prefixed with namespace, whose
// dots become backslashes.
func EventName(namespace, event string) string {
	if strings.HasPrefix(event, ".") {
		return event[1:]
	}
	ns := strings.TrimSuffix(strings.ReplaceAll(namespace, ".", `\`), `\`)
	if ns == "" {
		return event
	}
	return ns + `\` + event
}

// handlerSet indexes handlers by channel then wire event name.
type handlerSet map[string]map[string][]Handler

func (h handlerSet) add(channel, event string, handler Handler) (first bool) {
	events, ok := h[channel]
	if !ok {
		events = make(map[string][]Handler)
		h[channel] = events
	}
	events[event] = append(events[event], handler)
	return !ok
}

func (h handlerSet) lookup(channel, event string) []Handler {
	return append([]Handler(nil), h[channel][event]...)
}

func (h handlerSet) channels() []string {
	out := make([]string, 0, len(h))
	for name := range h {
		out = append(out, name)
	}
	return out
}
