package notifications

import (
	"fmt"
	"time"

	"portfolio-sync/internal/alerts"
	"portfolio-sync/internal/models"
)

const (
	defaultVisitorName = "New Visitor"
	pushVisitorName    = "a visitor"
	defaultMessage     = "New message received"
	toastTitle         = "New Message!"
)

// FeedState is a copy of the feed, newest first.
type FeedState struct {
	Items       []models.Notification `json:"items"`
	UnreadCount int                   `json:"unread_count"`
}

// feed holds the items plus every id ever seen read in this session, so read
// state never reverts whatever the source of a later merge.
type feed struct {
	items   []models.Notification
	readIDs map[string]bool
}

func newFeed() *feed {
	return &feed{items: []models.Notification{}, readIDs: make(map[string]bool)}
}

// replace installs a full refresh. The server list is authoritative for
// membership; read flags are OR-ed with the local read set.
func (f *feed) replace(items []models.Notification) {
	out := make([]models.Notification, 0, len(items))
	seen := make(map[string]bool, len(items))
	for _, n := range items {
		if seen[n.ID] {
			continue
		}
		seen[n.ID] = true
		if n.Read {
			f.readIDs[n.ID] = true
		}
		n.Read = n.Read || f.readIDs[n.ID]
		out = append(out, n)
	}
	f.items = out
}

// insert prepends n unless its id is already present. It reports whether
// the item was added and whether it arrived unread.
func (f *feed) insert(n models.Notification) (added, unread bool) {
	if f.indexOf(n.ID) >= 0 {
		return false, false
	}
	n.Read = n.Read || f.readIDs[n.ID]
	f.items = append([]models.Notification{n}, f.items...)
	return true, !n.Read
}

func (f *feed) markRead(id string) {
	f.readIDs[id] = true
	if i := f.indexOf(id); i >= 0 {
		f.items[i].Read = true
	}
}

func (f *feed) markAllRead() {
	for i := range f.items {
		f.items[i].Read = true
		f.readIDs[f.items[i].ID] = true
	}
}

func (f *feed) remove(id string) bool {
	i := f.indexOf(id)
	if i < 0 {
		return false
	}
	f.items = append(f.items[:i:i], f.items[i+1:]...)
	return true
}

func (f *feed) unread() int {
	count := 0
	for _, n := range f.items {
		if !n.Read {
			count++
		}
	}
	return count
}

func (f *feed) indexOf(id string) int {
	for i, n := range f.items {
		if n.ID == id {
			return i
		}
	}
	return -1
}

func (f *feed) state() FeedState {
	return FeedState{
		Items:       append([]models.Notification{}, f.items...),
		UnreadCount: f.unread(),
	}
}

// extractFeedItems reads data.data, then data, from a list response. A
// single object counts as one item.
func extractFeedItems(raw interface{}) []map[string]interface{} {
	var payload interface{}
	if obj, ok := raw.(map[string]interface{}); ok {
		payload = obj["data"]
		if inner, ok := payload.(map[string]interface{}); ok && inner["data"] != nil {
			payload = inner["data"]
		}
	}

	switch p := payload.(type) {
	case []interface{}:
		out := make([]map[string]interface{}, 0, len(p))
		for _, item := range p {
			if m, ok := item.(map[string]interface{}); ok {
				out = append(out, m)
			}
		}
		return out
	case map[string]interface{}:
		return []map[string]interface{}{p}
	}
	return []map[string]interface{}{}
}

// normalizeItem shapes one list element.
func normalizeItem(item map[string]interface{}, now time.Time, newID func() string) models.Notification {
	return models.Notification{
		ID:        idOrNew(item["id"], newID),
		Name:      firstOr(defaultVisitorName, item["name"], item["sender_name"]),
		Email:     firstOr("", item["email"], item["sender_email"]),
		Subject:   models.Text(item["subject"]),
		Message:   firstOr(defaultMessage, item["message"]),
		CreatedAt: firstOr(now.UTC().Format(time.RFC3339), item["created_at"], item["date"]),
		Read:      models.Truthy(item["read"]),
	}
}

// isRefreshSignal reports whether a push payload only asks for a refetch.
func isRefreshSignal(payload map[string]interface{}) bool {
	return models.Truthy(payload["refresh"]) || models.Text(payload["type"]) == "refresh"
}

// pushCandidate picks payload.notification, then payload.message, then the
// payload itself, keeping the first that is an object.
func pushCandidate(payload map[string]interface{}) map[string]interface{} {
	if n, ok := payload["notification"].(map[string]interface{}); ok {
		return n
	}
	if m, ok := payload["message"].(map[string]interface{}); ok {
		return m
	}
	return payload
}

// normalizePush shapes a pushed item. Pushed items always arrive unread.
func normalizePush(item map[string]interface{}, now time.Time, newID func() string) models.Notification {
	return models.Notification{
		ID:        idOrNew(item["id"], newID),
		Name:      firstOr(pushVisitorName, item["name"], item["sender_name"]),
		Email:     firstOr("", item["email"], item["sender_email"]),
		Subject:   models.Text(item["subject"]),
		Message:   firstOr(defaultMessage, item["message"], item["subject"]),
		CreatedAt: firstOr(now.UTC().Format(time.RFC3339), item["created_at"], item["date"]),
		Read:      false,
	}
}

// buildToast renders the new-message alert. The preview is cut at
// previewLen runes.
func buildToast(n models.Notification, previewLen int, duration time.Duration) alerts.Toast {
	preview := []rune(n.Message)
	if previewLen > 0 && len(preview) > previewLen {
		preview = preview[:previewLen]
	}
	return alerts.Toast{
		Title:          toastTitle,
		Description:    fmt.Sprintf("From %s: %s...", n.Name, string(preview)),
		Duration:       duration,
		NotificationID: n.ID,
	}
}

func idOrNew(v interface{}, newID func() string) string {
	if id := models.IDString(v); id != "" && id != "0" {
		return id
	}
	return newID()
}

func firstOr(fallback string, values ...interface{}) string {
	for _, v := range values {
		if s := models.Text(v); s != "" {
			return s
		}
	}
	return fallback
}
