// Package notifications keeps the admin contact-message feed in sync with
// the backend through polling and push events.
package notifications

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"portfolio-sync/internal/alerts"
	"portfolio-sync/internal/api"
	apperrors "portfolio-sync/internal/common/errors"
	"portfolio-sync/internal/common/logger"
	"portfolio-sync/internal/common/metrics"
	"portfolio-sync/internal/common/observability"
	"portfolio-sync/internal/common/validation"
	"portfolio-sync/internal/models"
	"portfolio-sync/internal/push"
)

// Phase of the bound session.
type Phase string

const (
	PhaseInactive     Phase = "inactive"
	PhaseInitializing Phase = "initializing"
	PhaseActive       Phase = "active"
)

// Event sources, used as metric labels.
const (
	SourcePoll   = "poll"
	SourcePush   = "push"
	SourceManual = "manual"
)

// ChannelSource yields the live push channel, or nil when none is open.
type ChannelSource interface {
	Channel() push.Channel
}

type Options struct {
	PollInterval time.Duration
	ListPath     string
	ReadPath     string
	DeletePath   string

	PrivateChannelPrefix string
	BroadcastChannel     string
	NotificationEvent    string
	MessageEvents        []string

	ToastPreview  int
	ToastDuration time.Duration

	Push          ChannelSource
	Notifier      alerts.Notifier
	Validator     *validation.SchemaValidator
	Observability *observability.Observability
	Now           func() time.Time
	NewID         func() string
}

func (o *Options) applyDefaults() {
	if o.PollInterval <= 0 {
		o.PollInterval = 15 * time.Second
	}
	if o.ListPath == "" {
		o.ListPath = api.ContactListPath
	}
	if o.ReadPath == "" {
		o.ReadPath = api.ContactReadPath
	}
	if o.DeletePath == "" {
		o.DeletePath = api.ContactDeletePath
	}
	if o.PrivateChannelPrefix == "" {
		o.PrivateChannelPrefix = "App.Models.User."
	}
	if o.BroadcastChannel == "" {
		o.BroadcastChannel = "messages"
	}
	if o.NotificationEvent == "" {
		o.NotificationEvent = `.Illuminate\Notifications\Events\BroadcastNotificationCreated`
	}
	if len(o.MessageEvents) == 0 {
		o.MessageEvents = []string{".MessageSent", "MessageSent"}
	}
	if o.ToastPreview <= 0 {
		o.ToastPreview = 40
	}
	if o.ToastDuration <= 0 {
		o.ToastDuration = 6 * time.Second
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.NewID == nil {
		o.NewID = uuid.NewString
	}
}

// Synchronizer owns the feed for at most one bound principal.
type Synchronizer struct {
	client api.Client
	opts   Options
	logger logger.Logger

	sessionMu sync.Mutex
	refreshMu sync.Mutex

	mu        sync.Mutex
	phase     Phase
	principal *models.Principal
	gen       uint64
	feed      *feed
	loading   bool
	hasLoaded bool
	channels  []string
	channel   push.Channel
	cancel    context.CancelFunc
	sessCtx   context.Context

	wg sync.WaitGroup
}

func NewSynchronizer(client api.Client, opts Options, log logger.Logger) *Synchronizer {
	opts.applyDefaults()
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Synchronizer{
		client: client,
		opts:   opts,
		logger: log.With(map[string]interface{}{"component": "notifications"}),
		phase:  PhaseInactive,
		feed:   newFeed(),
	}
}

// Bind starts a session for principal: push subscriptions, one non-silent
// refresh, then the poll loop. Binding the already bound principal is a
// no-op; binding another one replaces the session. A nil principal unbinds.
// The initial refresh error is returned but the session stays bound.
func (s *Synchronizer) Bind(ctx context.Context, principal *models.Principal) error {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()

	if principal == nil || principal.ID == "" {
		s.unbind()
		return nil
	}

	s.mu.Lock()
	if s.principal != nil && s.principal.ID == principal.ID {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()
	s.unbind()

	sessCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	s.mu.Lock()
	s.gen++
	gen := s.gen
	p := *principal
	s.principal = &p
	s.phase = PhaseInitializing
	s.feed = newFeed()
	s.loading = false
	s.hasLoaded = false
	s.cancel = cancel
	s.sessCtx = sessCtx
	s.mu.Unlock()

	s.logger.Info("binding notification session", map[string]interface{}{
		"principalId": principal.ID,
	})

	s.subscribe(ctx, gen, principal.ID)
	err := s.refresh(ctx, gen, false, SourceManual)
	if err != nil {
		s.logger.Warn("initial notification refresh failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	s.mu.Lock()
	if s.gen == gen {
		s.phase = PhaseActive
		s.wg.Add(1)
		go s.pollLoop(sessCtx, gen)
	}
	s.mu.Unlock()
	return err
}

// Unbind tears the session down and waits for its goroutines to exit.
func (s *Synchronizer) Unbind() {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()
	s.unbind()
}

func (s *Synchronizer) unbind() {
	s.mu.Lock()
	if s.principal == nil {
		s.mu.Unlock()
		return
	}
	s.gen++
	id := s.principal.ID
	s.principal = nil
	s.phase = PhaseInactive
	s.feed = newFeed()
	s.loading = false
	s.hasLoaded = false
	cancel := s.cancel
	s.cancel = nil
	s.sessCtx = nil
	ch, channels := s.channel, s.channels
	s.channel, s.channels = nil, nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if ch != nil {
		for _, name := range channels {
			if err := ch.Leave(name); err != nil {
				s.logger.Warn("leaving push channel failed", map[string]interface{}{
					"channel": name,
					"error":   err.Error(),
				})
			}
		}
	}
	s.wg.Wait()
	metrics.NotificationsUnread.Set(0)

	s.logger.Info("notification session unbound", map[string]interface{}{
		"principalId": id,
	})
}

func (s *Synchronizer) subscribe(ctx context.Context, gen uint64, principalID string) {
	if s.opts.Push == nil {
		return
	}
	ch := s.opts.Push.Channel()
	if ch == nil {
		return
	}

	handler := func(p map[string]interface{}) { s.handlePush(gen, p) }
	private := push.PrivateChannel(s.opts.PrivateChannelPrefix + principalID)

	type binding struct{ channel, event string }
	bindings := []binding{{private, s.opts.NotificationEvent}}
	for _, ev := range s.opts.MessageEvents {
		bindings = append(bindings, binding{private, ev})
	}
	for _, ev := range s.opts.MessageEvents {
		bindings = append(bindings, binding{s.opts.BroadcastChannel, ev})
	}

	subscribed := map[string]bool{}
	var channels []string
	for _, b := range bindings {
		if err := ch.Listen(ctx, b.channel, b.event, handler); err != nil {
			s.logger.Warn("push subscription failed, relying on polling", map[string]interface{}{
				"channel": b.channel,
				"event":   b.event,
				"error":   err.Error(),
			})
			continue
		}
		if !subscribed[b.channel] {
			subscribed[b.channel] = true
			channels = append(channels, b.channel)
		}
	}

	s.mu.Lock()
	if s.gen == gen {
		s.channel = ch
		s.channels = channels
	}
	s.mu.Unlock()
}

func (s *Synchronizer) pollLoop(ctx context.Context, gen uint64) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.refresh(ctx, gen, true, SourcePoll); err != nil && ctx.Err() == nil {
				s.logger.Warn("notification poll failed", map[string]interface{}{
					"error": err.Error(),
				})
			}
		}
	}
}

// Refresh refetches the feed for the bound session. Without a session it
// does nothing. On failure the feed is left unchanged.
func (s *Synchronizer) Refresh(ctx context.Context, silent bool) error {
	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()
	return s.refresh(ctx, gen, silent, SourceManual)
}

func (s *Synchronizer) refresh(ctx context.Context, gen uint64, silent bool, source string) error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	s.mu.Lock()
	if gen != s.gen || s.principal == nil {
		s.mu.Unlock()
		return nil
	}
	if !silent && !s.hasLoaded {
		s.loading = true
	}
	s.mu.Unlock()

	raw, err := api.Get(ctx, s.client, s.opts.ListPath)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return nil
	}
	if !s.hasLoaded {
		s.loading = false
		s.hasLoaded = true
	}
	if err != nil {
		s.record(ctx, source, "failed")
		return err
	}

	now := s.opts.Now()
	rawItems := extractFeedItems(raw)
	items := make([]models.Notification, 0, len(rawItems))
	for _, item := range rawItems {
		items = append(items, normalizeItem(item, now, s.opts.NewID))
	}
	s.feed.replace(items)
	s.record(ctx, source, "replaced")
	metrics.NotificationsUnread.Set(float64(s.feed.unread()))
	return nil
}

// handlePush merges one push payload into the session it was subscribed for.
func (s *Synchronizer) handlePush(gen uint64, payload map[string]interface{}) {
	s.mu.Lock()
	if gen != s.gen || s.sessCtx == nil {
		s.mu.Unlock()
		return
	}
	ctx := s.sessCtx

	if reason, ok := s.checkPush(payload); !ok {
		s.mu.Unlock()
		s.record(ctx, SourcePush, "invalid")
		s.logger.Warn("dropping invalid push payload", map[string]interface{}{
			"error": apperrors.NewPushPayloadInvalidError(reason).Error(),
		})
		return
	}

	if isRefreshSignal(payload) {
		s.wg.Add(1)
		s.mu.Unlock()
		s.record(ctx, SourcePush, "refresh")
		go func() {
			defer s.wg.Done()
			if err := s.refresh(ctx, gen, true, SourcePush); err != nil && ctx.Err() == nil {
				s.logger.Warn("push-triggered refresh failed", map[string]interface{}{
					"error": err.Error(),
				})
			}
		}()
		return
	}

	n := normalizePush(pushCandidate(payload), s.opts.Now(), s.opts.NewID)
	added, unread := s.feed.insert(n)
	if !added {
		s.mu.Unlock()
		s.record(ctx, SourcePush, "duplicate")
		return
	}
	metrics.NotificationsUnread.Set(float64(s.feed.unread()))

	notify := unread && s.opts.Notifier != nil
	if notify {
		s.wg.Add(1)
	}
	s.mu.Unlock()
	s.record(ctx, SourcePush, "inserted")

	if notify {
		toast := buildToast(n, s.opts.ToastPreview, s.opts.ToastDuration)
		go func() {
			defer s.wg.Done()
			if err := s.opts.Notifier.Notify(ctx, toast); err != nil {
				s.logger.Warn("toast delivery failed", map[string]interface{}{
					"notificationId": n.ID,
					"error":          err.Error(),
				})
			}
		}()
	}
}

// checkPush rejects payloads that are not objects. Field types are not
// checked; normalizePush coerces or defaults them.
func (s *Synchronizer) checkPush(payload map[string]interface{}) (string, bool) {
	if s.opts.Validator != nil {
		if result := s.opts.Validator.Validate(payload); !result.Valid {
			return strings.Join(result.GetErrorMessages(), "; "), false
		}
		return "", true
	}
	if payload == nil {
		return "payload is not an object", false
	}
	return "", true
}

// MarkRead marks id read on the backend, then locally. On failure the feed
// is unchanged.
func (s *Synchronizer) MarkRead(ctx context.Context, id string) error {
	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()

	if _, err := api.Patch(ctx, s.client, api.JoinID(s.opts.ReadPath, id), nil); err != nil {
		return apperrors.NewMutationFailedError("mark_read", id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return nil
	}
	s.feed.markRead(id)
	metrics.NotificationsUnread.Set(float64(s.feed.unread()))
	return nil
}

// Delete removes id on the backend, then locally.
func (s *Synchronizer) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()

	if _, err := api.Delete(ctx, s.client, api.JoinID(s.opts.DeletePath, id)); err != nil {
		return apperrors.NewMutationFailedError("delete", id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return nil
	}
	s.feed.remove(id)
	metrics.NotificationsUnread.Set(float64(s.feed.unread()))
	return nil
}

// MarkAllRead marks every item read locally. Later refreshes keep them read.
func (s *Synchronizer) MarkAllRead() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feed.markAllRead()
	metrics.NotificationsUnread.Set(0)
}

func (s *Synchronizer) State() FeedState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.feed.state()
}

// Loading reports whether the first non-silent refresh is in flight.
func (s *Synchronizer) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

func (s *Synchronizer) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Principal returns a copy of the bound principal, or nil.
func (s *Synchronizer) Principal() *models.Principal {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.principal == nil {
		return nil
	}
	p := *s.principal
	return &p
}

func (s *Synchronizer) record(ctx context.Context, source, outcome string) {
	metrics.NotificationEvents.WithLabelValues(source, outcome).Inc()
	s.opts.Observability.RecordNotificationEvent(ctx, source, outcome)
}
