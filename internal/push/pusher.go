package push

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	apperrors "portfolio-sync/internal/common/errors"
	commonhttp "portfolio-sync/internal/common/http"
	"portfolio-sync/internal/common/logger"
)

const (
	pusherProtocol     = 7
	defaultPingPeriod  = 30 * time.Second
	handshakeTimeout   = 10 * time.Second
	authRequestTimeout = 10 * time.Second
	minReconnectDelay  = time.Second
	maxReconnectDelay  = 30 * time.Second
)

// PusherOptions configures PusherClient. URL, when set, overrides the
// address derived from Key, Cluster, Host, Port and TLS.
type PusherOptions struct {
	URL          string
	Key          string
	Cluster      string
	Host         string
	Port         int
	TLS          bool
	AuthEndpoint string
	Token        string
	Namespace    string
	PingInterval time.Duration
	HTTPClient   *commonhttp.Client

	// ReconnectDelay is the first wait after a lost connection. It doubles
	// per failed attempt up to maxReconnectDelay.
	ReconnectDelay time.Duration
}

// pusherEvent is the frame shape in both directions. Data is a JSON string
// when sent by the server, an object when sent by clients.
type pusherEvent struct {
	Event   string          `json:"event"`
	Channel string          `json:"channel,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// PusherClient speaks the Pusher channels protocol over a websocket.
type PusherClient struct {
	opts   PusherOptions
	http   *commonhttp.Client
	logger logger.Logger

	mu       sync.RWMutex
	conn     *websocket.Conn
	socketID string
	handlers handlerSet
	done     chan struct{}
	wg       sync.WaitGroup

	stop     chan struct{}
	stopOnce sync.Once

	writeMu sync.Mutex
}

func NewPusherClient(opts PusherOptions, log logger.Logger) *PusherClient {
	if opts.PingInterval <= 0 {
		opts.PingInterval = defaultPingPeriod
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = minReconnectDelay
	}
	client := opts.HTTPClient
	if client == nil {
		client = commonhttp.NewClient(authRequestTimeout)
	}
	return &PusherClient{
		opts:     opts,
		http:     client,
		logger:   log.With(map[string]interface{}{"component": "push.pusher"}),
		handlers: make(handlerSet),
		stop:     make(chan struct{}),
	}
}

// URL returns the websocket address.
func (p *PusherClient) URL() string {
	if p.opts.URL != "" {
		return p.opts.URL
	}
	scheme := "ws"
	if p.opts.TLS {
		scheme = "wss"
	}
	host := p.opts.Host
	if host == "" {
		host = "ws-" + p.opts.Cluster + ".pusher.com"
	}
	if p.opts.Port > 0 {
		host += ":" + strconv.Itoa(p.opts.Port)
	}
	q := url.Values{}
	q.Set("protocol", strconv.Itoa(pusherProtocol))
	q.Set("client", "portfolio-sync")
	q.Set("flash", "false")
	return fmt.Sprintf("%s://%s/app/%s?%s", scheme, host, p.opts.Key, q.Encode())
}

// Connect dials the server and waits for pusher:connection_established.
// Channels that kept handlers across a lost connection are subscribed again.
func (p *PusherClient) Connect(ctx context.Context) error {
	p.mu.Lock()
	if p.conn != nil {
		p.mu.Unlock()
		return nil
	}
	conn, socketID, err := p.dial(ctx)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	p.installLocked(conn, socketID)
	channels := p.handlers.channels()
	p.mu.Unlock()

	p.resubscribe(ctx, socketID, channels)
	return nil
}

func (p *PusherClient) dial(ctx context.Context) (*websocket.Conn, string, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: handshakeTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, p.URL(), nil)
	if err != nil {
		return nil, "", fmt.Errorf("websocket dial: %w", err)
	}

	socketID, err := awaitEstablished(conn)
	if err != nil {
		conn.Close()
		return nil, "", err
	}
	return conn, socketID, nil
}

func (p *PusherClient) installLocked(conn *websocket.Conn, socketID string) {
	p.conn = conn
	p.socketID = socketID
	p.done = make(chan struct{})

	p.wg.Add(2)
	go p.readLoop(conn, p.done)
	go p.heartbeat(p.done)

	p.logger.Info("push connection established", map[string]interface{}{
		"socketId": socketID,
	})
}

func awaitEstablished(conn *websocket.Conn) (string, error) {
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	defer conn.SetReadDeadline(time.Time{})

	var ev pusherEvent
	if err := conn.ReadJSON(&ev); err != nil {
		return "", fmt.Errorf("read handshake: %w", err)
	}
	if ev.Event == "pusher:error" {
		return "", fmt.Errorf("pusher refused connection: %s", string(ev.Data))
	}
	if ev.Event != "pusher:connection_established" {
		return "", fmt.Errorf("unexpected handshake event %q", ev.Event)
	}
	data, err := decodeData(ev.Data)
	if err != nil {
		return "", err
	}
	socketID, _ := data["socket_id"].(string)
	if socketID == "" {
		return "", fmt.Errorf("handshake missing socket_id")
	}
	return socketID, nil
}

// SocketID returns the id assigned by the server, "" before Connect.
func (p *PusherClient) SocketID() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.socketID
}

func (p *PusherClient) Listen(ctx context.Context, channel, event string, handler Handler) error {
	if err := p.Connect(ctx); err != nil {
		return apperrors.NewPushSubscribeFailedError(channel, err)
	}

	p.mu.Lock()
	first := p.handlers.add(channel, EventName(p.opts.Namespace, event), handler)
	socketID := p.socketID
	p.mu.Unlock()
	if !first {
		return nil
	}

	if err := p.subscribe(ctx, socketID, channel); err != nil {
		p.dropChannel(channel)
		return apperrors.NewPushSubscribeFailedError(channel, err)
	}
	return nil
}

// subscribe sends pusher:subscribe, signing private channels first.
func (p *PusherClient) subscribe(ctx context.Context, socketID, channel string) error {
	sub := map[string]interface{}{"channel": channel}
	if IsPrivate(channel) {
		auth, err := p.authorize(ctx, socketID, channel)
		if err != nil {
			return err
		}
		sub["auth"] = auth
	}
	return p.send("pusher:subscribe", "", sub)
}

// authorize asks the backend to sign the subscription.
func (p *PusherClient) authorize(ctx context.Context, socketID, channel string) (string, error) {
	if p.opts.AuthEndpoint == "" {
		return "", fmt.Errorf("no auth endpoint configured")
	}
	body, err := json.Marshal(map[string]string{
		"socket_id":    socketID,
		"channel_name": channel,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequest(http.MethodPost, p.opts.AuthEndpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if p.opts.Token != "" {
		req.Header.Set("Authorization", "Bearer "+p.opts.Token)
	}

	resp, err := p.http.DoWithContext(ctx, req)
	if err != nil {
		return "", fmt.Errorf("auth request: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("auth endpoint returned %d", resp.StatusCode)
	}
	var out struct {
		Auth string `json:"auth"`
	}
	if err := json.Unmarshal(raw, &out); err != nil || out.Auth == "" {
		return "", fmt.Errorf("auth endpoint returned no signature")
	}
	return out.Auth, nil
}

func (p *PusherClient) Leave(channel string) error {
	p.mu.Lock()
	_, ok := p.handlers[channel]
	delete(p.handlers, channel)
	connected := p.conn != nil
	p.mu.Unlock()

	if !ok || !connected {
		return nil
	}
	return p.send("pusher:unsubscribe", "", map[string]interface{}{"channel": channel})
}

// Close tears the connection down and stops any pending reconnect. The
// client does not reconnect on its own afterwards.
func (p *PusherClient) Close() error {
	p.stopOnce.Do(func() { close(p.stop) })

	p.mu.Lock()
	p.handlers = make(handlerSet)
	conn := p.conn
	if conn == nil {
		p.mu.Unlock()
		p.wg.Wait()
		return nil
	}
	close(p.done)
	p.conn = nil
	p.socketID = ""
	p.mu.Unlock()

	p.writeMu.Lock()
	err := conn.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
	)
	p.writeMu.Unlock()
	conn.Close()
	p.wg.Wait()

	if err != nil {
		return fmt.Errorf("close message: %w", err)
	}
	return nil
}

func (p *PusherClient) dropChannel(channel string) {
	p.mu.Lock()
	delete(p.handlers, channel)
	p.mu.Unlock()
}

func (p *PusherClient) send(event, channel string, data interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	p.mu.RLock()
	conn := p.conn
	p.mu.RUnlock()
	if conn == nil {
		return ErrClosed
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return conn.WriteJSON(pusherEvent{Event: event, Channel: channel, Data: raw})
}

func (p *PusherClient) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer p.wg.Done()
	for {
		var ev pusherEvent
		if err := conn.ReadJSON(&ev); err != nil {
			select {
			case <-done:
			default:
				p.logger.Warn("push connection lost", map[string]interface{}{
					"error": err.Error(),
				})
				p.lost(conn)
			}
			return
		}
		p.handle(ev)
	}
}

// lost forgets a dead connection and starts reconnecting. Handlers are kept
// so their channels can be subscribed again.
func (p *PusherClient) lost(conn *websocket.Conn) {
	p.mu.Lock()
	if p.conn != conn {
		p.mu.Unlock()
		return
	}
	close(p.done)
	p.conn = nil
	p.socketID = ""
	p.wg.Add(1)
	p.mu.Unlock()

	conn.Close()
	go p.reconnect()
}

func (p *PusherClient) reconnect() {
	defer p.wg.Done()
	delay := p.opts.ReconnectDelay

	for attempt := 1; ; attempt++ {
		timer := time.NewTimer(delay)
		select {
		case <-p.stop:
			timer.Stop()
			return
		case <-timer.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), handshakeTimeout)
		err := p.redial(ctx)
		cancel()
		if err == nil || errors.Is(err, ErrClosed) {
			return
		}
		p.logger.Warn("push reconnect failed", map[string]interface{}{
			"attempt": attempt,
			"error":   err.Error(),
		})
		if delay *= 2; delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

// redial opens a fresh connection and subscribes every channel that still
// has handlers.
func (p *PusherClient) redial(ctx context.Context) error {
	conn, socketID, err := p.dial(ctx)
	if err != nil {
		return err
	}

	p.mu.Lock()
	select {
	case <-p.stop:
		p.mu.Unlock()
		conn.Close()
		return ErrClosed
	default:
	}
	if p.conn != nil {
		// Connect got there first and resubscribed
		p.mu.Unlock()
		conn.Close()
		return nil
	}
	p.installLocked(conn, socketID)
	channels := p.handlers.channels()
	p.mu.Unlock()

	p.resubscribe(ctx, socketID, channels)
	return nil
}

func (p *PusherClient) resubscribe(ctx context.Context, socketID string, channels []string) {
	for _, channel := range channels {
		if err := p.subscribe(ctx, socketID, channel); err != nil {
			p.logger.Warn("resubscribe failed", map[string]interface{}{
				"channel": channel,
				"error":   err.Error(),
			})
		}
	}
}

func (p *PusherClient) handle(ev pusherEvent) {
	switch ev.Event {
	case "pusher:ping":
		_ = p.send("pusher:pong", "", map[string]interface{}{})
		return
	case "pusher:pong":
		return
	case "pusher:error":
		p.logger.Warn("pusher error", map[string]interface{}{"data": string(ev.Data)})
		return
	case "pusher_internal:subscription_succeeded":
		p.logger.Debug("subscription confirmed", map[string]interface{}{"channel": ev.Channel})
		return
	}

	payload, err := decodeData(ev.Data)
	if err != nil {
		p.logger.Warn("dropping event with invalid data", map[string]interface{}{
			"channel": ev.Channel,
			"event":   ev.Event,
			"error":   err.Error(),
		})
		return
	}

	p.mu.RLock()
	handlers := p.handlers.lookup(ev.Channel, ev.Event)
	p.mu.RUnlock()

	for _, h := range handlers {
		h(payload)
	}
}

func (p *PusherClient) heartbeat(done chan struct{}) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := p.send("pusher:ping", "", map[string]interface{}{}); err != nil {
				p.logger.Debug("ping failed", map[string]interface{}{"error": err.Error()})
			}
		}
	}
}
