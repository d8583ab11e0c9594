// Package auth tracks the admin session: token, principal and the push
// connection tied to that token.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"portfolio-sync/internal/api"
	apperrors "portfolio-sync/internal/common/errors"
	"portfolio-sync/internal/common/logger"
	"portfolio-sync/internal/models"
	"portfolio-sync/internal/push"
)

// Connector opens and drops the push connection for a token. push.Manager
// implements it.
type Connector interface {
	Connect(ctx context.Context, token string) (push.Channel, error)
	Disconnect()
}

// PrincipalObserver is told about every principal change. nil means logged
// out.
type PrincipalObserver func(ctx context.Context, principal *models.Principal)

// LoginError is returned when the backend rejects a login.
type LoginError struct {
	Message     string
	FieldErrors map[string]string
	Err         error
}

func (e *LoginError) Error() string {
	return fmt.Sprintf("login failed: %s", e.Message)
}

func (e *LoginError) Unwrap() error { return e.Err }

type Session struct {
	client    api.Client
	tokens    api.TokenStore
	connector Connector
	logger    logger.Logger

	mu        sync.Mutex
	principal *models.Principal
	observers []PrincipalObserver
}

func NewSession(client api.Client, tokens api.TokenStore, connector Connector, log logger.Logger) *Session {
	return &Session{
		client:    client,
		tokens:    tokens,
		connector: connector,
		logger:    log.WithFields(map[string]interface{}{"component": "auth"}),
	}
}

// OnPrincipalChange registers fn for later changes.
func (s *Session) OnPrincipalChange(fn PrincipalObserver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

// Principal returns the logged-in user or nil.
func (s *Session) Principal() *models.Principal {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.principal == nil {
		return nil
	}
	p := *s.principal
	return &p
}

// Authenticated reports whether a principal or at least a token is present.
func (s *Session) Authenticated() bool {
	return s.Principal() != nil || s.tokens.Token() != ""
}

// CheckAuth restores the session from a stored token. Without a token it
// returns nil, nil. On failure the principal is cleared.
func (s *Session) CheckAuth(ctx context.Context) (*models.Principal, error) {
	token := s.tokens.Token()
	if token == "" {
		return nil, nil
	}
	s.connect(ctx, token)

	resp, err := api.Get(ctx, s.client, api.UserPath)
	if err != nil {
		s.setPrincipal(ctx, nil)
		return nil, err
	}

	p := principalFrom(firstObject(dig(resp, "data", "user"), dig(resp, "user"), dig(resp, "data"), resp))
	s.setPrincipal(ctx, p)
	return p, nil
}

// Login authenticates with email and password. A rejected login returns a
// *LoginError carrying the backend message and any field errors.
func (s *Session) Login(ctx context.Context, email, password string) (*models.Principal, error) {
	resp, err := api.Post(ctx, s.client, api.LoginPath, map[string]interface{}{
		"email":    email,
		"password": password,
	})
	if err != nil {
		le := &LoginError{Message: err.Error(), Err: err}
		var se *apperrors.StandardError
		if errors.As(err, &se) {
			le.Message = se.Message
		}
		if apiErr, ok := api.AsAPIError(err); ok {
			le.Message = apiErr.Message()
			le.FieldErrors = apiErr.FieldErrors()
		}
		return nil, le
	}

	token := firstString(dig(resp, "token"), dig(resp, "access_token"), dig(resp, "data", "token"), dig(resp, "data", "access_token"))
	if token != "" {
		s.tokens.SetToken(token)
		s.connect(ctx, token)
	}

	user := firstObject(dig(resp, "user"), dig(resp, "data", "user"), dig(resp, "data"))
	success := true
	if obj, ok := resp.(map[string]interface{}); ok {
		if v, present := obj["success"]; present && v != nil {
			success = models.Truthy(v)
		}
	}

	if user == nil || !success {
		msg := models.Text(dig(resp, "message"))
		if msg == "" {
			msg = "Login failed"
		}
		return nil, &LoginError{
			Message:     msg,
			FieldErrors: api.ExtractFieldErrors(resp),
			Err:         apperrors.NewInvalidCredentialsError(msg),
		}
	}

	p := principalFrom(user)
	s.setPrincipal(ctx, p)
	s.logger.Info("logged in", map[string]interface{}{"principalId": p.ID})
	return p, nil
}

// Logout ends the session. The backend call is best effort; local state is
// always cleared.
func (s *Session) Logout(ctx context.Context) {
	if _, err := api.Delete(ctx, s.client, api.LogoutPath); err != nil {
		s.logger.Debug("logout request failed", map[string]interface{}{"error": err.Error()})
	}
	s.setPrincipal(ctx, nil)
	if s.connector != nil {
		s.connector.Disconnect()
	}
	s.tokens.ClearToken()
	s.logger.Info("logged out", nil)
}

func (s *Session) connect(ctx context.Context, token string) {
	if s.connector == nil {
		return
	}
	if _, err := s.connector.Connect(ctx, token); err != nil {
		s.logger.Warn("push connection failed, notifications will poll only", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func (s *Session) setPrincipal(ctx context.Context, p *models.Principal) {
	s.mu.Lock()
	prev := s.principal
	s.principal = p
	observers := append([]PrincipalObserver(nil), s.observers...)
	s.mu.Unlock()

	if samePrincipal(prev, p) {
		return
	}
	for _, fn := range observers {
		if p == nil {
			fn(ctx, nil)
			continue
		}
		cp := *p
		fn(ctx, &cp)
	}
}

func samePrincipal(a, b *models.Principal) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.ID == b.ID
}

// principalFrom keeps id-less users too; they simply cannot key a
// notification session.
func principalFrom(m map[string]interface{}) *models.Principal {
	if m == nil {
		return nil
	}
	if p := models.PrincipalFromRecord(m); p != nil {
		return p
	}
	return &models.Principal{Name: models.Text(m["name"]), Email: models.Text(m["email"]), Raw: m}
}

func dig(v interface{}, path ...string) interface{} {
	for _, key := range path {
		obj, ok := v.(map[string]interface{})
		if !ok {
			return nil
		}
		v = obj[key]
	}
	return v
}

func firstObject(values ...interface{}) map[string]interface{} {
	for _, v := range values {
		if m, ok := v.(map[string]interface{}); ok && len(m) > 0 {
			return m
		}
	}
	return nil
}

func firstString(values ...interface{}) string {
	for _, v := range values {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return ""
}
