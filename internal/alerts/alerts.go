// Package alerts delivers new-message toasts to whatever surfaces are
// configured: the log, an SNS topic, an SES mailbox.
package alerts

import (
	"context"
	"errors"
	"time"
)

// Toast is a transient user-facing alert.
type Toast struct {
	Title          string        `json:"title"`
	Description    string        `json:"description"`
	Duration       time.Duration `json:"duration"`
	NotificationID string        `json:"notification_id,omitempty"`
}

type Notifier interface {
	Notify(ctx context.Context, toast Toast) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, toast Toast) error

func (f NotifierFunc) Notify(ctx context.Context, toast Toast) error {
	return f(ctx, toast)
}

// Multi fans a toast out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, toast Toast) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, toast); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
