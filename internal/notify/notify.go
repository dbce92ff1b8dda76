// Package notify connects domain events to outbound notifications.
package notify

import (
	"context"
	"fmt"

	"github.com/screen3/screen3/internal/events"
)

type Mailer interface {
	SendPin(ctx context.Context, toEmail, toName, pin string) error
	SendWelcome(ctx context.Context, toEmail, toName string) error
}

type Subscriber interface {
	Listen(name string, l events.Listener)
}

// Register subscribes the mailer to the events that produce e-mail.
func Register(sub Subscriber, mailer Mailer) {
	sub.Listen(events.SendPinName, events.ListenerFunc(func(ctx context.Context, e events.Event) error {
		ev, ok := e.(events.SendPin)
		if !ok {
			return fmt.Errorf("unexpected event %T", e)
		}
		return mailer.SendPin(ctx, ev.User.Email, ev.User.FullName, ev.Pin)
	}))

	sub.Listen(events.UserCreatedName, events.ListenerFunc(func(ctx context.Context, e events.Event) error {
		ev, ok := e.(events.UserCreated)
		if !ok {
			return fmt.Errorf("unexpected event %T", e)
		}
		return mailer.SendWelcome(ctx, ev.User.Email, ev.User.FullName)
	}))
}
