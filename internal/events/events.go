// Package events is a small in-process publish/subscribe bus for domain
// events raised by HTTP handlers.
package events

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	UserCreatedName = "user.created"
	SendPinName     = "user.send_pin"
	VideoStoredName = "video.stored"
)

type Event interface {
	EventName() string
}

// User is the public part of a user carried by events.
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Firstname string `json:"firstname"`
	Lastname  string `json:"lastname"`
	FullName  string `json:"fullName"`
}

type UserCreated struct {
	User User
}

func (UserCreated) EventName() string { return UserCreatedName }

type SendPin struct {
	User User
	Pin  string
}

func (SendPin) EventName() string { return SendPinName }

type VideoStored struct {
	VideoID   string
	CreatorID string
	Title     string
}

func (VideoStored) EventName() string { return VideoStoredName }

type Listener interface {
	Handle(ctx context.Context, e Event) error
}

type ListenerFunc func(ctx context.Context, e Event) error

func (f ListenerFunc) Handle(ctx context.Context, e Event) error { return f(ctx, e) }

// Publisher is what handlers depend on.
type Publisher interface {
	Emit(e Event)
}

// Emitter runs every listener registered for an event name in its own
// goroutine. Listener errors are logged, never returned to the emitter.
type Emitter struct {
	mu        sync.RWMutex
	listeners map[string][]Listener
	timeout   time.Duration
	wg        sync.WaitGroup
}

func NewEmitter(timeout time.Duration) *Emitter {
	return &Emitter{listeners: make(map[string][]Listener), timeout: timeout}
}

func (em *Emitter) Listen(name string, l Listener) {
	em.mu.Lock()
	defer em.mu.Unlock()
	em.listeners[name] = append(em.listeners[name], l)
}

func (em *Emitter) Emit(e Event) {
	em.mu.RLock()
	listeners := append([]Listener(nil), em.listeners[e.EventName()]...)
	em.mu.RUnlock()

	for _, l := range listeners {
		em.wg.Add(1)
		go func(l Listener) {
			defer em.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), em.timeout)
			defer cancel()
			if err := l.Handle(ctx, e); err != nil {
				slog.Error("events: listener failed", "event", e.EventName(), "error", err)
			}
		}(l)
	}
}

// Wait blocks until in-flight listeners return or ctx is done.
func (em *Emitter) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		em.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
