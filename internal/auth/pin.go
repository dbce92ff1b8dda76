package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/screen3/screen3/internal/events"
	"github.com/screen3/screen3/internal/httputil"
)

const (
	PinLength      = 6
	PinTTL         = 10 * time.Minute
	MaxPinAttempts = 5
)

var (
	ErrPinNotFound = errors.New("pin not found")
	ErrPinMismatch = errors.New("pin does not match")
)

// PinStore keeps one-time login PINs keyed by e-mail.
type PinStore interface {
	Save(ctx context.Context, email, pin string) error
	// Verify consumes the PIN on success. A PIN that fails MaxPinAttempts
	// times is discarded.
	Verify(ctx context.Context, email, pin string) error
}

type RedisPinStore struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRedisPinStore(client redis.Cmdable) *RedisPinStore {
	return &RedisPinStore{client: client, ttl: PinTTL}
}

func pinKey(email string) string      { return "pin:" + email }
func attemptsKey(email string) string { return "pin:" + email + ":attempts" }

func (s *RedisPinStore) Save(ctx context.Context, email, pin string) error {
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, pinKey(email), pin, s.ttl)
		p.Del(ctx, attemptsKey(email))
		return nil
	})
	if err != nil {
		return fmt.Errorf("save pin: %w", err)
	}
	return nil
}

func (s *RedisPinStore) Verify(ctx context.Context, email, pin string) error {
	stored, err := s.client.Get(ctx, pinKey(email)).Result()
	if errors.Is(err, redis.Nil) {
		return ErrPinNotFound
	}
	if err != nil {
		return fmt.Errorf("load pin: %w", err)
	}

	if subtle.ConstantTimeCompare([]byte(stored), []byte(pin)) == 1 {
		if err := s.client.Del(ctx, pinKey(email), attemptsKey(email)).Err(); err != nil {
			return fmt.Errorf("consume pin: %w", err)
		}
		return nil
	}

	attempts, err := s.client.Incr(ctx, attemptsKey(email)).Result()
	if err != nil {
		return fmt.Errorf("count pin attempt: %w", err)
	}
	if attempts == 1 {
		if err := s.client.Expire(ctx, attemptsKey(email), s.ttl).Err(); err != nil {
			return fmt.Errorf("expire pin attempts: %w", err)
		}
	}
	if attempts >= MaxPinAttempts {
		if err := s.client.Del(ctx, pinKey(email), attemptsKey(email)).Err(); err != nil {
			return fmt.Errorf("discard pin: %w", err)
		}
	}
	return ErrPinMismatch
}

func generatePin() (string, error) {
	max := big.NewInt(1)
	for range PinLength {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", PinLength, n.Int64()), nil
}

type pinRequest struct {
	Email string `json:"email"`
}

type verifyPinRequest struct {
	Email string `json:"email"`
	Pin   string `json:"pin"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// RequestPin always answers 202 so the endpoint cannot be used to probe
// which addresses have accounts.
func (h *Handler) RequestPin(w http.ResponseWriter, r *http.Request) {
	var req pinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" {
		httputil.WriteError(w, http.StatusBadRequest, "email is required")
		return
	}

	accepted := messageResponse{Message: "if an account exists, a login pin has been sent"}

	if h.pins == nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, "pin login is not available")
		return
	}

	var user User
	err := h.db.QueryRow(r.Context(),
		"SELECT id, firstname, lastname, email FROM users WHERE email = $1", req.Email,
	).Scan(&user.ID, &user.Firstname, &user.Lastname, &user.Email)
	if err != nil {
		httputil.WriteJSON(w, http.StatusAccepted, accepted)
		return
	}
	user.FullName = fullName(user.Firstname, user.Lastname)

	pin, err := generatePin()
	if err != nil {
		slog.Error("pin: failed to generate", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to generate pin")
		return
	}

	if err := h.pins.Save(r.Context(), user.Email, pin); err != nil {
		slog.Error("pin: failed to store", "user_id", user.ID, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to generate pin")
		return
	}

	h.emit(events.SendPin{User: eventUser(user), Pin: pin})
	httputil.WriteJSON(w, http.StatusAccepted, accepted)
}

func (h *Handler) VerifyPin(w http.ResponseWriter, r *http.Request) {
	var req verifyPinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Pin = strings.TrimSpace(req.Pin)
	if req.Email == "" || req.Pin == "" {
		httputil.WriteError(w, http.StatusBadRequest, "email and pin are required")
		return
	}

	if h.pins == nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, "pin login is not available")
		return
	}

	if err := h.pins.Verify(r.Context(), req.Email, req.Pin); err != nil {
		if !errors.Is(err, ErrPinNotFound) && !errors.Is(err, ErrPinMismatch) {
			slog.Error("pin: failed to verify", "error", err)
		}
		httputil.WriteError(w, http.StatusUnauthorized, "invalid or expired pin")
		return
	}

	var userID string
	if err := h.db.QueryRow(r.Context(), "SELECT id FROM users WHERE email = $1", req.Email).Scan(&userID); err != nil {
		httputil.WriteError(w, http.StatusUnauthorized, "invalid or expired pin")
		return
	}

	h.completeLogin(w, r, userID)
}
