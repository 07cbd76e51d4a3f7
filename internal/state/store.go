package state

import (
	"context"
	"errors"
	"time"

	"github.com/matst80/rfbhost/internal/obs"
)

// ErrDuplicate is returned when a session id is registered twice.
var ErrDuplicate = errors.New("state: session already registered")

// Record describes one live client session.
type Record struct {
	ID          string    `json:"id"`
	Display     int       `json:"display"`
	DisplayName string    `json:"display_name"`
	Remote      string    `json:"remote"`
	Started     time.Time `json:"started"`
	Instance    string    `json:"instance,omitempty"`
}

// Stats is a point-in-time summary of a store.
type Stats struct {
	Active int   `json:"active"`
	Total  int64 `json:"total"`
}

// Store mirrors the hosts' session registries so status endpoints and other
// instances can see who is connected.
type Store interface {
	Register(ctx context.Context, rec Record) error
	Remove(ctx context.Context, id string) error
	List(ctx context.Context) ([]Record, error)
	SetClosing(closing bool)
	SetReady(ready bool)
	IsClosing() bool
	IsReady() bool
	Stats() Stats
	Close() error
}

// New creates either an in-memory or Redis-backed store.
func New(redisAddr, redisPassword string, redisDB int) (Store, error) {
	if redisAddr == "" {
		obs.Info("state.backend", obs.Fields{"type": "in-memory"})
		return NewMemory(), nil
	}
	obs.Info("state.backend", obs.Fields{"type": "redis", "addr": redisAddr})
	r, err := NewRedis(redisAddr, redisPassword, redisDB)
	if err != nil {
		return nil, err
	}
	return r, nil
}
