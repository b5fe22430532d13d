package api

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"collabnest/storage"
)

const maxBodySize = 64 * 1024 // 64 KiB

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

// Deduper guards task creation against replayed idempotency keys.
type Deduper interface {
	// Add records the key and returns true if it was newly added.
	Add(ctx context.Context, userID, key string) (bool, error)
	// Remove deletes a previously added key, used when the create fails.
	Remove(ctx context.Context, userID, key string) error
}

// EventSink receives a copy of every published event. storage.QueueSink
// implements it.
type EventSink interface {
	Send(ctx context.Context, room, event string, payload any) error
}

// PublisherConfig sizes the background event publisher.
type PublisherConfig struct {
	Workers        int
	Buffer         int
	PublishTimeout time.Duration
	HandoffTimeout time.Duration
}

// Deps groups what the handlers need. Redis is used for room fan-out and the
// SSE relay; Deduper and Sink are optional. Without Members every
// organization board is forbidden and only personal tasks are served.
type Deps struct {
	Store     storage.Backend
	Members   storage.Members
	Auth      Authenticator
	Deduper   Deduper
	Redis     redis.UniversalClient
	Sink      EventSink
	Publisher PublisherConfig
	Log       *log.Logger
}
