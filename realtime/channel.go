package realtime

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
)

// Handler receives the raw data of one event.
type Handler func(data []byte)

type HandlerID uint64

// Channel is a persistent, room-based event connection.
type Channel interface {
	// Register announces the user so user-addressed events are delivered.
	Register(ctx context.Context, userID string) error
	Join(ctx context.Context, room string) error
	Emit(ctx context.Context, event string, payload any) error
	On(event string, h Handler) HandlerID
	Off(event string, id HandlerID)
	Disconnect()
}

var ErrNotConnected = errors.New("realtime channel not connected")

// Envelope is the wire form of every room message.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func UserRoom(userID string) string { return "user:" + userID }

func OrgRoom(organization string) string { return "org:" + organization }

// Encode builds the envelope bytes for event.
func Encode(event string, payload any) ([]byte, error) {
	data, err := sonic.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return sonic.Marshal(Envelope{Event: event, Data: data})
}

// Publish sends one event to a room.
func Publish(ctx context.Context, rc redis.UniversalClient, room, event string, payload any) error {
	msg, err := Encode(event, payload)
	if err != nil {
		return err
	}
	return rc.Publish(ctx, room, msg).Err()
}
