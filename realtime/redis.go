package realtime

import (
	"context"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

type registration struct {
	id HandlerID
	h  Handler
}

// RedisChannel implements Channel on Redis pub/sub. Each room is a Redis
// channel; a single goroutine per connection dispatches messages in receipt
// order. A disconnected RedisChannel can be registered again.
type RedisChannel struct {
	rc  *redis.Client
	log log.FieldLogger

	mu       sync.Mutex
	pubsub   *redis.PubSub
	rooms    []string
	handlers map[string][]registration
	nextID   HandlerID
}

func NewRedisChannel(rc *redis.Client, logger log.FieldLogger) *RedisChannel {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &RedisChannel{rc: rc, log: logger, handlers: make(map[string][]registration)}
}

func (c *RedisChannel) Register(ctx context.Context, userID string) error {
	return c.Join(ctx, UserRoom(userID))
}

func (c *RedisChannel) Join(ctx context.Context, room string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range c.rooms {
		if r == room {
			return nil
		}
	}
	if c.pubsub == nil {
		ps := c.rc.Subscribe(ctx, room)
		// Wait for the subscription confirmation so nothing published after
		// Join returns is missed.
		if _, err := ps.Receive(ctx); err != nil {
			_ = ps.Close()
			return err
		}
		c.pubsub = ps
		go c.receive(ps.Channel())
	} else if err := c.pubsub.Subscribe(ctx, room); err != nil {
		return err
	}
	c.rooms = append(c.rooms, room)
	return nil
}

// Emit publishes to every joined room.
func (c *RedisChannel) Emit(ctx context.Context, event string, payload any) error {
	c.mu.Lock()
	rooms := append([]string(nil), c.rooms...)
	c.mu.Unlock()
	if len(rooms) == 0 {
		return ErrNotConnected
	}
	msg, err := Encode(event, payload)
	if err != nil {
		return err
	}
	for _, room := range rooms {
		if err := c.rc.Publish(ctx, room, msg).Err(); err != nil {
			return err
		}
	}
	return nil
}

func (c *RedisChannel) On(event string, h Handler) HandlerID {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	c.handlers[event] = append(c.handlers[event], registration{id: c.nextID, h: h})
	return c.nextID
}

func (c *RedisChannel) Off(event string, id HandlerID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	regs := c.handlers[event]
	for i, r := range regs {
		if r.id == id {
			c.handlers[event] = append(regs[:i:i], regs[i+1:]...)
			break
		}
	}
	if len(c.handlers[event]) == 0 {
		delete(c.handlers, event)
	}
}

// Disconnect closes the subscription and drops every handler.
func (c *RedisChannel) Disconnect() {
	c.mu.Lock()
	ps := c.pubsub
	c.pubsub = nil
	c.rooms = nil
	c.handlers = make(map[string][]registration)
	c.mu.Unlock()
	if ps != nil {
		if err := ps.Close(); err != nil {
			c.log.WithError(err).Debug("close pubsub")
		}
	}
}

func (c *RedisChannel) receive(ch <-chan *redis.Message) {
	for msg := range ch {
		var env Envelope
		if err := sonic.UnmarshalString(msg.Payload, &env); err != nil || env.Event == "" {
			c.log.WithField("room", msg.Channel).Warn("unable to parse realtime message")
			continue
		}
		c.mu.Lock()
		regs := append([]registration(nil), c.handlers[env.Event]...)
		c.mu.Unlock()
		for _, r := range regs {
			r.h(env.Data)
		}
	}
}
