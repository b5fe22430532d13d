package realtime

import (
	"context"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"collabnest/domain"
)

var taskEvents = []string{domain.TaskCreatedEvent, domain.TaskUpdatedEvent, domain.TaskDeletedEvent}

// Session ties a Channel to a Reconciler for the lifetime of one mounted
// board view.
type Session struct {
	ch  Channel
	rec *Reconciler
	log log.FieldLogger

	mu       sync.Mutex
	mounted  bool
	gen      uint64
	handlers map[string]HandlerID
}

func NewSession(ch Channel, rec *Reconciler, logger log.FieldLogger) *Session {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Session{ch: ch, rec: rec, log: logger, handlers: make(map[string]HandlerID)}
}

// Mount registers userID, joins the organization room (if any) and subscribes
// the task handlers. A previous mount is torn down first, so handlers are
// never duplicated.
func (s *Session) Mount(ctx context.Context, userID, organization string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mounted {
		s.teardownLocked()
	}
	s.gen++
	gen := s.gen

	if err := s.ch.Register(ctx, userID); err != nil {
		return fmt.Errorf("register %s: %w", userID, err)
	}
	if organization != "" {
		if err := s.ch.Join(ctx, OrgRoom(organization)); err != nil {
			s.ch.Disconnect()
			return fmt.Errorf("join %s: %w", organization, err)
		}
	}
	for _, name := range taskEvents {
		name := name
		s.handlers[name] = s.ch.On(name, func(data []byte) { s.dispatch(gen, name, data) })
	}
	s.mounted = true
	s.log.WithFields(log.Fields{"user": userID, "organization": organization}).Debug("realtime session mounted")
	return nil
}

// Unmount removes the handlers and disconnects. Events delivered afterwards
// are ignored.
func (s *Session) Unmount() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.mounted {
		return
	}
	s.teardownLocked()
}

func (s *Session) teardownLocked() {
	for name, id := range s.handlers {
		s.ch.Off(name, id)
		delete(s.handlers, name)
	}
	s.ch.Disconnect()
	s.mounted = false
}

func (s *Session) dispatch(gen uint64, name string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.mounted || gen != s.gen {
		return
	}
	_ = s.rec.Handle(name, data)
}
