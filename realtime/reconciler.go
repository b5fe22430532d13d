package realtime

import (
	log "github.com/sirupsen/logrus"

	"collabnest/board"
	"collabnest/domain"
)

// Reconciler merges remote task events into the shared store.
type Reconciler struct {
	store *board.Store
	log   log.FieldLogger
}

func NewReconciler(store *board.Store, logger log.FieldLogger) *Reconciler {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Reconciler{store: store, log: logger}
}

// TaskCreated appends t unless a record with its id is already present, which
// happens when the event echoes a change this client applied itself.
func (r *Reconciler) TaskCreated(t domain.Task) {
	if !r.store.Insert(-1, t) {
		r.log.WithField("task", t.ID).Debug("created event for known task ignored")
	}
}

// TaskUpdated replaces the record, inserting it when it was never seen.
func (r *Reconciler) TaskUpdated(t domain.Task) {
	if !r.store.Replace(t.ID, t) {
		r.store.Insert(-1, t)
	}
}

func (r *Reconciler) TaskDeleted(id string) {
	r.store.Remove(id)
}

func (r *Reconciler) Apply(ev domain.Event) {
	switch e := ev.(type) {
	case domain.TaskCreated:
		r.TaskCreated(e.Task)
	case domain.TaskUpdated:
		r.TaskUpdated(e.Task)
	case domain.TaskDeleted:
		r.TaskDeleted(e.ID)
	}
}

// Handle decodes a raw event and applies it. Malformed payloads are logged
// and dropped without touching the store.
func (r *Reconciler) Handle(name string, data []byte) error {
	ev, err := domain.DecodeEvent(name, data)
	if err != nil {
		r.log.WithError(err).WithField("event", name).Warn("dropping realtime event")
		return err
	}
	r.Apply(ev)
	return nil
}
