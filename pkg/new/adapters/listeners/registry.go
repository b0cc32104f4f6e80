package listeners

import (
	"sync"

	"github.com/piraces/feedsync/pkg/new/domain/entity"
	"github.com/piraces/feedsync/pkg/new/domain/feed"
	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
)

// Registry holds the listeners of every feed kind. The per kind lists are
// copied on update so that a snapshot returned by Listeners is never
// modified.
type Registry struct {
	mutex     sync.Mutex
	listeners map[feed.Kind][]entity.Listener
}

func NewRegistry() *Registry {
	return &Registry{
		listeners: make(map[feed.Kind][]entity.Listener),
	}
}

// Add registers the listener for the kind. Adding a listener which is
// already registered for the kind is a no-op.
func (r *Registry) Add(kind feed.Kind, listener entity.Listener) error {
	if !kind.Valid() {
		return errors.Errorf("invalid feed kind %d", int(kind))
	}
	if !entity.IsComparable(listener) {
		return errors.Errorf("listener %T must be comparable", listener)
	}
	if !entity.Accepts(kind, listener) {
		return errors.Errorf("listener %T can't receive %s ids", listener, kind)
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	current := r.listeners[kind]
	if slices.Index(current, listener) >= 0 {
		return nil
	}

	next := slices.Clone(current)
	next = append(next, listener)
	r.listeners[kind] = next
	return nil
}

// Remove unregisters the listener from every kind it was registered for.
// Notifications already handed to workers are still delivered.
func (r *Registry) Remove(listener entity.Listener) {
	if !entity.IsComparable(listener) {
		return
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	for kind, current := range r.listeners {
		i := slices.Index(current, listener)
		if i < 0 {
			continue
		}
		next := slices.Clone(current)
		next = slices.Delete(next, i, i+1)
		r.listeners[kind] = next
	}
}

func (r *Registry) Listeners(kind feed.Kind) []entity.Listener {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	return r.listeners[kind]
}
