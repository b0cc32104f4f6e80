package entity

import (
	"fmt"
	"reflect"

	"github.com/piraces/feedsync/pkg/new/domain/feed"
	"github.com/pkg/errors"
)

// Listener is implemented by at least one of DocumentListener,
// AttachmentListener or CommentListener. Listeners must be comparable,
// usually pointers, so that they can be removed again.
type Listener interface{}

type DocumentListener interface {
	OnDocumentAdded(id DocumentID) error
}

type AttachmentListener interface {
	OnAttachmentAdded(id AttachmentID) error
}

type CommentListener interface {
	OnCommentAdded(id CommentID) error
}

// Accepts reports whether the listener can be notified about entities of the
// given kind.
func Accepts(kind feed.Kind, listener Listener) bool {
	switch kind {
	case feed.KindDocument:
		_, ok := listener.(DocumentListener)
		return ok
	case feed.KindAttachment:
		_, ok := listener.(AttachmentListener)
		return ok
	case feed.KindComment:
		_, ok := listener.(CommentListener)
		return ok
	default:
		return false
	}
}

// IsComparable reports whether the listener can be compared with == and used
// as a map key. A comparable struct type still panics on comparison when one
// of its interface fields holds a slice, map or func, so the value itself is
// compared as well. Pointers are always comparable.
func IsComparable(listener Listener) (ok bool) {
	if listener == nil {
		return false
	}
	if !reflect.TypeOf(listener).Comparable() {
		return false
	}

	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	return listener == listener
}

// Notify calls the callback matching the kind of the id.
func Notify(listener Listener, id ID) error {
	switch v := id.(type) {
	case DocumentID:
		l, ok := listener.(DocumentListener)
		if !ok {
			return errors.Errorf("listener %T can't receive documents", listener)
		}
		return l.OnDocumentAdded(v)
	case AttachmentID:
		l, ok := listener.(AttachmentListener)
		if !ok {
			return errors.Errorf("listener %T can't receive attachments", listener)
		}
		return l.OnAttachmentAdded(v)
	case CommentID:
		l, ok := listener.(CommentListener)
		if !ok {
			return errors.Errorf("listener %T can't receive comments", listener)
		}
		return l.OnCommentAdded(v)
	default:
		return errors.Errorf("unknown id type %T", id)
	}
}

// ListenerError is a failure of a single listener invocation.
type ListenerError struct {
	Listener Listener
	ID       ID
	Err      error
}

func (e *ListenerError) Error() string {
	return fmt.Sprintf("listener %T failed for %s '%s': %s", e.Listener, e.ID.Kind(), e.ID, e.Err)
}

func (e *ListenerError) Unwrap() error {
	return e.Err
}
