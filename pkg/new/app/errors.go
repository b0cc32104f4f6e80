package app

import (
	"errors"
	"fmt"

	"github.com/piraces/feedsync/pkg/new/domain/feed"
)

var ErrUnknownFeed = errors.New("unknown feed")

// TransportError is a network or parse failure while fetching a feed page.
// The reconcile call it happened in left the cursor untouched.
type TransportError struct {
	Address feed.Address
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error for '%s': %s", e.Address, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// SubscriptionError means that the hub rejected the subscription or could
// not be reached. The feed keeps working in pull-only mode.
type SubscriptionError struct {
	Kind  feed.Kind
	Topic feed.Address
	Err   error
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("subscription error for %s feed '%s': %s", e.Kind, e.Topic, e.Err)
}

func (e *SubscriptionError) Unwrap() error {
	return e.Err
}
