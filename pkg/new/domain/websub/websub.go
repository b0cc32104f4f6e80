package websub

import (
	"errors"
	"fmt"
	"time"

	"github.com/piraces/feedsync/pkg/new/domain/feed"
)

var ErrIntentNotFound = errors.New("intent not found")

type Mode struct {
	s string
}

var (
	ModeSubscribe   = Mode{"subscribe"}
	ModeUnsubscribe = Mode{"unsubscribe"}
	ModeDenied      = Mode{"denied"}
)

func NewMode(s string) (Mode, error) {
	switch s {
	case ModeSubscribe.s:
		return ModeSubscribe, nil
	case ModeUnsubscribe.s:
		return ModeUnsubscribe, nil
	case ModeDenied.s:
		return ModeDenied, nil
	default:
		return Mode{}, fmt.Errorf("unknown mode '%s'", s)
	}
}

func (m Mode) String() string {
	return m.s
}

type State struct {
	s string
}

var (
	StatePending  = State{"pending"}
	StateVerified = State{"verified"}
)

func NewState(s string) (State, error) {
	switch s {
	case StatePending.s:
		return StatePending, nil
	case StateVerified.s:
		return StateVerified, nil
	default:
		return State{}, fmt.Errorf("unknown state '%s'", s)
	}
}

func (s State) String() string {
	return s.s
}

// Intent records a subscription request sent to a hub so that the hub's
// verification request can be matched against it.
type Intent struct {
	topic        feed.Address
	hub          feed.Address
	mode         Mode
	state        State
	leaseSeconds int
	updatedAt    time.Time
}

func NewIntent(topic, hub feed.Address, mode Mode, state State, leaseSeconds int, updatedAt time.Time) (Intent, error) {
	if topic.IsZero() {
		return Intent{}, errors.New("zero value of topic")
	}
	if hub.IsZero() {
		return Intent{}, errors.New("zero value of hub")
	}
	if mode == ModeDenied {
		return Intent{}, errors.New("intents can't be created in the denied mode")
	}
	if leaseSeconds < 0 {
		return Intent{}, errors.New("lease seconds can't be negative")
	}
	return Intent{
		topic:        topic,
		hub:          hub,
		mode:         mode,
		state:        state,
		leaseSeconds: leaseSeconds,
		updatedAt:    updatedAt,
	}, nil
}

func (i Intent) Topic() feed.Address {
	return i.topic
}

func (i Intent) Hub() feed.Address {
	return i.hub
}

func (i Intent) Mode() Mode {
	return i.mode
}

func (i Intent) State() State {
	return i.state
}

func (i Intent) LeaseSeconds() int {
	return i.leaseSeconds
}

func (i Intent) UpdatedAt() time.Time {
	return i.updatedAt
}
