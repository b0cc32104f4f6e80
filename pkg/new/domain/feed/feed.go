package feed

import (
	"errors"
	"fmt"
	"time"

	"github.com/piraces/feedsync/pkg/helpers"
)

type Kind int

const (
	KindDocument Kind = iota + 1
	KindAttachment
	KindComment
)

var Kinds = []Kind{KindDocument, KindAttachment, KindComment}

func (k Kind) String() string {
	switch k {
	case KindDocument:
		return "document"
	case KindAttachment:
		return "attachment"
	case KindComment:
		return "comment"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

func (k Kind) Valid() bool {
	return k >= KindDocument && k <= KindComment
}

type Address struct {
	s string
}

func NewAddress(s string) (Address, error) {
	if s == "" {
		return Address{}, errors.New("address can't be an empty string")
	}

	if !helpers.IsValidHttpUrl(s) {
		return Address{}, errors.New("invalid URL provided (must be in absolute format and with https or https scheme)")
	}

	return Address{s: s}, nil
}

func MustNewAddress(s string) Address {
	a, err := NewAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Address) String() string {
	return a.s
}

func (a Address) IsZero() bool {
	return a.s == ""
}

// Entry is a single item of a fetched or pushed feed page.
type Entry struct {
	id      string
	updated time.Time
}

func NewEntry(id string, updated time.Time) (Entry, error) {
	if id == "" {
		return Entry{}, errors.New("entry id can't be an empty string")
	}
	return Entry{id: id, updated: updated}, nil
}

func MustNewEntry(id string, updated time.Time) Entry {
	e, err := NewEntry(id, updated)
	if err != nil {
		panic(err)
	}
	return e
}

func (e Entry) ID() string {
	return e.id
}

func (e Entry) Updated() time.Time {
	return e.updated
}

// Page is one page of a feed. Entries are ordered newest-first.
type Page struct {
	entries  []Entry
	previous Address
}

func NewPage(entries []Entry, previous *Address) Page {
	p := Page{entries: entries}
	if previous != nil {
		p.previous = *previous
	}
	return p
}

func (p Page) Entries() []Entry {
	return p.entries
}

// Previous returns the link to the page holding older entries.
func (p Page) Previous() (Address, bool) {
	return p.previous, !p.previous.IsZero()
}

// Subscription maps a feed kind to the address of its feed.
type Subscription struct {
	kind    Kind
	address Address
}

func NewSubscription(kind Kind, address Address) (Subscription, error) {
	if !kind.Valid() {
		return Subscription{}, fmt.Errorf("invalid feed kind %d", int(kind))
	}
	if address.IsZero() {
		return Subscription{}, errors.New("zero value of address")
	}
	return Subscription{kind: kind, address: address}, nil
}

func (s Subscription) Kind() Kind {
	return s.kind
}

func (s Subscription) Address() Address {
	return s.address
}
