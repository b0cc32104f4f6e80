package app

import (
	"context"

	"github.com/piraces/feedsync/pkg/new/domain/entity"
	"github.com/piraces/feedsync/pkg/new/domain/feed"
)

type App struct {
	Engine           *Engine
	SubscribeFeeds   *HandlerSubscribeFeeds
	UnsubscribeFeeds *HandlerUnsubscribeFeeds
}

type Transport interface {
	// FetchPage returns the entries of the page, newest-first.
	FetchPage(ctx context.Context, address feed.Address) (feed.Page, error)
}

type CursorStorage interface {
	Get(kind feed.Kind) (entity.ID, bool)
	Set(kind feed.Kind, id entity.ID)
}

type EntityIDFactory interface {
	MakeID(kind feed.Kind, raw string) (entity.ID, error)
}

type ListenerRegistry interface {
	Add(kind feed.Kind, listener entity.Listener) error
	Remove(listener entity.Listener)
}

type Dispatcher interface {
	Dispatch(kind feed.Kind, id entity.ID)
}

type HubDiscoverer interface {
	DiscoverHub(ctx context.Context, topic feed.Address) (feed.Address, error)
}

type Subscriber interface {
	Subscribe(ctx context.Context, hub, topic feed.Address) error
	Unsubscribe(ctx context.Context, hub, topic feed.Address) error
}
