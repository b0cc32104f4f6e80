package pubsub

import (
	"context"
	"sync"
)

const subscriberBufferSize = 100

// GoChannelPubSub fans out published values to every active subscriber.
// Publish blocks only while the buffer of a subscriber is full.
type GoChannelPubSub[T any] struct {
	subscribersLock sync.Mutex
	subscribers     []*subscriber[T]
}

type subscriber[T any] struct {
	ctx context.Context
	ch  chan T
}

func NewGoChannelPubSub[T any]() *GoChannelPubSub[T] {
	return &GoChannelPubSub[T]{}
}

// Subscribe returns a channel which is closed when the context is canceled.
func (g *GoChannelPubSub[T]) Subscribe(ctx context.Context) <-chan T {
	g.subscribersLock.Lock()
	defer g.subscribersLock.Unlock()

	sub := &subscriber[T]{
		ctx: ctx,
		ch:  make(chan T, subscriberBufferSize),
	}
	g.subscribers = append(g.subscribers, sub)

	go func() {
		<-ctx.Done()
		g.removeSubscriber(sub)
	}()

	return sub.ch
}

func (g *GoChannelPubSub[T]) Publish(value T) {
	g.subscribersLock.Lock()
	defer g.subscribersLock.Unlock()

	for _, sub := range g.subscribers {
		select {
		case sub.ch <- value:
		case <-sub.ctx.Done():
		}
	}
}

func (g *GoChannelPubSub[T]) removeSubscriber(sub *subscriber[T]) {
	g.subscribersLock.Lock()
	defer g.subscribersLock.Unlock()

	for i := range g.subscribers {
		if g.subscribers[i] == sub {
			g.subscribers = append(g.subscribers[:i], g.subscribers[i+1:]...)
			close(sub.ch)
			return
		}
	}
}
