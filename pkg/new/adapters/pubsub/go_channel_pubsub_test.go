package pubsub_test

import (
	"context"
	"testing"
	"time"

	"github.com/piraces/feedsync/pkg/new/adapters/pubsub"
	"github.com/piraces/feedsync/pkg/new/domain/feed"
	"github.com/stretchr/testify/require"
)

func TestGoChannelPubSubDeliversToEverySubscriber(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := pubsub.NewGoChannelPubSub[int]()
	first := p.Subscribe(ctx)
	second := p.Subscribe(ctx)

	p.Publish(1)
	p.Publish(2)

	for _, ch := range []<-chan int{first, second} {
		require.Equal(t, 1, receive(t, ch))
		require.Equal(t, 2, receive(t, ch))
	}
}

func TestGoChannelPubSubClosesChannelWhenContextIsCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	p := pubsub.NewGoChannelPubSub[int]()
	ch := p.Subscribe(ctx)
	cancel()

	select {
	case _, ok := <-ch:
		require.False(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("channel wasn't closed")
	}

	p.Publish(1)
}

func TestDeliveryReceivedPubSub(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := pubsub.NewDeliveryReceivedPubSub()
	ch := p.Subscribe(ctx)

	delivery := pubsub.Delivery{
		Address: feed.MustNewAddress("https://api.example/v2/feeds/documents"),
		Entries: []feed.Entry{feed.MustNewEntry("https://api.example/v2/documents/1", time.Now())},
	}
	p.PublishDeliveryReceived(delivery)

	select {
	case received := <-ch:
		require.Equal(t, delivery, received)
	case <-time.After(5 * time.Second):
		t.Fatal("delivery wasn't received")
	}
}

func receive[T any](t *testing.T, ch <-chan T) T {
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatal("timeout")
	}
	var zero T
	return zero
}
