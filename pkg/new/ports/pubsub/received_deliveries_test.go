package pubsub_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/piraces/feedsync/pkg/new/adapters/pubsub"
	"github.com/piraces/feedsync/pkg/new/domain/feed"
	ports "github.com/piraces/feedsync/pkg/new/ports/pubsub"
	"github.com/stretchr/testify/require"
)

const (
	documentsFeed   = "https://api.example/v2/feeds/documents"
	attachmentsFeed = "https://api.example/v2/feeds/attachments"
	commentsFeed    = "https://api.example/v2/feeds/comments"
)

func TestReceivedDeliverySubscriberPassesDeliveriesToTheHandler(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := pubsub.NewDeliveryReceivedPubSub()
	handler := newPushHandlerMock()
	done := runSubscriber(ctx, p, handler)

	waitUntilSubscribed(t, p, handler)

	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("subscriber didn't stop")
	}
}

func TestReceivedDeliverySubscriberKeepsTheOrderOfDeliveriesOfAFeed(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := pubsub.NewDeliveryReceivedPubSub()
	handler := newPushHandlerMock()
	runSubscriber(ctx, p, handler)

	waitUntilSubscribed(t, p, handler)

	const n = 500
	var expected []string
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("https://api.example/v2/documents/%d", i)
		expected = append(expected, id)
		p.PublishDeliveryReceived(newDelivery(documentsFeed, id))
	}

	require.Eventually(t, func() bool {
		return len(handler.Handled(documentsFeed)) == n
	}, 10*time.Second, 10*time.Millisecond)
	require.Equal(t, expected, handler.Handled(documentsFeed))
}

func TestReceivedDeliverySubscriberSlowFeedDoesNotDelayOtherFeeds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := pubsub.NewDeliveryReceivedPubSub()
	handler := newPushHandlerMock()
	handler.block[commentsFeed] = make(chan struct{})
	done := runSubscriber(ctx, p, handler)

	waitUntilSubscribed(t, p, handler)

	p.PublishDeliveryReceived(newDelivery(commentsFeed, "https://api.example/v2/documents/1/comments/1"))
	for i := 0; i < 10; i++ {
		p.PublishDeliveryReceived(newDelivery(documentsFeed, fmt.Sprintf("https://api.example/v2/documents/%d", i)))
	}

	require.Eventually(t, func() bool {
		return len(handler.Handled(documentsFeed)) == 10
	}, 5*time.Second, 10*time.Millisecond)
	require.Empty(t, handler.Handled(commentsFeed))

	close(handler.block[commentsFeed])
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("subscriber didn't stop")
	}
	require.Len(t, handler.Handled(commentsFeed), 1)
}

func runSubscriber(ctx context.Context, p *pubsub.DeliveryReceivedPubSub, handler ports.PushHandler) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ports.NewReceivedDeliverySubscriber(p, handler).Run(ctx)
	}()
	return done
}

// waitUntilSubscribed publishes attachment deliveries until one of them was
// handled, deliveries published before Run subscribed are not received.
func waitUntilSubscribed(t *testing.T, p *pubsub.DeliveryReceivedPubSub, handler *pushHandlerMock) {
	require.Eventually(t, func() bool {
		p.PublishDeliveryReceived(newDelivery(attachmentsFeed, "https://api.example/v2/documents/1/attachments/1"))
		return len(handler.Handled(attachmentsFeed)) > 0
	}, 5*time.Second, 10*time.Millisecond)
}

func newDelivery(address, id string) pubsub.Delivery {
	return pubsub.Delivery{
		Address: feed.MustNewAddress(address),
		Entries: []feed.Entry{feed.MustNewEntry(id, time.Now())},
	}
}

type pushHandlerMock struct {
	block map[string]chan struct{}

	lock    sync.Mutex
	handled map[string][]string
}

func newPushHandlerMock() *pushHandlerMock {
	return &pushHandlerMock{
		block:   make(map[string]chan struct{}),
		handled: make(map[string][]string),
	}
}

func (m *pushHandlerMock) HandlePush(ctx context.Context, address feed.Address, entries []feed.Entry) error {
	if ch, ok := m.block[address.String()]; ok {
		<-ch
	}

	m.lock.Lock()
	defer m.lock.Unlock()
	for _, entry := range entries {
		m.handled[address.String()] = append(m.handled[address.String()], entry.ID())
	}
	return nil
}

func (m *pushHandlerMock) Handled(address string) []string {
	m.lock.Lock()
	defer m.lock.Unlock()
	return append([]string(nil), m.handled[address]...)
}
