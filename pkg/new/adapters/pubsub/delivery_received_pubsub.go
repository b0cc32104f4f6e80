package pubsub

import (
	"context"

	"github.com/piraces/feedsync/pkg/new/domain/feed"
)

// Delivery is the content of a single push request received from a hub.
type Delivery struct {
	Address feed.Address
	Entries []feed.Entry
}

type DeliveryReceivedPubSub struct {
	pubsub *GoChannelPubSub[Delivery]
}

func NewDeliveryReceivedPubSub() *DeliveryReceivedPubSub {
	return &DeliveryReceivedPubSub{
		pubsub: NewGoChannelPubSub[Delivery](),
	}
}

func (m *DeliveryReceivedPubSub) PublishDeliveryReceived(delivery Delivery) {
	m.pubsub.Publish(delivery)
}

func (m *DeliveryReceivedPubSub) Subscribe(ctx context.Context) <-chan Delivery {
	return m.pubsub.Subscribe(ctx)
}
