package pubsub

import (
	"context"
	"log"
	"sync"

	"github.com/piraces/feedsync/pkg/new/adapters/pubsub"
	"github.com/piraces/feedsync/pkg/new/domain/feed"
)

type PushHandler interface {
	HandlePush(ctx context.Context, address feed.Address, entries []feed.Entry) error
}

// ReceivedDeliverySubscriber passes push deliveries to the engine. Deliveries
// of a single feed are handled one at a time in the order in which they were
// received, deliveries of different feeds are handled concurrently.
type ReceivedDeliverySubscriber struct {
	pubsub  *pubsub.DeliveryReceivedPubSub
	handler PushHandler
}

func NewReceivedDeliverySubscriber(
	pubsub *pubsub.DeliveryReceivedPubSub,
	handler PushHandler,
) *ReceivedDeliverySubscriber {
	return &ReceivedDeliverySubscriber{
		pubsub:  pubsub,
		handler: handler,
	}
}

// Run blocks until the context is canceled and all received deliveries were
// handled.
func (p *ReceivedDeliverySubscriber) Run(ctx context.Context) {
	var wg sync.WaitGroup
	queues := make(map[string]*deliveryQueue)

	defer func() {
		for _, q := range queues {
			q.close()
		}
		wg.Wait()
	}()

	for delivery := range p.pubsub.Subscribe(ctx) {
		address := delivery.Address.String()

		q, ok := queues[address]
		if !ok {
			q = newDeliveryQueue()
			queues[address] = q

			wg.Add(1)
			go func() {
				defer wg.Done()
				p.drain(ctx, q)
			}()
		}
		q.push(delivery)
	}
}

func (p *ReceivedDeliverySubscriber) drain(ctx context.Context, q *deliveryQueue) {
	for {
		delivery, ok := q.pop()
		if !ok {
			return
		}
		if err := p.handler.HandlePush(ctx, delivery.Address, delivery.Entries); err != nil {
			log.Printf("[ERROR] error handling push delivery for '%s' with %d entries: %s", delivery.Address, len(delivery.Entries), err)
		}
	}
}

// deliveryQueue never blocks the publishing side, a slow feed only delays
// its own deliveries.
type deliveryQueue struct {
	mutex      sync.Mutex
	cond       *sync.Cond
	deliveries []pubsub.Delivery
	closed     bool
}

func newDeliveryQueue() *deliveryQueue {
	q := &deliveryQueue{}
	q.cond = sync.NewCond(&q.mutex)
	return q
}

func (q *deliveryQueue) push(delivery pubsub.Delivery) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	q.deliveries = append(q.deliveries, delivery)
	q.cond.Signal()
}

func (q *deliveryQueue) close() {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	q.closed = true
	q.cond.Broadcast()
}

func (q *deliveryQueue) pop() (pubsub.Delivery, bool) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	for len(q.deliveries) == 0 {
		if q.closed {
			return pubsub.Delivery{}, false
		}
		q.cond.Wait()
	}

	delivery := q.deliveries[0]
	q.deliveries[0] = pubsub.Delivery{}
	q.deliveries = q.deliveries[1:]
	return delivery, true
}
