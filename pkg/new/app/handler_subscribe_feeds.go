package app

import (
	"context"
	"log"

	"github.com/hashicorp/go-multierror"
	"github.com/piraces/feedsync/pkg/metrics"
	"github.com/piraces/feedsync/pkg/new/domain/feed"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

const numWorkers = 3

type subscriptionFunc func(ctx context.Context, hub, topic feed.Address) error

// HandlerSubscribeFeeds subscribes to every feed at its hub. Failures are
// reported as SubscriptionErrors but the engine remains usable, deliveries
// for the affected feeds can still be recovered by catching up.
type HandlerSubscribeFeeds struct {
	subscriptions []feed.Subscription
	discoverer    HubDiscoverer
	subscriber    Subscriber
}

func NewHandlerSubscribeFeeds(
	subscriptions []feed.Subscription,
	discoverer HubDiscoverer,
	subscriber Subscriber,
) *HandlerSubscribeFeeds {
	return &HandlerSubscribeFeeds{
		subscriptions: subscriptions,
		discoverer:    discoverer,
		subscriber:    subscriber,
	}
}

func (h *HandlerSubscribeFeeds) Handle(ctx context.Context) error {
	return runForSubscriptions(ctx, "subscribing", h.subscriptions, h.discoverer, h.subscriber.Subscribe)
}

type HandlerUnsubscribeFeeds struct {
	subscriptions []feed.Subscription
	discoverer    HubDiscoverer
	subscriber    Subscriber
}

func NewHandlerUnsubscribeFeeds(
	subscriptions []feed.Subscription,
	discoverer HubDiscoverer,
	subscriber Subscriber,
) *HandlerUnsubscribeFeeds {
	return &HandlerUnsubscribeFeeds{
		subscriptions: subscriptions,
		discoverer:    discoverer,
		subscriber:    subscriber,
	}
}

func (h *HandlerUnsubscribeFeeds) Handle(ctx context.Context) error {
	return runForSubscriptions(ctx, "unsubscribing", h.subscriptions, h.discoverer, h.subscriber.Unsubscribe)
}

func runForSubscriptions(
	ctx context.Context,
	action string,
	subscriptions []feed.Subscription,
	discoverer HubDiscoverer,
	fn subscriptionFunc,
) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	chIn := make(chan feed.Subscription)
	chOut := make(chan subscriptionWithError)

	go func() {
		for _, subscription := range subscriptions {
			select {
			case chIn <- subscription:
				continue
			case <-ctx.Done():
				return
			}
		}
	}()

	for i := 0; i < numWorkers; i++ {
		go startWorker(ctx, chIn, chOut, discoverer, fn)
	}

	counterSuccess := 0
	counterError := 0

	var resultErr error
	for i := 0; i < len(subscriptions); i++ {
		select {
		case result := <-chOut:
			if err := result.Err; err != nil {
				log.Printf("[ERROR] %s failed: %v", action, err)
				resultErr = multierror.Append(resultErr, err)
				counterError++
			} else {
				counterSuccess++
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	metrics.SubscriptionResults.With(prometheus.Labels{"action": action, "result": "success"}).Set(float64(counterSuccess))
	metrics.SubscriptionResults.With(prometheus.Labels{"action": action, "result": "error"}).Set(float64(counterError))
	log.Printf("[INFO] %s feeds result success=%d error=%d", action, counterSuccess, counterError)

	return resultErr
}

func startWorker(
	ctx context.Context,
	chIn <-chan feed.Subscription,
	chOut chan<- subscriptionWithError,
	discoverer HubDiscoverer,
	fn subscriptionFunc,
) {
	for {
		select {
		case subscription := <-chIn:
			err := handleSubscription(ctx, subscription, discoverer, fn)
			select {
			case chOut <- subscriptionWithError{
				Subscription: subscription,
				Err:          err,
			}:
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func handleSubscription(ctx context.Context, subscription feed.Subscription, discoverer HubDiscoverer, fn subscriptionFunc) error {
	hub, err := discoverer.DiscoverHub(ctx, subscription.Address())
	if err != nil {
		metrics.AppErrors.With(prometheus.Labels{"type": "HUB_DISCOVERY"}).Inc()
		return &SubscriptionError{
			Kind:  subscription.Kind(),
			Topic: subscription.Address(),
			Err:   errors.Wrap(err, "error discovering the hub"),
		}
	}

	if err := fn(ctx, hub, subscription.Address()); err != nil {
		metrics.AppErrors.With(prometheus.Labels{"type": "SUBSCRIPTION"}).Inc()
		return &SubscriptionError{
			Kind:  subscription.Kind(),
			Topic: subscription.Address(),
			Err:   errors.Wrapf(err, "hub '%s'", hub),
		}
	}

	log.Printf("[DEBUG] %s feed '%s' handled at hub '%s'", subscription.Kind(), subscription.Address(), hub)
	return nil
}

type subscriptionWithError struct {
	Subscription feed.Subscription
	Err          error
}
