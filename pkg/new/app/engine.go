package app

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/piraces/feedsync/pkg/metrics"
	"github.com/piraces/feedsync/pkg/new/domain/entity"
	"github.com/piraces/feedsync/pkg/new/domain/feed"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

type EngineConfig struct {
	Subscriptions []feed.Subscription

	// PageSize is the number of entries on a single feed page. A push
	// delivery with at least this many entries may have been coalesced by
	// the hub and is treated as potentially incomplete. Zero disables the
	// check.
	PageSize int

	// HubFailureFallback enables crawling when a push delivery may be
	// incomplete.
	HubFailureFallback bool

	// StartTime is the crawl boundary, entries updated at or before it
	// are never reported.
	StartTime time.Time

	// MaxCrawlPages bounds a single crawl. Zero means unbounded.
	MaxCrawlPages int

	// CrawlTimeout bounds the duration of a single crawl. Zero means no
	// timeout besides the one of the passed context.
	CrawlTimeout time.Duration
}

// Engine routes push deliveries and catch-up requests to the reconciler of
// the matching feed and dispatches the results to registered listeners.
type Engine struct {
	pageSize           int
	hubFailureFallback bool
	crawlTimeout       time.Duration

	lanes         map[feed.Kind]*lane
	routes        map[string]feed.Kind
	subscriptions []feed.Subscription

	cursors    CursorStorage
	registry   ListenerRegistry
	dispatcher Dispatcher
}

type lane struct {
	mutex      sync.Mutex
	kind       feed.Kind
	reconciler *Reconciler
}

func NewEngine(
	config EngineConfig,
	transport Transport,
	cursors CursorStorage,
	factory EntityIDFactory,
	registry ListenerRegistry,
	dispatcher Dispatcher,
) (*Engine, error) {
	if len(config.Subscriptions) == 0 {
		return nil, errors.New("at least one subscription is required")
	}
	if config.PageSize < 0 {
		return nil, errors.New("page size can't be negative")
	}
	if config.MaxCrawlPages < 0 {
		return nil, errors.New("max crawl pages can't be negative")
	}
	if config.CrawlTimeout < 0 {
		return nil, errors.New("crawl timeout can't be negative")
	}

	e := &Engine{
		pageSize:           config.PageSize,
		hubFailureFallback: config.HubFailureFallback,
		crawlTimeout:       config.CrawlTimeout,
		lanes:              make(map[feed.Kind]*lane),
		routes:             make(map[string]feed.Kind),
		cursors:            cursors,
		registry:           registry,
		dispatcher:         dispatcher,
	}

	for _, subscription := range config.Subscriptions {
		if _, ok := e.lanes[subscription.Kind()]; ok {
			return nil, errors.Errorf("duplicate subscription for the %s feed", subscription.Kind())
		}
		if _, ok := e.routes[subscription.Address().String()]; ok {
			return nil, errors.Errorf("address '%s' is used by more than one feed", subscription.Address())
		}

		e.lanes[subscription.Kind()] = &lane{
			kind: subscription.Kind(),
			reconciler: NewReconciler(
				subscription,
				config.StartTime,
				config.MaxCrawlPages,
				transport,
				cursors,
				factory,
			),
		}
		e.routes[subscription.Address().String()] = subscription.Kind()
		e.subscriptions = append(e.subscriptions, subscription)
	}

	return e, nil
}

// HandlePush processes entries pushed by a hub for the feed at the given
// address. Entries are expected newest-first.
func (e *Engine) HandlePush(ctx context.Context, address feed.Address, entries []feed.Entry) error {
	kind, ok := e.routes[address.String()]
	if !ok {
		metrics.AppErrors.With(prometheus.Labels{"type": "UNKNOWN_FEED"}).Inc()
		return errors.Wrapf(ErrUnknownFeed, "address '%s'", address)
	}

	metrics.PushDeliveries.With(prometheus.Labels{"kind": kind.String()}).Inc()

	incomplete := e.isPotentiallyIncomplete(entries)
	if incomplete {
		metrics.IncompleteDeliveries.With(prometheus.Labels{"kind": kind.String()}).Inc()
		log.Printf("[INFO] push delivery for the %s feed has %d entries which fills a page, crawling the feed", kind, len(entries))
	}

	return e.run(ctx, e.lanes[kind], entries, incomplete)
}

// CatchUp crawls the feed of the given kind from its newest page back to the
// cursor or the start time and dispatches everything found.
func (e *Engine) CatchUp(ctx context.Context, kind feed.Kind) error {
	l, ok := e.lanes[kind]
	if !ok {
		return errors.Wrapf(ErrUnknownFeed, "kind '%s'", kind)
	}
	return e.run(ctx, l, nil, true)
}

// CatchUpAll runs CatchUp for every feed. A failure of one feed doesn't
// prevent catching up on the others.
func (e *Engine) CatchUpAll(ctx context.Context) error {
	var resultErr error
	for _, subscription := range e.subscriptions {
		if err := e.CatchUp(ctx, subscription.Kind()); err != nil {
			resultErr = multierror.Append(resultErr, errors.Wrapf(err, "error catching up on the %s feed", subscription.Kind()))
		}
	}
	return resultErr
}

func (e *Engine) AddListener(kind feed.Kind, listener entity.Listener) error {
	if _, ok := e.lanes[kind]; !ok {
		return errors.Wrapf(ErrUnknownFeed, "kind '%s'", kind)
	}
	return e.registry.Add(kind, listener)
}

func (e *Engine) RemoveListener(listener entity.Listener) {
	e.registry.Remove(listener)
}

func (e *Engine) Subscriptions() []feed.Subscription {
	return append([]feed.Subscription(nil), e.subscriptions...)
}

func (e *Engine) Cursor(kind feed.Kind) (entity.ID, bool) {
	l, ok := e.lanes[kind]
	if !ok {
		return nil, false
	}
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return e.cursors.Get(kind)
}

func (e *Engine) isPotentiallyIncomplete(entries []feed.Entry) bool {
	return e.hubFailureFallback && e.pageSize > 0 && len(entries) >= e.pageSize
}

func (e *Engine) run(ctx context.Context, l *lane, entries []feed.Entry, incomplete bool) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if incomplete && e.crawlTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.crawlTimeout)
		defer cancel()
	}

	ids, err := l.reconciler.Reconcile(ctx, entries, incomplete)
	if err != nil {
		var transportErr *TransportError
		if errors.As(err, &transportErr) {
			metrics.AppErrors.With(prometheus.Labels{"type": "TRANSPORT"}).Inc()
		} else {
			metrics.AppErrors.With(prometheus.Labels{"type": "RECONCILE"}).Inc()
		}
		log.Printf("[ERROR] failed to reconcile the %s feed: %v", l.kind, err)
		return errors.Wrapf(err, "error reconciling the %s feed", l.kind)
	}

	if len(ids) > 0 {
		log.Printf("[DEBUG] dispatching %d new %s ids", len(ids), l.kind)
	}

	for _, id := range ids {
		e.dispatcher.Dispatch(l.kind, id)
	}

	return nil
}
