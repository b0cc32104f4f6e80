package app

import (
	"context"
	"log"
	"time"

	"github.com/piraces/feedsync/pkg/metrics"
	"github.com/piraces/feedsync/pkg/new/domain/entity"
	"github.com/piraces/feedsync/pkg/new/domain/feed"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// Reconciler turns deliveries of a single feed into an oldest-first sequence
// of newly observed entity ids and advances the cursor of that feed.
//
// Reconciler is not safe for concurrent use, callers serialize calls for a
// kind.
type Reconciler struct {
	subscription feed.Subscription
	startTime    time.Time
	maxPages     int

	transport Transport
	cursors   CursorStorage
	factory   EntityIDFactory
}

func NewReconciler(
	subscription feed.Subscription,
	startTime time.Time,
	maxPages int,
	transport Transport,
	cursors CursorStorage,
	factory EntityIDFactory,
) *Reconciler {
	return &Reconciler{
		subscription: subscription,
		startTime:    startTime,
		maxPages:     maxPages,
		transport:    transport,
		cursors:      cursors,
		factory:      factory,
	}
}

// Reconcile returns the ids of the entities which weren't seen before,
// oldest-first. Delivered entries are expected newest-first. If the delivery
// is potentially incomplete it is discarded and the feed history is crawled
// backward instead. On error the cursor is left untouched.
func (r *Reconciler) Reconcile(ctx context.Context, delivered []feed.Entry, potentiallyIncomplete bool) ([]entity.ID, error) {
	var rawIDs []string

	if potentiallyIncomplete {
		stack, err := r.crawl(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "error crawling the feed history")
		}
		for i := len(stack) - 1; i >= 0; i-- {
			rawIDs = append(rawIDs, stack[i])
		}
	} else {
		for i := len(delivered) - 1; i >= 0; i-- {
			rawIDs = append(rawIDs, delivered[i].ID())
		}
	}

	ids := make([]entity.ID, 0, len(rawIDs))
	for _, rawID := range rawIDs {
		id, err := r.factory.MakeID(r.subscription.Kind(), rawID)
		if err != nil {
			return nil, errors.Wrapf(err, "error creating an id from '%s'", rawID)
		}
		ids = append(ids, id)
	}

	for _, id := range ids {
		r.cursors.Set(r.subscription.Kind(), id)
		metrics.CursorAdvances.With(prometheus.Labels{"kind": r.subscription.Kind().String()}).Inc()
	}

	return ids, nil
}

// crawl walks the feed from its newest page backward and returns the
// identifiers of the entries newer than the boundary. The newest entry is at
// the bottom of the returned stack.
func (r *Reconciler) crawl(ctx context.Context) ([]string, error) {
	cursor, hasCursor := r.cursors.Get(r.subscription.Kind())

	var stack []string
	address := r.subscription.Address()

	for pages := 0; ; pages++ {
		if r.maxPages > 0 && pages >= r.maxPages {
			log.Printf("[WARN] stopped crawling the %s feed after %d pages without reaching a boundary", r.subscription.Kind(), pages)
			return stack, nil
		}

		if err := ctx.Err(); err != nil {
			return nil, &TransportError{Address: address, Err: err}
		}

		page, err := r.transport.FetchPage(ctx, address)
		if err != nil {
			return nil, &TransportError{Address: address, Err: err}
		}
		metrics.CrawledPages.With(prometheus.Labels{"kind": r.subscription.Kind().String()}).Inc()

		for _, entry := range page.Entries() {
			if r.isBoundary(entry, cursor, hasCursor) {
				log.Printf("[DEBUG] crawl of the %s feed reached a boundary at '%s' after %d pages, collected %d entries", r.subscription.Kind(), entry.ID(), pages+1, len(stack))
				return stack, nil
			}
			stack = append(stack, entry.ID())
		}

		previous, ok := page.Previous()
		if !ok {
			log.Printf("[DEBUG] crawl of the %s feed reached the last page after %d pages, collected %d entries", r.subscription.Kind(), pages+1, len(stack))
			return stack, nil
		}
		address = previous
	}
}

func (r *Reconciler) isBoundary(entry feed.Entry, cursor entity.ID, hasCursor bool) bool {
	if hasCursor && entry.ID() == cursor.String() {
		return true
	}
	return !entry.Updated().After(r.startTime)
}
