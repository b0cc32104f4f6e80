package feed

import (
	"context"
	"log"

	"github.com/piraces/feedsync/pkg/metrics"
	domain "github.com/piraces/feedsync/pkg/new/domain/feed"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

const acceptAtom = "application/atom+xml"

// Transport fetches single pages of Atom feeds.
type Transport struct {
	downloader *Downloader
}

func NewTransport(downloader *Downloader) *Transport {
	return &Transport{downloader: downloader}
}

func (t *Transport) FetchPage(ctx context.Context, address domain.Address) (domain.Page, error) {
	resp, err := t.downloader.Download(ctx, address.String(), acceptAtom)
	if err != nil {
		return domain.Page{}, errors.Wrap(err, "error downloading the page")
	}
	defer resp.Body.Close()

	page, err := ParsePage(resp.Body, address.String())
	if err != nil {
		metrics.AppErrors.With(prometheus.Labels{"type": "FEED_PARSE"}).Inc()
		return domain.Page{}, err
	}

	log.Printf("[DEBUG] fetched page %q with %d entries", address, len(page.Entries()))
	return page, nil
}
