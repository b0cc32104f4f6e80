package feed

import (
	"bytes"
	"context"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed/atom"
	"github.com/piraces/feedsync/pkg/metrics"
	domain "github.com/piraces/feedsync/pkg/new/domain/feed"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	acceptDiscovery  = "application/atom+xml, text/html;q=0.9, */*;q=0.1"
	maxDiscoveryBody = 10 << 20
)

var ErrHubNotFound = errors.New("hub not found")

type HubCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string) error
}

// Discovery finds the hub a feed is published at.
type Discovery struct {
	downloader *Downloader
	override   domain.Address
	cache      HubCache
}

// NewDiscovery creates a discovery which always returns the override if it
// isn't a zero value. The cache is optional.
func NewDiscovery(downloader *Downloader, override domain.Address, cache HubCache) *Discovery {
	return &Discovery{
		downloader: downloader,
		override:   override,
		cache:      cache,
	}
}

func (d *Discovery) DiscoverHub(ctx context.Context, topic domain.Address) (domain.Address, error) {
	if !d.override.IsZero() {
		return d.override, nil
	}

	if d.cache != nil {
		cached, err := d.cache.Get(ctx, topic.String())
		if err == nil {
			metrics.CacheHits.Inc()
			return domain.NewAddress(cached)
		}
		log.Printf("[DEBUG] hub of %q not found in cache: %v", topic, err)
		metrics.CacheMiss.Inc()
	}

	hub, err := d.discover(ctx, topic)
	if err != nil {
		return domain.Address{}, err
	}

	if d.cache != nil {
		if err := d.cache.Set(ctx, topic.String(), hub.String()); err != nil {
			log.Printf("[ERROR] failure to store the hub of %q into cache: %v", topic, err)
			metrics.AppErrors.With(prometheus.Labels{"type": "CACHE_SET"}).Inc()
		}
	}

	return hub, nil
}

func (d *Discovery) discover(ctx context.Context, topic domain.Address) (domain.Address, error) {
	resp, err := d.downloader.Download(ctx, topic.String(), acceptDiscovery)
	if err != nil {
		return domain.Address{}, errors.Wrap(err, "error downloading the feed")
	}
	defer resp.Body.Close()

	if href := hubFromLinkHeader(resp.Header); href != "" {
		return resolveAddress(topic.String(), href)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDiscoveryBody))
	if err != nil {
		return domain.Address{}, errors.Wrap(err, "error reading the feed")
	}

	var href string
	if strings.Contains(resp.Header.Get("Content-Type"), "text/html") {
		href, err = hubFromHTML(body)
	} else {
		href, err = hubFromAtom(body)
	}
	if err != nil {
		return domain.Address{}, err
	}
	if href == "" {
		return domain.Address{}, errors.Wrapf(ErrHubNotFound, "topic '%s'", topic)
	}

	return resolveAddress(topic.String(), href)
}

// hubFromLinkHeader looks for a link with rel="hub" in headers such as
// `<https://hub.example/>; rel="hub", <https://feed.example/>; rel="self"`.
func hubFromLinkHeader(header http.Header) string {
	for _, value := range header.Values("Link") {
		for _, link := range strings.Split(value, ",") {
			parts := strings.Split(link, ";")
			target := strings.TrimSpace(parts[0])
			if !strings.HasPrefix(target, "<") || !strings.HasSuffix(target, ">") {
				continue
			}

			for _, param := range parts[1:] {
				key, rels, ok := strings.Cut(strings.TrimSpace(param), "=")
				if !ok || !strings.EqualFold(strings.TrimSpace(key), "rel") {
					continue
				}
				for _, rel := range strings.Fields(strings.Trim(strings.TrimSpace(rels), `"`)) {
					if strings.EqualFold(rel, relHub) {
						return strings.Trim(target, "<>")
					}
				}
			}
		}
	}
	return ""
}

func hubFromHTML(body []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, "error parsing the html document")
	}

	href, _ := doc.Find("link[rel~='hub']").First().Attr("href")
	return href, nil
}

func hubFromAtom(body []byte) (string, error) {
	parsed, err := (&atom.Parser{}).Parse(bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, "error parsing the atom feed")
	}
	return findLink(parsed.Links, relHub), nil
}
