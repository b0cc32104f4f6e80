package feed

import (
	"io"
	"time"

	"github.com/mmcdole/gofeed/atom"
	"github.com/piraces/feedsync/pkg/helpers"
	domain "github.com/piraces/feedsync/pkg/new/domain/feed"
	"github.com/pkg/errors"
)

const (
	relPrevious = "previous"
	relSelf     = "self"
	relHub      = "hub"
)

// ParsePage parses an Atom document fetched from pageURL. Relative links are
// resolved against pageURL.
func ParsePage(r io.Reader, pageURL string) (domain.Page, error) {
	parsed, err := (&atom.Parser{}).Parse(r)
	if err != nil {
		return domain.Page{}, errors.Wrap(err, "error parsing the atom feed")
	}

	entries, err := entriesFromAtom(parsed.Entries)
	if err != nil {
		return domain.Page{}, err
	}

	href := findLink(parsed.Links, relPrevious)
	if href == "" {
		return domain.NewPage(entries, nil), nil
	}

	previous, err := resolveAddress(pageURL, href)
	if err != nil {
		return domain.Page{}, errors.Wrap(err, "invalid previous link")
	}
	return domain.NewPage(entries, &previous), nil
}

// ParseDelivery parses the body of a push request. The address of the feed
// is taken from its self link or, if there is none, from its id.
func ParseDelivery(r io.Reader) (domain.Address, []domain.Entry, error) {
	parsed, err := (&atom.Parser{}).Parse(r)
	if err != nil {
		return domain.Address{}, nil, errors.Wrap(err, "error parsing the atom feed")
	}

	topic := findLink(parsed.Links, relSelf)
	if topic == "" {
		topic = parsed.ID
	}

	address, err := domain.NewAddress(topic)
	if err != nil {
		return domain.Address{}, nil, errors.Wrapf(err, "invalid topic '%s'", topic)
	}

	entries, err := entriesFromAtom(parsed.Entries)
	if err != nil {
		return domain.Address{}, nil, err
	}

	return address, entries, nil
}

func entriesFromAtom(atomEntries []*atom.Entry) ([]domain.Entry, error) {
	var entries []domain.Entry
	for _, atomEntry := range atomEntries {
		entry, err := domain.NewEntry(atomEntry.ID, entryTime(atomEntry))
		if err != nil {
			return nil, errors.Wrap(err, "invalid entry")
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// entryTime prefers the updated time. Entries without any time are treated
// as older than anything else.
func entryTime(entry *atom.Entry) time.Time {
	if entry.UpdatedParsed != nil {
		return *entry.UpdatedParsed
	}
	if entry.PublishedParsed != nil {
		return *entry.PublishedParsed
	}
	return time.Time{}
}

func findLink(links []*atom.Link, rel string) string {
	for _, link := range links {
		if link != nil && link.Rel == rel && link.Href != "" {
			return link.Href
		}
	}
	return ""
}

func resolveAddress(base, href string) (domain.Address, error) {
	resolved, err := helpers.ResolveReference(base, href)
	if err != nil {
		return domain.Address{}, err
	}
	return domain.NewAddress(resolved)
}
