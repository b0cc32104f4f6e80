package adapters

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/piraces/feedsync/pkg/new/domain"
	"github.com/piraces/feedsync/pkg/new/domain/feed"
	"github.com/piraces/feedsync/pkg/new/domain/websub"
	"github.com/pkg/errors"
)

type IntentPutter interface {
	Put(intent websub.Intent) error
}

// WebSubSubscriber sends subscription requests to hubs. The hub confirms
// them asynchronously by calling the callback, see internal/handlers.
type WebSubSubscriber struct {
	client       *http.Client
	callback     feed.Address
	secret       domain.Secret
	leaseSeconds int
	intents      IntentPutter
}

func NewWebSubSubscriber(
	client *http.Client,
	callback feed.Address,
	secret domain.Secret,
	leaseSeconds int,
	intents IntentPutter,
) *WebSubSubscriber {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &WebSubSubscriber{
		client:       client,
		callback:     callback,
		secret:       secret,
		leaseSeconds: leaseSeconds,
		intents:      intents,
	}
}

func (s *WebSubSubscriber) Subscribe(ctx context.Context, hub, topic feed.Address) error {
	return s.request(ctx, websub.ModeSubscribe, hub, topic)
}

func (s *WebSubSubscriber) Unsubscribe(ctx context.Context, hub, topic feed.Address) error {
	return s.request(ctx, websub.ModeUnsubscribe, hub, topic)
}

func (s *WebSubSubscriber) request(ctx context.Context, mode websub.Mode, hub, topic feed.Address) error {
	intent, err := websub.NewIntent(topic, hub, mode, websub.StatePending, s.leaseSeconds, time.Now())
	if err != nil {
		return errors.Wrap(err, "error creating the intent")
	}

	if err := s.intents.Put(intent); err != nil {
		return errors.Wrap(err, "error saving the intent")
	}

	form := url.Values{}
	form.Set("hub.mode", mode.String())
	form.Set("hub.topic", topic.String())
	form.Set("hub.callback", s.callback.String())
	if mode == websub.ModeSubscribe {
		if s.leaseSeconds > 0 {
			form.Set("hub.lease_seconds", strconv.Itoa(s.leaseSeconds))
		}
		if !s.secret.IsZero() {
			form.Set("hub.secret", s.secret.String())
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hub.String(), strings.NewReader(form.Encode()))
	if err != nil {
		return errors.Wrap(err, "error creating the request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", "feedsync")

	resp, err := s.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "error contacting the hub")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.Errorf("hub rejected the %s request with http error %d: %s", mode, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	log.Printf("[INFO] hub %q accepted the %s request for topic %q", hub, mode, topic)
	return nil
}
