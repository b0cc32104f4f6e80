package handlers

import (
	"bytes"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/piraces/feedsync/pkg/feed"
	"github.com/piraces/feedsync/pkg/metrics"
	"github.com/piraces/feedsync/pkg/new/adapters/pubsub"
	"github.com/piraces/feedsync/pkg/new/domain"
	domainfeed "github.com/piraces/feedsync/pkg/new/domain/feed"
	"github.com/piraces/feedsync/pkg/new/domain/websub"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	maxPushBodySize = 10 << 20
	signatureHeader = "X-Hub-Signature"
)

type IntentStore interface {
	Get(topic domainfeed.Address) (websub.Intent, error)
	MarkVerified(topic domainfeed.Address, leaseSeconds int, now time.Time) error
}

type DeliveryPublisher interface {
	PublishDeliveryReceived(delivery pubsub.Delivery)
}

// HandlePush serves the callback URL given to hubs. GET requests verify
// subscription intents and POST requests carry new feed entries.
func HandlePush(w http.ResponseWriter, r *http.Request, intents IntentStore, secret domain.Secret, publisher DeliveryPublisher) {
	switch r.Method {
	case http.MethodGet:
		handleVerification(w, r, intents)
	case http.MethodPost:
		handleDelivery(w, r, secret, publisher)
	default:
		http.Error(w, "Method not supported", http.StatusMethodNotAllowed)
	}
}

func handleVerification(w http.ResponseWriter, r *http.Request, intents IntentStore) {
	query := r.URL.Query()
	mode, err := websub.NewMode(query.Get("hub.mode"))
	if err != nil {
		metrics.VerificationRequests.With(prometheus.Labels{"mode": "invalid"}).Inc()
		http.Error(w, "Invalid hub.mode", http.StatusBadRequest)
		return
	}
	metrics.VerificationRequests.With(prometheus.Labels{"mode": mode.String()}).Inc()

	topic, err := domainfeed.NewAddress(query.Get("hub.topic"))
	if err != nil {
		http.Error(w, "Invalid hub.topic", http.StatusBadRequest)
		return
	}

	if mode == websub.ModeDenied {
		log.Printf("[WARN] hub denied the subscription to %q: %s", topic, query.Get("hub.reason"))
		metrics.AppErrors.With(prometheus.Labels{"type": "SUBSCRIPTION_DENIED"}).Inc()
		w.WriteHeader(http.StatusOK)
		return
	}

	challenge := query.Get("hub.challenge")
	if challenge == "" {
		http.Error(w, "Missing hub.challenge", http.StatusBadRequest)
		return
	}

	intent, err := intents.Get(topic)
	if err != nil {
		if !errors.Is(err, websub.ErrIntentNotFound) {
			log.Printf("[ERROR] failed to get the intent for %q: %v", topic, err)
			http.Error(w, "Internal error", http.StatusInternalServerError)
			return
		}
		log.Printf("[DEBUG] refusing verification of %s for unknown topic %q", mode, topic)
		http.NotFound(w, r)
		return
	}

	if intent.Mode() != mode {
		log.Printf("[DEBUG] refusing verification of %s for topic %q, the last intent was %s", mode, topic, intent.Mode())
		http.NotFound(w, r)
		return
	}

	leaseSeconds := intent.LeaseSeconds()
	if v := query.Get("hub.lease_seconds"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			leaseSeconds = parsed
		}
	}

	if err := intents.MarkVerified(topic, leaseSeconds, time.Now()); err != nil {
		log.Printf("[ERROR] failed to mark the intent for %q as verified: %v", topic, err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	log.Printf("[INFO] verified %s for topic %q with lease of %d seconds", mode, topic, leaseSeconds)
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(challenge))
}

func handleDelivery(w http.ResponseWriter, r *http.Request, secret domain.Secret, publisher DeliveryPublisher) {
	metrics.PushRequests.Inc()

	if !strings.Contains(r.Header.Get("Content-Type"), "atom+xml") {
		log.Printf("[DEBUG] ignoring push with content type %q", r.Header.Get("Content-Type"))
		http.NotFound(w, r)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxPushBodySize+1))
	if err != nil {
		http.Error(w, "Error reading the body", http.StatusBadRequest)
		return
	}

	// Hubs must not retry deliveries which were ignored, so all of the
	// failures below are acknowledged.
	if len(body) > maxPushBodySize {
		log.Printf("[WARN] ignoring push with a body larger than %d bytes", maxPushBodySize)
		metrics.AppErrors.With(prometheus.Labels{"type": "PUSH_TOO_LARGE"}).Inc()
		w.WriteHeader(http.StatusOK)
		return
	}

	if !secret.IsZero() {
		if err := secret.Verify(r.Header.Get(signatureHeader), body); err != nil {
			log.Printf("[WARN] ignoring push with invalid signature: %v", err)
			metrics.AppErrors.With(prometheus.Labels{"type": "PUSH_SIGNATURE"}).Inc()
			w.WriteHeader(http.StatusOK)
			return
		}
	}

	address, entries, err := feed.ParseDelivery(bytes.NewReader(body))
	if err != nil {
		log.Printf("[ERROR] failed to parse push delivery: %v", err)
		metrics.AppErrors.With(prometheus.Labels{"type": "PUSH_PARSE"}).Inc()
		w.WriteHeader(http.StatusOK)
		return
	}

	log.Printf("[DEBUG] received push for %q with %d entries", address, len(entries))
	publisher.PublishDeliveryReceived(pubsub.Delivery{
		Address: address,
		Entries: entries,
	})

	w.WriteHeader(http.StatusOK)
}
