package adapters_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/piraces/feedsync/pkg/new/adapters"
	"github.com/piraces/feedsync/pkg/new/domain"
	"github.com/piraces/feedsync/pkg/new/domain/feed"
	"github.com/piraces/feedsync/pkg/new/domain/websub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCallback = "https://client.example/push"

func TestWebSubSubscriberSubscribe(t *testing.T) {
	var received url.Values
	hub := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		received = r.PostForm
		w.WriteHeader(http.StatusAccepted)
	}))
	defer hub.Close()

	intents := newIntentsMock()
	secret, err := domain.NewSecret("test")
	require.NoError(t, err)

	subscriber := adapters.NewWebSubSubscriber(hub.Client(), feed.MustNewAddress(sampleCallback), secret, 3600, intents)

	err = subscriber.Subscribe(context.Background(), feed.MustNewAddress(hub.URL), feed.MustNewAddress(sampleTopic))
	require.NoError(t, err)

	require.Equal(t, "subscribe", received.Get("hub.mode"))
	require.Equal(t, sampleTopic, received.Get("hub.topic"))
	require.Equal(t, sampleCallback, received.Get("hub.callback"))
	require.Equal(t, "3600", received.Get("hub.lease_seconds"))
	require.Equal(t, "test", received.Get("hub.secret"))

	require.Len(t, intents.put, 1)
	require.Equal(t, websub.ModeSubscribe, intents.put[0].Mode())
	require.Equal(t, websub.StatePending, intents.put[0].State())
	require.Equal(t, sampleTopic, intents.put[0].Topic().String())
}

func TestWebSubSubscriberUnsubscribeDoesNotSendSecret(t *testing.T) {
	var received url.Values
	hub := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		received = r.PostForm
		w.WriteHeader(http.StatusAccepted)
	}))
	defer hub.Close()

	secret, err := domain.NewSecret("test")
	require.NoError(t, err)

	subscriber := adapters.NewWebSubSubscriber(hub.Client(), feed.MustNewAddress(sampleCallback), secret, 3600, newIntentsMock())

	err = subscriber.Unsubscribe(context.Background(), feed.MustNewAddress(hub.URL), feed.MustNewAddress(sampleTopic))
	require.NoError(t, err)

	require.Equal(t, "unsubscribe", received.Get("hub.mode"))
	require.Empty(t, received.Get("hub.secret"))
	require.Empty(t, received.Get("hub.lease_seconds"))
}

func TestWebSubSubscriberReturnsErrorsForRejectedRequests(t *testing.T) {
	hub := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unknown topic", http.StatusBadRequest)
	}))
	defer hub.Close()

	subscriber := adapters.NewWebSubSubscriber(hub.Client(), feed.MustNewAddress(sampleCallback), domain.Secret{}, 0, newIntentsMock())

	err := subscriber.Subscribe(context.Background(), feed.MustNewAddress(hub.URL), feed.MustNewAddress(sampleTopic))
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown topic")
}

func TestWebSubSubscriberDoesNotContactHubIfIntentCanNotBeSaved(t *testing.T) {
	called := false
	hub := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusAccepted)
	}))
	defer hub.Close()

	intents := newIntentsMock()
	intents.err = errors.New("database is locked")

	subscriber := adapters.NewWebSubSubscriber(hub.Client(), feed.MustNewAddress(sampleCallback), domain.Secret{}, 0, intents)

	err := subscriber.Subscribe(context.Background(), feed.MustNewAddress(hub.URL), feed.MustNewAddress(sampleTopic))
	require.Error(t, err)
	require.False(t, called)
}

type intentsMock struct {
	lock sync.Mutex
	put  []websub.Intent
	err  error
}

func newIntentsMock() *intentsMock {
	return &intentsMock{}
}

func (m *intentsMock) Put(intent websub.Intent) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.err != nil {
		return m.err
	}
	m.put = append(m.put, intent)
	return nil
}
