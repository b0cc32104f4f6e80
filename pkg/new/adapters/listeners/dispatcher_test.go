package listeners_test

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/piraces/feedsync/pkg/metrics"
	"github.com/piraces/feedsync/pkg/new/adapters/listeners"
	"github.com/piraces/feedsync/pkg/new/domain/entity"
	"github.com/piraces/feedsync/pkg/new/domain/feed"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

const sampleDocument = "https://api.example/v2/documents/42"

func TestDispatcherNotifiesEveryListenerOfTheKind(t *testing.T) {
	registry := listeners.NewRegistry()
	documents := newRecordingListener()
	comments := newRecordingListener()
	require.NoError(t, registry.Add(feed.KindDocument, documents))
	require.NoError(t, registry.Add(feed.KindComment, comments))

	dispatcher := listeners.NewDispatcher(registry, 1)

	document := mustDocumentID(t, sampleDocument)
	comment, err := entity.NewCommentID(sampleDocument+"/comments/1", document)
	require.NoError(t, err)

	dispatcher.Dispatch(feed.KindDocument, document)
	dispatcher.Dispatch(feed.KindComment, comment)
	dispatcher.Close()

	require.Equal(t, []string{sampleDocument}, documents.Received())
	require.Equal(t, []string{comment.String()}, comments.Received())
}

func TestDispatcherWithSingleWorkerKeepsOrder(t *testing.T) {
	registry := listeners.NewRegistry()
	listener := newRecordingListener()
	require.NoError(t, registry.Add(feed.KindDocument, listener))

	dispatcher := listeners.NewDispatcher(registry, 1)

	var expected []string
	for i := 0; i < 100; i++ {
		id := fmt.Sprintf("%s%d", sampleDocument, i)
		expected = append(expected, id)
		dispatcher.Dispatch(feed.KindDocument, mustDocumentID(t, id))
	}
	dispatcher.Close()

	require.Equal(t, expected, listener.Received())
}

func TestDispatcherIsolatesFailingListeners(t *testing.T) {
	registry := listeners.NewRegistry()

	failing := newRecordingListener()
	failing.err = errors.New("listener failure")
	panicking := newRecordingListener()
	panicking.panic = true
	healthy := newRecordingListener()

	require.NoError(t, registry.Add(feed.KindDocument, failing))
	require.NoError(t, registry.Add(feed.KindDocument, panicking))
	require.NoError(t, registry.Add(feed.KindDocument, healthy))

	dispatcher := listeners.NewDispatcher(registry, 1)
	dispatcher.Dispatch(feed.KindDocument, mustDocumentID(t, sampleDocument+"/a"))
	dispatcher.Dispatch(feed.KindDocument, mustDocumentID(t, sampleDocument+"/b"))
	dispatcher.Close()

	require.Equal(t, []string{sampleDocument + "/a", sampleDocument + "/b"}, healthy.Received())
	require.Equal(t, []string{sampleDocument + "/a", sampleDocument + "/b"}, failing.Received())
}

func TestDispatchDoesNotWaitForSlowListeners(t *testing.T) {
	registry := listeners.NewRegistry()
	slow := newRecordingListener()
	slow.block = make(chan struct{})
	require.NoError(t, registry.Add(feed.KindDocument, slow))

	dispatcher := listeners.NewDispatcher(registry, 1)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			dispatcher.Dispatch(feed.KindDocument, mustDocumentID(t, fmt.Sprintf("%s%d", sampleDocument, i)))
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("dispatch blocked on a slow listener")
	}

	close(slow.block)
	dispatcher.Close()

	require.Len(t, slow.Received(), 10)
}

func TestStuckListenerDoesNotDelayOtherListeners(t *testing.T) {
	registry := listeners.NewRegistry()
	stuck := newRecordingListener()
	stuck.block = make(chan struct{})
	healthy := newRecordingListener()
	require.NoError(t, registry.Add(feed.KindDocument, stuck))
	require.NoError(t, registry.Add(feed.KindDocument, healthy))

	dispatcher := listeners.NewDispatcher(registry, 4)

	var expected []string
	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("%s%d", sampleDocument, i)
		expected = append(expected, id)
		dispatcher.Dispatch(feed.KindDocument, mustDocumentID(t, id))
	}

	require.Eventually(t, func() bool {
		return len(healthy.Received()) == len(expected)
	}, 5*time.Second, 10*time.Millisecond)
	require.ElementsMatch(t, expected, healthy.Received())
	require.Empty(t, stuck.Received())

	close(stuck.block)
	dispatcher.Close()

	require.Len(t, stuck.Received(), len(expected))
}

func TestDispatchAfterRemoveSkipsTheListener(t *testing.T) {
	registry := listeners.NewRegistry()
	listener := newRecordingListener()
	require.NoError(t, registry.Add(feed.KindDocument, listener))

	dispatcher := listeners.NewDispatcher(registry, 2)
	dispatcher.Dispatch(feed.KindDocument, mustDocumentID(t, sampleDocument))
	registry.Remove(listener)
	dispatcher.Dispatch(feed.KindDocument, mustDocumentID(t, sampleDocument+"1"))
	dispatcher.Close()

	require.Equal(t, []string{sampleDocument}, listener.Received())
}

func TestDispatchAfterCloseIsDropped(t *testing.T) {
	registry := listeners.NewRegistry()
	listener := newRecordingListener()
	require.NoError(t, registry.Add(feed.KindDocument, listener))

	dispatcher := listeners.NewDispatcher(registry, 1)
	dispatcher.Close()
	dispatcher.Dispatch(feed.KindDocument, mustDocumentID(t, sampleDocument))

	require.Empty(t, listener.Received())
}

func mustDocumentID(t *testing.T, s string) entity.DocumentID {
	id, err := entity.NewDocumentID(s)
	require.NoError(t, err)
	return id
}

type recordingListener struct {
	err   error
	panic bool
	block chan struct{}

	lock     sync.Mutex
	received []string
}

func newRecordingListener() *recordingListener {
	return &recordingListener{}
}

func (l *recordingListener) OnDocumentAdded(id entity.DocumentID) error {
	return l.record(id)
}

func (l *recordingListener) OnAttachmentAdded(id entity.AttachmentID) error {
	return l.record(id)
}

func (l *recordingListener) OnCommentAdded(id entity.CommentID) error {
	return l.record(id)
}

func (l *recordingListener) Received() []string {
	l.lock.Lock()
	defer l.lock.Unlock()
	return append([]string(nil), l.received...)
}

func (l *recordingListener) record(id entity.ID) error {
	if l.block != nil {
		<-l.block
	}

	l.lock.Lock()
	l.received = append(l.received, id.String())
	l.lock.Unlock()

	if l.panic {
		panic("listener panic")
	}
	return l.err
}

func TestDispatcherCountsNotifications(t *testing.T) {
	registry := listeners.NewRegistry()

	failing := newRecordingListener()
	failing.err = errors.New("listener failure")
	healthy := newRecordingListener()
	require.NoError(t, registry.Add(feed.KindAttachment, failing))
	require.NoError(t, registry.Add(feed.KindAttachment, healthy))

	labels := prometheus.Labels{"kind": feed.KindAttachment.String()}
	dispatchedBefore := testutil.ToFloat64(metrics.DispatchedNotifications.With(labels))
	failuresBefore := testutil.ToFloat64(metrics.ListenerFailures.With(labels))

	document := mustDocumentID(t, sampleDocument)
	attachment, err := entity.NewAttachmentID(sampleDocument+"/attachments/1", document)
	require.NoError(t, err)

	dispatcher := listeners.NewDispatcher(registry, 1)
	dispatcher.Dispatch(feed.KindAttachment, attachment)
	dispatcher.Close()

	require.Equal(t, dispatchedBefore+1, testutil.ToFloat64(metrics.DispatchedNotifications.With(labels)))
	require.Equal(t, failuresBefore+1, testutil.ToFloat64(metrics.ListenerFailures.With(labels)))
	require.Equal(t, float64(0), testutil.ToFloat64(metrics.DispatchQueueLength.With(labels)))
}
