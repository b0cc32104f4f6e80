package listeners_test

import (
	"testing"

	"github.com/piraces/feedsync/pkg/new/adapters/listeners"
	"github.com/piraces/feedsync/pkg/new/domain/entity"
	"github.com/piraces/feedsync/pkg/new/domain/feed"
	"github.com/stretchr/testify/require"
)

func TestRegistryAddIsIdempotent(t *testing.T) {
	registry := listeners.NewRegistry()
	listener := newRecordingListener()

	require.NoError(t, registry.Add(feed.KindDocument, listener))
	require.NoError(t, registry.Add(feed.KindDocument, listener))

	require.Len(t, registry.Listeners(feed.KindDocument), 1)
}

func TestRegistryAddSameListenerForManyKinds(t *testing.T) {
	registry := listeners.NewRegistry()
	listener := newRecordingListener()

	require.NoError(t, registry.Add(feed.KindDocument, listener))
	require.NoError(t, registry.Add(feed.KindComment, listener))

	require.Len(t, registry.Listeners(feed.KindDocument), 1)
	require.Len(t, registry.Listeners(feed.KindComment), 1)
	require.Empty(t, registry.Listeners(feed.KindAttachment))
}

func TestRegistryAddRejectsInvalidListeners(t *testing.T) {
	registry := listeners.NewRegistry()

	err := registry.Add(feed.KindAttachment, &documentOnlyListener{})
	require.Error(t, err)

	err = registry.Add(feed.KindDocument, funcListener(func(entity.DocumentID) error { return nil }))
	require.Error(t, err)

	err = registry.Add(feed.Kind(0), newRecordingListener())
	require.Error(t, err)

	err = registry.Add(feed.KindDocument, valueListener{options: []string{"slices can't be compared"}})
	require.Error(t, err)

	require.Empty(t, registry.Listeners(feed.KindDocument))
	require.Empty(t, registry.Listeners(feed.KindAttachment))
}

func TestRegistryRemove(t *testing.T) {
	registry := listeners.NewRegistry()
	first := newRecordingListener()
	second := newRecordingListener()

	require.NoError(t, registry.Add(feed.KindDocument, first))
	require.NoError(t, registry.Add(feed.KindDocument, second))
	require.NoError(t, registry.Add(feed.KindComment, first))

	registry.Remove(first)

	require.Equal(t, []entity.Listener{second}, registry.Listeners(feed.KindDocument))
	require.Empty(t, registry.Listeners(feed.KindComment))
}

func TestRegistryRemoveUnknownListenerIsNoop(t *testing.T) {
	registry := listeners.NewRegistry()
	listener := newRecordingListener()
	require.NoError(t, registry.Add(feed.KindDocument, listener))

	registry.Remove(newRecordingListener())

	require.Len(t, registry.Listeners(feed.KindDocument), 1)
}

func TestRegistrySnapshotIsNotAffectedByLaterChanges(t *testing.T) {
	registry := listeners.NewRegistry()
	first := newRecordingListener()
	second := newRecordingListener()
	require.NoError(t, registry.Add(feed.KindDocument, first))

	snapshot := registry.Listeners(feed.KindDocument)

	require.NoError(t, registry.Add(feed.KindDocument, second))
	registry.Remove(first)

	require.Equal(t, []entity.Listener{first}, snapshot)
	require.Equal(t, []entity.Listener{second}, registry.Listeners(feed.KindDocument))
}

type documentOnlyListener struct {
}

func (l *documentOnlyListener) OnDocumentAdded(id entity.DocumentID) error {
	return nil
}

type funcListener func(entity.DocumentID) error

func (f funcListener) OnDocumentAdded(id entity.DocumentID) error {
	return f(id)
}

type valueListener struct {
	options any
}

func (l valueListener) OnDocumentAdded(id entity.DocumentID) error {
	return nil
}
