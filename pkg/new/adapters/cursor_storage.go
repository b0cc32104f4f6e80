package adapters

import (
	"log"
	"sync"

	"github.com/piraces/feedsync/pkg/new/domain/entity"
	"github.com/piraces/feedsync/pkg/new/domain/feed"
)

// CursorStorage keeps the id of the most recently observed entity per feed
// kind. It lives in memory only.
type CursorStorage struct {
	cursors     map[feed.Kind]entity.ID
	cursorsLock sync.RWMutex
}

func NewCursorStorage() *CursorStorage {
	return &CursorStorage{
		cursors: make(map[feed.Kind]entity.ID),
	}
}

func (c *CursorStorage) Get(kind feed.Kind) (entity.ID, bool) {
	c.cursorsLock.RLock()
	defer c.cursorsLock.RUnlock()

	id, ok := c.cursors[kind]
	return id, ok
}

func (c *CursorStorage) Set(kind feed.Kind, id entity.ID) {
	c.cursorsLock.Lock()
	defer c.cursorsLock.Unlock()

	if id.Kind() != kind {
		log.Printf("[WARN] storing a %s id as the cursor of the %s feed", id.Kind(), kind)
	}

	c.cursors[kind] = id
}
