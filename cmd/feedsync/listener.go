package main

import (
	"log"

	"github.com/piraces/feedsync/pkg/new/domain/entity"
)

// loggingListener reports every new entity in the log.
type loggingListener struct {
}

func newLoggingListener() *loggingListener {
	return &loggingListener{}
}

func (l *loggingListener) OnDocumentAdded(id entity.DocumentID) error {
	log.Printf("[INFO] new document '%s'", id)
	return nil
}

func (l *loggingListener) OnAttachmentAdded(id entity.AttachmentID) error {
	log.Printf("[INFO] new attachment '%s' of document '%s'", id, id.Document())
	return nil
}

func (l *loggingListener) OnCommentAdded(id entity.CommentID) error {
	log.Printf("[INFO] new comment '%s' on document '%s'", id, id.Document())
	return nil
}
