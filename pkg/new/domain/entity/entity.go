package entity

import (
	"strings"

	"github.com/piraces/feedsync/pkg/new/domain/feed"
	"github.com/pkg/errors"
)

const documentsSegment = "/documents/"

var subEntitySegments = []string{"/attachments/", "/comments/"}

type ID interface {
	Kind() feed.Kind
	String() string
}

type DocumentID struct {
	s string
}

func NewDocumentID(s string) (DocumentID, error) {
	if s == "" {
		return DocumentID{}, errors.New("document id can't be an empty string")
	}
	return DocumentID{s: s}, nil
}

func (id DocumentID) Kind() feed.Kind {
	return feed.KindDocument
}

func (id DocumentID) String() string {
	return id.s
}

type AttachmentID struct {
	s        string
	document DocumentID
}

func NewAttachmentID(s string, document DocumentID) (AttachmentID, error) {
	if s == "" {
		return AttachmentID{}, errors.New("attachment id can't be an empty string")
	}
	if document.s == "" {
		return AttachmentID{}, errors.New("zero value of document id")
	}
	return AttachmentID{s: s, document: document}, nil
}

func (id AttachmentID) Kind() feed.Kind {
	return feed.KindAttachment
}

func (id AttachmentID) String() string {
	return id.s
}

func (id AttachmentID) Document() DocumentID {
	return id.document
}

type CommentID struct {
	s        string
	document DocumentID
}

func NewCommentID(s string, document DocumentID) (CommentID, error) {
	if s == "" {
		return CommentID{}, errors.New("comment id can't be an empty string")
	}
	if document.s == "" {
		return CommentID{}, errors.New("zero value of document id")
	}
	return CommentID{s: s, document: document}, nil
}

func (id CommentID) Kind() feed.Kind {
	return feed.KindComment
}

func (id CommentID) String() string {
	return id.s
}

func (id CommentID) Document() DocumentID {
	return id.document
}

// DocumentPart strips the sub-entity part of a raw identifier, e.g.
// "https://host/v2/documents/42/comments/7" becomes
// "https://host/v2/documents/42".
func DocumentPart(raw string) (string, error) {
	i := strings.Index(raw, documentsSegment)
	if i < 0 {
		return "", errors.Errorf("identifier '%s' has no document part", raw)
	}

	rest := raw[i+len(documentsSegment):]
	end := strings.Index(rest, "/")
	if end < 0 {
		end = len(rest)
	}
	if end == 0 {
		return "", errors.Errorf("identifier '%s' has an empty document id", raw)
	}

	documentPart := raw[:i+len(documentsSegment)+end]
	tail := raw[len(documentPart):]
	if tail == "" {
		return documentPart, nil
	}
	for _, segment := range subEntitySegments {
		if strings.HasPrefix(tail, segment) {
			return documentPart, nil
		}
	}
	return "", errors.Errorf("identifier '%s' has an unknown sub-entity part", raw)
}

// Factory builds typed identifiers from raw feed entry identifiers.
type Factory struct {
}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) MakeID(kind feed.Kind, raw string) (ID, error) {
	switch kind {
	case feed.KindDocument:
		return NewDocumentID(raw)
	case feed.KindAttachment:
		document, err := f.owningDocument(raw)
		if err != nil {
			return nil, errors.Wrap(err, "error creating the owning document id")
		}
		return NewAttachmentID(raw, document)
	case feed.KindComment:
		document, err := f.owningDocument(raw)
		if err != nil {
			return nil, errors.Wrap(err, "error creating the owning document id")
		}
		return NewCommentID(raw, document)
	default:
		return nil, errors.Errorf("unknown feed kind '%s'", kind)
	}
}

func (f *Factory) owningDocument(raw string) (DocumentID, error) {
	documentPart, err := DocumentPart(raw)
	if err != nil {
		return DocumentID{}, err
	}
	return NewDocumentID(documentPart)
}
