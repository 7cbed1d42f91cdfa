package model

import "fmt"

// ContentType enumerates the document bodies this system understands well
// enough to size-check and, for markdown, eventually render.
type ContentType string

const (
	ContentTypeMarkdown ContentType = "text/markdown"
	ContentTypePlain    ContentType = "text/plain"
	ContentTypeJSON     ContentType = "application/json"
)

func (c ContentType) valid() bool {
	switch c {
	case ContentTypeMarkdown, ContentTypePlain, ContentTypeJSON:
		return true
	default:
		return false
	}
}

// Document is a content-addressed artifact attached to the workspace:
// specs, designs, notes. spec.md §3 bounds document bodies at 10 MiB and
// asks that each carry a content hash for integrity checking.
type Document struct {
	Title       string
	Content     []byte
	ContentType ContentType
	Hash        string
}

func (d *Document) ElementType() ElementType { return ElementDocument }
func (d *Document) Immutable() bool          { return false }

func (d *Document) Validate() error {
	if len(d.Content) > maxDocumentBytes {
		return fieldErr("content", fmt.Sprintf("content exceeds %d bytes", maxDocumentBytes))
	}
	if !d.ContentType.valid() {
		return fieldErr("contentType", fmt.Sprintf("invalid content type %q", d.ContentType))
	}
	if d.Hash == "" {
		return fieldErr("hash", "hash is required")
	}
	return nil
}
