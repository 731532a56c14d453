// Package attachments uploads extracted attachment bytes to object storage
// and hands back stable references, keeping webhook payloads bounded.
package attachments

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"mailhook/internal/ingest/parser"
)

// Ref is the addressable result of one uploaded part.
type Ref struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	PublicURL   string `json:"public_url"`
	SHA256      string `json:"sha256"`
	ContentID   string `json:"-"`
	Inline      bool   `json:"-"`
	DecodeError bool   `json:"decode_error,omitempty"`
}

// Putter is the slice of the object storage port the uploader needs.
type Putter interface {
	Put(ctx context.Context, bucket, key string, body []byte, contentType string) (string, error)
}

// Uploader writes attachment parts into the attachments bucket.
type Uploader struct {
	store  Putter
	bucket string
}

func NewUploader(store Putter, bucket string) *Uploader {
	return &Uploader{store: store, bucket: bucket}
}

// Upload stores every part concurrently and returns references in the
// original part order. Regular attachments get a random key prefix so equal
// filenames never collide; inline resources go under a shared prefix keyed by
// their Content-ID.
func (u *Uploader) Upload(ctx context.Context, parts []parser.Part) ([]Ref, error) {
	refs := make([]Ref, len(parts))

	g, ctx := errgroup.WithContext(ctx)
	for i, part := range parts {
		g.Go(func() error {
			key := u.objectKey(part)
			url, err := u.store.Put(ctx, u.bucket, key, part.Content, part.ContentType)
			if err != nil {
				return fmt.Errorf("upload attachment %q: %w", part.Filename, err)
			}
			digest := sha256.Sum256(part.Content)
			refs[i] = Ref{
				Filename:    part.Filename,
				ContentType: part.ContentType,
				PublicURL:   url,
				SHA256:      hex.EncodeToString(digest[:]),
				ContentID:   part.ContentID,
				Inline:      part.Inline,
				DecodeError: part.DecodeError,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return refs, nil
}

func (u *Uploader) objectKey(part parser.Part) string {
	name := part.Filename
	if name == "" {
		name = "unnamed"
	}
	if part.Inline {
		return "inline_images/" + name
	}
	return hex.EncodeToString(uuidBytes()) + "/" + name
}

func uuidBytes() []byte {
	id := uuid.New()
	return id[:]
}
