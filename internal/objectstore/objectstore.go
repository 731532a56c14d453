// Package objectstore is the object storage port: raw inbound messages are
// read through it and extracted attachments are written through it.
package objectstore

import "context"

// Store abstracts bucket-keyed blob storage.
type Store interface {
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	// Put stores the blob and returns a stable, addressable reference.
	Put(ctx context.Context, bucket, key string, body []byte, contentType string) (string, error)
}
