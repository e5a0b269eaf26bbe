// Package archive persists raw fetched payloads for later reprocessing.
package archive

import "context"

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}
