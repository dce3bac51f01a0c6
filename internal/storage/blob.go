package storage

import "io"

// BlobStore holds question and answer-option image assets. The assessment
// engine only ever records the returned key; fetching and validating the
// referenced asset is the caller's concern.
type BlobStore interface {
	Put(key string, r io.Reader) (string, error) // returns canonical key
	Get(key string) (io.ReadCloser, error)
}
