package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// Artifact is a handle to a remotely-addressable file. Implementations
// resolve identity and a change fingerprint cheaply; bytes are only
// transferred through Open.
type Artifact interface {
	// Key returns the artifact's logical identity, unique within one cache.
	Key() string

	// Fingerprint returns an opaque comparable value that changes whenever
	// the remote content changes (mtime, ETag, version id). It fails with a
	// NotFoundError when the underlying object no longer exists.
	Fingerprint(ctx context.Context) (string, error)

	// Open returns the artifact's byte stream.
	Open(ctx context.Context) (io.ReadCloser, error)
}

// NotFoundError reports that an artifact's underlying object vanished and it
// can therefore not be resolved or cached.
type NotFoundError struct {
	Key string
	Err error
}

func (e *NotFoundError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("artifact %s not found: %v", e.Key, e.Err)
	}
	return fmt.Sprintf("artifact %s not found", e.Key)
}

func (e *NotFoundError) Unwrap() error {
	return e.Err
}

// NewNotFoundError wraps err as a NotFoundError for the given key.
func NewNotFoundError(key string, err error) *NotFoundError {
	return &NotFoundError{Key: key, Err: err}
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
