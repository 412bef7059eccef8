// Package images stores driver verification photos.
package images

import (
	"context"
	"io"
)

// PlaceholderURL is returned when no upload backend is configured so the
// rest of the flow can proceed.
const PlaceholderURL = "https://static.ride-dispatch.example/driver-photo-placeholder.png"

// Store uploads an image and returns its public URL.
type Store interface {
	Upload(ctx context.Context, name string, r io.Reader) (string, error)
}

// Placeholder accepts any upload and returns PlaceholderURL.
type Placeholder struct{}

func (Placeholder) Upload(_ context.Context, _ string, r io.Reader) (string, error) {
	_, _ = io.Copy(io.Discard, r)
	return PlaceholderURL, nil
}
