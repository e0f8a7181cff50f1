package harvest

import (
	"context"
	"time"
)

// Identity is one rotating browser identity issued to a crawl task. It is
// immutable once issued.
type Identity struct {
	UserAgent string
	Proxy     string
}

// RecordStore persists job records and answers the new-vs-seen question.
// The engine does not define the storage schema.
type RecordStore interface {
	Exists(ctx context.Context, source, key string) (bool, error)
	Save(ctx context.Context, record JobRecord) error
}

// BlobStore writes raw page snapshots for the audit trail and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes run-summary events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
