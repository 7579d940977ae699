package retrieval

import (
	"context"
	"net/http"
	"time"
)

// ObjectStore reads objects from one storage account.
type ObjectStore interface {
	GetObject(ctx context.Context, key string) ([]byte, error)
	ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error)
}

// Download is the response of a single direct-link request.
type Download struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// Downloader performs a bounded HTTP GET.
type Downloader interface {
	Download(ctx context.Context, url string) (Download, error)
}

// Sink writes retrieved files beneath a task's save directory.
type Sink interface {
	Dir(identity TaskIdentity) string
	Save(ctx context.Context, identity TaskIdentity, name string, data []byte) (FileRecord, error)
}

// MappingStore persists job id to save path bookkeeping.
type MappingStore interface {
	RecordMapping(ctx context.Context, mapping TaskMapping) error
	GetMapping(ctx context.Context, jobID string) (TaskMapping, error)
	ListMappings(ctx context.Context) ([]TaskMapping, error)
	Close() error
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes digests of saved files.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces event IDs.
type IDGenerator interface {
	NewID() (string, error)
}
