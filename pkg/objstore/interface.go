// Standard interfaces and datatypes for the objstore project.
// Terms:
//   "backend" : A specific object-storage implementation (e.g. AWS S3, the in-memory store)
//   "facade" : The permission-checking layer callers actually talk to
package objstore

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// All components log through a shared field logger handed out by the
// manager (typically logger.WithField("module", ...)).
type Logger = logrus.FieldLogger

// A User is an opaque identifier chosen by the caller. We store nothing
// about users beyond their identity.
type User = string

// Actions a user can be granted on a resource.
type Action string

const (
	ActionRead   Action = "read"
	ActionWrite  Action = "write"
	ActionDelete Action = "delete"
)

// The two kinds of resource that carry ownership and grants.
type ResourceKind string

const (
	KindBucket ResourceKind = "bucket"
	KindObject ResourceKind = "object"
)

// Metadata maps string keys to string values. Anything richer (nested
// structures, numbers) must be rejected at the boundary rather than
// stringified.
type Metadata map[string]string

const maxMetadataEntries = 64

// Validate rejects metadata the backends cannot represent faithfully.
func (m Metadata) Validate() error {
	if len(m) > maxMetadataEntries {
		return Errorf(ErrInvalidArgument, "metadata has %d entries, limit is %d", len(m), maxMetadataEntries)
	}
	for k := range m {
		if k == "" {
			return NewError(ErrInvalidArgument, "metadata keys must be non-empty")
		}
	}
	return nil
}

// BucketInfo describes one bucket. Backends report Name and Created;
// Owner is filled in by the facade, which is the only layer that knows
// about users.
type BucketInfo struct {
	Name    string
	Owner   User
	Created time.Time
}

type ObjectInfo struct {
	Bucket       string
	Key          string
	Size         int64
	Metadata     Metadata
	LastModified time.Time
}

// One uploaded part of a multipart session: its 1-based sequence number
// and the tag the backend assigned to it.
type CompletedPart struct {
	Number int
	Tag    string
}

// A Backend provides the primitive bucket/object operations the facade
// builds on. Implementations must return errors classified with this
// package's error kinds; backend-specific error types never cross this
// boundary.
type Backend interface {
	CreateBucket(ctx context.Context, bucket string) error
	DeleteBucket(ctx context.Context, bucket string) error
	ListBuckets(ctx context.Context) ([]BucketInfo, error)

	PutObject(ctx context.Context, bucket, key string, data []byte, metadata Metadata) error
	GetObject(ctx context.Context, bucket, key string) ([]byte, error)
	DeleteObject(ctx context.Context, bucket, key string) error
	ListObjects(ctx context.Context, bucket, prefix string) ([]string, error)
	GetObjectMetadata(ctx context.Context, bucket, key string) (*ObjectInfo, error)

	// Multipart protocol. Parts staged by UploadPart must not be visible
	// under (bucket, key) until CompleteMultipartUpload succeeds.
	CreateMultipartUpload(ctx context.Context, bucket, key string, metadata Metadata) (uploadID string, err error)
	UploadPart(ctx context.Context, bucket, key, uploadID string, partNumber int, data []byte) (tag string, err error)
	CompleteMultipartUpload(ctx context.Context, bucket, key, uploadID string, parts []CompletedPart) error
	AbortMultipartUpload(ctx context.Context, bucket, key, uploadID string) error
}
