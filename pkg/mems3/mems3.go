// In-memory object storage backend. Plays the role the moto server plays
// for real S3: a process-local stand-in with the same visible semantics,
// used by the test suites and by the "memory" backend configuration.
// Fault injection hooks let tests exercise the multipart abort path
// without a real network.

package mems3

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/serverlessresearch/objstore/pkg/objstore"
)

type object struct {
	data     []byte
	metadata objstore.Metadata
	modified time.Time
}

type bucket struct {
	created time.Time
	objects map[string]*object
}

type multipartSession struct {
	bucket   string
	key      string
	metadata objstore.Metadata
	// Parts are staged here and only become the object on Complete.
	parts map[int][]byte
	tags  map[int]string
}

// Backend implements objstore.Backend entirely in memory.
type Backend struct {
	mu       sync.Mutex
	buckets  map[string]*bucket
	sessions map[string]*multipartSession
	log      objstore.Logger

	// Test hooks. When non-zero/true the corresponding call fails with a
	// backend error. FailPart fails the upload of that part number once.
	FailPart     int
	FailComplete bool
	FailPut      bool

	aborted []string // upload IDs aborted, for test assertions
}

func New(logger objstore.Logger) *Backend {
	return &Backend{
		buckets:  make(map[string]*bucket),
		sessions: make(map[string]*multipartSession),
		log:      logger,
	}
}

// Aborted returns the upload IDs that have been aborted so far.
func (b *Backend) Aborted() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.aborted...)
}

func (b *Backend) CreateBucket(ctx context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.buckets[name]; ok {
		return objstore.Errorf(objstore.ErrAlreadyExists, "bucket %q already exists", name)
	}
	b.buckets[name] = &bucket{created: time.Now(), objects: make(map[string]*object)}
	return nil
}

func (b *Backend) DeleteBucket(ctx context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	bkt, ok := b.buckets[name]
	if !ok {
		return objstore.Errorf(objstore.ErrNotFound, "bucket %q not found", name)
	}
	if len(bkt.objects) > 0 {
		return objstore.Errorf(objstore.ErrBucketNotEmpty, "bucket %q is not empty", name)
	}
	delete(b.buckets, name)
	return nil
}

func (b *Backend) ListBuckets(ctx context.Context) ([]objstore.BucketInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	infos := make([]objstore.BucketInfo, 0, len(b.buckets))
	for name, bkt := range b.buckets {
		infos = append(infos, objstore.BucketInfo{Name: name, Created: bkt.created})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

func (b *Backend) PutObject(ctx context.Context, bucketName, key string, data []byte, metadata objstore.Metadata) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.FailPut {
		return objstore.NewError(objstore.ErrBackend, "injected put failure")
	}
	bkt, ok := b.buckets[bucketName]
	if !ok {
		return objstore.Errorf(objstore.ErrNotFound, "bucket %q not found", bucketName)
	}
	bkt.objects[key] = &object{
		data:     append([]byte(nil), data...),
		metadata: copyMetadata(metadata),
		modified: time.Now(),
	}
	return nil
}

func (b *Backend) GetObject(ctx context.Context, bucketName, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	obj, err := b.lookup(bucketName, key)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), obj.data...), nil
}

func (b *Backend) DeleteObject(ctx context.Context, bucketName, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	bkt, ok := b.buckets[bucketName]
	if !ok {
		return objstore.Errorf(objstore.ErrNotFound, "bucket %q not found", bucketName)
	}
	if _, ok := bkt.objects[key]; !ok {
		return objstore.Errorf(objstore.ErrNotFound, "object %q not found in bucket %q", key, bucketName)
	}
	delete(bkt.objects, key)
	return nil
}

func (b *Backend) ListObjects(ctx context.Context, bucketName, prefix string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	bkt, ok := b.buckets[bucketName]
	if !ok {
		return nil, objstore.Errorf(objstore.ErrNotFound, "bucket %q not found", bucketName)
	}
	var keys []string
	for key := range bkt.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (b *Backend) GetObjectMetadata(ctx context.Context, bucketName, key string) (*objstore.ObjectInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	obj, err := b.lookup(bucketName, key)
	if err != nil {
		return nil, err
	}
	return &objstore.ObjectInfo{
		Bucket:       bucketName,
		Key:          key,
		Size:         int64(len(obj.data)),
		Metadata:     copyMetadata(obj.metadata),
		LastModified: obj.modified,
	}, nil
}

func (b *Backend) CreateMultipartUpload(ctx context.Context, bucketName, key string, metadata objstore.Metadata) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.buckets[bucketName]; !ok {
		return "", objstore.Errorf(objstore.ErrNotFound, "bucket %q not found", bucketName)
	}
	id := uuid.NewString()
	b.sessions[id] = &multipartSession{
		bucket:   bucketName,
		key:      key,
		metadata: copyMetadata(metadata),
		parts:    make(map[int][]byte),
		tags:     make(map[int]string),
	}
	return id, nil
}

func (b *Backend) UploadPart(ctx context.Context, bucketName, key, uploadID string, partNumber int, data []byte) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sess, err := b.session(bucketName, key, uploadID)
	if err != nil {
		return "", err
	}
	if partNumber < 1 {
		return "", objstore.Errorf(objstore.ErrInvalidArgument, "part number %d must be >= 1", partNumber)
	}
	if b.FailPart == partNumber {
		b.FailPart = 0
		return "", objstore.Errorf(objstore.ErrBackend, "injected failure for part %d", partNumber)
	}
	sum := sha256.Sum256(data)
	tag := hex.EncodeToString(sum[:8])
	sess.parts[partNumber] = append([]byte(nil), data...)
	sess.tags[partNumber] = tag
	return tag, nil
}

func (b *Backend) CompleteMultipartUpload(ctx context.Context, bucketName, key, uploadID string, parts []objstore.CompletedPart) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	sess, err := b.session(bucketName, key, uploadID)
	if err != nil {
		return err
	}
	if b.FailComplete {
		return objstore.NewError(objstore.ErrBackend, "injected completion failure")
	}
	bkt, ok := b.buckets[sess.bucket]
	if !ok {
		return objstore.Errorf(objstore.ErrNotFound, "bucket %q not found", sess.bucket)
	}

	var assembled []byte
	prev := 0
	for _, p := range parts {
		if p.Number <= prev {
			return objstore.Errorf(objstore.ErrInvalidArgument,
				"completed parts must be in ascending order, got %d after %d", p.Number, prev)
		}
		data, ok := sess.parts[p.Number]
		if !ok || sess.tags[p.Number] != p.Tag {
			return objstore.Errorf(objstore.ErrInvalidArgument,
				"part %d with tag %q was never uploaded", p.Number, p.Tag)
		}
		assembled = append(assembled, data...)
		prev = p.Number
	}

	// The object swaps in atomically under the backend lock; readers see
	// the old content or the full new content, never the parts.
	bkt.objects[sess.key] = &object{
		data:     assembled,
		metadata: copyMetadata(sess.metadata),
		modified: time.Now(),
	}
	delete(b.sessions, uploadID)
	return nil
}

func (b *Backend) AbortMultipartUpload(ctx context.Context, bucketName, key, uploadID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.session(bucketName, key, uploadID); err != nil {
		return err
	}
	delete(b.sessions, uploadID)
	b.aborted = append(b.aborted, uploadID)
	return nil
}

func (b *Backend) lookup(bucketName, key string) (*object, error) {
	bkt, ok := b.buckets[bucketName]
	if !ok {
		return nil, objstore.Errorf(objstore.ErrNotFound, "bucket %q not found", bucketName)
	}
	obj, ok := bkt.objects[key]
	if !ok {
		return nil, objstore.Errorf(objstore.ErrNotFound, "object %q not found in bucket %q", key, bucketName)
	}
	return obj, nil
}

func (b *Backend) session(bucketName, key, uploadID string) (*multipartSession, error) {
	sess, ok := b.sessions[uploadID]
	if !ok {
		return nil, objstore.Errorf(objstore.ErrNotFound, "no multipart upload with id %q", uploadID)
	}
	if sess.bucket != bucketName || sess.key != key {
		return nil, objstore.Errorf(objstore.ErrInvalidArgument,
			"upload %q targets %s, not %s", uploadID, sess.bucket+"/"+sess.key, bucketName+"/"+key)
	}
	return sess, nil
}

func copyMetadata(m objstore.Metadata) objstore.Metadata {
	if m == nil {
		return nil
	}
	out := make(objstore.Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

var _ objstore.Backend = (*Backend)(nil)
