// Multipart upload coordinator. Splits a payload into numbered parts,
// drives the backend's multipart protocol with bounded parallelism, and
// guarantees that the target object is observable either in its
// pre-upload state or fully assembled, never partially.

package multipart

import (
	"context"
	"io"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/serverlessresearch/objstore/pkg/objstore"
)

// DefaultPartSize is the smallest part size S3 accepts for multipart
// assembly. Payloads at or below one part go through the plain upload
// path instead.
const DefaultPartSize = 5 * 1024 * 1024

// DefaultConcurrency bounds how many parts are in flight at once. Part
// upload order does not matter; only the final complete call is
// order-sensitive.
const DefaultConcurrency = 4

type Status int

const (
	Initiated Status = iota
	PartsUploading
	Completed
	Aborted
)

func (s Status) String() string {
	switch s {
	case Initiated:
		return "initiated"
	case PartsUploading:
		return "parts-uploading"
	case Completed:
		return "completed"
	case Aborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// A session tracks one in-flight upload: target, backend upload ID, the
// parts confirmed so far, and where in the state machine it is.
type session struct {
	bucket   string
	key      string
	uploadID string
	partSize int64

	mu     sync.Mutex
	parts  []objstore.CompletedPart
	status Status
}

func (s *session) addPart(p objstore.CompletedPart) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.parts = append(s.parts, p)
}

// markUploading advances Initiated to PartsUploading when the first part
// is dispatched, so an abort reports in-flight parts even if none were
// confirmed yet.
func (s *session) markUploading() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == Initiated {
		s.status = PartsUploading
	}
}

func (s *session) sortedParts() []objstore.CompletedPart {
	s.mu.Lock()
	defer s.mu.Unlock()
	parts := append([]objstore.CompletedPart(nil), s.parts...)
	sort.Slice(parts, func(i, j int) bool { return parts[i].Number < parts[j].Number })
	return parts
}

type Coordinator struct {
	backend     objstore.Backend
	log         objstore.Logger
	concurrency int
}

func NewCoordinator(backend objstore.Backend, logger objstore.Logger) *Coordinator {
	return &Coordinator{
		backend:     backend,
		log:         logger,
		concurrency: DefaultConcurrency,
	}
}

// Upload streams src into (bucket, key) through the backend's multipart
// protocol. Parts are read sequentially in partSize chunks (the final
// chunk may be shorter) and uploaded with bounded parallelism. Any
// failure, including cancellation of ctx, aborts the session before the
// error is returned; the coordinator performs no retries.
func (c *Coordinator) Upload(ctx context.Context, bucket, key string, src io.Reader, partSize int64, metadata objstore.Metadata) error {
	if partSize <= 0 {
		partSize = DefaultPartSize
	}

	uploadID, err := c.backend.CreateMultipartUpload(ctx, bucket, key, metadata)
	if err != nil {
		return errors.Wrap(err, "failed to open multipart upload")
	}
	sess := &session{
		bucket:   bucket,
		key:      key,
		uploadID: uploadID,
		partSize: partSize,
		status:   Initiated,
	}
	c.log.WithField("uploadID", uploadID).Debugf("opened multipart session for %s/%s", bucket, key)

	if err := c.uploadParts(ctx, sess, src); err != nil {
		return c.abort(sess, err)
	}

	parts := sess.sortedParts()
	if err := c.backend.CompleteMultipartUpload(ctx, bucket, key, uploadID, parts); err != nil {
		return c.abort(sess, errors.Wrap(err, "failed to complete multipart upload"))
	}
	sess.mu.Lock()
	sess.status = Completed
	sess.mu.Unlock()
	c.log.WithField("uploadID", uploadID).Debugf("completed multipart upload of %d parts", len(parts))
	return nil
}

// uploadParts reads src sequentially and fans the chunks out to the
// backend. Part numbers are contiguous from 1 in read order.
func (c *Coordinator) uploadParts(ctx context.Context, sess *session, src io.Reader) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	for partNumber := 1; ; partNumber++ {
		if err := gctx.Err(); err != nil {
			break
		}
		buf := make([]byte, sess.partSize)
		n, err := io.ReadFull(src, buf)
		if n > 0 {
			sess.markUploading()
			data := buf[:n]
			num := partNumber
			g.Go(func() error {
				tag, uerr := c.backend.UploadPart(gctx, sess.bucket, sess.key, sess.uploadID, num, data)
				if uerr != nil {
					return errors.Wrapf(uerr, "failed to upload part %d", num)
				}
				sess.addPart(objstore.CompletedPart{Number: num, Tag: tag})
				return nil
			})
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			// Let in-flight parts drain before aborting.
			_ = g.Wait()
			return errors.Wrap(err, "failed to read upload source")
		}
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// abort releases the uploaded-but-uncommitted parts and re-surfaces the
// original error. The abort call runs on a fresh context because the
// caller's context may already be canceled.
func (c *Coordinator) abort(sess *session, cause error) error {
	sess.mu.Lock()
	prev := sess.status
	sess.status = Aborted
	sess.mu.Unlock()

	if aerr := c.backend.AbortMultipartUpload(context.Background(), sess.bucket, sess.key, sess.uploadID); aerr != nil {
		c.log.WithField("uploadID", sess.uploadID).Warnf("failed to abort multipart upload (was %s): %v", prev, aerr)
	} else {
		c.log.WithField("uploadID", sess.uploadID).Debugf("aborted multipart upload (was %s)", prev)
	}
	return cause
}
