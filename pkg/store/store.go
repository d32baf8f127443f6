// The object store facade: every bucket/object operation callers can
// perform, each one gated by a single permission query before the backend
// is touched. Large payloads are handed to the multipart coordinator.

package store

import (
	"bytes"
	"context"
	"io"

	"github.com/pkg/errors"

	"github.com/serverlessresearch/objstore/pkg/multipart"
	"github.com/serverlessresearch/objstore/pkg/objstore"
	"github.com/serverlessresearch/objstore/pkg/perms"
)

type Store struct {
	backend objstore.Backend
	perms   *perms.Manager
	coord   *multipart.Coordinator
	locks   *keyLock
	log     objstore.Logger
}

func New(backend objstore.Backend, pm *perms.Manager, logger objstore.Logger) *Store {
	return &Store{
		backend: backend,
		perms:   pm,
		coord:   multipart.NewCoordinator(backend, logger.WithField("module", "multipart")),
		locks:   newKeyLock(),
		log:     logger,
	}
}

func validBucketName(name string) error {
	if len(name) < 3 || len(name) > 63 {
		return objstore.Errorf(objstore.ErrInvalidArgument, "bucket name %q must be 3-63 characters", name)
	}
	for _, c := range name {
		if c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '-' || c == '.' {
			continue
		}
		return objstore.Errorf(objstore.ErrInvalidArgument,
			"bucket name %q may only contain lowercase letters, digits, '-' and '.'", name)
	}
	return nil
}

func validKey(key string) error {
	if key == "" {
		return objstore.NewError(objstore.ErrInvalidArgument, "object key must be non-empty")
	}
	return nil
}

// CreateBucket makes a new bucket owned by owner. If the backend bucket
// is created but ownership cannot be recorded, the backend bucket is
// rolled back so no unowned bucket survives.
func (s *Store) CreateBucket(ctx context.Context, name string, owner objstore.User) error {
	if err := validBucketName(name); err != nil {
		return err
	}
	s.locks.lock(name)
	defer s.locks.unlock(name)

	if err := s.backend.CreateBucket(ctx, name); err != nil {
		return errors.Wrapf(err, "failed to create bucket %q", name)
	}
	if err := s.perms.RecordOwnership(objstore.KindBucket, name, owner); err != nil {
		if derr := s.backend.DeleteBucket(ctx, name); derr != nil {
			s.log.Errorf("could not roll back bucket %q after ownership failure: %v", name, derr)
		}
		return errors.Wrapf(err, "failed to record ownership of bucket %q", name)
	}
	s.log.Infof("created bucket %q for user %q", name, owner)
	return nil
}

// DeleteBucket removes a bucket. A non-empty bucket is only removed when
// force is set, in which case every contained object is deleted first,
// each deletion checked against the deleting user.
func (s *Store) DeleteBucket(ctx context.Context, name string, user objstore.User, force bool) error {
	s.locks.lock(name)
	defer s.locks.unlock(name)

	if !s.perms.Check(objstore.KindBucket, name, user, objstore.ActionDelete) {
		return objstore.Errorf(objstore.ErrPermissionDenied, "user %q may not delete bucket %q", user, name)
	}
	keys, err := s.backend.ListObjects(ctx, name, "")
	if err != nil {
		return errors.Wrapf(err, "failed to list bucket %q before deletion", name)
	}
	if len(keys) > 0 {
		if !force {
			return objstore.Errorf(objstore.ErrBucketNotEmpty,
				"bucket %q still holds %d objects (use force to cascade)", name, len(keys))
		}
		for _, key := range keys {
			id := perms.ObjectID(name, key)
			if !s.perms.Check(objstore.KindObject, id, user, objstore.ActionDelete) {
				return objstore.Errorf(objstore.ErrPermissionDenied,
					"user %q may not delete object %q during force deletion", user, id)
			}
			if err := s.backend.DeleteObject(ctx, name, key); err != nil {
				return errors.Wrapf(err, "failed to delete object %q while force-deleting bucket %q", key, name)
			}
		}
	}
	if err := s.backend.DeleteBucket(ctx, name); err != nil {
		return errors.Wrapf(err, "failed to delete bucket %q", name)
	}
	s.perms.ReleaseBucket(name)
	s.log.Infof("deleted bucket %q (force=%v)", name, force)
	return nil
}

// ListBuckets returns every bucket the backend knows about, annotated
// with the recorded owner. Buckets created outside the facade have no
// owner on record and are reported with an empty one.
func (s *Store) ListBuckets(ctx context.Context) ([]objstore.BucketInfo, error) {
	infos, err := s.backend.ListBuckets(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list buckets")
	}
	for i := range infos {
		if owner, ok := s.perms.Owner(objstore.KindBucket, infos[i].Name); ok {
			infos[i].Owner = owner
		}
	}
	return infos, nil
}

// Upload writes content under (bucket, key). Overwriting an existing
// object requires write permission on the object itself; creating a new
// key requires write permission on the bucket. Ownership is recorded for
// new keys only.
func (s *Store) Upload(ctx context.Context, bucket, key string, content []byte, user objstore.User, metadata objstore.Metadata) error {
	return s.upload(ctx, bucket, key, user, metadata, false, func(ctx context.Context) error {
		return s.backend.PutObject(ctx, bucket, key, content, metadata)
	})
}

// Update overwrites an existing object. Permission semantics are the
// same as an overwrite upload; a missing key is NotFound.
func (s *Store) Update(ctx context.Context, bucket, key string, content []byte, user objstore.User, metadata objstore.Metadata) error {
	return s.upload(ctx, bucket, key, user, metadata, true, func(ctx context.Context) error {
		return s.backend.PutObject(ctx, bucket, key, content, metadata)
	})
}

// UploadLarge streams src into (bucket, key) using the multipart
// protocol. Payloads that fit in a single part bypass the coordinator and
// take the plain upload path. Permission semantics match Upload.
func (s *Store) UploadLarge(ctx context.Context, bucket, key string, src io.Reader, user objstore.User, partSize int64, metadata objstore.Metadata) error {
	if partSize <= 0 {
		partSize = multipart.DefaultPartSize
	}
	return s.upload(ctx, bucket, key, user, metadata, false, func(ctx context.Context) error {
		// Peek one byte past the first part: if the payload fits in a
		// single part there is nothing to coordinate.
		head := make([]byte, partSize+1)
		n, err := io.ReadFull(src, head)
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return s.backend.PutObject(ctx, bucket, key, head[:n], metadata)
		}
		if err != nil {
			return errors.Wrap(err, "failed to read upload source")
		}
		combined := io.MultiReader(bytes.NewReader(head[:n]), src)
		return s.coord.Upload(ctx, bucket, key, combined, partSize, metadata)
	})
}

// upload centralizes the permission check and ownership bookkeeping
// shared by the plain, update, and multipart paths.
func (s *Store) upload(ctx context.Context, bucket, key string, user objstore.User, metadata objstore.Metadata,
	requireExists bool, write func(context.Context) error) error {

	if err := validKey(key); err != nil {
		return err
	}
	if err := metadata.Validate(); err != nil {
		return err
	}
	id := perms.ObjectID(bucket, key)
	s.locks.lock(id)
	defer s.locks.unlock(id)

	_, exists := s.perms.Owner(objstore.KindObject, id)
	if exists {
		if !s.perms.Check(objstore.KindObject, id, user, objstore.ActionWrite) {
			return objstore.Errorf(objstore.ErrPermissionDenied, "user %q may not overwrite object %q", user, id)
		}
	} else {
		if !s.perms.Check(objstore.KindBucket, bucket, user, objstore.ActionWrite) {
			return objstore.Errorf(objstore.ErrPermissionDenied,
				"user %q may not create objects in bucket %q", user, bucket)
		}
		if requireExists {
			return objstore.Errorf(objstore.ErrNotFound, "object %q not found", id)
		}
	}

	if err := write(ctx); err != nil {
		return errors.Wrapf(err, "failed to write object %q", id)
	}
	if !exists {
		if err := s.perms.RecordOwnership(objstore.KindObject, id, user); err != nil {
			return errors.Wrapf(err, "failed to record ownership of object %q", id)
		}
	}
	s.log.Debugf("wrote object %q as user %q", id, user)
	return nil
}

// Read returns the object's content. The permission check runs before
// the existence check so an unauthorized caller cannot distinguish a
// forbidden key from an absent one.
func (s *Store) Read(ctx context.Context, bucket, key string, user objstore.User) ([]byte, error) {
	id := perms.ObjectID(bucket, key)
	if !s.perms.Check(objstore.KindObject, id, user, objstore.ActionRead) {
		return nil, objstore.Errorf(objstore.ErrPermissionDenied, "user %q may not read object %q", user, id)
	}
	data, err := s.backend.GetObject(ctx, bucket, key)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read object %q", id)
	}
	return data, nil
}

// Delete removes one object.
func (s *Store) Delete(ctx context.Context, bucket, key string, user objstore.User) error {
	id := perms.ObjectID(bucket, key)
	s.locks.lock(id)
	defer s.locks.unlock(id)

	if !s.perms.Check(objstore.KindObject, id, user, objstore.ActionDelete) {
		return objstore.Errorf(objstore.ErrPermissionDenied, "user %q may not delete object %q", user, id)
	}
	if err := s.backend.DeleteObject(ctx, bucket, key); err != nil {
		return errors.Wrapf(err, "failed to delete object %q", id)
	}
	s.perms.Release(objstore.KindObject, id)
	s.log.Debugf("deleted object %q as user %q", id, user)
	return nil
}

// List returns the keys in bucket starting with prefix, in lexical
// order. Listing requires read permission on the bucket, not on the
// individual objects.
func (s *Store) List(ctx context.Context, bucket string, user objstore.User, prefix string) ([]string, error) {
	if !s.perms.Check(objstore.KindBucket, bucket, user, objstore.ActionRead) {
		return nil, objstore.Errorf(objstore.ErrPermissionDenied, "user %q may not list bucket %q", user, bucket)
	}
	keys, err := s.backend.ListObjects(ctx, bucket, prefix)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list bucket %q", bucket)
	}
	return keys, nil
}

// Metadata returns the object's metadata and stat information. Same
// permission class as Read.
func (s *Store) Metadata(ctx context.Context, bucket, key string, user objstore.User) (*objstore.ObjectInfo, error) {
	id := perms.ObjectID(bucket, key)
	if !s.perms.Check(objstore.KindObject, id, user, objstore.ActionRead) {
		return nil, objstore.Errorf(objstore.ErrPermissionDenied, "user %q may not read object %q", user, id)
	}
	info, err := s.backend.GetObjectMetadata(ctx, bucket, key)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to stat object %q", id)
	}
	return info, nil
}

// Grant records an explicit permission for another user. Only the
// resource owner (or someone the owner already granted the action) may
// extend access.
func (s *Store) Grant(kind objstore.ResourceKind, id string, grantor, grantee objstore.User, action objstore.Action) error {
	if !s.perms.Check(kind, id, grantor, action) {
		return objstore.Errorf(objstore.ErrPermissionDenied,
			"user %q may not grant %s on %s %q", grantor, action, kind, id)
	}
	s.perms.Grant(kind, id, grantee, action)
	return nil
}
