package store

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/serverlessresearch/objstore/pkg/mems3"
	"github.com/serverlessresearch/objstore/pkg/objstore"
	"github.com/serverlessresearch/objstore/pkg/perms"
)

func newTestStore() (*Store, *mems3.Backend, *perms.Manager) {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	backend := mems3.New(logger)
	pm := perms.NewManager(logger)
	return New(backend, pm, logger), backend, pm
}

// The end-to-end story: alice creates a bucket and an object, bob can do
// nothing until granted read, and even then cannot overwrite.
func TestCrossUserAccess(t *testing.T) {
	s, _, pm := newTestStore()
	ctx := context.Background()

	require.NoError(t, s.CreateBucket(ctx, "demo-bucket", "A"))
	require.NoError(t, s.Upload(ctx, "demo-bucket", "hello.txt", []byte("Hello, S3!"), "A", nil))

	_, err := s.Read(ctx, "demo-bucket", "hello.txt", "B")
	require.Error(t, err)
	assert.True(t, objstore.IsPermissionDenied(err))

	pm.Grant(objstore.KindObject, perms.ObjectID("demo-bucket", "hello.txt"), "B", objstore.ActionRead)

	content, err := s.Read(ctx, "demo-bucket", "hello.txt", "B")
	require.NoError(t, err)
	assert.Equal(t, []byte("Hello, S3!"), content)

	err = s.Upload(ctx, "demo-bucket", "hello.txt", []byte("overwritten"), "B", nil)
	require.Error(t, err)
	assert.True(t, objstore.IsPermissionDenied(err))

	// Content unchanged after the denied overwrite.
	content, err = s.Read(ctx, "demo-bucket", "hello.txt", "A")
	require.NoError(t, err)
	assert.Equal(t, []byte("Hello, S3!"), content)
}

func TestCreateBucketDuplicate(t *testing.T) {
	s, _, _ := newTestStore()
	ctx := context.Background()

	require.NoError(t, s.CreateBucket(ctx, "taken", "alice"))
	err := s.CreateBucket(ctx, "taken", "bob")
	require.Error(t, err)
	assert.True(t, objstore.IsAlreadyExists(err))

	// Ownership still belongs to the first creator.
	assert.True(t, s.perms.Check(objstore.KindBucket, "taken", "alice", objstore.ActionDelete))
	assert.False(t, s.perms.Check(objstore.KindBucket, "taken", "bob", objstore.ActionDelete))
}

func TestCreateBucketRollsBackOnOwnershipFailure(t *testing.T) {
	s, backend, pm := newTestStore()
	ctx := context.Background()

	// Simulate a stale ownership record with no backing bucket. Backend
	// creation succeeds, ownership recording fails, and the backend
	// bucket must be rolled back rather than left unowned.
	require.NoError(t, pm.RecordOwnership(objstore.KindBucket, "ghost", "nobody"))

	err := s.CreateBucket(ctx, "ghost", "alice")
	require.Error(t, err)

	buckets, err := backend.ListBuckets(ctx)
	require.NoError(t, err)
	assert.Empty(t, buckets, "backend bucket should have been rolled back")
}

func TestCreateBucketValidatesName(t *testing.T) {
	s, _, _ := newTestStore()
	ctx := context.Background()

	for _, name := range []string{"", "ab", "UPPER", "has space", "bad_underscore"} {
		err := s.CreateBucket(ctx, name, "alice")
		require.Error(t, err, "name %q should be rejected", name)
		assert.True(t, objstore.IsInvalidArgument(err), "name %q", name)
	}
}

func TestDeleteBucketRequiresForceWhenNonEmpty(t *testing.T) {
	s, _, _ := newTestStore()
	ctx := context.Background()

	require.NoError(t, s.CreateBucket(ctx, "full", "alice"))
	require.NoError(t, s.Upload(ctx, "full", "a.txt", []byte("a"), "alice", nil))
	require.NoError(t, s.Upload(ctx, "full", "b.txt", []byte("b"), "alice", nil))

	err := s.DeleteBucket(ctx, "full", "alice", false)
	require.Error(t, err)
	assert.True(t, objstore.IsBucketNotEmpty(err))

	// Nothing was mutated by the failed delete.
	keys, err := s.List(ctx, "full", "alice", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "b.txt"}, keys)

	require.NoError(t, s.DeleteBucket(ctx, "full", "alice", true))
	buckets, err := s.ListBuckets(ctx)
	require.NoError(t, err)
	assert.Empty(t, buckets)
}

func TestForceDeleteChecksTheDeletingUser(t *testing.T) {
	s, _, pm := newTestStore()
	ctx := context.Background()

	require.NoError(t, s.CreateBucket(ctx, "shared", "alice"))
	require.NoError(t, s.Upload(ctx, "shared", "secret.txt", []byte("x"), "alice", nil))

	// Bob holds bucket-level delete but no permission on alice's object,
	// so his force delete fails at the object check.
	pm.Grant(objstore.KindBucket, "shared", "bob", objstore.ActionDelete)
	err := s.DeleteBucket(ctx, "shared", "bob", true)
	require.Error(t, err)
	assert.True(t, objstore.IsPermissionDenied(err))

	// The bucket owner's superset permission covers every object.
	require.NoError(t, s.DeleteBucket(ctx, "shared", "alice", true))
}

func TestDeleteBucketReleasesPermissions(t *testing.T) {
	s, _, pm := newTestStore()
	ctx := context.Background()

	require.NoError(t, s.CreateBucket(ctx, "cycled", "alice"))
	require.NoError(t, s.Upload(ctx, "cycled", "k", []byte("v"), "alice", nil))
	pm.Grant(objstore.KindObject, perms.ObjectID("cycled", "k"), "bob", objstore.ActionRead)
	require.NoError(t, s.DeleteBucket(ctx, "cycled", "alice", true))

	// A recreated bucket starts clean: new owner, no leftover grants.
	require.NoError(t, s.CreateBucket(ctx, "cycled", "carol"))
	require.NoError(t, s.Upload(ctx, "cycled", "k", []byte("v2"), "carol", nil))
	_, err := s.Read(ctx, "cycled", "k", "bob")
	require.Error(t, err)
	assert.True(t, objstore.IsPermissionDenied(err))
	_, err = s.Read(ctx, "cycled", "k", "alice")
	require.Error(t, err)
	assert.True(t, objstore.IsPermissionDenied(err))
}

// An unauthorized caller gets the same denial whether the key exists or
// not; only authorized callers can observe absence.
func TestReadDeniesBeforeRevealingExistence(t *testing.T) {
	s, _, _ := newTestStore()
	ctx := context.Background()

	require.NoError(t, s.CreateBucket(ctx, "vault", "alice"))
	require.NoError(t, s.Upload(ctx, "vault", "exists.txt", []byte("x"), "alice", nil))

	for _, key := range []string{"exists.txt", "missing.txt"} {
		_, err := s.Read(ctx, "vault", key, "eve")
		require.Error(t, err)
		assert.True(t, objstore.IsPermissionDenied(err), "key %q should deny, not reveal existence", key)
	}

	_, err := s.Read(ctx, "vault", "missing.txt", "alice")
	require.Error(t, err)
	assert.True(t, objstore.IsNotFound(err))
}

func TestNewKeyNeedsBucketWriteOnly(t *testing.T) {
	s, _, pm := newTestStore()
	ctx := context.Background()

	require.NoError(t, s.CreateBucket(ctx, "drop", "alice"))

	err := s.Upload(ctx, "drop", "from-bob.txt", []byte("hi"), "bob", nil)
	require.Error(t, err)
	assert.True(t, objstore.IsPermissionDenied(err))

	pm.Grant(objstore.KindBucket, "drop", "bob", objstore.ActionWrite)
	require.NoError(t, s.Upload(ctx, "drop", "from-bob.txt", []byte("hi"), "bob", nil))

	// Bob owns the new object and may overwrite it; bucket-level write
	// does not extend to objects owned by others.
	require.NoError(t, s.Upload(ctx, "drop", "from-bob.txt", []byte("hi again"), "bob", nil))
	require.NoError(t, s.Upload(ctx, "drop", "from-alice.txt", []byte("yo"), "alice", nil))
	err = s.Upload(ctx, "drop", "from-alice.txt", []byte("overwrite"), "bob", nil)
	require.Error(t, err)
	assert.True(t, objstore.IsPermissionDenied(err))
}

func TestUpdateRequiresExistingKey(t *testing.T) {
	s, _, _ := newTestStore()
	ctx := context.Background()

	require.NoError(t, s.CreateBucket(ctx, "docs", "alice"))

	err := s.Update(ctx, "docs", "missing.txt", []byte("x"), "alice", nil)
	require.Error(t, err)
	assert.True(t, objstore.IsNotFound(err))

	require.NoError(t, s.Upload(ctx, "docs", "note.txt", []byte("v1"), "alice", nil))
	require.NoError(t, s.Update(ctx, "docs", "note.txt", []byte("v2"), "alice", nil))
	content, err := s.Read(ctx, "docs", "note.txt", "alice")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), content)
}

func TestListIsLexicalAndPrefixFiltered(t *testing.T) {
	s, _, pm := newTestStore()
	ctx := context.Background()

	require.NoError(t, s.CreateBucket(ctx, "tree", "alice"))
	for _, key := range []string{"folder/nested.txt", "data.json", "hello.txt", "folder/a.txt"} {
		require.NoError(t, s.Upload(ctx, "tree", key, []byte(key), "alice", nil))
	}

	keys, err := s.List(ctx, "tree", "alice", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"data.json", "folder/a.txt", "folder/nested.txt", "hello.txt"}, keys)

	keys, err = s.List(ctx, "tree", "alice", "folder/")
	require.NoError(t, err)
	assert.Equal(t, []string{"folder/a.txt", "folder/nested.txt"}, keys)

	// Listing needs bucket-level read, not per-object grants.
	_, err = s.List(ctx, "tree", "bob", "")
	require.Error(t, err)
	assert.True(t, objstore.IsPermissionDenied(err))
	pm.Grant(objstore.KindBucket, "tree", "bob", objstore.ActionRead)
	keys, err = s.List(ctx, "tree", "bob", "")
	require.NoError(t, err)
	assert.Len(t, keys, 4)
}

func TestMetadataRoundTrip(t *testing.T) {
	s, _, _ := newTestStore()
	ctx := context.Background()

	metadata := objstore.Metadata{"author": "Test User", "version": "1.0"}
	require.NoError(t, s.CreateBucket(ctx, "meta", "alice"))
	require.NoError(t, s.Upload(ctx, "meta", "doc.txt", []byte("body"), "alice", metadata))

	info, err := s.Metadata(ctx, "meta", "doc.txt", "alice")
	require.NoError(t, err)
	assert.Equal(t, "Test User", info.Metadata["author"])
	assert.Equal(t, int64(4), info.Size)

	// Same permission class as Read.
	_, err = s.Metadata(ctx, "meta", "doc.txt", "bob")
	require.Error(t, err)
	assert.True(t, objstore.IsPermissionDenied(err))
}

func TestMetadataValidation(t *testing.T) {
	s, _, _ := newTestStore()
	ctx := context.Background()

	require.NoError(t, s.CreateBucket(ctx, "meta", "alice"))
	err := s.Upload(ctx, "meta", "k", []byte("v"), "alice", objstore.Metadata{"": "empty key"})
	require.Error(t, err)
	assert.True(t, objstore.IsInvalidArgument(err))
}

func TestDeleteObject(t *testing.T) {
	s, _, pm := newTestStore()
	ctx := context.Background()

	require.NoError(t, s.CreateBucket(ctx, "bin", "alice"))
	require.NoError(t, s.Upload(ctx, "bin", "junk.txt", []byte("x"), "alice", nil))

	err := s.Delete(ctx, "bin", "junk.txt", "bob")
	require.Error(t, err)
	assert.True(t, objstore.IsPermissionDenied(err))

	pm.Grant(objstore.KindObject, perms.ObjectID("bin", "junk.txt"), "bob", objstore.ActionDelete)
	require.NoError(t, s.Delete(ctx, "bin", "junk.txt", "bob"))

	keys, err := s.List(ctx, "bin", "alice", "")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestGrantRequiresHoldingTheAction(t *testing.T) {
	s, _, _ := newTestStore()
	ctx := context.Background()

	require.NoError(t, s.CreateBucket(ctx, "b", "alice"))

	err := s.Grant(objstore.KindBucket, "b", "bob", "carol", objstore.ActionRead)
	require.Error(t, err)
	assert.True(t, objstore.IsPermissionDenied(err))

	require.NoError(t, s.Grant(objstore.KindBucket, "b", "alice", "carol", objstore.ActionRead))
	_, err = s.List(ctx, "b", "carol", "")
	require.NoError(t, err)
}

func TestUploadLargeBypassesCoordinatorForSmallPayloads(t *testing.T) {
	s, backend, _ := newTestStore()
	ctx := context.Background()

	require.NoError(t, s.CreateBucket(ctx, "big", "alice"))
	payload := bytes.Repeat([]byte("x"), 100)
	require.NoError(t, s.UploadLarge(ctx, "big", "small.bin", bytes.NewReader(payload), "alice", 1024, nil))

	content, err := s.Read(ctx, "big", "small.bin", "alice")
	require.NoError(t, err)
	assert.Equal(t, payload, content)
	assert.Empty(t, backend.Aborted())
}

func TestUploadLargeMultipart(t *testing.T) {
	s, _, _ := newTestStore()
	ctx := context.Background()

	require.NoError(t, s.CreateBucket(ctx, "big", "alice"))

	// Two and a half parts.
	payload := make([]byte, 2560)
	for i := range payload {
		payload[i] = byte(i % 251)
	}
	metadata := objstore.Metadata{"content-type": "application/octet-stream"}
	require.NoError(t, s.UploadLarge(ctx, "big", "large.bin", bytes.NewReader(payload), "alice", 1024, metadata))

	content, err := s.Read(ctx, "big", "large.bin", "alice")
	require.NoError(t, err)
	assert.Equal(t, payload, content)

	info, err := s.Metadata(ctx, "big", "large.bin", "alice")
	require.NoError(t, err)
	assert.Equal(t, "application/octet-stream", info.Metadata["content-type"])

	// The multipart path records ownership like the plain path.
	_, err = s.Read(ctx, "big", "large.bin", "bob")
	require.Error(t, err)
	assert.True(t, objstore.IsPermissionDenied(err))
}

func TestUploadLargePermissionCheck(t *testing.T) {
	s, _, _ := newTestStore()
	ctx := context.Background()

	require.NoError(t, s.CreateBucket(ctx, "big", "alice"))
	payload := bytes.Repeat([]byte("y"), 4096)
	err := s.UploadLarge(ctx, "big", "nope.bin", bytes.NewReader(payload), "bob", 1024, nil)
	require.Error(t, err)
	assert.True(t, objstore.IsPermissionDenied(err))
}

func TestUploadLargeFailureLeavesNoTrace(t *testing.T) {
	s, backend, pm := newTestStore()
	ctx := context.Background()

	require.NoError(t, s.CreateBucket(ctx, "big", "alice"))
	backend.FailPart = 2

	payload := bytes.Repeat([]byte("z"), 3072)
	err := s.UploadLarge(ctx, "big", "broken.bin", bytes.NewReader(payload), "alice", 1024, nil)
	require.Error(t, err)

	assert.Len(t, backend.Aborted(), 1, "the session should have been aborted")
	_, err = s.Read(ctx, "big", "broken.bin", "alice")
	require.Error(t, err)
	assert.True(t, objstore.IsNotFound(err), "the target key must not exist after an aborted upload")
	_, owned := pm.Owner(objstore.KindObject, perms.ObjectID("big", "broken.bin"))
	assert.False(t, owned, "no ownership should be recorded for a failed upload")
}

func TestKeyLockBlocksSecondHolder(t *testing.T) {
	kl := newKeyLock()
	kl.lock("demo/hello.txt")

	// A distinct id must not be held up by the first.
	kl.lock("demo/other.txt")
	kl.unlock("demo/other.txt")

	acquired := make(chan struct{})
	go func() {
		kl.lock("demo/hello.txt")
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second holder acquired the lock while the first still held it")
	case <-time.After(50 * time.Millisecond):
	}

	kl.unlock("demo/hello.txt")
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second holder never acquired the lock after release")
	}
	kl.unlock("demo/hello.txt")

	kl.mu.Lock()
	assert.Empty(t, kl.locks, "the entry should be removed once the last holder releases")
	kl.mu.Unlock()
}

// Hammer one key from several goroutines mixing uploads, reads, and
// deletes. Run with -race: the point is that per-key serialization keeps
// the interleavings consistent, not any particular final content.
func TestConcurrentOperationsOnOneKey(t *testing.T) {
	s, _, _ := newTestStore()
	ctx := context.Background()
	require.NoError(t, s.CreateBucket(ctx, "demo", "alice"))

	const workers = 8
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				switch j % 3 {
				case 0:
					err := s.Upload(ctx, "demo", "contended.txt", []byte{byte(n)}, "alice", nil)
					assert.NoError(t, err)
				case 1:
					_, err := s.Read(ctx, "demo", "contended.txt", "alice")
					if err != nil {
						assert.True(t, objstore.IsNotFound(err), "read may only fail because a racing delete won: %v", err)
					}
				case 2:
					err := s.Delete(ctx, "demo", "contended.txt", "alice")
					if err != nil {
						assert.True(t, objstore.IsNotFound(err), "delete may only fail because a racing delete won: %v", err)
					}
				}
			}
		}(i)
	}
	wg.Wait()

	if data, err := s.Read(ctx, "demo", "contended.txt", "alice"); err != nil {
		assert.True(t, objstore.IsNotFound(err))
	} else {
		assert.Len(t, data, 1, "the surviving object must be one whole write, never a torn one")
	}

	s.locks.mu.Lock()
	assert.Empty(t, s.locks.locks, "no lock entries should survive once all holders release")
	s.locks.mu.Unlock()
}

func TestListBucketsReportsOwners(t *testing.T) {
	s, _, _ := newTestStore()
	ctx := context.Background()

	require.NoError(t, s.CreateBucket(ctx, "alpha", "alice"))
	require.NoError(t, s.CreateBucket(ctx, "beta", "bob"))

	buckets, err := s.ListBuckets(ctx)
	require.NoError(t, err)
	owners := make(map[string]objstore.User, len(buckets))
	for _, b := range buckets {
		owners[b.Name] = b.Owner
	}
	assert.Equal(t, objstore.User("alice"), owners["alpha"])
	assert.Equal(t, objstore.User("bob"), owners["beta"])
}
