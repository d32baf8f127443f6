// Permission manager for the object storage facade. Ownership and
// explicit grants are answered through a single Check predicate so the
// facade performs exactly one permission query per operation and never
// branches on where an authorization came from.

package perms

import (
	"strings"
	"sync"

	"github.com/serverlessresearch/objstore/pkg/objstore"
)

type grantKey struct {
	kind   objstore.ResourceKind
	id     string
	user   objstore.User
	action objstore.Action
}

type ownerKey struct {
	kind objstore.ResourceKind
	id   string
}

// Manager holds the process-wide ownership and grant state. All methods
// are safe for concurrent use; Check takes only a read lock so permission
// queries from independent operations do not serialize each other.
type Manager struct {
	mu     sync.RWMutex
	owners map[ownerKey]objstore.User
	grants map[grantKey]struct{}
	log    objstore.Logger
}

func NewManager(logger objstore.Logger) *Manager {
	return &Manager{
		owners: make(map[ownerKey]objstore.User),
		grants: make(map[grantKey]struct{}),
		log:    logger,
	}
}

// ObjectID builds the resource identifier for an object. Bucket resources
// use the bare bucket name.
func ObjectID(bucket, key string) string {
	return bucket + "/" + key
}

// Check reports whether user may perform action on the named resource.
// True if the user owns the resource, owns the containing bucket (object
// resources only), or holds an explicit grant. No side effects.
func (m *Manager) Check(kind objstore.ResourceKind, id string, user objstore.User, action objstore.Action) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if owner, ok := m.owners[ownerKey{kind, id}]; ok && owner == user {
		return true
	}
	if kind == objstore.KindObject {
		// The bucket owner holds an implicit superset permission over
		// every object in the bucket.
		bucket := id
		if i := strings.Index(id, "/"); i >= 0 {
			bucket = id[:i]
		}
		if owner, ok := m.owners[ownerKey{objstore.KindBucket, bucket}]; ok && owner == user {
			return true
		}
	}
	_, ok := m.grants[grantKey{kind, id, user, action}]
	return ok
}

// Grant records an explicit permission. Grants are additive facts;
// re-granting an existing (resource, user, action) triple is a no-op.
// There is deliberately no revoke operation.
func (m *Manager) Grant(kind objstore.ResourceKind, id string, user objstore.User, action objstore.Action) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := grantKey{kind, id, user, action}
	if _, ok := m.grants[k]; ok {
		return
	}
	m.grants[k] = struct{}{}
	if m.log != nil {
		m.log.Debugf("granted %s on %s %q to %q", action, kind, id, user)
	}
}

// RecordOwnership registers the creator of a new resource. Ownership is
// immutable: recording it twice for the same resource is a logic error.
func (m *Manager) RecordOwnership(kind objstore.ResourceKind, id string, owner objstore.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := ownerKey{kind, id}
	if existing, ok := m.owners[k]; ok {
		return objstore.Errorf(objstore.ErrAlreadyExists,
			"ownership of %s %q already recorded for %q", kind, id, existing)
	}
	m.owners[k] = owner
	return nil
}

// Owner returns the recorded owner of a resource, if any.
func (m *Manager) Owner(kind objstore.ResourceKind, id string) (objstore.User, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	owner, ok := m.owners[ownerKey{kind, id}]
	return owner, ok
}

// Release drops the ownership record and every grant for a deleted
// resource so a later resource under the same identifier starts clean.
func (m *Manager) Release(kind objstore.ResourceKind, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.owners, ownerKey{kind, id})
	for k := range m.grants {
		if k.kind == kind && k.id == id {
			delete(m.grants, k)
		}
	}
}

// ReleaseBucket drops the bucket's own records plus those of every object
// resource under it. Used by force deletion.
func (m *Manager) ReleaseBucket(bucket string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.owners, ownerKey{objstore.KindBucket, bucket})
	prefix := bucket + "/"
	for k := range m.owners {
		if k.kind == objstore.KindObject && strings.HasPrefix(k.id, prefix) {
			delete(m.owners, k)
		}
	}
	for k := range m.grants {
		switch k.kind {
		case objstore.KindBucket:
			if k.id == bucket {
				delete(m.grants, k)
			}
		case objstore.KindObject:
			if strings.HasPrefix(k.id, prefix) {
				delete(m.grants, k)
			}
		}
	}
}
