/*

The SRK Object Storage API defines a simple and standardized way of interacting with immutable cloud object storage such as
provided by AWS S3, Google Cloud Storage, and Azure Cloud Storage.
The initial specification provided only minimal functionality; this revision adds the two extensions we had previously
deferred: access control and multipart uploads.

Access control - every data-path operation names an acting user (an opaque identifier supplied by the caller; we do not
integrate with any identity provider). The creator of a bucket or object owns it and may do anything with it; any other
access requires an explicit grant. Checks are answered by a single permission manager instance so the facade performs
exactly one permission query per operation.

Multipart uploads - large payloads are split into numbered parts, uploaded through the backend's multipart protocol,
and committed by a single completion call. Readers observe either the pre-upload state or the fully assembled object,
never a partial one. On any failure the session is aborted and the uploaded parts are released.

Errors - every operation returns a single classified error (permission denied, not found, already exists, bucket not
empty, invalid argument, or a wrapped backend failure). Backend-specific error types never escape the backend adapter,
which simplifies error handling because the caller only needs one check.

Consistency guarantees - consistency guarantees of the underlying store are left unspecified. The facade's own state
(ownership and grants) is process-local and strongly consistent.

Object versions - object versions are not part of the specification. An overwrite replaces the previous content.

Asynchronous requests - part uploads within a multipart session run with bounded parallelism internally, but the public
API is synchronous; callers wanting asynchrony should wrap calls in their own goroutines.
*/
package objstore
