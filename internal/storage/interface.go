// Package storage implements the two storage backends as a closed tagged
// variant: the in-platform "convex" blob store and the S3-compatible
// "r2" backend. Both satisfy the same Backend capability interface so
// the catalog layer never type-switches on backend identity.
package storage

import (
	"context"
	"io"
	"time"

	"github.com/lgandecki/convex-versioned-assets-sub001/internal/ids"
)

// Locator is the backend-specific reference to a version's bytes.
// Exactly one of StorageID or (R2Key, R2PublicURL) is populated for a
// settled version, except mid-migration where both may be set.
type Locator struct {
	Backend     ids.Backend
	StorageID   string
	R2Key       string
	R2PublicURL string
}

// HasConvex reports whether the convex-backend locator fields are set.
func (l Locator) HasConvex() bool { return l.StorageID != "" }

// HasR2 reports whether the r2-backend locator fields are set.
func (l Locator) HasR2() bool { return l.R2Key != "" }

// Preferred picks which locator to read from when both are populated,
// favoring the S3-compatible backend over the in-platform one.
func (l Locator) Preferred() ids.Backend {
	if l.HasR2() {
		return ids.BackendR2
	}
	return ids.BackendConvex
}

// IssueUploadOptions parameterizes a startUpload call.
type IssueUploadOptions struct {
	AssetID     ids.AssetID
	IntentID    ids.IntentID
	Basename    string
	ContentType string
	SizeHint    int64
}

// UploadGrant is what startUpload hands back to the client plus what the
// catalog needs to remember on the intent until finishUpload.
type UploadGrant struct {
	UploadURL            string
	Method               string // POST or PUT
	PendingLocator       Locator
}

// FinalizeInput is what finishUpload has in hand to resolve the
// definitive Locator for a newly uploaded blob.
type FinalizeInput struct {
	Pending         Locator
	AssetID         ids.AssetID
	Version         int
	OriginalFilename string
	// UploadResponse is the JSON object the client got back from its PUT/POST
	// to UploadGrant.UploadURL (e.g. {"storageId": "..."} for convex). Nil
	// for backends (r2) that need no client-supplied confirmation.
	UploadResponse map[string]any
}

// Backend is the capability interface both storage backends implement.
// Both concrete backends (ConvexBackend, R2Backend) implement it in full; the
// parts that don't apply to a given backend (e.g. SignedReadURL on a
// backend that is always public) are still implemented, just trivially.
type Backend interface {
	Kind() ids.Backend

	// IssueUpload issues a client-facing upload URL and the locator that
	// will become definitive once finishUpload confirms it.
	IssueUpload(ctx context.Context, opts IssueUploadOptions) (*UploadGrant, error)

	// FinalizeUpload derives the definitive Locator once the client has
	// reported (or the backend has otherwise confirmed) the upload.
	FinalizeUpload(ctx context.Context, in FinalizeInput) (Locator, error)

	// ResolvePublicURL returns the URL public readers should be sent to.
	// For convex this is a same-process streaming route (ReadBytes is
	// used instead); for r2 this is the CDN base URL.
	ResolvePublicURL(ctx context.Context, loc Locator) (string, error)

	// SignedReadURL returns a short-lived signed URL for private access.
	SignedReadURL(ctx context.Context, loc Locator, ttl time.Duration) (string, error)

	// ReadBytes opens a server-side stream of the blob's bytes, for
	// same-process serving, text-content preview, and migration copies.
	ReadBytes(ctx context.Context, loc Locator) (io.ReadCloser, error)

	// WriteBytes stores a stream server-side, bypassing the client
	// upload-URL dance. r2 keys the object by assetID/version/filename;
	// convex ignores them and stores the blob under a fresh storageId.
	// Used by the convex backend's own server-side upload endpoint and by
	// the migration engine to copy convex -> r2.
	WriteBytes(ctx context.Context, assetID ids.AssetID, version int, filename string, r io.Reader, size int64, contentType string) (Locator, error)

	// KeyPrefix is the deterministic prefix applied to every object key
	// (only meaningful for r2; convex returns "").
	KeyPrefix() string
}
