package storage

import (
	"bytes"
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lgandecki/convex-versioned-assets-sub001/internal/ids"
)

func newTestConvexBackend(t *testing.T) *ConvexBackend {
	t.Helper()
	tempDir, err := os.MkdirTemp("", "convex-storage-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	backend, err := NewConvexBackend(ConvexConfig{
		RootPath:      tempDir,
		UploadBaseURL: "http://localhost:8080",
	})
	require.NoError(t, err)
	return backend
}

func TestConvexBackend_WriteAndReadBytes(t *testing.T) {
	backend := newTestConvexBackend(t)
	ctx := context.Background()
	assetID := ids.NewAssetID()
	content := []byte("hello blob")

	loc, err := backend.WriteBytes(ctx, assetID, 1, "report.pdf", bytes.NewReader(content), int64(len(content)), "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, ids.BackendConvex, loc.Backend)
	assert.NotEmpty(t, loc.StorageID)

	reader, err := backend.ReadBytes(ctx, loc)
	require.NoError(t, err)
	defer reader.Close()

	got := make([]byte, len(content))
	_, err = reader.Read(got)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestConvexBackend_ReadBytes_NotFound(t *testing.T) {
	backend := newTestConvexBackend(t)
	ctx := context.Background()

	_, err := backend.ReadBytes(ctx, Locator{Backend: ids.BackendConvex, StorageID: "does-not-exist"})
	assert.Error(t, err)
}

func TestConvexBackend_IssueUpload(t *testing.T) {
	backend := newTestConvexBackend(t)
	ctx := context.Background()
	intentID := ids.NewIntentID()

	grant, err := backend.IssueUpload(ctx, IssueUploadOptions{IntentID: intentID, Basename: "file.txt"})
	require.NoError(t, err)
	assert.Equal(t, "POST", grant.Method)
	assert.Contains(t, grant.UploadURL, intentID.String())
}

func TestConvexBackend_FinalizeUpload(t *testing.T) {
	backend := newTestConvexBackend(t)
	ctx := context.Background()
	assetID := ids.NewAssetID()

	loc, err := backend.WriteBytes(ctx, assetID, 1, "f.txt", bytes.NewReader([]byte("x")), 1, "text/plain")
	require.NoError(t, err)

	final, err := backend.FinalizeUpload(ctx, FinalizeInput{
		UploadResponse: map[string]any{"storageId": loc.StorageID},
	})
	require.NoError(t, err)
	assert.Equal(t, loc.StorageID, final.StorageID)

	_, err = backend.FinalizeUpload(ctx, FinalizeInput{UploadResponse: map[string]any{}})
	assert.Error(t, err)

	_, err = backend.FinalizeUpload(ctx, FinalizeInput{UploadResponse: map[string]any{"storageId": "nope"}})
	assert.Error(t, err)
}

func TestConvexBackend_ResolvePublicURL(t *testing.T) {
	backend := newTestConvexBackend(t)
	ctx := context.Background()

	url, err := backend.ResolvePublicURL(ctx, Locator{StorageID: "abc"})
	require.NoError(t, err)
	assert.Contains(t, url, "abc")

	_, err = backend.ResolvePublicURL(ctx, Locator{})
	assert.Error(t, err)
}
