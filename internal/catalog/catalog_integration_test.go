//go:build integration

package catalog_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lgandecki/convex-versioned-assets-sub001/internal/apperror"
	"github.com/lgandecki/convex-versioned-assets-sub001/internal/catalog"
	"github.com/lgandecki/convex-versioned-assets-sub001/internal/db/testdb"
	"github.com/lgandecki/convex-versioned-assets-sub001/internal/ids"
	"github.com/lgandecki/convex-versioned-assets-sub001/internal/storage"
)

func newRepository(t *testing.T) (*catalog.Repository, *storage.Registry) {
	t.Helper()
	ctx := context.Background()

	tdb := testdb.SetupTestDB(t)

	backends, err := storage.NewRegistry(ctx, storage.Config{
		Convex: storage.ConvexConfig{
			RootPath:      t.TempDir(),
			UploadBaseURL: "http://localhost:8080",
		},
	})
	require.NoError(t, err)

	return catalog.NewRepository(tdb.Pool(), backends), backends
}

// finishUploadWithBytes drives one round of the two-phase upload
// protocol end to end: it starts the upload, writes bytes directly to
// the convex backend the way internal/server's intake route would, and
// finishes the upload with the resulting storageId.
func finishUploadWithBytes(t *testing.T, ctx context.Context, repo *catalog.Repository, backends *storage.Registry, folderPath, basename string, content []byte) catalog.AssetVersion {
	t.Helper()

	started, err := repo.StartUpload(ctx, catalog.StartUploadParams{
		FolderPath:       folderPath,
		Basename:         basename,
		ContentType:      "text/plain",
		SizeHint:         int64(len(content)),
		OriginalFilename: basename,
	})
	require.NoError(t, err)

	convex, err := backends.Get(ids.BackendConvex)
	require.NoError(t, err)

	loc, err := convex.WriteBytes(ctx, ids.AssetID{}, 0, basename, bytes.NewReader(content), int64(len(content)), "text/plain")
	require.NoError(t, err)

	v, err := repo.FinishUpload(ctx, catalog.FinishUploadParams{
		IntentID: started.IntentID,
		UploadResponse: map[string]any{
			"storageId":   loc.StorageID,
			"contentType": "text/plain",
			"size":        float64(len(content)),
		},
	})
	require.NoError(t, err)
	return v
}

func TestUploadLifecycle_FirstVersionIsPublished(t *testing.T) {
	ctx := context.Background()
	repo, backends := newRepository(t)

	_, err := repo.CreateFolderByPath(ctx, "docs")
	require.NoError(t, err)

	v := finishUploadWithBytes(t, ctx, repo, backends, "docs", "readme.txt", []byte("hello world"))

	assert.Equal(t, 1, v.Version)
	assert.Equal(t, ids.VersionPublished, v.State)

	asset, err := repo.GetAsset(ctx, "docs", "readme.txt")
	require.NoError(t, err)
	assert.Equal(t, 1, asset.VersionCounter)
	require.NotNil(t, asset.PublishedVersionID)
	assert.Equal(t, v.ID, *asset.PublishedVersionID)

	published, err := repo.GetPublishedFile(ctx, "docs", "readme.txt")
	require.NoError(t, err)
	assert.Equal(t, v.ID, published.ID)
}

func TestUploadLifecycle_SecondVersionArchivesFirst(t *testing.T) {
	ctx := context.Background()
	repo, backends := newRepository(t)

	_, err := repo.CreateFolderByPath(ctx, "docs")
	require.NoError(t, err)

	v1 := finishUploadWithBytes(t, ctx, repo, backends, "docs", "readme.txt", []byte("v1"))
	v2 := finishUploadWithBytes(t, ctx, repo, backends, "docs", "readme.txt", []byte("v2"))

	assert.Equal(t, 2, v2.Version)

	versions, err := repo.GetAssetVersions(ctx, v2.AssetID)
	require.NoError(t, err)
	require.Len(t, versions, 2)

	byID := map[ids.VersionID]catalog.AssetVersion{versions[0].ID: versions[0], versions[1].ID: versions[1]}
	assert.Equal(t, ids.VersionArchived, byID[v1.ID].State)
	assert.Equal(t, ids.VersionPublished, byID[v2.ID].State)
}

func TestFinishUpload_RejectsRetryAfterConsumed(t *testing.T) {
	ctx := context.Background()
	repo, backends := newRepository(t)

	_, err := repo.CreateFolderByPath(ctx, "docs")
	require.NoError(t, err)

	started, err := repo.StartUpload(ctx, catalog.StartUploadParams{
		FolderPath: "docs", Basename: "a.txt", ContentType: "text/plain",
	})
	require.NoError(t, err)

	convex, err := backends.Get(ids.BackendConvex)
	require.NoError(t, err)
	loc, err := convex.WriteBytes(ctx, ids.AssetID{}, 0, "a.txt", bytes.NewReader([]byte("x")), 1, "text/plain")
	require.NoError(t, err)

	resp := map[string]any{"storageId": loc.StorageID, "contentType": "text/plain", "size": float64(1)}

	_, err = repo.FinishUpload(ctx, catalog.FinishUploadParams{IntentID: started.IntentID, UploadResponse: resp})
	require.NoError(t, err)

	_, err = repo.FinishUpload(ctx, catalog.FinishUploadParams{IntentID: started.IntentID, UploadResponse: resp})
	require.Error(t, err)
	kind, ok := apperror.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, apperror.KindIntentConsumed, kind)
}

func TestRestoreVersion_CreatesNewVersionRatherThanReviving(t *testing.T) {
	ctx := context.Background()
	repo, backends := newRepository(t)

	_, err := repo.CreateFolderByPath(ctx, "docs")
	require.NoError(t, err)

	v1 := finishUploadWithBytes(t, ctx, repo, backends, "docs", "readme.txt", []byte("v1"))
	v2 := finishUploadWithBytes(t, ctx, repo, backends, "docs", "readme.txt", []byte("v2"))

	restored, err := repo.RestoreVersion(ctx, v2.AssetID, v1.ID)
	require.NoError(t, err)

	assert.Equal(t, 3, restored.Version)
	assert.Equal(t, ids.VersionPublished, restored.State)
	assert.NotEqual(t, v1.ID, restored.ID)

	versions, err := repo.GetAssetVersions(ctx, v2.AssetID)
	require.NoError(t, err)
	byID := make(map[ids.VersionID]catalog.AssetVersion, len(versions))
	for _, v := range versions {
		byID[v.ID] = v
	}
	assert.Equal(t, ids.VersionArchived, byID[v1.ID].State, "restoring must not revive the original row")
	assert.Equal(t, ids.VersionArchived, byID[v2.ID].State)
	assert.Equal(t, ids.VersionPublished, byID[restored.ID].State)
}

func TestRenameAsset_RejectsCollisionInSameFolder(t *testing.T) {
	ctx := context.Background()
	repo, backends := newRepository(t)

	_, err := repo.CreateFolderByPath(ctx, "docs")
	require.NoError(t, err)

	a := finishUploadWithBytes(t, ctx, repo, backends, "docs", "a.txt", []byte("a"))
	_ = finishUploadWithBytes(t, ctx, repo, backends, "docs", "b.txt", []byte("b"))

	_, err = repo.RenameAsset(ctx, a.AssetID, "b.txt")
	require.Error(t, err)
	kind, ok := apperror.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, apperror.KindAssetExists, kind)

	renamed, err := repo.RenameAsset(ctx, a.AssetID, "c.txt")
	require.NoError(t, err)
	assert.Equal(t, "c.txt", renamed.Basename)
}

func TestChangelogPagination_CompoundCursorCoversEveryEntryOnce(t *testing.T) {
	ctx := context.Background()
	repo, backends := newRepository(t)

	_, err := repo.CreateFolderByPath(ctx, "docs")
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err := repo.CreateFolderByName(ctx, "docs", "sub"+string(rune('a'+i)))
		require.NoError(t, err)
	}
	finishUploadWithBytes(t, ctx, repo, backends, "docs", "a.txt", []byte("a"))

	var all []catalog.ChangelogEntry
	var cursor *catalog.Cursor
	for {
		page, err := repo.ListSince(ctx, cursor, 3)
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		all = append(all, page...)
		cursor = catalog.NextCursor(page)
	}

	seen := make(map[ids.ChangelogID]bool, len(all))
	for _, e := range all {
		assert.False(t, seen[e.ID], "entry %s returned twice across pages", e.ID)
		seen[e.ID] = true
	}
	// 1 root folder + 5 children + (assetCreated + versionCreated + versionPublished)
	assert.Equal(t, 9, len(all))
}
