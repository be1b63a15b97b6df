// Package api is the orchestration/public-API layer: it wires
// internal/catalog, internal/storage, and internal/changelogfeed
// together and enforces each operation's own admin/authed/public
// authorization level via internal/auth.Require. internal/server depends
// on this package; this package never imports internal/server.
package api

import (
	"context"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lgandecki/convex-versioned-assets-sub001/internal/apperror"
	"github.com/lgandecki/convex-versioned-assets-sub001/internal/auth"
	"github.com/lgandecki/convex-versioned-assets-sub001/internal/catalog"
	"github.com/lgandecki/convex-versioned-assets-sub001/internal/changelogfeed"
	"github.com/lgandecki/convex-versioned-assets-sub001/internal/ids"
	"github.com/lgandecki/convex-versioned-assets-sub001/internal/jobs"
	"github.com/lgandecki/convex-versioned-assets-sub001/internal/storage"
)

// textContentMaxBytes bounds getTextContent so a client asking for a
// preview of a large binary doesn't pull the whole blob into memory.
const textContentMaxBytes = 1 << 20 // 1 MiB

// Service is the assembly root for the operation surface. It is
// constructed once per process by the serve command in cmd/main.go.
type Service struct {
	repo     *catalog.Repository
	backends *storage.Registry
	feed     *changelogfeed.Hub
	jobs     *jobs.Service
	metrics  *metrics
}

func NewService(repo *catalog.Repository, backends *storage.Registry, feed *changelogfeed.Hub, jobSvc *jobs.Service, reg prometheus.Registerer) *Service {
	m := newMetrics(reg)
	repo.SetNotifier(&metricsNotifier{next: feed, m: m})
	return &Service{repo: repo, backends: backends, feed: feed, jobs: jobSvc, metrics: m}
}

func requireLevel(ctx context.Context, min auth.Level) error {
	return auth.Require(auth.FromContext(ctx), min)
}

// --- Folder manager (admin) ---

func (s *Service) ListFolders(ctx context.Context, parentPath string) ([]catalog.Folder, error) {
	if err := requireLevel(ctx, auth.LevelAdmin); err != nil {
		return nil, err
	}
	return s.repo.ListFolders(ctx, parentPath)
}

func (s *Service) ListAllFolders(ctx context.Context) ([]catalog.Folder, error) {
	if err := requireLevel(ctx, auth.LevelAdmin); err != nil {
		return nil, err
	}
	return s.repo.ListAllFolders(ctx)
}

func (s *Service) GetFolder(ctx context.Context, path string) (catalog.Folder, error) {
	if err := requireLevel(ctx, auth.LevelAdmin); err != nil {
		return catalog.Folder{}, err
	}
	return s.repo.GetFolder(ctx, path)
}

func (s *Service) CreateFolderByName(ctx context.Context, parentPath, name string) (catalog.Folder, error) {
	if err := requireLevel(ctx, auth.LevelAdmin); err != nil {
		return catalog.Folder{}, err
	}
	return s.repo.CreateFolderByName(ctx, parentPath, name)
}

func (s *Service) CreateFolderByPath(ctx context.Context, path string) (catalog.Folder, error) {
	if err := requireLevel(ctx, auth.LevelAdmin); err != nil {
		return catalog.Folder{}, err
	}
	return s.repo.CreateFolderByPath(ctx, path)
}

// UpdateFolder is wired and authorized, but folder rename is reserved
// for a later revision rather than implemented speculatively, so it
// always reports KindNotImplemented.
func (s *Service) UpdateFolder(ctx context.Context, path string) (catalog.Folder, error) {
	if err := requireLevel(ctx, auth.LevelAdmin); err != nil {
		return catalog.Folder{}, err
	}
	return catalog.Folder{}, apperror.New(apperror.KindNotImplemented, "folder rename is reserved for a later revision")
}

// --- Asset repository (admin for management, public for reads) ---

func (s *Service) ListAssets(ctx context.Context, folderPath string) ([]catalog.Asset, error) {
	if err := requireLevel(ctx, auth.LevelAdmin); err != nil {
		return nil, err
	}
	return s.repo.ListAssets(ctx, folderPath)
}

func (s *Service) GetAsset(ctx context.Context, folderPath, basename string) (catalog.Asset, error) {
	if err := requireLevel(ctx, auth.LevelAdmin); err != nil {
		return catalog.Asset{}, err
	}
	return s.repo.GetAsset(ctx, folderPath, basename)
}

func (s *Service) CreateAsset(ctx context.Context, folderPath, basename string) (catalog.Asset, error) {
	if err := requireLevel(ctx, auth.LevelAdmin); err != nil {
		return catalog.Asset{}, err
	}
	return s.repo.CreateAsset(ctx, folderPath, basename)
}

func (s *Service) RenameAsset(ctx context.Context, assetID ids.AssetID, newBasename string) (catalog.Asset, error) {
	if err := requireLevel(ctx, auth.LevelAdmin); err != nil {
		return catalog.Asset{}, err
	}
	return s.repo.RenameAsset(ctx, assetID, newBasename)
}

func (s *Service) GetAssetVersions(ctx context.Context, assetID ids.AssetID) ([]catalog.AssetVersion, error) {
	if err := requireLevel(ctx, auth.LevelPublic); err != nil {
		return nil, err
	}
	return s.repo.GetAssetVersions(ctx, assetID)
}

func (s *Service) GetPublishedFile(ctx context.Context, folderPath, basename string) (catalog.AssetVersion, error) {
	if err := requireLevel(ctx, auth.LevelPublic); err != nil {
		return catalog.AssetVersion{}, err
	}
	return s.repo.GetPublishedFile(ctx, folderPath, basename)
}

func (s *Service) ListPublishedFilesInFolder(ctx context.Context, folderPath string) ([]catalog.AssetVersion, error) {
	if err := requireLevel(ctx, auth.LevelPublic); err != nil {
		return nil, err
	}
	return s.repo.ListPublishedFilesInFolder(ctx, folderPath)
}

// --- Version manager ---

func (s *Service) RestoreVersion(ctx context.Context, assetID ids.AssetID, targetVersionID ids.VersionID) (catalog.AssetVersion, error) {
	if err := requireLevel(ctx, auth.LevelAuthed); err != nil {
		return catalog.AssetVersion{}, err
	}
	v, err := s.repo.RestoreVersion(ctx, assetID, targetVersionID)
	if err == nil {
		s.metrics.versionsRestored.Inc()
		s.metrics.versionsPublished.Inc()
	}
	return v, err
}

// GetVersion returns versionID's row, for internal/server's byte-serving
// routes, which serve both alive and archived versions by id.
func (s *Service) GetVersion(ctx context.Context, versionID ids.VersionID) (catalog.AssetVersion, error) {
	if err := requireLevel(ctx, auth.LevelPublic); err != nil {
		return catalog.AssetVersion{}, err
	}
	return s.repo.GetVersion(ctx, versionID)
}

// GetVersionPreviewUrl resolves the URL a browser should load to preview
// versionID's bytes: the backend's public URL (ResolvePublicURL). It never
// returns a signed URL; GetSignedUrl is the operation for that.
func (s *Service) GetVersionPreviewUrl(ctx context.Context, versionID ids.VersionID) (string, error) {
	if err := requireLevel(ctx, auth.LevelPublic); err != nil {
		return "", err
	}
	v, err := s.repo.GetVersion(ctx, versionID)
	if err != nil {
		return "", err
	}
	backend, err := s.backends.ForLocator(v.Locator)
	if err != nil {
		return "", err
	}
	return backend.ResolvePublicURL(ctx, v.Locator)
}

// GetSignedUrl returns a short-lived signed URL for versionID, for private
// buckets or backends that otherwise require it.
func (s *Service) GetSignedUrl(ctx context.Context, versionID ids.VersionID, ttl time.Duration) (string, error) {
	if err := requireLevel(ctx, auth.LevelPublic); err != nil {
		return "", err
	}
	v, err := s.repo.GetVersion(ctx, versionID)
	if err != nil {
		return "", err
	}
	backend, err := s.backends.ForLocator(v.Locator)
	if err != nil {
		return "", err
	}
	return backend.SignedReadURL(ctx, v.Locator, ttl)
}

// GetTextContent reads up to textContentMaxBytes of versionID's bytes as a
// string, for the admin UI's inline text preview. Treated as public like
// the other read-only preview operations (GetVersionPreviewUrl,
// GetSignedUrl) since it serves the same kind of already-published
// content.
func (s *Service) GetTextContent(ctx context.Context, versionID ids.VersionID) (string, error) {
	if err := requireLevel(ctx, auth.LevelPublic); err != nil {
		return "", err
	}
	v, err := s.repo.GetVersion(ctx, versionID)
	if err != nil {
		return "", err
	}
	backend, err := s.backends.ForLocator(v.Locator)
	if err != nil {
		return "", err
	}
	r, err := backend.ReadBytes(ctx, v.Locator)
	if err != nil {
		return "", err
	}
	defer r.Close()

	buf, err := io.ReadAll(io.LimitReader(r, textContentMaxBytes))
	if err != nil {
		return "", err
	}
	return string(buf), nil
}

// --- Upload coordinator (authed) ---

func (s *Service) StartUpload(ctx context.Context, p catalog.StartUploadParams) (catalog.StartUploadResult, error) {
	if err := requireLevel(ctx, auth.LevelAuthed); err != nil {
		return catalog.StartUploadResult{}, err
	}
	r, err := s.repo.StartUpload(ctx, p)
	if err == nil {
		s.metrics.uploadsStarted.Inc()
	}
	return r, err
}

func (s *Service) FinishUpload(ctx context.Context, p catalog.FinishUploadParams) (catalog.AssetVersion, error) {
	if err := requireLevel(ctx, auth.LevelAuthed); err != nil {
		return catalog.AssetVersion{}, err
	}
	v, err := s.repo.FinishUpload(ctx, p)
	if err == nil {
		s.metrics.uploadsFinished.Inc()
		s.metrics.versionsPublished.Inc()
	}
	return v, err
}

// --- Changelog engine (public reads via listSince/listForFolder; admin watch via server layer) ---

func (s *Service) ListSince(ctx context.Context, cursor *catalog.Cursor, limit int) ([]catalog.ChangelogEntry, *catalog.Cursor, error) {
	if err := requireLevel(ctx, auth.LevelPublic); err != nil {
		return nil, nil, err
	}
	entries, err := s.repo.ListSince(ctx, cursor, limit)
	if err != nil {
		return nil, nil, err
	}
	next := catalog.NextCursor(entries)
	if next == nil {
		next = cursor
	}
	return entries, next, nil
}

func (s *Service) ListForFolder(ctx context.Context, folderPath string, cursor *catalog.Cursor, limit int) ([]catalog.ChangelogEntry, *catalog.Cursor, error) {
	if err := requireLevel(ctx, auth.LevelPublic); err != nil {
		return nil, nil, err
	}
	entries, err := s.repo.ListForFolder(ctx, folderPath, cursor, limit)
	if err != nil {
		return nil, nil, err
	}
	next := catalog.NextCursor(entries)
	if next == nil {
		next = cursor
	}
	return entries, next, nil
}

// Feed exposes the websocket hub to internal/server, which mounts
// watchChangelog/watchFolderChanges behind auth.RequireGin(LevelAdmin)
// itself since those are raw net/http handlers, not ctx-carrying calls.
func (s *Service) Feed() *changelogfeed.Hub {
	return s.feed
}

// Backends exposes the storage registry to internal/server, which needs
// it directly for the byte-serving routes (streaming/redirecting reads)
// and the convex intake route (server-side WriteBytes for the upload
// grant ConvexBackend.IssueUpload hands out).
func (s *Service) Backends() *storage.Registry {
	return s.backends
}

// --- Migration engine (admin) ---

// MigrateAllToR2 enqueues one migrateAllToR2 backfill batch immediately,
// in addition to the periodic schedule cmd/main.go registers.
func (s *Service) MigrateAllToR2(ctx context.Context, batchSize int) error {
	if err := requireLevel(ctx, auth.LevelAdmin); err != nil {
		return err
	}
	task, err := jobs.NewMigrateToR2BatchTask(batchSize)
	if err != nil {
		return err
	}
	return s.jobs.Enqueue(task)
}
