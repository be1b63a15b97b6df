package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/lgandecki/convex-versioned-assets-sub001/internal/apperror"
	"github.com/lgandecki/convex-versioned-assets-sub001/internal/ids"
)

// ConvexConfig configures the in-platform blob store backend: the one
// that issues a POST upload URL and streams reads back through the
// server's own HTTP routes rather than redirecting to an external host.
type ConvexConfig struct {
	RootPath      string `yaml:"root_path" env:"CONVEX_ROOT_PATH" default:"./data/blobs"`
	FileMode      string `yaml:"file_mode" env:"CONVEX_FILE_MODE" default:"0644"`
	DirMode       string `yaml:"dir_mode" env:"CONVEX_DIR_MODE" default:"0755"`
	UploadBaseURL string `yaml:"upload_base_url" env:"CONVEX_UPLOAD_BASE_URL" default:"http://localhost:8080"`
}

// ConvexBackend implements Backend by storing blobs on local disk under
// a root directory and serving them through the application's own HTTP
// routes.
type ConvexBackend struct {
	cfg      ConvexConfig
	rootPath string
	fileMode os.FileMode
	dirMode  os.FileMode
}

func NewConvexBackend(cfg ConvexConfig) (*ConvexBackend, error) {
	fileMode, err := parseFileMode(cfg.FileMode, 0644)
	if err != nil {
		return nil, apperror.FromBackend("convex", "parse file mode", err)
	}
	dirMode, err := parseFileMode(cfg.DirMode, 0755)
	if err != nil {
		return nil, apperror.FromBackend("convex", "parse dir mode", err)
	}
	root, err := filepath.Abs(cfg.RootPath)
	if err != nil {
		return nil, apperror.FromBackend("convex", "resolve root path", err)
	}
	if err := os.MkdirAll(root, dirMode); err != nil {
		return nil, apperror.FromBackend("convex", "create root directory", err)
	}
	return &ConvexBackend{cfg: cfg, rootPath: root, fileMode: fileMode, dirMode: dirMode}, nil
}

func parseFileMode(modeStr string, fallback os.FileMode) (os.FileMode, error) {
	if modeStr == "" {
		return fallback, nil
	}
	mode, err := strconv.ParseUint(modeStr, 8, 32)
	if err != nil {
		return 0, err
	}
	return os.FileMode(mode), nil
}

func (c *ConvexBackend) Kind() ids.Backend { return ids.BackendConvex }

func (c *ConvexBackend) pathFor(storageID string) string {
	return filepath.Join(c.rootPath, storageID)
}

// IssueUpload returns the server's own upload-intake route; the client
// POSTs its bytes there and the handler calls WriteBytes and returns
// {"storageId": "..."} to the client.
func (c *ConvexBackend) IssueUpload(ctx context.Context, opts IssueUploadOptions) (*UploadGrant, error) {
	_, span := tracer.Start(ctx, "convex.IssueUpload",
		trace.WithAttributes(attribute.String("storage.intent_id", opts.IntentID.String())))
	defer span.End()

	url := fmt.Sprintf("%s/internal/uploads/%s", c.cfg.UploadBaseURL, opts.IntentID.String())
	return &UploadGrant{UploadURL: url, Method: "POST", PendingLocator: Locator{Backend: ids.BackendConvex}}, nil
}

func (c *ConvexBackend) FinalizeUpload(ctx context.Context, in FinalizeInput) (Locator, error) {
	_, span := tracer.Start(ctx, "convex.FinalizeUpload")
	defer span.End()

	if in.UploadResponse == nil {
		return Locator{}, apperror.New(apperror.KindInvalidUploadResp, "missing upload response")
	}
	raw, ok := in.UploadResponse["storageId"]
	if !ok {
		return Locator{}, apperror.New(apperror.KindInvalidUploadResp, "upload response missing storageId")
	}
	storageID, ok := raw.(string)
	if !ok || storageID == "" {
		return Locator{}, apperror.New(apperror.KindInvalidUploadResp, "storageId must be a non-empty string")
	}
	if _, err := os.Stat(c.pathFor(storageID)); err != nil {
		return Locator{}, apperror.New(apperror.KindInvalidUploadResp, "storageId does not reference an uploaded blob")
	}
	return Locator{Backend: ids.BackendConvex, StorageID: storageID}, nil
}

func (c *ConvexBackend) ResolvePublicURL(ctx context.Context, loc Locator) (string, error) {
	if loc.StorageID == "" {
		return "", apperror.New(apperror.KindInvalidArgument, "locator has no storageId")
	}
	return fmt.Sprintf("%s/am/blob/%s", c.cfg.UploadBaseURL, loc.StorageID), nil
}

func (c *ConvexBackend) SignedReadURL(ctx context.Context, loc Locator, ttl time.Duration) (string, error) {
	// convex has no separate private-bucket mode; the stable/immutable
	// HTTP routes already gate access the way the rest of the core does.
	return c.ResolvePublicURL(ctx, loc)
}

func (c *ConvexBackend) ReadBytes(ctx context.Context, loc Locator) (io.ReadCloser, error) {
	_, span := tracer.Start(ctx, "convex.ReadBytes",
		trace.WithAttributes(attribute.String("storage.storage_id", loc.StorageID)))
	defer span.End()

	if loc.StorageID == "" {
		return nil, apperror.New(apperror.KindInvalidArgument, "locator has no storageId")
	}
	f, err := os.Open(c.pathFor(loc.StorageID))
	if err != nil {
		if os.IsNotExist(err) {
			span.RecordError(err)
			return nil, apperror.New(apperror.KindVersionNotFound, "blob not found")
		}
		span.RecordError(err)
		return nil, apperror.FromBackend("convex", "read blob", err)
	}
	return f, nil
}

func (c *ConvexBackend) WriteBytes(ctx context.Context, assetID ids.AssetID, version int, filename string, r io.Reader, size int64, contentType string) (Locator, error) {
	_, span := tracer.Start(ctx, "convex.WriteBytes",
		trace.WithAttributes(
			attribute.String("storage.asset_id", assetID.String()),
			attribute.Int("storage.version", version),
		))
	defer span.End()

	storageID := uuid.NewString()
	fullPath := c.pathFor(storageID)
	if err := os.MkdirAll(filepath.Dir(fullPath), c.dirMode); err != nil {
		span.RecordError(err)
		return Locator{}, apperror.FromBackend("convex", "create blob directory", err)
	}

	f, err := os.OpenFile(fullPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, c.fileMode)
	if err != nil {
		span.RecordError(err)
		return Locator{}, apperror.FromBackend("convex", "create blob file", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		span.RecordError(err)
		_ = os.Remove(fullPath)
		return Locator{}, apperror.FromBackend("convex", "write blob", err)
	}

	return Locator{Backend: ids.BackendConvex, StorageID: storageID}, nil
}

func (c *ConvexBackend) KeyPrefix() string { return "" }
