package server

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/lgandecki/convex-versioned-assets-sub001/internal/apperror"
	"github.com/lgandecki/convex-versioned-assets-sub001/internal/catalog"
	"github.com/lgandecki/convex-versioned-assets-sub001/internal/ids"
)

// serveAssets is the single handler mounted at /assets/*path. gin's route
// tree rejects a wildcard child coexisting with static/param children at
// the same node, so the "/assets/v/{versionId}" and
// "/assets/{folderPath...}/{basename}" patterns are disambiguated here by
// inspecting the captured path instead of as two separate gin routes.
func (s *Server) serveAssets(c *gin.Context) {
	trimmed := trimLeadingSlash(c.Param("path"))
	if rest, ok := strings.CutPrefix(trimmed, "v/"); ok {
		s.serveVersionByID(c, rest)
		return
	}
	s.servePublishedFile(c, trimmed)
}

// servePublishedFile implements GET /assets/{folderPath...}/{basename}:
// the published version's bytes at a stable, short-cached URL. Cached
// public, max-age=60, must-revalidate, plus an ETag so a CDN revalidates
// quickly after a new version publishes.
func (s *Server) servePublishedFile(c *gin.Context, assetPath string) {
	folderPath, basename := splitAssetPath(assetPath)

	v, err := s.svc.GetPublishedFile(c.Request.Context(), folderPath, basename)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.Header("Cache-Control", "public, max-age=60, must-revalidate")
	c.Header("ETag", `"`+v.ID.String()+`"`)
	s.serveVersionBytes(c, v)
}

// serveVersionByID implements GET /assets/v/{versionId}: a specific
// version's bytes, alive or archived, cached aggressively (public,
// max-age=31536000, immutable) because a version's bytes never change
// once created.
func (s *Server) serveVersionByID(c *gin.Context, versionIDRaw string) {
	versionID, err := ids.ParseVersionID(versionIDRaw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid versionId"})
		return
	}

	v, err := s.svc.GetVersion(c.Request.Context(), versionID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.Header("Cache-Control", "public, max-age=31536000, immutable")
	s.serveVersionBytes(c, v)
}

// serveVersionByIDWithName implements GET /am/file/v/{versionId}/{basename}:
// identical bytes to serveVersionByID, with a human-friendly filename
// segment for clients that want a meaningful download name.
func (s *Server) serveVersionByIDWithName(c *gin.Context) {
	s.serveVersionByID(c, c.Param("versionId"))
}

// serveVersionBytes streams bytes for convex-backed versions, or issues a
// 307 redirect to the backend's public URL (ResolvePublicURL) for r2-backed
// ones; it never redirects to a signed URL, whatever the bucket's
// PrivateBucket setting. Content-type is always the stored value; this never MIME-sniffs,
// it serves back the contentType it was given.
func (s *Server) serveVersionBytes(c *gin.Context, v catalog.AssetVersion) {
	backend, err := s.svc.Backends().ForLocator(v.Locator)
	if err != nil {
		respondWithError(c, err)
		return
	}

	if v.Locator.Preferred() == ids.BackendR2 {
		url, err := backend.ResolvePublicURL(c.Request.Context(), v.Locator)
		if err != nil {
			respondWithError(c, err)
			return
		}
		c.Redirect(http.StatusTemporaryRedirect, url)
		return
	}

	r, err := backend.ReadBytes(c.Request.Context(), v.Locator)
	if err != nil {
		respondWithError(c, err)
		return
	}
	defer r.Close()

	c.Header("Content-Type", v.ContentType)
	c.Header("Content-Length", strconv.FormatInt(v.Size, 10))
	if c.Request.Method == http.MethodHead {
		c.Status(http.StatusOK)
		return
	}
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, r)
}

// splitAssetPath splits a gin wildcard "path" param ("/a/b/basename")
// into its folder path and basename; basename is always the final
// segment.
func splitAssetPath(raw string) (folderPath, basename string) {
	trimmed := raw
	for len(trimmed) > 0 && trimmed[0] == '/' {
		trimmed = trimmed[1:]
	}
	idx := len(trimmed) - 1
	for idx >= 0 && trimmed[idx] != '/' {
		idx--
	}
	if idx < 0 {
		return "", trimmed
	}
	return trimmed[:idx], trimmed[idx+1:]
}

// handleConvexIntake is the server-side intake route ConvexBackend.IssueUpload
// hands out as UploadGrant.UploadURL: the client POSTs raw bytes here, the
// handler writes them via the convex backend's WriteBytes, and returns
// the {"storageId", "contentType", "size"} object the client must pass
// back to finishUpload as UploadResponse.
func (s *Server) handleConvexIntake(c *gin.Context) {
	contentType := c.ContentType()
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	backend, err := s.svc.Backends().Get(ids.BackendConvex)
	if err != nil {
		respondWithError(c, err)
		return
	}

	size := c.Request.ContentLength
	loc, err := backend.WriteBytes(c.Request.Context(), ids.AssetID{}, 0, "", c.Request.Body, size, contentType)
	if err != nil {
		respondWithError(c, apperror.Wrap(apperror.KindBackendFailure, "convex intake write failed", err))
		return
	}

	respondWithData(c, gin.H{
		"storageId":   loc.StorageID,
		"contentType": contentType,
		"size":        float64(size),
	})
}
