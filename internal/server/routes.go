package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lgandecki/convex-versioned-assets-sub001/internal/auth"
	"github.com/lgandecki/convex-versioned-assets-sub001/internal/catalog"
	"github.com/lgandecki/convex-versioned-assets-sub001/internal/ids"
)

func (s *Server) registerRoutes() {
	e := s.engine

	// Byte-serving routes. Registered ahead of the JSON surface since
	// they're the hot path and have no method-level auth beyond the
	// operation's own (public) check.
	e.GET("/am/file/v/:versionId/:basename", s.serveVersionByIDWithName)
	e.HEAD("/am/file/v/:versionId/:basename", s.serveVersionByIDWithName)
	e.GET("/assets/*path", s.serveAssets)
	e.HEAD("/assets/*path", s.serveAssets)
	e.OPTIONS("/assets/*path", func(c *gin.Context) {
		c.Header("Allow", "GET, HEAD, OPTIONS")
		c.Status(http.StatusNoContent)
	})

	e.POST("/internal/uploads/:intentId", s.handleConvexIntake)

	// Changelog websockets, admin-only.
	e.GET("/ws/changelog", auth.RequireGin(auth.LevelAdmin), func(c *gin.Context) {
		s.svc.Feed().WatchChangelog(c.Writer, c.Request)
	})
	e.GET("/ws/folders/*path", auth.RequireGin(auth.LevelAdmin), func(c *gin.Context) {
		s.svc.Feed().WatchFolderChanges(c.Writer, c.Request, trimLeadingSlash(c.Param("path")))
	})

	api := e.Group("/api")
	s.registerFolderRoutes(api)
	s.registerAssetRoutes(api)
	s.registerUploadRoutes(api)
	s.registerVersionRoutes(api)
	s.registerChangelogRoutes(api)
	s.registerMigrationRoutes(api)
}

func trimLeadingSlash(p string) string {
	for len(p) > 0 && p[0] == '/' {
		p = p[1:]
	}
	return p
}

func (s *Server) registerFolderRoutes(g *gin.RouterGroup) {
	// ListFolders/ListAllFolders/GetFolder share the /folders tree: gin's
	// route tree rejects a wildcard child ("*path") coexisting with a
	// static child at the same node, so "all" is a query flag here
	// instead of a sibling static route.
	g.GET("/folders", func(c *gin.Context) {
		if c.Query("all") == "true" {
			folders, err := s.svc.ListAllFolders(c.Request.Context())
			if err != nil {
				respondWithError(c, err)
				return
			}
			respondWithData(c, folders)
			return
		}
		folders, err := s.svc.ListFolders(c.Request.Context(), c.Query("parentPath"))
		if err != nil {
			respondWithError(c, err)
			return
		}
		respondWithData(c, folders)
	})

	g.GET("/folders/*path", func(c *gin.Context) {
		folder, err := s.svc.GetFolder(c.Request.Context(), trimLeadingSlash(c.Param("path")))
		if err != nil {
			respondWithError(c, err)
			return
		}
		respondWithData(c, folder)
	})

	g.POST("/folders", func(c *gin.Context) {
		var body struct {
			ParentPath string `json:"parentPath"`
			Name       string `json:"name"`
			Path       string `json:"path"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		var folder catalog.Folder
		var err error
		if body.Path != "" {
			folder, err = s.svc.CreateFolderByPath(c.Request.Context(), body.Path)
		} else {
			folder, err = s.svc.CreateFolderByName(c.Request.Context(), body.ParentPath, body.Name)
		}
		if err != nil {
			respondWithError(c, err)
			return
		}
		respondWithData(c, folder)
	})

	g.PATCH("/folders/*path", func(c *gin.Context) {
		_, err := s.svc.UpdateFolder(c.Request.Context(), trimLeadingSlash(c.Param("path")))
		if err != nil {
			respondWithError(c, err)
			return
		}
		respondWithSuccess(c, "folder updated")
	})
}

func (s *Server) registerAssetRoutes(g *gin.RouterGroup) {
	g.GET("/assets", func(c *gin.Context) {
		assets, err := s.svc.ListAssets(c.Request.Context(), c.Query("folderPath"))
		if err != nil {
			respondWithError(c, err)
			return
		}
		respondWithData(c, assets)
	})

	g.GET("/assets/one", func(c *gin.Context) {
		asset, err := s.svc.GetAsset(c.Request.Context(), c.Query("folderPath"), c.Query("basename"))
		if err != nil {
			respondWithError(c, err)
			return
		}
		respondWithData(c, asset)
	})

	g.POST("/assets", func(c *gin.Context) {
		var body struct {
			FolderPath string `json:"folderPath"`
			Basename   string `json:"basename"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		asset, err := s.svc.CreateAsset(c.Request.Context(), body.FolderPath, body.Basename)
		if err != nil {
			respondWithError(c, err)
			return
		}
		respondWithData(c, asset)
	})

	g.PATCH("/assets/:assetId/rename", func(c *gin.Context) {
		assetID, err := ids.ParseAssetID(c.Param("assetId"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid assetId"})
			return
		}
		var body struct {
			Basename string `json:"basename"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		asset, err := s.svc.RenameAsset(c.Request.Context(), assetID, body.Basename)
		if err != nil {
			respondWithError(c, err)
			return
		}
		respondWithData(c, asset)
	})

	g.GET("/assets/:assetId/versions", func(c *gin.Context) {
		assetID, err := ids.ParseAssetID(c.Param("assetId"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid assetId"})
			return
		}
		versions, err := s.svc.GetAssetVersions(c.Request.Context(), assetID)
		if err != nil {
			respondWithError(c, err)
			return
		}
		respondWithData(c, versions)
	})

	g.GET("/assets/published", func(c *gin.Context) {
		files, err := s.svc.ListPublishedFilesInFolder(c.Request.Context(), c.Query("folderPath"))
		if err != nil {
			respondWithError(c, err)
			return
		}
		respondWithData(c, files)
	})
}

func (s *Server) registerUploadRoutes(g *gin.RouterGroup) {
	g.POST("/uploads/start", func(c *gin.Context) {
		var body catalog.StartUploadParams
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		result, err := s.svc.StartUpload(c.Request.Context(), body)
		if err != nil {
			respondWithError(c, err)
			return
		}
		respondWithData(c, result)
	})

	g.POST("/uploads/finish", func(c *gin.Context) {
		var body struct {
			IntentID       ids.IntentID   `json:"intentId"`
			UploadResponse map[string]any `json:"uploadResponse"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		version, err := s.svc.FinishUpload(c.Request.Context(), catalog.FinishUploadParams{
			IntentID:       body.IntentID,
			UploadResponse: body.UploadResponse,
		})
		if err != nil {
			respondWithError(c, err)
			return
		}
		respondWithData(c, version)
	})
}

func (s *Server) registerVersionRoutes(g *gin.RouterGroup) {
	g.POST("/versions/:versionId/restore", func(c *gin.Context) {
		versionID, err := ids.ParseVersionID(c.Param("versionId"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid versionId"})
			return
		}
		var body struct {
			AssetID ids.AssetID `json:"assetId"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		v, err := s.svc.RestoreVersion(c.Request.Context(), body.AssetID, versionID)
		if err != nil {
			respondWithError(c, err)
			return
		}
		respondWithData(c, v)
	})

	g.GET("/versions/:versionId/preview-url", func(c *gin.Context) {
		versionID, err := ids.ParseVersionID(c.Param("versionId"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid versionId"})
			return
		}
		url, err := s.svc.GetVersionPreviewUrl(c.Request.Context(), versionID)
		if err != nil {
			respondWithError(c, err)
			return
		}
		respondWithData(c, gin.H{"url": url})
	})

	g.GET("/versions/:versionId/signed-url", func(c *gin.Context) {
		versionID, err := ids.ParseVersionID(c.Param("versionId"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid versionId"})
			return
		}
		ttl := 15 * time.Minute
		if raw := c.Query("ttlSeconds"); raw != "" {
			if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
				ttl = time.Duration(secs) * time.Second
			}
		}
		url, err := s.svc.GetSignedUrl(c.Request.Context(), versionID, ttl)
		if err != nil {
			respondWithError(c, err)
			return
		}
		respondWithData(c, gin.H{"url": url})
	})

	g.GET("/versions/:versionId/text-content", func(c *gin.Context) {
		versionID, err := ids.ParseVersionID(c.Param("versionId"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid versionId"})
			return
		}
		text, err := s.svc.GetTextContent(c.Request.Context(), versionID)
		if err != nil {
			respondWithError(c, err)
			return
		}
		respondWithData(c, gin.H{"text": text})
	})
}

func (s *Server) registerChangelogRoutes(g *gin.RouterGroup) {
	g.GET("/changelog", func(c *gin.Context) {
		cursor, err := parseCursor(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		entries, next, err := s.svc.ListSince(c.Request.Context(), cursor, limitFromQuery(c))
		if err != nil {
			respondWithError(c, err)
			return
		}
		respondWithData(c, gin.H{"entries": entries, "cursor": next})
	})

	g.GET("/changelog/folder", func(c *gin.Context) {
		cursor, err := parseCursor(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		entries, next, err := s.svc.ListForFolder(c.Request.Context(), c.Query("folderPath"), cursor, limitFromQuery(c))
		if err != nil {
			respondWithError(c, err)
			return
		}
		respondWithData(c, gin.H{"entries": entries, "cursor": next})
	})
}

func (s *Server) registerMigrationRoutes(g *gin.RouterGroup) {
	g.POST("/migrate/r2", func(c *gin.Context) {
		batchSize := 50
		if raw := c.Query("batchSize"); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil && n > 0 {
				batchSize = n
			}
		}
		if err := s.svc.MigrateAllToR2(c.Request.Context(), batchSize); err != nil {
			respondWithError(c, err)
			return
		}
		respondWithSuccess(c, "migration batch enqueued")
	})
}

func limitFromQuery(c *gin.Context) int {
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return n
		}
	}
	return 100
}

func parseCursor(c *gin.Context) (*catalog.Cursor, error) {
	createdAtRaw := c.Query("cursorCreatedAt")
	idRaw := c.Query("cursorId")
	if createdAtRaw == "" || idRaw == "" {
		return nil, nil
	}
	createdAt, err := strconv.ParseInt(createdAtRaw, 10, 64)
	if err != nil {
		return nil, err
	}
	id, err := ids.ParseChangelogID(idRaw)
	if err != nil {
		return nil, err
	}
	return &catalog.Cursor{CreatedAt: createdAt, ID: id}, nil
}
