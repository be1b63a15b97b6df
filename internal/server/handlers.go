package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lgandecki/convex-versioned-assets-sub001/internal/apperror"
)

// respondWithError maps err's apperror.Kind to an HTTP status and writes
// a JSON error body. Errors that aren't an *apperror.Error are reported
// as 500 without leaking their message.
func respondWithError(c *gin.Context, err error) {
	var appErr *apperror.Error
	if errors.As(err, &appErr) {
		c.JSON(apperror.HTTPStatus(appErr.Kind), gin.H{"error": appErr.Message, "kind": appErr.Kind})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

func respondWithData(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

func respondWithSuccess(c *gin.Context, message string) {
	c.JSON(http.StatusOK, gin.H{"message": message})
}
