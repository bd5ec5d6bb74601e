package httptransport

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"xtts-server-go/internal/platform/errors"
)

// errorBody is the wire shape every error takes: a single human-readable
// detail string, the format the existing clients already parse.
type errorBody struct {
	Detail string `json:"detail"`
}

// respondError translates a domain error into its HTTP representation.
// This is the only place error kinds meet status codes.
func respondError(c *gin.Context, err error) {
	c.JSON(errors.HTTPStatus(err), errorBody{Detail: errors.Detail(err)})
}

// respondDetail sends a fixed-status error with a literal detail string.
func respondDetail(c *gin.Context, status int, detail string) {
	c.JSON(status, errorBody{Detail: detail})
}

// respondMessage sends the {"message": ...} success shape shared by the
// mutation endpoints.
func respondMessage(c *gin.Context, message string) {
	c.JSON(http.StatusOK, gin.H{"message": message})
}
