package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	syncdomain "github.com/smallbiznis/kassa/internal/sync/domain"
	terminaldomain "github.com/smallbiznis/kassa/internal/terminal/domain"
)

// SyncOperations accepts a terminal's offline batch. Authentication
// failures reject the whole request before any operation runs;
// everything past that point is reported per operation.
func (s *Server) SyncOperations(c *gin.Context) {
	terminal := terminalFromContext(c)
	if terminal == nil {
		AbortWithError(c, terminaldomain.ErrUnauthorized)
		return
	}

	var req syncdomain.BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.syncSvc.ProcessBatch(c.Request.Context(), terminal, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
