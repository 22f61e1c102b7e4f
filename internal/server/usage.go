package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	usagedomain "github.com/smallbiznis/metersync/internal/usage/domain"
)

func (s *Server) listContracts(c *gin.Context) {
	contracts, err := s.contractRepo.List(c.Request.Context(), s.db)
	if err != nil {
		AbortWithError(c, usagedomain.StorageError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"contracts": contracts})
}

// contractID validates the path parameter and checks the registry. An
// empty return means the response has already been written.
func (s *Server) contractID(c *gin.Context) string {
	id := strings.TrimSpace(c.Param("contract_id"))
	if id == "" {
		AbortWithError(c, usagedomain.ErrInvalidContract)
		return ""
	}

	known, err := s.contractRepo.Exists(c.Request.Context(), s.db, id)
	if err != nil {
		AbortWithError(c, usagedomain.StorageError(err))
		return ""
	}
	if !known {
		AbortWithError(c, usagedomain.ErrContractUnknown)
		return ""
	}
	return id
}

func (s *Server) getSummary(c *gin.Context) {
	id := s.contractID(c)
	if id == "" {
		return
	}

	if summary, ok := s.summaries.GetSummary(id); ok {
		c.JSON(http.StatusOK, summary)
		return
	}

	summary, err := s.usagesvc.Summary(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.summaries.SetSummary(id, *summary)
	c.JSON(http.StatusOK, summary)
}

func (s *Server) getStats(c *gin.Context) {
	id := s.contractID(c)
	if id == "" {
		return
	}

	stats, err := s.usagesvc.Stats(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) getSyncStatus(c *gin.Context) {
	id := s.contractID(c)
	if id == "" {
		return
	}

	status, err := s.usagesvc.SyncStatus(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}
