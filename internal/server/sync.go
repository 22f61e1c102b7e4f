package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	syncpkg "github.com/smallbiznis/metersync/internal/sync"
)

func (s *Server) triggerSync(c *gin.Context) {
	days := queryInt(c, "days", 0)
	months := queryInt(c, "months", 0)

	if !s.scheduler.TriggerSync(days, months) {
		AbortWithError(c, syncpkg.ErrContractBusy)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

func (s *Server) triggerBackfill(c *gin.Context) {
	id := s.contractID(c)
	if id == "" {
		return
	}

	if !s.scheduler.TriggerBackfill(id) {
		AbortWithError(c, syncpkg.ErrContractBusy)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted", "contract_id": id})
}

func queryInt(c *gin.Context, key string, def int) int {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
