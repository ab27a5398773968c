package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) TriggerScan(c *gin.Context) {
	result, err := s.ingestWorker.ScanOnce(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) ReloadPolicies(c *gin.Context) {
	result, err := s.policySvc.Reload(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
