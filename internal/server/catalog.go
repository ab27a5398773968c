package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

func (s *Server) ListFeatures(c *gin.Context) {
	features, err := s.analyticsSvc.Features(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"features": features})
}

func (s *Server) ListCompanies(c *gin.Context) {
	companies, err := s.analyticsSvc.Companies(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"companies": companies})
}

func (s *Server) ListUsers(c *gin.Context) {
	users, err := s.analyticsSvc.Users(c.Request.Context(), strings.TrimSpace(c.Query("feature")))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

func (s *Server) DateRange(c *gin.Context) {
	r, err := s.analyticsSvc.DateRange(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}
