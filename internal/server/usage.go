package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	analyticsdomain "github.com/smallbiznis/flexwatch/internal/analytics/domain"
)

func (s *Server) aggregateRequest(c *gin.Context) (analyticsdomain.AggregateRequest, error) {
	start, end, err := parseWindow(c.Query("start"), c.Query("end"))
	if err != nil {
		return analyticsdomain.AggregateRequest{}, err
	}
	return analyticsdomain.AggregateRequest{
		Start:       start,
		End:         end,
		Granularity: strings.TrimSpace(c.Query("granularity")),
		Features:    parseListParam(c.QueryArray("feature")),
		Companies:   parseListParam(c.QueryArray("company")),
		Users:       parseListParam(c.QueryArray("user")),
	}, nil
}

func (s *Server) AggregateUsage(c *gin.Context) {
	req, err := s.aggregateRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	result, err := s.analyticsSvc.Aggregate(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (s *Server) DetectOveruse(c *gin.Context) {
	start, end, err := parseWindow(c.Query("start"), c.Query("end"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	feature := strings.TrimSpace(c.Query("feature"))
	company := strings.TrimSpace(c.Query("company"))
	if feature == "" || company == "" {
		AbortWithError(c, newValidationError("feature", "required", "feature and company are required"))
		return
	}

	resp, err := s.analyticsSvc.DetectOveruse(c.Request.Context(), analyticsdomain.OveruseRequest{
		Start:   start,
		End:     end,
		Feature: feature,
		Company: company,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) EstimateInterval(c *gin.Context) {
	req, err := s.aggregateRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.analyticsSvc.EstimateInterval(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) FeatureStats(c *gin.Context) {
	req, err := s.aggregateRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.analyticsSvc.FeatureStats(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
