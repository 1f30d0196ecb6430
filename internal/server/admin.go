package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	affdomain "github.com/smallbiznis/affiliate/internal/affiliate/domain"
	convdomain "github.com/smallbiznis/affiliate/internal/conversion/domain"
	"github.com/smallbiznis/affiliate/pkg/db/pagination"
)

type enrollAffiliateRequest struct {
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
}

func (s *Server) EnrollAffiliate(c *gin.Context) {
	var req enrollAffiliateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	affiliate, err := s.affiliateSvc.Enroll(c.Request.Context(), affdomain.EnrollRequest{
		DisplayName: req.DisplayName,
		Email:       req.Email,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, affiliate)
}

func (s *Server) GetAffiliate(c *gin.Context) {
	affiliate, err := s.affiliateSvc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, affiliate)
}

func (s *Server) DeactivateAffiliate(c *gin.Context) {
	if err := s.affiliateSvc.Deactivate(c.Request.Context(), c.Param("id")); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type listConversionsQuery struct {
	pagination.Pagination
	Status string `form:"status"`
}

func (s *Server) ListConversions(c *gin.Context) {
	var query listConversionsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.conversionSvc.List(c.Request.Context(), convdomain.ListRequest{
		AffiliateID: c.Param("id"),
		Status:      query.Status,
		PageToken:   query.PageToken,
		PageSize:    query.PageSize,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) GetConversion(c *gin.Context) {
	conversion, err := s.conversionSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, conversion)
}

type voidConversionRequest struct {
	Reason string `json:"reason"`
}

// VoidConversion handles a refund or fraud decision: the commission comes
// back out of the affiliate's totals regardless of whether it had cleared.
func (s *Server) VoidConversion(c *gin.Context) {
	conversionID, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil || conversionID == 0 {
		AbortWithError(c, convdomain.ErrInvalidID)
		return
	}

	var req voidConversionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		AbortWithError(c, newValidationError("reason", "invalid_reason", "reason is required"))
		return
	}

	if err := s.clearingSvc.Void(c.Request.Context(), conversionID, reason); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
