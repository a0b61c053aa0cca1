package controllers

import (
	"context"
	"net/http"
	"strconv"

	"webstar/noturno-leadfinder-worker/internal/dto"
	"webstar/noturno-leadfinder-worker/internal/logging"
	"webstar/noturno-leadfinder-worker/internal/services"

	"github.com/gin-gonic/gin"
)

const (
	defaultReportLimit = 200
	maxReportLimit     = 1000
)

var reportsLog = logging.New("ReportsController")

// ScoredLeadLister reads a tenant's scored leads
type ScoredLeadLister interface {
	ListScoredLeads(ctx context.Context, userID string, limit int) ([]dto.Lead, error)
}

// ReportsController handles report-related HTTP requests
type ReportsController struct {
	leads ScoredLeadLister
}

// NewReportsController creates a new ReportsController instance
func NewReportsController(leads ScoredLeadLister) *ReportsController {
	return &ReportsController{leads: leads}
}

// GetLeadReport returns the qualified lead summary of one tenant
// @Summary Get lead report
// @Description Aggregates a tenant's scored leads by budget, market size and platform. format=markdown returns the rendered document.
// @Tags Reports
// @Produce json
// @Produce text/markdown
// @Param Authorization header string true "Bearer token with webhook secret"
// @Param tenant_id query string true "Tenant (user) ID"
// @Param limit query int false "Maximum scored leads to aggregate" default(200)
// @Param format query string false "json or markdown" default(json)
// @Success 200 {object} dto.LeadReport "Lead report"
// @Failure 400 {object} dto.ErrorResponse "Bad request"
// @Failure 401 {object} dto.ErrorResponse "Unauthorized"
// @Failure 500 {object} dto.ErrorResponse "Internal server error"
// @Router /reports/leads [get]
func (c *ReportsController) GetLeadReport(ctx *gin.Context) {
	tenantID := ctx.Query("tenant_id")
	if tenantID == "" {
		ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "tenant_id is required"})
		return
	}

	limit := defaultReportLimit
	if raw := ctx.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = min(n, maxReportLimit)
	}

	format := ctx.DefaultQuery("format", "json")
	if format != "json" && format != "markdown" {
		ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "format must be json or markdown"})
		return
	}

	leads, err := c.leads.ListScoredLeads(ctx.Request.Context(), tenantID, limit)
	if err != nil {
		reportsLog.Error("Failed to list scored leads", map[string]interface{}{
			"tenant_id": tenantID,
			"error":     err.Error(),
		})
		ctx.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "failed to load leads: " + err.Error()})
		return
	}

	report := services.GenerateLeadReport(leads)
	if format == "markdown" {
		ctx.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(report.Markdown))
		return
	}
	ctx.JSON(http.StatusOK, report)
}
