package controllers

import (
	"net/http"

	"webstar/noturno-leadfinder-worker/internal/dto"

	"github.com/gin-gonic/gin"
)

// SequenceLister lists the configured follow-up sequences
type SequenceLister interface {
	ListSequences() []dto.SequenceSummary
}

// SequencesController serves follow-up sequence metadata
type SequencesController struct {
	lister SequenceLister
}

// NewSequencesController creates a new SequencesController
func NewSequencesController(lister SequenceLister) *SequencesController {
	return &SequencesController{lister: lister}
}

// ListSequences handles GET /api/v1/sequences
// @Summary List follow-up sequences
// @Description Returns every configured outreach sequence with its step delays
// @Tags Sequences
// @Produce json
// @Param Authorization header string true "Bearer token with webhook secret"
// @Success 200 {array} dto.SequenceSummary "Sequences"
// @Failure 401 {object} dto.ErrorResponse "Unauthorized"
// @Router /sequences [get]
func (c *SequencesController) ListSequences(ctx *gin.Context) {
	sequences := c.lister.ListSequences()
	if sequences == nil {
		sequences = []dto.SequenceSummary{}
	}
	ctx.JSON(http.StatusOK, sequences)
}
