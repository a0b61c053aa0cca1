package controllers

import (
	"context"
	"net/http"
	"time"

	"webstar/noturno-leadfinder-worker/internal/dto"
	"webstar/noturno-leadfinder-worker/internal/logging"
	"webstar/noturno-leadfinder-worker/internal/services"

	"github.com/gin-gonic/gin"
)

var cycleControllerLog = logging.New("CycleController")

// CycleRunner runs one full scrape, qualify and outreach cycle
type CycleRunner interface {
	RunCycle(ctx context.Context) (services.CycleSummary, error)
}

// CycleController exposes manual cycle triggers
type CycleController struct {
	runner CycleRunner
	// base bounds background runs; cancelled on shutdown
	base context.Context
}

// NewCycleController creates a controller whose background runs derive from base
func NewCycleController(base context.Context, runner CycleRunner) *CycleController {
	if base == nil {
		base = context.Background()
	}
	return &CycleController{runner: runner, base: base}
}

// TriggerCycle handles POST /api/v1/cycles/run
// @Summary Trigger a lead cycle
// @Description Starts a scrape, qualify and outreach cycle for every active tenant. Concurrent triggers share the running cycle.
// @Tags Cycles
// @Produce json
// @Param Authorization header string true "Bearer token with webhook secret"
// @Success 202 {object} dto.CycleTriggerResponse "Cycle accepted"
// @Failure 401 {object} dto.ErrorResponse "Unauthorized"
// @Router /cycles/run [post]
func (c *CycleController) TriggerCycle(ctx *gin.Context) {
	cycleControllerLog.Info("Cycle trigger received", map[string]interface{}{
		"client_ip": ctx.ClientIP(),
	})

	// Respond immediately, the cycle can take minutes
	ctx.JSON(http.StatusAccepted, dto.CycleTriggerResponse{Status: "accepted"})

	go func() {
		start := time.Now()
		summary, err := c.runner.RunCycle(c.base)
		if err != nil {
			cycleControllerLog.Error("Triggered cycle failed", map[string]interface{}{
				"error":        err.Error(),
				"duration_sec": time.Since(start).Seconds(),
			})
			return
		}
		cycleControllerLog.Info("Triggered cycle finished", map[string]interface{}{
			"tenants":     summary.Tenants,
			"new_leads":   summary.NewLeads,
			"qualified":   summary.Qualified,
			"emails_sent": summary.EmailsSent,
		})
	}()
}
