package api

import (
	"net/http"

	"webstar/noturno-leadfinder-worker/internal/api/controllers"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Controllers groups the v1 endpoints. Nil controllers leave their routes unregistered.
type Controllers struct {
	WebhookSecret string
	Cycles        *controllers.CycleController
	Sequences     *controllers.SequencesController
	Reports       *controllers.ReportsController
}

// NewRouter creates and configures a new Gin router
func NewRouter(c Controllers) *gin.Engine {
	router := gin.Default() // Includes Logger and Recovery middleware

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
		})
	})

	// Swagger documentation route
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// API v1 routes, all behind the webhook secret
	v1 := router.Group("/api/v1", controllers.RequireBearer(c.WebhookSecret))
	{
		if c.Cycles != nil {
			v1.POST("/cycles/run", c.Cycles.TriggerCycle)
		}
		if c.Sequences != nil {
			v1.GET("/sequences", c.Sequences.ListSequences)
		}
		if c.Reports != nil {
			v1.GET("/reports/leads", c.Reports.GetLeadReport)
		}
	}

	return router
}
