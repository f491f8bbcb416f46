package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"beanmind/internal/dates"
	apperrors "beanmind/internal/errors"
	"beanmind/internal/logger"
	"beanmind/internal/middleware"
	"beanmind/internal/services"
)

// PipelineHandler handles machine-triggered jobs such as the daily run of
// recurring rules.
type PipelineHandler struct {
	recurringService services.RecurringServicer
	clock            clock
}

// NewPipelineHandler creates a new PipelineHandler. loc decides which
// calendar day a run without an explicit date executes.
func NewPipelineHandler(recurringService services.RecurringServicer, loc *time.Location) *PipelineHandler {
	return &PipelineHandler{recurringService: recurringService, clock: clock{loc: loc}}
}

// RunRecurringRequest represents the request payload for a scheduled run.
type RunRecurringRequest struct {
	Date *string `json:"date" binding:"omitempty,date_only" example:"2025-02-01"`
}

// RunRecurring handles executing every recurring rule due on a date.
// @Summary     Run due recurring rules
// @Description Execute every active rule due on date (default today). Safe to repeat.
// @Tags        pipeline
// @Accept      json
// @Produce     json
// @Param       X-API-Key header   string              true  "Pipeline API key"
// @Param       request   body     RunRecurringRequest false "Run parameters"
// @Success     200       {object} services.RunReport  "Run report"
// @Failure     400       {object} ErrorResponse       "Invalid input"
// @Failure     401       {object} ErrorResponse       "Invalid API key"
// @Failure     503       {object} ErrorResponse       "Pipeline not configured"
// @Router      /pipeline/recurring/run [post]
func (h *PipelineHandler) RunRecurring(c *gin.Context) {
	var req RunRecurringRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
			return
		}
	}

	date, err := parseOptionalDate("date", req.Date)
	if err != nil {
		respondWithError(c, err)
		return
	}
	if date == nil {
		today, err := h.clock.today(c)
		if err != nil {
			respondWithError(c, err)
			return
		}
		date = &today
	}

	report, err := h.recurringService.RunDueRules(c.Request.Context(), *date)
	if err != nil {
		respondWithError(c, err)
		return
	}

	logger.Get().Infow("pipeline run",
		"caller", c.GetString(middleware.PipelineCallerKey),
		"date", dates.Format(report.Date),
		"executed", report.Executed,
		"failed", report.Failed,
	)

	c.JSON(http.StatusOK, report)
}
