package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"beanmind/internal/budget"
	apperrors "beanmind/internal/errors"
	"beanmind/internal/models"
	"beanmind/internal/pagination"
	"beanmind/internal/services"
)

// BudgetHandler handles budget-related requests.
type BudgetHandler struct {
	budgetService services.BudgetServicer
	auditService  services.AuditServicer
	clock         clock
}

// NewBudgetHandler creates a new BudgetHandler. loc decides which calendar
// day the cycle projections treat as today.
func NewBudgetHandler(budgetService services.BudgetServicer, auditService services.AuditServicer, loc *time.Location) *BudgetHandler {
	return &BudgetHandler{budgetService: budgetService, auditService: auditService, clock: clock{loc: loc}}
}

// BudgetItemRequest is one spending limit of a budget.
type BudgetItemRequest struct {
	AccountPattern string          `json:"account_pattern" binding:"required,account_pattern" example:"Expenses:Food:*"`
	Amount         decimal.Decimal `json:"amount" swaggertype:"string" example:"1000.00"`
	Currency       string          `json:"currency" binding:"required,commodity" example:"CNY"`
}

// BudgetRequest represents the payload for creating or replacing a budget.
type BudgetRequest struct {
	Name             string                  `json:"name" binding:"required,min=1,max=100"`
	PeriodType       models.BudgetPeriodType `json:"period_type" binding:"required,budget_period_type"`
	StartDate        string                  `json:"start_date" binding:"required,date_only" example:"2025-01-01"`
	EndDate          *string                 `json:"end_date" binding:"omitempty,date_only" example:"2025-12-31"`
	CycleType        models.CycleType        `json:"cycle_type" binding:"omitempty,cycle_type"`
	CarryOverEnabled bool                    `json:"carry_over_enabled"`
	IsActive         *bool                   `json:"is_active"`
	Items            []BudgetItemRequest     `json:"items" binding:"required,min=1,dive"`
}

// CycleListResponse lists every generated cycle of a budget.
type CycleListResponse struct {
	BudgetID string               `json:"budget_id"`
	Cycles   []budget.CycleResult `json:"cycles"`
}

func (r *BudgetRequest) toInput() (services.BudgetInput, error) {
	start, err := parseDate("start_date", r.StartDate)
	if err != nil {
		return services.BudgetInput{}, err
	}
	end, err := parseOptionalDate("end_date", r.EndDate)
	if err != nil {
		return services.BudgetInput{}, err
	}

	cycleType := r.CycleType
	if cycleType == "" {
		cycleType = models.CycleTypeNone
	}

	items := make([]services.BudgetItemInput, 0, len(r.Items))
	for _, it := range r.Items {
		items = append(items, services.BudgetItemInput{
			AccountPattern: it.AccountPattern,
			Amount:         it.Amount,
			Currency:       it.Currency,
		})
	}

	return services.BudgetInput{
		Name:             r.Name,
		PeriodType:       r.PeriodType,
		StartDate:        start,
		EndDate:          end,
		CycleType:        cycleType,
		CarryOverEnabled: r.CarryOverEnabled,
		IsActive:         r.IsActive,
		Items:            items,
	}, nil
}

// CreateBudget handles the creation of a new budget.
// @Summary     Create a budget
// @Description Create a budget with spending limits over account patterns
// @Tags        budgets
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body BudgetRequest true "Budget details"
// @Success     201 {object} models.Budget "Budget created"
// @Failure     400 {object} ErrorResponse "Invalid input or configuration"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /budgets [post]
func (h *BudgetHandler) CreateBudget(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req BudgetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}
	in, err := req.toInput()
	if err != nil {
		respondWithError(c, err)
		return
	}

	b, err := h.budgetService.CreateBudget(userID, in)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, services.AuditActionCreate, services.ResourceBudget, b.ID, c.ClientIP(),
		map[string]interface{}{"name": req.Name, "cycle_type": in.CycleType, "items": len(in.Items)})

	c.JSON(http.StatusCreated, gin.H{"budget": b})
}

// GetBudgets handles listing budgets for the authenticated user.
// @Summary     Get budgets
// @Description Get a paginated list of budgets for the authenticated user
// @Tags        budgets
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       is_active query bool false "Filter by active status"
// @Param       page      query int  false "Page number (default 1)"
// @Param       page_size query int  false "Items per page (default 20, max 100)"
// @Success     200 {object} pagination.PageResponse[models.Budget] "Paginated budgets"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /budgets [get]
func (h *BudgetHandler) GetBudgets(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var page pagination.PageRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}
	isActive, err := parseBoolQuery(c, "is_active")
	if err != nil {
		respondWithError(c, err)
		return
	}

	result, err := h.budgetService.GetUserBudgets(userID, page, isActive)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetBudget handles retrieving a specific budget.
// @Summary     Get budget by ID
// @Description Get a specific budget by ID
// @Tags        budgets
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Budget ID"
// @Success     200 {object} models.Budget "Budget details"
// @Failure     400 {object} ErrorResponse "Invalid budget ID"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Budget not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /budgets/{id} [get]
func (h *BudgetHandler) GetBudget(c *gin.Context) {
	userID, budgetID, ok := h.budgetPath(c)
	if !ok {
		return
	}

	b, err := h.budgetService.GetBudgetByID(userID, budgetID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"budget": b})
}

// UpdateBudget handles replacing an existing budget.
// @Summary     Update budget
// @Description Replace a budget's definition and items
// @Tags        budgets
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id      path string        true "Budget ID"
// @Param       request body BudgetRequest true "Budget details"
// @Success     200 {object} models.Budget "Updated budget"
// @Failure     400 {object} ErrorResponse "Invalid input or budget ID"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Budget not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /budgets/{id} [put]
func (h *BudgetHandler) UpdateBudget(c *gin.Context) {
	userID, budgetID, ok := h.budgetPath(c)
	if !ok {
		return
	}

	var req BudgetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}
	in, err := req.toInput()
	if err != nil {
		respondWithError(c, err)
		return
	}

	b, err := h.budgetService.UpdateBudget(userID, budgetID, in)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, services.AuditActionUpdate, services.ResourceBudget, budgetID, c.ClientIP(),
		map[string]interface{}{"name": req.Name})

	c.JSON(http.StatusOK, gin.H{"budget": b})
}

// DeleteBudget handles deleting a budget.
// @Summary     Delete budget
// @Description Delete a budget by ID (soft delete)
// @Tags        budgets
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Budget ID"
// @Success     200 {object} MessageResponse "Budget deleted"
// @Failure     400 {object} ErrorResponse "Invalid budget ID"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Budget not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /budgets/{id} [delete]
func (h *BudgetHandler) DeleteBudget(c *gin.Context) {
	userID, budgetID, ok := h.budgetPath(c)
	if !ok {
		return
	}

	if err := h.budgetService.DeleteBudget(userID, budgetID); err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, services.AuditActionDelete, services.ResourceBudget, budgetID, c.ClientIP(), nil)

	c.JSON(http.StatusOK, MessageResponse{Message: "Budget deleted successfully"})
}

// GetBudgetCycles handles listing every cycle of a budget with its spending.
// @Summary     Get budget cycles
// @Description Evaluate every cycle generated as of today (or as_of)
// @Tags        budgets
// @Produce     json
// @Security    BearerAuth
// @Param       id    path  string true  "Budget ID"
// @Param       as_of query string false "Evaluate as of this date (YYYY-MM-DD)"
// @Success     200 {object} CycleListResponse "Budget cycles"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Budget not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /budgets/{id}/cycles [get]
func (h *BudgetHandler) GetBudgetCycles(c *gin.Context) {
	userID, budgetID, ok := h.budgetPath(c)
	if !ok {
		return
	}
	today, err := h.clock.today(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	cycles, err := h.budgetService.GetBudgetCycles(c.Request.Context(), userID, budgetID, today)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, CycleListResponse{BudgetID: budgetID, Cycles: cycles})
}

// GetBudgetCycle handles evaluating one cycle by its number.
// @Summary     Get budget cycle
// @Description Evaluate one cycle; cycle is null when the number is out of range
// @Tags        budgets
// @Produce     json
// @Security    BearerAuth
// @Param       id     path  string true  "Budget ID"
// @Param       number path  int    true  "Cycle number, starting at 1"
// @Param       as_of  query string false "Evaluate as of this date (YYYY-MM-DD)"
// @Success     200 {object} budget.CycleResult "Budget cycle"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Budget not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /budgets/{id}/cycles/{number} [get]
func (h *BudgetHandler) GetBudgetCycle(c *gin.Context) {
	userID, budgetID, ok := h.budgetPath(c)
	if !ok {
		return
	}
	number, err := strconv.Atoi(c.Param("number"))
	if err != nil || number < 1 {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "cycle number must be a positive integer"))
		return
	}
	today, err := h.clock.today(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	cycle, err := h.budgetService.GetBudgetCycle(c.Request.Context(), userID, budgetID, number, today)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"cycle": cycle})
}

// GetCycleSummary handles summarizing a budget's completed and current cycles.
// @Summary     Get budget cycle summary
// @Description Current cycle plus totals of the cycles that ended before today
// @Tags        budgets
// @Produce     json
// @Security    BearerAuth
// @Param       id    path  string true  "Budget ID"
// @Param       as_of query string false "Evaluate as of this date (YYYY-MM-DD)"
// @Success     200 {object} budget.Summary "Cycle summary"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Budget not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /budgets/{id}/cycles/summary [get]
func (h *BudgetHandler) GetCycleSummary(c *gin.Context) {
	userID, budgetID, ok := h.budgetPath(c)
	if !ok {
		return
	}
	today, err := h.clock.today(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	summary, err := h.budgetService.GetCycleSummary(c.Request.Context(), userID, budgetID, today)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"summary": summary})
}

// GetBudgetProgress handles retrieving the cycle that contains today.
// @Summary     Get budget progress
// @Description Spending progress in the current cycle; progress is null outside the budget's range
// @Tags        budgets
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path  string true  "Budget ID"
// @Param       as_of query string false "Evaluate as of this date (YYYY-MM-DD)"
// @Success     200 {object} budget.CycleResult "Budget progress"
// @Failure     400 {object} ErrorResponse "Invalid budget ID"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Budget not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /budgets/{id}/progress [get]
func (h *BudgetHandler) GetBudgetProgress(c *gin.Context) {
	userID, budgetID, ok := h.budgetPath(c)
	if !ok {
		return
	}
	today, err := h.clock.today(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	progress, err := h.budgetService.GetBudgetProgress(c.Request.Context(), userID, budgetID, today)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"progress": progress})
}

// GetOverview handles evaluating the current cycle of every active budget.
// @Summary     Get active budgets overview
// @Tags        budgets
// @Produce     json
// @Security    BearerAuth
// @Param       as_of query string false "Evaluate as of this date (YYYY-MM-DD)"
// @Success     200 {array}  services.BudgetOverview "Active budgets with their current cycle"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /budgets/overview [get]
func (h *BudgetHandler) GetOverview(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	today, err := h.clock.today(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	overview, err := h.budgetService.GetActiveBudgetsOverview(c.Request.Context(), userID, today)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"budgets": overview})
}

// budgetPath reads the user and budget id, writing the error response itself
// when either is missing.
func (h *BudgetHandler) budgetPath(c *gin.Context) (userID, budgetID string, ok bool) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return "", "", false
	}
	budgetID, err = parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return "", "", false
	}
	return userID, budgetID, true
}
