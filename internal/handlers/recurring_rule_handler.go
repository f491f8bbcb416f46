package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"beanmind/internal/dates"
	apperrors "beanmind/internal/errors"
	"beanmind/internal/models"
	"beanmind/internal/pagination"
	"beanmind/internal/recurrence"
	"beanmind/internal/services"
)

// RecurringRuleHandler handles recurring rule requests.
type RecurringRuleHandler struct {
	recurringService services.RecurringServicer
	auditService     services.AuditServicer
	clock            clock
}

// NewRecurringRuleHandler creates a new RecurringRuleHandler. loc decides
// which calendar day "today" is for previews.
func NewRecurringRuleHandler(recurringService services.RecurringServicer, auditService services.AuditServicer, loc *time.Location) *RecurringRuleHandler {
	return &RecurringRuleHandler{
		recurringService: recurringService,
		auditService:     auditService,
		clock:            clock{loc: loc},
	}
}

// TemplatePostingRequest is one leg of a transaction template.
type TemplatePostingRequest struct {
	Account  string          `json:"account" binding:"required,account_name"`
	Amount   decimal.Decimal `json:"amount" swaggertype:"string" example:"-5000.00"`
	Currency string          `json:"currency" binding:"required,commodity"`
}

// TransactionTemplateRequest is the transaction a rule writes on each due date.
type TransactionTemplateRequest struct {
	Description string                   `json:"description" binding:"required,max=500"`
	Payee       string                   `json:"payee" binding:"max=200"`
	Postings    []TemplatePostingRequest `json:"postings" binding:"required,dive"`
	Tags        []string                 `json:"tags"`
}

// RecurringRuleRequest represents the payload for creating or replacing a rule.
type RecurringRuleRequest struct {
	Name                string                     `json:"name" binding:"required,min=1,max=100"`
	Frequency           recurrence.Frequency       `json:"frequency" binding:"required,frequency"`
	FrequencyConfig     json.RawMessage            `json:"frequency_config" swaggertype:"object"`
	TransactionTemplate TransactionTemplateRequest `json:"transaction_template"`
	StartDate           string                     `json:"start_date" binding:"required,date_only" example:"2025-01-01"`
	EndDate             *string                    `json:"end_date" binding:"omitempty,date_only" example:"2025-12-31"`
	IsActive            *bool                      `json:"is_active"`
}

// ExecuteRuleRequest represents the payload for a manual execution.
type ExecuteRuleRequest struct {
	ExecutionDate string `json:"execution_date" binding:"required,date_only" example:"2025-03-01"`
}

// PreviewResponse lists a rule's upcoming due dates.
type PreviewResponse struct {
	RuleID string   `json:"rule_id"`
	Dates  []string `json:"dates"`
}

func (r *RecurringRuleRequest) toInput() (services.RecurringRuleInput, error) {
	start, err := parseDate("start_date", r.StartDate)
	if err != nil {
		return services.RecurringRuleInput{}, err
	}
	end, err := parseOptionalDate("end_date", r.EndDate)
	if err != nil {
		return services.RecurringRuleInput{}, err
	}

	postings := make([]models.TemplatePosting, 0, len(r.TransactionTemplate.Postings))
	for _, p := range r.TransactionTemplate.Postings {
		postings = append(postings, models.TemplatePosting{Account: p.Account, Amount: p.Amount, Currency: p.Currency})
	}

	return services.RecurringRuleInput{
		Name:            r.Name,
		Frequency:       r.Frequency,
		FrequencyConfig: r.FrequencyConfig,
		Template: models.TransactionTemplate{
			Description: r.TransactionTemplate.Description,
			Payee:       r.TransactionTemplate.Payee,
			Postings:    postings,
			Tags:        r.TransactionTemplate.Tags,
		},
		StartDate: start,
		EndDate:   end,
		IsActive:  r.IsActive,
	}, nil
}

// CreateRule handles the creation of a recurring rule.
// @Summary     Create a recurring rule
// @Description Create a rule that writes a ledger transaction on every due date
// @Tags        recurring-rules
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body RecurringRuleRequest true "Rule details"
// @Success     201 {object} models.RecurringRule "Rule created"
// @Failure     400 {object} ErrorResponse "Invalid input, configuration or template"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /recurring-rules [post]
func (h *RecurringRuleHandler) CreateRule(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req RecurringRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}
	in, err := req.toInput()
	if err != nil {
		respondWithError(c, err)
		return
	}

	rule, err := h.recurringService.CreateRule(userID, in)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, services.AuditActionCreate, services.ResourceRecurringRule, rule.ID, c.ClientIP(),
		map[string]interface{}{"name": req.Name, "frequency": req.Frequency})

	c.JSON(http.StatusCreated, gin.H{"rule": rule})
}

// GetRules handles listing the user's recurring rules.
// @Summary     Get recurring rules
// @Description Get a paginated list of recurring rules
// @Tags        recurring-rules
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       is_active query bool false "Filter by active status"
// @Param       page      query int  false "Page number (default 1)"
// @Param       page_size query int  false "Items per page (default 20, max 100)"
// @Success     200 {object} pagination.PageResponse[models.RecurringRule] "Paginated rules"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /recurring-rules [get]
func (h *RecurringRuleHandler) GetRules(c *gin.Context) {
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

	result, err := h.recurringService.GetUserRules(userID, page, isActive)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetRule handles retrieving one recurring rule.
// @Summary     Get recurring rule by ID
// @Tags        recurring-rules
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Rule ID"
// @Success     200 {object} models.RecurringRule "Rule details"
// @Failure     400 {object} ErrorResponse "Invalid rule ID"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Rule not found"
// @Router      /recurring-rules/{id} [get]
func (h *RecurringRuleHandler) GetRule(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	ruleID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	rule, err := h.recurringService.GetRuleByID(userID, ruleID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"rule": rule})
}

// UpdateRule handles replacing a recurring rule's definition.
// @Summary     Update recurring rule
// @Description Replace a rule's schedule and template. The next execution date is recomputed.
// @Tags        recurring-rules
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id      path string               true "Rule ID"
// @Param       request body RecurringRuleRequest true "Rule details"
// @Success     200 {object} models.RecurringRule "Updated rule"
// @Failure     400 {object} ErrorResponse "Invalid input, configuration or template"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Rule not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /recurring-rules/{id} [put]
func (h *RecurringRuleHandler) UpdateRule(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	ruleID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req RecurringRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}
	in, err := req.toInput()
	if err != nil {
		respondWithError(c, err)
		return
	}

	rule, err := h.recurringService.UpdateRule(userID, ruleID, in)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, services.AuditActionUpdate, services.ResourceRecurringRule, rule.ID, c.ClientIP(),
		map[string]interface{}{"name": req.Name, "frequency": req.Frequency})

	c.JSON(http.StatusOK, gin.H{"rule": rule})
}

// DeleteRule handles deleting a recurring rule. Rules with execution history
// are deactivated instead of removed.
// @Summary     Delete recurring rule
// @Tags        recurring-rules
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Rule ID"
// @Success     200 {object} map[string]interface{} "Rule deleted or deactivated"
// @Failure     400 {object} ErrorResponse "Invalid rule ID"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Rule not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /recurring-rules/{id} [delete]
func (h *RecurringRuleHandler) DeleteRule(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	ruleID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	deactivated, err := h.recurringService.DeleteRule(userID, ruleID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, services.AuditActionDelete, services.ResourceRecurringRule, ruleID, c.ClientIP(),
		map[string]interface{}{"deactivated": deactivated})

	msg := "Recurring rule deleted successfully"
	if deactivated {
		msg = "Recurring rule has executions and was deactivated"
	}
	c.JSON(http.StatusOK, gin.H{"message": msg, "deactivated": deactivated})
}

// ExecuteRule handles a manual execution of a rule for a given date.
// @Summary     Execute recurring rule
// @Description Write the rule's transaction for execution_date now, regardless of schedule
// @Tags        recurring-rules
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id      path string             true "Rule ID"
// @Param       request body ExecuteRuleRequest true "Execution date"
// @Success     201 {object} models.RecurringExecution "Execution recorded"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Rule not found"
// @Failure     409 {object} ErrorResponse "Already executed for this date"
// @Failure     422 {object} ErrorResponse "Ledger rejected the transaction"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /recurring-rules/{id}/execute [post]
func (h *RecurringRuleHandler) ExecuteRule(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	ruleID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req ExecuteRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}
	date, err := parseDate("execution_date", req.ExecutionDate)
	if err != nil {
		respondWithError(c, err)
		return
	}

	exec, err := h.recurringService.ExecuteManually(c.Request.Context(), userID, ruleID, date)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, services.AuditActionExecute, services.ResourceRecurringRule, ruleID, c.ClientIP(),
		map[string]interface{}{"execution_date": dates.Format(date), "execution_id": exec.ID})

	c.JSON(http.StatusCreated, gin.H{"execution": exec})
}

// GetExecutions handles listing a rule's execution history.
// @Summary     Get rule executions
// @Description Get a paginated execution history, newest first
// @Tags        recurring-rules
// @Produce     json
// @Security    BearerAuth
// @Param       id        path  string true  "Rule ID"
// @Param       page      query int    false "Page number (default 1)"
// @Param       page_size query int    false "Items per page (default 20, max 100)"
// @Success     200 {object} pagination.PageResponse[models.RecurringExecution] "Paginated executions"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Rule not found"
// @Router      /recurring-rules/{id}/executions [get]
func (h *RecurringRuleHandler) GetExecutions(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	ruleID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	var page pagination.PageRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	result, err := h.recurringService.GetRuleExecutions(userID, ruleID, page)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// PreviewRule handles listing a rule's upcoming due dates.
// @Summary     Preview recurring rule
// @Description List the next due dates on or after from (default today)
// @Tags        recurring-rules
// @Produce     json
// @Security    BearerAuth
// @Param       id    path  string true  "Rule ID"
// @Param       count query int    false "Number of dates (default 5, max 100)"
// @Param       from  query string false "First candidate date (YYYY-MM-DD)"
// @Success     200 {object} PreviewResponse "Upcoming due dates"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Rule not found"
// @Router      /recurring-rules/{id}/preview [get]
func (h *RecurringRuleHandler) PreviewRule(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	ruleID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	count := 0
	if v := c.Query("count"); v != "" {
		count, err = strconv.Atoi(v)
		if err != nil || count < 1 {
			respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "count must be a positive integer"))
			return
		}
	}

	var from time.Time
	if v := c.Query("from"); v != "" {
		from, err = parseDate("from", v)
	} else {
		from, err = h.clock.today(c)
	}
	if err != nil {
		respondWithError(c, err)
		return
	}

	upcoming, err := h.recurringService.PreviewRule(userID, ruleID, from, count)
	if err != nil {
		respondWithError(c, err)
		return
	}

	out := make([]string, 0, len(upcoming))
	for _, d := range upcoming {
		out = append(out, dates.Format(d))
	}
	c.JSON(http.StatusOK, PreviewResponse{RuleID: ruleID, Dates: out})
}
