package handlers

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"beanmind/internal/dates"
	apperrors "beanmind/internal/errors"
	"beanmind/internal/models"
	"beanmind/internal/pagination"
	"beanmind/internal/services"
)

type mockRecurringService struct {
	createRuleFn        func(userID string, in services.RecurringRuleInput) (*models.RecurringRule, error)
	getUserRulesFn      func(userID string, page pagination.PageRequest, isActive *bool) (*pagination.PageResponse[models.RecurringRule], error)
	getRuleByIDFn       func(userID, ruleID string) (*models.RecurringRule, error)
	updateRuleFn        func(userID, ruleID string, in services.RecurringRuleInput) (*models.RecurringRule, error)
	deleteRuleFn        func(userID, ruleID string) (bool, error)
	getRuleExecutionsFn func(userID, ruleID string, page pagination.PageRequest) (*pagination.PageResponse[models.RecurringExecution], error)
	previewRuleFn       func(userID, ruleID string, from time.Time, count int) ([]time.Time, error)
	executeManuallyFn   func(ctx context.Context, userID, ruleID string, date time.Time) (*models.RecurringExecution, error)
	runDueRulesFn       func(ctx context.Context, today time.Time) (*services.RunReport, error)
}

var _ services.RecurringServicer = (*mockRecurringService)(nil)

func (m *mockRecurringService) CreateRule(userID string, in services.RecurringRuleInput) (*models.RecurringRule, error) {
	if m.createRuleFn != nil {
		return m.createRuleFn(userID, in)
	}
	return &models.RecurringRule{}, nil
}

func (m *mockRecurringService) GetUserRules(userID string, page pagination.PageRequest, isActive *bool) (*pagination.PageResponse[models.RecurringRule], error) {
	if m.getUserRulesFn != nil {
		return m.getUserRulesFn(userID, page, isActive)
	}
	resp := pagination.NewPageResponse[models.RecurringRule](nil, 1, 20, 0)
	return &resp, nil
}

func (m *mockRecurringService) GetRuleByID(userID, ruleID string) (*models.RecurringRule, error) {
	if m.getRuleByIDFn != nil {
		return m.getRuleByIDFn(userID, ruleID)
	}
	return &models.RecurringRule{}, nil
}

func (m *mockRecurringService) UpdateRule(userID, ruleID string, in services.RecurringRuleInput) (*models.RecurringRule, error) {
	if m.updateRuleFn != nil {
		return m.updateRuleFn(userID, ruleID, in)
	}
	return &models.RecurringRule{}, nil
}

func (m *mockRecurringService) DeleteRule(userID, ruleID string) (bool, error) {
	if m.deleteRuleFn != nil {
		return m.deleteRuleFn(userID, ruleID)
	}
	return false, nil
}

func (m *mockRecurringService) GetRuleExecutions(userID, ruleID string, page pagination.PageRequest) (*pagination.PageResponse[models.RecurringExecution], error) {
	if m.getRuleExecutionsFn != nil {
		return m.getRuleExecutionsFn(userID, ruleID, page)
	}
	resp := pagination.NewPageResponse[models.RecurringExecution](nil, 1, 20, 0)
	return &resp, nil
}

func (m *mockRecurringService) PreviewRule(userID, ruleID string, from time.Time, count int) ([]time.Time, error) {
	if m.previewRuleFn != nil {
		return m.previewRuleFn(userID, ruleID, from, count)
	}
	return nil, nil
}

func (m *mockRecurringService) ExecuteManually(ctx context.Context, userID, ruleID string, date time.Time) (*models.RecurringExecution, error) {
	if m.executeManuallyFn != nil {
		return m.executeManuallyFn(ctx, userID, ruleID, date)
	}
	return &models.RecurringExecution{}, nil
}

func (m *mockRecurringService) RunDueRules(ctx context.Context, today time.Time) (*services.RunReport, error) {
	if m.runDueRulesFn != nil {
		return m.runDueRulesFn(ctx, today)
	}
	return &services.RunReport{Date: today, Results: []services.RuleRunResult{}}, nil
}

func setupRecurringRouter(handler *RecurringRuleHandler) *gin.Engine {
	r := gin.New()
	g := r.Group("/recurring-rules", injectUserID(testUserID))
	g.POST("", handler.CreateRule)
	g.GET("", handler.GetRules)
	g.GET("/:id", handler.GetRule)
	g.PUT("/:id", handler.UpdateRule)
	g.DELETE("/:id", handler.DeleteRule)
	g.POST("/:id/execute", handler.ExecuteRule)
	g.GET("/:id/executions", handler.GetExecutions)
	g.GET("/:id/preview", handler.PreviewRule)
	return r
}

const rentRuleBody = `{
	"name": "Rent",
	"frequency": "MONTHLY",
	"frequency_config": {"month_days": [1]},
	"transaction_template": {
		"description": "Monthly rent",
		"payee": "Landlord",
		"postings": [
			{"account": "Expenses:Housing:Rent", "amount": "5000", "currency": "CNY"},
			{"account": "Assets:Bank:Checking", "amount": "-5000", "currency": "CNY"}
		]
	},
	"start_date": "2025-01-01",
	"end_date": "2025-12-31"
}`

func TestRecurringRuleHandler_CreateRule(t *testing.T) {
	t.Run("returns 201 on success", func(t *testing.T) {
		var got services.RecurringRuleInput
		svc := &mockRecurringService{
			createRuleFn: func(userID string, in services.RecurringRuleInput) (*models.RecurringRule, error) {
				got = in
				return &models.RecurringRule{Base: models.Base{ID: testRuleID}, UserID: userID, Name: in.Name}, nil
			},
		}
		audit := &mockAuditService{}
		r := setupRecurringRouter(NewRecurringRuleHandler(svc, audit, time.UTC))

		rec := doRequest(r, "POST", "/recurring-rules", rentRuleBody)

		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		if got.Frequency != "MONTHLY" {
			t.Errorf("expected MONTHLY, got %s", got.Frequency)
		}
		if !got.StartDate.Equal(dates.New(2025, time.January, 1)) {
			t.Errorf("expected start 2025-01-01, got %s", got.StartDate)
		}
		if got.EndDate == nil || !got.EndDate.Equal(dates.New(2025, time.December, 31)) {
			t.Errorf("expected end 2025-12-31, got %v", got.EndDate)
		}
		if len(got.Template.Postings) != 2 || got.Template.Postings[1].Amount.String() != "-5000" {
			t.Errorf("unexpected postings: %+v", got.Template.Postings)
		}
		if string(got.FrequencyConfig) != `{"month_days": [1]}` {
			t.Errorf("expected raw config to pass through, got %s", got.FrequencyConfig)
		}
		rule := parseJSON(t, rec)["rule"].(map[string]interface{})
		if rule["id"] != testRuleID {
			t.Errorf("expected id %s, got %v", testRuleID, rule["id"])
		}
		if len(audit.entries) != 1 || audit.entries[0].resourceType != services.ResourceRecurringRule {
			t.Errorf("expected one recurring_rule audit entry, got %+v", audit.entries)
		}
	})

	t.Run("returns 400 on unknown frequency", func(t *testing.T) {
		r := setupRecurringRouter(NewRecurringRuleHandler(&mockRecurringService{}, &mockAuditService{}, time.UTC))

		rec := doRequest(r, "POST", "/recurring-rules",
			`{"name":"x","frequency":"HOURLY","transaction_template":{"description":"x","postings":[]},"start_date":"2025-01-01"}`)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "INVALID_INPUT")
	})

	t.Run("returns 400 on malformed start date", func(t *testing.T) {
		r := setupRecurringRouter(NewRecurringRuleHandler(&mockRecurringService{}, &mockAuditService{}, time.UTC))

		rec := doRequest(r, "POST", "/recurring-rules",
			`{"name":"x","frequency":"DAILY","transaction_template":{"description":"x","postings":[]},"start_date":"01/02/2025"}`)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("returns 400 on invalid posting account", func(t *testing.T) {
		r := setupRecurringRouter(NewRecurringRuleHandler(&mockRecurringService{}, &mockAuditService{}, time.UTC))

		rec := doRequest(r, "POST", "/recurring-rules",
			`{"name":"x","frequency":"DAILY","start_date":"2025-01-01","transaction_template":{"description":"x","postings":[{"account":"rent","amount":"1","currency":"CNY"}]}}`)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("passes service config errors through", func(t *testing.T) {
		svc := &mockRecurringService{
			createRuleFn: func(_ string, _ services.RecurringRuleInput) (*models.RecurringRule, error) {
				return nil, apperrors.WithMessage(apperrors.ErrInvalidRuleConfig, "month_days must not be empty")
			},
		}
		r := setupRecurringRouter(NewRecurringRuleHandler(svc, &mockAuditService{}, time.UTC))

		rec := doRequest(r, "POST", "/recurring-rules", rentRuleBody)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "INVALID_RULE_CONFIG")
	})
}

func TestRecurringRuleHandler_GetRules(t *testing.T) {
	t.Run("passes is_active filter", func(t *testing.T) {
		var gotActive *bool
		svc := &mockRecurringService{
			getUserRulesFn: func(_ string, page pagination.PageRequest, isActive *bool) (*pagination.PageResponse[models.RecurringRule], error) {
				gotActive = isActive
				resp := pagination.NewPageResponse([]models.RecurringRule{{Name: "Rent"}}, 1, 20, 1)
				return &resp, nil
			},
		}
		r := setupRecurringRouter(NewRecurringRuleHandler(svc, &mockAuditService{}, time.UTC))

		rec := doRequest(r, "GET", "/recurring-rules?is_active=false", "")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if gotActive == nil || *gotActive {
			t.Errorf("expected is_active=false filter, got %v", gotActive)
		}
		if parseJSON(t, rec)["total_items"] != float64(1) {
			t.Error("expected total_items 1")
		}
	})

	t.Run("returns 400 on bad is_active", func(t *testing.T) {
		r := setupRecurringRouter(NewRecurringRuleHandler(&mockRecurringService{}, &mockAuditService{}, time.UTC))

		rec := doRequest(r, "GET", "/recurring-rules?is_active=maybe", "")

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}

func TestRecurringRuleHandler_GetRule(t *testing.T) {
	t.Run("returns 400 on invalid id", func(t *testing.T) {
		r := setupRecurringRouter(NewRecurringRuleHandler(&mockRecurringService{}, &mockAuditService{}, time.UTC))

		rec := doRequest(r, "GET", "/recurring-rules/42", "")

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("returns 404 when not found", func(t *testing.T) {
		svc := &mockRecurringService{
			getRuleByIDFn: func(_, _ string) (*models.RecurringRule, error) {
				return nil, apperrors.ErrRuleNotFound
			},
		}
		r := setupRecurringRouter(NewRecurringRuleHandler(svc, &mockAuditService{}, time.UTC))

		rec := doRequest(r, "GET", "/recurring-rules/"+testRuleID, "")

		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "RULE_NOT_FOUND")
	})

	t.Run("canonicalizes upper-case id", func(t *testing.T) {
		var got string
		svc := &mockRecurringService{
			getRuleByIDFn: func(_, ruleID string) (*models.RecurringRule, error) {
				got = ruleID
				return &models.RecurringRule{}, nil
			},
		}
		r := setupRecurringRouter(NewRecurringRuleHandler(svc, &mockAuditService{}, time.UTC))

		rec := doRequest(r, "GET", "/recurring-rules/"+strings.ToUpper(testRuleID), "")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if got != testRuleID {
			t.Errorf("expected service to receive %s, got %s", testRuleID, got)
		}
	})
}

func TestRecurringRuleHandler_UpdateRule(t *testing.T) {
	t.Run("returns 200 on success", func(t *testing.T) {
		var gotID string
		svc := &mockRecurringService{
			updateRuleFn: func(_, ruleID string, in services.RecurringRuleInput) (*models.RecurringRule, error) {
				gotID = ruleID
				return &models.RecurringRule{Base: models.Base{ID: ruleID}, Name: in.Name}, nil
			},
		}
		r := setupRecurringRouter(NewRecurringRuleHandler(svc, &mockAuditService{}, time.UTC))

		rec := doRequest(r, "PUT", "/recurring-rules/"+testRuleID, rentRuleBody)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if gotID != testRuleID {
			t.Errorf("expected rule id %s, got %s", testRuleID, gotID)
		}
	})
}

func TestRecurringRuleHandler_DeleteRule(t *testing.T) {
	t.Run("reports deactivation", func(t *testing.T) {
		svc := &mockRecurringService{
			deleteRuleFn: func(_, _ string) (bool, error) { return true, nil },
		}
		r := setupRecurringRouter(NewRecurringRuleHandler(svc, &mockAuditService{}, time.UTC))

		rec := doRequest(r, "DELETE", "/recurring-rules/"+testRuleID, "")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if parseJSON(t, rec)["deactivated"] != true {
			t.Error("expected deactivated true")
		}
	})
}

func TestRecurringRuleHandler_ExecuteRule(t *testing.T) {
	t.Run("returns 201 on success", func(t *testing.T) {
		var gotDate time.Time
		svc := &mockRecurringService{
			executeManuallyFn: func(_ context.Context, _, ruleID string, date time.Time) (*models.RecurringExecution, error) {
				gotDate = date
				return &models.RecurringExecution{ID: "exec-1", RuleID: ruleID, ExecutedDate: date, Status: models.ExecutionStatusSuccess}, nil
			},
		}
		r := setupRecurringRouter(NewRecurringRuleHandler(svc, &mockAuditService{}, time.UTC))

		rec := doRequest(r, "POST", "/recurring-rules/"+testRuleID+"/execute", `{"execution_date":"2025-03-01"}`)

		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		if !gotDate.Equal(dates.New(2025, time.March, 1)) {
			t.Errorf("expected 2025-03-01, got %s", gotDate)
		}
		exec := parseJSON(t, rec)["execution"].(map[string]interface{})
		if exec["status"] != "SUCCESS" {
			t.Errorf("expected SUCCESS, got %v", exec["status"])
		}
	})

	t.Run("returns 409 on conflict", func(t *testing.T) {
		svc := &mockRecurringService{
			executeManuallyFn: func(_ context.Context, _, _ string, _ time.Time) (*models.RecurringExecution, error) {
				return nil, apperrors.ErrDueDateConflict
			},
		}
		r := setupRecurringRouter(NewRecurringRuleHandler(svc, &mockAuditService{}, time.UTC))

		rec := doRequest(r, "POST", "/recurring-rules/"+testRuleID+"/execute", `{"execution_date":"2025-03-01"}`)

		if rec.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "DUE_DATE_CONFLICT")
	})

	t.Run("returns 422 when the ledger rejects", func(t *testing.T) {
		svc := &mockRecurringService{
			executeManuallyFn: func(_ context.Context, _, _ string, _ time.Time) (*models.RecurringExecution, error) {
				return nil, apperrors.WithMessage(apperrors.ErrLedgerWriteFailed, "account Assets:Bank:Checking is closed")
			},
		}
		r := setupRecurringRouter(NewRecurringRuleHandler(svc, &mockAuditService{}, time.UTC))

		rec := doRequest(r, "POST", "/recurring-rules/"+testRuleID+"/execute", `{"execution_date":"2025-03-01"}`)

		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected 422, got %d", rec.Code)
		}
	})

	t.Run("returns 400 without execution_date", func(t *testing.T) {
		r := setupRecurringRouter(NewRecurringRuleHandler(&mockRecurringService{}, &mockAuditService{}, time.UTC))

		rec := doRequest(r, "POST", "/recurring-rules/"+testRuleID+"/execute", `{}`)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}

func TestRecurringRuleHandler_PreviewRule(t *testing.T) {
	t.Run("formats dates and honors from and count", func(t *testing.T) {
		var gotFrom time.Time
		var gotCount int
		svc := &mockRecurringService{
			previewRuleFn: func(_, _ string, from time.Time, count int) ([]time.Time, error) {
				gotFrom, gotCount = from, count
				return []time.Time{dates.New(2025, time.February, 1), dates.New(2025, time.March, 1)}, nil
			},
		}
		r := setupRecurringRouter(NewRecurringRuleHandler(svc, &mockAuditService{}, time.UTC))

		rec := doRequest(r, "GET", "/recurring-rules/"+testRuleID+"/preview?count=2&from=2025-01-15", "")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if gotCount != 2 || !gotFrom.Equal(dates.New(2025, time.January, 15)) {
			t.Errorf("expected from 2025-01-15 count 2, got %s %d", gotFrom, gotCount)
		}
		got := parseJSON(t, rec)["dates"].([]interface{})
		if len(got) != 2 || got[0] != "2025-02-01" || got[1] != "2025-03-01" {
			t.Errorf("unexpected dates: %v", got)
		}
	})

	t.Run("defaults from to as_of", func(t *testing.T) {
		var gotFrom time.Time
		svc := &mockRecurringService{
			previewRuleFn: func(_, _ string, from time.Time, _ int) ([]time.Time, error) {
				gotFrom = from
				return nil, nil
			},
		}
		r := setupRecurringRouter(NewRecurringRuleHandler(svc, &mockAuditService{}, time.UTC))

		rec := doRequest(r, "GET", "/recurring-rules/"+testRuleID+"/preview?as_of=2025-06-30", "")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if !gotFrom.Equal(dates.New(2025, time.June, 30)) {
			t.Errorf("expected 2025-06-30, got %s", gotFrom)
		}
		if dts := parseJSON(t, rec)["dates"].([]interface{}); len(dts) != 0 {
			t.Errorf("expected empty dates, got %v", dts)
		}
	})

	t.Run("returns 400 on bad count", func(t *testing.T) {
		r := setupRecurringRouter(NewRecurringRuleHandler(&mockRecurringService{}, &mockAuditService{}, time.UTC))

		rec := doRequest(r, "GET", "/recurring-rules/"+testRuleID+"/preview?count=zero", "")

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}
