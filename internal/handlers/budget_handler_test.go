package handlers

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"beanmind/internal/budget"
	"beanmind/internal/dates"
	apperrors "beanmind/internal/errors"
	"beanmind/internal/models"
	"beanmind/internal/pagination"
	"beanmind/internal/services"
)

const testBudgetID = "01900000-0000-7000-8000-0000000000b1"

// --- mock budget service ---

type mockBudgetService struct {
	createBudgetFn      func(userID string, in services.BudgetInput) (*models.Budget, error)
	getUserBudgetsFn    func(userID string, page pagination.PageRequest, isActive *bool) (*pagination.PageResponse[models.Budget], error)
	getBudgetByIDFn     func(userID, budgetID string) (*models.Budget, error)
	updateBudgetFn      func(userID, budgetID string, in services.BudgetInput) (*models.Budget, error)
	deleteBudgetFn      func(userID, budgetID string) error
	getBudgetCyclesFn   func(ctx context.Context, userID, budgetID string, today time.Time) ([]budget.CycleResult, error)
	getBudgetCycleFn    func(ctx context.Context, userID, budgetID string, number int, today time.Time) (*budget.CycleResult, error)
	getCycleSummaryFn   func(ctx context.Context, userID, budgetID string, today time.Time) (*budget.Summary, error)
	getBudgetProgressFn func(ctx context.Context, userID, budgetID string, today time.Time) (*budget.CycleResult, error)
	getOverviewFn       func(ctx context.Context, userID string, today time.Time) ([]services.BudgetOverview, error)
}

var _ services.BudgetServicer = (*mockBudgetService)(nil)

func (m *mockBudgetService) CreateBudget(userID string, in services.BudgetInput) (*models.Budget, error) {
	if m.createBudgetFn != nil {
		return m.createBudgetFn(userID, in)
	}
	return &models.Budget{}, nil
}

func (m *mockBudgetService) GetUserBudgets(userID string, page pagination.PageRequest, isActive *bool) (*pagination.PageResponse[models.Budget], error) {
	if m.getUserBudgetsFn != nil {
		return m.getUserBudgetsFn(userID, page, isActive)
	}
	resp := pagination.NewPageResponse([]models.Budget{}, 1, 20, 0)
	return &resp, nil
}

func (m *mockBudgetService) GetBudgetByID(userID, budgetID string) (*models.Budget, error) {
	if m.getBudgetByIDFn != nil {
		return m.getBudgetByIDFn(userID, budgetID)
	}
	return &models.Budget{}, nil
}

func (m *mockBudgetService) UpdateBudget(userID, budgetID string, in services.BudgetInput) (*models.Budget, error) {
	if m.updateBudgetFn != nil {
		return m.updateBudgetFn(userID, budgetID, in)
	}
	return &models.Budget{}, nil
}

func (m *mockBudgetService) DeleteBudget(userID, budgetID string) error {
	if m.deleteBudgetFn != nil {
		return m.deleteBudgetFn(userID, budgetID)
	}
	return nil
}

func (m *mockBudgetService) GetBudgetCycles(ctx context.Context, userID, budgetID string, today time.Time) ([]budget.CycleResult, error) {
	if m.getBudgetCyclesFn != nil {
		return m.getBudgetCyclesFn(ctx, userID, budgetID, today)
	}
	return []budget.CycleResult{}, nil
}

func (m *mockBudgetService) GetBudgetCycle(ctx context.Context, userID, budgetID string, number int, today time.Time) (*budget.CycleResult, error) {
	if m.getBudgetCycleFn != nil {
		return m.getBudgetCycleFn(ctx, userID, budgetID, number, today)
	}
	return nil, nil
}

func (m *mockBudgetService) GetCycleSummary(ctx context.Context, userID, budgetID string, today time.Time) (*budget.Summary, error) {
	if m.getCycleSummaryFn != nil {
		return m.getCycleSummaryFn(ctx, userID, budgetID, today)
	}
	return &budget.Summary{}, nil
}

func (m *mockBudgetService) GetBudgetProgress(ctx context.Context, userID, budgetID string, today time.Time) (*budget.CycleResult, error) {
	if m.getBudgetProgressFn != nil {
		return m.getBudgetProgressFn(ctx, userID, budgetID, today)
	}
	return nil, nil
}

func (m *mockBudgetService) GetActiveBudgetsOverview(ctx context.Context, userID string, today time.Time) ([]services.BudgetOverview, error) {
	if m.getOverviewFn != nil {
		return m.getOverviewFn(ctx, userID, today)
	}
	return []services.BudgetOverview{}, nil
}

func setupBudgetRouter(handler *BudgetHandler) *gin.Engine {
	r := gin.New()
	auth := r.Group("", injectUserID(testUserID))
	auth.POST("/budgets", handler.CreateBudget)
	auth.GET("/budgets", handler.GetBudgets)
	auth.GET("/budgets/overview", handler.GetOverview)
	auth.GET("/budgets/:id", handler.GetBudget)
	auth.PUT("/budgets/:id", handler.UpdateBudget)
	auth.DELETE("/budgets/:id", handler.DeleteBudget)
	auth.GET("/budgets/:id/cycles", handler.GetBudgetCycles)
	auth.GET("/budgets/:id/cycles/summary", handler.GetCycleSummary)
	auth.GET("/budgets/:id/cycles/:number", handler.GetBudgetCycle)
	auth.GET("/budgets/:id/progress", handler.GetBudgetProgress)
	return r
}

const foodBudgetBody = `{
	"name": "Food",
	"period_type": "MONTHLY",
	"start_date": "2025-01-01",
	"cycle_type": "MONTHLY",
	"carry_over_enabled": true,
	"items": [
		{"account_pattern": "Expenses:Food:*", "amount": "1000", "currency": "CNY"}
	]
}`

func sampleCycle(number int) *budget.CycleResult {
	start := dates.New(2025, time.Month(number), 1)
	return &budget.CycleResult{
		PeriodNumber:    number,
		PeriodStart:     start,
		PeriodEnd:       dates.EndOfMonth(start),
		TotalAmount:     decimal.NewFromInt(1000),
		SpentAmount:     decimal.NewFromInt(850),
		RemainingAmount: decimal.NewFromInt(150),
		UsageRate:       decimal.NewFromInt(85),
		Status:          budget.StatusWarning,
	}
}

// --- tests ---

func TestBudgetHandler_CreateBudget(t *testing.T) {
	t.Run("returns 201 on success", func(t *testing.T) {
		var got services.BudgetInput
		svc := &mockBudgetService{
			createBudgetFn: func(userID string, in services.BudgetInput) (*models.Budget, error) {
				got = in
				return &models.Budget{Base: models.Base{ID: testBudgetID}, UserID: userID, Name: in.Name}, nil
			},
		}
		audit := &mockAuditService{}
		r := setupBudgetRouter(NewBudgetHandler(svc, audit, time.UTC))

		rec := doRequest(r, "POST", "/budgets", foodBudgetBody)

		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		if got.CycleType != models.CycleTypeMonthly || !got.CarryOverEnabled {
			t.Errorf("unexpected input: %+v", got)
		}
		if len(got.Items) != 1 || !got.Items[0].Amount.Equal(decimal.NewFromInt(1000)) {
			t.Errorf("unexpected items: %+v", got.Items)
		}
		if got.EndDate != nil {
			t.Errorf("expected open-ended budget, got end %v", got.EndDate)
		}
		if len(audit.entries) != 1 || audit.entries[0].resourceID != testBudgetID {
			t.Errorf("expected audit entry for %s, got %+v", testBudgetID, audit.entries)
		}
	})

	t.Run("defaults cycle type to NONE", func(t *testing.T) {
		var got services.BudgetInput
		svc := &mockBudgetService{
			createBudgetFn: func(_ string, in services.BudgetInput) (*models.Budget, error) {
				got = in
				return &models.Budget{}, nil
			},
		}
		r := setupBudgetRouter(NewBudgetHandler(svc, &mockAuditService{}, time.UTC))

		rec := doRequest(r, "POST", "/budgets",
			`{"name":"Trip","period_type":"CUSTOM","start_date":"2025-07-01","end_date":"2025-07-14","items":[{"account_pattern":"Expenses:Travel","amount":"5000","currency":"CNY"}]}`)

		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		if got.CycleType != models.CycleTypeNone {
			t.Errorf("expected NONE, got %s", got.CycleType)
		}
		if got.EndDate == nil || !got.EndDate.Equal(dates.New(2025, time.July, 14)) {
			t.Errorf("expected end 2025-07-14, got %v", got.EndDate)
		}
	})

	t.Run("returns 400 on invalid account pattern", func(t *testing.T) {
		r := setupBudgetRouter(NewBudgetHandler(&mockBudgetService{}, &mockAuditService{}, time.UTC))

		rec := doRequest(r, "POST", "/budgets",
			`{"name":"x","period_type":"MONTHLY","start_date":"2025-01-01","items":[{"account_pattern":"Expenses::*","amount":"1","currency":"CNY"}]}`)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "INVALID_INPUT")
	})

	t.Run("returns 400 without items", func(t *testing.T) {
		r := setupBudgetRouter(NewBudgetHandler(&mockBudgetService{}, &mockAuditService{}, time.UTC))

		rec := doRequest(r, "POST", "/budgets",
			`{"name":"x","period_type":"MONTHLY","start_date":"2025-01-01","items":[]}`)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("returns 400 on unknown cycle type", func(t *testing.T) {
		r := setupBudgetRouter(NewBudgetHandler(&mockBudgetService{}, &mockAuditService{}, time.UTC))

		rec := doRequest(r, "POST", "/budgets",
			`{"name":"x","period_type":"MONTHLY","cycle_type":"WEEKLY","start_date":"2025-01-01","items":[{"account_pattern":"Expenses","amount":"1","currency":"CNY"}]}`)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("passes service config errors through", func(t *testing.T) {
		svc := &mockBudgetService{
			createBudgetFn: func(_ string, _ services.BudgetInput) (*models.Budget, error) {
				return nil, apperrors.WithMessage(apperrors.ErrInvalidBudgetConfig, "a budget without cycles needs an end_date")
			},
		}
		r := setupBudgetRouter(NewBudgetHandler(svc, &mockAuditService{}, time.UTC))

		rec := doRequest(r, "POST", "/budgets", foodBudgetBody)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "INVALID_BUDGET_CONFIG")
	})
}

func TestBudgetHandler_GetBudgets(t *testing.T) {
	t.Run("returns 200 with paginated results", func(t *testing.T) {
		svc := &mockBudgetService{
			getUserBudgetsFn: func(_ string, _ pagination.PageRequest, _ *bool) (*pagination.PageResponse[models.Budget], error) {
				resp := pagination.NewPageResponse([]models.Budget{{Name: "Food"}}, 1, 20, 1)
				return &resp, nil
			},
		}
		r := setupBudgetRouter(NewBudgetHandler(svc, &mockAuditService{}, time.UTC))

		rec := doRequest(r, "GET", "/budgets", "")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if parseJSON(t, rec)["total_items"] != float64(1) {
			t.Error("expected total_items 1")
		}
	})

	t.Run("returns 400 on bad page size", func(t *testing.T) {
		r := setupBudgetRouter(NewBudgetHandler(&mockBudgetService{}, &mockAuditService{}, time.UTC))

		rec := doRequest(r, "GET", "/budgets?page_size=500", "")

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}

func TestBudgetHandler_GetBudget(t *testing.T) {
	t.Run("returns 404 when not found", func(t *testing.T) {
		svc := &mockBudgetService{
			getBudgetByIDFn: func(_, _ string) (*models.Budget, error) {
				return nil, apperrors.ErrBudgetNotFound
			},
		}
		r := setupBudgetRouter(NewBudgetHandler(svc, &mockAuditService{}, time.UTC))

		rec := doRequest(r, "GET", "/budgets/"+testBudgetID, "")

		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "BUDGET_NOT_FOUND")
	})

	t.Run("returns 400 on invalid id", func(t *testing.T) {
		r := setupBudgetRouter(NewBudgetHandler(&mockBudgetService{}, &mockAuditService{}, time.UTC))

		rec := doRequest(r, "GET", "/budgets/not-a-uuid", "")

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}

func TestBudgetHandler_UpdateAndDelete(t *testing.T) {
	t.Run("update returns 200", func(t *testing.T) {
		svc := &mockBudgetService{
			updateBudgetFn: func(_, budgetID string, in services.BudgetInput) (*models.Budget, error) {
				return &models.Budget{Base: models.Base{ID: budgetID}, Name: in.Name}, nil
			},
		}
		r := setupBudgetRouter(NewBudgetHandler(svc, &mockAuditService{}, time.UTC))

		rec := doRequest(r, "PUT", "/budgets/"+testBudgetID, foodBudgetBody)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		b := parseJSON(t, rec)["budget"].(map[string]interface{})
		if b["name"] != "Food" {
			t.Errorf("expected Food, got %v", b["name"])
		}
	})

	t.Run("delete returns 200", func(t *testing.T) {
		audit := &mockAuditService{}
		r := setupBudgetRouter(NewBudgetHandler(&mockBudgetService{}, audit, time.UTC))

		rec := doRequest(r, "DELETE", "/budgets/"+testBudgetID, "")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if len(audit.entries) != 1 || audit.entries[0].action != services.AuditActionDelete {
			t.Errorf("expected DELETE audit entry, got %+v", audit.entries)
		}
	})
}

func TestBudgetHandler_Cycles(t *testing.T) {
	t.Run("lists cycles as of the given date", func(t *testing.T) {
		var gotToday time.Time
		svc := &mockBudgetService{
			getBudgetCyclesFn: func(_ context.Context, _, _ string, today time.Time) ([]budget.CycleResult, error) {
				gotToday = today
				return []budget.CycleResult{*sampleCycle(1), *sampleCycle(2)}, nil
			},
		}
		r := setupBudgetRouter(NewBudgetHandler(svc, &mockAuditService{}, time.UTC))

		rec := doRequest(r, "GET", "/budgets/"+testBudgetID+"/cycles?as_of=2025-02-10", "")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if !gotToday.Equal(dates.New(2025, time.February, 10)) {
			t.Errorf("expected as_of 2025-02-10, got %s", gotToday)
		}
		cycles := parseJSON(t, rec)["cycles"].([]interface{})
		if len(cycles) != 2 {
			t.Fatalf("expected 2 cycles, got %d", len(cycles))
		}
		first := cycles[0].(map[string]interface{})
		if first["status"] != "warning" || first["spent_amount"] != "850" {
			t.Errorf("unexpected first cycle: %v", first)
		}
	})

	t.Run("returns 400 on bad as_of", func(t *testing.T) {
		r := setupBudgetRouter(NewBudgetHandler(&mockBudgetService{}, &mockAuditService{}, time.UTC))

		rec := doRequest(r, "GET", "/budgets/"+testBudgetID+"/cycles?as_of=tomorrow", "")

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("returns one cycle by number", func(t *testing.T) {
		var gotNumber int
		svc := &mockBudgetService{
			getBudgetCycleFn: func(_ context.Context, _, _ string, number int, _ time.Time) (*budget.CycleResult, error) {
				gotNumber = number
				return sampleCycle(number), nil
			},
		}
		r := setupBudgetRouter(NewBudgetHandler(svc, &mockAuditService{}, time.UTC))

		rec := doRequest(r, "GET", "/budgets/"+testBudgetID+"/cycles/2", "")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if gotNumber != 2 {
			t.Errorf("expected number 2, got %d", gotNumber)
		}
	})

	t.Run("returns null cycle when out of range", func(t *testing.T) {
		r := setupBudgetRouter(NewBudgetHandler(&mockBudgetService{}, &mockAuditService{}, time.UTC))

		rec := doRequest(r, "GET", "/budgets/"+testBudgetID+"/cycles/99", "")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		result := parseJSON(t, rec)
		if v, ok := result["cycle"]; !ok || v != nil {
			t.Errorf("expected cycle null, got %v", v)
		}
	})

	t.Run("returns 400 on non-numeric cycle", func(t *testing.T) {
		r := setupBudgetRouter(NewBudgetHandler(&mockBudgetService{}, &mockAuditService{}, time.UTC))

		rec := doRequest(r, "GET", "/budgets/"+testBudgetID+"/cycles/first", "")

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("summary routes ahead of cycle numbers", func(t *testing.T) {
		svc := &mockBudgetService{
			getCycleSummaryFn: func(_ context.Context, _, _ string, _ time.Time) (*budget.Summary, error) {
				return &budget.Summary{IsCyclic: true, CycleType: models.CycleTypeMonthly, TotalCycles: 3, CurrentCycle: sampleCycle(3)}, nil
			},
		}
		r := setupBudgetRouter(NewBudgetHandler(svc, &mockAuditService{}, time.UTC))

		rec := doRequest(r, "GET", "/budgets/"+testBudgetID+"/cycles/summary", "")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		summary := parseJSON(t, rec)["summary"].(map[string]interface{})
		if summary["total_cycles"] != float64(3) || summary["is_cyclic"] != true {
			t.Errorf("unexpected summary: %v", summary)
		}
	})
}

func TestBudgetHandler_Progress(t *testing.T) {
	t.Run("returns null progress outside the budget", func(t *testing.T) {
		r := setupBudgetRouter(NewBudgetHandler(&mockBudgetService{}, &mockAuditService{}, time.UTC))

		rec := doRequest(r, "GET", "/budgets/"+testBudgetID+"/progress", "")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if v := parseJSON(t, rec)["progress"]; v != nil {
			t.Errorf("expected null progress, got %v", v)
		}
	})

	t.Run("returns 404 when budget not found", func(t *testing.T) {
		svc := &mockBudgetService{
			getBudgetProgressFn: func(_ context.Context, _, _ string, _ time.Time) (*budget.CycleResult, error) {
				return nil, apperrors.ErrBudgetNotFound
			},
		}
		r := setupBudgetRouter(NewBudgetHandler(svc, &mockAuditService{}, time.UTC))

		rec := doRequest(r, "GET", "/budgets/"+testBudgetID+"/progress", "")

		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
	})
}

func TestBudgetHandler_GetOverview(t *testing.T) {
	t.Run("returns active budgets", func(t *testing.T) {
		svc := &mockBudgetService{
			getOverviewFn: func(_ context.Context, userID string, _ time.Time) ([]services.BudgetOverview, error) {
				return []services.BudgetOverview{
					{Budget: models.Budget{Name: "Food", UserID: userID}, CurrentCycle: sampleCycle(1)},
					{Budget: models.Budget{Name: "Trip", UserID: userID}},
				}, nil
			},
		}
		r := setupBudgetRouter(NewBudgetHandler(svc, &mockAuditService{}, time.UTC))

		rec := doRequest(r, "GET", "/budgets/overview", "")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		budgets := parseJSON(t, rec)["budgets"].([]interface{})
		if len(budgets) != 2 {
			t.Fatalf("expected 2 budgets, got %d", len(budgets))
		}
		if budgets[1].(map[string]interface{})["current_cycle"] != nil {
			t.Error("expected null current_cycle for the second budget")
		}
	})
}
