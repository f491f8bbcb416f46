package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"beanmind/internal/accountpattern"
	"beanmind/internal/budget"
	"beanmind/internal/dates"
	apperrors "beanmind/internal/errors"
	"beanmind/internal/ledger"
	"beanmind/internal/models"
	"beanmind/internal/pagination"
)

// overviewConcurrency bounds how many budgets are measured at once.
const overviewConcurrency = 4

// budgetService handles budgets and their cycle projections.
type budgetService struct {
	db   *gorm.DB
	calc *budget.Calculator
}

// NewBudgetService creates a new BudgetServicer reading spending from q.
func NewBudgetService(db *gorm.DB, q ledger.Querier) BudgetServicer {
	return &budgetService{db: db, calc: budget.NewCalculator(q)}
}

func orderedItems(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}

func withItems(db *gorm.DB) *gorm.DB {
	return db.Preload("Items", orderedItems)
}

// CreateBudget validates and stores a budget with its items.
func (s *budgetService) CreateBudget(userID string, in BudgetInput) (*models.Budget, error) {
	if err := validateBudgetInput(in); err != nil {
		return nil, err
	}

	b := &models.Budget{
		UserID:           userID,
		Name:             in.Name,
		PeriodType:       in.PeriodType,
		StartDate:        dates.Normalize(in.StartDate),
		EndDate:          normalizePtr(in.EndDate),
		IsActive:         true,
		CycleType:        in.CycleType,
		CarryOverEnabled: in.CarryOverEnabled,
		Items:            budgetItems(in.Items),
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(b).Error; err != nil {
			return err
		}
		// is_active defaults to true in the schema, so false must be written explicitly.
		if in.IsActive != nil && !*in.IsActive {
			if err := tx.Model(b).Update("is_active", false).Error; err != nil {
				return err
			}
			b.IsActive = false
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return b, nil
}

// GetUserBudgets returns a paginated list of the user's budgets.
func (s *budgetService) GetUserBudgets(userID string, page pagination.PageRequest, isActive *bool) (*pagination.PageResponse[models.Budget], error) {
	base := s.db.Model(&models.Budget{}).Where("user_id = ?", userID)
	if isActive != nil {
		base = base.Where("is_active = ?", *isActive)
	}

	result, err := pagination.Find[models.Budget](base, page, "created_at DESC", withItems)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &result, nil
}

// GetBudgetByID returns a budget with its items if it belongs to the user.
func (s *budgetService) GetBudgetByID(userID, budgetID string) (*models.Budget, error) {
	var b models.Budget
	err := s.db.Preload("Items", orderedItems).
		Where("id = ? AND user_id = ?", budgetID, userID).
		First(&b).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrBudgetNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &b, nil
}

// UpdateBudget replaces a budget's definition and its items.
func (s *budgetService) UpdateBudget(userID, budgetID string, in BudgetInput) (*models.Budget, error) {
	b, err := s.GetBudgetByID(userID, budgetID)
	if err != nil {
		return nil, err
	}
	if err := validateBudgetInput(in); err != nil {
		return nil, err
	}

	updates := map[string]interface{}{
		"name":               in.Name,
		"period_type":        in.PeriodType,
		"start_date":         dates.Normalize(in.StartDate),
		"end_date":           normalizePtr(in.EndDate),
		"cycle_type":         in.CycleType,
		"carry_over_enabled": in.CarryOverEnabled,
	}
	if in.IsActive != nil {
		updates["is_active"] = *in.IsActive
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(b).Updates(updates).Error; err != nil {
			return err
		}
		if err := tx.Unscoped().Where("budget_id = ?", b.ID).Delete(&models.BudgetItem{}).Error; err != nil {
			return err
		}
		items := budgetItems(in.Items)
		for i := range items {
			items[i].BudgetID = b.ID
		}
		return tx.Create(&items).Error
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	return s.GetBudgetByID(userID, budgetID)
}

// DeleteBudget soft-deletes a budget.
func (s *budgetService) DeleteBudget(userID, budgetID string) error {
	b, err := s.GetBudgetByID(userID, budgetID)
	if err != nil {
		return err
	}

	if err := s.db.Delete(b).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return nil
}

// GetBudgetCycles evaluates every cycle of the budget generated as of today.
func (s *budgetService) GetBudgetCycles(ctx context.Context, userID, budgetID string, today time.Time) ([]budget.CycleResult, error) {
	b, err := s.GetBudgetByID(userID, budgetID)
	if err != nil {
		return nil, err
	}

	def := budget.FromModel(b)
	results, err := s.calc.ComputeCycles(ctx, def, budget.GenerateCycles(def, dates.Normalize(today)))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if results == nil {
		results = []budget.CycleResult{}
	}
	return results, nil
}

// GetBudgetCycle evaluates one cycle by number. An unknown number yields nil
// without error.
func (s *budgetService) GetBudgetCycle(ctx context.Context, userID, budgetID string, number int, today time.Time) (*budget.CycleResult, error) {
	b, err := s.GetBudgetByID(userID, budgetID)
	if err != nil {
		return nil, err
	}

	def := budget.FromModel(b)
	result, err := s.calc.ComputeCycle(ctx, def, budget.GenerateCycles(def, dates.Normalize(today)), number)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return result, nil
}

// GetCycleSummary reports the current cycle and the totals of the cycles
// that ended before today.
func (s *budgetService) GetCycleSummary(ctx context.Context, userID, budgetID string, today time.Time) (*budget.Summary, error) {
	b, err := s.GetBudgetByID(userID, budgetID)
	if err != nil {
		return nil, err
	}

	today = dates.Normalize(today)
	def := budget.FromModel(b)
	results, err := s.calc.ComputeCycles(ctx, def, budget.GenerateCycles(def, today))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	summary := budget.Summarize(def, results, today)
	return &summary, nil
}

// GetBudgetProgress evaluates the cycle containing today, or returns nil
// when today falls outside the budget.
func (s *budgetService) GetBudgetProgress(ctx context.Context, userID, budgetID string, today time.Time) (*budget.CycleResult, error) {
	b, err := s.GetBudgetByID(userID, budgetID)
	if err != nil {
		return nil, err
	}

	result, err := s.calc.ComputeCurrent(ctx, budget.FromModel(b), dates.Normalize(today))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return result, nil
}

// GetActiveBudgetsOverview evaluates the current cycle of every active budget
// of the user.
func (s *budgetService) GetActiveBudgetsOverview(ctx context.Context, userID string, today time.Time) ([]BudgetOverview, error) {
	var budgets []models.Budget
	err := s.db.WithContext(ctx).Preload("Items", orderedItems).
		Where("user_id = ? AND is_active = ?", userID, true).
		Order("start_date ASC, created_at ASC").
		Find(&budgets).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	today = dates.Normalize(today)
	overview := make([]BudgetOverview, len(budgets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(overviewConcurrency)
	for i := range budgets {
		i := i
		g.Go(func() error {
			current, err := s.calc.ComputeCurrent(gctx, budget.FromModel(&budgets[i]), today)
			if err != nil {
				return fmt.Errorf("budget %s: %w", budgets[i].ID, err)
			}
			overview[i] = BudgetOverview{Budget: budgets[i], CurrentCycle: current}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return overview, nil
}

func budgetItems(in []BudgetItemInput) []models.BudgetItem {
	items := make([]models.BudgetItem, 0, len(in))
	for i, it := range in {
		items = append(items, models.BudgetItem{
			Position:       i,
			AccountPattern: it.AccountPattern,
			Amount:         it.Amount,
			Currency:       it.Currency,
		})
	}
	return items
}

func validateBudgetInput(in BudgetInput) error {
	if in.Name == "" {
		return apperrors.WithMessage(apperrors.ErrInvalidInput, "name is required")
	}
	if in.StartDate.IsZero() {
		return apperrors.WithMessage(apperrors.ErrInvalidInput, "start_date is required")
	}

	switch in.CycleType {
	case models.CycleTypeNone:
		if in.EndDate == nil {
			return apperrors.WithMessage(apperrors.ErrInvalidBudgetConfig, "a budget without cycles needs an end_date")
		}
		if in.CarryOverEnabled {
			return apperrors.WithMessage(apperrors.ErrInvalidBudgetConfig, "carry-over requires a cyclic budget")
		}
	case models.CycleTypeMonthly, models.CycleTypeYearly:
	default:
		return apperrors.WithMessage(apperrors.ErrInvalidBudgetConfig, fmt.Sprintf("unknown cycle_type %q", in.CycleType))
	}

	switch in.PeriodType {
	case models.BudgetPeriodMonthly, models.BudgetPeriodYearly, models.BudgetPeriodCustom:
	default:
		return apperrors.WithMessage(apperrors.ErrInvalidBudgetConfig, fmt.Sprintf("unknown period_type %q", in.PeriodType))
	}

	if in.EndDate != nil && dates.Normalize(*in.EndDate).Before(dates.Normalize(in.StartDate)) {
		return apperrors.WithMessage(apperrors.ErrInvalidBudgetConfig, "end_date must not be before start_date")
	}

	if len(in.Items) == 0 {
		return apperrors.WithMessage(apperrors.ErrInvalidBudgetConfig, "a budget needs at least one item")
	}
	for i, it := range in.Items {
		if err := accountpattern.Validate(it.AccountPattern); err != nil {
			return apperrors.WrapWithMessage(apperrors.ErrInvalidBudgetConfig,
				fmt.Sprintf("item %d: %v", i+1, err), err)
		}
		if it.Amount.IsNegative() {
			return apperrors.WithMessage(apperrors.ErrInvalidBudgetConfig,
				fmt.Sprintf("item %d: amount must not be negative", i+1))
		}
		if !ledger.ValidCurrency(it.Currency) {
			return apperrors.WithMessage(apperrors.ErrInvalidBudgetConfig,
				fmt.Sprintf("item %d: invalid currency %q", i+1, it.Currency))
		}
	}
	return nil
}
