package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"beanmind/internal/dates"
	apperrors "beanmind/internal/errors"
	"beanmind/internal/ledger"
	"beanmind/internal/logger"
	"beanmind/internal/models"
	"beanmind/internal/pagination"
	"beanmind/internal/recurrence"
)

const (
	// DefaultClaimTTL is how long a PENDING claim blocks other attempts.
	DefaultClaimTTL = 10 * time.Minute

	defaultPreviewCount = 5
	maxPreviewCount     = 100
)

// RecurringOptions tunes a recurring service.
type RecurringOptions struct {
	// ClaimTTL is the age after which a PENDING execution is considered
	// abandoned and may be taken over.
	ClaimTTL time.Duration
	// Location determines "today" for cache refreshes outside a run.
	Location *time.Location
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// recurringService handles recurring rules and their materialization into
// ledger transactions.
type recurringService struct {
	db       *gorm.DB
	ledger   ledger.Writer
	locks    *keyedMutex
	claimTTL time.Duration
	loc      *time.Location
	now      func() time.Time
}

// NewRecurringService creates a new RecurringServicer writing to w.
func NewRecurringService(db *gorm.DB, w ledger.Writer, opts RecurringOptions) RecurringServicer {
	s := &recurringService{
		db:       db,
		ledger:   w,
		locks:    newKeyedMutex(),
		claimTTL: opts.ClaimTTL,
		loc:      opts.Location,
		now:      opts.Now,
	}
	if s.claimTTL <= 0 {
		s.claimTTL = DefaultClaimTTL
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func (s *recurringService) today() time.Time {
	return dates.Normalize(s.now().In(s.loc))
}

// keyedMutex hands out one mutex per key.
type keyedMutex struct {
	locks sync.Map
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{}
}

// Lock locks key and returns the matching unlock func.
func (k *keyedMutex) Lock(key string) func() {
	v, _ := k.locks.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// CreateRule validates and stores a new rule.
func (s *recurringService) CreateRule(userID string, in RecurringRuleInput) (*models.RecurringRule, error) {
	config, err := validateRuleInput(in)
	if err != nil {
		return nil, err
	}

	rule := &models.RecurringRule{
		UserID:              userID,
		Name:                in.Name,
		Frequency:           in.Frequency,
		FrequencyConfig:     config,
		TransactionTemplate: datatypes.NewJSONType(in.Template),
		StartDate:           dates.Normalize(in.StartDate),
		EndDate:             normalizePtr(in.EndDate),
		IsActive:            true,
	}
	if in.IsActive != nil {
		rule.IsActive = *in.IsActive
	}

	if err := s.db.Create(rule).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	// gorm skips zero-value bools on create when the column has a default
	// and reads the default back, so the input decides.
	if in.IsActive != nil && !*in.IsActive {
		if err := s.db.Model(rule).Update("is_active", false).Error; err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		rule.IsActive = false
	}

	if err := s.refreshCache(context.Background(), rule, s.today()); err != nil {
		return nil, err
	}
	return rule, nil
}

// GetUserRules returns a paginated list of the user's rules.
func (s *recurringService) GetUserRules(userID string, page pagination.PageRequest, isActive *bool) (*pagination.PageResponse[models.RecurringRule], error) {
	base := s.db.Model(&models.RecurringRule{}).Where("user_id = ?", userID)
	if isActive != nil {
		base = base.Where("is_active = ?", *isActive)
	}

	result, err := pagination.Find[models.RecurringRule](base, page, "created_at DESC")
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &result, nil
}

// GetRuleByID returns a rule if it belongs to the user.
func (s *recurringService) GetRuleByID(userID, ruleID string) (*models.RecurringRule, error) {
	var rule models.RecurringRule
	if err := s.db.Where("id = ? AND user_id = ?", ruleID, userID).First(&rule).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrRuleNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &rule, nil
}

// UpdateRule replaces a rule's definition and recomputes its caches.
func (s *recurringService) UpdateRule(userID, ruleID string, in RecurringRuleInput) (*models.RecurringRule, error) {
	rule, err := s.GetRuleByID(userID, ruleID)
	if err != nil {
		return nil, err
	}
	config, err := validateRuleInput(in)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(rule.ID)
	defer unlock()

	updates := map[string]interface{}{
		"name":                 in.Name,
		"frequency":            in.Frequency,
		"frequency_config":     config,
		"transaction_template": datatypes.NewJSONType(in.Template),
		"start_date":           dates.Normalize(in.StartDate),
		"end_date":             normalizePtr(in.EndDate),
	}
	if in.IsActive != nil {
		updates["is_active"] = *in.IsActive
	}
	if err := s.db.Model(rule).Updates(updates).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	updated, err := s.GetRuleByID(userID, ruleID)
	if err != nil {
		return nil, err
	}
	if err := s.refreshCache(context.Background(), updated, s.today()); err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteRule removes a rule. Rules with execution history are deactivated
// instead so the history keeps its owner.
func (s *recurringService) DeleteRule(userID, ruleID string) (bool, error) {
	rule, err := s.GetRuleByID(userID, ruleID)
	if err != nil {
		return false, err
	}

	var executions int64
	if err := s.db.Model(&models.RecurringExecution{}).Where("rule_id = ?", rule.ID).Count(&executions).Error; err != nil {
		return false, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	if executions > 0 {
		if err := s.db.Model(rule).Updates(map[string]interface{}{
			"is_active":      false,
			"next_execution": nil,
		}).Error; err != nil {
			return false, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		return true, nil
	}

	if err := s.db.Delete(rule).Error; err != nil {
		return false, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return false, nil
}

// GetRuleExecutions returns a rule's execution history, newest first.
func (s *recurringService) GetRuleExecutions(userID, ruleID string, page pagination.PageRequest) (*pagination.PageResponse[models.RecurringExecution], error) {
	rule, err := s.GetRuleByID(userID, ruleID)
	if err != nil {
		return nil, err
	}

	base := s.db.Model(&models.RecurringExecution{}).Where("rule_id = ?", rule.ID)
	result, err := pagination.Find[models.RecurringExecution](base, page, "executed_date DESC, created_at DESC")
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &result, nil
}

// PreviewRule lists the next count due dates on or after from.
func (s *recurringService) PreviewRule(userID, ruleID string, from time.Time, count int) ([]time.Time, error) {
	rule, err := s.GetRuleByID(userID, ruleID)
	if err != nil {
		return nil, err
	}
	if count <= 0 {
		count = defaultPreviewCount
	}
	if count > maxPreviewCount {
		count = maxPreviewCount
	}

	sched, err := rule.Schedule()
	if err != nil {
		return nil, apperrors.WrapWithMessage(apperrors.ErrInvalidRuleConfig, err.Error(), err)
	}
	upcoming, err := recurrence.Upcoming(sched, dates.Normalize(from), rule.StartDate, rule.EndDate, count)
	if err != nil {
		return nil, apperrors.WrapWithMessage(apperrors.ErrInvalidRuleConfig, "rule never comes due", err)
	}
	return upcoming, nil
}

// ExecuteManually materializes a rule for date regardless of its schedule
// and active flag. date must lie within the rule's window.
func (s *recurringService) ExecuteManually(ctx context.Context, userID, ruleID string, date time.Time) (*models.RecurringExecution, error) {
	rule, err := s.GetRuleByID(userID, ruleID)
	if err != nil {
		return nil, err
	}

	date = dates.Normalize(date)
	if date.Before(dates.Normalize(rule.StartDate)) || (rule.EndDate != nil && date.After(dates.Normalize(*rule.EndDate))) {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput,
			fmt.Sprintf("execution date %s is outside the rule's active window", dates.Format(date)))
	}

	prevNext := rule.NextExecution
	exec, execErr := s.execute(ctx, rule, date, models.ExecutionTriggerManual)

	from := date
	if execErr == nil {
		from = dates.AddDays(date, 1)
	}
	if prevNext != nil && prevNext.After(from) {
		from = dates.Normalize(*prevNext)
	}
	if err := s.refreshCache(context.WithoutCancel(ctx), rule, from); err != nil {
		logger.Get().Errorw("failed to refresh rule caches", "rule_id", rule.ID, "error", err)
	}

	if execErr != nil {
		return exec, execErr
	}
	return exec, nil
}

// RunDueRules executes every active rule that is due on today and has not
// yet succeeded for it. A failing rule never stops the run.
func (s *recurringService) RunDueRules(ctx context.Context, today time.Time) (*RunReport, error) {
	today = dates.Normalize(today)
	log := logger.Named("scheduler")

	var rules []models.RecurringRule
	err := s.db.WithContext(ctx).
		Where("is_active = ? AND start_date <= ? AND (end_date IS NULL OR end_date >= ?)", true, today, today).
		Order("created_at ASC").
		Find(&rules).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	report := &RunReport{Date: today, Results: []RuleRunResult{}}
	for i := range rules {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		rule := &rules[i]
		result := s.runRule(ctx, rule, today)
		report.Checked++
		switch result.Outcome {
		case OutcomeExecuted:
			report.Executed++
			log.Infow("recurring rule executed",
				"rule_id", rule.ID, "date", dates.Format(today), "transaction_id", result.TransactionID)
		case OutcomeFailed:
			report.Failed++
			log.Errorw("recurring rule failed",
				"rule_id", rule.ID, "date", dates.Format(today), "error", result.Error)
		default:
			report.Skipped++
			log.Debugw("recurring rule skipped",
				"rule_id", rule.ID, "date", dates.Format(today), "outcome", result.Outcome)
		}
		report.Results = append(report.Results, result)

		if err := s.refreshCache(context.WithoutCancel(ctx), rule, dates.AddDays(today, 1)); err != nil {
			log.Errorw("failed to refresh rule caches", "rule_id", rule.ID, "error", err)
		}
	}

	log.Infow("recurring run finished",
		"date", dates.Format(today),
		"checked", report.Checked,
		"executed", report.Executed,
		"skipped", report.Skipped,
		"failed", report.Failed,
	)
	return report, nil
}

func (s *recurringService) runRule(ctx context.Context, rule *models.RecurringRule, today time.Time) RuleRunResult {
	result := RuleRunResult{RuleID: rule.ID, RuleName: rule.Name}

	sched, err := rule.Schedule()
	if err != nil {
		result.Outcome = OutcomeFailed
		result.Error = err.Error()
		return result
	}
	if !recurrence.IsDue(sched, today) {
		result.Outcome = OutcomeNotDue
		return result
	}

	done, err := s.hasSucceeded(ctx, rule.ID, today)
	if err != nil {
		result.Outcome = OutcomeFailed
		result.Error = err.Error()
		return result
	}
	if done {
		result.Outcome = OutcomeAlreadyExecuted
		return result
	}

	exec, err := s.execute(ctx, rule, today, models.ExecutionTriggerScheduled)
	switch {
	case errors.Is(err, apperrors.ErrDueDateConflict):
		result.Outcome = OutcomeAlreadyExecuted
	case err != nil:
		result.Outcome = OutcomeFailed
		result.Error = err.Error()
		if exec != nil {
			result.ExecutionID = exec.ID
		}
	default:
		result.Outcome = OutcomeExecuted
		result.ExecutionID = exec.ID
		if exec.TransactionID != nil {
			result.TransactionID = *exec.TransactionID
		}
	}
	return result
}

func (s *recurringService) hasSucceeded(ctx context.Context, ruleID string, date time.Time) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.RecurringExecution{}).
		Where("rule_id = ? AND executed_date = ? AND status = ?", ruleID, date, models.ExecutionStatusSuccess).
		Count(&n).Error
	return n > 0, err
}

// execute claims (rule, date), appends the instantiated template to the
// ledger and records the outcome. The returned execution is non-nil whenever
// a claim was made, including on ledger failure.
func (s *recurringService) execute(ctx context.Context, rule *models.RecurringRule, date time.Time, trigger models.ExecutionTrigger) (*models.RecurringExecution, error) {
	unlock := s.locks.Lock(rule.ID)
	defer unlock()

	exec, err := s.claim(ctx, rule.ID, date, trigger)
	if err != nil {
		return nil, err
	}
	if exec.Status == models.ExecutionStatusSuccess {
		return exec, nil
	}

	txID, appendErr := s.ledger.AppendTransaction(ctx, instantiate(rule, date))

	// The claim must be settled even if ctx was cancelled during the append.
	finishCtx := context.WithoutCancel(ctx)
	if appendErr != nil {
		if err := s.finish(finishCtx, exec, models.ExecutionStatusFailed, nil, appendErr.Error()); err != nil {
			return exec, err
		}
		return exec, ledgerWriteError(appendErr)
	}
	if err := s.finish(finishCtx, exec, models.ExecutionStatusSuccess, &txID, ""); err != nil {
		return exec, err
	}
	return exec, nil
}

// claim inserts a PENDING execution for (ruleID, date). An existing SUCCESS
// or a live PENDING row is a conflict. A PENDING row older than the claim TTL
// is settled as SUCCESS and returned when its ledger transaction was already
// committed; otherwise it is marked FAILED and replaced.
func (s *recurringService) claim(ctx context.Context, ruleID string, date time.Time, trigger models.ExecutionTrigger) (*models.RecurringExecution, error) {
	db := s.db.WithContext(ctx)

	var existing []models.RecurringExecution
	err := db.Where("rule_id = ? AND executed_date = ? AND status IN ?", ruleID, date,
		[]models.ExecutionStatus{models.ExecutionStatusSuccess, models.ExecutionStatusPending}).
		Find(&existing).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	now := s.now()
	for i := range existing {
		row := &existing[i]
		if row.Status == models.ExecutionStatusSuccess {
			return nil, apperrors.ErrDueDateConflict
		}
		if now.Sub(row.CreatedAt) < s.claimTTL {
			return nil, apperrors.WithMessage(apperrors.ErrDueDateConflict, "An execution for this date is already in progress")
		}
		txID, found, err := s.committedTransaction(ctx, ruleID, date)
		if err != nil {
			return nil, err
		}
		if found {
			logger.Get().Warnw("settling abandoned execution claim with its committed transaction",
				"rule_id", ruleID, "execution_id", row.ID, "date", dates.Format(date), "transaction_id", txID)
			if err := s.finish(ctx, row, models.ExecutionStatusSuccess, &txID, ""); err != nil {
				return nil, err
			}
			return row, nil
		}
		logger.Get().Warnw("taking over abandoned execution claim",
			"rule_id", ruleID, "execution_id", row.ID, "date", dates.Format(date))
		if err := s.finish(ctx, row, models.ExecutionStatusFailed, nil, "abandoned claim"); err != nil {
			return nil, err
		}
	}

	exec := &models.RecurringExecution{
		RuleID:       ruleID,
		ExecutedDate: date,
		Status:       models.ExecutionStatusPending,
		Trigger:      trigger,
		CreatedAt:    now,
	}
	if err := db.Create(exec).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperrors.ErrDueDateConflict
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return exec, nil
}

// committedTransaction finds the ledger transaction a rule wrote for date.
func (s *recurringService) committedTransaction(ctx context.Context, ruleID string, date time.Time) (string, bool, error) {
	var txn models.LedgerTransaction
	err := s.db.WithContext(ctx).Select("id").
		Where("source = ? AND date = ?", ruleSource(ruleID), date).
		Order("created_at ASC").
		Take(&txn).Error
	switch {
	case err == nil:
		return txn.ID, true, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return "", false, nil
	default:
		return "", false, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
}

func (s *recurringService) finish(ctx context.Context, exec *models.RecurringExecution, status models.ExecutionStatus, txID *string, message string) error {
	finished := s.now()
	err := s.db.WithContext(ctx).Model(exec).Updates(map[string]interface{}{
		"status":         status,
		"transaction_id": txID,
		"error_message":  message,
		"finished_at":    finished,
	}).Error
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	exec.Status = status
	exec.TransactionID = txID
	exec.ErrorMessage = message
	exec.FinishedAt = &finished
	return nil
}

// refreshCache recomputes last_executed from the execution history and
// next_execution from the schedule, scanning from from.
func (s *recurringService) refreshCache(ctx context.Context, rule *models.RecurringRule, from time.Time) error {
	db := s.db.WithContext(ctx)

	var lastExecuted *time.Time
	var last models.RecurringExecution
	err := db.Where("rule_id = ? AND status = ?", rule.ID, models.ExecutionStatusSuccess).
		Order("executed_date DESC").
		First(&last).Error
	switch {
	case err == nil:
		lastExecuted = dates.Ptr(last.ExecutedDate)
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var nextExecution *time.Time
	if sched, err := rule.Schedule(); err == nil {
		next, ok, err := recurrence.NextDueOnOrAfter(sched, from, rule.StartDate, rule.EndDate)
		switch {
		case err != nil:
			logger.Get().Warnw("rule has no reachable due date", "rule_id", rule.ID, "error", err)
		case ok:
			nextExecution = &next
		}
	}

	if err := db.Model(rule).Updates(map[string]interface{}{
		"last_executed":  lastExecuted,
		"next_execution": nextExecution,
	}).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	rule.LastExecuted = lastExecuted
	rule.NextExecution = nextExecution
	return nil
}

// instantiate turns the rule's template into a ledger transaction dated date.
func instantiate(rule *models.RecurringRule, date time.Time) ledger.Transaction {
	tmpl := rule.Template()
	txn := ledger.Transaction{
		Date:        date,
		Flag:        ledger.FlagComplete,
		Payee:       tmpl.Payee,
		Description: tmpl.Description,
		Tags:        tmpl.Tags,
		Source:      ruleSource(rule.ID),
		Postings:    make([]ledger.Posting, 0, len(tmpl.Postings)),
	}
	for _, p := range tmpl.Postings {
		txn.Postings = append(txn.Postings, ledger.Posting{
			Account:  p.Account,
			Amount:   p.Amount,
			Currency: p.Currency,
		})
	}
	return txn
}

// ruleSource tags the ledger transactions a rule writes.
func ruleSource(ruleID string) string {
	return "recurring:" + ruleID
}

func ledgerWriteError(err error) error {
	if vErr, ok := ledger.AsValidationError(err); ok {
		return apperrors.WrapWithMessage(apperrors.ErrLedgerWriteFailed, vErr.Message, vErr)
	}
	return apperrors.Wrap(apperrors.ErrLedgerWriteFailed, err)
}

// validateRuleInput checks a rule definition and returns its canonical
// frequency config.
func validateRuleInput(in RecurringRuleInput) (datatypes.JSON, error) {
	if in.Name == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "name is required")
	}
	if in.StartDate.IsZero() {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "start_date is required")
	}
	start := dates.Normalize(in.StartDate)
	if in.EndDate != nil && dates.Normalize(*in.EndDate).Before(start) {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidRuleConfig, "end_date must not be before start_date")
	}

	sched, err := recurrence.Decode(in.Frequency, in.FrequencyConfig, start)
	if err != nil {
		return nil, apperrors.WrapWithMessage(apperrors.ErrInvalidRuleConfig, err.Error(), err)
	}
	config, err := recurrence.Encode(sched)
	if err != nil {
		return nil, apperrors.WrapWithMessage(apperrors.ErrInvalidRuleConfig, err.Error(), err)
	}

	if err := validateTemplate(in.Template); err != nil {
		return nil, err
	}
	return datatypes.JSON(config), nil
}

func validateTemplate(t models.TransactionTemplate) error {
	if t.Description == "" {
		return apperrors.WithMessage(apperrors.ErrInvalidTemplate, "template description is required")
	}
	if len(t.Postings) < 2 {
		return apperrors.WithMessage(apperrors.ErrInvalidTemplate, "template needs at least two postings")
	}
	postings := make([]ledger.Posting, 0, len(t.Postings))
	for _, p := range t.Postings {
		postings = append(postings, ledger.Posting{Account: p.Account, Amount: p.Amount, Currency: p.Currency})
	}
	if err := ledger.CheckPostings(postings); err != nil {
		return apperrors.WrapWithMessage(apperrors.ErrInvalidTemplate, err.Error(), err)
	}
	return nil
}

func normalizePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	return dates.Ptr(*t)
}
