// Package validator provides custom validation functions for Gin's binding engine.
package validator

import (
	"beanmind/internal/accountpattern"
	"beanmind/internal/dates"
	"beanmind/internal/ledger"
	"beanmind/internal/models"
	"beanmind/internal/recurrence"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// Register registers all custom validators with the Gin binding engine.
func Register() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		RegisterOn(v)
	}
}

// RegisterOn adds the custom tags to v.
func RegisterOn(v *validator.Validate) {
	_ = v.RegisterValidation("commodity", validateCommodity)
	_ = v.RegisterValidation("account_name", validateAccountName)
	_ = v.RegisterValidation("account_pattern", validateAccountPattern)
	_ = v.RegisterValidation("date_only", validateDateOnly)
	_ = v.RegisterValidation("frequency", validateFrequency)
	_ = v.RegisterValidation("cycle_type", validateCycleType)
	_ = v.RegisterValidation("budget_period_type", validateBudgetPeriodType)
}

// validateCommodity checks Beancount commodity symbols such as CNY or VTI.
func validateCommodity(fl validator.FieldLevel) bool {
	return ledger.ValidCurrency(fl.Field().String())
}

func validateAccountName(fl validator.FieldLevel) bool {
	return ledger.ValidAccountName(fl.Field().String())
}

func validateAccountPattern(fl validator.FieldLevel) bool {
	return accountpattern.Validate(fl.Field().String()) == nil
}

// validateDateOnly accepts YYYY-MM-DD or RFC 3339 strings.
func validateDateOnly(fl validator.FieldLevel) bool {
	_, err := dates.ParseFlexible(fl.Field().String())
	return err == nil
}

func validateFrequency(fl validator.FieldLevel) bool {
	return recurrence.Frequency(fl.Field().String()).Valid()
}

func validateCycleType(fl validator.FieldLevel) bool {
	switch models.CycleType(fl.Field().String()) {
	case models.CycleTypeNone, models.CycleTypeMonthly, models.CycleTypeYearly:
		return true
	}
	return false
}

func validateBudgetPeriodType(fl validator.FieldLevel) bool {
	switch models.BudgetPeriodType(fl.Field().String()) {
	case models.BudgetPeriodMonthly, models.BudgetPeriodYearly, models.BudgetPeriodCustom:
		return true
	}
	return false
}
