package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"beanmind/internal/dates"
	"beanmind/internal/models"
)

var (
	flagPreviewRule  string
	flagPreviewFrom  string
	flagPreviewCount int
)

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "List a rule's upcoming due dates",
	RunE:  runPreview,
}

func init() {
	previewCmd.Flags().StringVar(&flagPreviewRule, "rule", "", "Recurring rule ID")
	previewCmd.Flags().StringVar(&flagPreviewFrom, "from", "", "First candidate date (YYYY-MM-DD), defaults to today")
	previewCmd.Flags().IntVarP(&flagPreviewCount, "count", "n", 5, "Number of dates to list")
	_ = previewCmd.MarkFlagRequired("rule")
	rootCmd.AddCommand(previewCmd)
}

func runPreview(cmd *cobra.Command, _ []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	var rule models.RecurringRule
	if err := a.db.Select("id", "user_id", "name").Where("id = ?", flagPreviewRule).First(&rule).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("rule %s not found", flagPreviewRule)
		}
		return fmt.Errorf("load rule: %w", err)
	}

	from, err := parseDateFlag("from", flagPreviewFrom, a.cfg.SchedulerLocation)
	if err != nil {
		return err
	}

	upcoming, err := a.services.Recurring.PreviewRule(rule.UserID, rule.ID, from, flagPreviewCount)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s (%s)\n", rule.Name, rule.ID)
	for _, d := range upcoming {
		fmt.Fprintf(out, "  %s  %s\n", dates.Format(d), d.Weekday())
	}
	return nil
}
