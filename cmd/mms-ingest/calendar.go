package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mmsops/mms-ingest/internal/calendar"
)

var calendarDate string

var calendarCmd = &cobra.Command{
	Use:   "calendar [year]",
	Short: "Show processing holidays and business-day resolution",
	Long: `With a year argument, lists the observed federal holidays for that
year. With --date, shows whether the date is a processing day and the
adjacent processing days used for business-day assignment.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCalendar,
}

func init() {
	calendarCmd.Flags().StringVar(&calendarDate, "date", "", "Date to check, formatted YYYY-MM-DD")
	rootCmd.AddCommand(calendarCmd)
}

func runCalendar(_ *cobra.Command, args []string) error {
	if calendarDate != "" {
		d, err := calendar.ParseBusinessDay(calendarDate)
		if err != nil {
			return fmt.Errorf("invalid date: %w", err)
		}
		if off, reason := calendar.IsNonProcessingDay(d); off {
			fmt.Fprintf(os.Stdout, "%s is a non-processing day (%s)\n", calendarDate, reason)
		} else {
			fmt.Fprintf(os.Stdout, "%s is a processing day\n", calendarDate)
		}
		fmt.Fprintf(os.Stdout, "previous processing day: %s\n", calendar.FormatBusinessDay(calendar.PreviousProcessingDay(d)))
		fmt.Fprintf(os.Stdout, "next processing day:     %s\n", calendar.FormatBusinessDay(calendar.NextProcessingDay(d)))
		return nil
	}

	year := time.Now().Year()
	if len(args) == 1 {
		if _, err := fmt.Sscanf(args[0], "%d", &year); err != nil {
			return fmt.Errorf("invalid year %q", args[0])
		}
	}
	fmt.Fprintf(os.Stdout, "Observed holidays for %d:\n", year)
	for _, h := range calendar.HolidaysFor(year) {
		fmt.Fprintf(os.Stdout, "  %s  %s\n", calendar.FormatBusinessDay(h.Date), h.Name)
	}
	return nil
}
