package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/aluiziolira/go-best-rank/pipeline"
	"github.com/aluiziolira/go-best-rank/report"
)

func newReportCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Aggregate stored batches into weekly or monthly reports.",
	}

	weekly := &cobra.Command{
		Use:   "weekly [YEAR MONTH WEEK]",
		Short: "Write the report of one week of a month (defaults to last week).",
		Args:  oneOfArgs(0, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			var w report.Window
			if len(args) == 0 {
				w = report.WeekContaining(time.Now().In(a.loc).AddDate(0, 0, -7))
			} else {
				nums, err := intArgs(args)
				if err != nil {
					return err
				}
				w, err = report.WeekOfMonth(nums[0], time.Month(nums[1]), nums[2], a.loc)
				if err != nil {
					return err
				}
			}
			return a.runReport(cmd, w)
		},
	}

	monthly := &cobra.Command{
		Use:   "monthly [YEAR MONTH]",
		Short: "Write the report of one calendar month (defaults to last month).",
		Args:  oneOfArgs(0, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			year, month := 0, time.Month(0)
			if len(args) == 0 {
				now := time.Now().In(a.loc)
				prev := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, a.loc).AddDate(0, -1, 0)
				year, month = prev.Year(), prev.Month()
			} else {
				nums, err := intArgs(args)
				if err != nil {
					return err
				}
				year, month = nums[0], time.Month(nums[1])
			}
			w, err := report.MonthOf(year, month, a.loc)
			if err != nil {
				return err
			}
			return a.runReport(cmd, w)
		},
	}

	cmd.AddCommand(weekly, monthly)
	return cmd
}

func (a *app) runReport(cmd *cobra.Command, w report.Window) error {
	s, closeFn, err := a.openStore()
	if err != nil {
		return err
	}
	defer closeQuietly(closeFn)

	p, err := a.pipeline(s)
	if err != nil {
		return err
	}

	summary, err := p.RunReport(cmd.Context(), w)
	if errors.Is(err, pipeline.ErrInsufficientData) {
		slog.Warn("report skipped", slog.String("window", w.Label), slog.Any("reason", err))
		return nil
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %d records over %d/%d days\n", w.Label, summary.Report.TotalCount, summary.Report.DaysWithData, summary.Report.DaysInWindow)
	for _, path := range []string{summary.Files.CSV, summary.Files.Markdown, summary.Files.XLSX} {
		if path != "" {
			fmt.Fprintln(out, "  "+path)
		}
	}
	return nil
}

func oneOfArgs(counts ...int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		for _, n := range counts {
			if len(args) == n {
				return nil
			}
		}
		return fmt.Errorf("accepts %v arg(s), received %d", counts, len(args))
	}
}

func intArgs(args []string) ([]int, error) {
	out := make([]int, len(args))
	for i, arg := range args {
		n, err := strconv.Atoi(arg)
		if err != nil {
			return nil, fmt.Errorf("argument %q is not a number", arg)
		}
		out[i] = n
	}
	return out, nil
}
