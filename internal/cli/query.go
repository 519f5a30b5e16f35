package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/daybook/pkg/types"
)

// parseDay reads a date argument: YYYY-MM-DD, YYYYMMDD, today, or yesterday.
func parseDay(s string, loc *time.Location, now time.Time) (types.DateKey, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "today":
		return types.DateKeyOf(now, loc), nil
	case "yesterday":
		return types.DateKeyOf(now, loc).AddDays(-1), nil
	}
	return types.ParseDateKey(s)
}

func (a *app) newDayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "day [date]",
		Short: "List the records of one day",
		Example: `  daybook day
  daybook day 2026-03-14
  daybook -c habits day yesterday`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openSession()
			if err != nil {
				return err
			}
			defer s.Close()

			arg := "today"
			if len(args) == 1 {
				arg = args[0]
			}
			loc := s.repo.Location()
			key, err := parseDay(arg, loc, a.now())
			if err != nil {
				return err
			}
			recs, err := s.repo.GetForDate(cmd.Context(), key)
			if err != nil {
				return err
			}
			return a.printRecords(recs, loc)
		},
	}
}

func (a *app) newRangeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "range <from> <to>",
		Short: "List the records of an inclusive date range",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openSession()
			if err != nil {
				return err
			}
			defer s.Close()

			loc := s.repo.Location()
			from, to, err := a.parseSpan(args, loc)
			if err != nil {
				return err
			}
			recs, err := s.repo.GetInRange(cmd.Context(), from, to)
			if err != nil {
				return err
			}
			return a.printRecords(recs, loc)
		},
	}
}

func (a *app) newGroupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "group <id>",
		Short: "List the records that belong to a group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openSession()
			if err != nil {
				return err
			}
			defer s.Close()

			recs, err := s.repo.GetForGroup(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.printRecords(recs, s.repo.Location())
		},
	}
}

func (a *app) newSummaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary [from] [to]",
		Short: "Count records by category and status",
		Long: "Count the records of one day (default today) or of an inclusive range\n" +
			"by category and by status.",
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openSession()
			if err != nil {
				return err
			}
			defer s.Close()

			if len(args) == 0 {
				args = []string{"today"}
			}
			from, to, err := a.parseSpan(args, s.repo.Location())
			if err != nil {
				return err
			}
			var sum types.Summary
			if from == to {
				sum, err = s.repo.SummaryForDate(cmd.Context(), from)
			} else {
				sum, err = s.repo.SummaryForRange(cmd.Context(), from, to)
			}
			if err != nil {
				return err
			}
			return a.printSummary(sum)
		},
	}
}

// parseSpan reads one or two date arguments. A single date is a one-day span.
func (a *app) parseSpan(args []string, loc *time.Location) (from, to types.DateKey, err error) {
	now := a.now()
	from, err = parseDay(args[0], loc, now)
	if err != nil {
		return "", "", err
	}
	to = from
	if len(args) > 1 {
		if to, err = parseDay(args[1], loc, now); err != nil {
			return "", "", err
		}
	}
	if from.After(to) {
		return "", "", fmt.Errorf("%s is after %s: %w", from, to, types.ErrInvalidRange)
	}
	return from, to, nil
}
