package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/mesh-intelligence/daybook/pkg/types"
)

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return sysErr(fmt.Errorf("marshal JSON: %w", err))
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}

// printRecords writes records as a table, or as a JSON array in --json mode.
func (a *app) printRecords(recs []*types.Record, loc *time.Location) error {
	if a.flags.jsonMode {
		if recs == nil {
			recs = []*types.Record{}
		}
		return printJSON(a.stdout, recs)
	}
	if len(recs) == 0 {
		fmt.Fprintln(a.stdout, "No records.")
		return nil
	}
	tw := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tTIME\tID\tCATEGORY\tSTATUS\tGROUP\tTITLE")
	for _, rec := range recs {
		at := rec.At.In(loc)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			at.Format("2006-01-02"), at.Format("15:04"), rec.ID,
			dash(rec.Category), dash(rec.Status), dash(rec.GroupID), rec.Title)
	}
	return tw.Flush()
}

// printRecord writes one record in full.
func (a *app) printRecord(rec *types.Record, loc *time.Location) error {
	if a.flags.jsonMode {
		return printJSON(a.stdout, rec)
	}
	tw := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "ID:\t%s\n", rec.ID)
	fmt.Fprintf(tw, "Title:\t%s\n", rec.Title)
	fmt.Fprintf(tw, "At:\t%s\n", rec.At.In(loc).Format(time.RFC3339))
	fmt.Fprintf(tw, "Category:\t%s\n", dash(rec.Category))
	fmt.Fprintf(tw, "Status:\t%s\n", dash(rec.Status))
	fmt.Fprintf(tw, "Group:\t%s\n", dash(rec.GroupID))
	fmt.Fprintf(tw, "Updated:\t%s\n", humanize.RelTime(rec.UpdatedAt, a.now(), "ago", "from now"))
	keys := slices.Sorted(maps.Keys(rec.Data))
	for _, k := range keys {
		fmt.Fprintf(tw, "%s:\t%v\n", k, rec.Data[k])
	}
	return tw.Flush()
}

// printSummary writes per-category and per-status counts.
func (a *app) printSummary(s types.Summary) error {
	if a.flags.jsonMode {
		return printJSON(a.stdout, s)
	}
	span := s.From.String()
	if s.To != s.From {
		span += " to " + s.To.String()
	}
	fmt.Fprintf(a.stdout, "%s: %s records\n", span, humanize.Comma(int64(s.Total)))
	for _, part := range []struct {
		title  string
		counts map[string]int
	}{
		{"By category", s.ByCategory},
		{"By status", s.ByStatus},
	} {
		if len(part.counts) == 0 {
			continue
		}
		fmt.Fprintf(a.stdout, "%s:\n", part.title)
		tw := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
		for _, k := range slices.Sorted(maps.Keys(part.counts)) {
			fmt.Fprintf(tw, "  %s\t%s\n", k, humanize.Comma(int64(part.counts[k])))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	return nil
}

// printStatus writes the history coverage of a collection.
func (a *app) printStatus(st types.HistoryStatus) error {
	if a.flags.jsonMode {
		return printJSON(a.stdout, st)
	}
	if !st.Bootstrapped {
		fmt.Fprintf(a.stdout, "Collection %s: not indexed yet (first read or write bootstraps it)\n", st.Collection)
		return nil
	}
	state := "in progress"
	switch {
	case st.Complete:
		state = "complete"
	case st.Paused:
		state = "paused"
	}
	days := st.IndexedFrom.DaysBetween(st.IndexedThrough) + 1
	tw := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Collection:\t%s\n", st.Collection)
	fmt.Fprintf(tw, "Indexed:\t%s to %s (%s days)\n", st.IndexedFrom, st.IndexedThrough, humanize.Comma(int64(days)))
	fmt.Fprintf(tw, "Backfill:\t%s\n", state)
	if !st.UpdatedAt.IsZero() {
		fmt.Fprintf(tw, "Updated:\t%s\n", humanize.RelTime(st.UpdatedAt, a.now(), "ago", "from now"))
	}
	return tw.Flush()
}

func dash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
