package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/daybook/pkg/types"
)

// recordFlags are the editable fields shared by add and update.
type recordFlags struct {
	id       string
	title    string
	category string
	status   string
	group    string
	at       string
	data     map[string]string
}

func (f *recordFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.title, "title", "", "record title")
	cmd.Flags().StringVar(&f.category, "category", "", "category counted by summaries")
	cmd.Flags().StringVar(&f.status, "status", "", "status counted by summaries")
	cmd.Flags().StringVar(&f.group, "group", "", "id of the owning group (habit, budget, project)")
	cmd.Flags().StringVar(&f.at, "at", "", "date or time: YYYY-MM-DD, 'YYYY-MM-DD HH:MM', RFC 3339, today, yesterday (default: now)")
	cmd.Flags().StringToStringVar(&f.data, "data", nil, "extra fields as key=value pairs")
}

// apply copies the flags the user set onto rec.
func (f *recordFlags) apply(cmd *cobra.Command, rec *types.Record, loc *time.Location, now time.Time) error {
	changed := cmd.Flags().Changed
	if changed("title") {
		rec.Title = f.title
	}
	if changed("category") {
		rec.Category = f.category
	}
	if changed("status") {
		rec.Status = f.status
	}
	if changed("group") {
		rec.GroupID = f.group
	}
	if changed("at") || rec.At.IsZero() {
		at, err := parseAt(f.at, loc, now)
		if err != nil {
			return err
		}
		rec.At = at
	}
	if changed("data") {
		if rec.Data == nil {
			rec.Data = make(map[string]any, len(f.data))
		}
		for k, v := range f.data {
			if v == "" {
				delete(rec.Data, k)
				continue
			}
			rec.Data[k] = v
		}
	}
	return nil
}

// parseAt reads a record time. Dates without a time mean midnight in loc.
func parseAt(s string, loc *time.Location, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "now", "today":
		return now, nil
	case "yesterday":
		return now.AddDate(0, 0, -1), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	for _, layout := range []string{"2006-01-02 15:04", "2006-01-02T15:04"} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	key, err := types.ParseDateKey(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("cannot read %q as a date or time: %w", s, types.ErrInvalidDateKey)
	}
	return key.Time(loc)
}

func (a *app) newAddCmd() *cobra.Command {
	var f recordFlags
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a record",
		Example: `  daybook add --title "Run 5k" --category health --status done
  daybook -c habits add --title "Meditate" --group morning --at yesterday`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openSession()
			if err != nil {
				return err
			}
			defer s.Close()

			rec := &types.Record{ID: f.id}
			if err := f.apply(cmd, rec, s.repo.Location(), a.now()); err != nil {
				return err
			}
			created, err := s.repo.Create(cmd.Context(), rec)
			if err != nil {
				return fmt.Errorf("add: %w", err)
			}
			if a.flags.jsonMode {
				return printJSON(a.stdout, created)
			}
			fmt.Fprintf(a.stdout, "Added %s on %s\n", created.ID, created.DateKey(s.repo.Location()))
			return nil
		},
	}
	f.register(cmd)
	cmd.Flags().StringVar(&f.id, "id", "", "record id (default: generated UUID v7)")
	cmd.MarkFlagRequired("title")
	return cmd
}

func (a *app) newUpdateCmd() *cobra.Command {
	var f recordFlags
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change fields of a record",
		Long:  "Change the given fields of a record. Moving it to another day or group\nkeeps the indexes in step.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openSession()
			if err != nil {
				return err
			}
			defer s.Close()

			rec, err := s.repo.Get(cmd.Context(), args[0])
			if err != nil {
				return notFound(args[0], err)
			}
			if err := f.apply(cmd, rec, s.repo.Location(), a.now()); err != nil {
				return err
			}
			updated, err := s.repo.Update(cmd.Context(), rec)
			if err != nil {
				return fmt.Errorf("update: %w", err)
			}
			if a.flags.jsonMode {
				return printJSON(a.stdout, updated)
			}
			fmt.Fprintf(a.stdout, "Updated %s\n", updated.ID)
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

func (a *app) newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openSession()
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.repo.Delete(cmd.Context(), args[0]); err != nil {
				return notFound(args[0], err)
			}
			if a.flags.jsonMode {
				return printJSON(a.stdout, map[string]string{"deleted": args[0]})
			}
			fmt.Fprintf(a.stdout, "Deleted %s\n", args[0])
			return nil
		},
	}
}

func (a *app) newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openSession()
			if err != nil {
				return err
			}
			defer s.Close()

			rec, err := s.repo.Get(cmd.Context(), args[0])
			if err != nil {
				return notFound(args[0], err)
			}
			return a.printRecord(rec, s.repo.Location())
		},
	}
}

// notFound rewords ErrNotFound for the terminal and passes other errors on.
func notFound(id string, err error) error {
	if errors.Is(err, types.ErrNotFound) {
		return fmt.Errorf("record %q not found in this collection: %w", id, types.ErrNotFound)
	}
	return err
}
