package cli

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/daybook/internal/sqlite"
	"github.com/mesh-intelligence/daybook/pkg/types"
)

func (a *app) newExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <file.jsonl>",
		Short: "Write every record of a collection to a JSONL file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openSession()
			if err != nil {
				return err
			}
			defer s.Close()

			recs, err := s.store.Records().GetAll(cmd.Context())
			if err != nil {
				return err
			}
			if err := sqlite.WriteRecordsJSONL(args[0], recs); err != nil {
				return sysErr(fmt.Errorf("export: %w", err))
			}
			if a.flags.jsonMode {
				return printJSON(a.stdout, map[string]any{"exported": len(recs), "file": args[0]})
			}
			fmt.Fprintf(a.stdout, "Exported %s records to %s\n", humanize.Comma(int64(len(recs))), args[0])
			return nil
		},
	}
}

// importCounts tallies what an import did.
type importCounts struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
}

func (a *app) newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.jsonl>",
		Short: "Load records from a JSONL file",
		Long: "Load records from a JSONL file written by export. Records whose id\n" +
			"already exists are replaced; malformed lines are skipped.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openSession()
			if err != nil {
				return err
			}
			defer s.Close()

			recs, skipped, err := sqlite.ReadRecordsJSONL(args[0])
			if err != nil {
				return fmt.Errorf("import: %w", err)
			}
			counts := importCounts{Skipped: skipped}
			ctx := cmd.Context()
			for _, rec := range recs {
				_, err := s.repo.Get(ctx, rec.ID)
				switch {
				case errors.Is(err, types.ErrNotFound):
					if _, err := s.repo.Create(ctx, rec); err != nil {
						return fmt.Errorf("import %s: %w", rec.ID, err)
					}
					counts.Created++
				case err != nil:
					return fmt.Errorf("import %s: %w", rec.ID, err)
				default:
					if _, err := s.repo.Update(ctx, rec); err != nil {
						return fmt.Errorf("import %s: %w", rec.ID, err)
					}
					counts.Updated++
				}
			}
			if a.flags.jsonMode {
				return printJSON(a.stdout, counts)
			}
			fmt.Fprintf(a.stdout, "Imported %s: %d created, %d updated, %d skipped\n",
				args[0], counts.Created, counts.Updated, counts.Skipped)
			return nil
		},
	}
}
