package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/daybook/internal/backfill"
	"github.com/mesh-intelligence/daybook/pkg/types"
)

func (a *app) newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect or steer the history index of a collection",
	}
	cmd.AddCommand(
		a.historyStatusCmd(),
		a.historyPauseCmd("pause", "Stop backfill from indexing older days", true),
		a.historyPauseCmd("resume", "Let backfill index older days again", false),
		a.historyResetCmd(),
	)
	return cmd
}

func (a *app) historyStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show which days are indexed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openSession()
			if err != nil {
				return err
			}
			defer s.Close()

			st, err := s.repo.HistoryStatus(cmd.Context())
			if err != nil {
				return err
			}
			return a.printStatus(st)
		},
	}
}

func (a *app) historyPauseCmd(use, short string, paused bool) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openSession()
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.repo.SetBackfillPaused(cmd.Context(), paused); err != nil {
				return err
			}
			st, err := s.repo.HistoryStatus(cmd.Context())
			if err != nil {
				return err
			}
			return a.printStatus(st)
		},
	}
}

func (a *app) historyResetCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Drop the index of a collection",
		Long: "Drop every index entry and the backfill cursor of a collection. Records\n" +
			"are kept; the next command that touches the collection indexes it again.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("reset drops the whole index; pass --yes to confirm")
			}
			s, err := a.openSession()
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.repo.Reset(cmd.Context()); err != nil {
				return err
			}
			if a.flags.jsonMode {
				return printJSON(a.stdout, map[string]string{"reset": s.repo.Collection()})
			}
			fmt.Fprintf(a.stdout, "Index of %s dropped\n", s.repo.Collection())
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm the reset")
	return cmd
}

func (a *app) newBackfillCmd() *cobra.Command {
	var (
		chunkDays   int
		watch       bool
		interval    time.Duration
		metricsAddr string
	)
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Index older history",
		Long: "Index the next chunk of days older than the current window. With --watch,\n" +
			"keep indexing one chunk per interval until the history is complete.",
		Example: `  daybook backfill
  daybook backfill --chunk-days 90
  daybook backfill --watch --interval 1s --metrics-addr :9464`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openSession()
			if err != nil {
				return err
			}
			defer s.Close()

			if !cmd.Flags().Changed("chunk-days") {
				chunkDays = s.config.GetChunkDays()
			}
			if !cmd.Flags().Changed("interval") {
				interval = a.backfillInterval()
			}
			ctx := cmd.Context()

			if !watch {
				if _, err := s.repo.BackfillNextChunk(ctx, chunkDays); err != nil {
					return err
				}
				st, err := s.repo.HistoryStatus(ctx)
				if err != nil {
					return err
				}
				return a.printStatus(st)
			}

			if metricsAddr != "" {
				stop, err := s.serveMetrics(metricsAddr)
				if err != nil {
					return err
				}
				defer stop()
			}

			runner := &backfill.Runner{
				Target:    s.repo,
				ChunkDays: chunkDays,
				Interval:  interval,
				Logger:    s.log,
				OnChunk: func(st types.HistoryStatus) {
					if a.flags.jsonMode {
						_ = printJSON(a.stdout, st)
						return
					}
					fmt.Fprintf(a.stdout, "Indexed back to %s\n", st.IndexedFrom)
				},
			}
			err = runner.Run(ctx)
			if errors.Is(err, context.Canceled) {
				fmt.Fprintln(a.stderr, "Backfill interrupted; run it again to continue.")
				return nil
			}
			if err != nil {
				return err
			}
			if !a.flags.jsonMode {
				fmt.Fprintln(a.stdout, "History complete.")
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&chunkDays, "chunk-days", types.DefaultChunkDays, "days indexed per chunk (default: chunk_days from config)")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "keep indexing until the history is complete")
	cmd.Flags().DurationVar(&interval, "interval", backfill.DefaultInterval, "pause between chunks in --watch mode")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address in --watch mode")
	return cmd
}

// serveMetrics exposes the session registry on addr at /metrics until the
// returned stop function is called.
func (s *session) serveMetrics(addr string) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, sysErr(fmt.Errorf("listen on %s: %w", addr, err))
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Warn("metrics_server_failed", "error", err)
		}
	}()
	s.log.Info("metrics_listening", "addr", ln.Addr().String())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
