// Package cli implements the daybook command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mesh-intelligence/daybook/internal/paths"
	"github.com/mesh-intelligence/daybook/pkg/types"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// rootFlags holds global flag values accessible to all subcommands.
type rootFlags struct {
	configDir  string
	dataDir    string
	collection string
	jsonMode   bool
}

// app is the state shared by one invocation's commands.
type app struct {
	flags     rootFlags
	configDir string
	cfg       *viper.Viper

	stdout io.Writer
	stderr io.Writer
	now    func() time.Time
}

// NewRootCmd creates the top-level "daybook" command with global flags and
// all subcommands registered.
func NewRootCmd() *cobra.Command {
	a := &app{stdout: os.Stdout, stderr: os.Stderr, now: time.Now}
	return a.rootCmd()
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "daybook",
		Short: "A personal log of dated records",
		Long: "Daybook stores dated records (tasks, habits, moods, finances) and answers\n" +
			"per-day, per-range, and per-group questions from a date index that is\n" +
			"backfilled into older history in the background.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" || cmd.Name() == "help" {
				return nil
			}
			return a.loadConfig()
		},
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	// Global persistent flags.
	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.configDir, "config-dir", "", "configuration directory (default: platform config dir)")
	pf.StringVar(&a.flags.dataDir, "data-dir", "", "data directory (default: platform data dir)")
	pf.StringVarP(&a.flags.collection, "collection", "c", "",
		"collection to operate on, such as "+strings.Join(types.StandardCollections, ", ")+" (default: "+types.DefaultCollection+")")
	root.RegisterFlagCompletionFunc("collection", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return types.StandardCollections, cobra.ShellCompDirectiveNoFileComp
	})
	pf.BoolVar(&a.flags.jsonMode, "json", false, "output in JSON format")

	root.AddCommand(
		a.newVersionCmd(),
		a.newInitCmd(),
		a.newAddCmd(),
		a.newUpdateCmd(),
		a.newDeleteCmd(),
		a.newGetCmd(),
		a.newDayCmd(),
		a.newRangeCmd(),
		a.newGroupCmd(),
		a.newSummaryCmd(),
		a.newHistoryCmd(),
		a.newBackfillCmd(),
		a.newExportCmd(),
		a.newImportCmd(),
	)
	return root
}

// Execute runs the CLI against the process arguments and exits. A .env
// file in the working directory may set DAYBOOK_* variables.
func Execute() {
	_ = godotenv.Load(".env")
	os.Exit(Run(os.Args[1:], os.Stdout, os.Stderr))
}

// Run executes one invocation and returns its exit code.
func Run(args []string, stdout, stderr io.Writer) int {
	a := &app{stdout: stdout, stderr: stderr, now: time.Now}
	return a.run(args)
}

func (a *app) run(args []string) int {
	root := a.rootCmd()
	root.SetArgs(args)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(a.stderr, "daybook:", err)
		return exitCode(err)
	}
	return exitSuccess
}

// exitError carries an explicit exit code.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

// sysErr marks err as a failure of the environment rather than the input.
func sysErr(err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: exitSysError, err: err}
}

// exitCode maps err to a process exit code. Store failures and errors
// marked by sysErr are system errors; everything else is the caller's.
func exitCode(err error) int {
	var ee *exitError
	switch {
	case err == nil:
		return exitSuccess
	case errors.As(err, &ee):
		return ee.code
	case errors.Is(err, types.ErrStoreUnavailable):
		return exitSysError
	default:
		return exitUserError
	}
}

// resolveConfigDir returns the config directory from flag, env, or default.
func (a *app) resolveConfigDir() (string, error) {
	return paths.ResolveConfigDir(a.flags.configDir)
}

// resolveDataDir returns the data directory from flag, config.yaml, env, or
// default.
func (a *app) resolveDataDir() (string, error) {
	return paths.ResolveDataDir(a.flags.dataDir, a.cfg.GetString(cfgKeyDataDir))
}
