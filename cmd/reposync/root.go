// Package reposync contains the Cobra command tree for the reposync CLI.
package reposync

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/skaphos/reposync/internal/update"
)

var (
	// Global flags
	flagVerbose int
	flagQuiet   bool
	flagConfig  string
	flagNoColor bool
	flagYes     bool
	// isTerminalFD is overridable in tests.
	isTerminalFD = term.IsTerminal
	// exitFunc is overridable in tests.
	exitFunc = os.Exit
	// updateChecker is overridable in tests; production wiring stays the
	// documented no-network stub until a real out-of-core checker exists.
	updateChecker update.Checker = update.NoopChecker{CurrentVersion: Version}
)

type runtimeStateKey struct{}

type runtimeState struct {
	exitCode int
}

var rootCmd = &cobra.Command{
	Use:   "reposync",
	Short: "Multi-provider git mirror sync engine",
	Long:  "reposync mirrors repositories from Azure DevOps, GitHub, and GitLab into a local working-tree layout, tracking fast-forward-only updates and missing-repo drift.",
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		// `NO_COLOR` is a standard opt-out and should behave like --no-color.
		if strings.TrimSpace(os.Getenv("NO_COLOR")) != "" {
			flagNoColor = true
		}
	},
}

func init() {
	rootCmd.PersistentFlags().CountVarP(&flagVerbose, "verbose", "v", "increase output verbosity (repeatable)")
	rootCmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress non-essential output")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "override config file path")
	rootCmd.PersistentFlags().BoolVar(&flagNoColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVar(&flagYes, "yes", false, "accept mutating actions without interactive confirmation")
}

// Execute runs the root command.
func Execute() {
	exitFunc(ExecuteWithExitCode())
}

// ExecuteWithExitCode runs the root command and returns the shell-friendly
// exit code: 0 success, 2 update-available, non-zero otherwise.
func ExecuteWithExitCode() int {
	state := &runtimeState{}
	rootCmd.SetContext(context.WithValue(context.Background(), runtimeStateKey{}, state))
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 3
	}
	if state.exitCode != 0 {
		return state.exitCode
	}
	return updateExitCode(rootCmd.Context())
}

// updateExitCode reports 2 when the update checker sees a newer release,
// otherwise 0. A checker error is treated the same as "no update": the
// update check is a convenience, not a gate on the run's own result.
func updateExitCode(ctx context.Context) int {
	info, err := updateChecker.CheckForUpdate(ctx)
	if err != nil || info == nil || !info.UpdateAvailable {
		return 0
	}
	return 2
}

func raiseExitCode(cmd *cobra.Command, code int) {
	// Keep the highest severity: 0 success, 2 update-available, >0 error.
	state := runtimeStateFor(cmd)
	if code > state.exitCode {
		state.exitCode = code
	}
}

func infof(cmd *cobra.Command, format string, args ...any) {
	if flagQuiet {
		return
	}
	_, _ = fmt.Fprintf(cmd.ErrOrStderr(), format+"\n", args...)
}

func debugf(cmd *cobra.Command, format string, args ...any) {
	if flagQuiet || flagVerbose <= 0 {
		return
	}
	_, _ = fmt.Fprintf(cmd.ErrOrStderr(), format+"\n", args...)
}

func runtimeStateFor(cmd *cobra.Command) *runtimeState {
	root := cmd
	if root != nil {
		root = cmd.Root()
	}
	if root == nil {
		root = rootCmd
	}
	ctx := root.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if state, ok := ctx.Value(runtimeStateKey{}).(*runtimeState); ok && state != nil {
		return state
	}
	state := &runtimeState{}
	root.SetContext(context.WithValue(ctx, runtimeStateKey{}, state))
	return state
}

func configOverride(cmd *cobra.Command) string {
	if v, err := cmd.Flags().GetString("config"); err == nil && v != "" {
		return v
	}
	return flagConfig
}
