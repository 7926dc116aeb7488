package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/vk/planexec/internal/app"
	"github.com/vk/planexec/internal/session"
)

func newRunCommand(c *command) *cobra.Command {
	var (
		query  string
		output string
		strict bool
	)
	cmd := &cobra.Command{
		Use:   "run <plan>",
		Short: "Execute a plan and record the session",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			sess, err := a.Run(cmd.Context(), app.RunOptions{
				PlanPath:   args[0],
				Query:      query,
				OutputPath: output,
				Color:      c.color(),
			})
			switch {
			case errors.Is(err, app.ErrPlanRejected):
				return &ExitError{Code: ExitPlanRejected, Message: err.Error()}
			case err != nil:
				return &ExitError{Code: ExitRuntime, Message: err.Error()}
			case sess.Outcome == session.Aborted:
				return &ExitError{Code: ExitRuntime, Message: fmt.Sprintf("session %s aborted", sess.ID)}
			}
			if sum := sess.Summarize(); strict && sum.Failed > 0 {
				return &ExitError{
					Code:    ExitStepsFailed,
					Message: fmt.Sprintf("session %s: %d of %d steps did not succeed", sess.ID, sum.Failed, sum.Steps),
				}
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&query, "query", "", "Request text used to pre-seed placeholders (overrides the plan's query)")
	flags.StringVarP(&output, "output", "o", "", "Also write the transcript to this file")
	flags.BoolVar(&strict, "strict", false, "Exit with code 4 when any step does not succeed")
	flags.Int("workers", 10, "Maximum number of steps running at once")
	flags.Duration("timeout", 0, "Default per-step timeout, e.g. 5m; 0 disables it")
	flags.Int("status-port", 0, "Port for the status server with /health and /events. 0 is disabled.")
	mustBind(c.v, "workers", flags.Lookup("workers"))
	mustBind(c.v, "step_timeout", flags.Lookup("timeout"))
	mustBind(c.v, "status_port", flags.Lookup("status-port"))
	return cmd
}
