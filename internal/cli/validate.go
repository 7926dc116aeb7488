package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/vk/planexec/internal/app"
)

func newValidateCommand(c *command) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <plan>",
		Short: "Check a plan and its dependency graph without running it",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			sess, err := a.Validate(cmd.Context(), args[0])
			if errors.Is(err, app.ErrPlanRejected) {
				return &ExitError{Code: ExitPlanRejected, Message: err.Error()}
			}
			if err != nil {
				return &ExitError{Code: ExitRuntime, Message: err.Error()}
			}

			order, err := sess.Graph.TopologicalOrder()
			if err != nil {
				return &ExitError{Code: ExitPlanRejected, Message: err.Error()}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Plan is valid: %d steps\n", len(sess.Plan.Steps))
			fmt.Fprintf(cmd.OutOrStdout(), "Order: %v\n", order)
			return nil
		},
	}
}
