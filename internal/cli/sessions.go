package cli

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"github.com/vk/planexec/internal/session"
)

func newSessionsCommand(c *command) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect recorded sessions",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List recorded sessions, newest first",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			list, err := a.ListSessions(cmd.Context())
			if err != nil {
				return &ExitError{Code: ExitRuntime, Message: err.Error()}
			}
			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No sessions recorded.")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), sessionTable(list))
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Print the transcript of a recorded session",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.ShowSession(cmd.Context(), args[0], c.color()); err != nil {
				if errors.Is(err, session.ErrNotFound) {
					return &ExitError{Code: ExitUsage, Message: err.Error()}
				}
				return &ExitError{Code: ExitRuntime, Message: err.Error()}
			}
			return nil
		},
	})
	return cmd
}

func sessionTable(list []session.Summary) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "STARTED", "DURATION", "OUTCOME", "STEPS", "NOT OK")
	for _, s := range list {
		t.Row(
			s.ID,
			s.StartedAt.Local().Format(time.DateTime),
			s.EndedAt.Sub(s.StartedAt).Round(time.Millisecond).String(),
			string(s.Outcome),
			strconv.Itoa(s.Steps),
			strconv.Itoa(s.Failed),
		)
	}
	return t.String()
}
