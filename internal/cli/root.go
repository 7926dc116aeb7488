package cli

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/vk/planexec/internal/app"
	"github.com/vk/planexec/internal/config"
	"golang.org/x/term"
)

// command carries what every subcommand needs to build an App.
type command struct {
	v          *viper.Viper
	configFile string
	appOpts    []app.Option
	out        io.Writer
	logW       io.Writer
}

func (c *command) newApp() (*app.App, error) {
	cfg, err := config.Load(c.v, c.configFile)
	if err != nil {
		return nil, &ExitError{Code: ExitUsage, Message: err.Error()}
	}
	a, err := app.NewApp(c.out, c.logW, cfg, c.appOpts...)
	if err != nil {
		return nil, &ExitError{Code: ExitRuntime, Message: err.Error()}
	}
	return a, nil
}

// color reports whether output goes to a terminal.
func (c *command) color() bool {
	f, ok := c.out.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// NewRootCommand builds the command tree. Transcripts and listings go to out,
// logs to logW.
func NewRootCommand(out, logW io.Writer, opts ...app.Option) *cobra.Command {
	c := &command{v: config.NewViper(), appOpts: opts, out: out, logW: logW}

	root := &cobra.Command{
		Use:   "planexec",
		Short: "Execute dependency-ordered command plans",
		Long: `planexec runs a plan of shell commands, tool invocations and discovery steps.
Steps that consume a placeholder wait for the discovery step producing it;
independent steps run concurrently. Every run is recorded as a session.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.SetErr(logW)
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &ExitError{Code: ExitUsage, Message: err.Error()}
	})

	root.PersistentFlags().StringVar(&c.configFile, "config", "", "Path to a config file (default: search for config.toml)")
	root.PersistentFlags().String("log-level", "info", "Logging level: debug, info, warn or error")
	root.PersistentFlags().String("log-format", "text", "Log output format: text or json")
	mustBind(c.v, "log_level", root.PersistentFlags().Lookup("log-level"))
	mustBind(c.v, "log_format", root.PersistentFlags().Lookup("log-format"))

	root.AddCommand(newRunCommand(c), newValidateCommand(c), newSessionsCommand(c))
	return root
}

// Execute runs the command tree with args. It never exits the process; every
// failure is returned as an *ExitError.
func Execute(ctx context.Context, args []string, out, logW io.Writer, opts ...app.Option) error {
	root := NewRootCommand(out, logW, opts...)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return nil
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr
	}
	// Whatever our commands did not classify comes from argument parsing.
	return &ExitError{Code: ExitUsage, Message: err.Error()}
}
