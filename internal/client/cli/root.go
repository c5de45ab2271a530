package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/dmitrijs2005/relaypacs/internal/buildinfo"
	"github.com/dmitrijs2005/relaypacs/internal/client/config"
	"github.com/spf13/cobra"
)

// Execute builds the command tree for args and runs it.
func Execute(ctx context.Context, args []string, in io.Reader, out io.Writer) error {
	root, err := NewRootCommand(args, in, out)
	if err != nil {
		return err
	}
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// NewRootCommand loads configuration from the environment and the JSON file
// named in args, then registers flags that may override it.
func NewRootCommand(args []string, in io.Reader, out io.Writer) (*cobra.Command, error) {
	cfg, err := config.Load(args)
	if err != nil {
		return nil, err
	}

	var app *App
	root := &cobra.Command{
		Use:           "relaypacs",
		Short:         "Stage and upload imaging studies over unreliable links",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a, err := NewApp(cmd.Context(), cfg, in, out)
			if err != nil {
				return err
			}
			app = a
			return nil
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if app == nil {
				return nil
			}
			return app.Close()
		},
	}
	root.SetOut(out)
	root.SetErr(out)
	config.BindFlags(root.PersistentFlags(), cfg)

	current := func() *App { return app }
	root.AddCommand(
		newStageCommand(current),
		newEditCommand(current),
		newUploadCommand(current, cfg),
		newListCommand(current),
		newStatusCommand(current),
		newSweepCommand(current),
		newReplayCommand(current),
		newEndSessionCommand(current),
		newVersionCommand(),
	)
	return root, nil
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		// Overrides the root hook so no database is opened.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			buildinfo.PrintBuildData(cmd.OutOrStdout())
		},
	}
}

func parseStudyID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid study id %q", s)
	}
	return id, nil
}
