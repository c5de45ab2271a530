package cli

import (
	"github.com/spf13/cobra"
)

func newSweepCommand(app func() *App) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Purge uploaded content and delete expired studies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := app()
			if watch {
				<-a.sweeper.Schedule(cmd.Context())
				return nil
			}
			rep := a.sweeper.Run(cmd.Context())
			a.printf("Purged %d files, deleted %d abandoned and %d old studies, pruned %d queue items, evicted %d cache entries\n",
				rep.Purged, rep.Abandoned, rep.History, rep.SyncItems, rep.Evicted)
			return nil
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "keep sweeping every sweep interval until interrupted")
	return cmd
}

func newReplayCommand(app func() *App) *cobra.Command {
	return &cobra.Command{
		Use:   "replay",
		Short: "Retry completions that could not reach the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := app()
			rep, err := a.uploads.ReplayPending(cmd.Context())
			if err != nil {
				return err
			}
			a.printf("Replayed %d: %d completed, %d failed\n", rep.Attempted, rep.Completed, rep.Failed)
			return nil
		},
	}
}

func newEndSessionCommand(app func() *App) *cobra.Command {
	return &cobra.Command{
		Use:   "end-session",
		Short: "Forget the field encryption key",
		Long: `Removes the session key file. Metadata fields encrypted under it can no
longer be read and are shown as a placeholder.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := app()
			if err := a.cipher.EndSession(); err != nil {
				return err
			}
			a.printf("Session key removed\n")
			return nil
		},
	}
}
