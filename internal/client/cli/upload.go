package cli

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/relaypacs/internal/client/client"
	"github.com/dmitrijs2005/relaypacs/internal/client/config"
	"github.com/dmitrijs2005/relaypacs/internal/client/services"
	"github.com/sethvargo/go-retry"
	"github.com/spf13/cobra"
)

func newUploadCommand(app func() *App, cfg *config.Config) *cobra.Command {
	var (
		retries int
		backoff time.Duration
	)

	cmd := &cobra.Command{
		Use:   "upload STUDY_ID...",
		Short: "Start or resume uploading staged studies",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			a.StartOnlineStatusWatcher(ctx)

			if retries < 0 {
				retries = cfg.MaxRetries
			}

			var errs []error
			for _, arg := range args {
				id, err := parseStudyID(arg)
				if err != nil {
					return err
				}
				if err := a.upload(ctx, id, retries, backoff); err != nil {
					a.printf("Study %d: %s\n", id, services.UserMessage(err))
					errs = append(errs, err)
				}
			}
			return errors.Join(errs...)
		},
	}
	cmd.Flags().IntVar(&retries, "retries", -1, "attempts after an unreachable server, -1 for the configured value")
	cmd.Flags().DurationVar(&backoff, "backoff", time.Second, "initial wait between attempts")
	return cmd
}

// upload runs one study to completion. Only an unreachable server is
// retried; the engine resumes from the recorded chunks on every attempt.
func (a *App) upload(ctx context.Context, studyID int64, retries int, backoff time.Duration) error {
	b := retry.WithMaxRetries(uint64(retries), retry.NewExponential(backoff))

	var res services.DrainResult
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		var err error
		res, err = a.uploads.StartUpload(ctx, studyID)
		if errors.Is(err, client.ErrUnavailable) {
			a.log.Warn(ctx, "server unavailable, retrying", "study_id", studyID, "quality", a.est.Quality().String(), "error", err)
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return err
	}

	a.printf("Study %d uploaded (%d chunks sent, %d skipped, %d bytes)\n", studyID, res.Sent, res.Skipped, res.Bytes)
	return nil
}
