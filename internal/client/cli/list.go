package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dmitrijs2005/relaypacs/internal/client/models"
	"github.com/dmitrijs2005/relaypacs/internal/client/services"
	"github.com/spf13/cobra"
)

func newListCommand(app func() *App) *cobra.Command {
	var statuses []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List staged studies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := app()
			filter := make([]models.StudyStatus, 0, len(statuses))
			for _, s := range statuses {
				st := models.StudyStatus(s)
				if !st.Valid() {
					return fmt.Errorf("unknown status %q", s)
				}
				filter = append(filter, st)
			}

			list, err := a.uploads.Studies(cmd.Context(), filter...)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTATUS\tPATIENT\tMODALITY\tFILES\tPROGRESS\tCREATED")
			for _, st := range list {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%.1f%%\t%s\n",
					st.ID, st.Status, st.Metadata.PatientName, st.Metadata.Modality,
					st.TotalFiles, st.Progress, st.CreatedAt.Local().Format(time.DateTime))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "only studies in these states")
	return cmd
}

func newStatusCommand(app func() *App) *cobra.Command {
	var remote bool

	cmd := &cobra.Command{
		Use:   "status STUDY_ID",
		Short: "Show the progress of one study",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			ctx := cmd.Context()
			id, err := parseStudyID(args[0])
			if err != nil {
				return err
			}

			st, err := a.uploads.Study(ctx, id)
			if err != nil {
				return err
			}
			files, err := a.uploads.Files(ctx, id)
			if err != nil {
				return err
			}

			a.printf("Study %d: %s, %.1f%%\n", st.ID, st.Status, st.Progress)
			if st.UploadID != "" {
				a.printf("Upload id: %s (chunk size %d)\n", st.UploadID, st.ChunkSize)
			}
			for _, fp := range files {
				state := fmt.Sprintf("%d/%d chunks", len(fp.UploadedChunks), fp.TotalChunks)
				if fp.File.Purged {
					state += ", purged"
				}
				a.printf("  %s\t%d bytes\t%s\n", fp.File.FileName, fp.File.Size, state)
			}

			if !remote || st.UploadID == "" {
				return nil
			}
			rs, err := a.uploads.RemoteStatus(ctx, id)
			if errors.Is(err, services.ErrSessionNotInitialized) {
				return nil
			}
			if err != nil {
				return err
			}
			stale := ""
			if rs.Stale {
				stale = " (cached " + rs.FetchedAt.Local().Format(time.DateTime) + ")"
			}
			a.printf("Server: %s, %.1f%%, %d/%d bytes%s\n", rs.State, rs.ProgressPercent, rs.UploadedBytes, rs.TotalBytes, stale)
			return nil
		},
	}
	cmd.Flags().BoolVar(&remote, "remote", false, "also ask the server")
	return cmd
}
