package cli

import (
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/relaypacs/internal/client/models"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const dicomType = "application/dicom"

func fileType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == ".dcm" || ext == "" {
		return dicomType
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}

func newStageCommand(app func() *App) *cobra.Command {
	var md models.StudyMetadata

	cmd := &cobra.Command{
		Use:   "stage [flags] FILE...",
		Short: "Stage a study for upload",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			files := make([]models.NewFile, 0, len(args))
			var total int64
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("read %s: %w", path, err)
				}
				name := filepath.Base(path)
				files = append(files, models.NewFile{Name: name, Type: fileType(name), Content: data})
				total += int64(len(data))
			}

			id, err := a.uploads.CreateStudy(cmd.Context(), md, files)
			if err != nil {
				return err
			}
			a.printf("Staged study %d (%d files, %d bytes)\n", id, len(files), total)
			return nil
		},
	}

	bindMetadataFlags(cmd.Flags(), &md)
	_ = cmd.MarkFlagRequired("patient")
	_ = cmd.MarkFlagRequired("date")
	_ = cmd.MarkFlagRequired("modality")
	return cmd
}

// metadataFields maps each metadata flag to the field it sets.
var metadataFields = map[string]func(*models.StudyMetadata) *string{
	"patient":       func(m *models.StudyMetadata) *string { return &m.PatientName },
	"date":          func(m *models.StudyMetadata) *string { return &m.StudyDate },
	"modality":      func(m *models.StudyMetadata) *string { return &m.Modality },
	"age":           func(m *models.StudyMetadata) *string { return &m.Age },
	"gender":        func(m *models.StudyMetadata) *string { return &m.Gender },
	"service-level": func(m *models.StudyMetadata) *string { return &m.ServiceLevel },
	"description":   func(m *models.StudyMetadata) *string { return &m.StudyDescription },
	"history":       func(m *models.StudyMetadata) *string { return &m.ClinicalHistory },
}

func bindMetadataFlags(f *pflag.FlagSet, md *models.StudyMetadata) {
	f.StringVar(&md.PatientName, "patient", "", "patient name")
	f.StringVar(&md.StudyDate, "date", "", "study date, YYYY-MM-DD")
	f.StringVar(&md.Modality, "modality", "", "modality, e.g. CT or MR")
	f.StringVar(&md.Age, "age", "", "patient age")
	f.StringVar(&md.Gender, "gender", "", "patient gender")
	f.StringVar(&md.ServiceLevel, "service-level", "", "reporting priority")
	f.StringVar(&md.StudyDescription, "description", "", "study description")
	f.StringVar(&md.ClinicalHistory, "history", "", "clinical history")
}

// newEditCommand changes metadata of a study that has not started uploading.
// Only the flags given on the command line are applied.
func newEditCommand(app func() *App) *cobra.Command {
	var md models.StudyMetadata

	cmd := &cobra.Command{
		Use:   "edit [flags] STUDY_ID",
		Short: "Edit the metadata of a queued study",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			id, err := parseStudyID(args[0])
			if err != nil {
				return err
			}

			var changed []string
			cmd.Flags().Visit(func(f *pflag.Flag) {
				if _, ok := metadataFields[f.Name]; ok {
					changed = append(changed, f.Name)
				}
			})
			if len(changed) == 0 {
				return errors.New("nothing to edit")
			}

			err = a.uploads.EditMetadata(cmd.Context(), id, func(cur *models.StudyMetadata) {
				for _, name := range changed {
					*metadataFields[name](cur) = *metadataFields[name](&md)
				}
			})
			if err != nil {
				return err
			}
			a.printf("Updated study %d (%s)\n", id, strings.Join(changed, ", "))
			return nil
		},
	}

	bindMetadataFlags(cmd.Flags(), &md)
	return cmd
}
