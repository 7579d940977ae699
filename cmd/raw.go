package cmd

import (
	"errors"

	"github.com/spf13/cobra"
)

func newRawCmd() *cobra.Command {
	var (
		taskType string
		jobID    string
		files    []string
	)
	cmd := &cobra.Command{
		Use:   "raw",
		Short: "Fetches a job's raw input files",
		Long: `Resolves --job-id and copies its raw inputs from the raw storage account
into the task directory, converted to the configured raw.format.`,
		Args: cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, _ []string, appInstance App) error {
			out, err := appInstance.Service().FetchRaw(cmd.Context(), taskType, jobID, files)
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), out); err != nil {
				return err
			}
			if !out.Success {
				return errors.New(out.Err)
			}
			return nil
		}),
	}
	cmd.Flags().StringVar(&taskType, "task-type", "", "task type")
	cmd.Flags().StringVar(&jobID, "job-id", "", "external job id or internal task id")
	cmd.Flags().StringSliceVar(&files, "files", nil, "raw file names (default from raw.task_files)")
	_ = cmd.MarkFlagRequired("task-type")
	_ = cmd.MarkFlagRequired("job-id")
	return cmd
}
