package cmd

import (
	"github.com/spf13/cobra"
)

type resolveOutput struct {
	JobID       string  `json:"job_id"`
	TaskID      string  `json:"task_id"`
	HasMetadata bool    `json:"has_metadata"`
	RawMetadata *string `json:"raw_metadata,omitempty"`
}

func newResolveCmd() *cobra.Command {
	var showMetadata bool
	cmd := &cobra.Command{
		Use:   "resolve <job-id>",
		Short: "Resolves a job id to its internal task id",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, appInstance App) error {
			rec, err := appInstance.Service().ResolveWithMetadata(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := resolveOutput{JobID: args[0], TaskID: rec.TaskID, HasMetadata: rec.HasMetadata()}
			if showMetadata {
				out.RawMetadata = rec.RawMetadata
			}
			return printJSON(cmd.OutOrStdout(), out)
		}),
	}
	cmd.Flags().BoolVar(&showMetadata, "show-metadata", false, "include the raw analysis response")
	return cmd
}
