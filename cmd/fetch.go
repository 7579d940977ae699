package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/parse-artifact-retriever/internal/service"
)

type fetchOptions struct {
	taskType     string
	jobID        string
	withRaw      bool
	decompress   bool
	inferredPath string
	rawFiles     []string
}

// newFetchCmd retrieves one job's parse artifact and prints the report.
func newFetchCmd() *cobra.Command {
	opts := &fetchOptions{}
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Retrieves the parse artifact for a job id",
		Long: `Resolves --job-id and runs the retrieval chain for --task-type. The
report is printed as JSON; the command fails when no method succeeded.`,
		Args: cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, _ []string, appInstance App) error {
			return runFetch(cmd, appInstance, opts)
		}),
	}
	cmd.Flags().StringVar(&opts.taskType, "task-type", "", "task type, e.g. AmazonReviewStarJob")
	cmd.Flags().StringVar(&opts.jobID, "job-id", "", "external job id or internal task id")
	cmd.Flags().BoolVar(&opts.withRaw, "with-raw", false, "also fetch the raw input files")
	cmd.Flags().BoolVar(&opts.decompress, "decompress", true, "gunzip downloaded artifacts (default from output.decompress)")
	cmd.Flags().StringVar(&opts.inferredPath, "inferred-path", "", "storage key to try before the computed one")
	cmd.Flags().StringSliceVar(&opts.rawFiles, "raw-files", nil, "raw file names to fetch with --with-raw")
	_ = cmd.MarkFlagRequired("task-type")
	_ = cmd.MarkFlagRequired("job-id")
	return cmd
}

func runFetch(cmd *cobra.Command, appInstance App, opts *fetchOptions) error {
	decompress := opts.decompress
	if !cmd.Flags().Changed("decompress") {
		decompress = appInstance.Config().Output.Decompress
	}
	report, err := appInstance.Service().Retrieve(cmd.Context(), service.RetrieveRequest{
		TaskType:     opts.taskType,
		JobID:        opts.jobID,
		WithRaw:      opts.withRaw,
		Decompress:   decompress,
		InferredPath: opts.inferredPath,
		RawFiles:     opts.rawFiles,
	})
	if err != nil {
		return err
	}
	if err := printJSON(cmd.OutOrStdout(), report); err != nil {
		return err
	}
	appInstance.Logger().Info("fetch command finished",
		zap.String("job_id", opts.jobID),
		zap.Bool("success", report.Success),
		zap.String("method", string(report.MethodUsed)),
	)
	return report.Err()
}
