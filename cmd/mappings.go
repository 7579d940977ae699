package cmd

import (
	"github.com/spf13/cobra"
)

func newMappingsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mappings [job-id]",
		Short: "Prints bookkeeping rows",
		Long:  `Prints every job id to save path mapping, or the one for job-id.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, appInstance App) error {
			svc := appInstance.Service()
			if len(args) == 1 {
				m, err := svc.Mapping(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), m)
			}
			list, err := svc.Mappings(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), list)
		}),
	}
}
