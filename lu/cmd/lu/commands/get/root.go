package get

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/listenup/listenup/common/models"
	"github.com/listenup/listenup/lu/cmd/lu/commands"
	"github.com/listenup/listenup/lu/cmd/lu/utils"
)

func init() {
	commands.RootCmd.AddCommand(getCmd)
}

var getCmd = &cobra.Command{
	Use:           "get job_id",
	Short:         "Show the current status of a job and its steps",
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		jobID := models.JobID(args[0])

		apiClient, err := utils.NewAPIClient()
		if err != nil {
			return err
		}

		job, err := apiClient.GetJob(ctx, jobID)
		if err != nil {
			return fmt.Errorf("error getting job %s: %w", jobID, err)
		}

		if commands.Global.JSON {
			return utils.PrintJSON(job)
		}
		utils.PrintJob(job)
		return nil
	},
}
