package retry

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/listenup/listenup/common/models"
	"github.com/listenup/listenup/lu/cmd/lu/cli"
	"github.com/listenup/listenup/lu/cmd/lu/commands"
	"github.com/listenup/listenup/lu/cmd/lu/utils"
)

func init() {
	commands.RootCmd.AddCommand(retryCmd)
}

var retryCmd = &cobra.Command{
	Use:           "retry job_id",
	Short:         "Resume a failed job from its first failed step",
	SilenceUsage:  true,
	SilenceErrors: true,
	Args:          cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		jobID := models.JobID(args[0])

		apiClient, err := utils.NewAPIClient()
		if err != nil {
			return err
		}

		receipt, err := apiClient.RetryJob(ctx, jobID)
		if err != nil {
			return fmt.Errorf("error retrying job %s: %w", jobID, err)
		}

		if commands.Global.JSON {
			return utils.PrintJSON(receipt)
		}
		cli.Stdout.Printf("Retrying job %s from step %q (step %d)", receipt.JobID, receipt.ResumeStep, receipt.StepIndex)
		cli.Stdout.Printf("Follow progress with: lu watch %s", receipt.JobID)
		return nil
	},
}
