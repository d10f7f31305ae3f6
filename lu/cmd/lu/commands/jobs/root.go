package jobs

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
	jobsCmd.Flags().StringVar(
		&jobsCmdConfig.user,
		"user",
		"",
		"List jobs belonging to this user id")
	jobsCmd.MarkFlagRequired("user")
	commands.RootCmd.AddCommand(jobsCmd)
}

var jobsCmdConfig = struct {
	user string
}{}

var jobsCmd = &cobra.Command{
	Use:           "jobs",
	Short:         "List a user's jobs, most recent first",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		userID := models.UserID(jobsCmdConfig.user)

		apiClient, err := utils.NewAPIClient()
		if err != nil {
			return err
		}

		doc, err := apiClient.ListUserJobs(ctx, userID)
		if err != nil {
			return fmt.Errorf("error listing jobs for user %q: %w", userID, err)
		}

		if commands.Global.JSON {
			return utils.PrintJSON(doc)
		}
		if len(doc.Jobs) == 0 {
			cli.Stdout.Printf("No jobs found for user %q", userID)
			return nil
		}
		for _, job := range doc.Jobs {
			utils.PrintJobLine(job)
		}
		return nil
	},
}
