package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/r3labs/sse/v2"
	"github.com/spf13/cobra"

	"github.com/listenup/listenup/common/models"
	"github.com/listenup/listenup/lu/cmd/lu/cli"
	"github.com/listenup/listenup/lu/cmd/lu/commands"
	"github.com/listenup/listenup/lu/cmd/lu/utils"
)

func init() {
	commands.RootCmd.AddCommand(watchCmd)
}

var watchCmd = &cobra.Command{
	Use:           "watch job_id",
	Short:         "Stream a job's events until it finishes",
	SilenceUsage:  true,
	SilenceErrors: true,
	Args:          cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jobID := models.JobID(args[0])

		apiClient, err := utils.NewAPIClient()
		if err != nil {
			return err
		}

		// The handler cancels the context once the final status arrives, which
		// unblocks the subscription.
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		var finalStatus models.Status
		err = apiClient.WatchJobEvents(ctx, jobID, func(event *sse.Event) {
			if len(event.Data) == 0 {
				return
			}
			jobEvent := &models.JobEvent{}
			if err := json.Unmarshal(event.Data, jobEvent); err != nil {
				cli.Stderr.Printf("Ignoring undecodable event: %v", err)
				return
			}
			if commands.Global.JSON {
				fmt.Fprintln(os.Stdout, string(event.Data))
			} else {
				printJobEvent(jobEvent)
			}
			if jobEvent.Type == models.JobEventTypeFinalStatus {
				finalStatus = jobEvent.Status
				cancel()
			}
		})
		if err != nil && ctx.Err() == nil {
			return fmt.Errorf("error watching job %s: %w", jobID, err)
		}

		if finalStatus == models.StatusFailed {
			os.Exit(1)
		}
		return nil
	},
}

func printJobEvent(event *models.JobEvent) {
	stamp := event.Timestamp
	if parsed, err := time.Parse(time.RFC3339, event.Timestamp); err == nil {
		stamp = parsed.Local().Format("15:04:05")
	}
	switch {
	case event.StepName != "":
		cli.Stdout.Printf("[%s] %-13s %-24s %s", stamp, event.Type, event.StepName, event.Status)
	default:
		cli.Stdout.Printf("[%s] %-13s %s", stamp, event.Type, event.Status)
	}
	if message, ok := event.Payload["error_message"].(string); ok && message != "" {
		cli.Stdout.Printf("      %s", message)
	}
}
