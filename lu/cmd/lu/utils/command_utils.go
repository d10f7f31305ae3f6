package utils

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/listenup/listenup/common/logger"
	"github.com/listenup/listenup/lu/cmd/lu/cli"
	"github.com/listenup/listenup/lu/cmd/lu/commands"
	"github.com/listenup/listenup/server/api/rest/client"
	"github.com/listenup/listenup/server/api/rest/documents"
)

// NewAPIClient makes a REST client for the endpoint selected by flags, config
// file or environment. With --debug the client logs each request it makes.
func NewAPIClient() (*client.APIClient, error) {
	logFactory := logger.NoOpLogFactory
	if commands.Global.Debug {
		registry, err := logger.NewLogRegistry("")
		if err != nil {
			return nil, fmt.Errorf("error creating log registry: %w", err)
		}
		logFactory = logger.MakeLogrusLogFactoryStdOutPlain(registry)
	}
	return client.NewAPIClient([]string{commands.Global.APIEndpoint()}, logFactory)
}

func HomeifyPath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") || strings.HasPrefix(path, "$HOME") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("error locating user home directory: %w", err)
		}
		target := ""
		if path[:2] == "~/" {
			target = "~/"
		}
		if path[:5] == "$HOME" {
			target = "$HOME"
		}
		return filepath.Join(home, path[len(target):]), nil
	}
	return path, nil
}

// PrintJSON writes the document to stdout as indented JSON for scripting.
func PrintJSON(doc interface{}) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("error encoding document: %w", err)
	}
	fmt.Fprintln(os.Stdout, string(data))
	return nil
}

// PrintJob writes a human readable snapshot of a job and its steps to stdout.
func PrintJob(job *documents.Job) {
	cli.Stdout.Printf("Job:     %s", job.ID)
	cli.Stdout.Printf("Status:  %s", job.Status)
	if job.UserID.Valid() {
		cli.Stdout.Printf("User:    %s", job.UserID)
	}
	cli.Stdout.Printf("Created: %s", job.CreatedAt.Format(time.RFC3339))
	if len(job.Steps) == 0 {
		return
	}
	cli.Stdout.Printf("Steps:")
	for _, step := range job.Steps {
		cli.Stdout.Printf("  [%d] %-24s %-12s %s", step.Order, step.Name, step.Service, step.Status)
		if step.ErrorMessage != "" {
			cli.Stdout.Printf("      %s", step.ErrorMessage)
		}
	}
}

// PrintJobLine writes a one-line summary of a job, for listings.
func PrintJobLine(job *documents.Job) {
	cli.Stdout.Printf("%s  %-10s  %s  (%d steps)",
		job.ID, job.Status, job.CreatedAt.Format(time.RFC3339), len(job.Steps))
}
