package submit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"

	"github.com/listenup/listenup/common/models"
	"github.com/listenup/listenup/lu/cmd/lu/cli"
	"github.com/listenup/listenup/lu/cmd/lu/commands"
	"github.com/listenup/listenup/lu/cmd/lu/utils"
)

func init() {
	submitCmd.Flags().StringVarP(
		&submitCmdConfig.file,
		"file",
		"f",
		"",
		"The pipeline definition file to submit. Files ending in .yaml or .yml are parsed as YAML, everything else as JSON")
	submitCmd.MarkFlagRequired("file")
	submitCmd.Flags().StringVar(
		&submitCmdConfig.user,
		"user",
		"",
		"Submit the job on behalf of this user id, overriding any user_id in the definition")
	commands.RootCmd.AddCommand(submitCmd)
}

var submitCmdConfig = struct {
	file string
	user string
}{}

var submitCmd = &cobra.Command{
	Use:           "submit",
	Short:         "Submit a pipeline definition as a new job",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		path, err := utils.HomeifyPath(submitCmdConfig.file)
		if err != nil {
			return err
		}

		payload, err := ReadPipelineFile(path)
		if err != nil {
			return err
		}
		if submitCmdConfig.user != "" {
			payload.UserID = models.UserID(submitCmdConfig.user)
		}
		err = payload.Validate()
		if err != nil {
			return fmt.Errorf("error validating pipeline definition %q: %w", path, err)
		}

		apiClient, err := utils.NewAPIClient()
		if err != nil {
			return err
		}

		job, err := apiClient.CreateJob(ctx, payload)
		if err != nil {
			return fmt.Errorf("error submitting job: %w", err)
		}

		if commands.Global.JSON {
			return utils.PrintJSON(job)
		}
		utils.PrintJob(job)
		cli.Stdout.Printf("")
		cli.Stdout.Printf("Follow progress with: lu watch %s", job.ID)
		return nil
	},
}

// ReadPipelineFile loads a pipeline definition from disk. YAML definitions are
// converted to JSON before decoding so both formats share the same field names.
func ReadPipelineFile(path string) (*models.NewJobPayload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading pipeline definition %q: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yamlToJSON(data)
		if err != nil {
			return nil, fmt.Errorf("error parsing pipeline definition %q: %w", path, err)
		}
	}
	payload := &models.NewJobPayload{}
	err = json.Unmarshal(data, payload)
	if err != nil {
		return nil, fmt.Errorf("error parsing pipeline definition %q: %w", path, err)
	}
	return payload, nil
}

// yamlToJSON re-encodes a YAML document as JSON. Decoding into a MapSlice
// keeps mapping order all the way down, which matters because a spec's flag
// order is preserved into the rendered command line.
func yamlToJSON(data []byte) ([]byte, error) {
	var doc yaml.MapSlice
	err := yaml.Unmarshal(data, &doc)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	err = writeJSON(&buf, doc)
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeJSON(buf *bytes.Buffer, value interface{}) error {
	switch v := value.(type) {
	case yaml.MapSlice:
		buf.WriteByte('{')
		for i, item := range v {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(fmt.Sprintf("%v", item.Key))
			if err != nil {
				return err
			}
			buf.Write(key)
			buf.WriteByte(':')
			if err := writeJSON(buf, item.Value); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	case []interface{}:
		buf.WriteByte('[')
		for i, item := range v {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeJSON(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		buf.Write(data)
		return nil
	}
}
