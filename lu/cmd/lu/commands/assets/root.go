package assets

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/listenup/listenup/common/models"
	"github.com/listenup/listenup/lu/cmd/lu/cli"
	"github.com/listenup/listenup/lu/cmd/lu/commands"
	"github.com/listenup/listenup/lu/cmd/lu/utils"
	"github.com/listenup/listenup/server/api/rest/documents"
)

func init() {
	assetsCmd.PersistentFlags().StringVar(
		&assetsCmdConfig.user,
		"user",
		"",
		"The user id whose upload area to operate on")
	assetsCmd.MarkPersistentFlagRequired("user")
	assetsCmd.PersistentFlags().StringVar(
		&assetsCmdConfig.folder,
		"folder",
		"",
		"An optional folder within the upload area")

	listCmd.Flags().StringVar(
		&assetsCmdConfig.pattern,
		"pattern",
		"",
		"An optional glob pattern to filter entries by, for example *.wav")

	assetsCmd.AddCommand(uploadCmd)
	assetsCmd.AddCommand(listCmd)
	commands.RootCmd.AddCommand(assetsCmd)
}

var assetsCmdConfig = struct {
	user    string
	folder  string
	pattern string
}{}

var assetsCmd = &cobra.Command{
	Use:   "assets",
	Short: "Upload and list files in a user's upload area",
}

var uploadCmd = &cobra.Command{
	Use:           "upload file...",
	Short:         "Upload one or more files so pipeline steps can read them",
	Args:          cobra.MinimumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		userID := models.UserID(assetsCmdConfig.user)

		apiClient, err := utils.NewAPIClient()
		if err != nil {
			return err
		}

		for _, arg := range args {
			path, err := utils.HomeifyPath(arg)
			if err != nil {
				return err
			}
			file, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("error opening %q: %w", path, err)
			}
			doc, err := apiClient.UploadAsset(ctx, userID, assetsCmdConfig.folder, filepath.Base(path), file)
			file.Close()
			if err != nil {
				return fmt.Errorf("error uploading %q: %w", path, err)
			}
			if commands.Global.JSON {
				if err := utils.PrintJSON(doc); err != nil {
					return err
				}
				continue
			}
			for _, asset := range doc.Assets {
				cli.Stdout.Printf("Uploaded %s (%d bytes) as %s", asset.Name, asset.Size, asset.URI)
			}
		}
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:           "list",
	Short:         "List files in the upload area",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		userID := models.UserID(assetsCmdConfig.user)

		apiClient, err := utils.NewAPIClient()
		if err != nil {
			return err
		}

		doc, err := apiClient.ListAssets(ctx, userID, assetsCmdConfig.folder, assetsCmdConfig.pattern)
		if err != nil {
			return fmt.Errorf("error listing assets for user %q: %w", userID, err)
		}

		if commands.Global.JSON {
			return utils.PrintJSON(doc)
		}
		if len(doc.Assets) == 0 {
			cli.Stdout.Printf("No assets found")
			return nil
		}
		for _, asset := range doc.Assets {
			printAssetLine(asset)
		}
		return nil
	},
}

func printAssetLine(asset *documents.Asset) {
	switch asset.Type {
	case models.AssetTypeFolder:
		cli.Stdout.Printf("%-40s  folder  (%d files)", asset.Name+"/", asset.FileCount)
	default:
		cli.Stdout.Printf("%-40s  %-12s  %d bytes", asset.Name, asset.ContentType, asset.Size)
	}
}
