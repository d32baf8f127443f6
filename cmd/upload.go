// Handles the "objstore upload" command

package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var uploadCmdConfig struct {
	fromFile bool
	metadata string
}

var uploadCmd = &cobra.Command{
	Use:   "upload BUCKET KEY CONTENT",
	Short: "Upload a file",
	Long: `Uploads content under the given key. With --file the CONTENT argument
is treated as a path to read instead of a literal. Overwriting an existing
object requires write permission on that object; new keys require write
permission on the bucket.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		bucketName, key := args[0], args[1]

		content := []byte(args[2])
		if uploadCmdConfig.fromFile {
			var err error
			if content, err = os.ReadFile(args[2]); err != nil {
				return errors.Wrapf(err, "Failed to read '%s'", args[2])
			}
		}

		metadata, err := parseMetadata(uploadCmdConfig.metadata)
		if err != nil {
			return err
		}

		if err := objMgr.Store.Upload(context.Background(), bucketName, key, content, rootCmdConfig.user, metadata); err != nil {
			return errors.Wrapf(err, "Failed to upload file '%s' to bucket '%s'", key, bucketName)
		}
		fmt.Printf("File '%s' uploaded to bucket '%s' successfully\n", key, bucketName)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(uploadCmd)
	uploadCmd.Flags().BoolVar(&uploadCmdConfig.fromFile, "file", false, "treat content argument as a file path")
	uploadCmd.Flags().StringVar(&uploadCmdConfig.metadata, "metadata", "", "metadata as JSON string")
}
