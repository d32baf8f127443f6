// Handles the "objstore upload-large" command

package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/serverlessresearch/objstore/pkg/multipart"
)

var uploadLargeCmdConfig struct {
	partSize string
	metadata string
}

var uploadLargeCmd = &cobra.Command{
	Use:   "upload-large BUCKET KEY PATH",
	Short: "Upload a large file using multipart",
	Long: `Streams a file into the bucket through the multipart upload protocol.
The file is split into parts of --part-size bytes which are uploaded in
parallel and assembled atomically; on any failure the partial upload is
aborted and the target key is left untouched.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		bucketName, key, filePath := args[0], args[1], args[2]

		partSize := int64(multipart.DefaultPartSize)
		if uploadLargeCmdConfig.partSize != "" {
			parsed, err := humanize.ParseBytes(uploadLargeCmdConfig.partSize)
			if err != nil {
				return errors.Wrapf(err, "Invalid part size '%s'", uploadLargeCmdConfig.partSize)
			}
			partSize = int64(parsed)
		}

		metadata, err := parseMetadata(uploadLargeCmdConfig.metadata)
		if err != nil {
			return err
		}

		src, err := os.Open(filePath)
		if err != nil {
			return errors.Wrapf(err, "Failed to open '%s'", filePath)
		}
		defer src.Close()

		err = objMgr.Store.UploadLarge(context.Background(), bucketName, key, src, rootCmdConfig.user, partSize, metadata)
		if err != nil {
			return errors.Wrapf(err, "Failed to upload large file '%s' to bucket '%s'", key, bucketName)
		}
		fmt.Printf("Large file '%s' uploaded to bucket '%s' successfully\n", key, bucketName)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(uploadLargeCmd)
	uploadLargeCmd.Flags().StringVar(&uploadLargeCmdConfig.partSize, "part-size", "", "size of each part (default: 5MiB, e.g. '8MiB' or '8388608')")
	uploadLargeCmd.Flags().StringVar(&uploadLargeCmdConfig.metadata, "metadata", "", "metadata as JSON string")
}
