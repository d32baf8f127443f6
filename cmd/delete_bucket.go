// Handles the "objstore delete-bucket" command

package cmd

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var deleteBucketCmdConfig struct {
	force bool
}

var deleteBucketCmd = &cobra.Command{
	Use:   "delete-bucket BUCKET",
	Short: "Delete a bucket",
	Long: `Deletes a bucket. A bucket that still holds objects is only deleted
with --force, which removes every contained object first.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bucketName := args[0]

		err := objMgr.Store.DeleteBucket(context.Background(), bucketName, rootCmdConfig.user, deleteBucketCmdConfig.force)
		if err != nil {
			return errors.Wrapf(err, "Failed to delete bucket '%s'", bucketName)
		}
		fmt.Printf("Bucket '%s' deleted successfully\n", bucketName)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(deleteBucketCmd)
	deleteBucketCmd.Flags().BoolVar(&deleteBucketCmdConfig.force, "force", false, "force deletion by removing all objects first")
}
