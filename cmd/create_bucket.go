// Handles the "objstore create-bucket" command

package cmd

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var createBucketCmd = &cobra.Command{
	Use:   "create-bucket BUCKET",
	Short: "Create a bucket",
	Long: `Creates a new bucket owned by the acting user. The owner implicitly
holds read, write, and delete permission on the bucket and everything in it.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bucketName := args[0]

		if err := objMgr.Store.CreateBucket(context.Background(), bucketName, rootCmdConfig.user); err != nil {
			return errors.Wrapf(err, "Failed to create bucket '%s'", bucketName)
		}
		fmt.Printf("Bucket '%s' created successfully\n", bucketName)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(createBucketCmd)
}
