// Handles the "objstore delete" command

package cmd

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:   "delete BUCKET KEY",
	Short: "Delete a file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		bucketName, key := args[0], args[1]

		if err := objMgr.Store.Delete(context.Background(), bucketName, key, rootCmdConfig.user); err != nil {
			return errors.Wrapf(err, "Failed to delete file '%s' from bucket '%s'", key, bucketName)
		}
		fmt.Printf("File '%s' deleted from bucket '%s' successfully\n", key, bucketName)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}
