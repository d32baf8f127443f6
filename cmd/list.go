// Handles the "objstore list" command

package cmd

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var listCmdConfig struct {
	prefix string
}

var listCmd = &cobra.Command{
	Use:   "list BUCKET",
	Short: "List files in a bucket",
	Long: `Lists the keys in a bucket in lexical order, optionally filtered by
prefix. Listing requires read permission on the bucket itself, not on the
individual objects.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bucketName := args[0]

		files, err := objMgr.Store.List(context.Background(), bucketName, rootCmdConfig.user, listCmdConfig.prefix)
		if err != nil {
			return errors.Wrapf(err, "Failed to list bucket '%s'", bucketName)
		}
		if len(files) == 0 {
			fmt.Printf("No objects found in bucket '%s'\n", bucketName)
			return nil
		}
		fmt.Printf("Objects in bucket '%s':\n", bucketName)
		for _, file := range files {
			fmt.Printf("  %s\n", file)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().StringVar(&listCmdConfig.prefix, "prefix", "", "key prefix to filter by")
}
