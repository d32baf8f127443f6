// Handles the "objstore list-buckets" command

package cmd

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var listBucketsCmd = &cobra.Command{
	Use:   "list-buckets",
	Short: "List all buckets",
	RunE: func(cmd *cobra.Command, args []string) error {
		buckets, err := objMgr.Store.ListBuckets(context.Background())
		if err != nil {
			return errors.Wrap(err, "Failed to list buckets")
		}
		if len(buckets) == 0 {
			fmt.Println("No buckets found")
			return nil
		}
		fmt.Println("Buckets:")
		for _, bucket := range buckets {
			if bucket.Owner != "" {
				fmt.Printf("  %s (owner: %s)\n", bucket.Name, bucket.Owner)
			} else {
				fmt.Printf("  %s\n", bucket.Name)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listBucketsCmd)
}
