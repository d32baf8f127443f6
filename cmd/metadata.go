// Handles the "objstore metadata" command

package cmd

import (
	"context"
	"fmt"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var metadataCmd = &cobra.Command{
	Use:   "metadata BUCKET KEY",
	Short: "Show an object's metadata",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		bucketName, key := args[0], args[1]

		info, err := objMgr.Store.Metadata(context.Background(), bucketName, key, rootCmdConfig.user)
		if err != nil {
			return errors.Wrapf(err, "Failed to read metadata for '%s'", key)
		}

		fmt.Printf("Object '%s' in bucket '%s':\n", key, bucketName)
		fmt.Printf("  size: %s\n", humanize.Bytes(uint64(info.Size)))
		fmt.Printf("  last-modified: %s\n", info.LastModified.Format("2006-01-02 15:04:05 MST"))
		keys := make([]string, 0, len(info.Metadata))
		for k := range info.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("  %s: %s\n", k, info.Metadata[k])
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(metadataCmd)
}
