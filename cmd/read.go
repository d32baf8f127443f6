// Handles the "objstore read" command

package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var readCmd = &cobra.Command{
	Use:   "read BUCKET KEY",
	Short: "Read a file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		bucketName, key := args[0], args[1]

		content, err := objMgr.Store.Read(context.Background(), bucketName, key, rootCmdConfig.user)
		if err != nil {
			return errors.Wrap(err, "Error reading file")
		}
		os.Stdout.Write(content)
		if len(content) > 0 && content[len(content)-1] != '\n' {
			fmt.Println()
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(readCmd)
}
