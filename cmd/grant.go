// Handles the "objstore grant" command

package cmd

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/serverlessresearch/objstore/pkg/objstore"
	"github.com/serverlessresearch/objstore/pkg/perms"
)

var grantCmdConfig struct {
	key string
}

var grantCmd = &cobra.Command{
	Use:   "grant BUCKET GRANTEE ACTION",
	Short: "Grant a user access to a bucket or object",
	Long: `Grants the named user an action (read, write, or delete) on a bucket,
or on a single object when --key is given. Grants are additive; there is no
revoke. Only a user who holds the action themselves may grant it.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		bucketName, grantee := args[0], args[1]
		action := objstore.Action(args[2])
		switch action {
		case objstore.ActionRead, objstore.ActionWrite, objstore.ActionDelete:
		default:
			return objstore.Errorf(objstore.ErrInvalidArgument,
				"action must be one of read, write, delete; got %q", action)
		}

		kind := objstore.KindBucket
		id := bucketName
		target := fmt.Sprintf("bucket '%s'", bucketName)
		if grantCmdConfig.key != "" {
			kind = objstore.KindObject
			id = perms.ObjectID(bucketName, grantCmdConfig.key)
			target = fmt.Sprintf("object '%s'", id)
		}

		if err := objMgr.Store.Grant(kind, id, rootCmdConfig.user, grantee, action); err != nil {
			return errors.Wrapf(err, "Failed to grant %s on %s", action, target)
		}
		fmt.Printf("Granted %s on %s to '%s'\n", action, target, grantee)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(grantCmd)
	grantCmd.Flags().StringVar(&grantCmdConfig.key, "key", "", "grant on a single object key instead of the whole bucket")
}
