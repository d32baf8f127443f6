// Root of command-line argument parsing.
// This file was based off the standard cobra template, see
// https://github.com/spf13/cobra
package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/serverlessresearch/objstore/pkg/objmgr"
	"github.com/serverlessresearch/objstore/pkg/objstore"
)

var rootCmdConfig struct {
	cfgFile  string
	user     string
	endpoint string
	region   string
	profile  string
	backend  string
}

var objMgr *objmgr.Manager

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "objstore",
	Short: "Permission-aware object storage",
	Long: `A facade over S3-compatible object storage that adds per-bucket and
per-object access control and multipart uploads for large files.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		mgrArgs := map[string]interface{}{}
		if rootCmdConfig.cfgFile != "" {
			mgrArgs["config-file"] = rootCmdConfig.cfgFile
		}
		if rootCmdConfig.endpoint != "" {
			mgrArgs["service.objstore.s3.endpoint"] = rootCmdConfig.endpoint
		}
		if rootCmdConfig.region != "" {
			mgrArgs["service.objstore.s3.region"] = rootCmdConfig.region
		}
		if rootCmdConfig.profile != "" {
			mgrArgs["service.objstore.s3.profile"] = rootCmdConfig.profile
		}
		if rootCmdConfig.backend != "" {
			mgrArgs["backend"] = rootCmdConfig.backend
		}

		var err error
		objMgr, err = objmgr.NewManager(mgrArgs)
		if err != nil {
			return fmt.Errorf("failed to initialize object storage manager: %v", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if objMgr != nil {
			objMgr.Destroy()
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if objMgr == nil || objMgr.Logger == nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
		} else {
			objMgr.Logger.Error(err)
		}
		os.Exit(1)
	}
}

// parseMetadata decodes the --metadata JSON argument. Values must be
// strings; anything else is rejected rather than stringified.
func parseMetadata(s string) (objstore.Metadata, error) {
	if s == "" {
		return nil, nil
	}
	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, objstore.WrapError(objstore.ErrInvalidArgument, err, "metadata must be valid JSON")
	}
	metadata := make(objstore.Metadata, len(raw))
	for k, v := range raw {
		str, ok := v.(string)
		if !ok {
			return nil, objstore.Errorf(objstore.ErrInvalidArgument,
				"metadata value for %q must be a string", k)
		}
		metadata[k] = str
	}
	if err := metadata.Validate(); err != nil {
		return nil, err
	}
	return metadata, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootCmdConfig.cfgFile, "config", "", "config file (default is configs/objstore.yaml)")
	rootCmd.PersistentFlags().StringVarP(&rootCmdConfig.user, "user", "u", "default", "acting user for permission checks")
	rootCmd.PersistentFlags().StringVar(&rootCmdConfig.endpoint, "endpoint", "", "S3 endpoint URL (overrides environment variable)")
	rootCmd.PersistentFlags().StringVar(&rootCmdConfig.region, "region", "", "storage region")
	rootCmd.PersistentFlags().StringVar(&rootCmdConfig.profile, "profile", "", "AWS profile name for authentication")
	rootCmd.PersistentFlags().StringVar(&rootCmdConfig.backend, "backend", "", "object storage backend (s3 or memory)")
}
