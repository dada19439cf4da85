// Package command hosts the mirrormaker CLI: a cobra root with run, check
// and spec subcommands sharing the config/encryption flags.
package command

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/variable-kang/0.9to0.10MirrorMaker/constants"
	"github.com/variable-kang/0.9to0.10MirrorMaker/types"
	"github.com/variable-kang/0.9to0.10MirrorMaker/utils"
	"github.com/variable-kang/0.9to0.10MirrorMaker/utils/logger"
)

var (
	configPath    string
	encryptionKey string
	config        *types.Config

	commands = []*cobra.Command{}
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "mirrormaker",
	Short: "relays records from a 0.9 Kafka cluster into a 0.10 cluster",
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		viper.SetDefault(constants.ConfigFolder, os.TempDir())
		if configPath != "not-set" {
			viper.Set(constants.ConfigFolder, filepath.Dir(configPath))
		}
		if encryptionKey != "" {
			viper.Set(constants.EncryptionKey, encryptionKey)
		}

		// logger uses CONFIG_FOLDER
		logger.Init()
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return cmd.Help()
		}
		if ok := utils.IsValidSubcommand(commands, args[0]); !ok {
			return fmt.Errorf("'%s' is an invalid command. Use 'mirrormaker --help' to display usage guide", args[0])
		}
		return nil
	},
}

func init() {
	commands = append(commands, runCmd, checkCmd, specCmd)
	RootCmd.AddCommand(commands...)

	RootCmd.PersistentFlags().StringVar(&configPath, "config", "not-set", "mirror config file")
	RootCmd.PersistentFlags().StringVar(&encryptionKey, "encryption-key", "", "key used to decrypt encrypted config values")
}

// loadConfig reads, decrypts and validates the mirror config; shared PreRunE
// of the run and check subcommands.
func loadConfig() error {
	if configPath == "not-set" {
		return fmt.Errorf("no mirror config provided, pass --config")
	}
	config = &types.Config{}
	if err := utils.UnmarshalFile(configPath, config, true); err != nil {
		return err
	}
	return config.Validate()
}

// Execute runs the CLI with the given base context.
func Execute(ctx context.Context) error {
	return RootCmd.ExecuteContext(ctx)
}
