package command

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"github.com/variable-kang/0.9to0.10MirrorMaker/broker"
	"github.com/variable-kang/0.9to0.10MirrorMaker/source"
	"github.com/variable-kang/0.9to0.10MirrorMaker/utils"
	"github.com/variable-kang/0.9to0.10MirrorMaker/utils/logger"
)

// ConnectionStatus is the operator-facing result of a check run.
type ConnectionStatus struct {
	Status  string `json:"connection_status"`
	Message string `json:"message,omitempty"`
}

// checkCmd validates the config and probes both clusters: the source via a
// kafka-go dial, the destination via TCP connect plus the ApiVersions and
// Metadata handshake.
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "validate the config and probe both clusters",
	PreRunE: func(_ *cobra.Command, _ []string) error {
		return loadConfig()
	},
	Run: func(cmd *cobra.Command, _ []string) {
		// the two clusters are probed concurrently; either failure fails the check
		err := utils.ErrExec(
			func() error {
				if err := source.Check(cmd.Context(), &config.Source); err != nil {
					return fmt.Errorf("source cluster check failed: %w", err)
				}
				return nil
			},
			func() error {
				client := broker.NewClient(&config.Destination)
				defer client.Close()
				if err := client.Check(cmd.Context()); err != nil {
					return fmt.Errorf("destination cluster check failed: %w", err)
				}
				return nil
			},
		)

		status := ConnectionStatus{Status: "SUCCEEDED"}
		if err != nil {
			status.Status = "FAILED"
			status.Message = err.Error()
		}
		message, _ := json.Marshal(status)
		logger.Info(string(message))
	},
}
