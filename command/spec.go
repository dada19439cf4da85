package command

import (
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"github.com/variable-kang/0.9to0.10MirrorMaker/types"
	"github.com/variable-kang/0.9to0.10MirrorMaker/utils/logger"
)

// specCmd prints a config skeleton for operators writing their first
// mirror config.
var specCmd = &cobra.Command{
	Use:   "spec",
	Short: "print the JSON config skeleton",
	RunE: func(_ *cobra.Command, _ []string) error {
		abort := true
		skeleton := types.Config{
			Source: types.SourceConfig{
				BootstrapServers: "source-broker-1:9092,source-broker-2:9092",
				Topics:           []string{"topic-to-mirror"},
				ConsumerGroup:    "mirrormaker",
				AutoOffsetReset:  "earliest",
				Protocol: types.ProtocolConfig{
					SecurityProtocol: "PLAINTEXT",
				},
			},
			Destination: types.DestinationConfig{
				BootstrapServers: "destination-broker-1:9092",
				ClientID:         "mirrormaker",
				Acks:             "all",
			},
			Streams:                1,
			OffsetCommitIntervalMs: 60000,
			AbortOnSendFailure:     &abort,
			ProducerMode:           types.SendModeAsync,
			MessageHandler:         "identity",
		}
		data, err := json.MarshalIndent(&skeleton, "", "  ")
		if err != nil {
			return err
		}
		logger.Info(string(data))
		return nil
	},
}
