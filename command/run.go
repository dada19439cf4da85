package command

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/variable-kang/0.9to0.10MirrorMaker/broker"
	"github.com/variable-kang/0.9to0.10MirrorMaker/metrics"
	"github.com/variable-kang/0.9to0.10MirrorMaker/mirror"
	"github.com/variable-kang/0.9to0.10MirrorMaker/source"
	"github.com/variable-kang/0.9to0.10MirrorMaker/utils"
	"github.com/variable-kang/0.9to0.10MirrorMaker/utils/logger"
	"github.com/variable-kang/0.9to0.10MirrorMaker/utils/safego"
)

// runCmd starts the mirror pipeline and blocks until it has wound down.
// Returns nil after a drained shutdown; an abort or worker fault surfaces as
// an error, which is what turns into the non-zero exit code.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "run the mirror pipeline",
	PreRunE: func(_ *cobra.Command, _ []string) error {
		return loadConfig()
	},
	RunE: func(cmd *cobra.Command, _ []string) error {
		met := metrics.Init()
		if config.MetricsPort > 0 {
			safego.Run(func() {
				if err := met.StartServer(config.MetricsPort); err != nil {
					logger.Errorf("metrics listener: %v", err)
				}
			})
		}

		// a destination broker mid-restart at launch gets the same retry
		// budget a record send would
		client := broker.NewClient(&config.Destination)
		err := utils.RetryExec(func() error {
			return client.Connect(cmd.Context())
		}, config.Destination.SendRetries, time.Duration(config.Destination.RetryBackoffMs)*time.Millisecond)
		if err != nil {
			return fmt.Errorf("destination cluster unreachable: %w", err)
		}

		sources := make([]source.ConsumerSource, config.Streams)
		for i := range sources {
			sources[i] = source.NewKafkaSource(&config.Source, fmt.Sprintf("%s-%d", config.Source.ConsumerGroup, i))
		}
		orch, err := mirror.NewOrchestrator(config, sources, client, met)
		if err != nil {
			return err
		}

		sigCh := make(chan os.Signal, 2)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)
		safego.Run(func() {
			sig := <-sigCh
			logger.Infof("received %s, draining the pipeline", sig)
			safego.Run(orch.Shutdown)
			<-sigCh
			logger.Fatal("received a second signal, exiting immediately")
		})

		return orch.Run(cmd.Context())
	},
}
