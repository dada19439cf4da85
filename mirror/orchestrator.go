// Package mirror runs the relay pipeline: one worker per configured stream
// pulling records from the 0.9 cluster, a shared producer gateway pushing
// them to the 0.10 cluster, and an orchestrator owning startup, shutdown,
// and the process-wide pipeline flags.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/variable-kang/0.9to0.10MirrorMaker/metrics"
	"github.com/variable-kang/0.9to0.10MirrorMaker/producer"
	"github.com/variable-kang/0.9to0.10MirrorMaker/requests"
	"github.com/variable-kang/0.9to0.10MirrorMaker/source"
	"github.com/variable-kang/0.9to0.10MirrorMaker/types"
	"github.com/variable-kang/0.9to0.10MirrorMaker/utils/logger"
	"github.com/variable-kang/0.9to0.10MirrorMaker/utils/safego"
)

var (
	// ErrSendFailureAbort reports that the pipeline stopped itself after a
	// permanent send failure with abort_on_send_failure enabled.
	ErrSendFailureAbort = errors.New("pipeline aborted on send failure")

	// ErrWorkerFault reports a worker that stopped without any shutdown
	// having been requested. A silently dead worker would leave an
	// undetectable partial mirror, so the whole pipeline goes down with it.
	ErrWorkerFault = errors.New("mirror worker stopped unexpectedly")
)

// Orchestrator owns the pipeline: it builds the shared gateway, starts one
// worker per source, watches them, and winds everything down exactly once.
type Orchestrator struct {
	cfg     *types.Config
	pctx    *PipelineContext
	gateway *producer.Gateway
	workers []*Worker

	closeTimeout time.Duration
	running      atomic.Bool

	mu    sync.Mutex
	fault error
}

// NewOrchestrator wires the pipeline together. sources carries one consumer
// stream per configured stream count; sender is the destination client the
// gateway sends through.
func NewOrchestrator(cfg *types.Config, sources []source.ConsumerSource, sender producer.Sender, met *metrics.Metrics) (*Orchestrator, error) {
	if len(sources) != cfg.Streams {
		return nil, fmt.Errorf("%d consumer sources for %d streams", len(sources), cfg.Streams)
	}
	handler, err := NewHandler(cfg.MessageHandler, cfg.MessageHandlerArg)
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		cfg:          cfg,
		pctx:         NewPipelineContext(),
		closeTimeout: time.Duration(cfg.Destination.RequestTimeoutMs) * time.Millisecond,
	}
	o.gateway = producer.NewGateway(sender, producer.Config{
		Mode:               cfg.ProducerMode,
		QueueSize:          cfg.Destination.QueueSize,
		SendRetries:        cfg.Destination.SendRetries,
		RetryBackoff:       time.Duration(cfg.Destination.RetryBackoffMs) * time.Millisecond,
		AbortOnSendFailure: cfg.Abort(),
		OnCompletion:       o.onCompletion,
		OnAbort:            o.onAbort,
		Metrics:            met,
	})
	for i, src := range sources {
		o.workers = append(o.workers, NewWorker(WorkerConfig{
			ID:             fmt.Sprintf("worker-%d", i),
			Source:         src,
			Gateway:        o.gateway,
			Handler:        handler,
			Pipeline:       o.pctx,
			CommitInterval: time.Duration(cfg.OffsetCommitIntervalMs) * time.Millisecond,
			Metrics:        met,
		}))
	}
	return o, nil
}

// Pipeline exposes the shared pipeline context, read by callers that report
// final counts.
func (o *Orchestrator) Pipeline() *PipelineContext {
	return o.pctx
}

// Run starts every worker and blocks until the pipeline has wound down. It
// returns nil after an operator-requested shutdown, ErrSendFailureAbort
// after a send-failure abort, and ErrWorkerFault when a worker died on its
// own.
func (o *Orchestrator) Run(ctx context.Context) error {
	logger.Infof("starting %d mirror workers (handler=%s, mode=%s)",
		len(o.workers), o.cfg.MessageHandler, o.cfg.ProducerMode)
	o.running.Store(true)
	for _, w := range o.workers {
		w := w
		safego.Run(func() { w.Run(ctx) })
		safego.Run(func() { o.watch(w) })
	}
	for _, w := range o.workers {
		<-w.Done()
	}
	o.shutdownGateway()

	if err := o.faultErr(); err != nil {
		return err
	}
	if o.pctx.ExitingOnSendFailure() {
		return fmt.Errorf("%w: %d records dropped", ErrSendFailureAbort, o.pctx.Dropped())
	}
	logger.Infof("pipeline drained, %d records dropped", o.pctx.Dropped())
	return nil
}

// Shutdown asks every worker to drain and waits for the pipeline to stop.
// Idempotent: the first caller runs the sequence, later calls return
// immediately.
func (o *Orchestrator) Shutdown() {
	if !o.pctx.BeginShutdown() {
		return
	}
	logger.Infof("shutdown requested, draining %d workers", len(o.workers))
	if !o.running.Load() {
		return
	}
	for _, w := range o.workers {
		<-w.Done()
	}
	o.shutdownGateway()
}

// watch turns an unexpected worker exit into a pipeline-wide stop.
func (o *Orchestrator) watch(w *Worker) {
	<-w.Done()
	if o.pctx.ShuttingDown() || o.pctx.ExitingOnSendFailure() {
		return
	}
	o.recordFault(fmt.Errorf("%w: %s", ErrWorkerFault, w.ID()))
	if o.pctx.BeginShutdown() {
		logger.Errorf("worker %s stopped unexpectedly, stopping the pipeline", w.ID())
	}
}

func (o *Orchestrator) shutdownGateway() {
	o.gateway.Flush()
	if err := o.gateway.Close(o.closeTimeout); err != nil {
		logger.Warnf("closing producer gateway: %v", err)
	}
}

func (o *Orchestrator) onCompletion(rec types.MirrorRecord, ack requests.PartitionAck, err error) {
	if err != nil {
		o.pctx.RecordDrop()
	}
}

func (o *Orchestrator) onAbort() {
	if o.pctx.SignalSendFailure() {
		logger.Errorf("aborting the pipeline on permanent send failure")
	}
}

func (o *Orchestrator) recordFault(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fault == nil {
		o.fault = err
	}
}

func (o *Orchestrator) faultErr() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.fault
}
