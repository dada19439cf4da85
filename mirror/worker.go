package mirror

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/variable-kang/0.9to0.10MirrorMaker/metrics"
	"github.com/variable-kang/0.9to0.10MirrorMaker/producer"
	"github.com/variable-kang/0.9to0.10MirrorMaker/source"
	"github.com/variable-kang/0.9to0.10MirrorMaker/types"
	"github.com/variable-kang/0.9to0.10MirrorMaker/utils/logger"
)

// WorkerConfig wires one worker to its collaborators.
type WorkerConfig struct {
	ID             string
	Source         source.ConsumerSource
	Gateway        *producer.Gateway
	Handler        MessageHandler
	Pipeline       *PipelineContext
	CommitInterval time.Duration
	Metrics        *metrics.Metrics
}

// Worker drives one source stream through the handler into the gateway.
//
// Lifecycle: Initializing, then Polling until a stop flag is observed, then
// Draining (flush, best-effort final commit, release the source), then
// Stopped. There is no way back from Draining to Polling. The worker is also
// its source's rebalance listener, so partitions never change hands with
// unflushed sends.
type Worker struct {
	id             string
	src            source.ConsumerSource
	gateway        *producer.Gateway
	handler        MessageHandler
	pctx           *PipelineContext
	met            *metrics.Metrics
	commitInterval time.Duration

	state atomic.Int32

	mu         sync.Mutex
	offsets    map[types.TopicPartition]int64
	lastCommit time.Time

	done chan struct{}
}

func NewWorker(cfg WorkerConfig) *Worker {
	return &Worker{
		id:             cfg.ID,
		src:            cfg.Source,
		gateway:        cfg.Gateway,
		handler:        cfg.Handler,
		pctx:           cfg.Pipeline,
		met:            cfg.Metrics,
		commitInterval: cfg.CommitInterval,
		offsets:        make(map[types.TopicPartition]int64),
		done:           make(chan struct{}),
	}
}

func (w *Worker) ID() string {
	return w.id
}

func (w *Worker) State() types.PipelineState {
	return types.PipelineState(w.state.Load())
}

// Done closes when the worker has reached Stopped.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Run blocks until the worker has stopped. A source init failure stops this
// worker only; whether that takes the pipeline down is the orchestrator's
// call.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)
	defer w.setState(types.StateStopped)

	w.setState(types.StateInitializing)
	w.src.SetListener(w)
	if err := w.src.Init(ctx); err != nil {
		logger.Errorf("worker %s: source init: %v", w.id, err)
		return
	}
	w.mu.Lock()
	w.lastCommit = time.Now()
	w.mu.Unlock()

	w.setState(types.StatePolling)
	for w.poll(ctx) {
	}
	w.drain(ctx)
}

// poll runs one Polling iteration and reports whether to keep polling.
func (w *Worker) poll(ctx context.Context) bool {
	if w.pctx.ShuttingDown() || w.pctx.ExitingOnSendFailure() {
		return false
	}
	rec, err := w.src.Receive(ctx)
	switch {
	case err == nil:
		w.met.IncConsumed(rec.Topic)
		w.forward(rec)
	case errors.Is(err, source.ErrNoData):
		// Idle pass. Falls through to the commit check, which is what keeps
		// low-volume partitions committing on schedule.
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		return false
	default:
		// A hard receive error without a stop flag set reads as a dead
		// stream; stopping here surfaces it to the orchestrator.
		logger.Errorf("worker %s: receive: %v", w.id, err)
		return false
	}
	w.maybeCommit(ctx)
	return true
}

func (w *Worker) forward(rec types.MirrorRecord) {
	for _, out := range w.handler.Handle(rec) {
		if err := w.gateway.Send(out); err != nil {
			logger.Errorf("worker %s: send to %s: %v", w.id, out.TopicPartition(), err)
		}
	}
	// The source offset advances even when the handler filtered the record
	// out: it was processed.
	w.noteOffset(rec)
}

func (w *Worker) noteOffset(rec types.MirrorRecord) {
	w.mu.Lock()
	defer w.mu.Unlock()
	tp := rec.TopicPartition()
	if cur, tracked := w.offsets[tp]; !tracked || rec.Offset > cur {
		w.offsets[tp] = rec.Offset
	}
}

func (w *Worker) maybeCommit(ctx context.Context) {
	w.mu.Lock()
	due := time.Since(w.lastCommit) >= w.commitInterval
	w.mu.Unlock()
	if !due {
		return
	}
	w.flushAndCommit(ctx, nil)
	w.mu.Lock()
	w.lastCommit = time.Now()
	w.mu.Unlock()
}

// flushAndCommit resolves every outstanding send, then commits the tracked
// offsets (all of them when only is nil). The order is the one invariant
// that prevents silent loss: an offset is committed only after its record's
// send has been acknowledged. The post-flush recheck of the failure flag is
// what makes that hold when the flush itself surfaced the failure.
func (w *Worker) flushAndCommit(ctx context.Context, only []types.TopicPartition) {
	w.gateway.Flush()
	if w.pctx.ExitingOnSendFailure() {
		return
	}
	offsets := w.snapshotOffsets(only)
	if len(offsets) == 0 {
		return
	}
	if err := w.src.Commit(ctx, offsets); err != nil {
		if isCancellation(err) {
			logger.Debugf("worker %s: commit skipped, source winding down: %v", w.id, err)
		} else {
			w.met.IncCommitFailure()
			logger.Warnf("worker %s: commit failed, deferring to next interval: %v", w.id, err)
		}
		return
	}
	w.met.IncCommit()
	logger.Debugf("worker %s committed %d partitions", w.id, len(offsets))
}

func (w *Worker) snapshotOffsets(only []types.TopicPartition) map[types.TopicPartition]int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	offsets := make(map[types.TopicPartition]int64, len(w.offsets))
	if only == nil {
		for tp, off := range w.offsets {
			offsets[tp] = off
		}
		return offsets
	}
	for _, tp := range only {
		if off, tracked := w.offsets[tp]; tracked {
			offsets[tp] = off
		}
	}
	return offsets
}

func (w *Worker) drain(ctx context.Context) {
	w.setState(types.StateDraining)
	logger.Infof("worker %s draining", w.id)
	w.flushAndCommit(ctx, nil)
	w.src.Stop()
	if err := w.src.Cleanup(); err != nil {
		logger.Warnf("worker %s: source cleanup: %v", w.id, err)
	}
}

// OnPartitionsRevoked flushes and commits the named partitions before they
// change hands. Runs on the source's rebalance goroutine, never the worker
// loop, and must return only once the commit is durable.
func (w *Worker) OnPartitionsRevoked(ctx context.Context, partitions []types.TopicPartition) {
	if len(partitions) == 0 {
		return
	}
	logger.Infof("worker %s: partitions revoked: %v", w.id, partitions)
	w.flushAndCommit(ctx, partitions)
	w.forget(partitions)
}

func (w *Worker) OnPartitionsAssigned(ctx context.Context, partitions []types.TopicPartition) {
	logger.Debugf("worker %s: partitions assigned: %v", w.id, partitions)
}

// forget drops tracking for partitions this worker no longer owns, so a
// later commit cannot move their offsets from outside the group membership.
func (w *Worker) forget(partitions []types.TopicPartition) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, tp := range partitions {
		delete(w.offsets, tp)
	}
}

func (w *Worker) setState(s types.PipelineState) {
	w.state.Store(int32(s))
	w.met.SetWorkerState(w.id, s)
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, source.ErrNoGeneration)
}
