package mirror

import "sync/atomic"

// PipelineContext carries the process-wide pipeline state: the two stop
// flags and the dropped-record counter. One instance is built per run and
// shared by the orchestrator, every worker, and the gateway completion path.
type PipelineContext struct {
	shuttingDown         atomic.Bool
	exitingOnSendFailure atomic.Bool
	dropped              atomic.Int64
}

func NewPipelineContext() *PipelineContext {
	return &PipelineContext{}
}

// BeginShutdown marks the pipeline as shutting down and reports whether this
// call was the first to do so. Exactly one caller runs the shutdown
// sequence.
func (p *PipelineContext) BeginShutdown() bool {
	return p.shuttingDown.CompareAndSwap(false, true)
}

func (p *PipelineContext) ShuttingDown() bool {
	return p.shuttingDown.Load()
}

// SignalSendFailure marks the pipeline as exiting after a permanent send
// failure and reports whether this call was the first. Workers observing the
// flag stop committing and drain.
func (p *PipelineContext) SignalSendFailure() bool {
	return p.exitingOnSendFailure.CompareAndSwap(false, true)
}

func (p *PipelineContext) ExitingOnSendFailure() bool {
	return p.exitingOnSendFailure.Load()
}

// RecordDrop counts one record that permanently failed to reach the
// destination.
func (p *PipelineContext) RecordDrop() {
	p.dropped.Add(1)
}

func (p *PipelineContext) Dropped() int64 {
	return p.dropped.Load()
}
