package types

// PipelineState is the lifecycle of one mirror worker. Owned exclusively by
// the worker; the orchestrator only reads it.
type PipelineState int32

const (
	StateInitializing PipelineState = iota
	StatePolling
	StateDraining
	StateStopped
)

func (s PipelineState) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StatePolling:
		return "polling"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// SendMode selects how the producer gateway surfaces completions.
type SendMode string

const (
	SendModeSync  SendMode = "sync"
	SendModeAsync SendMode = "async"
)
