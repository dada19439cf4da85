// Package source wraps the 0.9 cluster subscription behind a small consumer
// boundary so the mirror pipeline never touches group-membership mechanics
// directly. The kafka-go implementation lives in kafka.go; tests substitute
// in-memory fakes.
package source

import (
	"context"
	"errors"

	"github.com/variable-kang/0.9to0.10MirrorMaker/types"
)

// ErrNoData reports that Receive saw nothing within its poll timeout. It is
// the normal idle outcome, not a failure: callers loop on it, which is what
// keeps periodic offset commits alive on low-volume partitions.
var ErrNoData = errors.New("no data within poll timeout")

// ErrNoGeneration reports a Commit attempted while the source holds no group
// membership, as happens between generations and during teardown. The next
// membership resumes from the last offsets that did commit.
var ErrNoGeneration = errors.New("no active generation")

// ConsumerSource is one worker's private stream of source-cluster records.
//
// Lifecycle: SetListener, Init, any number of Receive/HasData/Commit calls,
// Stop, Cleanup. Init and Receive may touch the network; HasData never does.
type ConsumerSource interface {
	// SetListener registers the rebalance listener. Must be called before
	// Init; later calls are ignored once the group is running.
	SetListener(l RebalanceListener)

	// Init joins the consumer group and starts fetching in the background.
	Init(ctx context.Context) error

	// HasData reports, possibly approximately, whether a Receive call would
	// find a buffered record without blocking.
	HasData() bool

	// Receive returns the next record, blocking up to the configured poll
	// timeout. It fails with ErrNoData when the timeout elapses empty and
	// with the context error when ctx is done.
	Receive(ctx context.Context) (types.MirrorRecord, error)

	// Commit durably records the given last-processed offsets with the
	// source cluster, so a restart resumes after them.
	Commit(ctx context.Context, offsets map[types.TopicPartition]int64) error

	// Stop leaves the consumer group and stops the fetchers. Receive calls
	// made after Stop drain buffered records, then report ErrNoData.
	Stop()

	// Cleanup blocks until the background machinery has fully wound down
	// and releases remaining resources. Stop is implied.
	Cleanup() error
}

// RebalanceListener observes partition ownership changes on a source.
//
// OnPartitionsRevoked runs before the group hands the partitions to another
// member: the listener must finish flushing and committing before returning,
// because the partitions may be reassigned the moment it does.
// OnPartitionsAssigned runs after ownership is granted and before the first
// record from those partitions is delivered.
type RebalanceListener interface {
	OnPartitionsRevoked(ctx context.Context, partitions []types.TopicPartition)
	OnPartitionsAssigned(ctx context.Context, partitions []types.TopicPartition)
}

// NopListener satisfies RebalanceListener with no pipeline action, for
// sources used outside a worker (probes, tests).
type NopListener struct{}

func (NopListener) OnPartitionsRevoked(context.Context, []types.TopicPartition)  {}
func (NopListener) OnPartitionsAssigned(context.Context, []types.TopicPartition) {}
