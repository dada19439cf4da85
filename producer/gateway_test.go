package producer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/variable-kang/0.9to0.10MirrorMaker/protocol"
	"github.com/variable-kang/0.9to0.10MirrorMaker/requests"
	"github.com/variable-kang/0.9to0.10MirrorMaker/types"
)

// fakeSender scripts destination behavior per record offset: block on a gate,
// fail with a chosen error, or acknowledge.
type fakeSender struct {
	mu         sync.Mutex
	acked      []types.MirrorRecord
	attempts   map[int64]int
	outcome    func(rec types.MirrorRecord, attempt int) error
	gates      map[int64]chan struct{}
	nextOffset int64
	closeCalls int
}

func newFakeSender() *fakeSender {
	return &fakeSender{
		attempts:   make(map[int64]int),
		gates:      make(map[int64]chan struct{}),
		nextOffset: 500,
	}
}

func (f *fakeSender) gate(offset int64) chan struct{} {
	ch := make(chan struct{})
	f.mu.Lock()
	f.gates[offset] = ch
	f.mu.Unlock()
	return ch
}

func (f *fakeSender) setOutcome(fn func(rec types.MirrorRecord, attempt int) error) {
	f.mu.Lock()
	f.outcome = fn
	f.mu.Unlock()
}

func (f *fakeSender) Produce(ctx context.Context, tp types.TopicPartition, records []types.MirrorRecord) (requests.PartitionAck, error) {
	rec := records[0]
	f.mu.Lock()
	f.attempts[rec.Offset]++
	attempt := f.attempts[rec.Offset]
	gate := f.gates[rec.Offset]
	outcome := f.outcome
	f.mu.Unlock()

	none := requests.PartitionAck{TopicPartition: tp, BaseOffset: -1, LogAppendTime: -1}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return none, fmt.Errorf("produce interrupted: %w", ctx.Err())
		}
	}
	if outcome != nil {
		if err := outcome(rec, attempt); err != nil {
			return none, err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked = append(f.acked, rec)
	base := f.nextOffset
	f.nextOffset++
	return requests.PartitionAck{TopicPartition: tp, BaseOffset: base, LogAppendTime: -1}, nil
}

func (f *fakeSender) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCalls++
	return nil
}

func (f *fakeSender) ackedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.acked)
}

func (f *fakeSender) attemptsFor(offset int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts[offset]
}

func (f *fakeSender) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeCalls
}

// outcomes collects completion observations for assertions.
type outcomes struct {
	mu      sync.Mutex
	success []int64
	failed  []int64
	errs    map[int64]error
}

func newOutcomes() *outcomes {
	return &outcomes{errs: make(map[int64]error)}
}

func (o *outcomes) observe(rec types.MirrorRecord, _ requests.PartitionAck, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err == nil {
		o.success = append(o.success, rec.Offset)
	} else {
		o.failed = append(o.failed, rec.Offset)
		o.errs[rec.Offset] = err
	}
}

func (o *outcomes) counts() (succeeded, failed int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.success), len(o.failed)
}

func record(offset int64) types.MirrorRecord {
	return types.MirrorRecord{
		Topic:     "events",
		Partition: 0,
		Offset:    offset,
		Value:     []byte(fmt.Sprintf("payload-%d", offset)),
		Timestamp: time.UnixMilli(1724200000000 + offset),
	}
}

func TestGateway_AsyncDeliversAndFlushes(t *testing.T) {
	sender := newFakeSender()
	obs := newOutcomes()
	g := NewGateway(sender, Config{
		Mode:         types.SendModeAsync,
		OnCompletion: obs.observe,
	})

	for i := int64(1); i <= 10; i++ {
		require.NoError(t, g.Send(record(i)))
	}
	g.Flush()

	succeeded, failed := obs.counts()
	assert.Equal(t, 10, succeeded)
	assert.Equal(t, 0, failed)
	assert.Equal(t, 10, sender.ackedCount())

	require.NoError(t, g.Close(time.Second))
	assert.Equal(t, 1, sender.closeCount())
}

func TestGateway_SyncSurfacesPermanentFailure(t *testing.T) {
	sender := newFakeSender()
	sender.setOutcome(func(rec types.MirrorRecord, _ int) error {
		return fmt.Errorf("produce to %s: %w", rec.TopicPartition(), protocol.Classify(protocol.CodeMessageTooLarge))
	})
	obs := newOutcomes()
	g := NewGateway(sender, Config{
		Mode:         types.SendModeSync,
		SendRetries:  3,
		OnCompletion: obs.observe,
	})
	defer g.Close(0)

	err := g.Send(record(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permanent failure")
	assert.False(t, protocol.RetriableError(err))
	assert.Equal(t, 1, sender.attemptsFor(1), "fatal broker codes must not be retried")

	_, failed := obs.counts()
	assert.Equal(t, 1, failed)
}

func TestGateway_RetriesUntilSuccess(t *testing.T) {
	sender := newFakeSender()
	sender.setOutcome(func(rec types.MirrorRecord, attempt int) error {
		if attempt < 3 {
			return fmt.Errorf("produce to %s: %w", rec.TopicPartition(), protocol.Classify(protocol.CodeRequestTimedOut))
		}
		return nil
	})
	g := NewGateway(sender, Config{
		Mode:         types.SendModeSync,
		SendRetries:  3,
		RetryBackoff: time.Millisecond,
	})
	defer g.Close(0)

	require.NoError(t, g.Send(record(1)))
	assert.Equal(t, 3, sender.attemptsFor(1))
	assert.Equal(t, 1, sender.ackedCount())
}

func TestGateway_RetriesExhausted(t *testing.T) {
	sender := newFakeSender()
	sender.setOutcome(func(rec types.MirrorRecord, _ int) error {
		return fmt.Errorf("produce to %s: %w", rec.TopicPartition(), protocol.Classify(protocol.CodeNotLeaderForPartition))
	})
	g := NewGateway(sender, Config{
		Mode:         types.SendModeSync,
		SendRetries:  2,
		RetryBackoff: time.Millisecond,
	})
	defer g.Close(0)

	err := g.Send(record(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed after 3 attempts")
	assert.Equal(t, 3, sender.attemptsFor(1))
}

func TestGateway_FlushWaitsOnlyForPriorSends(t *testing.T) {
	sender := newFakeSender()
	gate1 := sender.gate(1)
	gate2 := sender.gate(2)
	sender.gate(3) // never released

	g := NewGateway(sender, Config{Mode: types.SendModeAsync})
	require.NoError(t, g.Send(record(1)))
	require.NoError(t, g.Send(record(2)))

	flushed := make(chan struct{})
	go func() {
		g.Flush()
		close(flushed)
	}()

	select {
	case <-flushed:
		t.Fatal("flush returned while earlier sends were still in flight")
	case <-time.After(50 * time.Millisecond):
	}

	// Record 3 lands after the flush began; the flush must not wait for it.
	require.NoError(t, g.Send(record(3)))

	close(gate1)
	close(gate2)

	select {
	case <-flushed:
	case <-time.After(2 * time.Second):
		t.Fatal("flush did not return after its records resolved")
	}
	assert.Equal(t, 2, sender.ackedCount())

	require.NoError(t, g.Close(0))
}

func TestGateway_AbortClosesExactlyOnce(t *testing.T) {
	sender := newFakeSender()
	sender.setOutcome(func(rec types.MirrorRecord, _ int) error {
		return fmt.Errorf("produce to %s: %w", rec.TopicPartition(), protocol.Classify(protocol.CodeMessageTooLarge))
	})
	obs := newOutcomes()
	var aborts atomic.Int32
	g := NewGateway(sender, Config{
		Mode:               types.SendModeAsync,
		AbortOnSendFailure: true,
		OnCompletion:       obs.observe,
		OnAbort:            func() { aborts.Add(1) },
	})

	const n = 5
	for i := int64(1); i <= n; i++ {
		if err := g.Send(record(i)); err != nil {
			// Later sends may meet an already-closing gateway; they still
			// count as never delivered, just not as queue completions.
			assert.ErrorIs(t, err, ErrGatewayClosed)
		}
	}

	require.Eventually(t, func() bool { return sender.closeCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(1), aborts.Load())

	succeeded, failed := obs.counts()
	assert.Equal(t, 0, succeeded)
	assert.GreaterOrEqual(t, failed, 1)

	assert.ErrorIs(t, g.Send(record(99)), ErrGatewayClosed)
	require.NoError(t, g.Close(time.Second))
	assert.Equal(t, 1, sender.closeCount(), "second close must not close the client again")
}

func TestGateway_CloseZeroAbandonsImmediately(t *testing.T) {
	sender := newFakeSender()
	sender.gate(1) // first record stuck in flight
	obs := newOutcomes()
	var aborts atomic.Int32
	g := NewGateway(sender, Config{
		Mode:               types.SendModeAsync,
		AbortOnSendFailure: true,
		OnCompletion:       obs.observe,
		OnAbort:            func() { aborts.Add(1) },
	})

	require.NoError(t, g.Send(record(1)))
	require.NoError(t, g.Send(record(2)))
	require.NoError(t, g.Send(record(3)))

	start := time.Now()
	require.NoError(t, g.Close(0))
	assert.Less(t, time.Since(start), 2*time.Second)

	succeeded, failed := obs.counts()
	assert.Equal(t, 0, succeeded)
	assert.Equal(t, 3, failed)
	obs.mu.Lock()
	for offset, err := range obs.errs {
		assert.ErrorIs(t, err, ErrGatewayClosed, "record %d", offset)
	}
	obs.mu.Unlock()

	assert.Equal(t, int32(0), aborts.Load(), "abandoned sends are not permanent failures")
	assert.ErrorIs(t, g.Send(record(4)), ErrGatewayClosed)
}

func TestGateway_CloseWithTimeoutDrains(t *testing.T) {
	sender := newFakeSender()
	obs := newOutcomes()
	g := NewGateway(sender, Config{Mode: types.SendModeAsync, OnCompletion: obs.observe})

	for i := int64(1); i <= 20; i++ {
		require.NoError(t, g.Send(record(i)))
	}
	require.NoError(t, g.Close(5*time.Second))

	succeeded, failed := obs.counts()
	assert.Equal(t, 20, succeeded)
	assert.Equal(t, 0, failed)
	assert.Equal(t, 20, sender.ackedCount())
}

func TestGateway_CloseIsIdempotent(t *testing.T) {
	sender := newFakeSender()
	g := NewGateway(sender, Config{Mode: types.SendModeAsync})

	require.NoError(t, g.Close(time.Second))
	require.NoError(t, g.Close(time.Second))
	assert.Equal(t, 1, sender.closeCount())
}

func TestGateway_CloseZeroCutsShortTimedClose(t *testing.T) {
	sender := newFakeSender()
	sender.gate(1) // first record stuck in flight until the context dies
	g := NewGateway(sender, Config{Mode: types.SendModeAsync})

	require.NoError(t, g.Send(record(1)))
	require.NoError(t, g.Send(record(2)))

	timedDone := make(chan error, 1)
	go func() { timedDone <- g.Close(time.Minute) }()
	require.Eventually(t, func() bool {
		g.mu.Lock()
		defer g.mu.Unlock()
		return g.closed
	}, 2*time.Second, 10*time.Millisecond, "timed close never started draining")

	start := time.Now()
	require.NoError(t, g.Close(0))
	assert.Less(t, time.Since(start), 5*time.Second, "zero-timeout close must not wait out the timed drain")

	select {
	case err := <-timedDone:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed close did not return after the abandon")
	}
	assert.Equal(t, 1, sender.closeCount())
}
