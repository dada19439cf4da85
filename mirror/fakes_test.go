package mirror

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/variable-kang/0.9to0.10MirrorMaker/requests"
	"github.com/variable-kang/0.9to0.10MirrorMaker/source"
	"github.com/variable-kang/0.9to0.10MirrorMaker/types"
)

// fakeSource feeds workers from an in-memory record list and captures
// commits.
type fakeSource struct {
	mu         sync.Mutex
	listener   source.RebalanceListener
	pending    []types.MirrorRecord
	committed  map[types.TopicPartition]int64
	attempts   int
	commits    int
	commitErr  error
	onCommit   func(offsets map[types.TopicPartition]int64)
	initErr    error
	receiveErr error
	inited     bool
	stopped    bool
	cleaned    bool
}

func newFakeSource(records ...types.MirrorRecord) *fakeSource {
	return &fakeSource{
		pending:   records,
		committed: make(map[types.TopicPartition]int64),
	}
}

func (f *fakeSource) SetListener(l source.RebalanceListener) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listener = l
}

func (f *fakeSource) Init(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.initErr != nil {
		return f.initErr
	}
	f.inited = true
	return nil
}

func (f *fakeSource) HasData() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending) > 0
}

func (f *fakeSource) Receive(ctx context.Context) (types.MirrorRecord, error) {
	f.mu.Lock()
	if len(f.pending) > 0 {
		rec := f.pending[0]
		f.pending = f.pending[1:]
		f.mu.Unlock()
		return rec, nil
	}
	err := f.receiveErr
	f.mu.Unlock()
	if err != nil {
		return types.MirrorRecord{}, err
	}
	select {
	case <-ctx.Done():
		return types.MirrorRecord{}, ctx.Err()
	case <-time.After(5 * time.Millisecond):
		return types.MirrorRecord{}, source.ErrNoData
	}
}

func (f *fakeSource) Commit(ctx context.Context, offsets map[types.TopicPartition]int64) error {
	f.mu.Lock()
	f.attempts++
	err := f.commitErr
	hook := f.onCommit
	f.mu.Unlock()
	if hook != nil {
		hook(offsets)
	}
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commits++
	for tp, off := range offsets {
		f.committed[tp] = off
	}
	return nil
}

func (f *fakeSource) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

func (f *fakeSource) Cleanup() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleaned = true
	return nil
}

func (f *fakeSource) push(records ...types.MirrorRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = append(f.pending, records...)
}

func (f *fakeSource) pendingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

func (f *fakeSource) commitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.commits
}

func (f *fakeSource) commitAttempts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts
}

// committedOffset returns the last committed offset for tp, -1 when none.
func (f *fakeSource) committedOffset(tp types.TopicPartition) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if off, ok := f.committed[tp]; ok {
		return off
	}
	return -1
}

func (f *fakeSource) listenerSet() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listener != nil
}

func (f *fakeSource) wasStopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

func (f *fakeSource) wasCleaned() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cleaned
}

// fakeSender is the destination client double behind the gateway. outcome
// and gates, when set, are configured before the pipeline starts.
type fakeSender struct {
	mu      sync.Mutex
	acked   map[types.TopicPartition][]int64
	next    int64
	outcome func(rec types.MirrorRecord) error
	gates   map[int64]chan struct{}
	closes  int
}

func newFakeSender() *fakeSender {
	return &fakeSender{
		acked: make(map[types.TopicPartition][]int64),
		next:  1000,
	}
}

// gate makes every Produce carrying the given source offset block until the
// returned channel is closed.
func (s *fakeSender) gate(offset int64) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gates == nil {
		s.gates = make(map[int64]chan struct{})
	}
	ch := make(chan struct{})
	s.gates[offset] = ch
	return ch
}

func (s *fakeSender) Produce(ctx context.Context, tp types.TopicPartition, records []types.MirrorRecord) (requests.PartitionAck, error) {
	for _, rec := range records {
		s.mu.Lock()
		gate := s.gates[rec.Offset]
		s.mu.Unlock()
		if gate != nil {
			select {
			case <-gate:
			case <-ctx.Done():
				return requests.PartitionAck{}, fmt.Errorf("produce interrupted: %w", ctx.Err())
			}
		}
		if s.outcome != nil {
			if err := s.outcome(rec); err != nil {
				return requests.PartitionAck{}, err
			}
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	base := s.next
	for _, rec := range records {
		s.acked[tp] = append(s.acked[tp], rec.Offset)
		s.next++
	}
	return requests.PartitionAck{TopicPartition: tp, BaseOffset: base, LogAppendTime: -1}, nil
}

func (s *fakeSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

func (s *fakeSender) ackedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, offs := range s.acked {
		n += len(offs)
	}
	return n
}

func (s *fakeSender) hasAcked(tp types.TopicPartition, offset int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, off := range s.acked[tp] {
		if off == offset {
			return true
		}
	}
	return false
}

func (s *fakeSender) closeCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

func sourceRecords(topic string, partition int32, n int) []types.MirrorRecord {
	records := make([]types.MirrorRecord, n)
	for i := range records {
		records[i] = types.MirrorRecord{
			Topic:     topic,
			Partition: partition,
			Offset:    int64(i),
			Key:       []byte(fmt.Sprintf("key-%d", i)),
			Value:     []byte(fmt.Sprintf("value-%d", i)),
			Timestamp: time.Unix(1700000000+int64(i), 0),
		}
	}
	return records
}
