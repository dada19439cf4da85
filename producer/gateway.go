// Package producer wraps the destination client behind the two send modes the
// pipeline supports. Workers enqueue records; a single sender task drives
// produce attempts with retry; a dedicated completion task resolves outcomes,
// so completion observers never run on a worker goroutine.
package producer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/variable-kang/0.9to0.10MirrorMaker/metrics"
	"github.com/variable-kang/0.9to0.10MirrorMaker/protocol"
	"github.com/variable-kang/0.9to0.10MirrorMaker/requests"
	"github.com/variable-kang/0.9to0.10MirrorMaker/types"
	"github.com/variable-kang/0.9to0.10MirrorMaker/utils/logger"
	"github.com/variable-kang/0.9to0.10MirrorMaker/utils/safego"
)

// ErrGatewayClosed reports a send attempted or abandoned after Close.
var ErrGatewayClosed = errors.New("producer gateway is closed")

// Sender is the single-attempt destination send the gateway retries over.
// Implemented by broker.Client.
type Sender interface {
	Produce(ctx context.Context, tp types.TopicPartition, records []types.MirrorRecord) (requests.PartitionAck, error)
	Close() error
}

// Config fixes the gateway's behavior at construction.
type Config struct {
	Mode               types.SendMode
	QueueSize          int
	SendRetries        int
	RetryBackoff       time.Duration
	AbortOnSendFailure bool

	// OnCompletion observes every terminal outcome, success or failure. It
	// runs on the completion task before the record is counted resolved, so
	// a Flush that returns has seen all its observers run.
	OnCompletion func(record types.MirrorRecord, ack requests.PartitionAck, err error)
	// OnAbort runs once, before the gateway starts closing itself, when a
	// permanent send failure occurs under AbortOnSendFailure.
	OnAbort func()

	Metrics *metrics.Metrics
}

type result struct {
	ack requests.PartitionAck
	err error
}

type sendTask struct {
	record types.MirrorRecord
	future chan result
	seq    uint64
}

type completion struct {
	task sendTask
	ack  requests.PartitionAck
	err  error
}

// Gateway fans records from many workers into one ordered send lane.
// enqueuedSeq/resolvedSeq form the flush watermark: every task below
// resolvedSeq has fully completed, observers included.
type Gateway struct {
	client Sender
	cfg    Config

	mu          sync.Mutex
	cond        *sync.Cond
	queue       []sendTask
	enqueuedSeq uint64
	resolvedSeq uint64
	closed      bool
	abandoned   bool

	ctx    context.Context
	cancel context.CancelFunc

	compQ chan completion
	done  chan struct{}

	abortOnce  sync.Once
	clientOnce sync.Once
}

func NewGateway(client Sender, cfg Config) *Gateway {
	if cfg.Mode == "" {
		cfg.Mode = types.SendModeAsync
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.SendRetries < 0 {
		cfg.SendRetries = 0
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 100 * time.Millisecond
	}

	ctx, cancel := context.WithCancel(context.Background())
	g := &Gateway{
		client: client,
		cfg:    cfg,
		ctx:    ctx,
		cancel: cancel,
		compQ:  make(chan completion, cfg.QueueSize),
		done:   make(chan struct{}),
	}
	g.cond = sync.NewCond(&g.mu)
	safego.Run(g.senderLoop)
	safego.Run(g.completionLoop)
	return g
}

// Send routes one record to the destination. In sync mode it blocks until the
// record is acknowledged or permanently failed and returns the terminal error;
// in async mode it returns once the record is queued, with completion observed
// through OnCompletion.
func (g *Gateway) Send(record types.MirrorRecord) error {
	future, err := g.enqueue(record)
	if err != nil {
		return err
	}
	if g.cfg.Mode == types.SendModeSync {
		res := <-future
		return res.err
	}
	return nil
}

// Flush blocks until every record enqueued before the call has resolved.
// Records enqueued afterwards are not waited for.
func (g *Gateway) Flush() {
	start := time.Now()
	g.mu.Lock()
	target := g.enqueuedSeq
	for g.resolvedSeq < target {
		g.cond.Wait()
	}
	g.mu.Unlock()
	g.cfg.Metrics.ObserveFlush(start)
}

// Close drains in-flight sends for up to timeout, then abandons whatever is
// left and releases the client. Close(0) abandons immediately. Idempotent;
// the client is closed exactly once.
func (g *Gateway) Close(timeout time.Duration) error {
	g.mu.Lock()
	first := !g.closed
	g.closed = true
	// A zero timeout abandons even when an earlier timed Close is already
	// draining: that drain is cut short rather than the abandon waiting it out.
	abandonNow := timeout <= 0 && !g.abandoned
	if abandonNow {
		g.abandoned = true
	}
	if first || abandonNow {
		g.cond.Broadcast()
	}
	target := g.enqueuedSeq
	g.mu.Unlock()

	if abandonNow {
		g.cancel()
	}
	if first {
		if timeout > 0 && !g.awaitResolved(target, timeout) {
			logger.Warnf("gateway close timed out after %s, abandoning unresolved sends", timeout)
		}
		g.cancel()
	}
	<-g.done

	var closeErr error
	g.clientOnce.Do(func() {
		closeErr = g.client.Close()
	})
	return closeErr
}

func (g *Gateway) enqueue(record types.MirrorRecord) (chan result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for !g.closed && len(g.queue) >= g.cfg.QueueSize {
		g.cond.Wait()
	}
	if g.closed {
		return nil, ErrGatewayClosed
	}
	future := make(chan result, 1)
	g.queue = append(g.queue, sendTask{record: record, future: future, seq: g.enqueuedSeq})
	g.enqueuedSeq++
	g.cond.Broadcast()
	return future, nil
}

func (g *Gateway) senderLoop() {
	defer safego.Close(g.compQ)
	for {
		g.mu.Lock()
		for len(g.queue) == 0 && !g.closed {
			g.cond.Wait()
		}
		if len(g.queue) == 0 {
			g.mu.Unlock()
			return
		}
		task := g.queue[0]
		g.queue = g.queue[1:]
		abandoned := g.abandoned
		g.cond.Broadcast()
		g.mu.Unlock()

		if abandoned {
			tp := task.record.TopicPartition()
			g.compQ <- completion{
				task: task,
				ack:  requests.PartitionAck{TopicPartition: tp, BaseOffset: -1, LogAppendTime: -1},
				err:  fmt.Errorf("%w, abandoning record for %s", ErrGatewayClosed, tp),
			}
			continue
		}
		ack, err := g.attempt(task.record)
		g.compQ <- completion{task: task, ack: ack, err: err}
	}
}

func (g *Gateway) completionLoop() {
	defer close(g.done)
	for comp := range g.compQ {
		comp.task.future <- result{ack: comp.ack, err: comp.err}
		g.observe(comp)

		// The watermark moves only after the observers ran, so a returning
		// Flush has seen the accounting for everything it waited on.
		g.mu.Lock()
		g.resolvedSeq = comp.task.seq + 1
		g.cond.Broadcast()
		g.mu.Unlock()
	}
}

func (g *Gateway) observe(comp completion) {
	if comp.err == nil {
		g.cfg.Metrics.IncSent(comp.task.record.Topic)
	} else {
		g.cfg.Metrics.IncDropped()
		logger.Errorf("record for %s dropped: %s", comp.task.record.TopicPartition(), comp.err)
		if g.cfg.AbortOnSendFailure && !errors.Is(comp.err, ErrGatewayClosed) {
			g.abortOnce.Do(func() {
				logger.Error("permanent send failure, stopping the pipeline")
				if g.cfg.OnAbort != nil {
					g.cfg.OnAbort()
				}
				// Closing from the completion task itself would deadlock on
				// this task's own exit latch.
				safego.Run(func() { g.Close(0) })
			})
		}
	}
	if g.cfg.OnCompletion != nil {
		g.cfg.OnCompletion(comp.task.record, comp.ack, comp.err)
	}
}

// attempt drives one record through the retry schedule. Cancellation of the
// gateway context surfaces as ErrGatewayClosed so abandoned sends are told
// apart from broker failures.
func (g *Gateway) attempt(record types.MirrorRecord) (requests.PartitionAck, error) {
	tp := record.TopicPartition()
	none := requests.PartitionAck{TopicPartition: tp, BaseOffset: -1, LogAppendTime: -1}

	var lastAck requests.PartitionAck
	var lastErr error
	for try := 0; try <= g.cfg.SendRetries; try++ {
		if try > 0 {
			g.cfg.Metrics.IncSendRetry()
			select {
			case <-time.After(g.cfg.RetryBackoff):
			case <-g.ctx.Done():
				return none, fmt.Errorf("%w while retrying record for %s", ErrGatewayClosed, tp)
			}
		}
		ack, err := g.client.Produce(g.ctx, tp, []types.MirrorRecord{record})
		if err == nil {
			return ack, nil
		}
		if g.ctx.Err() != nil {
			return ack, fmt.Errorf("%w while sending record for %s: %v", ErrGatewayClosed, tp, err)
		}
		lastAck, lastErr = ack, err
		if !sendRetriable(err) {
			return ack, fmt.Errorf("permanent failure sending record for %s: %w", tp, err)
		}
		logger.Warnf("retriable failure sending record for %s (attempt %d/%d): %s", tp, try+1, g.cfg.SendRetries+1, err)
	}
	return lastAck, fmt.Errorf("record for %s failed after %d attempts: %w", tp, g.cfg.SendRetries+1, lastErr)
}

// sendRetriable decides whether another attempt can help. Broker error codes
// answer through the registry; transport-level faults are retried because the
// broker may simply be restarting.
func sendRetriable(err error) bool {
	if errors.Is(err, ErrGatewayClosed) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var kind protocol.ErrorKind
	if errors.As(err, &kind) {
		return kind.Retriable
	}
	if errors.Is(err, protocol.ErrMalformedRecord) || errors.Is(err, protocol.ErrUnsupportedVersion) {
		return false
	}
	return true
}

// awaitResolved waits until the watermark reaches target or the timeout
// elapses, reporting whether the drain completed.
func (g *Gateway) awaitResolved(target uint64, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	timer := time.AfterFunc(timeout, func() {
		g.mu.Lock()
		g.cond.Broadcast()
		g.mu.Unlock()
	})
	defer timer.Stop()

	g.mu.Lock()
	defer g.mu.Unlock()
	for g.resolvedSeq < target && time.Now().Before(deadline) {
		g.cond.Wait()
	}
	return g.resolvedSeq >= target
}
