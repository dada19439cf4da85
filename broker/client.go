// Package broker is the destination-cluster client: TCP framing with
// correlation ids, the ApiVersions handshake, a metadata-backed partition
// leader cache, and leader-routed produce requests carrying format-1 message
// sets. This is the half of the pipeline that speaks 0.10.
package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/variable-kang/0.9to0.10MirrorMaker/protocol"
	"github.com/variable-kang/0.9to0.10MirrorMaker/requests"
	"github.com/variable-kang/0.9to0.10MirrorMaker/types"
	"github.com/variable-kang/0.9to0.10MirrorMaker/utils"
	"github.com/variable-kang/0.9to0.10MirrorMaker/utils/logger"
)

// ProduceVersion is the request version the mirror sends after the handshake
// confirms the destination accepts it. Version 2 carries format-1 message sets
// (per-message timestamps), which is the whole point of the up-conversion.
const ProduceVersion int16 = 2

// Client talks to the destination cluster. One attempt per Produce call;
// retries and backoff live with the caller. Leadership moves are handled by
// invalidating the cached leader so the next attempt re-resolves it.
type Client struct {
	cfg       *types.DestinationConfig
	clientID  string
	bootstrap []string

	mu      sync.Mutex
	conns   map[string]*Conn
	leaders map[types.TopicPartition]string
}

func NewClient(cfg *types.DestinationConfig) *Client {
	clientID := utils.Ternary(cfg.ClientID == "", "mirrormaker-producer-"+utils.ULID(), cfg.ClientID).(string)
	return &Client{
		cfg:       cfg,
		clientID:  clientID,
		bootstrap: utils.SplitAndTrim(cfg.BootstrapServers),
		conns:     make(map[string]*Conn),
		leaders:   make(map[types.TopicPartition]string),
	}
}

// Connect dials a bootstrap broker and verifies through the ApiVersions
// handshake that the destination accepts Produce v2. A 0.9 destination fails
// here, before any record is read from the source.
func (c *Client) Connect(ctx context.Context) error {
	var lastErr error
	for _, addr := range c.bootstrap {
		versions, err := c.connFor(addr).Versions(ctx)
		if err != nil {
			lastErr = err
			continue
		}
		if !versions.Supports(protocol.ProduceKey, ProduceVersion) {
			r, _ := versions.Range(protocol.ProduceKey)
			return fmt.Errorf("destination %s advertises Produce v%d-v%d, need v%d; destination must be a 0.10 or newer cluster",
				addr, r.Min, r.Max, ProduceVersion)
		}
		logger.Infof("destination broker %s accepts Produce v%d", addr, ProduceVersion)
		return nil
	}
	return fmt.Errorf("no destination bootstrap broker reachable: %w", lastErr)
}

// Produce sends one message set to the partition leader and returns the
// broker's acknowledgement. With acks=0 the broker never answers, so the ack
// is synthesized with no assigned offset.
func (c *Client) Produce(ctx context.Context, tp types.TopicPartition, records []types.MirrorRecord) (requests.PartitionAck, error) {
	none := requests.PartitionAck{TopicPartition: tp, BaseOffset: -1, LogAppendTime: -1}

	set, err := protocol.EncodeMessageSet(records, protocol.MessageSetMagic(ProduceVersion))
	if err != nil {
		return none, err
	}
	req, err := requests.NewProduceRequest(ProduceVersion, c.cfg.AcksInt16(), c.cfg.RequestTimeoutMs, map[types.TopicPartition][]byte{tp: set})
	if err != nil {
		return none, err
	}
	body, err := req.Encode()
	if err != nil {
		return none, err
	}

	leaderAddr, err := c.leader(ctx, tp)
	if err != nil {
		return none, err
	}
	conn := c.connFor(leaderAddr)

	if !req.ExpectsResponse() {
		if err := conn.Send(ctx, protocol.ProduceKey, ProduceVersion, body); err != nil {
			c.invalidate(tp)
			return none, err
		}
		return none, nil
	}

	payload, err := conn.RoundTrip(ctx, protocol.ProduceKey, ProduceVersion, body)
	if err != nil {
		c.invalidate(tp)
		return none, err
	}
	resp, err := requests.ParseProduceResponse(payload, ProduceVersion)
	if err != nil {
		return none, err
	}
	for _, ack := range resp.Acks() {
		if ack.TopicPartition != tp {
			continue
		}
		if !ack.Err.Ok() {
			if leadershipMoved(ack.Err.Code) {
				c.invalidate(tp)
			}
			return ack, fmt.Errorf("produce to %s: %w", tp, ack.Err)
		}
		return ack, nil
	}
	return none, fmt.Errorf("broker %s acknowledged produce without covering %s: %w", leaderAddr, tp, protocol.ErrMalformedRecord)
}

// Check probes the destination end to end: dial, handshake, metadata fetch.
// Used by the check subcommand before a pipeline is launched.
func (c *Client) Check(ctx context.Context) error {
	if err := c.Connect(ctx); err != nil {
		return err
	}
	resp, err := c.fetchMetadata(ctx, nil)
	if err != nil {
		return err
	}
	logger.Infof("destination cluster reports %d brokers", len(resp.Brokers()))
	return nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	conns := make([]*Conn, 0, len(c.conns))
	for _, conn := range c.conns {
		conns = append(conns, conn)
	}
	c.conns = make(map[string]*Conn)
	c.leaders = make(map[types.TopicPartition]string)
	c.mu.Unlock()

	closers := make([]func() error, len(conns))
	for i, conn := range conns {
		closers[i] = utils.ErrExecFormat("failed to close destination connection: %s", conn.Close)
	}
	return utils.ErrExecSequential(closers...)
}

// leader returns the cached leader address for tp, refreshing cluster
// metadata on a miss.
func (c *Client) leader(ctx context.Context, tp types.TopicPartition) (string, error) {
	c.mu.Lock()
	addr, ok := c.leaders[tp]
	c.mu.Unlock()
	if ok {
		return addr, nil
	}

	resp, err := c.fetchMetadata(ctx, []string{tp.Topic})
	if err != nil {
		return "", fmt.Errorf("refresh metadata for %s: %w", tp.Topic, err)
	}
	broker, err := resp.Leader(tp)
	if err != nil {
		return "", err
	}
	addr = broker.Addr()

	c.mu.Lock()
	for _, tm := range resp.Topics() {
		if !tm.Err.Ok() {
			continue
		}
		for _, pm := range tm.Partitions {
			key := types.TopicPartition{Topic: tm.Topic, Partition: pm.Partition}
			if b, err := resp.Leader(key); err == nil {
				c.leaders[key] = b.Addr()
			}
		}
	}
	c.mu.Unlock()

	logger.Debugf("resolved leader for %s: %s", tp, addr)
	return addr, nil
}

// fetchMetadata round-trips a Metadata v0 request through the first reachable
// broker, preferring already-open connections over bootstrap redials.
func (c *Client) fetchMetadata(ctx context.Context, topics []string) (*requests.MetadataResponse, error) {
	req, err := requests.NewMetadataRequest(topics)
	if err != nil {
		return nil, err
	}
	body, err := req.Encode()
	if err != nil {
		return nil, err
	}

	var lastErr error
	for _, addr := range c.metadataCandidates() {
		payload, err := c.connFor(addr).RoundTrip(ctx, protocol.MetadataKey, 0, body)
		if err != nil {
			lastErr = err
			continue
		}
		return requests.ParseMetadataResponse(payload, 0)
	}
	return nil, fmt.Errorf("metadata request failed on every known broker: %w", lastErr)
}

func (c *Client) metadataCandidates() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	candidates := make([]string, 0, len(c.conns)+len(c.bootstrap))
	seen := make(map[string]bool, len(c.conns)+len(c.bootstrap))
	for addr := range c.conns {
		candidates = append(candidates, addr)
		seen[addr] = true
	}
	for _, addr := range c.bootstrap {
		if !seen[addr] {
			candidates = append(candidates, addr)
		}
	}
	return candidates
}

func (c *Client) connFor(addr string) *Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	if conn, ok := c.conns[addr]; ok {
		return conn
	}
	conn := newConn(addr, c.clientID,
		time.Duration(c.cfg.DialTimeoutMs)*time.Millisecond,
		time.Duration(c.cfg.RequestTimeoutMs)*time.Millisecond+5*time.Second)
	c.conns[addr] = conn
	return conn
}

func (c *Client) invalidate(tp types.TopicPartition) {
	c.mu.Lock()
	delete(c.leaders, tp)
	c.mu.Unlock()
	logger.Warnf("dropped cached leader for %s, next attempt re-resolves", tp)
}

func leadershipMoved(code int16) bool {
	switch code {
	case protocol.CodeNotLeaderForPartition, protocol.CodeLeaderNotAvailable, protocol.CodeUnknownTopicOrPartition:
		return true
	}
	return false
}
