package source

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/segmentio/kafka-go/sasl/scram"
	"golang.org/x/sync/errgroup"

	"github.com/variable-kang/0.9to0.10MirrorMaker/constants"
	"github.com/variable-kang/0.9to0.10MirrorMaker/types"
	"github.com/variable-kang/0.9to0.10MirrorMaker/utils"
	"github.com/variable-kang/0.9to0.10MirrorMaker/utils/logger"
	"github.com/variable-kang/0.9to0.10MirrorMaker/utils/safego"
)

// KafkaSource subscribes to the 0.9 cluster through a consumer group. One
// instance backs one mirror worker, so N workers form an N-member group and
// the brokers spread partitions across them.
//
// Group membership uses explicit generations: when a generation begins, one
// plain reader per assigned partition fetches into a bounded buffer; when it
// ends (rebalance, shutdown), the fetchers stop and the rebalance listener
// runs its revoke barrier before the group is allowed to move on. Commits go
// through the live generation, which is what ties a committed offset to the
// membership that processed it.
type KafkaSource struct {
	cfg      *types.SourceConfig
	id       string
	listener RebalanceListener

	dialer  *kafka.Dialer
	group   *kafka.ConsumerGroup
	records chan types.MirrorRecord

	pollTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	gen *kafka.Generation

	stopOnce sync.Once
}

type partitionAssignment struct {
	tp     types.TopicPartition
	offset int64
}

func NewKafkaSource(cfg *types.SourceConfig, id string) *KafkaSource {
	return &KafkaSource{
		cfg:         cfg,
		id:          utils.Ternary(id == "", "mirrormaker-source-"+utils.ULID(), id).(string),
		listener:    NopListener{},
		records:     make(chan types.MirrorRecord, utils.Ternary(cfg.QueueSize > 0, cfg.QueueSize, 1024).(int)),
		pollTimeout: time.Duration(utils.Ternary(cfg.PollTimeoutMs > 0, cfg.PollTimeoutMs, int64(constants.DefaultPollTimeoutMs)).(int64)) * time.Millisecond,
		done:        make(chan struct{}),
	}
}

func (s *KafkaSource) SetListener(l RebalanceListener) {
	if l == nil || s.group != nil {
		return
	}
	s.listener = l
}

func (s *KafkaSource) Init(ctx context.Context) error {
	dialer, err := buildDialer(s.cfg.Protocol)
	if err != nil {
		return err
	}
	group, err := kafka.NewConsumerGroup(kafka.ConsumerGroupConfig{
		ID:               s.cfg.ConsumerGroup,
		Brokers:          utils.SplitAndTrim(s.cfg.BootstrapServers),
		Topics:           s.cfg.Topics,
		Dialer:           dialer,
		StartOffset:      startOffset(s.cfg.AutoOffsetReset),
		SessionTimeout:   time.Duration(s.cfg.SessionTimeoutMs) * time.Millisecond,
		RebalanceTimeout: time.Duration(s.cfg.RebalanceTimeoutMs) * time.Millisecond,
	})
	if err != nil {
		return fmt.Errorf("failed to join consumer group %s: %w", s.cfg.ConsumerGroup, err)
	}
	s.dialer = dialer
	s.group = group
	s.ctx, s.cancel = context.WithCancel(ctx)
	safego.Run(s.run)
	logger.Infof("source %s joined group %s for topics %v", s.id, s.cfg.ConsumerGroup, s.cfg.Topics)
	return nil
}

func (s *KafkaSource) HasData() bool {
	return len(s.records) > 0
}

func (s *KafkaSource) Receive(ctx context.Context) (types.MirrorRecord, error) {
	select {
	case rec := <-s.records:
		return rec, nil
	default:
	}
	timer := time.NewTimer(s.pollTimeout)
	defer timer.Stop()
	select {
	case rec := <-s.records:
		return rec, nil
	case <-timer.C:
		return types.MirrorRecord{}, ErrNoData
	case <-ctx.Done():
		return types.MirrorRecord{}, ctx.Err()
	}
}

// Commit stores offset+1 per partition, the position a restarted group
// member resumes from.
func (s *KafkaSource) Commit(ctx context.Context, offsets map[types.TopicPartition]int64) error {
	if len(offsets) == 0 {
		return nil
	}
	gen := s.generation()
	if gen == nil {
		return fmt.Errorf("source %s: %w for %d offsets", s.id, ErrNoGeneration, len(offsets))
	}
	byTopic := make(map[string]map[int]int64)
	for tp, off := range offsets {
		m := byTopic[tp.Topic]
		if m == nil {
			m = make(map[int]int64)
			byTopic[tp.Topic] = m
		}
		m[int(tp.Partition)] = off + 1
	}
	if err := gen.CommitOffsets(byTopic); err != nil {
		return fmt.Errorf("failed to commit offsets for group %s: %w", s.cfg.ConsumerGroup, err)
	}
	return nil
}

func (s *KafkaSource) Stop() {
	s.stopOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		if s.group != nil {
			if err := s.group.Close(); err != nil {
				logger.Warnf("source %s: leaving group: %v", s.id, err)
			}
		}
	})
}

func (s *KafkaSource) Cleanup() error {
	s.Stop()
	if s.group == nil {
		return nil
	}
	<-s.done
	return nil
}

func (s *KafkaSource) run() {
	defer close(s.done)
	for {
		gen, err := s.group.Next(s.ctx)
		if err != nil {
			if errors.Is(err, kafka.ErrGroupClosed) || errors.Is(err, context.Canceled) {
				return
			}
			logger.Warnf("source %s: joining next generation: %v", s.id, err)
			continue
		}
		s.runGeneration(gen)
	}
}

// runGeneration hands the fetch work to the generation and returns; the next
// group.Next call blocks until the handed function finished, so the revoke
// barrier always completes before partitions move to another member.
func (s *KafkaSource) runGeneration(gen *kafka.Generation) {
	assigned := flattenAssignments(gen.Assignments)
	s.setGeneration(gen)
	s.listener.OnPartitionsAssigned(s.ctx, partitionsOf(assigned))
	gen.Start(func(ctx context.Context) {
		s.fetchGeneration(ctx, assigned)
		s.endGeneration(assigned)
	})
}

// endGeneration runs the revoke barrier once the fetchers have stopped.
// Records still buffered here belong to a membership that is ending: a
// worker receiving one after the barrier would re-track a partition it
// already committed and forgot, and a later commit could move that
// partition's offset from outside the group. They are dropped instead; the
// next owner refetches them from the committed offset.
func (s *KafkaSource) endGeneration(assigned []partitionAssignment) {
	if n := s.discardBuffered(); n > 0 {
		logger.Debugf("source %s dropped %d unread records ahead of revoke", s.id, n)
	}
	s.listener.OnPartitionsRevoked(context.Background(), partitionsOf(assigned))
	s.setGeneration(nil)
}

func (s *KafkaSource) discardBuffered() int {
	n := 0
	for {
		select {
		case <-s.records:
			n++
		default:
			return n
		}
	}
}

func (s *KafkaSource) fetchGeneration(ctx context.Context, assigned []partitionAssignment) {
	grp, gctx := errgroup.WithContext(ctx)
	for _, pa := range assigned {
		pa := pa
		grp.Go(func() error {
			return s.fetchPartition(gctx, pa)
		})
	}
	if err := grp.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Warnf("source %s: generation ended on fetch error: %v", s.id, err)
	}
}

func (s *KafkaSource) fetchPartition(ctx context.Context, pa partitionAssignment) error {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   utils.SplitAndTrim(s.cfg.BootstrapServers),
		Topic:     pa.tp.Topic,
		Partition: int(pa.tp.Partition),
		Dialer:    s.dialer,
		MinBytes:  1,
		MaxBytes:  10e6,
		MaxWait:   s.pollTimeout,
	})
	defer reader.Close()
	if err := reader.SetOffset(pa.offset); err != nil {
		return fmt.Errorf("positioning %s at offset %d: %w", pa.tp, pa.offset, err)
	}
	logger.Debugf("source %s fetching %s from offset %d", s.id, pa.tp, pa.offset)
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			return err
		}
		rec := types.MirrorRecord{
			Topic:     msg.Topic,
			Partition: int32(msg.Partition),
			Offset:    msg.Offset,
			Key:       msg.Key,
			Value:     msg.Value,
			Timestamp: msg.Time,
		}
		select {
		case s.records <- rec:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *KafkaSource) setGeneration(gen *kafka.Generation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen = gen
}

func (s *KafkaSource) generation() *kafka.Generation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

func flattenAssignments(assignments map[string][]kafka.PartitionAssignment) []partitionAssignment {
	flat := make([]partitionAssignment, 0, len(assignments))
	for topic, parts := range assignments {
		for _, pa := range parts {
			flat = append(flat, partitionAssignment{
				tp:     types.TopicPartition{Topic: topic, Partition: int32(pa.ID)},
				offset: pa.Offset,
			})
		}
	}
	sort.Slice(flat, func(i, j int) bool {
		if flat[i].tp.Topic != flat[j].tp.Topic {
			return flat[i].tp.Topic < flat[j].tp.Topic
		}
		return flat[i].tp.Partition < flat[j].tp.Partition
	})
	return flat
}

func partitionsOf(flat []partitionAssignment) []types.TopicPartition {
	tps := make([]types.TopicPartition, len(flat))
	for i, pa := range flat {
		tps[i] = pa.tp
	}
	return tps
}

func startOffset(reset string) int64 {
	if reset == "latest" {
		return kafka.LastOffset
	}
	return kafka.FirstOffset
}

// Check dials the source cluster and verifies the configured topics exist.
func Check(ctx context.Context, cfg *types.SourceConfig) error {
	dialer, err := buildDialer(cfg.Protocol)
	if err != nil {
		return err
	}
	client := &kafka.Client{
		Addr: kafka.TCP(utils.SplitAndTrim(cfg.BootstrapServers)...),
		Transport: &kafka.Transport{
			SASL: dialer.SASLMechanism,
			TLS:  dialer.TLS,
		},
	}
	meta, err := client.Metadata(ctx, &kafka.MetadataRequest{Topics: cfg.Topics})
	if err != nil {
		return fmt.Errorf("failed to ping source brokers: %v", err)
	}
	for _, topic := range meta.Topics {
		if topic.Error != nil {
			return fmt.Errorf("source topic %s: %w", topic.Name, topic.Error)
		}
		logger.Infof("source topic %s has %d partitions", topic.Name, len(topic.Partitions))
	}
	return nil
}

func buildDialer(cfg types.ProtocolConfig) (*kafka.Dialer, error) {
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	switch cfg.SecurityProtocol {
	case "", "PLAINTEXT":
	case "SSL":
		dialer.TLS = &tls.Config{MinVersion: tls.VersionTLS12}
	case "SASL_PLAINTEXT", "SASL_SSL":
		if cfg.SecurityProtocol == "SASL_SSL" {
			dialer.TLS = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		mechanism, err := saslMechanism(cfg)
		if err != nil {
			return nil, err
		}
		dialer.SASLMechanism = mechanism
	default:
		return nil, fmt.Errorf("unsupported security protocol: %s", cfg.SecurityProtocol)
	}
	return dialer, nil
}

func saslMechanism(cfg types.ProtocolConfig) (sasl.Mechanism, error) {
	switch cfg.SASLMechanism {
	case "PLAIN":
		return plain.Mechanism{
			Username: cfg.SASLUsername,
			Password: cfg.SASLPassword,
		}, nil
	case "SCRAM-SHA-256":
		mechanism, err := scram.Mechanism(scram.SHA256, cfg.SASLUsername, cfg.SASLPassword)
		if err != nil {
			return nil, fmt.Errorf("failed to create SCRAM-SHA-256 mechanism: %v", err)
		}
		return mechanism, nil
	case "SCRAM-SHA-512":
		mechanism, err := scram.Mechanism(scram.SHA512, cfg.SASLUsername, cfg.SASLPassword)
		if err != nil {
			return nil, fmt.Errorf("failed to create SCRAM-SHA-512 mechanism: %v", err)
		}
		return mechanism, nil
	}
	return nil, fmt.Errorf("unsupported SASL mechanism: %s", cfg.SASLMechanism)
}
