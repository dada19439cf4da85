package requests

import (
	"fmt"
	"sort"

	"github.com/variable-kang/0.9to0.10MirrorMaker/protocol"
	"github.com/variable-kang/0.9to0.10MirrorMaker/types"
)

// Field positions, request side.
const (
	prReqAcks = iota
	prReqTimeout
	prReqTopicData
)

const (
	prTopicName = iota
	prTopicParts
)

const (
	prPartIndex = iota
	prPartRecordSet
)

// Field positions, response side. log_append_time exists from v2 on,
// throttle_time_ms from v1 on.
const (
	prRespTopics = iota
	prRespThrottle
)

const (
	prAckPartition = iota
	prAckErrorCode
	prAckBaseOffset
	prAckLogAppendTime
)

// ProduceRequest carries pre-encoded message sets for a group of partitions.
// The layout is identical across v0..v2; the version picks the message format
// the broker expects inside record_set.
type ProduceRequest struct {
	s         *protocol.Struct
	version   int16
	acks      int16
	timeoutMs int32
}

// NewProduceRequest builds the request struct, grouping partition sets by
// topic in sorted order so encodes are deterministic.
func NewProduceRequest(version int16, acks int16, timeoutMs int32, sets map[types.TopicPartition][]byte) (*ProduceRequest, error) {
	schema, err := protocol.Requests.Lookup(protocol.ProduceKey, version)
	if err != nil {
		return nil, err
	}
	s := protocol.NewStruct(schema)
	if err := s.SetAt(prReqAcks, acks); err != nil {
		return nil, err
	}
	if err := s.SetAt(prReqTimeout, timeoutMs); err != nil {
		return nil, err
	}

	byTopic := make(map[string][]types.TopicPartition)
	for tp := range sets {
		byTopic[tp.Topic] = append(byTopic[tp.Topic], tp)
	}
	topics := make([]string, 0, len(byTopic))
	for topic := range byTopic {
		topics = append(topics, topic)
	}
	sort.Strings(topics)

	for _, topic := range topics {
		parts := byTopic[topic]
		sort.Slice(parts, func(i, j int) bool { return parts[i].Partition < parts[j].Partition })

		td, err := s.NewElem(prReqTopicData)
		if err != nil {
			return nil, err
		}
		if err := td.SetAt(prTopicName, topic); err != nil {
			return nil, err
		}
		for _, tp := range parts {
			pd, err := td.NewElem(prTopicParts)
			if err != nil {
				return nil, err
			}
			if err := pd.SetAt(prPartIndex, tp.Partition); err != nil {
				return nil, err
			}
			if err := pd.SetAt(prPartRecordSet, sets[tp]); err != nil {
				return nil, err
			}
			if err := td.AppendAt(prTopicParts, pd); err != nil {
				return nil, err
			}
		}
		if err := s.AppendAt(prReqTopicData, td); err != nil {
			return nil, err
		}
	}
	return &ProduceRequest{s: s, version: version, acks: acks, timeoutMs: timeoutMs}, nil
}

func (r *ProduceRequest) ApiKey() protocol.ApiKey { return protocol.ProduceKey }
func (r *ProduceRequest) Version() int16          { return r.version }
func (r *ProduceRequest) Acks() int16             { return r.acks }
func (r *ProduceRequest) TimeoutMs() int32        { return r.timeoutMs }

// ExpectsResponse reports whether the broker will answer at all. acks=0
// produce requests get no response frame.
func (r *ProduceRequest) ExpectsResponse() bool { return r.acks != 0 }

func (r *ProduceRequest) Encode() ([]byte, error) { return protocol.Encode(r.s) }

// PartitionAck is one partition's produce outcome.
type PartitionAck struct {
	TopicPartition types.TopicPartition
	Err            protocol.ErrorKind
	BaseOffset     int64
	LogAppendTime  int64
}

// ProduceResponse reads any of v0..v2 behind uniform accessors: versions
// without throttle report 0, versions without log append time report -1.
type ProduceResponse struct {
	s          *protocol.Struct
	version    int16
	throttleMs int32
	acks       []PartitionAck
}

// NewProduceResponse builds a response struct for the given version. Fields a
// version does not declare are dropped on encode; fields it adds on top of
// the caller's data carry their protocol defaults.
func NewProduceResponse(version int16, throttleMs int32, acks []PartitionAck) (*ProduceResponse, error) {
	schema, err := protocol.Responses.Lookup(protocol.ProduceKey, version)
	if err != nil {
		return nil, err
	}
	s := protocol.NewStruct(schema)

	byTopic := make(map[string][]PartitionAck)
	var topics []string
	for _, ack := range acks {
		if _, seen := byTopic[ack.TopicPartition.Topic]; !seen {
			topics = append(topics, ack.TopicPartition.Topic)
		}
		byTopic[ack.TopicPartition.Topic] = append(byTopic[ack.TopicPartition.Topic], ack)
	}
	sort.Strings(topics)

	for _, topic := range topics {
		te, err := s.NewElem(prRespTopics)
		if err != nil {
			return nil, err
		}
		if err := te.SetAt(0, topic); err != nil {
			return nil, err
		}
		parts := byTopic[topic]
		sort.Slice(parts, func(i, j int) bool {
			return parts[i].TopicPartition.Partition < parts[j].TopicPartition.Partition
		})
		for _, ack := range parts {
			pe, err := te.NewElem(1)
			if err != nil {
				return nil, err
			}
			if err := pe.SetAt(prAckPartition, ack.TopicPartition.Partition); err != nil {
				return nil, err
			}
			if err := pe.SetAt(prAckErrorCode, ack.Err.Code); err != nil {
				return nil, err
			}
			if err := pe.SetAt(prAckBaseOffset, ack.BaseOffset); err != nil {
				return nil, err
			}
			if version >= 2 {
				if err := pe.SetAt(prAckLogAppendTime, ack.LogAppendTime); err != nil {
					return nil, err
				}
			}
			if err := te.AppendAt(1, pe); err != nil {
				return nil, err
			}
		}
		if err := s.AppendAt(prRespTopics, te); err != nil {
			return nil, err
		}
	}
	if version >= 1 {
		if err := s.SetAt(prRespThrottle, throttleMs); err != nil {
			return nil, err
		}
	}
	return &ProduceResponse{s: s, version: version, throttleMs: throttleMs, acks: acks}, nil
}

func ReadProduceResponse(s *protocol.Struct, version int16) (*ProduceResponse, error) {
	resp := &ProduceResponse{s: s, version: version}

	topics, err := s.StructsAt(prRespTopics)
	if err != nil {
		return nil, err
	}
	for _, te := range topics {
		topic, err := te.StringAt(0)
		if err != nil {
			return nil, err
		}
		parts, err := te.StructsAt(1)
		if err != nil {
			return nil, err
		}
		for _, pe := range parts {
			partition, err := pe.Int32At(prAckPartition)
			if err != nil {
				return nil, err
			}
			code, err := pe.Int16At(prAckErrorCode)
			if err != nil {
				return nil, err
			}
			baseOffset, err := pe.Int64At(prAckBaseOffset)
			if err != nil {
				return nil, err
			}
			logAppendTime := int64(-1)
			if version >= 2 {
				if logAppendTime, err = pe.Int64At(prAckLogAppendTime); err != nil {
					return nil, err
				}
			}
			resp.acks = append(resp.acks, PartitionAck{
				TopicPartition: types.TopicPartition{Topic: topic, Partition: partition},
				Err:            protocol.Classify(code),
				BaseOffset:     baseOffset,
				LogAppendTime:  logAppendTime,
			})
		}
	}
	if version >= 1 {
		if resp.throttleMs, err = s.Int32At(prRespThrottle); err != nil {
			return nil, err
		}
	}
	return resp, nil
}

func ParseProduceResponse(data []byte, version int16) (*ProduceResponse, error) {
	s, err := protocol.Responses.Decode(data, protocol.ProduceKey, version)
	if err != nil {
		return nil, err
	}
	return ReadProduceResponse(s, version)
}

func (r *ProduceResponse) ApiKey() protocol.ApiKey { return protocol.ProduceKey }
func (r *ProduceResponse) Version() int16          { return r.version }
func (r *ProduceResponse) ThrottleMs() int32       { return r.throttleMs }
func (r *ProduceResponse) Acks() []PartitionAck    { return r.acks }
func (r *ProduceResponse) Encode() ([]byte, error) { return protocol.Encode(r.s) }

// Err returns the first failed partition's error, nil when every partition
// landed.
func (r *ProduceResponse) Err() error {
	for _, ack := range r.acks {
		if !ack.Err.Ok() {
			return fmt.Errorf("partition %s: %w", ack.TopicPartition, ack.Err)
		}
	}
	return nil
}
