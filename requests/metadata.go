package requests

import (
	"fmt"

	"github.com/variable-kang/0.9to0.10MirrorMaker/protocol"
	"github.com/variable-kang/0.9to0.10MirrorMaker/types"
)

const (
	mdRespBrokers = iota
	mdRespTopics
)

const (
	mdBrokerNodeID = iota
	mdBrokerHost
	mdBrokerPort
)

const (
	mdTopicErrorCode = iota
	mdTopicName
	mdTopicPartitions
)

const (
	mdPartErrorCode = iota
	mdPartID
	mdPartLeader
	mdPartReplicas
	mdPartISR
)

// MetadataRequest names the topics to describe. An empty list asks for the
// whole cluster.
type MetadataRequest struct {
	s      *protocol.Struct
	topics []string
}

func NewMetadataRequest(topics []string) (*MetadataRequest, error) {
	schema, err := protocol.Requests.Lookup(protocol.MetadataKey, 0)
	if err != nil {
		return nil, err
	}
	s := protocol.NewStruct(schema)
	if topics == nil {
		topics = []string{}
	}
	if err := s.SetAt(0, topics); err != nil {
		return nil, err
	}
	return &MetadataRequest{s: s, topics: topics}, nil
}

func (r *MetadataRequest) ApiKey() protocol.ApiKey { return protocol.MetadataKey }
func (r *MetadataRequest) Version() int16          { return 0 }
func (r *MetadataRequest) Topics() []string        { return r.topics }
func (r *MetadataRequest) Encode() ([]byte, error) { return protocol.Encode(r.s) }

// Broker is one destination cluster node.
type Broker struct {
	NodeID int32
	Host   string
	Port   int32
}

func (b Broker) Addr() string { return fmt.Sprintf("%s:%d", b.Host, b.Port) }

// PartitionMetadata describes one partition's placement.
type PartitionMetadata struct {
	Err       protocol.ErrorKind
	Partition int32
	Leader    int32
	Replicas  []int32
	ISR       []int32
}

// TopicMetadata describes one topic.
type TopicMetadata struct {
	Err        protocol.ErrorKind
	Topic      string
	Partitions []PartitionMetadata
}

// MetadataResponse answers a metadata request: the broker list plus
// per-topic partition placement.
type MetadataResponse struct {
	s       *protocol.Struct
	brokers []Broker
	topics  []TopicMetadata
}

// NewMetadataResponse builds the response struct from typed placement data.
func NewMetadataResponse(brokers []Broker, topics []TopicMetadata) (*MetadataResponse, error) {
	schema, err := protocol.Responses.Lookup(protocol.MetadataKey, 0)
	if err != nil {
		return nil, err
	}
	s := protocol.NewStruct(schema)

	for _, b := range brokers {
		be, err := s.NewElem(mdRespBrokers)
		if err != nil {
			return nil, err
		}
		if err := be.SetAt(mdBrokerNodeID, b.NodeID); err != nil {
			return nil, err
		}
		if err := be.SetAt(mdBrokerHost, b.Host); err != nil {
			return nil, err
		}
		if err := be.SetAt(mdBrokerPort, b.Port); err != nil {
			return nil, err
		}
		if err := s.AppendAt(mdRespBrokers, be); err != nil {
			return nil, err
		}
	}

	for _, tm := range topics {
		te, err := s.NewElem(mdRespTopics)
		if err != nil {
			return nil, err
		}
		if err := te.SetAt(mdTopicErrorCode, tm.Err.Code); err != nil {
			return nil, err
		}
		if err := te.SetAt(mdTopicName, tm.Topic); err != nil {
			return nil, err
		}
		for _, pm := range tm.Partitions {
			pe, err := te.NewElem(mdTopicPartitions)
			if err != nil {
				return nil, err
			}
			if err := pe.SetAt(mdPartErrorCode, pm.Err.Code); err != nil {
				return nil, err
			}
			if err := pe.SetAt(mdPartID, pm.Partition); err != nil {
				return nil, err
			}
			if err := pe.SetAt(mdPartLeader, pm.Leader); err != nil {
				return nil, err
			}
			if err := pe.SetAt(mdPartReplicas, pm.Replicas); err != nil {
				return nil, err
			}
			if err := pe.SetAt(mdPartISR, pm.ISR); err != nil {
				return nil, err
			}
			if err := te.AppendAt(mdTopicPartitions, pe); err != nil {
				return nil, err
			}
		}
		if err := s.AppendAt(mdRespTopics, te); err != nil {
			return nil, err
		}
	}
	return &MetadataResponse{s: s, brokers: brokers, topics: topics}, nil
}

func ReadMetadataResponse(s *protocol.Struct) (*MetadataResponse, error) {
	resp := &MetadataResponse{s: s}

	brokers, err := s.StructsAt(mdRespBrokers)
	if err != nil {
		return nil, err
	}
	for _, be := range brokers {
		nodeID, err := be.Int32At(mdBrokerNodeID)
		if err != nil {
			return nil, err
		}
		host, err := be.StringAt(mdBrokerHost)
		if err != nil {
			return nil, err
		}
		port, err := be.Int32At(mdBrokerPort)
		if err != nil {
			return nil, err
		}
		resp.brokers = append(resp.brokers, Broker{NodeID: nodeID, Host: host, Port: port})
	}

	topics, err := s.StructsAt(mdRespTopics)
	if err != nil {
		return nil, err
	}
	for _, te := range topics {
		topicErr, err := te.Int16At(mdTopicErrorCode)
		if err != nil {
			return nil, err
		}
		topic, err := te.StringAt(mdTopicName)
		if err != nil {
			return nil, err
		}
		tm := TopicMetadata{Err: protocol.Classify(topicErr), Topic: topic}

		parts, err := te.StructsAt(mdTopicPartitions)
		if err != nil {
			return nil, err
		}
		for _, pe := range parts {
			partErr, err := pe.Int16At(mdPartErrorCode)
			if err != nil {
				return nil, err
			}
			id, err := pe.Int32At(mdPartID)
			if err != nil {
				return nil, err
			}
			leader, err := pe.Int32At(mdPartLeader)
			if err != nil {
				return nil, err
			}
			replicas, err := pe.Int32sAt(mdPartReplicas)
			if err != nil {
				return nil, err
			}
			isr, err := pe.Int32sAt(mdPartISR)
			if err != nil {
				return nil, err
			}
			tm.Partitions = append(tm.Partitions, PartitionMetadata{
				Err:       protocol.Classify(partErr),
				Partition: id,
				Leader:    leader,
				Replicas:  replicas,
				ISR:       isr,
			})
		}
		resp.topics = append(resp.topics, tm)
	}
	return resp, nil
}

func ParseMetadataResponse(data []byte, version int16) (*MetadataResponse, error) {
	s, err := protocol.Responses.Decode(data, protocol.MetadataKey, version)
	if err != nil {
		return nil, err
	}
	return ReadMetadataResponse(s)
}

func (r *MetadataResponse) ApiKey() protocol.ApiKey { return protocol.MetadataKey }
func (r *MetadataResponse) Version() int16          { return 0 }
func (r *MetadataResponse) Brokers() []Broker       { return r.brokers }
func (r *MetadataResponse) Topics() []TopicMetadata { return r.topics }
func (r *MetadataResponse) Encode() ([]byte, error) { return protocol.Encode(r.s) }

// Leader resolves the broker currently leading tp. Election gaps and unknown
// partitions come back as the matching wire error so callers can consult
// retriability.
func (r *MetadataResponse) Leader(tp types.TopicPartition) (Broker, error) {
	for _, tm := range r.topics {
		if tm.Topic != tp.Topic {
			continue
		}
		if !tm.Err.Ok() {
			return Broker{}, fmt.Errorf("topic %s: %w", tp.Topic, tm.Err)
		}
		for _, pm := range tm.Partitions {
			if pm.Partition != tp.Partition {
				continue
			}
			// REPLICA_NOT_AVAILABLE still names a usable leader
			if !pm.Err.Ok() && pm.Err.Code != protocol.CodeReplicaNotAvailable {
				return Broker{}, fmt.Errorf("partition %s: %w", tp, pm.Err)
			}
			if pm.Leader < 0 {
				return Broker{}, fmt.Errorf("partition %s: %w", tp, protocol.Classify(protocol.CodeLeaderNotAvailable))
			}
			for _, b := range r.brokers {
				if b.NodeID == pm.Leader {
					return b, nil
				}
			}
			return Broker{}, fmt.Errorf("partition %s: leader %d missing from broker list: %w", tp, pm.Leader, protocol.Classify(protocol.CodeLeaderNotAvailable))
		}
		return Broker{}, fmt.Errorf("partition %s: %w", tp, protocol.Classify(protocol.CodeUnknownTopicOrPartition))
	}
	return Broker{}, fmt.Errorf("topic %s: %w", tp.Topic, protocol.Classify(protocol.CodeUnknownTopicOrPartition))
}
