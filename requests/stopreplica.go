package requests

import (
	"sort"

	"github.com/variable-kang/0.9to0.10MirrorMaker/protocol"
	"github.com/variable-kang/0.9to0.10MirrorMaker/types"
)

const (
	srReqControllerID = iota
	srReqControllerEpoch
	srReqDeletePartitions
	srReqPartitions
)

const (
	srPartTopic = iota
	srPartPartition
)

const (
	srAckErrorCode = iota
	srAckPartitions
)

const (
	srAckPartTopic = iota
	srAckPartPartition
	srAckPartErrorCode
)

// StopReplicaRequest tells a broker to stop serving the named partitions.
type StopReplicaRequest struct {
	s                *protocol.Struct
	controllerID     int32
	controllerEpoch  int32
	deletePartitions bool
	partitions       []types.TopicPartition
}

func NewStopReplicaRequest(controllerID, controllerEpoch int32, deletePartitions bool, partitions []types.TopicPartition) (*StopReplicaRequest, error) {
	schema, err := protocol.Requests.Lookup(protocol.StopReplicaKey, 0)
	if err != nil {
		return nil, err
	}
	s := protocol.NewStruct(schema)
	if err := s.SetAt(srReqControllerID, controllerID); err != nil {
		return nil, err
	}
	if err := s.SetAt(srReqControllerEpoch, controllerEpoch); err != nil {
		return nil, err
	}
	deleteFlag := int8(0)
	if deletePartitions {
		deleteFlag = 1
	}
	if err := s.SetAt(srReqDeletePartitions, deleteFlag); err != nil {
		return nil, err
	}
	for _, tp := range partitions {
		pe, err := s.NewElem(srReqPartitions)
		if err != nil {
			return nil, err
		}
		if err := pe.SetAt(srPartTopic, tp.Topic); err != nil {
			return nil, err
		}
		if err := pe.SetAt(srPartPartition, tp.Partition); err != nil {
			return nil, err
		}
		if err := s.AppendAt(srReqPartitions, pe); err != nil {
			return nil, err
		}
	}
	return &StopReplicaRequest{
		s:                s,
		controllerID:     controllerID,
		controllerEpoch:  controllerEpoch,
		deletePartitions: deletePartitions,
		partitions:       partitions,
	}, nil
}

func ReadStopReplicaRequest(s *protocol.Struct) (*StopReplicaRequest, error) {
	controllerID, err := s.Int32At(srReqControllerID)
	if err != nil {
		return nil, err
	}
	controllerEpoch, err := s.Int32At(srReqControllerEpoch)
	if err != nil {
		return nil, err
	}
	deleteFlag, err := s.Int8At(srReqDeletePartitions)
	if err != nil {
		return nil, err
	}
	req := &StopReplicaRequest{
		s:                s,
		controllerID:     controllerID,
		controllerEpoch:  controllerEpoch,
		deletePartitions: deleteFlag != 0,
	}
	parts, err := s.StructsAt(srReqPartitions)
	if err != nil {
		return nil, err
	}
	for _, pe := range parts {
		topic, err := pe.StringAt(srPartTopic)
		if err != nil {
			return nil, err
		}
		partition, err := pe.Int32At(srPartPartition)
		if err != nil {
			return nil, err
		}
		req.partitions = append(req.partitions, types.TopicPartition{Topic: topic, Partition: partition})
	}
	return req, nil
}

func ParseStopReplicaRequest(data []byte, version int16) (*StopReplicaRequest, error) {
	s, err := protocol.Requests.Decode(data, protocol.StopReplicaKey, version)
	if err != nil {
		return nil, err
	}
	return ReadStopReplicaRequest(s)
}

func (r *StopReplicaRequest) ApiKey() protocol.ApiKey { return protocol.StopReplicaKey }
func (r *StopReplicaRequest) Version() int16          { return 0 }
func (r *StopReplicaRequest) ControllerID() int32     { return r.controllerID }
func (r *StopReplicaRequest) ControllerEpoch() int32  { return r.controllerEpoch }
func (r *StopReplicaRequest) DeletePartitions() bool  { return r.deletePartitions }
func (r *StopReplicaRequest) Encode() ([]byte, error) { return protocol.Encode(r.s) }

// Partitions returns the partitions the request names.
func (r *StopReplicaRequest) Partitions() []types.TopicPartition {
	return r.partitions
}

// StopReplicaAck acknowledges a stop-replica request: one top-level error
// code plus a per-partition code map.
type StopReplicaAck struct {
	s          *protocol.Struct
	errorCode  int16
	partitions map[types.TopicPartition]int16
}

// NewStopReplicaAck builds the ack struct. Partition order on the wire is
// sorted by topic then partition so encodes are deterministic.
func NewStopReplicaAck(errorCode int16, partitions map[types.TopicPartition]int16) (*StopReplicaAck, error) {
	schema, err := protocol.Responses.Lookup(protocol.StopReplicaKey, 0)
	if err != nil {
		return nil, err
	}
	s := protocol.NewStruct(schema)
	if err := s.SetAt(srAckErrorCode, errorCode); err != nil {
		return nil, err
	}

	ordered := make([]types.TopicPartition, 0, len(partitions))
	for tp := range partitions {
		ordered = append(ordered, tp)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Topic != ordered[j].Topic {
			return ordered[i].Topic < ordered[j].Topic
		}
		return ordered[i].Partition < ordered[j].Partition
	})

	for _, tp := range ordered {
		pe, err := s.NewElem(srAckPartitions)
		if err != nil {
			return nil, err
		}
		if err := pe.SetAt(srAckPartTopic, tp.Topic); err != nil {
			return nil, err
		}
		if err := pe.SetAt(srAckPartPartition, tp.Partition); err != nil {
			return nil, err
		}
		if err := pe.SetAt(srAckPartErrorCode, partitions[tp]); err != nil {
			return nil, err
		}
		if err := s.AppendAt(srAckPartitions, pe); err != nil {
			return nil, err
		}
	}
	return &StopReplicaAck{s: s, errorCode: errorCode, partitions: partitions}, nil
}

// ReadStopReplicaAck rehydrates the typed map from a decoded struct.
func ReadStopReplicaAck(s *protocol.Struct) (*StopReplicaAck, error) {
	errorCode, err := s.Int16At(srAckErrorCode)
	if err != nil {
		return nil, err
	}
	ack := &StopReplicaAck{
		s:          s,
		errorCode:  errorCode,
		partitions: make(map[types.TopicPartition]int16),
	}
	parts, err := s.StructsAt(srAckPartitions)
	if err != nil {
		return nil, err
	}
	for _, pe := range parts {
		topic, err := pe.StringAt(srAckPartTopic)
		if err != nil {
			return nil, err
		}
		partition, err := pe.Int32At(srAckPartPartition)
		if err != nil {
			return nil, err
		}
		code, err := pe.Int16At(srAckPartErrorCode)
		if err != nil {
			return nil, err
		}
		ack.partitions[types.TopicPartition{Topic: topic, Partition: partition}] = code
	}
	return ack, nil
}

func ParseStopReplicaAck(data []byte, version int16) (*StopReplicaAck, error) {
	s, err := protocol.Responses.Decode(data, protocol.StopReplicaKey, version)
	if err != nil {
		return nil, err
	}
	return ReadStopReplicaAck(s)
}

func (a *StopReplicaAck) ApiKey() protocol.ApiKey  { return protocol.StopReplicaKey }
func (a *StopReplicaAck) Version() int16           { return 0 }
func (a *StopReplicaAck) Err() protocol.ErrorKind  { return protocol.Classify(a.errorCode) }
func (a *StopReplicaAck) Struct() *protocol.Struct { return a.s }
func (a *StopReplicaAck) Encode() ([]byte, error)  { return protocol.Encode(a.s) }

// PartitionErrors returns the per-partition outcome map.
func (a *StopReplicaAck) PartitionErrors() map[types.TopicPartition]int16 {
	return a.partitions
}
