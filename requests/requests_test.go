package requests

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/variable-kang/0.9to0.10MirrorMaker/protocol"
	"github.com/variable-kang/0.9to0.10MirrorMaker/types"
)

func TestRequestHeader_RoundTrip(t *testing.T) {
	hdr := RequestHeader{
		Key:           protocol.ProduceKey,
		Version:       2,
		CorrelationID: 1234,
		ClientID:      "mirrormaker-producer-01",
	}

	head, err := hdr.Encode()
	require.NoError(t, err)

	body := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	frame := append(head, body...)

	back, rest, err := ReadRequestHeader(frame)
	require.NoError(t, err)
	assert.Equal(t, hdr, back)
	assert.Equal(t, body, rest)
}

func TestRequestHeader_EmptyBody(t *testing.T) {
	hdr := RequestHeader{Key: protocol.ApiVersionsKey, Version: 0, CorrelationID: 7, ClientID: "probe"}

	head, err := hdr.Encode()
	require.NoError(t, err)

	back, rest, err := ReadRequestHeader(head)
	require.NoError(t, err)
	assert.Equal(t, hdr, back)
	assert.Empty(t, rest)
}

func TestRequestHeader_Truncated(t *testing.T) {
	hdr := RequestHeader{Key: protocol.MetadataKey, Version: 0, CorrelationID: 9, ClientID: "probe"}
	head, err := hdr.Encode()
	require.NoError(t, err)

	_, _, err = ReadRequestHeader(head[:len(head)-2])
	assert.ErrorIs(t, err, protocol.ErrMalformedRecord)
}

func TestParseResponse_Dispatch(t *testing.T) {
	produce, err := NewProduceResponse(1, 0, []PartitionAck{
		{TopicPartition: types.TopicPartition{Topic: "events", Partition: 0}, BaseOffset: 42, LogAppendTime: -1},
	})
	require.NoError(t, err)

	metadata, err := NewMetadataResponse(
		[]Broker{{NodeID: 1, Host: "b1", Port: 9092}},
		[]TopicMetadata{{Topic: "events", Partitions: []PartitionMetadata{
			{Partition: 0, Leader: 1, Replicas: []int32{1}, ISR: []int32{1}},
		}}},
	)
	require.NoError(t, err)

	versions, err := NewApiVersionsResponse(protocol.CodeNone, map[protocol.ApiKey]VersionRange{
		protocol.ProduceKey: {Min: 0, Max: 2},
	})
	require.NoError(t, err)

	stop, err := NewStopReplicaAck(protocol.CodeNone, map[types.TopicPartition]int16{
		{Topic: "events", Partition: 0}: protocol.CodeNone,
	})
	require.NoError(t, err)

	tests := []struct {
		name    string
		key     protocol.ApiKey
		version int16
		model   interface{ Encode() ([]byte, error) }
	}{
		{"produce", protocol.ProduceKey, 1, produce},
		{"metadata", protocol.MetadataKey, 0, metadata},
		{"api versions", protocol.ApiVersionsKey, 0, versions},
		{"stop replica", protocol.StopReplicaKey, 0, stop},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := tt.model.Encode()
			require.NoError(t, err)

			resp, err := ParseResponse(tt.key, data, tt.version)
			require.NoError(t, err)
			assert.Equal(t, tt.key, resp.ApiKey())
			assert.Equal(t, tt.version, resp.Version())
		})
	}
}

func TestParseResponse_UnknownKey(t *testing.T) {
	_, err := ParseResponse(protocol.FetchKey, nil, 0)
	assert.ErrorIs(t, err, protocol.ErrUnsupportedVersion)
}

func TestParseResponse_GarbagePayload(t *testing.T) {
	_, err := ParseResponse(protocol.ProduceKey, []byte{0x01}, 0)
	assert.ErrorIs(t, err, protocol.ErrMalformedRecord)
}
