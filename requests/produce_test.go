package requests

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/variable-kang/0.9to0.10MirrorMaker/protocol"
	"github.com/variable-kang/0.9to0.10MirrorMaker/types"
)

func TestProduceRequest_BuildAndDecode(t *testing.T) {
	sets := map[types.TopicPartition][]byte{
		{Topic: "events", Partition: 0}:  {0x01, 0x02},
		{Topic: "events", Partition: 2}:  {0x03},
		{Topic: "metrics", Partition: 1}: {0x04, 0x05, 0x06},
	}

	req, err := NewProduceRequest(2, -1, 30000, sets)
	require.NoError(t, err)
	assert.Equal(t, int16(2), req.Version())
	assert.Equal(t, int16(-1), req.Acks())
	assert.True(t, req.ExpectsResponse())

	data, err := req.Encode()
	require.NoError(t, err)

	s, err := protocol.Requests.Decode(data, protocol.ProduceKey, 2)
	require.NoError(t, err)

	acks, err := s.Int16At(0)
	require.NoError(t, err)
	assert.Equal(t, int16(-1), acks)

	timeout, err := s.Int32At(1)
	require.NoError(t, err)
	assert.Equal(t, int32(30000), timeout)

	topics, err := s.StructsAt(2)
	require.NoError(t, err)
	require.Len(t, topics, 2)

	// topics sorted, partitions sorted within each
	name0, err := topics[0].StringAt(0)
	require.NoError(t, err)
	assert.Equal(t, "events", name0)
	parts0, err := topics[0].StructsAt(1)
	require.NoError(t, err)
	require.Len(t, parts0, 2)

	p, err := parts0[0].Int32At(0)
	require.NoError(t, err)
	assert.Equal(t, int32(0), p)
	set, err := parts0[0].BytesAt(1)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02}, set)

	p, err = parts0[1].Int32At(0)
	require.NoError(t, err)
	assert.Equal(t, int32(2), p)

	name1, err := topics[1].StringAt(0)
	require.NoError(t, err)
	assert.Equal(t, "metrics", name1)
}

func TestProduceRequest_SameLayoutAllVersions(t *testing.T) {
	sets := map[types.TopicPartition][]byte{
		{Topic: "events", Partition: 0}: {0xAA},
	}
	var encoded [][]byte
	for v := int16(0); v <= 2; v++ {
		req, err := NewProduceRequest(v, 1, 1000, sets)
		require.NoError(t, err)
		data, err := req.Encode()
		require.NoError(t, err)
		encoded = append(encoded, data)
	}
	assert.Equal(t, encoded[0], encoded[1])
	assert.Equal(t, encoded[1], encoded[2])
}

func TestProduceRequest_AcksZeroExpectsNoResponse(t *testing.T) {
	req, err := NewProduceRequest(2, 0, 1000, nil)
	require.NoError(t, err)
	assert.False(t, req.ExpectsResponse())
}

func TestProduceRequest_UnknownVersion(t *testing.T) {
	_, err := NewProduceRequest(3, -1, 1000, nil)
	assert.ErrorIs(t, err, protocol.ErrUnsupportedVersion)
}

func TestProduceResponse_UniformAccessorsAcrossVersions(t *testing.T) {
	acks := []PartitionAck{
		{
			TopicPartition: types.TopicPartition{Topic: "events", Partition: 0},
			Err:            protocol.Classify(protocol.CodeNone),
			BaseOffset:     512,
			LogAppendTime:  -1,
		},
		{
			TopicPartition: types.TopicPartition{Topic: "events", Partition: 1},
			Err:            protocol.Classify(protocol.CodeNotLeaderForPartition),
			BaseOffset:     -1,
			LogAppendTime:  -1,
		},
	}

	t.Run("v0 has no throttle, no log append time", func(t *testing.T) {
		resp, err := NewProduceResponse(0, 0, acks)
		require.NoError(t, err)
		data, err := resp.Encode()
		require.NoError(t, err)

		back, err := ParseProduceResponse(data, 0)
		require.NoError(t, err)
		assert.Equal(t, int32(0), back.ThrottleMs())
		assert.Equal(t, acks, back.Acks())
	})

	t.Run("v1 carries throttle", func(t *testing.T) {
		resp, err := NewProduceResponse(1, 250, acks)
		require.NoError(t, err)
		data, err := resp.Encode()
		require.NoError(t, err)

		back, err := ParseProduceResponse(data, 1)
		require.NoError(t, err)
		assert.Equal(t, int32(250), back.ThrottleMs())
		assert.Equal(t, acks, back.Acks())
	})

	t.Run("v2 carries log append time", func(t *testing.T) {
		stamped := make([]PartitionAck, len(acks))
		copy(stamped, acks)
		stamped[0].LogAppendTime = 1457659402000

		resp, err := NewProduceResponse(2, 250, stamped)
		require.NoError(t, err)
		data, err := resp.Encode()
		require.NoError(t, err)

		back, err := ParseProduceResponse(data, 2)
		require.NoError(t, err)
		assert.Equal(t, int32(250), back.ThrottleMs())
		assert.Equal(t, stamped, back.Acks())
	})
}

func TestProduceResponse_VersionTranslation(t *testing.T) {
	// decode an old-version response, rebuild it for a newer layout: fields
	// the new version adds pick up protocol defaults
	v0, err := NewProduceResponse(0, 0, []PartitionAck{{
		TopicPartition: types.TopicPartition{Topic: "events", Partition: 3},
		Err:            protocol.Classify(protocol.CodeNone),
		BaseOffset:     99,
		LogAppendTime:  -1,
	}})
	require.NoError(t, err)
	data, err := v0.Encode()
	require.NoError(t, err)

	old, err := ParseProduceResponse(data, 0)
	require.NoError(t, err)

	upgraded, err := NewProduceResponse(2, 0, old.Acks())
	require.NoError(t, err)
	data, err = upgraded.Encode()
	require.NoError(t, err)

	back, err := ParseProduceResponse(data, 2)
	require.NoError(t, err)
	require.Len(t, back.Acks(), 1)
	assert.Equal(t, int64(-1), back.Acks()[0].LogAppendTime)
	assert.Equal(t, int64(99), back.Acks()[0].BaseOffset)
}

func TestProduceResponse_Err(t *testing.T) {
	ok, err := NewProduceResponse(2, 0, []PartitionAck{{
		TopicPartition: types.TopicPartition{Topic: "events", Partition: 0},
		Err:            protocol.Classify(protocol.CodeNone),
		BaseOffset:     1,
		LogAppendTime:  -1,
	}})
	require.NoError(t, err)
	assert.NoError(t, ok.Err())

	failed, err := NewProduceResponse(2, 0, []PartitionAck{{
		TopicPartition: types.TopicPartition{Topic: "events", Partition: 0},
		Err:            protocol.Classify(protocol.CodeRequestTimedOut),
		BaseOffset:     -1,
		LogAppendTime:  -1,
	}})
	require.NoError(t, err)

	sendErr := failed.Err()
	require.Error(t, sendErr)
	assert.True(t, protocol.RetriableError(sendErr))
	assert.Contains(t, sendErr.Error(), "events-0")
}
