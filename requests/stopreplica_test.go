package requests

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/variable-kang/0.9to0.10MirrorMaker/protocol"
	"github.com/variable-kang/0.9to0.10MirrorMaker/types"
)

func TestStopReplicaAck_RoundTrip(t *testing.T) {
	partitions := map[types.TopicPartition]int16{
		{Topic: "events", Partition: 0}:  protocol.CodeNone,
		{Topic: "events", Partition: 1}:  protocol.CodeNotLeaderForPartition,
		{Topic: "metrics", Partition: 4}: protocol.CodeUnknownTopicOrPartition,
	}

	ack, err := NewStopReplicaAck(protocol.CodeNone, partitions)
	require.NoError(t, err)

	t.Run("read of write struct is identity", func(t *testing.T) {
		back, err := ReadStopReplicaAck(ack.Struct())
		require.NoError(t, err)
		assert.Equal(t, ack.Err(), back.Err())
		assert.Equal(t, partitions, back.PartitionErrors())
	})

	t.Run("parse of encoded bytes is identity", func(t *testing.T) {
		data, err := ack.Encode()
		require.NoError(t, err)

		back, err := ParseStopReplicaAck(data, 0)
		require.NoError(t, err)
		assert.True(t, back.Err().Ok())
		assert.Equal(t, partitions, back.PartitionErrors())
	})

	t.Run("encode is deterministic", func(t *testing.T) {
		first, err := ack.Encode()
		require.NoError(t, err)
		again, err := NewStopReplicaAck(protocol.CodeNone, partitions)
		require.NoError(t, err)
		second, err := again.Encode()
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})
}

func TestStopReplicaAck_EmptyPartitions(t *testing.T) {
	ack, err := NewStopReplicaAck(protocol.CodeNotLeaderForPartition, nil)
	require.NoError(t, err)

	data, err := ack.Encode()
	require.NoError(t, err)

	back, err := ParseStopReplicaAck(data, 0)
	require.NoError(t, err)
	assert.Equal(t, protocol.CodeNotLeaderForPartition, back.Err().Code)
	assert.True(t, back.Err().Retriable)
	assert.Empty(t, back.PartitionErrors())
}

func TestStopReplicaAck_UnknownVersion(t *testing.T) {
	_, err := ParseStopReplicaAck([]byte{}, 1)
	assert.ErrorIs(t, err, protocol.ErrUnsupportedVersion)
}

func TestStopReplicaRequest_RoundTrip(t *testing.T) {
	partitions := []types.TopicPartition{
		{Topic: "events", Partition: 0},
		{Topic: "events", Partition: 1},
	}

	req, err := NewStopReplicaRequest(3, 17, true, partitions)
	require.NoError(t, err)

	data, err := req.Encode()
	require.NoError(t, err)

	back, err := ParseStopReplicaRequest(data, 0)
	require.NoError(t, err)
	assert.Equal(t, int32(3), back.ControllerID())
	assert.Equal(t, int32(17), back.ControllerEpoch())
	assert.True(t, back.DeletePartitions())
	assert.Equal(t, partitions, back.Partitions())
}
