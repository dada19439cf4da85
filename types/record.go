package types

import (
	"fmt"
	"time"
)

// TopicPartition identifies one partition of one topic. It is comparable and
// keys maps structurally.
type TopicPartition struct {
	Topic     string `json:"topic"`
	Partition int32  `json:"partition"`
}

func (tp TopicPartition) String() string {
	return fmt.Sprintf("%s-%d", tp.Topic, tp.Partition)
}

// MirrorRecord is the unit handed from the consumer side to the producer side.
// Offset rides along for commit bookkeeping only and is never re-encoded onto
// the destination.
type MirrorRecord struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte // nil means absent
	Value     []byte
	Timestamp time.Time // zero when the source message format predates timestamps
}

func (r MirrorRecord) TopicPartition() TopicPartition {
	return TopicPartition{Topic: r.Topic, Partition: r.Partition}
}
