// Package protocol implements the versioned Kafka wire format shared by the
// 0.9 and 0.10 broker generations: schema-described request/response layouts,
// a position-indexed value container, the encoder/decoder pair, the wire
// error registry, and the message-set format used inside produce requests.
package protocol

// ApiKey identifies one broker request/response family.
type ApiKey int16

const (
	ProduceKey         ApiKey = 0
	FetchKey           ApiKey = 1
	ListOffsetsKey     ApiKey = 2
	MetadataKey        ApiKey = 3
	StopReplicaKey     ApiKey = 5
	OffsetCommitKey    ApiKey = 8
	OffsetFetchKey     ApiKey = 9
	FindCoordinatorKey ApiKey = 10
	ApiVersionsKey     ApiKey = 18
)

var apiKeyNames = map[ApiKey]string{
	ProduceKey:         "Produce",
	FetchKey:           "Fetch",
	ListOffsetsKey:     "ListOffsets",
	MetadataKey:        "Metadata",
	StopReplicaKey:     "StopReplica",
	OffsetCommitKey:    "OffsetCommit",
	OffsetFetchKey:     "OffsetFetch",
	FindCoordinatorKey: "FindCoordinator",
	ApiVersionsKey:     "ApiVersions",
}

func (k ApiKey) String() string {
	if name, ok := apiKeyNames[k]; ok {
		return name
	}
	return "Unknown"
}
