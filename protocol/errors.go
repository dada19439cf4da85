package protocol

import (
	"errors"
	"fmt"
)

// Codec-level failures. Both are fatal to the operation that hit them, never
// retriable.
var (
	ErrMalformedRecord    = errors.New("malformed record")
	ErrUnsupportedVersion = errors.New("unsupported protocol version")
)

// Codes the pipeline branches on by name. The registry below stays the single
// source of truth for classification.
const (
	CodeNone                    int16 = 0
	CodeCorruptMessage          int16 = 2
	CodeUnknownTopicOrPartition int16 = 3
	CodeLeaderNotAvailable      int16 = 5
	CodeNotLeaderForPartition   int16 = 6
	CodeRequestTimedOut         int16 = 7
	CodeReplicaNotAvailable     int16 = 9
	CodeMessageTooLarge         int16 = 10
	CodeNetworkException        int16 = 13
	CodeUnsupportedVersion      int16 = 35
)

// ErrorKind is one wire error code with its classification. The zero value is
// success (NONE).
type ErrorKind struct {
	Code      int16
	Name      string
	Retriable bool
	Message   string
}

// Error makes broker error codes usable directly as Go errors.
func (k ErrorKind) Error() string {
	return fmt.Sprintf("%s (%d): %s", k.Name, k.Code, k.Message)
}

// Ok reports success.
func (k ErrorKind) Ok() bool {
	return k.Code == 0
}

var errorKinds = []ErrorKind{
	{0, "NONE", false, ""},
	{1, "OFFSET_OUT_OF_RANGE", false, "the requested offset is outside the range of offsets maintained by the server"},
	{2, "CORRUPT_MESSAGE", true, "the message contents do not match their CRC"},
	{3, "UNKNOWN_TOPIC_OR_PARTITION", true, "this server does not host this topic-partition"},
	{4, "INVALID_FETCH_SIZE", false, "the requested fetch size is invalid"},
	{5, "LEADER_NOT_AVAILABLE", true, "there is no leader for this topic-partition as we are in the middle of a leadership election"},
	{6, "NOT_LEADER_FOR_PARTITION", true, "this server is not the leader for that topic-partition"},
	{7, "REQUEST_TIMED_OUT", true, "the request timed out"},
	{8, "BROKER_NOT_AVAILABLE", false, "the broker is not available"},
	{9, "REPLICA_NOT_AVAILABLE", false, "the replica is not available for the requested topic-partition"},
	{10, "MESSAGE_TOO_LARGE", false, "the request included a message larger than the max message size the server will accept"},
	{11, "STALE_CONTROLLER_EPOCH", false, "the controller moved to another broker"},
	{12, "OFFSET_METADATA_TOO_LARGE", false, "the metadata field of the offset request was too large"},
	{13, "NETWORK_EXCEPTION", true, "the server disconnected before a response was received"},
	{14, "GROUP_LOAD_IN_PROGRESS", true, "the coordinator is loading and hence can't process requests for this group"},
	{15, "GROUP_COORDINATOR_NOT_AVAILABLE", true, "the group coordinator is not available, the offsets topic may not yet be created"},
	{16, "NOT_COORDINATOR_FOR_GROUP", true, "this is not the correct coordinator for this group"},
	{17, "INVALID_TOPIC_EXCEPTION", false, "the request attempted to perform an operation on an invalid topic"},
	{18, "RECORD_LIST_TOO_LARGE", false, "the request included message batch larger than the configured segment size on the server"},
	{19, "NOT_ENOUGH_REPLICAS", true, "messages are rejected since there are fewer in-sync replicas than required"},
	{20, "NOT_ENOUGH_REPLICAS_AFTER_APPEND", true, "messages are written to the log, but to fewer in-sync replicas than required"},
	{21, "INVALID_REQUIRED_ACKS", false, "produce request specified an invalid value for required acks"},
	{22, "ILLEGAL_GENERATION", false, "specified group generation id is not valid"},
	{23, "INCONSISTENT_GROUP_PROTOCOL", false, "the group member's supported protocols are incompatible with those of existing members"},
	{24, "INVALID_GROUP_ID", false, "the configured groupId is invalid"},
	{25, "UNKNOWN_MEMBER_ID", false, "the coordinator is not aware of this member"},
	{26, "INVALID_SESSION_TIMEOUT", false, "the session timeout is not within the range allowed by the broker"},
	{27, "REBALANCE_IN_PROGRESS", false, "the group is rebalancing, so a rejoin is needed"},
	{28, "INVALID_COMMIT_OFFSET_SIZE", false, "the committing offset data size is not valid"},
	{29, "TOPIC_AUTHORIZATION_FAILED", false, "not authorized to access topics"},
	{30, "GROUP_AUTHORIZATION_FAILED", false, "not authorized to access group"},
	{31, "CLUSTER_AUTHORIZATION_FAILED", false, "cluster authorization failed"},
	{32, "INVALID_TIMESTAMP", false, "the timestamp of the message is out of acceptable range"},
	{33, "UNSUPPORTED_SASL_MECHANISM", false, "the broker does not support the requested SASL mechanism"},
	{34, "ILLEGAL_SASL_STATE", false, "request is not valid given the current SASL state"},
	{35, "UNSUPPORTED_VERSION", false, "the version of API is not supported"},
}

var errorsByCode = func() map[int16]ErrorKind {
	m := make(map[int16]ErrorKind, len(errorKinds))
	for _, k := range errorKinds {
		m[k.Code] = k
	}
	return m
}()

// Classify maps a wire error code to its kind. Total: codes this registry
// does not know come back as a fatal UNKNOWN kind carrying the original code.
func Classify(code int16) ErrorKind {
	if k, ok := errorsByCode[code]; ok {
		return k
	}
	return ErrorKind{Code: code, Name: "UNKNOWN", Retriable: false, Message: "unexpected server error"}
}

// IsRetriable reports whether the code is safe to retry as-is.
func IsRetriable(code int16) bool {
	return Classify(code).Retriable
}

// RetriableError reports whether err is, or wraps, a retriable wire error.
func RetriableError(err error) bool {
	var kind ErrorKind
	if errors.As(err, &kind) {
		return kind.Retriable
	}
	return false
}
