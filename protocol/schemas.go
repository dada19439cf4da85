package protocol

// Static layout tables for the api versions the mirror speaks. Field names
// follow the broker protocol definitions, which is what the typed models key
// their accessors on.

// RequestHeader precedes every request body on the wire.
var RequestHeader = NewSchema(
	Field{Name: "api_key", Type: TypeInt16},
	Field{Name: "api_version", Type: TypeInt16},
	Field{Name: "correlation_id", Type: TypeInt32},
	Field{Name: "client_id", Type: TypeString},
)

// The produce request kept one layout across v0..v2; the version only
// switches the message format expected inside record_set.
var produceRequest = NewSchema(
	Field{Name: "acks", Type: TypeInt16},
	Field{Name: "timeout", Type: TypeInt32},
	Field{Name: "topic_data", Type: TypeArray, Elem: &Field{Type: TypeStruct, Sub: NewSchema(
		Field{Name: "topic", Type: TypeString},
		Field{Name: "data", Type: TypeArray, Elem: &Field{Type: TypeStruct, Sub: NewSchema(
			Field{Name: "partition", Type: TypeInt32},
			Field{Name: "record_set", Type: TypeBytes},
		)}},
	)}},
)

var produceResponseV0 = NewSchema(
	Field{Name: "responses", Type: TypeArray, Elem: &Field{Type: TypeStruct, Sub: NewSchema(
		Field{Name: "topic", Type: TypeString},
		Field{Name: "partition_responses", Type: TypeArray, Elem: &Field{Type: TypeStruct, Sub: NewSchema(
			Field{Name: "partition", Type: TypeInt32},
			Field{Name: "error_code", Type: TypeInt16},
			Field{Name: "base_offset", Type: TypeInt64},
		)}},
	)}},
)

// v1 appends throttle_time_ms after the responses array.
var produceResponseV1 = NewSchema(
	Field{Name: "responses", Type: TypeArray, Elem: &Field{Type: TypeStruct, Sub: NewSchema(
		Field{Name: "topic", Type: TypeString},
		Field{Name: "partition_responses", Type: TypeArray, Elem: &Field{Type: TypeStruct, Sub: NewSchema(
			Field{Name: "partition", Type: TypeInt32},
			Field{Name: "error_code", Type: TypeInt16},
			Field{Name: "base_offset", Type: TypeInt64},
		)}},
	)}},
	Field{Name: "throttle_time_ms", Type: TypeInt32},
)

// v2 adds the per-partition log append time for log-append-time topics.
var produceResponseV2 = NewSchema(
	Field{Name: "responses", Type: TypeArray, Elem: &Field{Type: TypeStruct, Sub: NewSchema(
		Field{Name: "topic", Type: TypeString},
		Field{Name: "partition_responses", Type: TypeArray, Elem: &Field{Type: TypeStruct, Sub: NewSchema(
			Field{Name: "partition", Type: TypeInt32},
			Field{Name: "error_code", Type: TypeInt16},
			Field{Name: "base_offset", Type: TypeInt64},
			Field{Name: "log_append_time", Type: TypeInt64},
		)}},
	)}},
	Field{Name: "throttle_time_ms", Type: TypeInt32},
)

var metadataRequestV0 = NewSchema(
	Field{Name: "topics", Type: TypeArray, Elem: &Field{Type: TypeString}},
)

var metadataResponseV0 = NewSchema(
	Field{Name: "brokers", Type: TypeArray, Elem: &Field{Type: TypeStruct, Sub: NewSchema(
		Field{Name: "node_id", Type: TypeInt32},
		Field{Name: "host", Type: TypeString},
		Field{Name: "port", Type: TypeInt32},
	)}},
	Field{Name: "topic_metadata", Type: TypeArray, Elem: &Field{Type: TypeStruct, Sub: NewSchema(
		Field{Name: "topic_error_code", Type: TypeInt16},
		Field{Name: "topic", Type: TypeString},
		Field{Name: "partition_metadata", Type: TypeArray, Elem: &Field{Type: TypeStruct, Sub: NewSchema(
			Field{Name: "partition_error_code", Type: TypeInt16},
			Field{Name: "partition_id", Type: TypeInt32},
			Field{Name: "leader", Type: TypeInt32},
			Field{Name: "replicas", Type: TypeArray, Elem: &Field{Type: TypeInt32}},
			Field{Name: "isr", Type: TypeArray, Elem: &Field{Type: TypeInt32}},
		)}},
	)}},
)

var apiVersionsRequestV0 = NewSchema()

var apiVersionsResponseV0 = NewSchema(
	Field{Name: "error_code", Type: TypeInt16},
	Field{Name: "api_versions", Type: TypeArray, Elem: &Field{Type: TypeStruct, Sub: NewSchema(
		Field{Name: "api_key", Type: TypeInt16},
		Field{Name: "min_version", Type: TypeInt16},
		Field{Name: "max_version", Type: TypeInt16},
	)}},
)

var stopReplicaRequestV0 = NewSchema(
	Field{Name: "controller_id", Type: TypeInt32},
	Field{Name: "controller_epoch", Type: TypeInt32},
	Field{Name: "delete_partitions", Type: TypeInt8},
	Field{Name: "partitions", Type: TypeArray, Elem: &Field{Type: TypeStruct, Sub: NewSchema(
		Field{Name: "topic", Type: TypeString},
		Field{Name: "partition", Type: TypeInt32},
	)}},
)

var stopReplicaResponseV0 = NewSchema(
	Field{Name: "error_code", Type: TypeInt16},
	Field{Name: "partitions", Type: TypeArray, Elem: &Field{Type: TypeStruct, Sub: NewSchema(
		Field{Name: "topic", Type: TypeString},
		Field{Name: "partition", Type: TypeInt32},
		Field{Name: "error_code", Type: TypeInt16},
	)}},
)

// Requests and Responses are the process-wide layout tables, populated here
// and never mutated afterwards.
var (
	Requests  = NewSchemaTable()
	Responses = NewSchemaTable()
)

func init() {
	Requests.Register(ProduceKey, produceRequest, produceRequest, produceRequest)
	Responses.Register(ProduceKey, produceResponseV0, produceResponseV1, produceResponseV2)

	Requests.Register(MetadataKey, metadataRequestV0)
	Responses.Register(MetadataKey, metadataResponseV0)

	Requests.Register(ApiVersionsKey, apiVersionsRequestV0)
	Responses.Register(ApiVersionsKey, apiVersionsResponseV0)

	Requests.Register(StopReplicaKey, stopReplicaRequestV0)
	Responses.Register(StopReplicaKey, stopReplicaResponseV0)
}
