// Package requests holds the typed models over wire structs: one
// request/response pair per supported api. Write constructors build the
// positional struct up front and keep the handful of denormalized fields the
// accessors serve; read constructors rehydrate those fields from an already
// decoded struct. The two are inverses for every field a model exposes.
package requests

import (
	"fmt"

	"github.com/variable-kang/0.9to0.10MirrorMaker/protocol"
)

// Response is implemented by every typed response model.
type Response interface {
	ApiKey() protocol.ApiKey
	Version() int16
}

type responseParser func(data []byte, version int16) (Response, error)

// One parser per api key. Callers that know the concrete api use the typed
// Parse* functions directly; this table serves dispatch off a header.
var responseParsers = map[protocol.ApiKey]responseParser{
	protocol.ProduceKey: func(data []byte, version int16) (Response, error) {
		return ParseProduceResponse(data, version)
	},
	protocol.MetadataKey: func(data []byte, version int16) (Response, error) {
		return ParseMetadataResponse(data, version)
	},
	protocol.ApiVersionsKey: func(data []byte, version int16) (Response, error) {
		return ParseApiVersionsResponse(data, version)
	},
	protocol.StopReplicaKey: func(data []byte, version int16) (Response, error) {
		return ParseStopReplicaAck(data, version)
	},
}

// ParseResponse resolves the model parser for key and runs it.
func ParseResponse(key protocol.ApiKey, data []byte, version int16) (Response, error) {
	parser, ok := responseParsers[key]
	if !ok {
		return nil, fmt.Errorf("%w: no response model for api %s", protocol.ErrUnsupportedVersion, key)
	}
	return parser(data, version)
}
