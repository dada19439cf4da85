package requests

import (
	"sort"

	"github.com/variable-kang/0.9to0.10MirrorMaker/protocol"
)

const (
	avRespErrorCode = iota
	avRespVersions
)

const (
	avKey = iota
	avMin
	avMax
)

// ApiVersionsRequest has an empty v0 body; sending it is the handshake that
// tells us which produce version the destination broker accepts.
type ApiVersionsRequest struct {
	s *protocol.Struct
}

func NewApiVersionsRequest() (*ApiVersionsRequest, error) {
	schema, err := protocol.Requests.Lookup(protocol.ApiVersionsKey, 0)
	if err != nil {
		return nil, err
	}
	return &ApiVersionsRequest{s: protocol.NewStruct(schema)}, nil
}

func (r *ApiVersionsRequest) ApiKey() protocol.ApiKey { return protocol.ApiVersionsKey }
func (r *ApiVersionsRequest) Version() int16          { return 0 }
func (r *ApiVersionsRequest) Encode() ([]byte, error) { return protocol.Encode(r.s) }

// VersionRange is the broker's supported window for one api.
type VersionRange struct {
	Min int16
	Max int16
}

func (r VersionRange) Contains(version int16) bool {
	return version >= r.Min && version <= r.Max
}

// ApiVersionsResponse lists the version window per api key.
type ApiVersionsResponse struct {
	s      *protocol.Struct
	err    protocol.ErrorKind
	ranges map[protocol.ApiKey]VersionRange
}

// NewApiVersionsResponse builds the response struct, apis in sorted key order.
func NewApiVersionsResponse(code int16, ranges map[protocol.ApiKey]VersionRange) (*ApiVersionsResponse, error) {
	schema, err := protocol.Responses.Lookup(protocol.ApiVersionsKey, 0)
	if err != nil {
		return nil, err
	}
	s := protocol.NewStruct(schema)
	if err := s.SetAt(avRespErrorCode, code); err != nil {
		return nil, err
	}
	keys := make([]protocol.ApiKey, 0, len(ranges))
	for key := range ranges {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	for _, key := range keys {
		ve, err := s.NewElem(avRespVersions)
		if err != nil {
			return nil, err
		}
		if err := ve.SetAt(avKey, int16(key)); err != nil {
			return nil, err
		}
		if err := ve.SetAt(avMin, ranges[key].Min); err != nil {
			return nil, err
		}
		if err := ve.SetAt(avMax, ranges[key].Max); err != nil {
			return nil, err
		}
		if err := s.AppendAt(avRespVersions, ve); err != nil {
			return nil, err
		}
	}
	return &ApiVersionsResponse{s: s, err: protocol.Classify(code), ranges: ranges}, nil
}

func ReadApiVersionsResponse(s *protocol.Struct) (*ApiVersionsResponse, error) {
	code, err := s.Int16At(avRespErrorCode)
	if err != nil {
		return nil, err
	}
	resp := &ApiVersionsResponse{
		s:      s,
		err:    protocol.Classify(code),
		ranges: make(map[protocol.ApiKey]VersionRange),
	}
	versions, err := s.StructsAt(avRespVersions)
	if err != nil {
		return nil, err
	}
	for _, ve := range versions {
		key, err := ve.Int16At(avKey)
		if err != nil {
			return nil, err
		}
		min, err := ve.Int16At(avMin)
		if err != nil {
			return nil, err
		}
		max, err := ve.Int16At(avMax)
		if err != nil {
			return nil, err
		}
		resp.ranges[protocol.ApiKey(key)] = VersionRange{Min: min, Max: max}
	}
	return resp, nil
}

func ParseApiVersionsResponse(data []byte, version int16) (*ApiVersionsResponse, error) {
	s, err := protocol.Responses.Decode(data, protocol.ApiVersionsKey, version)
	if err != nil {
		return nil, err
	}
	return ReadApiVersionsResponse(s)
}

func (r *ApiVersionsResponse) ApiKey() protocol.ApiKey { return protocol.ApiVersionsKey }
func (r *ApiVersionsResponse) Version() int16          { return 0 }
func (r *ApiVersionsResponse) Err() protocol.ErrorKind { return r.err }
func (r *ApiVersionsResponse) Encode() ([]byte, error) { return protocol.Encode(r.s) }

// Range returns the broker's window for key.
func (r *ApiVersionsResponse) Range(key protocol.ApiKey) (VersionRange, bool) {
	vr, ok := r.ranges[key]
	return vr, ok
}

// Supports reports whether the broker accepts (key, version).
func (r *ApiVersionsResponse) Supports(key protocol.ApiKey, version int16) bool {
	vr, ok := r.ranges[key]
	return ok && vr.Contains(version)
}
