package requests

import (
	"github.com/variable-kang/0.9to0.10MirrorMaker/protocol"
)

const (
	hdrApiKey = iota
	hdrApiVersion
	hdrCorrelationID
	hdrClientID
)

// RequestHeader precedes every request body inside a frame.
type RequestHeader struct {
	Key           protocol.ApiKey
	Version       int16
	CorrelationID int32
	ClientID      string
}

func (h RequestHeader) Encode() ([]byte, error) {
	s := protocol.NewStruct(protocol.RequestHeader)
	if err := s.SetAt(hdrApiKey, int16(h.Key)); err != nil {
		return nil, err
	}
	if err := s.SetAt(hdrApiVersion, h.Version); err != nil {
		return nil, err
	}
	if err := s.SetAt(hdrCorrelationID, h.CorrelationID); err != nil {
		return nil, err
	}
	if err := s.SetAt(hdrClientID, h.ClientID); err != nil {
		return nil, err
	}
	return protocol.Encode(s)
}

// ReadRequestHeader peels the header off the front of a request frame and
// returns the body bytes that follow it.
func ReadRequestHeader(data []byte) (RequestHeader, []byte, error) {
	s, rest, err := protocol.DecodePrefix(data, protocol.RequestHeader)
	if err != nil {
		return RequestHeader{}, nil, err
	}
	key, err := s.Int16At(hdrApiKey)
	if err != nil {
		return RequestHeader{}, nil, err
	}
	version, err := s.Int16At(hdrApiVersion)
	if err != nil {
		return RequestHeader{}, nil, err
	}
	correlation, err := s.Int32At(hdrCorrelationID)
	if err != nil {
		return RequestHeader{}, nil, err
	}
	clientID, err := s.StringAt(hdrClientID)
	if err != nil {
		return RequestHeader{}, nil, err
	}
	return RequestHeader{
		Key:           protocol.ApiKey(key),
		Version:       version,
		CorrelationID: correlation,
		ClientID:      clientID,
	}, rest, nil
}
