package mirror

import (
	"fmt"

	"github.com/variable-kang/0.9to0.10MirrorMaker/types"
)

// MessageHandler turns one source record into the records to produce, zero
// or more. Handlers run synchronously on the worker loop.
type MessageHandler interface {
	Handle(record types.MirrorRecord) []types.MirrorRecord
}

// NewHandlerFunc builds a handler from the raw message_handler_arg value.
type NewHandlerFunc func(arg string) (MessageHandler, error)

// RegisteredHandlers maps the message_handler config value to its
// constructor.
var RegisteredHandlers = map[string]NewHandlerFunc{
	"identity":     newIdentityHandler,
	"topic-prefix": newTopicPrefixHandler,
}

func NewHandler(name, arg string) (MessageHandler, error) {
	build, found := RegisteredHandlers[name]
	if !found {
		return nil, fmt.Errorf("unknown message handler: %s", name)
	}
	return build(arg)
}

// identityHandler forwards every record unchanged.
type identityHandler struct{}

func newIdentityHandler(string) (MessageHandler, error) {
	return identityHandler{}, nil
}

func (identityHandler) Handle(record types.MirrorRecord) []types.MirrorRecord {
	return []types.MirrorRecord{record}
}

// topicPrefixHandler retargets records to <prefix><topic>, the naming
// convention for topics mirrored from a remote cluster.
type topicPrefixHandler struct {
	prefix string
}

func newTopicPrefixHandler(arg string) (MessageHandler, error) {
	if arg == "" {
		return nil, fmt.Errorf("topic-prefix handler requires message_handler_arg")
	}
	return topicPrefixHandler{prefix: arg}, nil
}

func (h topicPrefixHandler) Handle(record types.MirrorRecord) []types.MirrorRecord {
	record.Topic = h.prefix + record.Topic
	return []types.MirrorRecord{record}
}
