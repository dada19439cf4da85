package protocol

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"time"

	"github.com/variable-kang/0.9to0.10MirrorMaker/types"
)

// Message-set format constants. Magic 0 is the pre-timestamp layout the 0.9
// brokers store; magic 1 added the per-message timestamp in 0.10.
const (
	MagicLegacy    int8 = 0
	MagicTimestamp int8 = 1

	noTimestamp int64 = -1
)

// MessageSetMagic picks the message format the given produce version carries.
func MessageSetMagic(produceVersion int16) int8 {
	if produceVersion >= 2 {
		return MagicTimestamp
	}
	return MagicLegacy
}

// Message is one decoded message-set entry.
type Message struct {
	Offset    int64
	Magic     int8
	Timestamp time.Time
	Key       []byte
	Value     []byte
}

// EncodeMessageSet writes records as an uncompressed message set in the given
// magic format, assigning relative offsets 0..n-1 the way producers do. This
// is where records read from an older cluster are up-converted: under magic 1
// each message gains its timestamp slot, zero timestamps encoding as -1.
func EncodeMessageSet(records []types.MirrorRecord, magic int8) ([]byte, error) {
	if magic != MagicLegacy && magic != MagicTimestamp {
		return nil, fmt.Errorf("unknown message format %d", magic)
	}
	var set []byte
	for i, rec := range records {
		// crc covers magic..value
		body := []byte{byte(magic), 0}
		if magic == MagicTimestamp {
			ts := noTimestamp
			if !rec.Timestamp.IsZero() {
				ts = rec.Timestamp.UnixMilli()
			}
			body = binary.BigEndian.AppendUint64(body, uint64(ts))
		}
		body = appendBytes(body, rec.Key)
		body = appendBytes(body, rec.Value)

		set = binary.BigEndian.AppendUint64(set, uint64(i))
		set = binary.BigEndian.AppendUint32(set, uint32(len(body)+4))
		set = binary.BigEndian.AppendUint32(set, crc32.ChecksumIEEE(body))
		set = append(set, body...)
	}
	return set, nil
}

// DecodeMessageSet reads back an uncompressed message set, verifying each
// entry's CRC. Truncated entries are an error; this reader backs the produce
// path and tests, not a lenient fetch follower.
func DecodeMessageSet(data []byte) ([]Message, error) {
	r := &reader{buf: data}
	var msgs []Message
	for r.remaining() > 0 {
		offset, err := r.int64("offset")
		if err != nil {
			return nil, err
		}
		size, err := r.int32("message_size")
		if err != nil {
			return nil, err
		}
		if size < 14 {
			return nil, fmt.Errorf("%w: message size %d below minimum", ErrMalformedRecord, size)
		}
		if err := r.need(int(size), "message"); err != nil {
			return nil, err
		}
		body := r.buf[r.off : r.off+int(size)]
		r.off += int(size)

		crc := binary.BigEndian.Uint32(body)
		if actual := crc32.ChecksumIEEE(body[4:]); actual != crc {
			return nil, fmt.Errorf("%w: message at offset %d fails crc check", ErrMalformedRecord, offset)
		}

		mr := &reader{buf: body[4:]}
		magic, err := mr.int8("magic")
		if err != nil {
			return nil, err
		}
		if magic != MagicLegacy && magic != MagicTimestamp {
			return nil, fmt.Errorf("%w: unknown message format %d", ErrMalformedRecord, magic)
		}
		attrs, err := mr.int8("attributes")
		if err != nil {
			return nil, err
		}
		if attrs&0x07 != 0 {
			return nil, fmt.Errorf("compressed message sets are not supported")
		}

		msg := Message{Offset: offset, Magic: magic}
		if magic == MagicTimestamp {
			ts, err := mr.int64("timestamp")
			if err != nil {
				return nil, err
			}
			if ts != noTimestamp {
				msg.Timestamp = time.UnixMilli(ts)
			}
		}
		if msg.Key, err = mr.bytes("key"); err != nil {
			return nil, err
		}
		if msg.Value, err = mr.bytes("value"); err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}
