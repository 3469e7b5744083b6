package transport

import (
	"errors"
	"fmt"

	"github.com/morezero/cluster-supervisor/pkg/message"
)

var ErrBufferOverflow = errors.New("transport: buffered bytes exceed limit")

// Limits bounds per-connection memory.
type Limits struct {
	// MaxBufferedBytes caps the unconsumed tail kept between reads.
	MaxBufferedBytes int
}

func DefaultLimits() Limits {
	return Limits{MaxBufferedBytes: 1 << 20}
}

// Reassembler turns a byte stream into framed messages. One Reassembler
// serves one connection and is not safe for concurrent use.
type Reassembler struct {
	table  message.Table
	limits Limits
	buf    []byte

	// OnMalformed, if set, is told about each dropped length-delimited frame.
	OnMalformed func(err error)
}

// NewReassembler decodes against table, the catalog of the peer's type.
func NewReassembler(table message.Table, limits Limits) *Reassembler {
	return &Reassembler{table: table, limits: limits}
}

// Feed appends chunk to the retained tail and drains every complete message.
//
// A returned error means the stream is out of sync (ErrUnknownMessage,
// ErrDesync) or too much was buffered (ErrBufferOverflow). Messages decoded
// before the failure are still returned and the connection should then be
// closed.
func (r *Reassembler) Feed(chunk []byte) ([]*message.Message, error) {
	r.buf = append(r.buf, chunk...)
	var out []*message.Message
	rest := r.buf
	for len(rest) > 0 {
		m, tail, err := message.Deserialize(rest, r.table)
		if err != nil {
			if errors.Is(err, message.ErrIncomplete) {
				break
			}
			if errors.Is(err, message.ErrMalformed) && len(tail) < len(rest) {
				if r.OnMalformed != nil {
					r.OnMalformed(err)
				}
				rest = tail
				continue
			}
			r.retain(rest)
			return out, err
		}
		out = append(out, m)
		rest = tail
	}
	r.retain(rest)
	if r.limits.MaxBufferedBytes > 0 && len(r.buf) > r.limits.MaxBufferedBytes {
		return out, fmt.Errorf("%d bytes: %w", len(r.buf), ErrBufferOverflow)
	}
	return out, nil
}

// Buffered is the size of the retained tail.
func (r *Reassembler) Buffered() int { return len(r.buf) }

func (r *Reassembler) retain(rest []byte) {
	if len(rest) == 0 {
		r.buf = r.buf[:0]
		return
	}
	r.buf = append([]byte(nil), rest...)
}

// BodyReassembler is the prefix-less variant: every frame on the stream is a
// dataOnly encoding of the same descriptor.
type BodyReassembler struct {
	desc   *message.Descriptor
	limits Limits
	buf    []byte
}

func NewBodyReassembler(desc *message.Descriptor, limits Limits) *BodyReassembler {
	return &BodyReassembler{desc: desc, limits: limits}
}

// Feed appends chunk and drains every complete frame.
func (r *BodyReassembler) Feed(chunk []byte) ([]*message.Message, error) {
	r.buf = append(r.buf, chunk...)
	var out []*message.Message
	rest := r.buf
	for len(rest) > 0 {
		m, tail, err := message.DeserializeBody(rest, r.desc)
		if err != nil {
			if errors.Is(err, message.ErrIncomplete) {
				break
			}
			r.buf = append([]byte(nil), rest...)
			return out, err
		}
		out = append(out, m)
		rest = tail
	}
	r.buf = append([]byte(nil), rest...)
	if r.limits.MaxBufferedBytes > 0 && len(r.buf) > r.limits.MaxBufferedBytes {
		return out, fmt.Errorf("%d bytes: %w", len(r.buf), ErrBufferOverflow)
	}
	return out, nil
}

// Buffered is the size of the retained tail.
func (r *BodyReassembler) Buffered() int { return len(r.buf) }
