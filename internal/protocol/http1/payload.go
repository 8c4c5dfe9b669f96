package http1

import (
	"io"

	"github.com/indigo-web/chunkedbody"
)

// PayloadType is the framing mode of a message body, derived from its head.
type PayloadType uint8

const (
	// PayloadNone means the message carries no body at all.
	PayloadNone PayloadType = iota
	// PayloadSized means the body spans exactly Content-Length bytes.
	PayloadSized
	// PayloadChunked means the body is chunk-framed until a zero-sized chunk.
	PayloadChunked
	// PayloadUntilClose means the body lasts until the peer closes the
	// connection. Response-side only; a request can never be framed this way.
	PayloadUntilClose
)

// PayloadDecoder cuts body chunks out of raw buffers according to the current
// framing mode. It never blocks and never reads by itself: given a buffer, it
// consumes what it can and hands the rest back via extra. The way the input is
// split across calls does not affect the decoded output.
type PayloadDecoder struct {
	chunked   *chunkedbody.Parser
	kind      PayloadType
	remaining uint
	trailer   bool
}

func NewPayloadDecoder(chunked *chunkedbody.Parser) *PayloadDecoder {
	return &PayloadDecoder{chunked: chunked}
}

// Reset arms the decoder for a new body. The length argument matters for
// PayloadSized only.
func (p *PayloadDecoder) Reset(kind PayloadType, length uint, trailer bool) {
	p.kind = kind
	p.remaining = length
	p.trailer = trailer
}

// Decode consumes as much of data as the framing allows, returning a body
// chunk (possibly empty if more bytes are needed) and the unconsumed leftover.
// io.EOF signals the body is complete; the leftover then belongs to the next
// message. For PayloadUntilClose the decoder never signals io.EOF by itself:
// only the connection closing ends such a body, and that is the caller's call.
func (p *PayloadDecoder) Decode(data []byte) (chunk, extra []byte, err error) {
	switch p.kind {
	case PayloadNone:
		return nil, data, io.EOF
	case PayloadSized:
		if p.remaining == 0 {
			return nil, data, io.EOF
		}

		if uint(len(data)) >= p.remaining {
			chunk, extra = data[:p.remaining], data[p.remaining:]
			p.remaining = 0

			return chunk, extra, io.EOF
		}

		p.remaining -= uint(len(data))

		return data, nil, nil
	case PayloadChunked:
		return p.chunked.Parse(data, p.trailer)
	case PayloadUntilClose:
		return data, nil, nil
	default:
		panic("BUG: payload decoder: unknown framing mode")
	}
}
