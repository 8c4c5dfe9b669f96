package http1

import (
	"io"

	"github.com/indigo-web/h1/http"
	"github.com/indigo-web/h1/http/status"
	"github.com/indigo-web/h1/transport"
)

// Body pulls raw data off the wire and feeds it through the payload decoder,
// implementing http.Retriever. Leftover bytes past the body boundary are
// pushed back into the client for the next message head.
type Body struct {
	client     transport.Client
	decoder    *PayloadDecoder
	maxSize    uint
	received   uint
	untilClose bool
	pending    error
}

func NewBody(client transport.Client, decoder *PayloadDecoder, maxSize uint) *Body {
	return &Body{
		client:  client,
		decoder: decoder,
		maxSize: maxSize,
	}
}

// Init arms the body source for a freshly parsed request. Chunked framing
// always takes precedence over Content-Length.
func (b *Body) Init(request *http.Request) {
	b.received = 0
	b.pending = nil
	b.untilClose = false

	switch {
	case request.Chunked:
		b.decoder.Reset(PayloadChunked, 0, request.HasTrailer)
	case request.ContentLength > 0:
		b.decoder.Reset(PayloadSized, request.ContentLength, false)
		if request.ContentLength > b.maxSize {
			b.pending = status.ErrBodyTooLarge
		}
	default:
		b.decoder.Reset(PayloadNone, 0, false)
		b.pending = io.EOF
	}
}

// InitUntilClose arms the body source for a close-delimited stream, where the
// body lasts until the peer shuts the connection down.
func (b *Body) InitUntilClose() {
	b.received = 0
	b.pending = nil
	b.untilClose = true
	b.decoder.Reset(PayloadUntilClose, 0, false)
}

func (b *Body) Retrieve() ([]byte, error) {
	if b.pending != nil {
		return nil, b.pending
	}

	for {
		data, err := b.client.Read()
		if err != nil {
			if b.untilClose && err == io.EOF {
				return nil, io.EOF
			}

			if err == io.EOF {
				// the peer closed before completing the body. Reporting a
				// plain EOF here would pass the truncated body off as whole
				err = status.ErrCloseConnection
			}

			b.pending = err

			return nil, err
		}

		chunk, extra, err := b.decoder.Decode(data)
		if err != nil && err != io.EOF {
			if _, ok := err.(status.HTTPError); !ok {
				// chunkedbody reports framing faults with errors of its own,
				// which would otherwise be blamed on the server
				err = status.ErrBadChunk
			}

			b.pending = err

			return nil, err
		}

		b.client.Unread(extra)

		b.received += uint(len(chunk))
		if b.received > b.maxSize {
			b.pending = status.ErrBodyTooLarge
			return nil, status.ErrBodyTooLarge
		}

		if err == io.EOF {
			b.pending = io.EOF
			return chunk, io.EOF
		}

		if len(chunk) > 0 {
			return chunk, nil
		}
	}
}
