package http

import (
	"io"

	"github.com/indigo-web/utils/uf"
	json "github.com/json-iterator/go"
)

type BodyCallback func([]byte) error

// Retriever is implemented by the protocol layer. Each call returns the next
// decoded piece of the message body; io.EOF accompanies the last piece (which
// may be empty).
type Retriever interface {
	Retrieve() ([]byte, error)
}

// Body is a lazy single-consumption forward-only source of request body
// chunks. It is not restartable: once a piece is consumed, it's gone.
type Body struct {
	retriever Retriever
	buff      []byte
	pending   []byte
	error     error
	eof       bool
}

func NewBody(retriever Retriever) *Body {
	return &Body{retriever: retriever}
}

// Reset prepares the body for the next message on the connection. The
// protocol layer calls it after its own Retriever is re-armed.
func (b *Body) Reset() {
	b.buff = b.buff[:0]
	b.pending = nil
	b.error = nil
	b.eof = false
}

// Retrieve returns the next piece of the body. io.EOF signals the body is
// complete; any other error is fatal for the body (and sticky).
func (b *Body) Retrieve() ([]byte, error) {
	if b.error != nil {
		return nil, b.error
	}
	if b.eof {
		return nil, io.EOF
	}

	data, err := b.retriever.Retrieve()
	switch err {
	case nil:
	case io.EOF:
		b.eof = true
	default:
		b.error = err
	}

	return data, err
}

// Callback invokes cb for every piece of the body until it ends. An error
// returned by the callback is passed back to the caller and stops the feed.
//
// Note: the data passed to the callback is valid only for the duration of the
// call.
func (b *Body) Callback(cb BodyCallback) error {
	for {
		data, err := b.Retrieve()
		switch err {
		case nil:
		case io.EOF:
			if len(data) > 0 {
				return cb(data)
			}

			return nil
		default:
			return err
		}

		if len(data) == 0 {
			continue
		}

		if err = cb(data); err != nil {
			return err
		}
	}
}

// Bytes returns the whole body at once. The returned slice is reused between
// requests on the same connection.
func (b *Body) Bytes() ([]byte, error) {
	if len(b.buff) > 0 {
		return b.buff, nil
	}

	err := b.Callback(func(data []byte) error {
		b.buff = append(b.buff, data...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return b.buff, nil
}

// String returns the whole body as a string, sharing memory with Bytes.
func (b *Body) String() (string, error) {
	bytes, err := b.Bytes()
	return uf.B2S(bytes), err
}

// JSON convoys the body to a json unmarshaller automatically.
func (b *Body) JSON(model any) error {
	data, err := b.Bytes()
	if err != nil {
		return err
	}

	iterator := json.ConfigDefault.BorrowIterator(data)
	iterator.ReadVal(model)
	err = iterator.Error
	json.ConfigDefault.ReturnIterator(iterator)

	return err
}

// Discard silently consumes the rest of the body. The connection must be fully
// drained before the next pipelined head may be parsed.
func (b *Body) Discard() error {
	for {
		_, err := b.Retrieve()
		switch err {
		case nil:
		case io.EOF:
			return nil
		default:
			return err
		}
	}
}

// Read implements io.Reader over the body.
func (b *Body) Read(into []byte) (n int, err error) {
	if len(b.pending) == 0 {
		b.pending, err = b.Retrieve()
		if err != nil && err != io.EOF {
			return 0, err
		}
	}

	n = copy(into, b.pending)
	b.pending = b.pending[n:]

	if len(b.pending) == 0 && b.eof {
		return n, io.EOF
	}

	return n, nil
}
