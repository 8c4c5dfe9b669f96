package http

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedRetriever replays the given pieces, attaching io.EOF to the last one.
type scriptedRetriever struct {
	pieces [][]byte
}

func (s *scriptedRetriever) Retrieve() ([]byte, error) {
	if len(s.pieces) == 0 {
		return nil, io.EOF
	}

	piece := s.pieces[0]
	s.pieces = s.pieces[1:]

	if len(s.pieces) == 0 {
		return piece, io.EOF
	}

	return piece, nil
}

func getBody(pieces ...string) *Body {
	raw := make([][]byte, len(pieces))
	for i := range pieces {
		raw[i] = []byte(pieces[i])
	}

	return NewBody(&scriptedRetriever{pieces: raw})
}

func TestBody(t *testing.T) {
	t.Run("bytes", func(t *testing.T) {
		body := getBody("Hello, ", "world!")
		data, err := body.Bytes()
		require.NoError(t, err)
		require.Equal(t, "Hello, world!", string(data))
	})

	t.Run("string", func(t *testing.T) {
		body := getBody("Hello")
		str, err := body.String()
		require.NoError(t, err)
		require.Equal(t, "Hello", str)
	})

	t.Run("empty body", func(t *testing.T) {
		body := getBody()
		data, err := body.Bytes()
		require.NoError(t, err)
		require.Empty(t, data)
	})

	t.Run("callback receives every piece", func(t *testing.T) {
		body := getBody("one", "two", "three")

		var got []string
		err := body.Callback(func(data []byte) error {
			got = append(got, string(data))
			return nil
		})
		require.NoError(t, err)
		require.Equal(t, []string{"one", "two", "three"}, got)
	})

	t.Run("eof is sticky", func(t *testing.T) {
		body := getBody("data")
		require.NoError(t, body.Discard())

		piece, err := body.Retrieve()
		require.ErrorIs(t, err, io.EOF)
		require.Empty(t, piece)
	})

	t.Run("reader", func(t *testing.T) {
		body := getBody("Hello, ", "world!")
		data, err := io.ReadAll(body)
		require.NoError(t, err)
		require.Equal(t, "Hello, world!", string(data))
	})

	t.Run("json", func(t *testing.T) {
		body := getBody(`{"hello": "world"}`)

		var model struct {
			Hello string `json:"hello"`
		}
		require.NoError(t, body.JSON(&model))
		assert.Equal(t, "world", model.Hello)
	})

	t.Run("reset re-arms the source", func(t *testing.T) {
		body := getBody("first")
		require.NoError(t, body.Discard())

		body.retriever = &scriptedRetriever{pieces: [][]byte{[]byte("second")}}
		body.Reset()

		str, err := body.String()
		require.NoError(t, err)
		require.Equal(t, "second", str)
	})
}
