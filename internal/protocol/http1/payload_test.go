package http1

import (
	"io"
	"strings"
	"testing"

	"github.com/indigo-web/chunkedbody"
	"github.com/indigo-web/h1/config"
	"github.com/indigo-web/h1/http"
	"github.com/indigo-web/h1/http/status"
	"github.com/indigo-web/h1/kv"
	"github.com/indigo-web/h1/transport/dummy"
	"github.com/stretchr/testify/require"
)

func getDecoder() *PayloadDecoder {
	return NewPayloadDecoder(chunkedbody.NewParser(chunkedbody.DefaultSettings()))
}

// collect feeds the pieces into the decoder and glues the output together.
func collect(t *testing.T, d *PayloadDecoder, pieces ...[]byte) (body string, extra []byte) {
	var sb strings.Builder

	for i, piece := range pieces {
		for len(piece) > 0 || i == len(pieces)-1 {
			chunk, rest, err := d.Decode(piece)
			sb.Write(chunk)

			if err == io.EOF {
				return sb.String(), rest
			}

			require.NoError(t, err)

			if len(rest) == 0 {
				break
			}

			piece = rest
		}
	}

	t.Fatal("the decoder never signaled the end of the body")
	return "", nil
}

func TestPayloadDecoder(t *testing.T) {
	t.Run("no body", func(t *testing.T) {
		d := getDecoder()
		d.Reset(PayloadNone, 0, false)

		chunk, extra, err := d.Decode([]byte("GET / HTTP/1.1\r\n\r\n"))
		require.ErrorIs(t, err, io.EOF)
		require.Empty(t, chunk)
		require.Equal(t, "GET / HTTP/1.1\r\n\r\n", string(extra))
	})

	t.Run("sized whole", func(t *testing.T) {
		d := getDecoder()
		d.Reset(PayloadSized, 13, false)

		chunk, extra, err := d.Decode([]byte("Hello, world!leftover"))
		require.ErrorIs(t, err, io.EOF)
		require.Equal(t, "Hello, world!", string(chunk))
		require.Equal(t, "leftover", string(extra))
	})

	t.Run("sized zero", func(t *testing.T) {
		d := getDecoder()
		d.Reset(PayloadSized, 0, false)

		chunk, _, err := d.Decode(nil)
		require.ErrorIs(t, err, io.EOF)
		require.Empty(t, chunk)
	})

	t.Run("sized byte at a time", func(t *testing.T) {
		payload := "Hello, world!"
		d := getDecoder()
		d.Reset(PayloadSized, uint(len(payload)), false)

		var sb strings.Builder
		for i := 0; i < len(payload); i++ {
			chunk, extra, err := d.Decode([]byte(payload[i : i+1]))
			sb.Write(chunk)
			require.Empty(t, extra)

			if i+1 < len(payload) {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, io.EOF)
			}
		}

		require.Equal(t, payload, sb.String())
	})

	t.Run("chunked whole", func(t *testing.T) {
		raw := "d\r\nHello, world!\r\n1a\r\nbut what's wrong with you?\n\r\n0\r\n\r\nrest"
		d := getDecoder()
		d.Reset(PayloadChunked, 0, false)

		body, extra := collect(t, d, []byte(raw))
		require.Equal(t, "Hello, world!but what's wrong with you?\n", body)
		require.Equal(t, "rest", string(extra))
	})

	t.Run("chunked byte at a time", func(t *testing.T) {
		raw := "d\r\nHello, world!\r\n1a\r\nbut what's wrong with you?\n\r\n0\r\n\r\n"
		d := getDecoder()
		d.Reset(PayloadChunked, 0, false)

		pieces := splitIntoParts([]byte(raw), 1)
		body, extra := collect(t, d, pieces...)
		require.Equal(t, "Hello, world!but what's wrong with you?\n", body)
		require.Empty(t, extra)
	})

	t.Run("malformed chunk size", func(t *testing.T) {
		d := getDecoder()
		d.Reset(PayloadChunked, 0, false)

		_, _, err := d.Decode([]byte("zz\r\nHello\r\n"))
		require.Error(t, err)
		require.NotErrorIs(t, err, io.EOF)
	})

	t.Run("until close", func(t *testing.T) {
		d := getDecoder()
		d.Reset(PayloadUntilClose, 0, false)

		chunk, extra, err := d.Decode([]byte("anything at all"))
		require.NoError(t, err)
		require.Equal(t, "anything at all", string(chunk))
		require.Empty(t, extra)
	})
}

func getBody(cfg *config.Config, client *dummy.Client) (*Body, *http.Request) {
	body := NewBody(client, getDecoder(), cfg.Body.MaxSize)
	request := http.NewRequest(kv.New(), http.NewBody(body), client)

	return body, request
}

func TestBody(t *testing.T) {
	cfg := config.Default()

	t.Run("sized across pieces", func(t *testing.T) {
		client := dummy.NewClient([]byte("Hello, "), []byte("world!"))
		body, request := getBody(&cfg, client)
		request.ContentLength = 13
		body.Init(request)

		full, err := request.Body.String()
		require.NoError(t, err)
		require.Equal(t, "Hello, world!", full)
	})

	t.Run("no body is instant eof", func(t *testing.T) {
		// the client would report io.EOF on a read attempt, but the body must
		// not even try: an empty body is complete from the very beginning
		client := dummy.NewClient()
		body, request := getBody(&cfg, client)
		body.Init(request)

		chunk, err := body.Retrieve()
		require.ErrorIs(t, err, io.EOF)
		require.Empty(t, chunk)
	})

	t.Run("leftover is pushed back", func(t *testing.T) {
		client := dummy.NewClient([]byte("Hello!GET /next HTTP/1.1\r\n\r\n"))
		body, request := getBody(&cfg, client)
		request.ContentLength = 6
		body.Init(request)

		full, err := request.Body.String()
		require.NoError(t, err)
		require.Equal(t, "Hello!", full)

		data, err := client.Read()
		require.NoError(t, err)
		require.Equal(t, "GET /next HTTP/1.1\r\n\r\n", string(data))
	})

	t.Run("declared length over the limit", func(t *testing.T) {
		tuned := config.Default()
		tuned.Body.MaxSize = 10

		client := dummy.NewClient([]byte("Hello, world!"))
		body, request := getBody(&tuned, client)
		request.ContentLength = 13
		body.Init(request)

		_, err := body.Retrieve()
		require.ErrorIs(t, err, status.ErrBodyTooLarge)
	})

	t.Run("chunked overflows the limit", func(t *testing.T) {
		tuned := config.Default()
		tuned.Body.MaxSize = 5

		client := dummy.NewClient([]byte("d\r\nHello, world!\r\n0\r\n\r\n"))
		body, request := getBody(&tuned, client)
		request.Chunked = true
		body.Init(request)

		_, err := request.Body.Bytes()
		require.ErrorIs(t, err, status.ErrBodyTooLarge)
	})

	t.Run("malformed chunk is a bad request", func(t *testing.T) {
		client := dummy.NewClient([]byte("zz\r\nHello\r\n"))
		body, request := getBody(&cfg, client)
		request.Chunked = true
		body.Init(request)

		_, err := body.Retrieve()
		require.ErrorIs(t, err, status.ErrBadChunk)

		// the verdict must not change on a retry
		_, err = body.Retrieve()
		require.ErrorIs(t, err, status.ErrBadChunk)
	})

	t.Run("chunked with pipelined head behind", func(t *testing.T) {
		client := dummy.NewClient([]byte("5\r\nHello\r\n0\r\n\r\nGET / HTTP/1.1\r\n\r\n"))
		body, request := getBody(&cfg, client)
		request.Chunked = true
		body.Init(request)

		full, err := request.Body.String()
		require.NoError(t, err)
		require.Equal(t, "Hello", full)

		data, err := client.Read()
		require.NoError(t, err)
		require.Equal(t, "GET / HTTP/1.1\r\n\r\n", string(data))
	})

	t.Run("until close", func(t *testing.T) {
		client := dummy.NewClient([]byte("Hello, "), []byte("world!"))
		body, request := getBody(&cfg, client)
		body.InitUntilClose()

		full, err := request.Body.String()
		require.NoError(t, err)
		require.Equal(t, "Hello, world!", full)
	})
}
