package http1

import (
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/indigo-web/h1/config"
	"github.com/indigo-web/h1/http"
	"github.com/indigo-web/h1/http/status"
	"github.com/indigo-web/h1/transport"
	"github.com/indigo-web/h1/transport/dummy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(cb Callbacks, pieces ...[]byte) *dummy.Client {
	cfg := config.Default()
	client := dummy.NewClient(pieces...)
	Initialize(&cfg, cb, client).Serve()

	return client
}

func echo(request *http.Request) (*http.Response, error) {
	body, err := request.Body.String()
	if err != nil {
		return nil, err
	}

	return http.Respond(request).String(body), nil
}

func TestSuit(t *testing.T) {
	t.Run("simple GET", func(t *testing.T) {
		var served int
		client := serve(Callbacks{
			Handler: func(request *http.Request) (*http.Response, error) {
				served++
				return http.Respond(request).String("Hello, world!"), nil
			},
		}, []byte("GET / HTTP/1.1\r\n\r\n"))

		require.Equal(t, 1, served)
		want := "HTTP/1.1 200 OK\r\nConnection: keep-alive\r\nContent-Length: 13\r\n\r\nHello, world!"
		require.Equal(t, want, string(client.Written))
	})

	t.Run("pipelined requests in a single piece", func(t *testing.T) {
		var paths []string
		client := serve(Callbacks{
			Handler: func(request *http.Request) (*http.Response, error) {
				paths = append(paths, request.Path)
				return http.Respond(request), nil
			},
		}, []byte("GET /first HTTP/1.1\r\n\r\nGET /second HTTP/1.1\r\n\r\n"))

		require.Equal(t, []string{"/first", "/second"}, paths)
		require.Equal(t, 2, strings.Count(string(client.Written), "200 OK"))
	})

	t.Run("POST body echo", func(t *testing.T) {
		client := serve(Callbacks{Handler: echo},
			[]byte("POST / HTTP/1.1\r\nContent-Length: 13\r\n\r\n"),
			[]byte("Hello, world!"),
		)

		require.True(t, strings.HasSuffix(string(client.Written), "\r\n\r\nHello, world!"),
			string(client.Written))
	})

	t.Run("chunked body echo", func(t *testing.T) {
		raw := "POST / HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n" +
			"5\r\nHello\r\n8\r\n, world!\r\n0\r\n\r\n"
		client := serve(Callbacks{Handler: echo}, []byte(raw))

		require.True(t, strings.HasSuffix(string(client.Written), "\r\n\r\nHello, world!"),
			string(client.Written))
	})

	t.Run("unread body is drained between requests", func(t *testing.T) {
		var served int
		client := serve(Callbacks{
			Handler: func(request *http.Request) (*http.Response, error) {
				served++
				// the body is deliberately ignored here
				return http.Respond(request), nil
			},
		}, []byte("POST /first HTTP/1.1\r\nContent-Length: 5\r\n\r\nHelloGET /second HTTP/1.1\r\n\r\n"))

		require.Equal(t, 2, served)
		require.Equal(t, 2, strings.Count(string(client.Written), "200 OK"))
	})

	t.Run("connection close stops serving", func(t *testing.T) {
		var served int
		client := serve(Callbacks{
			Handler: func(request *http.Request) (*http.Response, error) {
				served++
				return http.Respond(request), nil
			},
		}, []byte("GET / HTTP/1.1\r\nConnection: close\r\n\r\nGET /ignored HTTP/1.1\r\n\r\n"))

		require.Equal(t, 1, served)
		require.Contains(t, string(client.Written), "Connection: close\r\n")
	})

	t.Run("http10 closes by default", func(t *testing.T) {
		var served int
		client := serve(Callbacks{
			Handler: func(request *http.Request) (*http.Response, error) {
				served++
				return http.Respond(request), nil
			},
		}, []byte("GET / HTTP/1.0\r\n\r\n"))

		require.Equal(t, 1, served)
		require.True(t, strings.HasPrefix(string(client.Written), "HTTP/1.0 200 OK\r\n"))
		require.Contains(t, string(client.Written), "Connection: close\r\n")
	})

	t.Run("HEAD response has no body", func(t *testing.T) {
		client := serve(Callbacks{
			Handler: func(request *http.Request) (*http.Response, error) {
				return http.Respond(request).String("Hello, world!"), nil
			},
		}, []byte("HEAD / HTTP/1.1\r\n\r\n"))

		require.Contains(t, string(client.Written), "Content-Length: 13\r\n")
		require.True(t, strings.HasSuffix(string(client.Written), "\r\n\r\n"), string(client.Written))
	})

	t.Run("malformed request gets an error page", func(t *testing.T) {
		client := serve(Callbacks{
			Handler: func(request *http.Request) (*http.Response, error) {
				t.Fatal("the handler must never see a malformed request")
				return nil, nil
			},
		}, []byte("GET / HTTP/1.2\r\n\r\n"))

		require.Contains(t, string(client.Written), "505")
		require.Contains(t, string(client.Written), "Connection: close\r\n")
	})

	t.Run("declined error render falls back to a coded response", func(t *testing.T) {
		client := serve(Callbacks{
			Handler: echo,
			OnError: func(request *http.Request, err error) *http.Response {
				return nil
			},
		}, []byte("GET / HTTP/1.2\r\n\r\n"))

		written := string(client.Written)
		require.Contains(t, written, "505")
		require.Contains(t, written, "Connection: close\r\n")
	})

	t.Run("malformed chunk mid-body", func(t *testing.T) {
		raw := "POST / HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\nzz\r\nHello\r\n"
		client := serve(Callbacks{Handler: echo}, []byte(raw))

		written := string(client.Written)
		require.Contains(t, written, "400")
		require.Contains(t, written, "Connection: close\r\n")
	})

	t.Run("expect continue accepted", func(t *testing.T) {
		client := serve(Callbacks{Handler: echo},
			[]byte("POST / HTTP/1.1\r\nExpect: 100-continue\r\nContent-Length: 5\r\n\r\n"),
			[]byte("Hello"),
		)

		written := string(client.Written)
		require.True(t, strings.HasPrefix(written, "HTTP/1.1 100 Continue\r\n\r\n"), written)
		require.Contains(t, written, "200 OK")
		require.True(t, strings.HasSuffix(written, "\r\n\r\nHello"), written)
	})

	t.Run("expect continue rejected", func(t *testing.T) {
		var served int
		client := serve(Callbacks{
			Handler: func(request *http.Request) (*http.Response, error) {
				served++
				return http.Respond(request), nil
			},
			Expect: func(request *http.Request) error {
				return status.ErrUnsupportedExpectation
			},
		}, []byte("POST / HTTP/1.1\r\nExpect: 100-continue\r\nContent-Length: 5\r\n\r\n"))

		require.Equal(t, 0, served)
		written := string(client.Written)
		require.NotContains(t, written, "100 Continue")
		require.Contains(t, written, "417")
	})

	t.Run("upgrade handoff", func(t *testing.T) {
		var gotRaw string
		client := serve(Callbacks{
			Handler: func(request *http.Request) (*http.Response, error) {
				t.Fatal("the handler must not be invoked on an upgrade")
				return nil, nil
			},
			Upgrade: func(request *http.Request, conn transport.Client) error {
				data, err := conn.Read()
				require.NoError(t, err)
				gotRaw = string(data)
				return nil
			},
		}, []byte("GET / HTTP/1.1\r\nConnection: upgrade\r\nUpgrade: tcp\r\n\r\nraw bytes"))

		require.Equal(t, "raw bytes", gotRaw)
		written := string(client.Written)
		require.True(t, strings.HasPrefix(written, "HTTP/1.1 101 Switching Protocols\r\n"), written)
		require.Contains(t, written, "Connection: upgrade\r\n")
		require.Contains(t, written, "Upgrade: tcp\r\n")
	})

	t.Run("upgrade without a taker is plain http", func(t *testing.T) {
		var served int
		client := serve(Callbacks{
			Handler: func(request *http.Request) (*http.Response, error) {
				served++
				return http.Respond(request), nil
			},
		}, []byte("GET / HTTP/1.1\r\nConnection: upgrade\r\nUpgrade: tcp\r\n\r\n"))

		require.Equal(t, 1, served)
		require.NotContains(t, string(client.Written), "101")
	})

	t.Run("hijack detaches the connection", func(t *testing.T) {
		var hijacked transport.Client
		client := serve(Callbacks{
			Handler: func(request *http.Request) (*http.Response, error) {
				conn, err := request.Hijack()
				require.NoError(t, err)
				hijacked = conn

				return http.Respond(request), nil
			},
		}, []byte("GET / HTTP/1.1\r\n\r\nleftover"))

		require.NotNil(t, hijacked)
		// no response is written on a hijacked connection
		assert.Empty(t, client.Written)
	})

	t.Run("handler error tears the connection down", func(t *testing.T) {
		client := serve(Callbacks{
			Handler: func(request *http.Request) (*http.Response, error) {
				return nil, status.ErrInternalServerError
			},
		}, []byte("GET / HTTP/1.1\r\n\r\nGET /ignored HTTP/1.1\r\n\r\n"))

		written := string(client.Written)
		require.Contains(t, written, "500")
		require.Contains(t, written, "Connection: close\r\n")
		require.Equal(t, 1, strings.Count(written, "HTTP/1.1"))
	})

	t.Run("on disconnect", func(t *testing.T) {
		var fired bool
		serve(Callbacks{
			Handler: func(request *http.Request) (*http.Response, error) {
				return http.Respond(request), nil
			},
			OnDisconnect: func(request *http.Request) *http.Response {
				fired = true
				return nil
			},
		}, []byte("GET / HTTP/1.1\r\n\r\n"))

		require.True(t, fired)
	})

	t.Run("idle connection times out", func(t *testing.T) {
		tuned := config.Default()
		tuned.NET.IdleTimeout = 20 * time.Millisecond
		tuned.NET.ShutdownTimeout = 20 * time.Millisecond

		server, peer := net.Pipe()
		client := transport.NewClient(server, tuned.NET.HeadReadTimeout, make([]byte, tuned.NET.ReadBufferSize))

		done := make(chan struct{})
		go func() {
			Initialize(&tuned, Callbacks{Handler: echo}, client).Serve()
			close(done)
		}()

		// the peer stays completely silent, so the connection must go down
		// with nothing written to it
		require.NoError(t, peer.SetReadDeadline(time.Now().Add(time.Second)))
		_, err := peer.Read(make([]byte, 1))
		require.ErrorIs(t, err, io.EOF)
		<-done
	})

	t.Run("stalled head gets request timeout", func(t *testing.T) {
		tuned := config.Default()
		tuned.NET.HeadReadTimeout = 20 * time.Millisecond
		tuned.NET.ShutdownTimeout = 20 * time.Millisecond

		server, peer := net.Pipe()
		client := transport.NewClient(server, tuned.NET.HeadReadTimeout, make([]byte, tuned.NET.ReadBufferSize))

		done := make(chan struct{})
		go func() {
			Initialize(&tuned, Callbacks{Handler: echo}, client).Serve()
			close(done)
		}()

		_, err := peer.Write([]byte("GET / HT"))
		require.NoError(t, err)

		require.NoError(t, peer.SetReadDeadline(time.Now().Add(time.Second)))
		response, err := io.ReadAll(peer)
		require.NoError(t, err)
		require.Contains(t, string(response), "408")
		require.Contains(t, string(response), "Connection: close\r\n")
		<-done
	})
}
