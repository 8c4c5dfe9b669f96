package http1

import (
	"net"
	"time"

	"github.com/indigo-web/chunkedbody"
	"github.com/indigo-web/h1/config"
	"github.com/indigo-web/h1/http"
	"github.com/indigo-web/h1/http/proto"
	"github.com/indigo-web/h1/http/status"
	"github.com/indigo-web/h1/internal/buffer"
	"github.com/indigo-web/h1/kv"
	"github.com/indigo-web/h1/transport"
)

// Callbacks bundles everything the dispatcher may call back into. Handler is
// the only compulsory member.
type Callbacks struct {
	// Handler produces a response for every complete request.
	Handler http.Handler
	// OnError renders protocol and handler failures into responses. When nil,
	// a plain error page with the matching code is used.
	OnError http.ErrorHandler
	// Expect decides the fate of Expect: 100-continue requests before their
	// bodies are read. When nil, all expectations are accepted.
	Expect http.ExpectHandler
	// Upgrade takes over the raw connection after a successful upgrade
	// negotiation. When nil, upgrade requests are served as ordinary ones.
	Upgrade http.UpgradeHandler
	// OnDisconnect is called once right before the connection goes down.
	OnDisconnect http.OnDisconnect
}

// Suit drives a single connection: reads and parses request heads, routes the
// bodies, invokes the handler and serializes its responses, deciding after
// every exchange whether the connection lives on.
type Suit struct {
	*Codec
	cfg      *config.Config
	cb       Callbacks
	client   transport.Client
	request  *http.Request
	body     *Body
	interim  *http.Response
}

func New(
	cfg *config.Config,
	cb Callbacks,
	request *http.Request,
	body *Body,
	client transport.Client,
	codec *Codec,
) *Suit {
	if cb.OnError == nil {
		cb.OnError = func(request *http.Request, err error) *http.Response {
			return http.Respond(request).Error(err)
		}
	}

	return &Suit{
		Codec:   codec,
		cfg:     cfg,
		cb:      cb,
		client:  client,
		request: request,
		body:    body,
		interim: http.NewResponse(),
	}
}

// Initialize assembles a whole dispatcher around a connected client.
func Initialize(cfg *config.Config, cb Callbacks, client transport.Client) *Suit {
	keyBuff := buffer.New(cfg.Headers.Space.Default, cfg.Headers.Space.Maximal)
	valBuff := buffer.New(cfg.Headers.Space.Default, cfg.Headers.Space.Maximal)
	startLineBuff := buffer.New(cfg.URI.RequestLineSize.Default, cfg.URI.RequestLineSize.Maximal)

	decoder := NewPayloadDecoder(chunkedbody.NewParser(chunkedbody.DefaultSettings()))
	body := NewBody(client, decoder, cfg.Body.MaxSize)
	headers := kv.NewPrealloc(cfg.Headers.Number.Default)
	request := http.NewRequest(headers, http.NewBody(body), client)

	parser := NewParser(request, keyBuff, valBuff, startLineBuff, cfg.Headers)
	respBuff := make([]byte, 0, cfg.NET.WriteBufferSize.Default)
	serializer := NewSerializer(
		respBuff, cfg.NET.WriteBufferSize.Maximal, cfg.NET.ReadBufferSize, cfg.Headers.Default,
	)
	codec := NewCodec(parser, serializer, request, cfg.NET.KeepAlive, cb.Upgrade != nil)

	return New(cfg, cb, request, body, client, codec)
}

// Serve processes requests on the connection until it is to be closed, then
// closes it.
func (s *Suit) Serve() {
	for s.serveOnce() {
	}

	if s.cb.OnDisconnect != nil && !s.request.WasHijacked() {
		if resp := s.cb.OnDisconnect(s.request); resp != nil {
			_ = s.Serializer.Write(
				fallbackProto(s.request.Proto), resp.Reveal(), ConnectionClose, false, s.client,
			)
		}
	}

	s.shutdown()
}

// serveOnce carries a single request through its whole lifecycle, reporting
// whether the connection survives it.
func (s *Suit) serveOnce() (ok bool) {
	req := s.request
	client := s.client

	client.SetReadTimeout(s.cfg.NET.IdleTimeout)
	midHead := false

	for {
		data, err := client.Read()
		if err != nil {
			if midHead && isTimeout(err) {
				// the peer stalled in the middle of a request head
				s.respondError(status.ErrRequestTimeout)
			}

			return false
		}

		if !midHead {
			// the head has begun, re-arm the deadline to bound it as a whole
			client.SetReadTimeout(s.cfg.NET.HeadReadTimeout)
			midHead = true
		}

		done, extra, err := s.Parse(data)
		if err != nil {
			s.respondError(err)
			return false
		}

		if !done {
			continue
		}

		client.Unread(extra)
		break
	}

	s.body.Init(req)
	req.Body.Reset()

	if req.ExpectsContinue {
		proceed, alive := s.handleExpectation()
		if !proceed {
			return alive
		}
	}

	if s.ConnectionType() == ConnectionUpgrade {
		s.performUpgrade()
		return false
	}

	resp, err := s.cb.Handler(req)
	if err != nil {
		s.respondError(err)
		return false
	}

	resp = notNil(req, resp)

	if req.WasHijacked() {
		// once the connection is hijacked, intruding any further would tear
		// somebody else's byte stream
		return false
	}

	if err = s.Codec.Write(resp, client); err != nil {
		// if writing the response failed, there is no point in trying to
		// write anything ever again
		return false
	}

	if err = req.Reset(); err != nil {
		// Reset can fail only due to a read error while draining the body,
		// which dooms the connection
		return false
	}

	s.EndStream()

	return s.ConnectionType() == ConnectionKeepAlive
}

// handleExpectation either encourages the peer to send the body along or
// rejects the request before the body is ever read. proceed tells whether the
// request advances to the handler; when it doesn't, alive tells whether the
// connection survives for the next one.
func (s *Suit) handleExpectation() (proceed, alive bool) {
	req := s.request

	if s.cb.Expect != nil {
		if err := s.cb.Expect(req); err != nil {
			resp := s.errorResponse(err)
			if s.Codec.Write(resp, s.client) != nil {
				return false, false
			}

			// the rejected body must still be either drained or abandoned
			// along with the connection
			if req.Reset() != nil {
				return false, false
			}

			s.EndStream()

			return false, s.ConnectionType() == ConnectionKeepAlive
		}
	}

	s.PreWrite(req.Proto, s.interim.Code(status.Continue))
	err := s.Flush(s.client)
	s.interim.Clear()

	return err == nil, err == nil
}

// performUpgrade emits the switching response and hands the raw connection,
// positioned right past the request head, over to the upgrade collaborator.
func (s *Suit) performUpgrade() {
	req := s.request

	s.PreWrite(req.Proto, s.interim.
		Code(status.SwitchingProtocols).
		Header("Connection", "upgrade").
		Header("Upgrade", req.Upgrade),
	)

	if s.Flush(s.client) != nil {
		s.interim.Clear()
		return
	}

	s.interim.Clear()
	s.MarkUpgraded()
	s.client.SetReadTimeout(0)
	_ = s.cb.Upgrade(req, s.client)
}

func (s *Suit) respondError(err error) {
	if err == status.ErrCloseConnection {
		// a deliberate close, not a condition the peer should hear about
		return
	}

	fields := s.errorResponse(err).Reveal()

	// the connection is going down anyway, so socket errors at this point are
	// nobody's concern
	_ = s.Serializer.Write(fallbackProto(s.request.Proto), fields, ConnectionClose, false, s.client)
}

// errorResponse asks OnError to render the error, substituting a bare coded
// response when it refuses.
func (s *Suit) errorResponse(err error) *http.Response {
	if resp := s.cb.OnError(s.request, err); resp != nil {
		return resp
	}

	return http.Respond(s.request).Code(status.ErrorCode(err))
}

// shutdown gracefully tears the connection down: the write half is closed
// first, then the peer is given a bounded grace period to consume what was
// sent before the socket goes away entirely.
func (s *Suit) shutdown() {
	if conn := s.client.Conn(); conn != nil && !s.request.WasHijacked() {
		_ = conn.SetDeadline(time.Now().Add(s.cfg.NET.ShutdownTimeout))
		s.client.SetReadTimeout(s.cfg.NET.ShutdownTimeout)

		if tcp, ok := conn.(*net.TCPConn); ok {
			_ = tcp.CloseWrite()

			for {
				if _, err := s.client.Read(); err != nil {
					break
				}
			}
		}
	}

	if !s.request.WasHijacked() {
		_ = s.client.Close()
	}
}

func notNil(req *http.Request, resp *http.Response) *http.Response {
	if resp != nil {
		return resp
	}

	return http.Respond(req)
}

func fallbackProto(p proto.Proto) proto.Proto {
	if p == proto.Unknown {
		return proto.HTTP11
	}

	return p
}

func isTimeout(err error) bool {
	nerr, ok := err.(net.Error)
	return ok && nerr.Timeout()
}
