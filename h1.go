// Package h1 is an HTTP/1.x wire engine: it parses request heads and bodies
// off raw connections, hands complete requests to a user handler and writes
// its responses back with correct framing, managing keep-alive, pipelining,
// expectations and protocol upgrades along the way. Routing, TLS and anything
// above the wire is intentionally somebody else's business.
package h1

import (
	"net"

	"github.com/indigo-web/h1/config"
	"github.com/indigo-web/h1/http"
	"github.com/indigo-web/h1/internal/protocol/http1"
	"github.com/indigo-web/h1/transport"
)

// OnConnect is called once per accepted connection before any parsing
// happens. Returning an error drops the connection on the spot.
type OnConnect func(conn net.Conn) error

// App ties a handler, a configuration and a set of optional callbacks into a
// runnable server. All the With- and On- methods return the same instance for
// chaining and must not be called after Run.
type App struct {
	cfg       config.Config
	cb        http1.Callbacks
	onConnect OnConnect
	tcp       *transport.TCP
}

// New returns an App serving every request with the handler, tuned by the
// default configuration.
func New(handler http.Handler) *App {
	return &App{
		cfg: config.Default(),
		cb:  http1.Callbacks{Handler: handler},
		tcp: transport.NewTCP(),
	}
}

// Tune replaces the default configuration.
func (a *App) Tune(cfg config.Config) *App {
	a.cfg = cfg
	return a
}

// OnError installs a renderer of protocol and handler errors. The default one
// responds with a plain page carrying the matching status code.
func (a *App) OnError(cb http.ErrorHandler) *App {
	a.cb.OnError = cb
	return a
}

// OnExpect installs a gatekeeper for Expect: 100-continue requests, letting
// them be rejected before their bodies are ever read. Without one, every
// expectation is accepted.
func (a *App) OnExpect(cb http.ExpectHandler) *App {
	a.cb.Expect = cb
	return a
}

// OnUpgrade installs a taker of upgraded connections. Without one, upgrade
// requests are served as ordinary HTTP.
func (a *App) OnUpgrade(cb http.UpgradeHandler) *App {
	a.cb.Upgrade = cb
	return a
}

// OnDisconnect is called right before a connection goes down. A non-nil
// response is sent back best-effort.
func (a *App) OnDisconnect(cb http.OnDisconnect) *App {
	a.cb.OnDisconnect = cb
	return a
}

// OnConnect is called once per accepted connection before any data is read.
func (a *App) OnConnect(cb OnConnect) *App {
	a.onConnect = cb
	return a
}

// ServeConn serves a single established connection, blocking until the
// connection is done. It may be used directly when listening is managed
// elsewhere.
func (a *App) ServeConn(conn net.Conn) {
	if a.onConnect != nil {
		if err := a.onConnect(conn); err != nil {
			_ = conn.Close()
			return
		}
	}

	readBuff := make([]byte, a.cfg.NET.ReadBufferSize)
	client := transport.NewClient(conn, a.cfg.NET.HeadReadTimeout, readBuff)
	http1.Initialize(&a.cfg, a.cb, client).Serve()
}

// Run binds the address and serves it until Stop is called. Each connection
// gets a dedicated goroutine.
func (a *App) Run(addr string) error {
	if err := a.tcp.Bind(addr); err != nil {
		return err
	}

	return a.tcp.Listen(a.cfg.NET, func(conn net.Conn) {
		a.ServeConn(conn)
	})
}

// Stop interrupts the accept loop and waits for the active connections to
// finish serving.
func (a *App) Stop() {
	a.tcp.Stop()
	a.tcp.Wait()
	_ = a.tcp.Close()
}
