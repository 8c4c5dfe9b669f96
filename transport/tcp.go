package transport

import (
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/indigo-web/h1/config"
)

type listener interface {
	net.Listener
	SetDeadline(t time.Time) error
}

// TCP runs a deadline-interruptible accept loop. Stop() makes the loop return
// after at most the configured interrupt period; Wait() blocks until all the
// spawned connection tasks exit.
type TCP struct {
	l    listener
	wg   *sync.WaitGroup
	stop *atomic.Bool
}

func NewTCP() *TCP {
	return &TCP{
		wg:   new(sync.WaitGroup),
		stop: new(atomic.Bool),
	}
}

func (t *TCP) Bind(addr string) error {
	tcpaddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return err
	}

	t.l, err = net.ListenTCP("tcp", tcpaddr)
	return err
}

func (t *TCP) Listen(cfg config.NET, cb func(conn net.Conn)) error {
	for !t.stop.Load() {
		if err := t.l.SetDeadline(time.Now().Add(cfg.AcceptLoopInterruptPeriod)); err != nil {
			return err
		}

		conn, err := t.l.Accept()
		if err != nil {
			if operr, ok := err.(*net.OpError); ok && operr.Err.Error() == os.ErrDeadlineExceeded.Error() {
				continue
			}

			return err
		}

		t.wg.Add(1)
		go func(conn net.Conn) {
			cb(conn)
			_ = conn.Close()
			t.wg.Done()
		}(conn)
	}

	return nil
}

func (t *TCP) Stop() {
	t.stop.Store(true)
}

func (t *TCP) Close() error {
	return t.l.Close()
}

func (t *TCP) Wait() {
	t.wg.Wait()
}
