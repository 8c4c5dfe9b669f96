package config

import (
	"math"
	"time"
)

type (
	HeadersNumber struct {
		Default, Maximal int
	}

	HeadersSpace struct {
		Default, Maximal int
	}

	RequestLineSize struct {
		Default, Maximal int
	}

	WriteBufferSize struct {
		Default, Maximal int
	}
)

type (
	URI struct {
		// RequestLineSize is a shared buffer storing the method, path and protocol
		// when they span several reads. Setting the maximal boundary too low might
		// result in very ambiguous errors.
		RequestLineSize RequestLineSize
	}

	Headers struct {
		// Number limits how many headers a single message may carry.
		Number HeadersNumber
		// Space limits the amount of memory occupied by a message's headers section.
		Space HeadersSpace
		// MaxValueLength limits a single header field line. Guards against a peer
		// streaming an endless value.
		MaxValueLength int
		// Default headers are included into every response implicitly, unless
		// explicitly overridden.
		Default map[string]string
	}

	Body struct {
		// MaxSize describes the maximal size of a body that can be processed. A
		// Content-Length above it is rejected before the handler reads a single
		// byte. Use math.MaxUint to effectively disable the limit.
		MaxSize uint
	}

	NET struct {
		// KeepAlive enables connection reuse. When disabled, every response carries
		// Connection: close no matter what the peer asked for.
		KeepAlive bool
		// ReadBufferSize is the size of the buffer the socket is read into.
		ReadBufferSize int
		// HeadReadTimeout bounds reading a single request head, even with partial
		// progress.
		HeadReadTimeout time.Duration
		// IdleTimeout is how long a kept-alive connection may stay completely
		// silent between requests before it is closed.
		IdleTimeout time.Duration
		// ShutdownTimeout bounds the graceful drain of the write half on close.
		ShutdownTimeout time.Duration
		// WriteBufferSize stores the serialized response. When the buffer fills up
		// it is flushed to the socket; the flush blocking is the engine's
		// backpressure.
		WriteBufferSize WriteBufferSize
		// AcceptLoopInterruptPeriod controls how often Accept() is interrupted to
		// check whether it's time to stop. Defaults to 5 seconds.
		AcceptLoopInterruptPeriod time.Duration
	}
)

// Config holds limits, timeouts and pre-allocation sizes used across the engine.
//
// Always modify the defaults (returned via Default()) instead of constructing
// the struct manually, otherwise zero-valued limits will reject everything.
type Config struct {
	URI     URI
	Headers Headers
	Body    Body
	NET     NET
}

func Default() Config {
	return Config{
		URI: URI{
			RequestLineSize: RequestLineSize{
				Default: 2 * 1024,
				Maximal: 16 * 1024,
			},
		},
		Headers: Headers{
			Number: HeadersNumber{
				Default: 10,
				Maximal: 100,
			},
			Space: HeadersSpace{
				Default: 1 * 1024,
				Maximal: 128 * 1024,
			},
			MaxValueLength: 8 * 1024,
			Default:        nil,
		},
		Body: Body{
			MaxSize: 512 * 1024 * 1024,
		},
		NET: NET{
			KeepAlive:       true,
			ReadBufferSize:  4 * 1024,
			HeadReadTimeout: 90 * time.Second,
			IdleTimeout:     90 * time.Second,
			ShutdownTimeout: 5 * time.Second,
			WriteBufferSize: WriteBufferSize{
				Default: 2 * 1024,
				Maximal: 64 * 1024,
			},
			AcceptLoopInterruptPeriod: 5 * time.Second,
		},
	}
}

// DisabledBodyLimit can be assigned to Body.MaxSize in order to accept bodies
// of any declared length.
const DisabledBodyLimit = math.MaxUint
