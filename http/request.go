package http

import (
	"net"

	"github.com/indigo-web/h1/http/method"
	"github.com/indigo-web/h1/http/proto"
	"github.com/indigo-web/h1/kv"
	"github.com/indigo-web/h1/transport"
)

type Headers = *kv.Storage

// Request is the decoded head of an incoming message plus a handle to its
// body. The object is allocated once per connection and recycled between
// pipelined requests.
type Request struct {
	Method method.Method
	// Path is the raw request target, not decoded. Guaranteed to be non-empty.
	Path string
	// Query is everything after '?' in the request target, may be empty.
	Query string
	Proto proto.Proto
	// Headers holds non-normalized header pairs in arrival order; lookup is
	// case-insensitive.
	Headers Headers
	// ContentLength is the declared body length. Meaningless if Chunked is set.
	ContentLength uint
	// Chunked is set when Transfer-Encoding ends with the chunked token. Takes
	// priority over ContentLength for framing.
	Chunked bool
	// HasTrailer hints that the chunked body is terminated by a trailer section.
	HasTrailer bool
	// Connection is the raw Connection header value, empty when absent.
	Connection string
	// Upgrade is the first token of the Upgrade header, empty when absent.
	Upgrade string
	// ExpectsContinue is set by an Expect: 100-continue header.
	ExpectsContinue bool
	// Remote is the address of the peer. Note that proxies in the middle make it
	// a poor way to identify a user.
	Remote net.Addr
	// Body provides access to the message body.
	Body *Body

	client   transport.Client
	response *Response
	hijacked bool
}

func NewRequest(headers *kv.Storage, body *Body, client transport.Client) *Request {
	request := &Request{
		Method:  method.Unknown,
		Proto:   proto.HTTP11,
		Headers: headers,
		Body:    body,
		client:  client,
	}

	if client != nil {
		request.Remote = client.Remote()
	}

	request.response = NewResponse()

	return request
}

// Respond returns the response builder of this request.
//
// WARNING: the builder is reset under the hood, so a response built earlier
// within the same handler invocation is discarded.
func (r *Request) Respond() *Response {
	return r.response.Clear()
}

// Hijack detaches the connection from the dispatcher. The request body is
// implicitly drained (read it before, if you need it). After the handler
// returns, no further HTTP framing happens on this connection and it is the
// caller's duty to close it.
func (r *Request) Hijack() (transport.Client, error) {
	if err := r.Body.Discard(); err != nil {
		return nil, err
	}

	r.hijacked = true

	return r.client, nil
}

// WasHijacked tells whether the connection was hijacked.
func (r *Request) WasHijacked() bool {
	return r.hijacked
}

// Reset prepares the request object for the next message on the connection.
// It fails only if draining the previous body failed, which dooms the
// connection.
func (r *Request) Reset() error {
	if err := r.Body.Discard(); err != nil {
		return err
	}

	r.Method = method.Unknown
	r.Path = ""
	r.Query = ""
	r.Proto = proto.HTTP11
	r.Headers.Clear()
	r.ContentLength = 0
	r.Chunked = false
	r.HasTrailer = false
	r.Connection = ""
	r.Upgrade = ""
	r.ExpectsContinue = false

	return nil
}
