package http

import (
	"io"

	"github.com/indigo-web/h1/http/status"
	"github.com/indigo-web/h1/kv"
	"github.com/indigo-web/utils/uf"
	json "github.com/json-iterator/go"
)

const preallocRespHeaders = 7

// Fields is the bare content of a response builder. Used by the serializer.
type Fields struct {
	Code    status.Code
	Status  status.Status
	Headers []kv.Pair
	// Body is the plain response body. Ignored if an attachment is set.
	Body []byte
	// Attachment, when its content is non-nil, streams the body instead of Body.
	Attachment Attachment
}

func (f *Fields) Clear() {
	f.Code = status.OK
	f.Status = ""
	f.Headers = f.Headers[:0]
	f.Body = nil
	f.Attachment = Attachment{}
}

// Attachment is a lazily-consumed response body stream. Size <= 0 means the
// size isn't known in advance, letting the serializer pick chunked or
// close-delimited framing.
type Attachment struct {
	Content io.Reader
	Size    int
}

// Close closes the underlying reader if it is closeable.
func (a Attachment) Close() {
	if c, ok := a.Content.(io.Closer); ok {
		_ = c.Close()
	}
}

// Response is a builder of the head and body of an outgoing message.
type Response struct {
	fields Fields
}

// NewResponse returns a new builder with the code set to 200 OK.
func NewResponse() *Response {
	resp := &Response{
		fields: Fields{
			Code:    status.OK,
			Headers: make([]kv.Pair, 0, preallocRespHeaders),
		},
	}

	return resp
}

// Code sets the response code. A corresponding status text is derived
// automatically unless Status is called explicitly.
func (r *Response) Code(code status.Code) *Response {
	r.fields.Code = code
	return r
}

// Status sets a custom status text. Clients tend to ignore it completely, so
// there are few reasons to use this.
func (r *Response) Status(text status.Status) *Response {
	r.fields.Status = text
	return r
}

// Header appends header values under the key. Repeated calls with the same key
// produce repeated header lines.
func (r *Response) Header(key string, values ...string) *Response {
	for i := range values {
		r.fields.Headers = append(r.fields.Headers, kv.Pair{
			Key:   key,
			Value: values[i],
		})
	}

	return r
}

// String sets the response body to the passed string.
func (r *Response) String(body string) *Response {
	return r.Bytes(uf.S2B(body))
}

// Bytes sets the response body to the passed slice WITHOUT COPYING. Mutating
// the slice afterwards affects the response.
func (r *Response) Bytes(body []byte) *Response {
	r.fields.Body = body
	return r
}

// Write implements io.Writer by appending to the response body. It never fails.
func (r *Response) Write(b []byte) (n int, err error) {
	r.fields.Body = append(r.fields.Body, b...)
	return len(b), nil
}

// Attachment makes the response body be streamed from the reader. The plain
// body, if any was set, is ignored. If size <= 0 the serializer falls back to
// chunked transfer (or close-delimited, when chunked isn't available).
func (r *Response) Attachment(reader io.Reader, size int) *Response {
	r.fields.Attachment = Attachment{Content: reader, Size: size}
	return r
}

// TryJSON serializes the model (must be a pointer) into the response body.
func (r *Response) TryJSON(model any) (*Response, error) {
	r.fields.Body = r.fields.Body[:0]
	stream := json.ConfigDefault.BorrowStream(r)
	stream.WriteVal(model)
	err := stream.Flush()
	json.ConfigDefault.ReturnStream(stream)

	return r.Header("Content-Type", "application/json"), err
}

// JSON does the same as TryJSON, except the error is implicitly wrapped by Error.
func (r *Response) JSON(model any) *Response {
	resp, err := r.TryJSON(model)
	if err != nil {
		return r.Error(err)
	}

	return resp
}

// Error fills the response from an error. status.HTTPError instances bring
// their own code; any other error is reported as 500 without leaking its text.
func (r *Response) Error(err error) *Response {
	if err == nil {
		return r
	}

	if httperr, ok := err.(status.HTTPError); ok && httperr.Code != status.CloseConnection {
		return r.
			Code(httperr.Code).
			String(httperr.Message)
	}

	return r.Code(status.InternalServerError)
}

// Reveal returns the built values. Used mostly for internal purposes.
func (r *Response) Reveal() *Fields {
	return &r.fields
}

// Clear discards everything done with the builder before.
func (r *Response) Clear() *Response {
	r.fields.Clear()
	return r
}

// Respond is a predicate to request.Respond(). May be used as a dummy handler.
func Respond(request *Request) *Response {
	return request.Respond()
}

// Code is a predicate to request.Respond().Code(...)
func Code(request *Request, code status.Code) *Response {
	return request.Respond().Code(code)
}

// String is a predicate to request.Respond().String(...)
func String(request *Request, str string) *Response {
	return request.Respond().String(str)
}
