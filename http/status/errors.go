package status

// HTTPError is an error with an HTTP status code attached. The dispatcher uses
// the code to render a best-effort error response before the connection dies.
type HTTPError struct {
	Message string
	Code    Code
}

func NewError(code Code, message string) error {
	return HTTPError{
		Code:    code,
		Message: message,
	}
}

func (h HTTPError) Error() string {
	return h.Message
}

var (
	// ErrCloseConnection is not an error in a usual sense. It is passed through the
	// dispatcher's error path to actively terminate an otherwise healthy connection.
	ErrCloseConnection = NewError(CloseConnection, "actively closing the connection")

	ErrBadRequest              = NewError(BadRequest, "bad request")
	ErrTooLongRequestLine      = NewError(BadRequest, "request line is too long")
	ErrBadChunk                = NewError(BadRequest, "malformed chunk-encoded data")
	ErrBadEncoding             = NewError(BadRequest, "bad request encoding")
	ErrUnknownContentLength    = NewError(BadRequest, "content-length is not a valid number")
	ErrMethodNotImplemented    = NewError(NotImplemented, "request method is not supported")
	ErrBodyTooLarge            = NewError(RequestEntityTooLarge, "request body is too large")
	ErrHeaderFieldsTooLarge    = NewError(RequestHeaderFieldsTooLarge, "too large headers section")
	ErrTooManyHeaders          = NewError(RequestHeaderFieldsTooLarge, "too many headers")
	ErrURITooLong              = NewError(RequestURITooLong, "request URI too long")
	ErrHTTPVersionNotSupported = NewError(HTTPVersionNotSupported, "HTTP version not supported")
	ErrRequestTimeout          = NewError(RequestTimeout, "request timeout")
	ErrUnsupportedExpectation  = NewError(ExpectationFailed, "unsupported expectation")
	ErrInternalServerError     = NewError(InternalServerError, "internal server error")
)

// CloseConnection is a non-standard in-band code. It never appears on the wire:
// the dispatcher intercepts it before serialization.
const CloseConnection Code = 0

// ErrorCode maps an error to the response code it should be reported with.
// Unrecognized errors are treated as internal ones.
func ErrorCode(err error) Code {
	if http, ok := err.(HTTPError); ok {
		return http.Code
	}

	return InternalServerError
}
