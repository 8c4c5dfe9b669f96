package http1

import (
	"io"
	"log"
	"strconv"

	"github.com/indigo-web/h1/http"
	"github.com/indigo-web/h1/http/proto"
	"github.com/indigo-web/h1/http/status"
	"github.com/indigo-web/h1/kv"
	"github.com/indigo-web/utils/strcomp"
)

// Writer is the sink serialized bytes are flushed into.
type Writer interface {
	Write([]byte) error
}

const (
	contentLength    = "Content-Length: "
	transferEncoding = "Transfer-Encoding: chunked\r\n"
	connectionKA     = "Connection: keep-alive\r\n"
	connectionClose  = "Connection: close\r\n"
	colonsp          = ": "
	crlf             = "\r\n"
)

// minimalFileBuffSize defines the minimal size of the stream buffer. In case
// it's less it'll be set to this value and a debug log will be printed
const minimalFileBuffSize = 16

var chunkedFinalizer = []byte("0\r\n\r\n")

// Serializer renders response heads and bodies into a bounded buffer, flushing
// it into the writer whenever it would overgrow. The response framing is fully
// dictated by the caller via the connection type and the head flag; the
// serializer itself never inspects the request.
type Serializer struct {
	buff        []byte
	maxBuffSize int
	// fileBuff isn't allocated until needed in order to save memory in cases,
	// where no streamed bodies are being sent
	fileBuff       []byte
	fileBuffSize   int
	defaultHeaders defaultHeaders
}

func NewSerializer(buff []byte, maxBuffSize, fileBuffSize int, defHdrs map[string]string) *Serializer {
	if fileBuffSize < minimalFileBuffSize {
		log.Printf("misconfiguration: stream buffer size is set to %d, "+
			"however minimal possible value is %d. Setting it hard to %d\n",
			fileBuffSize, minimalFileBuffSize, minimalFileBuffSize,
		)

		fileBuffSize = minimalFileBuffSize
	}

	if maxBuffSize < len(buff) {
		maxBuffSize = len(buff)
	}

	return &Serializer{
		buff:           buff[:0],
		maxBuffSize:    maxBuffSize,
		fileBuffSize:   fileBuffSize,
		defaultHeaders: processDefaultHeaders(defHdrs),
	}
}

// PreWrite renders the response into the buffer without sending it. Used for
// informational responses preceding the final one. Only explicitly set headers
// are rendered, default ones are kept for the final response.
func (d *Serializer) PreWrite(protocol proto.Proto, response *http.Response) {
	d.renderProtocol(protocol)
	fields := response.Reveal()
	d.renderResponseLine(fields)

	for _, header := range fields.Headers {
		d.renderHeader(header)
	}

	d.crlf()
}

// Flush sends out everything buffered so far. Informational responses must be
// flushed explicitly, as the peer may be waiting for them before proceeding.
func (d *Serializer) Flush(writer Writer) error {
	if len(d.buff) == 0 {
		return nil
	}

	err := writer.Write(d.buff)
	d.buff = d.buff[:0]

	return err
}

// Write serializes the response head and body. The connection type picks the
// connection management header and, together with the protocol, the framing of
// bodies of unknown size. A head response renders its full head yet carries no
// body bytes.
func (d *Serializer) Write(
	protocol proto.Proto, fields *http.Fields, ctype ConnectionType, headResponse bool, writer Writer,
) (err error) {
	defer d.clear()

	d.renderProtocol(protocol)
	d.renderResponseLine(fields)

	if fields.Attachment.Content != nil {
		return d.sendAttachment(protocol, fields, ctype, headResponse, writer)
	}

	d.renderHeaders(fields)
	d.renderConnection(ctype)
	d.renderContentLength(int64(len(fields.Body)))
	d.crlf()

	if !headResponse {
		// responses to HEAD requests are rendered as usual, except the body
		// is forcedly left out even though Content-Length is specified
		if err = d.safeAppend(writer, fields.Body); err != nil {
			return status.ErrCloseConnection
		}
	}

	return d.Flush(writer)
}

func (d *Serializer) renderResponseLine(fields *http.Fields) {
	codeStatus := status.CodeStatus(fields.Code)

	if fields.Status == "" && codeStatus != "" {
		d.buff = append(d.buff, codeStatus...)
		return
	}

	// in case we have a custom response status text or unknown code, fallback to an old way
	d.buff = strconv.AppendInt(d.buff, int64(fields.Code), 10)
	d.sp()
	d.buff = append(d.buff, status.Text(fields.Code)...)
	d.crlf()
}

func (d *Serializer) renderHeaders(fields *http.Fields) {
	for _, header := range fields.Headers {
		if strcomp.EqualFold(header.Key, "connection") {
			// exactly one connection management header is emitted, and it
			// always reflects the engine's own decision
			continue
		}

		d.renderHeader(header)
		d.defaultHeaders.Exclude(header.Key)
	}

	for _, header := range d.defaultHeaders {
		if header.Excluded {
			continue
		}

		d.buff = append(d.buff, header.Full...)
	}
}

func (d *Serializer) renderConnection(ctype ConnectionType) {
	switch ctype {
	case ConnectionKeepAlive:
		d.buff = append(d.buff, connectionKA...)
	case ConnectionClose:
		d.buff = append(d.buff, connectionClose...)
	case ConnectionUpgrade:
		// the switching response renders its Connection and Upgrade headers
		// explicitly, nothing to add here
	}
}

// sendAttachment streams an arbitrary io.Reader as the response body. A known
// size is sent as a plain sized body. An unknown one is chunked when the
// connection is a kept-alive HTTP/1.1 one, otherwise the bytes are sent as-is
// and the connection close delimits them.
func (d *Serializer) sendAttachment(
	protocol proto.Proto, fields *http.Fields, ctype ConnectionType, headResponse bool, writer Writer,
) (err error) {
	size := fields.Attachment.Size
	chunked := size <= 0 && protocol == proto.HTTP11 && ctype == ConnectionKeepAlive

	d.renderHeaders(fields)
	d.renderConnection(ctype)

	switch {
	case size > 0:
		d.renderContentLength(int64(size))
	case chunked:
		d.buff = append(d.buff, transferEncoding...)
	}

	d.crlf()

	if err = d.Flush(writer); err != nil {
		return status.ErrCloseConnection
	}

	if headResponse {
		// head responses carry the framing headers of the would-be body, but
		// never the body itself
		fields.Attachment.Close()
		return nil
	}

	if len(d.fileBuff) == 0 {
		d.fileBuff = make([]byte, d.fileBuffSize)
	}

	switch {
	case size > 0:
		err = d.writePlainBody(fields.Attachment.Content, size, writer)
	case chunked:
		err = d.writeChunkedBody(fields.Attachment.Content, writer)
	default:
		err = d.writeCloseDelimitedBody(fields.Attachment.Content, writer)
	}

	fields.Attachment.Close()

	return err
}

func (d *Serializer) writePlainBody(r io.Reader, size int, writer Writer) error {
	remaining := size

	for remaining > 0 {
		window := d.fileBuff
		if remaining < len(window) {
			window = window[:remaining]
		}

		n, err := r.Read(window)
		if n > 0 {
			if err := writer.Write(window[:n]); err != nil {
				return status.ErrCloseConnection
			}

			remaining -= n
		}

		switch err {
		case nil:
		case io.EOF:
			if remaining > 0 {
				// the reader dried up before the declared size was reached,
				// the peer cannot be left with a truncated sized body
				return status.ErrCloseConnection
			}

			return nil
		default:
			return status.ErrCloseConnection
		}
	}

	// the declared size is fully transferred. Whatever is left in the reader
	// stays unconsumed, as sending it would contradict the head already out
	return nil
}

func (d *Serializer) writeChunkedBody(r io.Reader, writer Writer) error {
	const (
		hexValueOffset = 8
		crlfSize       = 1 /* CR */ + 1 /* LF */
		buffOffset     = hexValueOffset + crlfSize
	)

	for {
		n, err := r.Read(d.fileBuff[buffOffset : len(d.fileBuff)-crlfSize])

		if n > 0 {
			// first rewrite begin of the fileBuff to contain our hexdecimal value
			buff := strconv.AppendUint(d.fileBuff[:0], uint64(n), 16)
			// now we can determine the length of the hexdecimal value and make an
			// offset for it
			blankSpace := hexValueOffset - len(buff)
			copy(d.fileBuff[blankSpace:], buff)
			copy(d.fileBuff[hexValueOffset:], crlf)
			copy(d.fileBuff[buffOffset+n:], crlf)

			if err := writer.Write(d.fileBuff[blankSpace : buffOffset+n+crlfSize]); err != nil {
				return status.ErrCloseConnection
			}
		}

		switch err {
		case nil:
		case io.EOF:
			return writer.Write(chunkedFinalizer)
		default:
			return status.ErrCloseConnection
		}
	}
}

func (d *Serializer) writeCloseDelimitedBody(r io.Reader, writer Writer) error {
	for {
		n, err := r.Read(d.fileBuff)
		if n > 0 {
			if err := writer.Write(d.fileBuff[:n]); err != nil {
				return status.ErrCloseConnection
			}
		}

		switch err {
		case nil:
		case io.EOF:
			// the dispatcher closes the connection afterwards, thereby
			// delimiting the body
			return nil
		default:
			return status.ErrCloseConnection
		}
	}
}

// safeAppend appends data to the buffer, flushing it beforehand if the data
// wouldn't fit. Data exceeding the buffer's whole capacity bypasses it.
func (d *Serializer) safeAppend(writer Writer, data []byte) error {
	if len(d.buff)+len(data) <= d.maxBuffSize {
		d.buff = append(d.buff, data...)
		return nil
	}

	if err := d.Flush(writer); err != nil {
		return err
	}

	if len(data) >= d.maxBuffSize {
		return writer.Write(data)
	}

	d.buff = append(d.buff, data...)

	return nil
}

// renderHeader renders the header into the buffer, appending CRLF in the end
func (d *Serializer) renderHeader(header kv.Pair) {
	d.buff = append(d.buff, header.Key...)
	d.buff = append(d.buff, colonsp...)
	d.buff = append(d.buff, header.Value...)
	d.crlf()
}

func (d *Serializer) renderContentLength(value int64) {
	d.buff = strconv.AppendInt(append(d.buff, contentLength...), value, 10)
	d.crlf()
}

func (d *Serializer) renderProtocol(protocol proto.Proto) {
	d.buff = append(d.buff, proto.ToBytes(protocol)...)
}

func (d *Serializer) sp() {
	d.buff = append(d.buff, ' ')
}

func (d *Serializer) crlf() {
	d.buff = append(d.buff, crlf...)
}

func (d *Serializer) clear() {
	d.buff = d.buff[:0]
	d.defaultHeaders.Reset()
}

func processDefaultHeaders(hdrs map[string]string) defaultHeaders {
	processed := make(defaultHeaders, 0, len(hdrs))

	for key, value := range hdrs {
		full := key + colonsp + value + crlf
		processed = append(processed, defaultHeader{
			// only the brand-new line is kept, letting the GC release the
			// original map values
			Key:  full[:len(key)],
			Full: full,
		})
	}

	return processed
}

type defaultHeader struct {
	Excluded bool
	Key      string
	Full     string
}

type defaultHeaders []defaultHeader

func (d defaultHeaders) Exclude(key string) {
	for i, header := range d {
		if strcomp.EqualFold(header.Key, key) {
			d[i].Excluded = true
			return
		}
	}
}

func (d defaultHeaders) Reset() {
	for i := range d {
		d[i].Excluded = false
	}
}
