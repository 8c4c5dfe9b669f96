package http1

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/indigo-web/h1/config"
	"github.com/indigo-web/h1/http"
	"github.com/indigo-web/h1/http/method"
	"github.com/indigo-web/h1/http/proto"
	"github.com/indigo-web/h1/http/status"
	"github.com/indigo-web/h1/internal/buffer"
	"github.com/indigo-web/utils/strcomp"
	"github.com/indigo-web/utils/uf"
)

type parserState uint8

const (
	eMethod parserState = iota + 1
	ePath
	eHeaderKey
	eContentLength
	eContentLengthCR
	eHeaderValue
	eHeaderValueCRLFCR
)

// Parser is a stream-based request head parser. It fills the request object
// in place as data arrives; the head may be split at any byte boundary across
// calls without affecting the result. When the final CRLF of the headers
// section is consumed, Parse reports done and hands the remaining bytes back
// as extra. The body is never touched here.
type Parser struct {
	request             *http.Request
	startLineBuff       *buffer.Buffer
	headerKeyBuff       *buffer.Buffer
	headerValueBuff     *buffer.Buffer
	headerKey           string
	headersCfg          *config.Headers
	headersNumber       int
	contentLength       uint
	contentLengthDigits int
	metContentLength    bool
	metTransferEncoding bool
	state               parserState
}

func NewParser(
	request *http.Request, keyBuff, valBuff, startLineBuff *buffer.Buffer, headersCfg config.Headers,
) *Parser {
	return &Parser{
		state:           eMethod,
		request:         request,
		headersCfg:      &headersCfg,
		startLineBuff:   startLineBuff,
		headerKeyBuff:   keyBuff,
		headerValueBuff: valBuff,
	}
}

func (p *Parser) Parse(data []byte) (done bool, extra []byte, err error) {
	_ = *p.request
	request := p.request
	headerKeyBuff := p.headerKeyBuff
	headerValueBuff := p.headerValueBuff

	switch p.state {
	case eMethod:
		goto method
	case ePath:
		goto path
	case eHeaderKey:
		goto headerKey
	case eContentLength:
		goto contentLength
	case eContentLengthCR:
		goto contentLengthCR
	case eHeaderValue:
		goto headerValue
	case eHeaderValueCRLFCR:
		goto headerValueCRLFCR
	default:
		panic(fmt.Sprintf("BUG: parser: unexpected state: %v", p.state))
	}

method:
	{
		sp := bytes.IndexByte(data, ' ')
		if sp == -1 {
			if !p.startLineBuff.Append(data) {
				return true, nil, status.ErrTooLongRequestLine
			}

			return false, nil, nil
		}

		var methodValue []byte
		if p.startLineBuff.SegmentLength() == 0 {
			methodValue = data[:sp]
		} else {
			if !p.startLineBuff.Append(data[:sp]) {
				return true, nil, status.ErrTooLongRequestLine
			}

			methodValue = p.startLineBuff.Finish()
		}

		if len(methodValue) == 0 {
			return true, nil, status.ErrBadRequest
		}

		request.Method = method.Parse(uf.B2S(methodValue))
		if request.Method == method.Unknown {
			return true, nil, status.ErrMethodNotImplemented
		}

		data = data[sp+1:]
		p.state = ePath
		goto path
	}

path:
	{
		lf := bytes.IndexByte(data, '\n')
		if lf == -1 {
			if !p.startLineBuff.Append(data) {
				return true, nil, status.ErrURITooLong
			}

			return false, nil, nil
		}

		if !p.startLineBuff.Append(data[:lf]) {
			return true, nil, status.ErrURITooLong
		}

		pathAndProto := p.startLineBuff.Finish()
		sp := bytes.LastIndexByte(pathAndProto, ' ')
		if sp == -1 {
			return true, nil, status.ErrBadRequest
		}

		reqPath, reqProto := pathAndProto[:sp], pathAndProto[sp+1:]
		if len(reqProto) > 0 && reqProto[len(reqProto)-1] == '\r' {
			reqProto = reqProto[:len(reqProto)-1]
		}

		query := bytes.IndexByte(reqPath, '?')
		if query != -1 {
			request.Query = uf.B2S(reqPath[query+1:])
			reqPath = reqPath[:query]
		}

		if len(reqPath) == 0 {
			return true, nil, status.ErrBadRequest
		}

		request.Path = uf.B2S(reqPath)
		request.Proto = proto.FromBytes(reqProto)
		if request.Proto == proto.Unknown {
			return true, nil, status.ErrHTTPVersionNotSupported
		}

		data = data[lf+1:]
		p.state = eHeaderKey
		goto headerKey
	}

headerKey:
	{
		if len(data) == 0 {
			return false, nil, nil
		}

		switch data[0] {
		case '\n':
			p.cleanup()

			return true, data[1:], nil
		case '\r':
			data = data[1:]
			p.state = eHeaderValueCRLFCR
			goto headerValueCRLFCR
		}

		colon := bytes.IndexByte(data, ':')
		if colon == -1 {
			if !headerKeyBuff.Append(data) {
				return true, nil, status.ErrHeaderFieldsTooLarge
			}

			return false, nil, nil
		}

		if !headerKeyBuff.Append(data[:colon]) {
			return true, nil, status.ErrHeaderFieldsTooLarge
		}

		p.headerKey = uf.B2S(headerKeyBuff.Finish())
		data = data[colon+1:]

		if p.headersNumber++; p.headersNumber > p.headersCfg.Number.Maximal {
			return true, nil, status.ErrTooManyHeaders
		}

		if strcomp.EqualFold(p.headerKey, "content-length") {
			if p.metContentLength {
				return true, nil, status.ErrBadRequest
			}

			p.metContentLength = true
			p.state = eContentLength
			goto contentLength
		}

		p.state = eHeaderValue
		goto headerValue
	}

contentLength:
	for i, char := range data {
		if char == ' ' {
			continue
		}

		if char < '0' || char > '9' {
			data = data[i:]
			goto contentLengthEnd
		}

		if p.contentLengthDigits++; p.contentLengthDigits > maxContentLengthDigits {
			return true, nil, status.ErrUnknownContentLength
		}

		p.contentLength = p.contentLength*10 + uint(char-'0')
	}

	return false, nil, nil

contentLengthEnd:
	// data is guaranteed to hold at least one byte here, as the loop above
	// exits only having met a non-digit character
	if p.contentLengthDigits == 0 {
		return true, nil, status.ErrUnknownContentLength
	}

	request.ContentLength = p.contentLength

	switch data[0] {
	case ' ':
		data = data[1:]
		goto contentLength
	case '\r':
		if !p.commitContentLength() {
			return true, nil, status.ErrHeaderFieldsTooLarge
		}

		data = data[1:]
		p.state = eContentLengthCR
		goto contentLengthCR
	case '\n':
		if !p.commitContentLength() {
			return true, nil, status.ErrHeaderFieldsTooLarge
		}

		data = data[1:]
		p.state = eHeaderKey
		goto headerKey
	default:
		return true, nil, status.ErrUnknownContentLength
	}

contentLengthCR:
	if len(data) == 0 {
		return false, nil, nil
	}

	if data[0] != '\n' {
		return true, nil, status.ErrBadRequest
	}

	data = data[1:]
	p.state = eHeaderKey
	goto headerKey

headerValue:
	{
		lf := bytes.IndexByte(data, '\n')
		if lf == -1 {
			if !headerValueBuff.Append(data) {
				return true, nil, status.ErrHeaderFieldsTooLarge
			}

			if headerValueBuff.SegmentLength() > p.headersCfg.MaxValueLength {
				return true, nil, status.ErrHeaderFieldsTooLarge
			}

			return false, nil, nil
		}

		if !headerValueBuff.Append(data[:lf]) {
			return true, nil, status.ErrHeaderFieldsTooLarge
		}

		if headerValueBuff.SegmentLength() > p.headersCfg.MaxValueLength {
			return true, nil, status.ErrHeaderFieldsTooLarge
		}

		data = data[lf+1:]
		value := uf.B2S(trimPrefixSpaces(headerValueBuff.Finish()))
		if len(value) > 0 && value[len(value)-1] == '\r' {
			value = value[:len(value)-1]
		}

		request.Headers.Add(p.headerKey, value)

		switch len(p.headerKey) {
		case 6:
			if strcomp.EqualFold(p.headerKey, "expect") {
				request.ExpectsContinue = strcomp.EqualFold(value, "100-continue")
			}
		case 7:
			if strcomp.EqualFold(p.headerKey, "upgrade") {
				request.Upgrade = firstToken(value)
			}

			if strcomp.EqualFold(p.headerKey, "trailer") {
				request.HasTrailer = true
			}
		case 10:
			if strcomp.EqualFold(p.headerKey, "connection") {
				request.Connection = value
			}
		case 17:
			if strcomp.EqualFold(p.headerKey, "transfer-encoding") {
				if p.metTransferEncoding {
					return true, nil, status.ErrBadEncoding
				}

				p.metTransferEncoding = true
				request.Chunked, err = parseTransferEncoding(value)
				if err != nil {
					return true, nil, err
				}
			}
		}

		p.state = eHeaderKey
		goto headerKey
	}

headerValueCRLFCR:
	if len(data) == 0 {
		return false, nil, nil
	}

	if data[0] == '\n' {
		p.cleanup()

		return true, data[1:], nil
	}

	return true, nil, status.ErrBadRequest
}

// maxContentLengthDigits bounds the value at what fits a 64-bit integer with
// room to spare. Anything longer is garbage.
const maxContentLengthDigits = 18

// commitContentLength mirrors the parsed value into the header storage, so
// the handler sees Content-Length among the ordinary headers even though it
// never passes through the generic header value path.
func (p *Parser) commitContentLength() bool {
	var digits [maxContentLengthDigits]byte

	if !p.headerValueBuff.Append(strconv.AppendUint(digits[:0], uint64(p.contentLength), 10)) {
		return false
	}

	p.request.Headers.Add(p.headerKey, uf.B2S(p.headerValueBuff.Finish()))

	return true
}

func (p *Parser) cleanup() {
	p.headersNumber = 0
	p.startLineBuff.Clear()
	p.headerKeyBuff.Clear()
	p.headerValueBuff.Clear()
	p.contentLength = 0
	p.contentLengthDigits = 0
	p.metContentLength = false
	p.metTransferEncoding = false
	p.state = eMethod
}

// parseTransferEncoding reports whether the value ends with the chunked token.
// A chunked token anywhere but the last position is rejected, as the framing
// it promises would then be ambiguous. Identity tokens are ignored; any other
// coding is not supported.
func parseTransferEncoding(value string) (chunked bool, err error) {
	for len(value) > 0 {
		var token string
		comma := strings.IndexByte(value, ',')
		if comma == -1 {
			token, value = value, ""
		} else {
			token, value = value[:comma], value[comma+1:]
		}

		token = strings.TrimSpace(token)
		if len(token) == 0 {
			continue
		}

		if chunked {
			// chunked was already seen, yet another token follows it
			return false, status.ErrBadEncoding
		}

		switch {
		case strcomp.EqualFold(token, "chunked"):
			chunked = true
		case strcomp.EqualFold(token, "identity"):
		default:
			return false, status.ErrBadEncoding
		}
	}

	return chunked, nil
}

// firstToken returns the first comma-separated token of the value, trimmed.
func firstToken(value string) string {
	if comma := strings.IndexByte(value, ','); comma != -1 {
		value = value[:comma]
	}

	return strings.TrimSpace(value)
}

func trimPrefixSpaces(b []byte) []byte {
	for i, char := range b {
		if char != ' ' {
			return b[i:]
		}
	}

	return b[:0]
}
