package proto

type Proto uint8

const (
	Unknown Proto = iota
	HTTP10
	HTTP11
)

var (
	http10 = []byte("HTTP/1.0 ")
	http11 = []byte("HTTP/1.1 ")
	empty  []byte
)

// ToBytes returns the protocol token WITH A TRAILING SPACE, as it is used
// exclusively to begin response lines.
func ToBytes(proto Proto) []byte {
	switch proto {
	case HTTP10:
		return http10
	case HTTP11:
		return http11
	default:
		return empty
	}
}

func FromBytes(raw []byte) Proto {
	if len(raw) != len("HTTP/x.x") || string(raw[:len("HTTP/")]) != "HTTP/" {
		return Unknown
	}

	switch {
	case raw[5] == '1' && raw[6] == '.' && raw[7] == '1':
		return HTTP11
	case raw[5] == '1' && raw[6] == '.' && raw[7] == '0':
		return HTTP10
	}

	return Unknown
}
