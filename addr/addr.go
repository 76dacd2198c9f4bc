// Package addr maps the transport's URL grammar onto a concrete socket
// family and address, distinguishing UNIX domain sockets from IPv4 and IPv6
// TCP endpoints. It does nothing beyond that: no DNS resolution, no
// connecting, no binding.
package addr

import (
	"net"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Family identifies a socket address family recognised by the transport.
type Family int

const (
	// Unix identifies a UNIX domain stream socket.
	Unix Family = iota
	// IPv4 identifies an AF_INET TCP endpoint.
	IPv4
	// IPv6 identifies an AF_INET6 TCP endpoint.
	IPv6
)

func (f Family) String() string {
	switch f {
	case Unix:
		return "unix"
	case IPv4:
		return "tcp4"
	case IPv6:
		return "tcp6"
	default:
		return "unknown"
	}
}

// Address is the result of parsing a transport URL.
type Address struct {
	Family Family
	// Path holds the socket path for Family == Unix.
	Path string
	// IP and Port hold the endpoint for Family == IPv4 or IPv6.
	IP   net.IP
	Port int
}

// Equal reports whether two addresses identify the same (family, address)
// pair, the identity used by UnbindURL to match a previously bound socket.
func (a *Address) Equal(b *Address) bool {
	if a.Family != b.Family {
		return false
	}
	if a.Family == Unix {
		return a.Path == b.Path
	}
	return a.IP.Equal(b.IP) && a.Port == b.Port
}

const (
	unixPrefix = "unix://"
	tcpPrefix  = "tcp://"
)

// Parse maps a transport URL to an Address. Recognised grammars are:
//
//	unix:///<path>[:<ignored-suffix>]
//	tcp://<dotted-IPv4>:<port>[:<ignored-suffix>]
//	tcp://[<IPv6>]:<port>[:<ignored-suffix>]
//
// Anything else, or an address literal that fails numeric parsing, is
// reported as an error.
func Parse(url string) (*Address, error) {
	switch {
	case strings.HasPrefix(url, unixPrefix):
		return parseUnix(url)
	case strings.HasPrefix(url, tcpPrefix):
		return parseTCP(url)
	default:
		return nil, errors.Errorf("addr: invalid url %q", url)
	}
}

func parseUnix(url string) (*Address, error) {
	name := url[len(unixPrefix):]
	if end := strings.IndexByte(name, ':'); end >= 0 {
		name = name[:end]
	}
	if name == "" {
		return nil, errors.Errorf("addr: invalid url %q: empty unix path", url)
	}
	return &Address{Family: Unix, Path: name}, nil
}

func parseTCP(url string) (*Address, error) {
	rest := url[len(tcpPrefix):]

	if strings.HasPrefix(rest, "[") {
		return parseIPv6(url, rest)
	}
	return parseIPv4(url, rest)
}

func parseIPv4(url, rest string) (*Address, error) {
	host, portSpec, ok := strings.Cut(rest, ":")
	if !ok {
		return nil, errors.Errorf("addr: invalid url %q: missing port", url)
	}
	port, err := parsePort(portSpec)
	if err != nil {
		return nil, errors.Wrapf(err, "addr: invalid url %q", url)
	}

	ip := net.ParseIP(host).To4()
	if ip == nil {
		return nil, errors.Errorf("addr: invalid IPv4 address %q", host)
	}

	return &Address{Family: IPv4, IP: ip, Port: port}, nil
}

func parseIPv6(url, rest string) (*Address, error) {
	end := strings.IndexByte(rest, ']')
	if end < 0 {
		return nil, errors.Errorf("addr: invalid url %q: unterminated IPv6 literal", url)
	}
	host := rest[1:end]

	after := rest[end+1:]
	portSpec, ok := strings.CutPrefix(after, ":")
	if !ok {
		return nil, errors.Errorf("addr: invalid url %q: missing port", url)
	}
	// Strip any trailing ignored suffix.
	if idx := strings.IndexByte(portSpec, ':'); idx >= 0 {
		portSpec = portSpec[:idx]
	}
	port, err := parsePort(portSpec)
	if err != nil {
		return nil, errors.Wrapf(err, "addr: invalid url %q", url)
	}

	ip := net.ParseIP(host).To16()
	if ip == nil {
		return nil, errors.Errorf("addr: invalid IPv6 address %q", host)
	}

	return &Address{Family: IPv6, IP: ip, Port: port}, nil
}

func parsePort(spec string) (int, error) {
	// An ignored suffix may follow the port, separated by another colon.
	if idx := strings.IndexByte(spec, ':'); idx >= 0 {
		spec = spec[:idx]
	}
	port, err := strconv.Atoi(spec)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid port %q", spec)
	}
	return port, nil
}
