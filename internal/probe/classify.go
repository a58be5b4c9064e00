package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/idna"
)

var (
	ErrInvalidAddress = errors.New("not an IP literal or a valid hostname")
	ErrUnresolvable   = errors.New("hostname does not resolve")
)

// AddressKind is what a configured address turned out to be.
type AddressKind int

const (
	AddressIPv4 AddressKind = iota + 1
	AddressIPv6
	AddressHostname
)

func (k AddressKind) String() string {
	switch k {
	case AddressIPv4:
		return "ipv4"
	case AddressIPv6:
		return "ipv6"
	case AddressHostname:
		return "hostname"
	default:
		return "invalid"
	}
}

// DNS classes reported by Classify.
const (
	ClassIPLiteral   = "IP_LITERAL"
	ClassResolves    = "RESOLVES"
	ClassNXDomain    = "NXDOMAIN"
	ClassServFail    = "SERVFAIL_or_TIMEOUT"
	ClassInvalidName = "INVALID_NAME"
	ClassUnchecked   = "UNCHECKED" // no resolver configured
)

type Classification struct {
	Address string
	// Host is the form to probe: the literal for IPs, the ASCII (punycode)
	// name for hostnames.
	Host          string
	Kind          AddressKind
	Class         string
	IPs           []net.IP
	ResolverError string
}

// Resolver is the subset of *net.Resolver used by Classifier.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

type Classifier struct {
	Resolver Resolver
	Timeout  time.Duration
}

// NewClassifier uses the OS resolver.
func NewClassifier() *Classifier {
	return &Classifier{Resolver: net.DefaultResolver, Timeout: 3 * time.Second}
}

// Classify decides whether address is an IP literal or a hostname and, for
// hostnames, whether it resolves. INVALID_NAME and NXDOMAIN are returned as
// errors; a resolver failure (SERVFAIL_or_TIMEOUT) is not, because the name
// itself may be fine.
func (c *Classifier) Classify(ctx context.Context, address string) (Classification, error) {
	s := Classification{Address: strings.TrimSpace(address)}
	if s.Address == "" || strings.Contains(s.Address, "://") {
		s.Class = ClassInvalidName
		return s, fmt.Errorf("%q: %w", address, ErrInvalidAddress)
	}

	if ip, err := netip.ParseAddr(s.Address); err == nil {
		s.Class = ClassIPLiteral
		s.Host = s.Address
		s.IPs = []net.IP{net.IP(ip.AsSlice())}
		if ip.Unmap().Is4() {
			s.Kind = AddressIPv4
		} else {
			s.Kind = AddressIPv6
		}
		return s, nil
	}

	host, err := ASCIIHost(s.Address)
	if err != nil {
		s.Class = ClassInvalidName
		return s, fmt.Errorf("%q: %w: %v", address, ErrInvalidAddress, err)
	}
	s.Kind = AddressHostname
	s.Host = host

	if c == nil || c.Resolver == nil {
		s.Class = ClassUnchecked
		return s, nil
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	addrs, err := c.Resolver.LookupIPAddr(cctx, s.Host)
	if err == nil && len(addrs) > 0 {
		s.Class = ClassResolves
		for _, a := range addrs {
			s.IPs = append(s.IPs, a.IP)
		}
		return s, nil
	}

	if err == nil {
		s.Class = ClassNXDomain
		return s, fmt.Errorf("%q: %w", address, ErrUnresolvable)
	}

	s.ResolverError = err.Error()
	var de *net.DNSError
	if errors.As(err, &de) && de.IsNotFound {
		s.Class = ClassNXDomain
		return s, fmt.Errorf("%q: %w: %v", address, ErrUnresolvable, err)
	}
	s.Class = ClassServFail
	return s, nil
}

// HostOf pulls the hostname from an HTTP target URL. It returns "" when the
// URL has no host.
func HostOf(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// SetHost replaces the hostname of a URL, keeping any port.
func SetHost(raw, host string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return raw
	}
	if port := u.Port(); port != "" {
		u.Host = net.JoinHostPort(host, port)
	} else {
		u.Host = host
	}
	return u.String()
}

var hostProfile = idna.New(
	idna.MapForLookup(),
	idna.BidiRule(),
	idna.VerifyDNSLength(true),
)

// ASCIIHost validates a hostname and returns its lowercase ASCII form;
// internationalized labels come back as punycode.
func ASCIIHost(name string) (string, error) {
	name = strings.TrimSuffix(name, ".")
	if name == "" {
		return "", errors.New("empty hostname")
	}
	return hostProfile.ToASCII(name)
}
