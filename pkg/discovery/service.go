package discovery

import (
	"context"
	"fmt"
	"net"
	"strconv"
)

const (
	DefaultServiceType = "_tftp._udp"
	DefaultDomain      = "local"
)

type ServiceInfo struct {
	Name   string // instance name, e.g. "brave-otter"
	Type   string // service type, e.g. "_tftp._udp"
	Domain string // e.g. "local"
	Addr   net.IP
	Port   int
	Text   map[string]string
}

// HostPort is the address a client sends its requests to.
func (s ServiceInfo) HostPort() string {
	if s.Addr == nil {
		return net.JoinHostPort(s.Name+"."+s.Domain, strconv.Itoa(s.Port))
	}
	return net.JoinHostPort(s.Addr.String(), strconv.Itoa(s.Port))
}

func (s ServiceInfo) key() string {
	return fmt.Sprintf("%s:%s:%s", s.Name, s.Type, s.Domain)
}

// ServiceName is the fully qualified browse name for a service type.
func ServiceName(serviceType, domain string) string {
	return fmt.Sprintf("%s.%s.", serviceType, domain)
}

// DiscoveryResult carries either a snapshot of the services seen so far or an error.
type DiscoveryResult struct {
	Services []ServiceInfo
	Error    error
}

type Adapter interface {
	Announce(ctx context.Context, service ServiceInfo) error
	Discover(ctx context.Context, service string) <-chan DiscoveryResult
}
