package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment variable names.
const (
	EnvAddrList       = "PVA_ADDR_LIST"
	EnvServerPort     = "PVA_SERVER_PORT"
	EnvRequestTimeout = "PVA_REQUEST_TIMEOUT"
	EnvNameServer     = "PVA_NAME_SERVER"
)

// Defaults.
const (
	DefaultServerPort     = 5075
	DefaultRequestTimeout = 5 * time.Second
)

// Client holds client-side configuration.
type Client struct {
	// AddrList is the ordered list of server endpoints to try,
	// each "host" or "host:port". A bare host gets the default port.
	AddrList []string

	// RequestTimeout bounds individual get/put/info/rpc operations.
	RequestTimeout time.Duration
}

// DefaultClient returns the built-in client defaults.
func DefaultClient() Client {
	return Client{
		AddrList:       []string{fmt.Sprintf("127.0.0.1:%d", DefaultServerPort)},
		RequestTimeout: DefaultRequestTimeout,
	}
}

// ClientFromEnv builds a client configuration from the environment,
// falling back to defaults for unset variables.
func ClientFromEnv() (Client, error) {
	c := DefaultClient()

	if v := os.Getenv(EnvAddrList); v != "" {
		addrs, err := ParseAddrList(v)
		if err != nil {
			return Client{}, fmt.Errorf("%s: %w", EnvAddrList, err)
		}
		c.AddrList = addrs
	}

	if v := os.Getenv(EnvNameServer); v != "" {
		addr, err := normalizeAddr(v)
		if err != nil {
			return Client{}, fmt.Errorf("%s: %w", EnvNameServer, err)
		}
		// Name server takes precedence over the address list.
		c.AddrList = append([]string{addr}, c.AddrList...)
	}

	if v := os.Getenv(EnvRequestTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Client{}, fmt.Errorf("%s: %w", EnvRequestTimeout, err)
		}
		if d <= 0 {
			return Client{}, fmt.Errorf("%s: timeout must be positive", EnvRequestTimeout)
		}
		c.RequestTimeout = d
	}

	return c, nil
}

// Server holds server-side configuration.
type Server struct {
	// Address is the TCP listen address ("host:port"). Empty means
	// all interfaces on Port.
	Address string

	// Port is the TCP listen port. Ignored when Address is set.
	Port int
}

// ListenAddress resolves the effective listen address.
func (s Server) ListenAddress() string {
	if s.Address != "" {
		return s.Address
	}
	port := s.Port
	if port == 0 {
		port = DefaultServerPort
	}
	return fmt.Sprintf(":%d", port)
}

// DefaultServer returns the built-in server defaults.
func DefaultServer() Server {
	return Server{Port: DefaultServerPort}
}

// ServerFromEnv builds a server configuration from the environment.
func ServerFromEnv() (Server, error) {
	s := DefaultServer()

	if v := os.Getenv(EnvServerPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return Server{}, fmt.Errorf("%s: %w", EnvServerPort, err)
		}
		if port < 0 || port > 65535 {
			return Server{}, fmt.Errorf("%s: port %d out of range", EnvServerPort, port)
		}
		s.Port = port
	}

	return s, nil
}

// IsolatedServer returns a configuration that binds the loopback
// interface on an ephemeral port, for tests and self-contained tools.
func IsolatedServer() Server {
	return Server{Address: "127.0.0.1:0"}
}

// ParseAddrList splits a space-separated endpoint list, normalizing
// bare hosts to "host:defaultPort".
func ParseAddrList(s string) ([]string, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty address list")
	}

	addrs := make([]string, 0, len(fields))
	for _, f := range fields {
		addr, err := normalizeAddr(f)
		if err != nil {
			return nil, err
		}
		addrs = append(addrs, addr)
	}
	return addrs, nil
}

// normalizeAddr appends the default port to a bare host.
func normalizeAddr(s string) (string, error) {
	if s == "" {
		return "", fmt.Errorf("empty address")
	}

	if _, _, err := net.SplitHostPort(s); err == nil {
		return s, nil
	}

	// Bare IPv6 literals need brackets before a port can be added.
	if strings.Count(s, ":") > 1 && !strings.HasPrefix(s, "[") {
		return fmt.Sprintf("[%s]:%d", s, DefaultServerPort), nil
	}
	if strings.Contains(s, ":") {
		return "", fmt.Errorf("malformed address %q", s)
	}

	return fmt.Sprintf("%s:%d", s, DefaultServerPort), nil
}
