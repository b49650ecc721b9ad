package proxy

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Endpoint identifies a single upstream proxy. Equality is by (host, port);
// credentials do not participate in identity.
type Endpoint struct {
	Host     string
	Port     int
	Username string
	Password string
}

// NewEndpoint creates an endpoint without credentials.
func NewEndpoint(host string, port int) Endpoint {
	return Endpoint{Host: host, Port: port}
}

// WithAuth returns a copy of the endpoint carrying basic-auth credentials.
func (e Endpoint) WithAuth(username, password string) Endpoint {
	e.Username = username
	e.Password = password
	return e
}

// ID returns the host:port identity used as the health-map key.
func (e Endpoint) ID() string {
	return fmt.Sprintf("%s:%d", e.Host, e.Port)
}

// URL renders the endpoint for HTTP client binding, folding credentials
// into the userinfo section when present.
func (e Endpoint) URL() (*url.URL, error) {
	if e.Host == "" {
		return nil, fmt.Errorf("proxy endpoint has empty host")
	}
	if e.Port < 1 || e.Port > 65535 {
		return nil, fmt.Errorf("proxy endpoint has invalid port %d", e.Port)
	}

	u := &url.URL{
		Scheme: "http",
		Host:   fmt.Sprintf("%s:%d", e.Host, e.Port),
	}
	if e.Username != "" || e.Password != "" {
		u.User = url.UserPassword(e.Username, e.Password)
	}
	return u, nil
}

// ParseLine parses a single proxies-file line of the form host:port or
// host:port:user:pass.
func ParseLine(line string) (Endpoint, error) {
	parts := strings.Split(line, ":")

	switch len(parts) {
	case 2, 4:
		port, err := strconv.Atoi(parts[1])
		if err != nil || port < 1 || port > 65535 {
			return Endpoint{}, fmt.Errorf("invalid port %q", parts[1])
		}
		ep := NewEndpoint(parts[0], port)
		if len(parts) == 4 {
			ep = ep.WithAuth(parts[2], parts[3])
		}
		return ep, nil
	default:
		return Endpoint{}, fmt.Errorf("expected host:port or host:port:user:pass, got %q", line)
	}
}
