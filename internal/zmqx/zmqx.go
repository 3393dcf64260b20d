// Package zmqx contains small helpers shared by the packages that talk
// ZeroMQ: endpoint normalization and bound-endpoint reporting.
package zmqx

import (
	"fmt"
	"strings"

	"github.com/go-zeromq/zmq4"
)

// NormalizeBindEndpoint rewrites the wildcard forms of a bind endpoint
// into the forms the socket layer accepts: host "*" becomes 0.0.0.0 and
// port "*" becomes 0 (ask the OS for an ephemeral port). Non-TCP
// endpoints pass through unchanged.
func NormalizeBindEndpoint(endpoint string) string {
	const scheme = "tcp://"
	if !strings.HasPrefix(endpoint, scheme) {
		return endpoint
	}
	hostport := endpoint[len(scheme):]
	host, port := hostport, ""
	if i := strings.LastIndex(hostport, ":"); i >= 0 {
		host, port = hostport[:i], hostport[i+1:]
	}
	if host == "*" {
		host = "0.0.0.0"
	}
	if port == "*" {
		port = "0"
	}
	if port == "" {
		return scheme + host
	}
	return scheme + host + ":" + port
}

// BoundEndpoint returns the endpoint a socket is actually bound to. For
// TCP this resolves wildcard host and port to the concrete values chosen
// at bind time; for transports without a listener address (e.g. inproc)
// it is the requested endpoint itself.
func BoundEndpoint(sock zmq4.Socket, requested string) string {
	addr := sock.Addr()
	if addr == nil || addr.Network() != "tcp" {
		return NormalizeBindEndpoint(requested)
	}
	return fmt.Sprintf("tcp://%s", addr.String())
}

// Listen binds the socket to a possibly-wildcarded endpoint and returns
// the concrete endpoint chosen.
func Listen(sock zmq4.Socket, endpoint string) (string, error) {
	normalized := NormalizeBindEndpoint(endpoint)
	if err := sock.Listen(normalized); err != nil {
		return "", fmt.Errorf("binding to %q: %w", normalized, err)
	}
	return BoundEndpoint(sock, normalized), nil
}
