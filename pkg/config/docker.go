package config

import (
	"net"
	"net/url"
	"os"
	"sync"
)

var (
	isDockerOnce   sync.Once
	isDockerResult bool
)

// IsRunningInDocker returns true if the process runs inside a Docker container.
// Detection is based on /.dockerenv and cached after the first call.
func IsRunningInDocker() bool {
	isDockerOnce.Do(func() {
		_, err := os.Stat("/.dockerenv")
		isDockerResult = err == nil
	})
	return isDockerResult
}

// ResolveURIForDocker rewrites a loopback host in a datasource URI to
// host.docker.internal when running in Docker, so a containerized catalog can reach
// databases on the host. Other URIs, and anything outside Docker, are returned as is.
func ResolveURIForDocker(uri string) string {
	if !IsRunningInDocker() {
		return uri
	}
	return rewriteLoopbackHost(uri, "host.docker.internal")
}

func rewriteLoopbackHost(uri, replacement string) string {
	u, err := url.Parse(uri)
	if err != nil || u.Host == "" {
		return uri
	}
	host, port := u.Hostname(), u.Port()
	if host != "localhost" && host != "127.0.0.1" {
		return uri
	}
	if port != "" {
		u.Host = net.JoinHostPort(replacement, port)
	} else {
		u.Host = replacement
	}
	return u.String()
}
