// Package identity supplies rotating outbound network identities (proxy
// endpoints with credentials) and rotating emulated-browser header sets.
package identity

import (
	"fmt"
	"net/url"
)

// Identity is one egress proxy endpoint plus its credentials. Immutable
// once issued; borrowed by requests, never consumed.
type Identity struct {
	Address  string `json:"proxy_address"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// HostPort returns the address:port form of the identity
func (i Identity) HostPort() string {
	return fmt.Sprintf("%s:%d", i.Address, i.Port)
}

// URL returns the proxy URL including credentials, suitable for
// http.Transport's Proxy field.
func (i Identity) URL() *url.URL {
	u := &url.URL{
		Scheme: "http",
		Host:   i.HostPort(),
	}
	if i.Username != "" {
		u.User = url.UserPassword(i.Username, i.Password)
	}
	return u
}
