package device

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// SecureHostSuffixes lists hosting providers known to terminate TLS. A ws://
// address on one of them is upgraded to wss://.
var SecureHostSuffixes = []string{".herokuapp.com"}

var secureSchemes = map[string]string{
	"ws":   "wss",
	"mqtt": "mqtts",
	"tcp":  "ssl",
}

// Endpoint is the resolved connection address of a device.
type Endpoint struct {
	URL *url.URL

	// Upgraded is set when the scheme was switched to its secure variant.
	Upgraded bool

	// Insecure is set for plain text connections to non-loopback hosts.
	Insecure bool
}

func (e *Endpoint) String() string {
	return e.URL.String()
}

// Redacted returns the address with the device token masked.
func (e *Endpoint) Redacted() string {
	u := *e.URL
	q := u.Query()
	if q.Has(KeyDeviceToken) {
		q.Set(KeyDeviceToken, "xxxxx")
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// Endpoint builds the connection URL: the server address with the
// deviceName, deviceType and deviceToken query parameters.
func (c *Config) Endpoint() (*Endpoint, error) {
	u, err := url.Parse(c.ServerHost)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", KeyServerHost, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid %s %q: scheme and host are required", KeyServerHost, c.ServerHost)
	}

	ep := &Endpoint{URL: u}
	u.Scheme = strings.ToLower(u.Scheme)

	secure, plain := secureSchemes[u.Scheme]
	if plain && hasSecureHost(u.Hostname()) {
		u.Scheme = secure
		ep.Upgraded = true
		plain = false
	}
	ep.Insecure = plain && !isLoopback(u.Hostname())

	q := u.Query()
	q.Set(KeyDeviceName, c.DeviceName)
	q.Set(KeyDeviceType, c.DeviceType)
	q.Set(KeyDeviceToken, c.DeviceToken)
	u.RawQuery = q.Encode()

	return ep, nil
}

func hasSecureHost(host string) bool {
	host = strings.ToLower(host)
	for _, suffix := range SecureHostSuffixes {
		if strings.HasSuffix(host, suffix) {
			return true
		}
	}
	return false
}

func isLoopback(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
