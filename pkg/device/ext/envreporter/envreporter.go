// Package envreporter adds a description of the host to the manifest.
package envreporter

import (
	"context"
	"net"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/host"
	psnet "github.com/shirou/gopsutil/v3/net"

	"github.com/autopeer-io/denhub/pkg/device/ext"
)

// Name is the core extension name.
const Name = "device-env-reporter"

const collectTimeout = 2 * time.Second

// Env is the value of the deviceEnv manifest item.
type Env struct {
	Arch     string `json:"arch"`
	Hostname string `json:"hostname"`
	Platform string `json:"platform"`
	Uptime   uint64 `json:"uptime"`
	IPv4     string `json:"ipv4,omitempty"`
}

// Reporter implements the OnSendManifest hook.
type Reporter struct {
	ext.Base

	host ext.Host

	// collect is replaced in tests.
	collect func(ctx context.Context) Env
}

var _ ext.Extension = (*Reporter)(nil)

// New is the extension factory.
func New(h ext.Host) (ext.Extension, error) {
	return &Reporter{host: h, collect: Collect}, nil
}

func (r *Reporter) OnSendManifest(map[string]any) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(context.Background(), collectTimeout)
	defer cancel()

	return map[string]any{"deviceEnv": r.collect(ctx)}, nil
}

// Collect gathers the host description. Fields that cannot be read are left
// empty.
func Collect(ctx context.Context) Env {
	env := Env{
		Arch:     runtime.GOARCH,
		Platform: runtime.GOOS,
	}

	if info, err := host.InfoWithContext(ctx); err == nil {
		env.Hostname = info.Hostname
		env.Uptime = info.Uptime
	} else if name, err := os.Hostname(); err == nil {
		env.Hostname = name
	}

	if ifaces, err := psnet.InterfacesWithContext(ctx); err == nil {
		env.IPv4 = PickIPv4(ifaces)
	}

	return env
}

// PickIPv4 returns the first IPv4 address of a wireless or ethernet
// interface, falling back to any interface. Interfaces without a hardware
// address, such as loopback, are skipped.
func PickIPv4(ifaces psnet.InterfaceStatList) string {
	preferred := func(name string) bool {
		return strings.HasPrefix(name, "wlan") || strings.HasPrefix(name, "eth")
	}

	if ip := firstIPv4(ifaces, preferred); ip != "" {
		return ip
	}
	return firstIPv4(ifaces, func(string) bool { return true })
}

func firstIPv4(ifaces psnet.InterfaceStatList, match func(name string) bool) string {
	for _, iface := range ifaces {
		if !match(iface.Name) || !hasHardwareAddr(iface.HardwareAddr) {
			continue
		}
		for _, a := range iface.Addrs {
			addr := a.Addr
			if ip, _, err := net.ParseCIDR(addr); err == nil {
				addr = ip.String()
			}
			if ip := net.ParseIP(addr); ip != nil && ip.To4() != nil {
				return ip.String()
			}
		}
	}
	return ""
}

func hasHardwareAddr(mac string) bool {
	return mac != "" && mac != "00:00:00:00:00:00"
}
