package topic

import (
	"fmt"
	"strings"
)

// Topic segments shared by the device daemon and the server bridge.
// Changing them breaks every deployed device.
const (
	// Downlink carries frames from the server to one device.
	// Structure: {root}/down/{deviceName}
	Downlink = "down"

	// Uplink carries frames from one device to the server.
	// Structure: {root}/up/{deviceName}
	Uplink = "up"

	// Status carries retained presence notices of one device.
	// Structure: {root}/status/{deviceName}
	Status = "status"
)

// DefaultRoot is used when a broker URL carries no path.
const DefaultRoot = "denhub/v1"

// Builder constructs MQTT topic strings below a root namespace.
type Builder struct {
	root string
}

// NewBuilder creates a Builder for root. Leading and trailing slashes are
// trimmed and an empty root falls back to DefaultRoot.
func NewBuilder(root string) *Builder {
	root = strings.Trim(root, "/")
	if root == "" {
		root = DefaultRoot
	}
	return &Builder{root: root}
}

// Root returns the namespace of the builder.
func (b *Builder) Root() string {
	return b.root
}

// Build returns {root}/{segment}/{id}.
func (b *Builder) Build(segment, id string) string {
	return fmt.Sprintf("%s/%s/%s", b.root, segment, id)
}

// Downlink returns the topic a device subscribes to.
func (b *Builder) Downlink(device string) string {
	return b.Build(Downlink, device)
}

// Uplink returns the topic a device publishes to.
func (b *Builder) Uplink(device string) string {
	return b.Build(Uplink, device)
}

// Status returns the presence topic of a device.
func (b *Builder) Status(device string) string {
	return b.Build(Status, device)
}
