package device

// DaemonName identifies the daemon in the manifest.
const DaemonName = "denhub-device"

// Version is overridden at build time with -ldflags "-X".
var Version = "0.3.0"

// DaemonID returns "name/version".
func DaemonID() string {
	return DaemonName + "/" + Version
}
