package device

import (
	"errors"

	"github.com/autopeer-io/denhub/pkg/protocol"
)

var (
	// ErrConnectionClosed is reported to the start callback when the channel closes.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrNotConnected is returned when sending without an open channel.
	ErrNotConnected = errors.New("not connected")

	// ErrMissingConfig is returned for an undefined required configuration key.
	ErrMissingConfig = errors.New("a required configuration undefined")

	// ErrInvalidCommandName is returned for command names that cannot be declared.
	ErrInvalidCommandName = protocol.ErrInvalidCommandName

	// ErrRestartPending is returned by Restart while another restart is scheduled.
	ErrRestartPending = errors.New("restart already pending")
)
