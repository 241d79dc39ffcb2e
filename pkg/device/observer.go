package device

// Dispatch outcomes reported to Observer.CommandDispatched.
const (
	OutcomeReserved  = "reserved"
	OutcomeExecuted  = "executed"
	OutcomeAcked     = "acked"
	OutcomeFailed    = "failed"
	OutcomeUnmatched = "unmatched"
)

// Observer receives device events for instrumentation.
type Observer interface {
	StateChanged(from, to string)
	Reconnecting()
	HeartbeatSent(err error)
	MessageDropped()
	CommandDispatched(outcome string)
	ResponseSent(err error)
	LogForwarded(level string, err error)
}

// NopObserver ignores every event.
type NopObserver struct{}

var _ Observer = NopObserver{}

func (NopObserver) StateChanged(string, string) {}
func (NopObserver) Reconnecting() {}
func (NopObserver) HeartbeatSent(error) {}
func (NopObserver) MessageDropped() {}
func (NopObserver) CommandDispatched(string) {}
func (NopObserver) ResponseSent(error) {}
func (NopObserver) LogForwarded(string, error) {}
