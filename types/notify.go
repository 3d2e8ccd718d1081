package types

// Console event types relayed to browser clients.
const (
	ConsoleEventState = "state"
)

// ConsoleEvent is the frame written to /notify-ws subscribers.
type ConsoleEvent struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}
