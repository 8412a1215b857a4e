package streaming

import "time"

// ErrorType is the coarse failure category sent to clients.
type ErrorType string

const (
	ErrorTypeCancelled    ErrorType = "cancelled"
	ErrorTypeServiceError ErrorType = "service_error"
	ErrorTypeTimeout      ErrorType = "timeout"
)

// Event names used on the wire.
const (
	EventToken    = "token"
	EventComplete = "complete"
	EventError    = "error"
)

type TokenEvent struct {
	Token     string `json:"token"`
	MessageID uint   `json:"messageId"`
	SessionID string `json:"sessionId"`
}

type CompleteEvent struct {
	MessageID        uint  `json:"messageId"`
	TokenCount       int   `json:"tokenCount"`
	CompletionTimeMs int64 `json:"completionTimeMs"`
}

type ErrorEvent struct {
	Error     string    `json:"error"`
	ErrorType ErrorType `json:"errorType"`
}

// Observer receives the events of one attached session, in order. OnOpen is
// called once before anything else. An error from any callback means the
// client is gone and the session is treated as cancelled.
type Observer interface {
	OnOpen() error
	OnToken(TokenEvent) error
	OnPing() error
	OnComplete(CompleteEvent) error
	OnError(ErrorEvent) error
}

// Recorder receives lifecycle measurements.
type Recorder interface {
	SessionStarted(degraded bool)
	FirstToken(latency time.Duration)
	SessionFinished(outcome string, tokens int, duration time.Duration)
	SessionsSwept(n int)
}

type noopRecorder struct{}

func (noopRecorder) SessionStarted(bool) {}
func (noopRecorder) FirstToken(time.Duration) {}
func (noopRecorder) SessionFinished(string, int, time.Duration) {}
func (noopRecorder) SessionsSwept(int) {}
