package progress

import (
	"errors"
	"fmt"
)

// ErrChannelClosed is returned by Open after Close.
var ErrChannelClosed = errors.New("push channel closed")

// ProcessingError is a failure the backend reported after it accepted the upload.
type ProcessingError struct {
	Reason string
}

func (e *ProcessingError) Error() string {
	if e.Reason == "" {
		return "processing failed"
	}
	return "processing failed: " + e.Reason
}

// ChannelError describes an inbound frame that could not be decoded. It is
// logged and the frame dropped; it never reaches the user or closes the channel.
type ChannelError struct {
	Frame []byte
	Err   error
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("malformed push message %q: %v", truncate(e.Frame, 120), e.Err)
}

func (e *ChannelError) Unwrap() error {
	return e.Err
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
