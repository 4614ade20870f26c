// ABOUTME: Session failure classification
// ABOUTME: Maps transport and device errors onto stable failure reasons
package vocalis

import (
	"errors"
	"strings"

	"github.com/Vocalis-Audio/vocalis-go/pkg/capture"
)

// ErrAlreadyStarted is returned by Start when the session is running or
// has already run. Sessions are single-use.
var ErrAlreadyStarted = errors.New("vocalis: session already started")

// FailureReason is a stable identifier for why a session failed, suitable
// for switch statements and user-facing copy.
type FailureReason string

const (
	ReasonNone           FailureReason = ""
	ReasonDeviceDenied   FailureReason = "device_denied"
	ReasonRateLimited    FailureReason = "rate_limited"
	ReasonConnectFailed  FailureReason = "connect_failed"
	ReasonConnectionLost FailureReason = "connection_lost"
	ReasonInternal       FailureReason = "internal"
)

// Classify maps an error onto a failure reason, or ReasonNone when no
// specific cause is recognizable. Rate limiting is detected from message
// text because transports surface provider rejections as opaque strings.
func Classify(err error) FailureReason {
	if err == nil {
		return ReasonNone
	}
	if errors.Is(err, capture.ErrDeviceDenied) {
		return ReasonDeviceDenied
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "429") || strings.Contains(msg, "quota") {
		return ReasonRateLimited
	}
	return ReasonNone
}
